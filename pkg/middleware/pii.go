package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var (
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	urlPattern   = regexp.MustCompile(`https?://[^\s<>"]+`)
	ipPattern    = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// urlPlaceholder replaces redacted URLs.
const urlPlaceholder = "[redacted-url]"

// PIIRedactor rewrites the final assistant message so that credit cards are
// masked, emails and IP addresses are hashed, and URLs are replaced with a
// placeholder. The category rules are independent; each is best-effort
// pattern matching.
type PIIRedactor struct{}

// NewPIIRedactor creates the redactor stage.
func NewPIIRedactor() *PIIRedactor {
	return &PIIRedactor{}
}

// Name implements Stage.
func (p *PIIRedactor) Name() string { return "pii_redactor" }

// After redacts the last message of the turn in place.
func (p *PIIRedactor) After(turn *Turn) error {
	last := turn.LastMessage()
	if last == nil {
		return nil
	}
	last.Content = p.RedactAll(last.Content)
	return nil
}

// RedactAll applies every category rule to the text.
func (p *PIIRedactor) RedactAll(text string) string {
	text = maskCards(text)
	text = urlPattern.ReplaceAllString(text, urlPlaceholder)
	text = hashMatches(emailPattern, "email", text)
	text = hashMatches(ipPattern, "ip", text)
	return text
}

// maskCards partially obscures card-like digit runs, keeping the last four
// digits visible.
func maskCards(text string) string {
	return cardPattern.ReplaceAllStringFunc(text, func(match string) string {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, match)
		if len(digits) < 4 {
			return match
		}
		return "**** **** **** " + digits[len(digits)-4:]
	})
}

// hashMatches replaces each match with a fixed-length irreversible token.
func hashMatches(re *regexp.Regexp, category, text string) string {
	return re.ReplaceAllStringFunc(text, func(match string) string {
		sum := sha256.Sum256([]byte(match))
		return fmt.Sprintf("<%s:%s>", category, hex.EncodeToString(sum[:])[:16])
	})
}
