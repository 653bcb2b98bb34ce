package middleware

import (
	"regexp"
	"strings"
)

var thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// ThinkSanitizer strips delimited reasoning blocks from the final assistant
// message. Some models leak their scratchpad; customers never see it.
type ThinkSanitizer struct{}

// NewThinkSanitizer creates the sanitizer stage.
func NewThinkSanitizer() *ThinkSanitizer {
	return &ThinkSanitizer{}
}

// Name implements Stage.
func (s *ThinkSanitizer) Name() string { return "think_sanitizer" }

// After removes think blocks from the last message and trims surrounding
// whitespace. No-op on an empty turn. Idempotent.
func (s *ThinkSanitizer) After(turn *Turn) error {
	last := turn.LastMessage()
	if last == nil {
		return nil
	}
	last.Content = Sanitize(last.Content)
	return nil
}

// Sanitize strips think blocks from text and trims whitespace.
func Sanitize(text string) string {
	return strings.TrimSpace(thinkPattern.ReplaceAllString(text, ""))
}
