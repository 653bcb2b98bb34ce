package middleware

import (
	"strings"
	"sync"
)

// RefusalText is the fixed response returned when the content guard trips.
const RefusalText = "I cannot process requests containing inappropriate content. Please rephrase your request."

// ContentGuard short-circuits a turn when the initiating human message
// contains a banned keyword. Keywords match case-insensitively as
// substrings. The keyword list may be swapped at runtime.
type ContentGuard struct {
	mu       sync.RWMutex
	keywords []string
}

// NewContentGuard creates a guard with the given banned keywords.
func NewContentGuard(keywords []string) *ContentGuard {
	g := &ContentGuard{}
	g.SetKeywords(keywords)
	return g
}

// Name implements Stage.
func (g *ContentGuard) Name() string { return "content_guard" }

// SetKeywords replaces the banned keyword list.
func (g *ContentGuard) SetKeywords(keywords []string) {
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			normalized = append(normalized, kw)
		}
	}

	g.mu.Lock()
	g.keywords = normalized
	g.mu.Unlock()
}

// Keywords returns a copy of the current banned keyword list.
func (g *ContentGuard) Keywords() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.keywords...)
}

// Before scans only the first message of the turn, and only if it is the
// initiating human message. A match terminates the turn before any model
// cost is incurred.
func (g *ContentGuard) Before(turn *Turn) (Result, error) {
	first := turn.FirstMessage()
	if first == nil || first.Role != "user" {
		return Continue(), nil
	}

	content := strings.ToLower(first.Content)

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, kw := range g.keywords {
		if strings.Contains(content, kw) {
			return ShortCircuit(g.Name(), RefusalText), nil
		}
	}

	return Continue(), nil
}
