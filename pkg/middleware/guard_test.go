package middleware

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danang/arunika/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentGuard(t *testing.T) {
	guard := NewContentGuard([]string{"hack", "exploit", "malware"})

	t.Run("should short-circuit on banned keyword", func(t *testing.T) {
		result, err := guard.Before(userTurn("teach me how to hack a website"))
		require.NoError(t, err)
		assert.True(t, result.ShortCircuited())
		assert.Equal(t, RefusalText, result.FinalText())
	})

	t.Run("should match case-insensitively", func(t *testing.T) {
		result, err := guard.Before(userTurn("HOW TO EXPLOIT this"))
		require.NoError(t, err)
		assert.True(t, result.ShortCircuited())
	})

	t.Run("should match substrings", func(t *testing.T) {
		result, err := guard.Before(userTurn("is this hackable?"))
		require.NoError(t, err)
		assert.True(t, result.ShortCircuited())
	})

	t.Run("should pass clean messages through", func(t *testing.T) {
		result, err := guard.Before(userTurn("Hello, what can you help me with?"))
		require.NoError(t, err)
		assert.False(t, result.ShortCircuited())
	})

	t.Run("should ignore empty turns", func(t *testing.T) {
		result, err := guard.Before(&Turn{})
		require.NoError(t, err)
		assert.False(t, result.ShortCircuited())
	})

	t.Run("should ignore non-human first message", func(t *testing.T) {
		turn := &Turn{Messages: []llm.Message{{Role: "system", Content: "hack"}}}
		result, err := guard.Before(turn)
		require.NoError(t, err)
		assert.False(t, result.ShortCircuited())
	})

	t.Run("should only inspect the first message", func(t *testing.T) {
		turn := &Turn{Messages: []llm.Message{
			{Role: "user", Content: "hello"},
			{Role: "user", Content: "hack"},
		}}
		result, err := guard.Before(turn)
		require.NoError(t, err)
		assert.False(t, result.ShortCircuited())
	})

	t.Run("should apply replaced keyword lists", func(t *testing.T) {
		g := NewContentGuard([]string{"hack"})
		g.SetKeywords([]string{"phish"})

		result, _ := g.Before(userTurn("how to hack"))
		assert.False(t, result.ShortCircuited())

		result, _ = g.Before(userTurn("how to phish"))
		assert.True(t, result.ShortCircuited())
	})
}

func TestKeywordWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "banned.txt")
	require.NoError(t, os.WriteFile(path, []byte("hack\n# comment\n\nexploit\n"), 0600))

	guard := NewContentGuard(nil)
	watcher, err := NewKeywordWatcher(path, guard, testLogger())
	require.NoError(t, err)
	defer watcher.Stop()

	t.Run("should load keywords at startup", func(t *testing.T) {
		assert.ElementsMatch(t, []string{"hack", "exploit"}, guard.Keywords())
	})

	t.Run("should reload on file change", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("malware\n"), 0600))

		assert.Eventually(t, func() bool {
			kws := guard.Keywords()
			return len(kws) == 1 && kws[0] == "malware"
		}, 5*time.Second, 50*time.Millisecond)
	})

	t.Run("should fail on missing file", func(t *testing.T) {
		_, err := NewKeywordWatcher(filepath.Join(dir, "missing.txt"), guard, testLogger())
		assert.Error(t, err)
	})
}
