package middleware

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// KeywordWatcher reloads a content guard's banned keyword list whenever the
// backing file changes, so moderation updates take effect without a restart.
type KeywordWatcher struct {
	watcher  *fsnotify.Watcher
	guard    *ContentGuard
	path     string
	logger   zerolog.Logger
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
}

// NewKeywordWatcher loads the keyword file into the guard and starts
// watching it for changes. The file holds one keyword per line; blank lines
// and lines starting with '#' are ignored.
func NewKeywordWatcher(path string, guard *ContentGuard, logger zerolog.Logger) (*KeywordWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	kw := &KeywordWatcher{
		watcher:  watcher,
		guard:    guard,
		path:     path,
		logger:   logger,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	if err := kw.reload(); err != nil {
		watcher.Close()
		return nil, err
	}

	// Watch the directory: editors replace files rather than writing in place.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	go kw.run()

	return kw, nil
}

// Stop stops the watcher.
func (kw *KeywordWatcher) Stop() error {
	close(kw.stopCh)
	return kw.watcher.Close()
}

// reload reads the keyword file into the guard.
func (kw *KeywordWatcher) reload() error {
	data, err := os.ReadFile(kw.path)
	if err != nil {
		return err
	}

	var keywords []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keywords = append(keywords, line)
	}

	kw.guard.SetKeywords(keywords)
	kw.logger.Info().Int("count", len(keywords)).Msg("Loaded banned keywords")
	return nil
}

// run processes file system events
func (kw *KeywordWatcher) run() {
	for {
		select {
		case event, ok := <-kw.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != filepath.Clean(kw.path) {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				kw.logger.Debug().Str("op", event.Op.String()).Msg("Keyword file changed")
				kw.scheduleReload()
			}

		case err, ok := <-kw.watcher.Errors:
			if !ok {
				return
			}
			kw.logger.Error().Err(err).Msg("Keyword watcher error")

		case <-kw.stopCh:
			return
		}
	}
}

// scheduleReload debounces bursts of write events.
func (kw *KeywordWatcher) scheduleReload() {
	if kw.timer != nil {
		kw.timer.Stop()
	}

	kw.timer = time.AfterFunc(kw.debounce, func() {
		if err := kw.reload(); err != nil {
			kw.logger.Error().Err(err).Msg("Failed to reload banned keywords")
		}
	})
}
