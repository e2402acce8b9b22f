package extract

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchRules reloads the extractor's rule set whenever the TOML rules file
// at path changes. A rules file that fails to load keeps the previous rule
// set. The returned stop function releases the watcher.
func (e *Extractor) WatchRules(path string) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory, not the file: editors commonly replace files
	// on save, which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch rules dir: %w", err)
	}

	target := filepath.Clean(path)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				rules, err := LoadRules(path)
				if err != nil {
					e.logger.Warn("rules file reload failed, keeping current rules",
						zap.String("path", path),
						zap.Error(err),
					)
					continue
				}

				e.SetRules(rules)
				e.logger.Info("rules reloaded",
					zap.String("path", path),
					zap.Int("rules", len(rules)),
				)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				e.logger.Warn("rules watcher error", zap.Error(err))
			}
		}
	}()

	return watcher.Close, nil
}
