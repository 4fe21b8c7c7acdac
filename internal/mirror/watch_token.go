package mirror

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchTokenFile reloads the token whenever the file changes. Editors
// and secret managers replace files rather than writing in place, so
// Remove/Rename re-adds the path and changes are debounced.
func (m *Mirror) WatchTokenFile() error {
	if m.tokenPath == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(m.tokenPath); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					if err := w.Add(ev.Name); err != nil {
						slog.Error("watch re-add", "path", ev.Name, "err", err)
					}
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(250 * time.Millisecond)
				}
			case <-debounce.C:
				if _, err := m.ReloadSlack(); err != nil {
					slog.Error("token reload failed", "err", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("watch error", "err", err)
			}
		}
	}()
	return nil
}
