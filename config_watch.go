package statesync

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	syncErrors "github.com/frndly/statesync/errors"
)

// RegistryWatcher reloads the strategy table when its config file
// changes on disk. Reloads that fail validation are reported through
// OnError and the previous registry stays in effect; a watched file is
// never allowed to half-apply.
type RegistryWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Registry)
	onError  func(error)
	done     chan struct{}
}

// WatchRegistry starts watching the strategy table file. onChange is
// called with each successfully loaded registry; onError with load or
// watch failures. Close stops the watcher.
func WatchRegistry(path string, onChange func(*Registry), onError func(error)) (*RegistryWatcher, error) {
	if onChange == nil {
		return nil, syncErrors.NewConfigError(fmt.Errorf("onChange callback is required"))
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, syncErrors.NewConfigError(fmt.Errorf("failed to create file watcher: %w", err))
	}

	// Watch the directory rather than the file: editors and atomic
	// writes replace the inode, which would silently detach a file watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, syncErrors.NewConfigError(fmt.Errorf("failed to watch %s: %w", path, err))
	}

	rw := &RegistryWatcher{
		path:     path,
		watcher:  fsw,
		onChange: onChange,
		onError:  onError,
		done:     make(chan struct{}),
	}
	go rw.loop()
	return rw, nil
}

func (rw *RegistryWatcher) loop() {
	target := filepath.Clean(rw.path)
	for {
		select {
		case <-rw.done:
			return
		case ev, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			reg, err := LoadRegistryFromFile(rw.path)
			if err != nil {
				rw.reportError(err)
				continue
			}
			rw.onChange(reg)
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.reportError(syncErrors.NewConfigError(err))
		}
	}
}

func (rw *RegistryWatcher) reportError(err error) {
	if rw.onError != nil {
		rw.onError(err)
	}
}

// Close stops watching and releases the underlying notifier.
func (rw *RegistryWatcher) Close() error {
	close(rw.done)
	return rw.watcher.Close()
}
