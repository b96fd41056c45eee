package viewer

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// fileWatcher notifies onChange whenever the named file is written or
// recreated. Same fsnotify-watch-the-directory-then-filter-by-basename
// shape as the config package's hot-reload watcher, narrowed from two
// named files (rules.yaml/killed.yaml) to one (the trace file the viewer
// is serving).
type fileWatcher struct {
	fsWatcher *fsnotify.Watcher
	done      chan struct{}
}

// watchFile starts watching path's parent directory and calls onChange
// each time path itself is written or recreated. Watching the directory
// rather than the file directly survives editors/cook runs that replace
// the file via rename instead of in-place write.
func watchFile(path string, onChange func()) (*fileWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}

	w := &fileWatcher{fsWatcher: fw, done: make(chan struct{})}
	go w.run(filepath.Base(path), onChange)
	return w, nil
}

func (w *fileWatcher) run(name string, onChange func()) {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			onChange()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("viewer file watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

func (w *fileWatcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	return w.fsWatcher.Close()
}
