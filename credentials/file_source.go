package credentials

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/cyberinferno/pzrcon/logger"
)

// FileSource is a Source backed by a YAML servers file that can be reloaded
// while the process runs. A reload that fails keeps the previous contents.
type FileSource struct {
	path    string
	current atomic.Pointer[StaticSource]
	log     logger.Logger
}

// OpenFile loads path and returns a FileSource serving its contents.
//
// Parameters:
//   - path: Path of the YAML servers file
//   - log: Receives reload logs; nil discards them
//
// Returns:
//   - A new *FileSource
//   - An error if the initial load fails
func OpenFile(path string, log logger.Logger) (*FileSource, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	fs := &FileSource{
		path: path,
		log:  log.With(logger.Field{Key: "component", Value: "credentials"}, logger.Field{Key: "path", Value: path}),
	}

	if err := fs.Reload(); err != nil {
		return nil, err
	}

	return fs, nil
}

// Reload re-reads the file. On error the previously loaded servers stay in effect.
func (f *FileSource) Reload() error {
	src, err := LoadFile(f.path)
	if err != nil {
		return err
	}

	f.current.Store(src)
	f.log.Info("servers loaded", logger.Field{Key: "count", Value: len(src.servers)})
	return nil
}

// Lookup implements Source.
func (f *FileSource) Lookup(serverID int) (Credentials, error) {
	return f.current.Load().Lookup(serverID)
}

// ServerIDs implements Source.
func (f *FileSource) ServerIDs() []int {
	return f.current.Load().ServerIDs()
}

// AutoConnectIDs returns the identities flagged for connection at startup.
func (f *FileSource) AutoConnectIDs() []int {
	return f.current.Load().AutoConnectIDs()
}

// Watch reloads the file whenever it changes until ctx is done. The parent
// directory is watched so that editors replacing the file by rename are seen.
//
// Parameters:
//   - ctx: Stops the watch when cancelled
//   - onReload: Called after every successful reload; may be nil
//
// Returns:
//   - nil when ctx is done
//   - An error if the watcher cannot be set up
func (f *FileSource) Watch(ctx context.Context, onReload func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("credentials: watch %s: %w", f.path, err)
	}
	defer func() {
		_ = w.Close()
	}()

	if err := w.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("credentials: watch %s: %w", f.path, err)
	}

	target := filepath.Clean(f.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if err := f.Reload(); err != nil {
				f.log.Warn("reload failed, keeping previous servers", logger.Field{Key: "error", Value: err})
				continue
			}

			if onReload != nil {
				onReload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}

			f.log.Warn("watch error", logger.Field{Key: "error", Value: err})
		}
	}
}
