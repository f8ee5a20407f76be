package vfs

import (
	"sync"
	"time"
)

// Callback is invoked when a watched path's mtime advances.
type Callback func(path string, userData interface{})

type watchEntry struct {
	path      string
	lastWrite time.Time
	callback  Callback
	userData  interface{}
}

// FileWatcher holds {path, last-write-time, callback, user-data} entries
// and is polled explicitly (single-threaded, no background goroutine): the
// host application calls Poll once per tick.
type FileWatcher struct {
	mu      sync.Mutex
	fs      FileSystem
	entries map[string]*watchEntry
}

// NewFileWatcher creates a watcher backed by fsys for stat calls.
func NewFileWatcher(fsys FileSystem) *FileWatcher {
	return &FileWatcher{fs: fsys, entries: make(map[string]*watchEntry)}
}

// Watch registers path for change notification. If it is already watched,
// the callback/userData are replaced.
func (w *FileWatcher) Watch(path string, cb Callback, userData interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry := &watchEntry{path: path, callback: cb, userData: userData}
	if info, err := w.fs.Stat(path); err == nil {
		entry.lastWrite = info.ModTime()
	}
	w.entries[path] = entry
}

// Unwatch removes path from the watch set.
func (w *FileWatcher) Unwatch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entries, path)
}

// IsWatching reports whether path currently has an entry.
func (w *FileWatcher) IsWatching(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.entries[path]
	return ok
}

// Poll stats each watched entry; a missing file during poll is ignored
// (local recovery per spec §7), and if mtime has advanced the record is
// updated and the callback invoked. Invoked explicitly by the host, never
// from a background goroutine.
func (w *FileWatcher) Poll() {
	w.mu.Lock()
	// Copy the entry list so callbacks can freely Watch/Unwatch without
	// deadlocking on w.mu.
	snapshot := make([]*watchEntry, 0, len(w.entries))
	for _, e := range w.entries {
		snapshot = append(snapshot, e)
	}
	w.mu.Unlock()

	for _, e := range snapshot {
		info, err := w.fs.Stat(e.path)
		if err != nil {
			continue // file missing during poll: ignored, not an error
		}

		if info.ModTime().After(e.lastWrite) {
			w.mu.Lock()
			e.lastWrite = info.ModTime()
			w.mu.Unlock()

			if e.callback != nil {
				e.callback(e.path, e.userData)
			}
		}
	}
}
