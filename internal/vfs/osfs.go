package vfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// osHandle adapts *os.File to File. os.File already implements every
// method File needs, so this only exists to give Open/Create a named
// return type consistent with MemFS's own File implementation.
type osHandle struct {
	*os.File
}

func (h *osHandle) Sync() error {
	return h.File.Sync()
}

// OSFS is the FileSystem backing "assets://" and "scripts://" mounts in a
// shipped build: every call is a direct pass-through to the os package, so
// mount resolution and hot-reload polling see the real filesystem's mtimes
// and errors unmodified.
type OSFS struct{}

// NewOS constructs an OSFS. It holds no state; any number of callers may
// share one instance.
func NewOS() *OSFS {
	return &OSFS{}
}

func (fsys *OSFS) Open(name string) (File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return &osHandle{f}, nil
}

func (fsys *OSFS) Create(name string) (File, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	return &osHandle{f}, nil
}

func (fsys *OSFS) Mkdir(name string, perm fs.FileMode) error {
	return os.Mkdir(name, perm)
}

func (fsys *OSFS) MkdirAll(name string, perm fs.FileMode) error {
	return os.MkdirAll(name, perm)
}

func (fsys *OSFS) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (fsys *OSFS) Remove(name string) error {
	return os.Remove(name)
}

func (fsys *OSFS) RemoveAll(name string) error {
	return os.RemoveAll(name)
}

func (fsys *OSFS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

func (fsys *OSFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(name)
}

// Walk descends root depth-first via filepath.WalkDir, handing each entry
// to fn with its full path. A nil fn is rejected rather than silently
// walking the whole tree for nothing.
func (fsys *OSFS) Walk(root string, fn func(fullPath string, d fs.DirEntry, err error) error) error {
	if fn == nil {
		return errors.New("vfs: OSFS.Walk called with a nil callback")
	}
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		return fn(p, d, err)
	})
}
