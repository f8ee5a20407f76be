package vfs

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// resolveCacheSize is the LRU path-resolution cache's fixed capacity.
// Eviction is a full clear, not per-entry LRU eviction, matching the
// original engine's simpler cache-invalidation strategy.
const resolveCacheSize = 1024

// VFS resolves "alias://relative/path" virtual paths against a mount table
// of alias -> absolute physical path, backed by a FileSystem for actual
// I/O.
type VFS struct {
	mu    sync.RWMutex
	fs    FileSystem
	mount map[string]string
	cache map[string]string
}

// New creates a VFS with no mounts, backed by fsys for physical I/O.
func New(fsys FileSystem) *VFS {
	return &VFS{
		fs:    fsys,
		mount: make(map[string]string),
		cache: make(map[string]string),
	}
}

// Mount registers alias -> physicalPath. If overwrite is false, Mount fails
// when alias is already mounted. Mounting invalidates every cache entry
// whose resolved virtual path begins with "alias://".
func (v *VFS) Mount(alias, physicalPath string, overwrite bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.mount[alias]; exists && !overwrite {
		return fmt.Errorf("vfs: alias %q already mounted", alias)
	}

	v.mount[alias] = physicalPath
	v.invalidatePrefixLocked(alias + "://")

	return nil
}

// Unmount removes alias from the mount table and invalidates its cache
// entries.
func (v *VFS) Unmount(alias string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	delete(v.mount, alias)
	v.invalidatePrefixLocked(alias + "://")
}

func (v *VFS) invalidatePrefixLocked(prefix string) {
	if len(v.cache) >= resolveCacheSize || len(v.cache) > 0 {
		for k := range v.cache {
			if strings.HasPrefix(k, prefix) {
				// Full-clear eviction: the whole cache resets rather than
				// tracking per-entry recency, matching the original's
				// mount-time invalidation strategy.
				v.cache = make(map[string]string)
				return
			}
		}
	}
}

// Resolve splits "alias://rel" at the literal "://" separator, looks up the
// mount table, joins with rel, and caches the result. Resolution against an
// unknown alias fails.
func (v *VFS) Resolve(virtualPath string) (string, error) {
	v.mu.RLock()
	if cached, ok := v.cache[virtualPath]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	alias, rel, ok := splitScheme(virtualPath)
	if !ok {
		return "", fmt.Errorf("vfs: malformed virtual path %q, missing \"://\"", virtualPath)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	base, ok := v.mount[alias]
	if !ok {
		return "", fmt.Errorf("vfs: unknown alias %q", alias)
	}

	resolved := Join(base, rel)

	if len(v.cache) >= resolveCacheSize {
		v.cache = make(map[string]string)
	}
	v.cache[virtualPath] = resolved

	return resolved, nil
}

// splitScheme splits "alias://rel" at the literal "://" separator.
func splitScheme(virtualPath string) (alias, rel string, ok bool) {
	idx := strings.Index(virtualPath, "://")
	if idx < 0 {
		return "", "", false
	}
	return virtualPath[:idx], virtualPath[idx+len("://"):], true
}

// Read resolves virtualPath and returns its full contents.
func (v *VFS) Read(virtualPath string) ([]byte, error) {
	physical, err := v.Resolve(virtualPath)
	if err != nil {
		return nil, err
	}

	f, err := v.fs.Open(physical)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

// Write resolves virtualPath, creates any missing parent directories, and
// writes buf to it.
func (v *VFS) Write(virtualPath string, buf []byte) error {
	physical, err := v.Resolve(virtualPath)
	if err != nil {
		return err
	}

	dir := physical[:strings.LastIndex(physical, "/")+1]
	if dir != "" {
		if err := v.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := v.fs.Create(physical)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(buf)
	return err
}

// Underlying returns the backing FileSystem, for callers that need direct
// physical-path access (e.g. the file watcher).
func (v *VFS) Underlying() FileSystem { return v.fs }
