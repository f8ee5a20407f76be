// Package asset implements the runtime's resource manager: per-type
// load/destroy dispatch, name-keyed reference counting, and hot reload
// driven by the virtual filesystem's file watcher with a handle-stable
// reload contract.
package asset

import (
	"fmt"
	"sync"

	"github.com/keystone-engine/keystone/internal/handle"
	"github.com/keystone-engine/keystone/internal/vfs"
)

const assetTypeName = "asset"

// Data is the opaque result of loading an asset; its shape is owned by
// whichever type interface produced it.
type Data interface{}

// Interface is the set of callbacks a registered asset type provides.
type Interface struct {
	LoadFromFile func(path string) (Data, error)
	LoadFromData func(data []byte) (Data, error)
	Destroy      func(Data)
}

type entry struct {
	data       Data
	name       string
	typeName   string
	sourcePath string
	refCount   uint32
}

// Manager is the asset system: registered type interfaces, loaded entries,
// and the file watcher backing hot reload.
type Manager struct {
	mu sync.Mutex

	registry *handle.Registry
	tid      handle.ID

	interfaces map[string]Interface
	entries    map[handle.Handle]*entry
	byName     map[string]handle.Handle
	byPath     map[string]handle.Handle

	watcher *vfs.FileWatcher
}

// NewManager creates an empty asset manager whose hot-reload watcher polls
// fsys for mtime changes.
func NewManager(fsys vfs.FileSystem) *Manager {
	r := handle.NewRegistry()
	return &Manager{
		registry:   r,
		tid:        r.Register(assetTypeName),
		interfaces: make(map[string]Interface),
		entries:    make(map[handle.Handle]*entry),
		byName:     make(map[string]handle.Handle),
		byPath:     make(map[string]handle.Handle),
		watcher:    vfs.NewFileWatcher(fsys),
	}
}

// RegisterType installs the load/destroy interface for typeName.
// Re-registering the same name overwrites the previous interface.
func (m *Manager) RegisterType(typeName string, iface Interface) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interfaces[typeName] = iface
}

func (m *Manager) onFileChanged(path string, userData interface{}) {
	m.reloadByPathLocked(path)
}

// LoadFromFile loads (typeName, assetName) from path. If assetName is
// already loaded, its reference count is incremented and the existing
// handle returned without touching the file. Otherwise the type's
// LoadFromFile is invoked; on success the entry is recorded, the path is
// watched for hot reload, and a fresh handle with refcount 1 is returned.
func (m *Manager) LoadFromFile(typeName, assetName, path string) (handle.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.byName[assetName]; ok {
		m.entries[h].refCount++
		return h, nil
	}

	iface, ok := m.interfaces[typeName]
	if !ok || iface.LoadFromFile == nil {
		return handle.Invalid, fmt.Errorf("asset: no LoadFromFile for type %q", typeName)
	}

	data, err := iface.LoadFromFile(path)
	if err != nil {
		return handle.Invalid, err
	}

	h := m.registry.Make(m.tid)
	if !h.IsValid() {
		return handle.Invalid, fmt.Errorf("asset: handle space exhausted")
	}

	e := &entry{data: data, name: assetName, typeName: typeName, sourcePath: path, refCount: 1}
	m.entries[h] = e
	m.byName[assetName] = h
	m.byPath[path] = h

	m.watcher.Watch(path, m.onFileChanged, nil)

	return h, nil
}

// LoadFromData loads (typeName, assetName) from an in-memory buffer. Same
// refcounting semantics as LoadFromFile, but the resulting entry has no
// source path and is never watched for hot reload.
func (m *Manager) LoadFromData(typeName, assetName string, data []byte) (handle.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.byName[assetName]; ok {
		m.entries[h].refCount++
		return h, nil
	}

	iface, ok := m.interfaces[typeName]
	if !ok || iface.LoadFromData == nil {
		return handle.Invalid, fmt.Errorf("asset: no LoadFromData for type %q", typeName)
	}

	loaded, err := iface.LoadFromData(data)
	if err != nil {
		return handle.Invalid, err
	}

	h := m.registry.Make(m.tid)
	if !h.IsValid() {
		return handle.Invalid, fmt.Errorf("asset: handle space exhausted")
	}

	m.entries[h] = &entry{data: loaded, name: assetName, typeName: typeName, refCount: 1}
	m.byName[assetName] = h

	return h, nil
}

// Update polls the file watcher; any modified watched path triggers a
// reload of its asset.
func (m *Manager) Update() {
	m.watcher.Poll()
}

// Reload re-invokes LoadFromFile for h's entry. On success the new data
// replaces the old (the old is destroyed via the type's Destroy), while h
// itself remains valid and stable — callers holding h never need to
// re-fetch it after a reload.
func (m *Manager) Reload(h handle.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reloadLocked(h)
}

func (m *Manager) reloadByPathLocked(path string) bool {
	h, ok := m.byPath[path]
	if !ok {
		return false
	}
	return m.reloadLocked(h)
}

func (m *Manager) reloadLocked(h handle.Handle) bool {
	e, ok := m.entries[h]
	if !ok || e.sourcePath == "" {
		return false
	}

	iface, ok := m.interfaces[e.typeName]
	if !ok || iface.LoadFromFile == nil {
		return false
	}

	newData, err := iface.LoadFromFile(e.sourcePath)
	if err != nil {
		return false
	}

	if e.data != nil && iface.Destroy != nil {
		iface.Destroy(e.data)
	}
	e.data = newData

	return true
}

// Get returns the handle registered under assetName, incrementing its
// reference count, or handle.Invalid if no such asset is loaded.
func (m *Manager) Get(assetName string) handle.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.byName[assetName]
	if !ok {
		return handle.Invalid
	}
	m.entries[h].refCount++
	return h
}

// Data returns h's loaded data, or nil if h is invalid.
func (m *Manager) Data(h handle.Handle) Data {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[h]; ok {
		return e.data
	}
	return nil
}

// TypeName returns h's registered type name, or "" if h is invalid.
func (m *Manager) TypeName(h handle.Handle) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[h]; ok {
		return e.typeName
	}
	return ""
}

// RefCount returns h's current reference count, or 0 if h is invalid.
func (m *Manager) RefCount(h handle.Handle) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[h]; ok {
		return e.refCount
	}
	return 0
}

// IsValid reports whether h refers to a currently loaded asset.
func (m *Manager) IsValid(h handle.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[h]
	return ok
}

// Release decrements h's reference count. When it reaches zero the asset
// is destroyed (via its type's Destroy), unwatched, and its handle freed;
// after that, h becomes invalid.
func (m *Manager) Release(h handle.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[h]
	if !ok {
		return
	}
	e.refCount--
	if e.refCount > 0 {
		return
	}

	if e.data != nil {
		if iface, ok := m.interfaces[e.typeName]; ok && iface.Destroy != nil {
			iface.Destroy(e.data)
		}
	}

	if e.sourcePath != "" {
		m.watcher.Unwatch(e.sourcePath)
		delete(m.byPath, e.sourcePath)
	}

	delete(m.byName, e.name)
	delete(m.entries, h)
}
