// Package state implements the runtime's named typed-cell store: a single
// flat namespace of int/float/bool/string/usertype values addressed by
// name or handle, with type-safe set/get that silently fails rather than
// panicking on a type mismatch.
package state

import (
	"sync"

	"github.com/keystone-engine/keystone/internal/handle"
)

// Kind is the tagged-union discriminator for a state cell.
type Kind int

const (
	KindUnknown Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindUserData
)

const stateTypeName = "state.cell"

type cell struct {
	name     string
	kind     Kind
	i        int64
	f        float64
	b        bool
	s        string
	userData []byte
	userType string
}

// Manager is the named state-cell store.
type Manager struct {
	mu       sync.Mutex
	registry *handle.Registry
	tid      handle.ID
	cells    map[handle.Handle]*cell
	byName   map[string]handle.Handle
}

// NewManager creates an empty state manager.
func NewManager() *Manager {
	r := handle.NewRegistry()
	return &Manager{
		registry: r,
		tid:      r.Register(stateTypeName),
		cells:    make(map[handle.Handle]*cell),
		byName:   make(map[string]handle.Handle),
	}
}

func (m *Manager) createOrUpdate(name string, kind Kind, set func(*cell)) handle.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.byName[name]; ok {
		c := m.cells[h]
		if c.kind != kind {
			return handle.Invalid
		}
		set(c)
		return h
	}

	h := m.registry.Make(m.tid)
	if !h.IsValid() {
		return handle.Invalid
	}

	c := &cell{name: name, kind: kind}
	set(c)
	m.cells[h] = c
	m.byName[name] = h

	return h
}

// NewInt creates name if absent (initialized to value) or, if it already
// exists with KindInt, updates its value. Returns handle.Invalid if name
// exists with a different kind.
func (m *Manager) NewInt(name string, value int64) handle.Handle {
	return m.createOrUpdate(name, KindInt, func(c *cell) { c.i = value })
}

// NewFloat behaves like NewInt for KindFloat cells.
func (m *Manager) NewFloat(name string, value float64) handle.Handle {
	return m.createOrUpdate(name, KindFloat, func(c *cell) { c.f = value })
}

// NewBool behaves like NewInt for KindBool cells.
func (m *Manager) NewBool(name string, value bool) handle.Handle {
	return m.createOrUpdate(name, KindBool, func(c *cell) { c.b = value })
}

// NewString behaves like NewInt for KindString cells.
func (m *Manager) NewString(name string, value string) handle.Handle {
	return m.createOrUpdate(name, KindString, func(c *cell) { c.s = value })
}

// NewUserData creates or updates a usertype cell. Updating an existing
// usertype cell fails (returns handle.Invalid) if typeName or the byte
// length of data differs from what the cell was created with.
func (m *Manager) NewUserData(name string, data []byte, typeName string) handle.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.byName[name]; ok {
		c := m.cells[h]
		if c.kind != KindUserData || c.userType != typeName || len(c.userData) != len(data) {
			return handle.Invalid
		}
		copy(c.userData, data)
		return h
	}

	h := m.registry.Make(m.tid)
	if !h.IsValid() {
		return handle.Invalid
	}

	c := &cell{name: name, kind: KindUserData, userType: typeName, userData: append([]byte(nil), data...)}
	m.cells[h] = c
	m.byName[name] = h

	return h
}

// SetInt updates an existing KindInt cell. Reports false if h is unknown or
// not a KindInt cell.
func (m *Manager) SetInt(h handle.Handle, value int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cells[h]
	if !ok || c.kind != KindInt {
		return false
	}
	c.i = value
	return true
}

// SetFloat updates an existing KindFloat cell.
func (m *Manager) SetFloat(h handle.Handle, value float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cells[h]
	if !ok || c.kind != KindFloat {
		return false
	}
	c.f = value
	return true
}

// SetBool updates an existing KindBool cell.
func (m *Manager) SetBool(h handle.Handle, value bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cells[h]
	if !ok || c.kind != KindBool {
		return false
	}
	c.b = value
	return true
}

// SetString updates an existing KindString cell.
func (m *Manager) SetString(h handle.Handle, value string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cells[h]
	if !ok || c.kind != KindString {
		return false
	}
	c.s = value
	return true
}

// SetUserData updates an existing KindUserData cell in place. Fails if
// typeName or the byte length of data differs from the cell's.
func (m *Manager) SetUserData(h handle.Handle, data []byte, typeName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cells[h]
	if !ok || c.kind != KindUserData || c.userType != typeName || len(c.userData) != len(data) {
		return false
	}
	copy(c.userData, data)
	return true
}

// GetInt returns h's value, or def if h is invalid or not a KindInt cell.
func (m *Manager) GetInt(h handle.Handle, def int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cells[h]
	if !ok || c.kind != KindInt {
		return def
	}
	return c.i
}

// GetFloat returns h's value, or def if h is invalid or not a KindFloat cell.
func (m *Manager) GetFloat(h handle.Handle, def float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cells[h]
	if !ok || c.kind != KindFloat {
		return def
	}
	return c.f
}

// GetBool returns h's value, or def if h is invalid or not a KindBool cell.
func (m *Manager) GetBool(h handle.Handle, def bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cells[h]
	if !ok || c.kind != KindBool {
		return def
	}
	return c.b
}

// GetString returns h's value, or def if h is invalid or not a KindString
// cell.
func (m *Manager) GetString(h handle.Handle, def string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cells[h]
	if !ok || c.kind != KindString {
		return def
	}
	return c.s
}

// GetUserData returns a copy of h's bytes and its recorded type name, or
// (nil, "", false) if h is invalid or not a KindUserData cell.
func (m *Manager) GetUserData(h handle.Handle) (data []byte, typeName string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, exists := m.cells[h]
	if !exists || c.kind != KindUserData {
		return nil, "", false
	}
	return append([]byte(nil), c.userData...), c.userType, true
}

// GetHandle returns the handle registered under name, or handle.Invalid.
func (m *Manager) GetHandle(name string) handle.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byName[name]
}

// Has reports whether name is currently registered.
func (m *Manager) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byName[name]
	return ok
}

// HasHandle reports whether h currently has a live cell.
func (m *Manager) HasHandle(h handle.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cells[h]
	return ok
}

// Kind returns the kind of the cell at h, or KindUnknown if h is invalid.
func (m *Manager) Kind(h handle.Handle) Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cells[h]
	if !ok {
		return KindUnknown
	}
	return c.kind
}
