package reflectinfo

import (
	"strings"
	"sync"
)

// maxTypedefHops bounds typedef alias-chain resolution so a cyclic or very
// deep alias chain cannot spin forever.
const maxTypedefHops = 16

var primitiveNames = map[string]Semantic{
	"bool": SemanticBool,

	"int8":  SemanticInt8,
	"int16": SemanticInt16,
	"int32": SemanticInt32,
	"int64": SemanticInt64,
	"int":   SemanticInt32,

	"uint8":  SemanticUint8,
	"uint16": SemanticUint16,
	"uint32": SemanticUint32,
	"uint64": SemanticUint64,
	"uint":   SemanticUint32,

	"float32": SemanticFloat32,
	"float":   SemanticFloat32,
	"float64": SemanticFloat64,
	"double":  SemanticFloat64,

	"void":    SemanticVoid,
	"cstring": SemanticCString,
	"string":  SemanticCString,
	"any":     SemanticAny,
}

// Registry is the runtime type-information database, keyed by string name,
// plus a transitive typedef alias map.
type Registry struct {
	mu       sync.RWMutex
	types    map[string]*TypeInfo
	typedefs map[string]string
	known    map[string]bool // names known to be struct-like even without a TypeInfo yet
}

// NewRegistry creates an empty reflection registry.
func NewRegistry() *Registry {
	return &Registry{
		types:    make(map[string]*TypeInfo),
		typedefs: make(map[string]string),
		known:    make(map[string]bool),
	}
}

// Register installs a fully-built TypeInfo under its own name, overwriting
// any previous entry of the same name.
func (r *Registry) Register(t *TypeInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.Name] = t
	r.known[t.Name] = true
}

// Lookup returns the TypeInfo registered for name (after resolving typedef
// aliases), or nil if unknown.
func (r *Registry) Lookup(name string) *TypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resolved := r.resolveAliasLocked(name)
	return r.types[resolved]
}

// RegisterTypedef stores alias -> existing, to be resolved transitively by
// ResolveTypeName / Lookup.
func (r *Registry) RegisterTypedef(alias, existing string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typedefs[alias] = existing
}

// resolveAliasLocked walks the typedef chain up to maxTypedefHops times.
func (r *Registry) resolveAliasLocked(name string) string {
	seen := name
	for hops := 0; hops < maxTypedefHops; hops++ {
		next, ok := r.typedefs[seen]
		if !ok {
			return seen
		}
		seen = next
	}
	return seen
}

// ResolveTypeName maps a raw field type-name string down to its semantic
// classification: it strips cv-qualifiers and pointer stars, walks the
// typedef chain, then looks up the primitive map, falling back to
// userdata for known struct names and unknown otherwise.
func (r *Registry) ResolveTypeName(raw string) (Semantic, uint8) {
	stripped, depth := stripQualifiers(raw)

	r.mu.RLock()
	defer r.mu.RUnlock()

	resolved := r.resolveAliasLocked(stripped)

	if depth > 0 {
		return SemanticPointer, depth
	}
	if sem, ok := primitiveNames[resolved]; ok {
		return sem, 0
	}
	if r.known[resolved] {
		return SemanticUserData, 0
	}

	return SemanticUnknown, 0
}

// stripQualifiers removes const/volatile keywords and counts/strips
// trailing pointer stars, returning the bare type name and pointer depth.
func stripQualifiers(raw string) (string, uint8) {
	s := strings.TrimSpace(raw)

	for {
		switch {
		case strings.HasPrefix(s, "const "):
			s = strings.TrimSpace(s[len("const "):])
		case strings.HasPrefix(s, "volatile "):
			s = strings.TrimSpace(s[len("volatile "):])
		default:
			goto stripped
		}
	}
stripped:

	depth := uint8(0)
	for strings.HasSuffix(s, "*") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "*"))
		depth++
	}

	return s, depth
}

// MarkKnown records that name refers to a struct-like type even before its
// full TypeInfo is registered, so forward references resolve to userdata
// instead of unknown.
func (r *Registry) MarkKnown(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[name] = true
}
