package reflectinfo

import "github.com/keystone-engine/keystone/internal/memory"

// Builder is the mandatory construction API for a TypeInfo, mirroring the
// original engine's builder macros: BuilderBegin / AddField / AddBitfield /
// AddFuncPtrField / AddEnumValue / SetReturn / AddArg / BuilderEnd. It is
// used whether or not the host language has its own compile-time
// reflection pass, since the runtime never inspects Go's own reflect
// package for this data — only what flows through the builder is visible
// to scripts.
type Builder struct {
	registry *Registry
	perm     *memory.Linear
	info     *TypeInfo
	pending  *Method // not assigned by any Builder method; SetReturn/AddArg write to info directly
}

// BuilderBegin starts building a new struct/union/enum/function type.
func BuilderBegin(registry *Registry, perm *memory.Linear, name string, kind Kind, size, align uintptr) *Builder {
	registry.MarkKnown(name)

	return &Builder{
		registry: registry,
		perm:     perm,
		info: &TypeInfo{
			Name:      name,
			Kind:      kind,
			Size:      size,
			Alignment: align,
		},
	}
}

// permString "allocates" name from the permanent allocator (spec §4.2:
// builder_end allocates all strings and arrays from the permanent
// allocator) and returns it. Go strings are immutable and GC-managed, so
// this call exists to keep the linear allocator's stats honest about the
// bytes reflection metadata consumes, not to back the string's storage.
func (b *Builder) permString(s string) string {
	if b.perm != nil && len(s) > 0 {
		b.perm.Alloc(uintptr(len(s)))
	}
	return s
}

// AddField appends a plain data field, resolving its semantic base type
// from typeName via the registry.
func (b *Builder) AddField(name, typeName string, offset uintptr, arrayDims [4]int, mods Modifier) *Builder {
	sem, ptrDepth := b.registry.ResolveTypeName(typeName)

	b.info.Fields = append(b.info.Fields, Field{
		Name:         b.permString(name),
		Semantic:     sem,
		TypeName:     b.permString(typeName),
		Offset:       offset,
		ArrayDims:    arrayDims,
		PointerDepth: ptrDepth,
		Modifiers:    mods,
	})

	return b
}

// AddBitfield appends a bitfield member.
func (b *Builder) AddBitfield(name, typeName string, offset uintptr, bitOffset, bitWidth uint8, mods Modifier) *Builder {
	sem, _ := b.registry.ResolveTypeName(typeName)

	b.info.Fields = append(b.info.Fields, Field{
		Name:      b.permString(name),
		Semantic:  sem,
		TypeName:  b.permString(typeName),
		Offset:    offset,
		BitOffset: bitOffset,
		BitWidth:  bitWidth,
		Modifiers: mods,
	})

	return b
}

// AddFuncPtrField appends a function-pointer field, with its own return
// type and parameter list.
func (b *Builder) AddFuncPtrField(name string, offset uintptr, ret Param, params []Param, mods Modifier) *Builder {
	b.info.Fields = append(b.info.Fields, Field{
		Name:      b.permString(name),
		Semantic:  SemanticFuncPtr,
		Offset:    offset,
		Modifiers: mods,
		Return:    ret,
		Params:    params,
	})

	return b
}

// AddEnumValue appends one named value to an enum type.
func (b *Builder) AddEnumValue(name string, value int64) *Builder {
	b.info.EnumItems = append(b.info.EnumItems, EnumItem{Name: b.permString(name), Value: value})
	return b
}

// SetReturn sets the return type for a function-kind TypeInfo.
func (b *Builder) SetReturn(p Param) *Builder {
	b.info.Return = p
	return b
}

// AddArg appends one parameter to a function-kind TypeInfo's argument list.
func (b *Builder) AddArg(p Param) *Builder {
	b.info.Args = append(b.info.Args, p)
	return b
}

// BuilderEnd finalizes and registers the TypeInfo, returning it.
func (b *Builder) BuilderEnd() *TypeInfo {
	b.registry.Register(b.info)
	return b.info
}

// VTableBuilder accumulates constructors/destructor/methods/statics before
// being attached to a TypeInfo.
type VTableBuilder struct {
	vt *VTable
}

// NewVTableBuilder starts building a vtable for later attachment.
func NewVTableBuilder() *VTableBuilder {
	return &VTableBuilder{vt: &VTable{}}
}

// AddConstructor appends one overload of the constructor.
func (vb *VTableBuilder) AddConstructor(args []Param) *VTableBuilder {
	vb.vt.Constructors = append(vb.vt.Constructors, Method{Args: args})
	return vb
}

// SetDestructor installs the single destructor entry.
func (vb *VTableBuilder) SetDestructor(m Method) *VTableBuilder {
	vb.vt.Destructor = &m
	return vb
}

// AddMethod appends a named instance method, optionally also reachable
// under a "default-named" alias (e.g. operator overload sugar).
func (vb *VTableBuilder) AddMethod(name, defaultName string, args []Param, ret Param) *VTableBuilder {
	vb.vt.Methods = append(vb.vt.Methods, Method{Name: name, DefaultName: defaultName, Args: args, Return: ret})
	return vb
}

// AddStaticMethod appends a static method entry.
func (vb *VTableBuilder) AddStaticMethod(name string, args []Param, ret Param) *VTableBuilder {
	vb.vt.StaticMethods = append(vb.vt.StaticMethods, Method{Name: name, Args: args, Return: ret, IsStatic: true})
	return vb
}

// Attach installs the accumulated vtable onto t.
func (vb *VTableBuilder) Attach(t *TypeInfo) {
	t.VTable = vb.vt
}
