// Package reflectinfo is the runtime type-information database: it
// describes C-shaped structs, unions, enums, functions, and vtables so the
// scripting bridge can build usertypes and marshal FFI calls without a
// compile-time reflection pass.
package reflectinfo

import "unsafe"

// Kind classifies a registered type.
type Kind int

const (
	KindStruct Kind = iota
	KindUnion
	KindEnum
	KindFunction
)

// Semantic is the primitive classification of a field, argument, or return
// value — the vocabulary the overload dispatcher and FFI marshaller key
// their per-argument rules on.
type Semantic int

const (
	SemanticUnknown Semantic = iota
	SemanticVoid
	SemanticBool
	SemanticInt8
	SemanticInt16
	SemanticInt32
	SemanticInt64
	SemanticUint8
	SemanticUint16
	SemanticUint32
	SemanticUint64
	SemanticFloat32
	SemanticFloat64
	SemanticCString
	SemanticPointer
	SemanticUserData
	SemanticFuncPtr
	SemanticAny
)

func (s Semantic) String() string {
	switch s {
	case SemanticVoid:
		return "void"
	case SemanticBool:
		return "bool"
	case SemanticInt8:
		return "int8"
	case SemanticInt16:
		return "int16"
	case SemanticInt32:
		return "int32"
	case SemanticInt64:
		return "int64"
	case SemanticUint8:
		return "uint8"
	case SemanticUint16:
		return "uint16"
	case SemanticUint32:
		return "uint32"
	case SemanticUint64:
		return "uint64"
	case SemanticFloat32:
		return "float32"
	case SemanticFloat64:
		return "float64"
	case SemanticCString:
		return "cstring"
	case SemanticPointer:
		return "pointer"
	case SemanticUserData:
		return "userdata"
	case SemanticFuncPtr:
		return "funcptr"
	case SemanticAny:
		return "any"
	default:
		return "unknown"
	}
}

// Modifier is a bitset of cv/storage qualifiers carried by a field.
type Modifier uint8

const (
	ModConst Modifier = 1 << iota
	ModVolatile
	ModStatic
	ModAtomic
)

// Param describes a function argument or return value's type.
type Param struct {
	Semantic Semantic
	TypeName string
}

// Field describes one member of a struct/union type.
type Field struct {
	Name         string
	Semantic     Semantic
	TypeName     string
	Offset       uintptr
	ArrayDims    [4]int
	BitOffset    uint8
	BitWidth     uint8
	PointerDepth uint8
	Modifiers    Modifier

	// Populated only when Semantic == SemanticFuncPtr.
	Return Param
	Params []Param
}

// IsFuncPtr reports whether the field holds a function pointer.
func (f Field) IsFuncPtr() bool { return f.Semantic == SemanticFuncPtr }

// EnumItem is one named value of an enum type.
type EnumItem struct {
	Name  string
	Value int64
}

// Method describes one entry of a vtable: a constructor, destructor,
// instance method, or static method.
type Method struct {
	Name          string
	DefaultName   string // empty unless this overload also has a default-named alias
	Args          []Param
	Return        Param
	IsStatic      bool
	NativeAddress unsafe.Pointer // resolved native function pointer, for FFI dispatch
}

// VTable captures the constructors, destructor, methods, and static methods
// reflected for a usertype.
type VTable struct {
	Constructors  []Method
	Destructor    *Method
	Methods       []Method
	StaticMethods []Method
}

// TypeInfo is the full reflected description of one registered type.
type TypeInfo struct {
	Name      string
	Kind      Kind
	Size      uintptr
	Alignment uintptr
	Fields    []Field
	EnumItems []EnumItem
	Return    Param
	Args      []Param
	VTable    *VTable
}

// FieldsCoverContiguously reports whether a struct's field (offset, size)
// pairs cover [0, Size) with no gaps — used to validate padding-free
// reflected layouts.
func (t *TypeInfo) FieldsCoverContiguously(fieldSize func(Field) uintptr) bool {
	if len(t.Fields) == 0 {
		return t.Size == 0
	}

	covered := make([]bool, t.Size)
	for _, f := range t.Fields {
		sz := fieldSize(f)
		for i := uintptr(0); i < sz; i++ {
			if f.Offset+i >= t.Size {
				return false
			}
			covered[f.Offset+i] = true
		}
	}

	for _, c := range covered {
		if !c {
			return false
		}
	}

	return true
}
