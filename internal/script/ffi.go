package script

import (
	"math"
	"unsafe"

	"github.com/ebitengine/purego"
	lua "github.com/yuin/gopher-lua"

	"github.com/keystone-engine/keystone/internal/reflectinfo"
)

// nativeCall issues a reflected native call through purego's generic
// syscall path: fn is the resolved native address, args the already
// word-marshalled argument list, and the first return word is handed back
// to the caller for decoding.
func nativeCall(fn unsafe.Pointer, args []uintptr) uintptr {
	r1, _, _ := purego.SyscallN(uintptr(fn), args...)
	return r1
}

// marshalArg converts one VM-level argument into the machine word a native
// call expects, per the argument's declared semantic. Strings are copied
// into a C string the caller must keep alive for the duration of the call;
// userdata is unwrapped to its instance's backing-memory pointer.
func marshalArg(L *lua.LState, v lua.LValue, sem reflectinfo.Semantic, keepAlive *[][]byte) uintptr {
	switch sem {
	case reflectinfo.SemanticBool:
		b, _ := v.(lua.LBool)
		return boolToUint(bool(b))
	case reflectinfo.SemanticInt8, reflectinfo.SemanticInt16, reflectinfo.SemanticInt32, reflectinfo.SemanticInt64,
		reflectinfo.SemanticUint8, reflectinfo.SemanticUint16, reflectinfo.SemanticUint32, reflectinfo.SemanticUint64:
		n, _ := v.(lua.LNumber)
		return uintptr(int64(n))
	case reflectinfo.SemanticFloat32:
		n, _ := v.(lua.LNumber)
		return uintptr(math.Float32bits(float32(n)))
	case reflectinfo.SemanticFloat64:
		n, _ := v.(lua.LNumber)
		return uintptr(math.Float64bits(float64(n)))
	case reflectinfo.SemanticCString:
		s, _ := v.(lua.LString)
		buf := append([]byte(string(s)), 0)
		*keepAlive = append(*keepAlive, buf)
		return uintptr(unsafe.Pointer(&buf[0]))
	case reflectinfo.SemanticUserData, reflectinfo.SemanticPointer:
		ud, ok := v.(*lua.LUserData)
		if !ok {
			return 0
		}
		in, ok := ud.Value.(*instance)
		if !ok {
			return 0
		}
		return instancePointer(in)
	default:
		return 0
	}
}

// instancePointer resolves a (possibly borrowed) instance down to the
// address of its first byte within its root's backing array.
func instancePointer(in *instance) uintptr {
	offset := uintptr(0)
	root := in
	for root.bytes == nil {
		offset += root.offset
		root = root.parent
	}
	if len(root.bytes) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&root.bytes[0])) + offset
}

// callReflectedMethod marshals self plus m's declared arguments from the VM
// stack (starting at slot 2, since slot 1 is self), issues the native call,
// and wraps the result back onto the VM stack.
func callReflectedMethod(L *lua.LState, self *instance, m reflectinfo.Method) int {
	var keepAlive [][]byte

	args := make([]uintptr, 0, len(m.Args)+1)
	args = append(args, instancePointer(self))

	for i, p := range m.Args {
		v := L.Get(2 + i)
		args = append(args, marshalArg(L, v, p.Semantic, &keepAlive))
	}

	result := nativeCall(m.NativeAddress, args)
	_ = keepAlive // kept alive until after nativeCall returns

	return pushReturn(L, m.Return, result)
}

func pushReturn(L *lua.LState, ret reflectinfo.Param, word uintptr) int {
	switch ret.Semantic {
	case reflectinfo.SemanticVoid, reflectinfo.SemanticUnknown:
		return 0
	case reflectinfo.SemanticBool:
		L.Push(lua.LBool(word != 0))
	case reflectinfo.SemanticInt8, reflectinfo.SemanticInt16, reflectinfo.SemanticInt32, reflectinfo.SemanticInt64,
		reflectinfo.SemanticUint8, reflectinfo.SemanticUint16, reflectinfo.SemanticUint32, reflectinfo.SemanticUint64:
		L.Push(lua.LNumber(int64(word)))
	case reflectinfo.SemanticFloat32:
		L.Push(lua.LNumber(math.Float32frombits(uint32(word))))
	case reflectinfo.SemanticFloat64:
		L.Push(lua.LNumber(math.Float64frombits(uint64(word))))
	case reflectinfo.SemanticCString:
		L.Push(lua.LString(cStringAt(word)))
	case reflectinfo.SemanticUserData:
		L.Push(lua.LNil) // struct-by-value return needs a registry to size-copy; see ffi.go doc comment
	default:
		L.Push(lua.LNil)
	}
	return 1
}

// cStringAt reads a NUL-terminated string out of raw process memory at addr.
// Used only for return values the native side has documented as
// caller-readable for the duration of the call (e.g. interned strings);
// KeyStone never frees or retains the pointer itself.
func cStringAt(addr uintptr) string {
	if addr == 0 {
		return ""
	}
	var b []byte
	p := unsafe.Pointer(addr)
	for i := 0; ; i++ {
		c := *(*byte)(unsafe.Pointer(uintptr(p) + uintptr(i)))
		if c == 0 {
			break
		}
		b = append(b, c)
	}
	return string(b)
}
