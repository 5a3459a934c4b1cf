package synctable

import (
	"math/bits"
	"math/rand/v2"
	"reflect"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// HashCoder is implemented by values that contribute their own hash code to
// Table.HashCode. *Table implements it, which is what makes tables of tables
// hashable.
type HashCoder interface {
	HashCode() uint32
}

// HashString is an xxhash based hasher for string keys, suitable for
// WithHasher. Unlike the built-in hasher its output is stable across
// processes for a given seed.
func HashString(key string, seed uintptr) uintptr {
	return uintptr(xxhash.Sum64String(key) ^ uint64(seed))
}

// HashBytes is HashString for byte-slice backed keys such as [N]byte.
func HashBytes(key []byte, seed uintptr) uintptr {
	return uintptr(xxhash.Sum64(key) ^ uint64(seed))
}

// hashCodeSeed is shared by every table so that equal tables have equal
// hash codes.
var hashCodeSeed = uintptr(rand.Uint64())

type hashFunc func(unsafe.Pointer, uintptr) uintptr
type equalFunc func(unsafe.Pointer, unsafe.Pointer) bool

// foldHash folds a machine word hash into the 32-bit hash kept per entry.
//
//go:nosplit
func foldHash(h uintptr) uint32 {
	return uint32(h) ^ uint32(uint64(h)>>32)
}

// bucketIndex maps a hash onto a bucket array of length n.
//
//go:nosplit
func bucketIndex(hash uint32, n int) int {
	return int((hash & 0x7FFFFFFF) % uint32(n))
}

func defaultHasher[K comparable, V any]() (keyHash hashFunc, valEqual equalFunc) {
	keyHash, valEqual = defaultHasherUsingBuiltIn[K, V]()

	switch any(*new(K)).(type) {
	case uint, int, uintptr:
		return func(value unsafe.Pointer, seed uintptr) uintptr {
			return *(*uintptr)(value)
		}, valEqual

	case uint64, int64:
		if bits.UintSize == 32 {
			return func(value unsafe.Pointer, seed uintptr) uintptr {
				v := *(*uint64)(value)
				return uintptr(v) ^ uintptr(v>>32)
			}, valEqual
		}
		return func(value unsafe.Pointer, seed uintptr) uintptr {
			return uintptr(*(*uint64)(value))
		}, valEqual

	case uint32, int32:
		return func(value unsafe.Pointer, seed uintptr) uintptr {
			return uintptr(*(*uint32)(value))
		}, valEqual

	case uint16, int16:
		return func(value unsafe.Pointer, seed uintptr) uintptr {
			return uintptr(*(*uint16)(value))
		}, valEqual

	case uint8, int8:
		return func(value unsafe.Pointer, seed uintptr) uintptr {
			return uintptr(*(*uint8)(value))
		}, valEqual

	default:
		return keyHash, valEqual
	}
}

// defaultHasherUsingBuiltIn obtains Go's built-in hash and equality functions
// for the specified types through the runtime map type descriptor.
//
// Notes:
//   - valEqual is nil when V is not comparable
//   - This implementation relies on Go's internal type representation
//   - It should be verified for compatibility with each Go version upgrade
func defaultHasherUsingBuiltIn[K comparable, V any]() (keyHash hashFunc, valEqual equalFunc) {
	var m map[K]V
	mapType := iTypeOf(m).MapType()
	return mapType.Hasher, mapType.Elem.Equal
}

// anyHasher hashes interface values by their dynamic type, the same way a
// map[any]T does. It panics for dynamic types that are not hashable.
var anyHasher, _ = defaultHasherUsingBuiltIn[any, struct{}]()

// hashValue is the fallback value hasher used by HashCode.
func hashValue[V any](v V, seed uintptr) uintptr {
	a := any(v)
	if a == nil {
		return 0
	}
	if hc, ok := a.(HashCoder); ok {
		return uintptr(hc.HashCode())
	}
	if !reflect.TypeOf(a).Comparable() {
		return 0
	}
	return anyHasher(noescape(unsafe.Pointer(&a)), seed)
}

// nilChecker returns a predicate reporting whether a T holds nil, or nil if
// no value of T can be nil. Every nillable kind keeps a nil pointer (or a
// nil type word, for interfaces) in its first word.
func nilChecker[T any]() func(T) bool {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Slice, reflect.Interface:
		return func(v T) bool {
			return *(*unsafe.Pointer)(unsafe.Pointer(&v)) == nil
		}
	default:
		return nil
	}
}

// noescape hides a pointer from escape analysis.  noescape is
// the identity function but escape analysis doesn't think the
// output depends on the input.  noescape is inlined and currently
// compiles down to zero instructions.
// USE CAREFULLY!
//
// nolint:all
//
//go:nosplit
//goland:noinspection ALL
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}

type iTFlag uint8
type iKind uint8
type iNameOff int32

// TypeOff is the offset to a type from moduledata.types.  See resolveTypeOff in runtime.
type iTypeOff int32

type iType struct {
	Size_       uintptr
	PtrBytes    uintptr // number of (prefix) bytes in the type that can contain pointers
	Hash        uint32  // hash of type; avoids computation in hash tables
	TFlag       iTFlag  // extra type information flags
	Align_      uint8   // alignment of variable with this type
	FieldAlign_ uint8   // alignment of struct field with this type
	Kind_       iKind   // enumeration for C
	// function for comparing objects of this type
	// (ptr to object A, ptr to object B) -> ==?
	Equal     func(unsafe.Pointer, unsafe.Pointer) bool
	GCData    *byte
	Str       iNameOff // string form
	PtrToThis iTypeOff // type for pointer to this type, may be zero
}

func (t *iType) MapType() *iMapType {
	return (*iMapType)(unsafe.Pointer(t))
}

type iMapType struct {
	iType
	Key   *iType
	Elem  *iType
	Group *iType // bucket (go1.23) or slot group (go1.24+)
	// function for hashing keys (ptr to key, seed) -> hash
	Hasher func(unsafe.Pointer, uintptr) uintptr
}

func iTypeOf(a any) *iType {
	eface := *(*iEmptyInterface)(unsafe.Pointer(&a))
	// Types are either static (for compiler-created types) or
	// heap-allocated but always reachable (for reflection-created
	// types, held in the central map). So there is no need to
	// escape types. noescape here help avoid unnecessary escape
	// of v.
	return (*iType)(noescape(unsafe.Pointer(eface.Type)))
}

type iEmptyInterface struct {
	Type *iType
	Data unsafe.Pointer
}
