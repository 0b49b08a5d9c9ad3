package memory

import (
	"reflect"
	"unsafe"
)

// Primitive is the set of fixed width values the typed accessor handles.
type Primitive interface {
	~bool | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

func sizeOf[T Primitive]() int {
	var t T
	return int(unsafe.Sizeof(t))
}

// decode interprets the leading bytes of src as T in host byte order.
func decode[T Primitive](src []byte) T {
	var t T
	if reflect.TypeFor[T]().Kind() == reflect.Bool {
		reflect.ValueOf(&t).Elem().SetBool(src[0] != 0)
		return t
	}
	copyTo(&t, src)
	return t
}

// encode returns the in-memory representation of v.
func encode[T Primitive](v T) []byte {
	size := int(unsafe.Sizeof(v))
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&v)), size))
	return out
}

// Encode returns the bytes Write would store for v.
func Encode[T Primitive](v T) []byte {
	return encode(v)
}

// copyTo copies bytes to *T
func copyTo[T any](dst *T, src []byte) {
	size := int(unsafe.Sizeof(*dst))
	if len(src) < size {
		return
	}

	dstBytes := unsafe.Slice((*byte)(unsafe.Pointer(dst)), size)
	copy(dstBytes, src)
}

// Sentinel is the value the sentinel-style getters return on failure:
// false for bool, -1 for integers and floats.
//
// A legitimately stored -1 cannot be told apart from a failure. Use the
// Read methods when that matters.
func Sentinel[T Primitive]() T {
	var t T
	v := reflect.ValueOf(&t).Elem()
	switch v.Kind() {
	case reflect.Bool:
		v.SetBool(false)
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v.SetInt(-1)
	case reflect.Float32, reflect.Float64:
		v.SetFloat(-1)
	}
	return t
}
