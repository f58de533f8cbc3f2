package hook

import (
	"errors"
	"fmt"
	"unsafe"
)

// maxCString bounds the scan for a terminating NUL in host strings.
const maxCString = 1 << 20

// ErrUnterminated means a host string has no NUL within maxCString bytes.
var ErrUnterminated = errors.New("unterminated C string")

// RawMemoryAccess views length bytes at p. The caller guarantees the range
// is mapped for as long as the slice is used. p is usually foreign memory,
// which checkptr cannot tell apart from a bad pointer.
//
//go:nocheckptr
func RawMemoryAccess(p uintptr, length int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), length)
}

// GoBytes copies n bytes of borrowed memory starting at p.
func GoBytes(p uintptr, n int) []byte {
	out := make([]byte, n)
	if n > 0 {
		copy(out, RawMemoryAccess(p, n))
	}
	return out
}

// GoString copies the NUL-terminated string at p. ok is false for NULL.
//
//go:nocheckptr
func GoString(p uintptr) (s string, ok bool, err error) {
	if p == 0 {
		return "", false, nil
	}
	buf := make([]byte, 0, 64)
	for i := 0; i < maxCString; i++ {
		ch := *(*byte)(unsafe.Pointer(p + uintptr(i)))
		if ch == 0 {
			return string(buf), true, nil
		}
		buf = append(buf, ch)
	}
	return "", true, fmt.Errorf("%w at %#x", ErrUnterminated, p)
}

// CString returns s as a NUL-terminated byte slice.
func CString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

// BytePtr is the address of the first byte of b, or 0 for an empty slice.
func BytePtr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
