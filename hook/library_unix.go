//go:build darwin || linux

package hook

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/ebitengine/purego"
)

// Library is a handle on a shared object already mapped into the process.
type Library struct {
	handle uintptr
	path   string
}

// Open returns the first candidate that dlopen accepts. The engine is
// normally loaded by the host already, in which case the live handle is
// returned and nothing new gets mapped.
func Open(paths ...string) (*Library, error) {
	var errs []error
	for _, path := range paths {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return &Library{handle: handle, path: path}, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrLibraryNotFound, errors.Join(errs...))
}

func (l *Library) Path() string { return l.path }

// Resolve yields the absolute address of an exported function.
func (l *Library) Resolve(name string) (uintptr, error) {
	addr, err := purego.Dlsym(l.handle, name)
	if err != nil || addr == 0 {
		return 0, fmt.Errorf("%w: %s in %s", ErrSymbolNotFound, name, l.path)
	}
	return addr, nil
}

// NewCallback turns a Go func taking and returning uintptr-sized integers
// into a C function pointer suitable as a hook replacement.
func NewCallback(fn interface{}) uintptr {
	return purego.NewCallback(fn)
}

// Call invokes the trampoline with the C calling convention.
func (t Trampoline) Call(args ...uintptr) uintptr {
	r1, _, _ := purego.SyscallN(uintptr(t), args...)
	return r1
}

// CallLoader calls an extended chunk loader:
// int (lua_State *L, const char *buf, size_t size, const char *name, const char *mode).
// A nil name or mode is passed as NULL.
func (t Trampoline) CallLoader(state uintptr, buf, name, mode []byte) uint32 {
	status := t.Call(state, BytePtr(buf), uintptr(len(buf)), BytePtr(name), BytePtr(mode))
	runtime.KeepAlive(buf)
	runtime.KeepAlive(name)
	runtime.KeepAlive(mode)
	return uint32(status)
}

// CallLegacyLoader calls the four argument form without a mode.
func (t Trampoline) CallLegacyLoader(state uintptr, buf, name []byte) uint32 {
	status := t.Call(state, BytePtr(buf), uintptr(len(buf)), BytePtr(name))
	runtime.KeepAlive(buf)
	runtime.KeepAlive(name)
	return uint32(status)
}
