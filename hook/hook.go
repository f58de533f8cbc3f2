// Package hook owns every raw-address operation of the shim: symbol lookup in
// the loaded engine library, inline redirection of native functions, the
// trampolines that still reach the original code, and copying borrowed C
// memory into Go values. Nothing outside this package touches unsafe.Pointer.
package hook

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrSymbolNotFound means the library does not export the symbol
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrLibraryNotFound means none of the candidate libraries could be opened
	ErrLibraryNotFound = errors.New("library not found")
	// ErrHookInstall means the redirection could not be written
	ErrHookInstall = errors.New("hook install failed")
	// ErrDoubleHook means the installer already hooked the target
	ErrDoubleHook = errors.New("double hook")
	// ErrRelativeAddr means the prologue holds position dependent code
	ErrRelativeAddr = errors.New("relative address in instruction")
	// ErrFunctionTooShort means the function ends before the patch fits
	ErrFunctionTooShort = errors.New("function too short to patch")
	// ErrUnsupportedArch means inline hooks are not implemented for GOARCH
	ErrUnsupportedArch = errors.New("unsupported architecture")
)

type (
	// Trampoline is a C function pointer that runs the pre-hook code of a
	// target no matter what was written over the target afterwards.
	Trampoline uintptr

	// Guard records one installed redirection.
	Guard struct {
		target      uintptr
		replacement uintptr
		original    []byte
		patched     []byte
	}

	// Installer redirects native functions. A target is hooked at most once
	// per installer.
	Installer struct {
		mu    sync.Mutex
		hooks map[uintptr]*Guard
		patch func(target, replacement uintptr) (*Guard, Trampoline, error)
	}
)

func NewInstaller() *Installer {
	return &Installer{
		hooks: make(map[uintptr]*Guard),
		patch: install,
	}
}

// Install rewrites the entry of target so calls land in replacement, and
// returns a trampoline that bypasses the rewrite.
func (i *Installer) Install(target, replacement uintptr) (Trampoline, error) {
	if target == 0 || replacement == 0 {
		return 0, fmt.Errorf("%w: nil address", ErrHookInstall)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.hooks[target]; ok {
		return 0, fmt.Errorf("%w: %w at %#x", ErrHookInstall, ErrDoubleHook, target)
	}
	g, tramp, err := i.patch(target, replacement)
	if err != nil {
		return 0, fmt.Errorf("%w at %#x: %w", ErrHookInstall, target, err)
	}
	i.hooks[target] = g
	return tramp, nil
}

// Guard returns the record of the hook installed over target.
func (i *Installer) Guard(target uintptr) (*Guard, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	g, ok := i.hooks[target]
	return g, ok
}

// Hooks reports how many targets are redirected.
func (i *Installer) Hooks() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.hooks)
}

func (g *Guard) Target() uintptr      { return g.target }
func (g *Guard) Replacement() uintptr { return g.replacement }

// Original returns a copy of the bytes the hook overwrote.
func (g *Guard) Original() []byte { return append([]byte(nil), g.original...) }

// Unpatch puts the original prologue back.
func (g *Guard) Unpatch() error {
	return CopyToLocation(g.target, g.original)
}

// Restore writes the redirection again after Unpatch.
func (g *Guard) Restore() error {
	return CopyToLocation(g.target, g.patched)
}
