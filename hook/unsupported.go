//go:build !darwin && !linux

package hook

import (
	"errors"
	"runtime"
)

var errUnsupportedOS = errors.New("hook is only supported on darwin and linux, not " + runtime.GOOS)

type Library struct{}

func Open(...string) (*Library, error) {
	return nil, errUnsupportedOS
}

func (l *Library) Path() string { return "" }

func (l *Library) Resolve(string) (uintptr, error) {
	return 0, errUnsupportedOS
}

func NewCallback(interface{}) uintptr {
	panic(errUnsupportedOS)
}

func (t Trampoline) Call(...uintptr) uintptr {
	panic(errUnsupportedOS)
}

func (t Trampoline) CallLoader(uintptr, []byte, []byte, []byte) uint32 {
	panic(errUnsupportedOS)
}

func (t Trampoline) CallLegacyLoader(uintptr, []byte, []byte) uint32 {
	panic(errUnsupportedOS)
}

func CopyToLocation(uintptr, []byte) error {
	return errUnsupportedOS
}

func install(uintptr, uintptr) (*Guard, Trampoline, error) {
	return nil, 0, errUnsupportedOS
}
