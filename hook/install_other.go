//go:build !amd64 && (darwin || linux)

package hook

import (
	"fmt"
	"runtime"
)

func install(target, replacement uintptr) (*Guard, Trampoline, error) {
	return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedArch, runtime.GOARCH)
}
