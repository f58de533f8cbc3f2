package lovely

import (
	"fmt"

	"github.com/u2386/go-lovely/hook"
	"github.com/u2386/go-lovely/runtime"
)

// LoadBuffer replaces luaL_loadbuffer(L, buf, size, name).
func (p *Process) LoadBuffer(state, buf, size, name uintptr) uint32 {
	return p.guard(func() (*runtime.LoadRequest, error) {
		req, err := newRequest(state, buf, size, name)
		if err != nil {
			return nil, err
		}
		req.NoMode = true
		return req, nil
	})
}

// LoadBufferX replaces luaL_loadbufferx(L, buf, size, name, mode).
func (p *Process) LoadBufferX(state, buf, size, name, mode uintptr) uint32 {
	return p.guard(func() (*runtime.LoadRequest, error) {
		req, err := newRequest(state, buf, size, name)
		if err != nil {
			return nil, err
		}
		m, ok, err := hook.GoString(mode)
		if err != nil {
			return nil, fmt.Errorf("mode: %w", err)
		}
		req.Mode, req.NoMode = m, !ok
		return req, nil
	})
}

// C entry points handed to the installer.
func (p *Process) loadBuffer(state, buf, size, name uintptr) uintptr {
	return uintptr(p.LoadBuffer(state, buf, size, name))
}

func (p *Process) loadBufferX(state, buf, size, name, mode uintptr) uintptr {
	return uintptr(p.LoadBufferX(state, buf, size, name, mode))
}

// newRequest copies the host's borrowed arguments.
func newRequest(state, buf, size, name uintptr) (*runtime.LoadRequest, error) {
	if buf == 0 && size > 0 {
		return nil, fmt.Errorf("%w: NULL buffer of %d bytes", runtime.ErrInvalidBuffer, size)
	}
	n, ok, err := hook.GoString(name)
	if err != nil {
		return nil, fmt.Errorf("chunk name: %w", err)
	}
	return &runtime.LoadRequest{
		State:  state,
		Buffer: hook.GoBytes(buf, int(size)),
		Name:   n,
		NoName: !ok,
	}, nil
}

// guard is the barrier between the host and Go. A panic or an error while
// loading a chunk ends the process; the host frame is never resumed.
func (p *Process) guard(build func() (*runtime.LoadRequest, error)) (status uint32) {
	chunk := "?"
	defer func() {
		if r := recover(); r != nil {
			p.fail(chunk, r)
		}
	}()

	req, err := build()
	if err == nil {
		chunk = req.ChunkName()
		status, err = p.dispatch(req)
	}
	if err != nil {
		p.fail(chunk, err)
	}
	return status
}

func (p *Process) dispatch(req *runtime.LoadRequest) (uint32, error) {
	r, ok := p.slot.Get()
	if !ok {
		return 0, errNotBootstrapped
	}
	return r.ApplyBufferPatches(req)
}

func (p *Process) fail(chunk string, payload interface{}) {
	p.log.WithField("chunk", chunk).WithField("reason", describe(payload)).Error("failed to load buffer")
	p.exit(PanicExitCode)
}

func describe(payload interface{}) string {
	switch v := payload.(type) {
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprintf("non-text panic payload of type %T", payload)
}

// callTrampoline calls the original loader with the request's data. Absent
// names and modes go back as NULL.
func callTrampoline(t hook.Trampoline, legacy bool) runtime.Invoker {
	return func(req *runtime.LoadRequest) uint32 {
		var name, mode []byte
		if !req.NoName {
			name = hook.CString(req.Name)
		}
		if legacy {
			return t.CallLegacyLoader(req.State, req.Buffer, name)
		}
		if !req.NoMode {
			mode = hook.CString(req.Mode)
		}
		return t.CallLoader(req.State, req.Buffer, name, mode)
	}
}
