package runtime

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"

	"github.com/u2386/go-lovely/config"
)

type (
	// LoadRequest is one chunk handed to the engine's loader. It owns its
	// data and does not outlive the load call that produced it.
	LoadRequest struct {
		State  uintptr
		Buffer []byte
		Name   string
		Mode   string
		// NoName and NoMode record NULL pointers from the host.
		NoName bool
		NoMode bool
	}

	// Invoker feeds a request to the original, unhooked loader.
	Invoker func(*LoadRequest) uint32

	// Patcher rewrites chunk sources. It must be safe for concurrent use.
	Patcher interface {
		Patch(name string, src []byte) (out []byte, changed bool, err error)
	}

	PatcherFunc func(name string, src []byte) ([]byte, bool, error)

	// Engine identifies the scripting library the runtime patches for.
	Engine interface {
		Path() string
	}

	Runtime struct {
		invoker Invoker
		engine  Engine
		config  config.Config
		patcher Patcher
		log     log.Interface
	}

	Option func(*Runtime)
)

var (
	ErrDuplicateRuntimeInit = errors.New("runtime already initialized")
	ErrInvalidBuffer        = errors.New("invalid chunk buffer")
)

func (f PatcherFunc) Patch(name string, src []byte) ([]byte, bool, error) { return f(name, src) }

// ChunkName is the name used in logs and dumps; "?" when the host passed NULL.
func (r *LoadRequest) ChunkName() string {
	if r.NoName {
		return "?"
	}
	return r.Name
}

func WithPatcher(p Patcher) Option {
	return func(r *Runtime) { r.patcher = p }
}

func WithLogger(l log.Interface) Option {
	return func(r *Runtime) { r.log = l }
}

func New(invoker Invoker, engine Engine, cfg config.Config, opts ...Option) *Runtime {
	r := &Runtime{
		invoker: invoker,
		engine:  engine,
		config:  cfg,
		log:     &log.Logger{Handler: discard.New(), Level: log.InfoLevel},
	}
	for _, opt := range opts {
		opt(r)
	}

	fields := log.Fields{"mod_dir": cfg.ModDir, "vanilla": cfg.Vanilla, "dump_all": cfg.DumpAll}
	if engine != nil {
		fields["engine"] = engine.Path()
	}
	r.log.WithFields(fields).Info("runtime initialized")
	return r
}

func (r *Runtime) Config() config.Config { return r.config }

// ApplyBufferPatches runs the chunk through the patcher and loads the result
// with the original loader, returning the loader's status untouched.
func (r *Runtime) ApplyBufferPatches(req *LoadRequest) (uint32, error) {
	if req == nil {
		return 0, fmt.Errorf("%w: nil request", ErrInvalidBuffer)
	}
	name := req.ChunkName()

	out, changed := req, false
	if !r.config.Vanilla && r.patcher != nil {
		buf, ok, err := r.patcher.Patch(name, req.Buffer)
		if err != nil {
			return 0, fmt.Errorf("patch %s: %w", name, err)
		}
		if ok {
			patched := *req
			patched.Buffer = buf
			out, changed = &patched, true
			r.log.WithField("chunk", name).Debugf("patched %d -> %d bytes", len(req.Buffer), len(buf))
		}
	}

	if changed || r.config.DumpAll {
		if err := r.dump(name, out.Buffer); err != nil {
			r.log.WithError(err).WithField("chunk", name).Warn("dump failed")
		}
	}
	return r.invoker(out), nil
}

func (r *Runtime) dump(name string, buf []byte) error {
	p := filepath.Join(r.config.DumpDir(), filepath.FromSlash(DumpName(name)))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, buf, 0o644)
}

// DumpName maps a chunk name onto a relative slash path that cannot escape
// the dump directory.
func DumpName(name string) string {
	name = strings.TrimLeft(name, "@=")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_', r == '/':
			return r
		case r == '\\':
			return '/'
		}
		return '_'
	}, name)

	name = strings.TrimLeft(path.Clean("/"+name), "/")
	if name == "" || name == "." {
		return "chunk"
	}
	return name
}
