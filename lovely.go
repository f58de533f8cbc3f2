// Package lovely bootstraps the shim inside a host process: it finds the Lua
// engine's chunk loaders, redirects them to Go detours and routes every chunk
// through a runtime.Runtime before the original loader sees it.
package lovely

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apex/log"

	"github.com/u2386/go-lovely/config"
	"github.com/u2386/go-lovely/hook"
	"github.com/u2386/go-lovely/overlay"
	"github.com/u2386/go-lovely/runtime"
	"github.com/u2386/go-lovely/storage"
)

const (
	LegacyLoader   = "luaL_loadbuffer"
	ExtendedLoader = "luaL_loadbufferx"

	// PanicExitCode is the status the process exits with after a failed load.
	PanicExitCode = 0

	AppName = "Balatro"
	// ModsDir is the mod directory below the storage root.
	ModsDir = "mods"
)

// DefaultEngines are tried in order when the config names no engine library.
var DefaultEngines = []string{
	"liblove.so",
	"libluajit-5.1.so.2",
	"libluajit.so",
	"liblove.dylib",
	"libluajit-5.1.2.dylib",
	"liblua5.1.so",
}

var errNotBootstrapped = errors.New("runtime not initialized")

type (
	// SymbolSource locates exported functions of the engine library.
	SymbolSource interface {
		Resolve(name string) (uintptr, error)
		Path() string
	}

	// Hooker redirects a native function and returns its trampoline.
	Hooker interface {
		Install(target, replacement uintptr) (hook.Trampoline, error)
	}

	// Options replace the pieces Bootstrap otherwise builds itself. The zero
	// value bootstraps inside a real host.
	Options struct {
		Library    SymbolSource
		Installer  Hooker
		Resolver   storage.Resolver
		NewPatcher func(config.Config) (runtime.Patcher, error)
		Logger     log.Interface
		Environ    []string
		// Exit must not return.
		Exit func(int)
		// Callback turns a detour into a C function pointer.
		Callback func(fn interface{}) uintptr
		// Recall builds the invoker that calls the original loader through a
		// trampoline. legacy selects the four argument signature.
		Recall func(t hook.Trampoline, legacy bool) runtime.Invoker
	}

	// Process is the shim's state inside one host process.
	Process struct {
		slot    runtime.Slot
		cell    *runtime.Cell[runtime.Invoker]
		log     log.Interface
		exit    func(int)
		closers []io.Closer
	}
)

func (o *Options) defaults() {
	if o.Installer == nil {
		o.Installer = hook.NewInstaller()
	}
	if o.Resolver == nil {
		o.Resolver = storage.Default(AppName)
	}
	if o.NewPatcher == nil {
		o.NewPatcher = func(cfg config.Config) (runtime.Patcher, error) {
			return overlay.New(cfg.ModDir)
		}
	}
	if o.Environ == nil {
		o.Environ = os.Environ()
	}
	if o.Exit == nil {
		o.Exit = os.Exit
	}
	if o.Callback == nil {
		o.Callback = hook.NewCallback
	}
	if o.Recall == nil {
		o.Recall = callTrampoline
	}
}

// Bootstrap installs the shim. Nothing is hooked unless the storage root,
// config, log sink and patch engine are all available. The extended loader is
// hooked on the first chunk load; the legacy loader is hooked before return.
func Bootstrap(opts Options) (*Process, error) {
	opts.defaults()

	root, err := opts.Resolver.Resolve()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(filepath.Join(root, ModsDir), opts.Environ)
	if err != nil {
		return nil, err
	}

	p := &Process{exit: opts.Exit, log: opts.Logger}
	if p.log == nil {
		l, closer := newLogger(cfg, os.Stderr)
		p.log = l
		if closer != nil {
			p.closers = append(p.closers, closer)
		}
	}

	patcher, err := opts.NewPatcher(cfg)
	if err != nil {
		return p.abort(fmt.Errorf("patch engine: %w", err))
	}

	lib := opts.Library
	if lib == nil {
		candidates := DefaultEngines
		if cfg.Engine != "" {
			candidates = []string{cfg.Engine}
		}
		l, err := hook.Open(candidates...)
		if err != nil {
			return p.abort(err)
		}
		lib = l
	}

	extended, extErr := lib.Resolve(ExtendedLoader)
	legacy, legacyErr := lib.Resolve(LegacyLoader)
	if extErr != nil && legacyErr != nil {
		return p.abort(errors.Join(extErr, legacyErr))
	}

	var (
		legacyTramp hook.Trampoline
		legacyReady = make(chan struct{})
	)
	if extErr == nil {
		p.cell = runtime.NewCell(func() (runtime.Invoker, error) {
			tramp, err := opts.Installer.Install(extended, opts.Callback(p.loadBufferX))
			if err != nil {
				return nil, err
			}
			p.log.WithField("symbol", ExtendedLoader).Debugf("hooked at %#x", extended)
			return opts.Recall(tramp, false), nil
		})
	} else {
		p.log.WithField("symbol", ExtendedLoader).Warn("not exported, loading through the legacy loader")
		p.cell = runtime.NewCell(func() (runtime.Invoker, error) {
			<-legacyReady
			if legacyTramp == 0 {
				return nil, fmt.Errorf("%w: %s", hook.ErrHookInstall, LegacyLoader)
			}
			return opts.Recall(legacyTramp, true), nil
		})
	}

	r := runtime.New(p.invoke, lib, cfg, runtime.WithPatcher(patcher), runtime.WithLogger(p.log))
	if err := p.SetRuntime(r); err != nil {
		return p.abort(err)
	}

	if legacyErr == nil {
		tramp, err := opts.Installer.Install(legacy, opts.Callback(p.loadBuffer))
		if err == nil && extErr != nil {
			legacyTramp = tramp
		}
		close(legacyReady)
		if err != nil {
			return p.abort(err)
		}
		p.log.WithField("symbol", LegacyLoader).Debugf("hooked at %#x", legacy)
	}

	p.log.WithField("engine", lib.Path()).Info("bootstrap complete")
	return p, nil
}

// abort records why bootstrap stopped in the opened log sink, then releases it.
func (p *Process) abort(err error) (*Process, error) {
	p.log.WithError(err).Error("bootstrap failed")
	p.Close()
	return nil, err
}

// MustBootstrap is Bootstrap for library constructors: any failure is logged
// and the process exits with status 1.
func MustBootstrap(opts Options) *Process {
	p, err := Bootstrap(opts)
	if err != nil {
		l := opts.Logger
		if l == nil {
			l = log.Log
		}
		l.WithError(err).Fatal("bootstrap failed")
	}
	return p
}

// SetRuntime installs the dispatcher chunk loads are routed through. It
// succeeds once per process.
func (p *Process) SetRuntime(r *runtime.Runtime) error {
	return p.slot.Set(r)
}

func (p *Process) Runtime() (*runtime.Runtime, bool) {
	return p.slot.Get()
}

// Close releases the log file. Hooks stay installed.
func (p *Process) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c.Close())
	}
	p.closers = nil
	return errors.Join(errs...)
}

// invoke loads a request through the original loader, hooking it first if
// this is the first load.
func (p *Process) invoke(req *runtime.LoadRequest) uint32 {
	original, err := p.cell.Get()
	if err != nil {
		panic(err)
	}
	return original(req)
}
