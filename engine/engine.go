// Package engine is a Go stand-in for the host's luaL_loadbufferx. It compiles
// chunks with gopher-lua and reports the status codes the C API would.
package engine

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/u2386/go-lovely/runtime"
)

// Status codes of lua_load.
const (
	StatusOK        uint32 = 0
	StatusErrSyntax uint32 = 3
)

// signature is the first byte of a precompiled chunk.
const signature = 0x1b

var ErrBinaryChunk = errors.New("binary chunks are not supported")

// Loader compiles chunks without running them. It keeps no state between
// loads and is safe for concurrent use.
type Loader struct {
	log log.Interface
}

func New(l log.Interface) *Loader {
	if l == nil {
		l = &log.Logger{Handler: discard.New(), Level: log.InfoLevel}
	}
	return &Loader{log: l}
}

// Compile checks buf as a chunk called name under mode ("b", "t" or "bt").
func Compile(buf []byte, name, mode string) (*lua.FunctionProto, error) {
	binary := len(buf) > 0 && buf[0] == signature
	switch {
	case binary && !strings.Contains(mode, "b"):
		return nil, fmt.Errorf("%s: attempt to load a binary chunk (mode is '%s')", name, mode)
	case !binary && !strings.Contains(mode, "t"):
		return nil, fmt.Errorf("%s: attempt to load a text chunk (mode is '%s')", name, mode)
	case binary:
		return nil, fmt.Errorf("%s: %w", name, ErrBinaryChunk)
	}

	chunk, err := parse.Parse(bytes.NewReader(buf), name)
	if err != nil {
		return nil, err
	}
	return lua.Compile(chunk, name)
}

// Load mirrors luaL_loadbufferx: a NULL name falls back to "?" and a NULL
// mode allows both binary and text chunks.
func (l *Loader) Load(req *runtime.LoadRequest) uint32 {
	mode := req.Mode
	if req.NoMode {
		mode = "bt"
	}
	if _, err := Compile(req.Buffer, req.ChunkName(), mode); err != nil {
		l.log.WithError(err).WithField("chunk", req.ChunkName()).Debug("load failed")
		return StatusErrSyntax
	}
	return StatusOK
}

// Invoker adapts the loader to runtime.New.
func (l *Loader) Invoker() runtime.Invoker {
	return l.Load
}
