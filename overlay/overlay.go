// Package overlay is the default patch engine. Each mod may ship whole-chunk
// replacements under <mod_dir>/<mod>/overrides/, keyed by the chunk's path:
//
//	mods/
//	  smods/overrides/functions/misc_functions.lua
//	  cheats/overrides/main.lua
//
// A chunk named "@main.lua" is then served from cheats/overrides/main.lua.
package overlay

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Dir is the per-mod directory holding override files.
const Dir = "overrides"

// ErrConflict means two mods override the same chunk.
var ErrConflict = errors.New("conflicting overrides")

type (
	Overlay struct {
		files map[string]string
	}
)

// New indexes the overrides of every mod below modDir. Directories whose name
// starts with a dot and the shim's own "lovely" directory are skipped. A
// missing modDir yields an empty overlay.
func New(modDir string) (*Overlay, error) {
	o := &Overlay{files: make(map[string]string)}

	mods, err := os.ReadDir(modDir)
	if errors.Is(err, os.ErrNotExist) {
		return o, nil
	}
	if err != nil {
		return nil, err
	}

	for _, mod := range mods {
		if !mod.IsDir() || mod.Name() == "lovely" || strings.HasPrefix(mod.Name(), ".") {
			continue
		}
		root := filepath.Join(modDir, mod.Name(), Dir)
		if err := o.index(root); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *Overlay) index(root string) error {
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prev, ok := o.files[key]; ok {
			return fmt.Errorf("%w: %s in %s and %s", ErrConflict, key, prev, p)
		}
		o.files[key] = p
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Normalize turns a chunk name into the key overrides are indexed by.
func Normalize(name string) string {
	if strings.HasPrefix(name, "@") || strings.HasPrefix(name, "=") {
		name = name[1:]
	}
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

// Patch serves the override for name, if any. Files are read on every call
// so edits show up on the next load.
func (o *Overlay) Patch(name string, src []byte) ([]byte, bool, error) {
	p, ok := o.files[Normalize(name)]
	if !ok {
		return src, false, nil
	}
	content, err := os.ReadFile(p)
	if err != nil {
		return nil, false, err
	}
	return content, true, nil
}

func (o *Overlay) Len() int { return len(o.files) }

// Chunks lists the overridden chunk keys in order.
func (o *Overlay) Chunks() []string {
	keys := make([]string, 0, len(o.files))
	for k := range o.files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
