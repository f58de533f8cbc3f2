// Package storage finds the platform directory holding the mods folder.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	// EnvKey overrides every platform lookup.
	EnvKey = "LOVELY_STORAGE_DIR"
	// ExternalStorageKey is exported by Android to every app process.
	ExternalStorageKey = "EXTERNAL_STORAGE"
)

// ErrUnresolved means no resolver produced an absolute directory.
var ErrUnresolved = errors.New("storage directory unresolved")

type (
	// Resolver yields the absolute directory used as the mod root.
	Resolver interface {
		Resolve() (string, error)
	}

	ResolverFunc func() (string, error)

	// Env reads the directory from an environment variable.
	Env struct {
		Key    string
		Getenv func(string) string
	}

	// ExternalStorage is <external storage>/<App>, as Android games keep
	// user content there.
	ExternalStorage struct {
		App    string
		Getenv func(string) string
	}

	// UserConfig is <os.UserConfigDir()>/<App>.
	UserConfig struct {
		App string
	}

	// Chain returns the first successful resolver.
	Chain []Resolver
)

func (f ResolverFunc) Resolve() (string, error) { return f() }

// Default is the lookup order used when bootstrapping inside a host.
func Default(app string) Resolver {
	chain := Chain{Env{Key: EnvKey}}
	if runtime.GOOS == "android" {
		chain = append(chain, ExternalStorage{App: app})
	}
	return append(chain, UserConfig{App: app})
}

func (e Env) Resolve() (string, error) {
	dir := getenv(e.Getenv)(e.Key)
	if dir == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrUnresolved, e.Key)
	}
	return absolute(dir)
}

func (e ExternalStorage) Resolve() (string, error) {
	root := getenv(e.Getenv)(ExternalStorageKey)
	if root == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrUnresolved, ExternalStorageKey)
	}
	return absolute(filepath.Join(root, e.App))
}

func (u UserConfig) Resolve() (string, error) {
	root, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnresolved, err)
	}
	return absolute(filepath.Join(root, u.App))
}

func (c Chain) Resolve() (string, error) {
	errs := []error{ErrUnresolved}
	for _, r := range c {
		dir, err := r.Resolve()
		if err == nil {
			return dir, nil
		}
		errs = append(errs, err)
	}
	return "", errors.Join(errs...)
}

func absolute(dir string) (string, error) {
	if !filepath.IsAbs(dir) {
		return "", fmt.Errorf("%w: %q is not absolute", ErrUnresolved, dir)
	}
	return filepath.Clean(dir), nil
}

func getenv(f func(string) string) func(string) string {
	if f == nil {
		return os.Getenv
	}
	return f
}
