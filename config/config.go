package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
)

const (
	// EnvPrefix marks environment overrides, e.g. LOVELY_DUMP_ALL=1.
	EnvPrefix = "LOVELY_"
	// FileName is the optional settings file inside the mod directory.
	FileName = "lovely.json"
)

type (
	// Config is fixed once the runtime is constructed.
	Config struct {
		// DumpAll writes every chunk to the dump directory, patched or not.
		DumpAll bool `mapstructure:"dump_all" json:"dump_all"`
		// Vanilla disables patching; chunks pass straight to the engine.
		Vanilla bool   `mapstructure:"vanilla" json:"vanilla"`
		Debug   bool   `mapstructure:"debug" json:"debug"`
		ModDir  string `mapstructure:"mod_dir" json:"mod_dir"`
		LogDir  string `mapstructure:"log_dir" json:"log_dir,omitempty"`
		// Engine is the path dlopen'ed to find the chunk loader.
		Engine string `mapstructure:"engine" json:"engine,omitempty"`
	}
)

func Default(modDir string) Config {
	return Config{ModDir: modDir}
}

// LovelyDir holds everything the shim writes itself.
func (c Config) LovelyDir() string {
	return filepath.Join(c.ModDir, "lovely")
}

func (c Config) DumpDir() string {
	return filepath.Join(c.LovelyDir(), "dump")
}

func (c Config) LogPath() string {
	if c.LogDir != "" {
		return c.LogDir
	}
	return filepath.Join(c.LovelyDir(), "log")
}

// Decode merges the keys present in in over c. Values are weakly typed so
// "1" or "true" from the environment decode into booleans.
func Decode(in map[string]interface{}, c *Config) error {
	if len(in) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           c,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// FromEnv collects LOVELY_* variables, lowercased without the prefix.
func FromEnv(environ []string) map[string]interface{} {
	m := make(map[string]interface{})
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		v := strings.SplitN(strings.TrimPrefix(kv, EnvPrefix), "=", 2)
		if len(v) != 2 || v[0] == "" {
			continue
		}
		m[strings.ToLower(v[0])] = v[1]
	}
	return m
}

// ParseFile reads a JSON settings file. A missing file is not an error.
func ParseFile(path string) (map[string]interface{}, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m := make(map[string]interface{})
	if err := json.Unmarshal(content, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// Load layers defaults, <modDir>/lovely.json and the environment, in that order.
func Load(modDir string, environ []string) (Config, error) {
	c := Default(modDir)

	file, err := ParseFile(filepath.Join(modDir, FileName))
	if err != nil {
		return c, err
	}
	if err := Decode(file, &c); err != nil {
		return c, err
	}
	if err := Decode(FromEnv(environ), &c); err != nil {
		return c, err
	}
	if c.ModDir == "" {
		return c, errors.New("mod directory is empty")
	}
	return c, nil
}
