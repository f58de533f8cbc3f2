package main

import (
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/spf13/cobra"

	lovely "github.com/u2386/go-lovely"
	"github.com/u2386/go-lovely/config"
	"github.com/u2386/go-lovely/storage"
)

var (
	modDir  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:          "lovely",
	Short:        "Apply Lua chunk patches offline",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&modDir, "mod-dir", "", "Mod directory (default: <storage>/mods)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(applyCmd, checkCmd, configCmd)
}

func newLogger(cfg config.Config) log.Interface {
	level := log.InfoLevel
	if verbose || cfg.Debug {
		level = log.DebugLevel
	}
	return &log.Logger{Handler: text.New(os.Stderr), Level: level}
}

// loadConfig resolves the mod directory the same way the shim does unless
// --mod-dir is given.
func loadConfig() (config.Config, error) {
	dir := modDir
	if dir == "" {
		root, err := storage.Default(lovely.AppName).Resolve()
		if err != nil {
			return config.Config{}, err
		}
		dir = filepath.Join(root, lovely.ModsDir)
	}
	return config.Load(dir, os.Environ())
}
