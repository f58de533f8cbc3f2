package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/drone/signal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/u2386/go-lovely/config"
	"github.com/u2386/go-lovely/engine"
	"github.com/u2386/go-lovely/overlay"
	"github.com/u2386/go-lovely/runtime"
)

var (
	dumpAll bool
	vanilla bool
	outDir  string
	workers int
)

var applyCmd = &cobra.Command{
	Use:   "apply <chunk file>...",
	Short: "Load chunk files through the patch pipeline",
	Long: `Each file is loaded as the chunk "@<path>", with <path> relative to the
current directory, exactly as the engine would name it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("dump-all") {
			cfg.DumpAll = dumpAll
		}
		if cmd.Flags().Changed("vanilla") {
			cfg.Vanilla = vanilla
		}

		ctx := signal.WithContext(context.Background())
		return apply(ctx, cmd, cfg, args)
	},
}

func init() {
	applyCmd.Flags().BoolVar(&dumpAll, "dump-all", false, "Dump every chunk, patched or not")
	applyCmd.Flags().BoolVar(&vanilla, "vanilla", false, "Load chunks without patches")
	applyCmd.Flags().StringVarP(&outDir, "out", "o", "", "Write the loaded chunks to this directory")
	applyCmd.Flags().IntVarP(&workers, "jobs", "j", 4, "Chunks loaded concurrently")
}

func apply(ctx context.Context, cmd *cobra.Command, cfg config.Config, files []string) error {
	l := newLogger(cfg)

	patcher, err := overlay.New(cfg.ModDir)
	if err != nil {
		return err
	}
	l.WithField("overrides", patcher.Len()).Debug("overlay indexed")

	loader := engine.New(l)
	invoke := loader.Invoker()
	if outDir != "" {
		invoke = func(req *runtime.LoadRequest) uint32 {
			if err := write(outDir, req); err != nil {
				l.WithError(err).WithField("chunk", req.ChunkName()).Warn("write failed")
			}
			return loader.Load(req)
		}
	}
	r := runtime.New(invoke, nil, cfg, runtime.WithPatcher(patcher), runtime.WithLogger(l))

	var (
		mu     sync.Mutex
		failed int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			status, err := applyFile(r, file)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if status != engine.StatusOK {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%s: status %d\n", file, status)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", file)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d chunks failed to load", failed, len(files))
	}
	return nil
}

func applyFile(r *runtime.Runtime, file string) (uint32, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return 0, err
	}
	name := file
	if rel, err := filepath.Rel(".", file); err == nil {
		name = rel
	}
	return r.ApplyBufferPatches(&runtime.LoadRequest{
		Buffer: src,
		Name:   "@" + filepath.ToSlash(name),
		NoMode: true,
	})
}

func write(dir string, req *runtime.LoadRequest) error {
	p := filepath.Join(dir, filepath.FromSlash(runtime.DumpName(req.ChunkName())))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, req.Buffer, 0o644)
}
