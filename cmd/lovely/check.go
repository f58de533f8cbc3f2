package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/u2386/go-lovely/engine"
	"github.com/u2386/go-lovely/overlay"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Compile every override in the mod directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		o, err := overlay.New(cfg.ModDir)
		if err != nil {
			return err
		}

		var failed int
		for _, chunk := range o.Chunks() {
			src, _, err := o.Patch(chunk, nil)
			if err == nil {
				_, err = engine.Compile(src, "@"+chunk, "t")
			}
			if err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", chunk, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", chunk)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d overrides failed", failed, o.Len())
		}
		if o.Len() == 0 {
			fmt.Fprintf(os.Stderr, "no overrides in %s\n", cfg.ModDir)
		}
		return nil
	},
}
