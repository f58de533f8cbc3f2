// Command lovely runs the chunk pipeline outside a host: chunk files go
// through the configured patches and the reference Lua loader.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
