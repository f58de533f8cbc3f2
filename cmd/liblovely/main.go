// Command liblovely is the shim as a shared object. Build it with
//
//	go build -buildmode=c-shared -o liblovely.so ./cmd/liblovely
//
// and get the host to load it, e.g. with LD_PRELOAD. Bootstrap runs while the
// library is being loaded.
package main

import "C"

import (
	lovely "github.com/u2386/go-lovely"
)

var process *lovely.Process

func init() {
	process = lovely.MustBootstrap(lovely.Options{})
}

func main() {}
