package engine

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/u2386/go-lovely/runtime"
)

var _ = Describe("Test Loader", func() {
	var loader *Loader

	BeforeEach(func() {
		loader = New(nil)
	})

	It("loads valid text chunks", func() {
		status := loader.Load(&runtime.LoadRequest{
			Buffer: []byte("local G = {}\nfunction G.add(a, b) return a + b end\nreturn G"),
			Name:   "@game.lua",
			NoMode: true,
		})
		Expect(status).Should(Equal(StatusOK))
	})

	It("loads the empty chunk", func() {
		Expect(loader.Load(&runtime.LoadRequest{NoName: true, NoMode: true})).Should(Equal(StatusOK))
	})

	It("reports syntax errors", func() {
		status := loader.Load(&runtime.LoadRequest{Buffer: []byte("local = 1"), Name: "@bad.lua", NoMode: true})
		Expect(status).Should(Equal(StatusErrSyntax))
	})

	It("honors the mode string", func() {
		Expect(loader.Load(&runtime.LoadRequest{Buffer: []byte("return 1"), Name: "=t", Mode: "b"})).
			Should(Equal(StatusErrSyntax))
		Expect(loader.Load(&runtime.LoadRequest{Buffer: []byte("return 1"), Name: "=t", Mode: "t"})).
			Should(Equal(StatusOK))
		Expect(loader.Load(&runtime.LoadRequest{Buffer: []byte("\x1bLJ"), Name: "=b", Mode: "t"})).
			Should(Equal(StatusErrSyntax))
	})

	It("does not run the chunk", func() {
		Expect(loader.Load(&runtime.LoadRequest{Buffer: []byte("error('boom')"), Name: "=run", NoMode: true})).
			Should(Equal(StatusOK))
	})

	It("rejects precompiled chunks", func() {
		_, err := Compile([]byte("\x1bLua"), "=bin", "bt")
		Expect(errors.Is(err, ErrBinaryChunk)).Should(BeTrue())
	})
})
