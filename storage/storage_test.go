package storage_test

import (
	"errors"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/u2386/go-lovely/storage"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

var _ = Describe("Test Resolvers", func() {
	It("reads an absolute directory from the environment", func() {
		dir, err := storage.Env{Key: storage.EnvKey, Getenv: env(map[string]string{storage.EnvKey: "/data/game/"})}.Resolve()
		Expect(err).ShouldNot(HaveOccurred())
		Expect(dir).Should(Equal("/data/game"))
	})

	It("refuses relative directories", func() {
		_, err := storage.Env{Key: storage.EnvKey, Getenv: env(map[string]string{storage.EnvKey: "mods"})}.Resolve()
		Expect(errors.Is(err, storage.ErrUnresolved)).Should(BeTrue())
	})

	It("refuses unset variables", func() {
		_, err := storage.Env{Key: storage.EnvKey, Getenv: env(nil)}.Resolve()
		Expect(errors.Is(err, storage.ErrUnresolved)).Should(BeTrue())
	})

	It("appends the app to external storage", func() {
		dir, err := storage.ExternalStorage{App: "Balatro", Getenv: env(map[string]string{storage.ExternalStorageKey: "/sdcard"})}.Resolve()
		Expect(err).ShouldNot(HaveOccurred())
		Expect(dir).Should(Equal(filepath.Join("/sdcard", "Balatro")))
	})

	Context("Chain", func() {
		failing := storage.ResolverFunc(func() (string, error) { return "", errors.New("no permission") })

		It("takes the first success", func() {
			dir, err := storage.Chain{
				failing,
				storage.ResolverFunc(func() (string, error) { return "/first", nil }),
				storage.ResolverFunc(func() (string, error) { return "/second", nil }),
			}.Resolve()
			Expect(err).ShouldNot(HaveOccurred())
			Expect(dir).Should(Equal("/first"))
		})

		It("fails when every resolver fails", func() {
			_, err := storage.Chain{failing, storage.Env{Key: storage.EnvKey, Getenv: env(nil)}}.Resolve()
			Expect(errors.Is(err, storage.ErrUnresolved)).Should(BeTrue())
			Expect(err.Error()).Should(ContainSubstring("no permission"))
		})

		It("fails when empty", func() {
			_, err := storage.Chain{}.Resolve()
			Expect(errors.Is(err, storage.ErrUnresolved)).Should(BeTrue())
		})
	})

	It("orders the default lookup", func() {
		chain, ok := storage.Default("Balatro").(storage.Chain)
		Expect(ok).Should(BeTrue())
		Expect(chain[0]).Should(Equal(storage.Env{Key: storage.EnvKey}))
		Expect(chain[len(chain)-1]).Should(Equal(storage.UserConfig{App: "Balatro"}))
	})
})
