package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/u2386/go-lovely/config"
)

var _ = Describe("Test Config", func() {
	var modDir string

	BeforeEach(func() {
		var err error
		modDir, err = os.MkdirTemp("", "lovely-config-")
		Expect(err).ShouldNot(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(modDir)
	})

	It("defaults to patching with no dumps", func() {
		c, err := config.Load(modDir, nil)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(c).Should(Equal(config.Config{ModDir: modDir}))
		Expect(c.DumpDir()).Should(Equal(filepath.Join(modDir, "lovely", "dump")))
		Expect(c.LogPath()).Should(Equal(filepath.Join(modDir, "lovely", "log")))
	})

	It("reads the settings file", func() {
		Expect(os.WriteFile(filepath.Join(modDir, config.FileName), []byte(`{"dump_all": true, "engine": "libluajit.so"}`), 0o644)).Should(Succeed())

		c, err := config.Load(modDir, nil)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(c.DumpAll).Should(BeTrue())
		Expect(c.Engine).Should(Equal("libluajit.so"))
		Expect(c.Vanilla).Should(BeFalse())
	})

	It("lets the environment win", func() {
		Expect(os.WriteFile(filepath.Join(modDir, config.FileName), []byte(`{"dump_all": true}`), 0o644)).Should(Succeed())

		c, err := config.Load(modDir, []string{
			"HOME=/root",
			"LOVELY_DUMP_ALL=0",
			"LOVELY_VANILLA=1",
			"LOVELY_DEBUG=true",
			"LOVELY_LOG_DIR=/tmp/lovely-log",
			"LOVELY_STORAGE_DIR=/ignored",
		})
		Expect(err).ShouldNot(HaveOccurred())
		Expect(c.DumpAll).Should(BeFalse())
		Expect(c.Vanilla).Should(BeTrue())
		Expect(c.Debug).Should(BeTrue())
		Expect(c.LogPath()).Should(Equal("/tmp/lovely-log"))
	})

	It("rejects malformed settings", func() {
		Expect(os.WriteFile(filepath.Join(modDir, config.FileName), []byte(`{"dump_all": `), 0o644)).Should(Succeed())

		_, err := config.Load(modDir, nil)
		Expect(err).Should(HaveOccurred())
	})

	It("rejects values that are not booleans", func() {
		_, err := config.Load(modDir, []string{"LOVELY_VANILLA=sometimes"})
		Expect(err).Should(HaveOccurred())
	})

	It("keeps defaults when the file sets nothing", func() {
		Expect(os.WriteFile(filepath.Join(modDir, config.FileName), []byte(`{}`), 0o644)).Should(Succeed())

		c, err := config.Load(modDir, nil)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(c).Should(Equal(config.Default(modDir)))
	})

	It("rejects an empty mod directory", func() {
		_, err := config.Load(modDir, []string{"LOVELY_MOD_DIR="})
		Expect(err).Should(MatchError("mod directory is empty"))
	})

	It("collects only prefixed variables", func() {
		Expect(config.FromEnv([]string{"PATH=/bin", "LOVELY_MOD_DIR=/mods", "LOVELY_=x", "LOVELY_BROKEN"})).
			Should(Equal(map[string]interface{}{"mod_dir": "/mods"}))
	})
})
