package hook

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Test Installer", func() {
	var (
		installer *Installer
		patched   int
	)

	BeforeEach(func() {
		patched = 0
		installer = NewInstaller()
		installer.patch = func(target, replacement uintptr) (*Guard, Trampoline, error) {
			patched++
			return &Guard{target: target, replacement: replacement}, Trampoline(target + 0x1000), nil
		}
	})

	It("records the hook and returns the trampoline", func() {
		tramp, err := installer.Install(0x4000, 0x8000)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(tramp).Should(BeEquivalentTo(0x5000))

		g, ok := installer.Guard(0x4000)
		Expect(ok).Should(BeTrue())
		Expect(g.Target()).Should(BeEquivalentTo(0x4000))
		Expect(g.Replacement()).Should(BeEquivalentTo(0x8000))
		Expect(installer.Hooks()).Should(Equal(1))
	})

	It("refuses to hook a target twice", func() {
		_, err := installer.Install(0x4000, 0x8000)
		Expect(err).ShouldNot(HaveOccurred())

		_, err = installer.Install(0x4000, 0x9000)
		Expect(errors.Is(err, ErrDoubleHook)).Should(BeTrue())
		Expect(errors.Is(err, ErrHookInstall)).Should(BeTrue())
		Expect(patched).Should(Equal(1))

		g, _ := installer.Guard(0x4000)
		Expect(g.Replacement()).Should(BeEquivalentTo(0x8000))
	})

	It("refuses nil addresses", func() {
		_, err := installer.Install(0, 0x8000)
		Expect(errors.Is(err, ErrHookInstall)).Should(BeTrue())
		Expect(patched).Should(BeZero())
	})

	It("wraps platform failures", func() {
		denied := errors.New("permission denied")
		installer.patch = func(target, replacement uintptr) (*Guard, Trampoline, error) {
			return nil, 0, denied
		}

		_, err := installer.Install(0x4000, 0x8000)
		Expect(errors.Is(err, ErrHookInstall)).Should(BeTrue())
		Expect(errors.Is(err, denied)).Should(BeTrue())
		Expect(installer.Hooks()).Should(BeZero())
	})
})
