package runtime_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"golang.org/x/sync/errgroup"

	"github.com/u2386/go-lovely/runtime"
)

var _ = Describe("Test Cell", func() {
	It("computes once for concurrent first callers", func() {
		var calls int32
		start := make(chan struct{})
		cell := runtime.NewCell(func() (*int, error) {
			atomic.AddInt32(&calls, 1)
			time.Sleep(20 * time.Millisecond)
			v := 42
			return &v, nil
		})

		var (
			g   errgroup.Group
			mu  sync.Mutex
			got []*int
		)
		for i := 0; i < 64; i++ {
			g.Go(func() error {
				<-start
				v, err := cell.Get()
				mu.Lock()
				got = append(got, v)
				mu.Unlock()
				return err
			})
		}
		close(start)
		Expect(g.Wait()).Should(Succeed())

		Expect(atomic.LoadInt32(&calls)).Should(BeEquivalentTo(1))
		Expect(got).Should(HaveLen(64))
		for _, v := range got {
			Expect(v).Should(BeIdenticalTo(got[0]))
		}
		Expect(cell.Resolved()).Should(BeTrue())
	})

	It("caches errors", func() {
		var calls int
		failed := errors.New("denied")
		cell := runtime.NewCell(func() (int, error) {
			calls++
			return 0, failed
		})

		_, err := cell.Get()
		Expect(err).Should(MatchError(failed))
		_, err = cell.Get()
		Expect(err).Should(MatchError(failed))
		Expect(calls).Should(Equal(1))
	})

	It("turns a panic into an error", func() {
		cell := runtime.NewCell(func() (int, error) { panic("no trampoline") })

		_, err := cell.Get()
		Expect(errors.Is(err, runtime.ErrCellPanic)).Should(BeTrue())
		Expect(err.Error()).Should(ContainSubstring("no trampoline"))
		Expect(cell.Resolved()).Should(BeTrue())
	})

	It("starts unresolved", func() {
		cell := runtime.NewCell(func() (int, error) { return 1, nil })
		Expect(cell.Resolved()).Should(BeFalse())
	})
})
