package runtime

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrCellPanic wraps a panic raised while computing a cell.
var ErrCellPanic = errors.New("cell computation panicked")

// Cell computes its value once. Concurrent first callers block until the
// computation finishes and every caller sees the same value or error.
type Cell[T any] struct {
	once     sync.Once
	fn       func() (T, error)
	val      T
	err      error
	resolved atomic.Bool
}

func NewCell[T any](fn func() (T, error)) *Cell[T] {
	return &Cell[T]{fn: fn}
}

func (c *Cell[T]) Get() (T, error) {
	c.once.Do(c.resolve)
	return c.val, c.err
}

// Resolved reports whether Get has completed at least once.
func (c *Cell[T]) Resolved() bool {
	return c.resolved.Load()
}

func (c *Cell[T]) resolve() {
	defer func() {
		if p := recover(); p != nil {
			c.err = fmt.Errorf("%w: %v", ErrCellPanic, p)
		}
		c.fn = nil
		c.resolved.Store(true)
	}()
	c.val, c.err = c.fn()
}
