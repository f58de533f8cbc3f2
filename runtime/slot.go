package runtime

import (
	"errors"
	"sync/atomic"
)

// Slot holds the one Runtime of a process. It is set at most once.
type Slot struct {
	p atomic.Pointer[Runtime]
}

func (s *Slot) Set(r *Runtime) error {
	if r == nil {
		return errors.New("nil runtime")
	}
	if !s.p.CompareAndSwap(nil, r) {
		return ErrDuplicateRuntimeInit
	}
	return nil
}

func (s *Slot) Get() (*Runtime, bool) {
	r := s.p.Load()
	return r, r != nil
}
