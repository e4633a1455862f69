package wren

import (
	"sync/atomic"

	"github.com/wippyai/wren-runtime/errors"
)

const exclusive = -1

// cell is the shared, interior-mutable slot a Wrapper and its clones point
// at. core is nil until the VM is created and again after teardown.
type cell struct {
	core   *vmCore
	borrow atomic.Int32
	refs   atomic.Int32
}

func borrowError(detail string) *errors.Error {
	return errors.New(errors.PhaseRuntime, errors.KindBorrow).Detail("%s", detail).Build()
}

// borrowShared marks the VM in use. Shared borrows nest, so callbacks may
// borrow again while the call that triggered them holds one.
func (c *cell) borrowShared() func() {
	for {
		n := c.borrow.Load()
		if n == exclusive {
			panic(borrowError("VM already borrowed exclusively"))
		}
		if c.borrow.CompareAndSwap(n, n+1) {
			return func() { c.borrow.Add(-1) }
		}
	}
}

// tryBorrowExclusive marks the VM for teardown. It fails while any other
// borrow is outstanding, leaving the VM untouched.
func (c *cell) tryBorrowExclusive() (func(), error) {
	if !c.borrow.CompareAndSwap(0, exclusive) {
		return nil, borrowError("VM already borrowed")
	}
	return func() { c.borrow.Store(0) }, nil
}
