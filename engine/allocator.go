package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"

	wrenruntime "github.com/wippyai/wren-runtime"
)

// libc is the guest's C allocator.
type libc interface {
	malloc(ctx context.Context, size uint32) (uint32, error)
	realloc(ctx context.Context, ptr, size uint32) (uint32, error)
	free(ctx context.Context, ptr uint32) error
}

// exportLibc calls the guest's exported malloc, realloc and free.
type exportLibc struct {
	mallocFn, reallocFn, freeFn api.Function
}

func (l exportLibc) malloc(ctx context.Context, size uint32) (uint32, error) {
	res, err := l.mallocFn.Call(ctx, api.EncodeU32(size))
	if err != nil {
		return 0, fmt.Errorf("malloc(%d): %w", size, err)
	}
	return api.DecodeU32(res[0]), nil
}

func (l exportLibc) realloc(ctx context.Context, ptr, size uint32) (uint32, error) {
	res, err := l.reallocFn.Call(ctx, api.EncodeU32(ptr), api.EncodeU32(size))
	if err != nil {
		return 0, fmt.Errorf("realloc(%d, %d): %w", ptr, size, err)
	}
	return api.DecodeU32(res[0]), nil
}

func (l exportLibc) free(ctx context.Context, ptr uint32) error {
	if _, err := l.freeFn.Call(ctx, api.EncodeU32(ptr)); err != nil {
		return fmt.Errorf("free(%d): %w", ptr, err)
	}
	return nil
}

// heap serves Wren's reallocate contract on top of the guest allocator and
// keeps per-block accounting. Host-made allocations go through it as well,
// since Wren frees some of them (resolved module names) itself.
type heap struct {
	c     libc
	mu    sync.Mutex
	sizes map[uint32]uint32
	stats wrenruntime.AllocStats
}

func newHeap(c libc) *heap {
	return &heap{c: c, sizes: make(map[uint32]uint32)}
}

// reallocate follows WrenReallocateFn: ptr 0 allocates, size 0 frees and
// returns 0, anything else resizes.
func (h *heap) reallocate(ctx context.Context, ptr, size uint32) (uint32, error) {
	switch {
	case ptr == 0 && size == 0:
		return 0, nil
	case ptr == 0:
		out, err := h.c.malloc(ctx, size)
		if err != nil {
			return 0, err
		}
		if out != 0 {
			h.track(0, out, size)
		}
		return out, nil
	case size == 0:
		if err := h.c.free(ctx, ptr); err != nil {
			return 0, err
		}
		h.track(ptr, 0, 0)
		return 0, nil
	default:
		out, err := h.c.realloc(ctx, ptr, size)
		if err != nil {
			return 0, err
		}
		if out != 0 {
			h.track(ptr, out, size)
		}
		return out, nil
	}
}

func (h *heap) track(old, ptr, size uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old != 0 {
		if prev, ok := h.sizes[old]; ok {
			h.stats.LiveBytes -= uint64(prev)
			delete(h.sizes, old)
		}
		if ptr == 0 {
			h.stats.Frees++
		}
	}
	if ptr != 0 {
		h.sizes[ptr] = size
		h.stats.LiveBytes += uint64(size)
		if old == 0 {
			h.stats.Allocs++
		}
		h.stats.PeakBytes = max(h.stats.PeakBytes, h.stats.LiveBytes)
	}
}

func (h *heap) snapshot() wrenruntime.AllocStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// allocatorAt binds a heap to a context to implement wrenruntime.Allocator.
type allocatorAt struct {
	Ctx  context.Context
	heap *heap
}

// Alloc allocates size bytes.
func (a allocatorAt) Alloc(size uint32) (uint32, error) {
	if size == 0 {
		size = 1
	}
	ptr, err := a.heap.reallocate(a.Ctx, 0, size)
	if err != nil {
		return 0, err
	}
	if ptr == 0 {
		return 0, fmt.Errorf("guest allocator returned null for %d bytes", size)
	}
	return ptr, nil
}

// Realloc resizes a block.
func (a allocatorAt) Realloc(ptr, size uint32) (uint32, error) {
	out, err := a.heap.reallocate(a.Ctx, ptr, size)
	if err != nil {
		return 0, err
	}
	if out == 0 && size != 0 {
		return 0, fmt.Errorf("guest allocator returned null for %d bytes", size)
	}
	return out, nil
}

// Free releases a block.
func (a allocatorAt) Free(ptr uint32) {
	if ptr == 0 {
		return
	}
	if _, err := a.heap.reallocate(a.Ctx, ptr, 0); err != nil {
		Logger().Warn("guest free failed", zapPtr(ptr), zapErr(err))
	}
}

// allocString copies s into a new NUL-terminated guest block.
func allocString(a wrenruntime.Allocator, mem wrenruntime.Memory, s string) (uint32, error) {
	ptr, err := a.Alloc(uint32(len(s)) + 1)
	if err != nil {
		return 0, err
	}
	if err := writeCString(mem, ptr, s); err != nil {
		a.Free(ptr)
		return 0, err
	}
	return ptr, nil
}

// allocBytes copies b into a new guest block. Empty input still allocates.
func allocBytes(a wrenruntime.Allocator, mem wrenruntime.Memory, b []byte) (uint32, error) {
	ptr, err := a.Alloc(uint32(len(b)))
	if err != nil {
		return 0, err
	}
	if len(b) > 0 {
		if err := mem.Write(ptr, b); err != nil {
			a.Free(ptr)
			return 0, err
		}
	}
	return ptr, nil
}
