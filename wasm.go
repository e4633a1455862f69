package wrenruntime

// Memory represents guest linear memory
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU32(offset uint32) (uint32, error)
	WriteU8(offset uint32, value uint8) error
	WriteU32(offset uint32, value uint32) error
	Size() uint32
}

// Allocator manages blocks in guest linear memory.
// A zero pointer is never a valid block.
type Allocator interface {
	Alloc(size uint32) (uint32, error)
	Realloc(ptr, size uint32) (uint32, error)
	Free(ptr uint32)
}

// AllocStats reports allocator accounting.
type AllocStats struct {
	LiveBytes uint64
	PeakBytes uint64
	Allocs    uint64
	Frees     uint64
}
