package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	wrenruntime "github.com/wippyai/wren-runtime"
)

// maxCString bounds C strings read from the guest.
const maxCString = 16 << 20

// cstringChunk is how many bytes are scanned per read while looking for NUL.
const cstringChunk = 256

// wrapMemory adapts wazero api.Memory to wrenruntime.Memory.
func wrapMemory(mem api.Memory) wrenruntime.Memory {
	if mem == nil {
		return nil
	}
	return &memoryWrapper{mem: mem}
}

type memoryWrapper struct {
	mem api.Memory
}

// Read copies bytes out of memory.
func (m *memoryWrapper) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", offset, length)
	}
	return bytes.Clone(data), nil
}

// Write writes bytes to memory.
func (m *memoryWrapper) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

// ReadU8 reads an unsigned 8-bit value.
func (m *memoryWrapper) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *memoryWrapper) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// WriteU8 writes an unsigned 8-bit value.
func (m *memoryWrapper) WriteU8(offset uint32, value uint8) error {
	if !m.mem.WriteByte(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (m *memoryWrapper) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// Size returns the current memory size in bytes.
func (m *memoryWrapper) Size() uint32 {
	return m.mem.Size()
}

// readCString reads a NUL-terminated string. A zero pointer reads as "".
func readCString(mem wrenruntime.Memory, ptr uint32) (string, error) {
	if ptr == 0 {
		return "", nil
	}
	size := mem.Size()
	if ptr >= size {
		return "", fmt.Errorf("string pointer out of bounds: ptr=%d, size=%d", ptr, size)
	}

	var buf []byte
	for off := ptr; off < size; {
		n := min(uint32(cstringChunk), size-off)
		chunk, err := mem.Read(off, n)
		if err != nil {
			return "", err
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			buf = append(buf, chunk[:i]...)
			return string(buf), nil
		}
		buf = append(buf, chunk...)
		if len(buf) > maxCString {
			return "", fmt.Errorf("string at %d exceeds %d bytes", ptr, maxCString)
		}
		off += n
	}
	return "", fmt.Errorf("unterminated string at %d", ptr)
}

// writeCString stores s followed by NUL at ptr. The block must hold len(s)+1 bytes.
func writeCString(mem wrenruntime.Memory, ptr uint32, s string) error {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return mem.Write(ptr, buf)
}

func readEnvelope(mem wrenruntime.Memory, ptr uint32) (Envelope, error) {
	if ptr == 0 {
		return Envelope{}, fmt.Errorf("nil foreign pointer")
	}
	b, err := mem.Read(ptr, EnvelopeSize)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Context: binary.LittleEndian.Uint32(b[0:4]),
		Tag:     binary.LittleEndian.Uint32(b[4:8]),
		Object:  binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

func writeEnvelope(mem wrenruntime.Memory, ptr uint32, env Envelope) error {
	if ptr == 0 {
		return fmt.Errorf("nil foreign pointer")
	}
	var b [EnvelopeSize]byte
	binary.LittleEndian.PutUint32(b[0:4], env.Context)
	binary.LittleEndian.PutUint32(b[4:8], env.Tag)
	binary.LittleEndian.PutUint32(b[8:12], env.Object)
	return mem.Write(ptr, b[:])
}
