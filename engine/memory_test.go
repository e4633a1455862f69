package engine

import (
	"encoding/binary"
	"fmt"
	"strings"
	"testing"
)

// sliceMemory is a wrenruntime.Memory over a byte slice.
type sliceMemory struct {
	buf []byte
}

func newSliceMemory(size int) *sliceMemory {
	return &sliceMemory{buf: make([]byte, size)}
}

func (m *sliceMemory) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(m.buf)) {
		return fmt.Errorf("memory access out of bounds: offset=%d, length=%d", offset, length)
	}
	return nil
}

func (m *sliceMemory) Read(offset, length uint32) ([]byte, error) {
	if err := m.check(offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, m.buf[offset:])
	return out, nil
}

func (m *sliceMemory) Write(offset uint32, data []byte) error {
	if err := m.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(m.buf[offset:], data)
	return nil
}

func (m *sliceMemory) ReadU8(offset uint32) (uint8, error) {
	if err := m.check(offset, 1); err != nil {
		return 0, err
	}
	return m.buf[offset], nil
}

func (m *sliceMemory) ReadU32(offset uint32) (uint32, error) {
	if err := m.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.buf[offset:]), nil
}

func (m *sliceMemory) WriteU8(offset uint32, v uint8) error {
	if err := m.check(offset, 1); err != nil {
		return err
	}
	m.buf[offset] = v
	return nil
}

func (m *sliceMemory) WriteU32(offset uint32, v uint32) error {
	if err := m.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.buf[offset:], v)
	return nil
}

func (m *sliceMemory) Size() uint32 {
	return uint32(len(m.buf))
}

func TestReadCString(t *testing.T) {
	mem := newSliceMemory(1024)

	if err := writeCString(mem, 16, "hello"); err != nil {
		t.Fatal(err)
	}
	s, err := readCString(mem, 16)
	if err != nil || s != "hello" {
		t.Fatalf("readCString = %q, %v", s, err)
	}

	s, err = readCString(mem, 0)
	if err != nil || s != "" {
		t.Fatalf("nil pointer should read as empty, got %q, %v", s, err)
	}
}

func TestReadCString_SpansChunks(t *testing.T) {
	mem := newSliceMemory(4096)
	long := strings.Repeat("wren", 300)

	if err := writeCString(mem, 100, long); err != nil {
		t.Fatal(err)
	}
	s, err := readCString(mem, 100)
	if err != nil {
		t.Fatal(err)
	}
	if s != long {
		t.Fatalf("expected %d bytes, got %d", len(long), len(s))
	}
}

func TestReadCString_Unterminated(t *testing.T) {
	mem := newSliceMemory(64)
	for i := range mem.buf {
		mem.buf[i] = 'x'
	}
	if _, err := readCString(mem, 10); err == nil {
		t.Fatal("expected error for unterminated string")
	}
	if _, err := readCString(mem, 64); err == nil {
		t.Fatal("expected error for out of bounds pointer")
	}
}

func TestEnvelope(t *testing.T) {
	mem := newSliceMemory(64)
	env := Envelope{Context: 3, Tag: 7, Object: 11}

	if err := writeEnvelope(mem, 8, env); err != nil {
		t.Fatal(err)
	}
	got, err := readEnvelope(mem, 8)
	if err != nil {
		t.Fatal(err)
	}
	if got != env {
		t.Fatalf("readEnvelope = %+v, want %+v", got, env)
	}

	if v, _ := mem.ReadU32(16); v != 11 {
		t.Fatalf("object handle should be the third little-endian word, got %d", v)
	}

	if _, err := readEnvelope(mem, 0); err == nil {
		t.Fatal("expected error for nil pointer")
	}
	if err := writeEnvelope(mem, 60, env); err == nil {
		t.Fatal("expected error writing past the end")
	}
}
