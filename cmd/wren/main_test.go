package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wippyai/wren-runtime/wren"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDirLoader(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, filepath.Join(first, "util.wren"), "first util")
	writeFile(t, filepath.Join(second, "util.wren"), "second util")
	writeFile(t, filepath.Join(second, "lib", "math.wren"), "math")

	l := newDirLoader(zap.NewNop(), first, second)

	tests := []struct {
		name, want string
		ok         bool
	}{
		{"util", "first util", true},
		{"util.wren", "first util", true},
		{"lib/math", "math", true},
		{"missing", "", false},
		{"../util", "", false},
		{"/etc/passwd", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src, ok := l.Load(tc.name)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, src)
		})
	}
}

func TestModuleName(t *testing.T) {
	assert.Equal(t, "game", moduleName("scripts/game.wren"))
	assert.Equal(t, "main", moduleName("main"))
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, configFile)
	writeFile(t, path, `
guest = "build/wren.wasm"
paths = ["lib", "/opt/wren"]
relative-import = true

[heap]
initial = 4194304
growth-percent = 25

[engine]
memory-limit-pages = 1024
`)

	s, err := loadSettings(path, true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "build", "wren.wasm"), s.Guest)
	assert.Equal(t, []string{filepath.Join(dir, "lib"), "/opt/wren"}, s.Paths)
	assert.True(t, s.RelativeImport)
	assert.Equal(t, uint32(4194304), s.Heap.Initial)
	assert.Zero(t, s.Heap.Min)
	assert.Equal(t, int32(25), s.Heap.GrowthPercent)
	assert.Len(t, s.vmOptions(), 3)
	assert.Equal(t, uint32(1024), s.engineConfig().MemoryLimitPages)

	cfg := wren.DefaultConfig()
	for _, opt := range s.vmOptions() {
		opt(&cfg)
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint32(4194304), cfg.InitialHeapSize)
	assert.True(t, cfg.EnableRelativeImport)
}

func TestLoadSettings_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFile)

	s, err := loadSettings(path, false)
	require.NoError(t, err)
	assert.Empty(t, s.vmOptions())

	_, err = loadSettings(path, true)
	assert.Error(t, err)
}

func TestLoadSettings_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFile)
	writeFile(t, path, "heap = [")

	_, err := loadSettings(path, true)
	assert.ErrorContains(t, err, "parse error")
}

func TestGuestPath(t *testing.T) {
	s := &settings{Guest: "from-config.wasm"}

	t.Setenv("WREN_WASM", "")
	assert.Equal(t, "from-config.wasm", s.guestPath())

	t.Setenv("WREN_WASM", "from-env.wasm")
	assert.Equal(t, "from-env.wasm", s.guestPath())
}

func TestOutputBuffer(t *testing.T) {
	var o outputBuffer
	var p wren.Printer = &o
	p.Print("a")
	p.Print("\n")
	assert.Equal(t, "a\n", o.take())
	assert.Empty(t, o.take())
}
