package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/wren-runtime/engine"
	"github.com/wippyai/wren-runtime/wren"
)

// configFile is the name looked up next to the entry script when -config
// is not given.
const configFile = "wren.toml"

// settings is the CLI configuration, read from TOML.
type settings struct {
	// Guest is the path of the Wren guest wasm. WREN_WASM overrides it.
	Guest          string     `toml:"guest"`
	Paths          []string   `toml:"paths"`
	RelativeImport bool       `toml:"relative-import"`
	Heap           heapConfig `toml:"heap"`
	Engine         engineConf `toml:"engine"`

	// Dir is the directory of the file the settings came from.
	Dir string `toml:"-"`
}

type heapConfig struct {
	Initial       uint32 `toml:"initial"`
	Min           uint32 `toml:"min"`
	GrowthPercent int32  `toml:"growth-percent"`
}

type engineConf struct {
	MemoryLimitPages uint32 `toml:"memory-limit-pages"`
}

// loadSettings reads path. A missing file is only an error when required.
func loadSettings(path string, required bool) (*settings, error) {
	s := &settings{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return s, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	s.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if s.Guest != "" && !filepath.IsAbs(s.Guest) {
		s.Guest = filepath.Join(s.Dir, s.Guest)
	}
	for i, p := range s.Paths {
		if !filepath.IsAbs(p) {
			s.Paths[i] = filepath.Join(s.Dir, p)
		}
	}
	return s, nil
}

// guestPath returns the wasm to load: the environment wins over the file.
func (s *settings) guestPath() string {
	if p := os.Getenv("WREN_WASM"); p != "" {
		return p
	}
	return s.Guest
}

// vmOptions translates the settings into VM options. Zero values keep the
// VM defaults.
func (s *settings) vmOptions() []wren.Option {
	var opts []wren.Option
	if s.Heap.Initial > 0 {
		opts = append(opts, wren.WithInitialHeapSize(s.Heap.Initial))
	}
	if s.Heap.Min > 0 {
		opts = append(opts, wren.WithMinHeapSize(s.Heap.Min))
	}
	if s.Heap.GrowthPercent > 0 {
		opts = append(opts, wren.WithHeapGrowthPercent(s.Heap.GrowthPercent))
	}
	if s.RelativeImport {
		opts = append(opts, wren.WithRelativeImport(true))
	}
	return opts
}

func (s *settings) engineConfig() *engine.Config {
	return &engine.Config{
		MemoryLimitPages:   s.Engine.MemoryLimitPages,
		CloseOnContextDone: true,
		Stderr:             os.Stderr,
	}
}
