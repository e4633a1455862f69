package wren

import (
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/wippyai/wren-runtime/errors"
)

// Default heap settings, matching Wren's own defaults.
const (
	DefaultInitialHeapSize   = 10 * 1024 * 1024
	DefaultMinHeapSize       = 1024 * 1024
	DefaultHeapGrowthPercent = 50
)

// Printer receives the text scripts write with System.print and friends.
// Text arrives exactly as Wren writes it; newlines are separate writes.
type Printer interface {
	Print(text string)
}

// PrinterFunc adapts a function to Printer.
type PrinterFunc func(text string)

// Print calls f(text).
func (f PrinterFunc) Print(text string) { f(text) }

// WriterPrinter writes script output to w.
func WriterPrinter(w io.Writer) Printer {
	return PrinterFunc(func(text string) {
		_, _ = io.WriteString(w, text)
	})
}

// StdoutPrinter writes script output to standard output.
func StdoutPrinter() Printer {
	return WriterPrinter(os.Stdout)
}

// NullPrinter discards script output.
func NullPrinter() Printer {
	return PrinterFunc(func(string) {})
}

// Loader returns the source of an imported module, or false if there is none.
type Loader interface {
	Load(name string) (string, bool)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(name string) (string, bool)

// Load calls f(name).
func (f LoaderFunc) Load(name string) (string, bool) { return f(name) }

// NullLoader finds no modules.
func NullLoader() Loader {
	return LoaderFunc(func(string) (string, bool) { return "", false })
}

// MapLoader serves module sources from a map.
func MapLoader(sources map[string]string) Loader {
	return LoaderFunc(func(name string) (string, bool) {
		src, ok := sources[name]
		return src, ok
	})
}

// Config holds the settings a VM is built with.
type Config struct {
	Printer              Printer        `validate:"required"`
	Loader               Loader         `validate:"required"`
	Library              *ModuleLibrary `validate:"required"`
	Logger               *zap.Logger    `validate:"required"`
	InitialHeapSize      uint32         `validate:"gt=0"`
	MinHeapSize          uint32         `validate:"gt=0"`
	HeapGrowthPercent    int32          `validate:"gt=0"`
	EnableRelativeImport bool
}

// DefaultConfig returns the configuration used when no options are given.
func DefaultConfig() Config {
	return Config{
		Printer:           NullPrinter(),
		Loader:            NullLoader(),
		Library:           NewModuleLibrary(),
		Logger:            Logger(),
		InitialHeapSize:   DefaultInitialHeapSize,
		MinHeapSize:       DefaultMinHeapSize,
		HeapGrowthPercent: DefaultHeapGrowthPercent,
	}
}

var validate = validator.New()

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid VM configuration")
	}
	return nil
}

// Option configures a VM.
type Option func(*Config)

// WithPrinter sets the sink for script output.
func WithPrinter(p Printer) Option {
	return func(c *Config) { c.Printer = p }
}

// WithLoader sets the module loader used by import statements.
func WithLoader(l Loader) Option {
	return func(c *Config) { c.Loader = l }
}

// WithLibrary sets the foreign class library.
func WithLibrary(lib *ModuleLibrary) Option {
	return func(c *Config) { c.Library = lib }
}

// WithInitialHeapSize sets the bytes Wren allocates before its first collection.
func WithInitialHeapSize(n uint32) Option {
	return func(c *Config) { c.InitialHeapSize = n }
}

// WithMinHeapSize sets the heap size Wren never shrinks below.
func WithMinHeapSize(n uint32) Option {
	return func(c *Config) { c.MinHeapSize = n }
}

// WithHeapGrowthPercent sets how much the heap may grow past live memory
// before the next collection.
func WithHeapGrowthPercent(p int32) Option {
	return func(c *Config) { c.HeapGrowthPercent = p }
}

// WithRelativeImport enables resolution of "@name" imports relative to the
// importing module.
func WithRelativeImport(enabled bool) Option {
	return func(c *Config) { c.EnableRelativeImport = enabled }
}

// WithLogger sets the VM's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func (c *Config) String() string {
	return fmt.Sprintf("heap=%d min=%d growth=%d%% relative=%t",
		c.InitialHeapSize, c.MinHeapSize, c.HeapGrowthPercent, c.EnableRelativeImport)
}
