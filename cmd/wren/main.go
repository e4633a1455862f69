package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wren-runtime/engine"
	"github.com/wippyai/wren-runtime/wren"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to the Wren guest wasm (default $WREN_WASM or the config's guest)")
		configPath  = flag.String("config", "", "Path to a TOML config (default wren.toml next to the script)")
		verbose     = flag.Bool("v", false, "Verbose logging")
		interactive = flag.Bool("i", false, "Interactive mode even when stdin is not a terminal")
	)
	flag.Parse()

	script := flag.Arg(0)
	if flag.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "Usage: wren [-wasm file.wasm] [-config wren.toml] [-v] [script.wren]")
		fmt.Fprintln(os.Stderr, "       wren -i  (interactive mode)")
		os.Exit(2)
	}

	log := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log = l
	}
	defer func() { _ = log.Sync() }()
	engine.SetLogger(log)
	wren.SetLogger(log)

	cfg, err := findSettings(*configPath, script)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *wasmFile != "" {
		cfg.Guest = *wasmFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, log, cfg, script, *interactive); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(70)
	}
}

func findSettings(path, script string) (*settings, error) {
	if path != "" {
		return loadSettings(path, true)
	}
	dir := "."
	if script != "" {
		dir = filepath.Dir(script)
	}
	return loadSettings(filepath.Join(dir, configFile), false)
}

// session is a loaded guest with one VM.
type session struct {
	eng *engine.WazeroEngine
	mod *engine.WazeroModule
	vm  *wren.Wrapper
}

func openSession(ctx context.Context, log *zap.Logger, cfg *settings, printer wren.Printer, dirs []string) (*session, error) {
	wasmPath := cfg.guestPath()
	if wasmPath == "" {
		return nil, fmt.Errorf("no guest wasm: use -wasm, WREN_WASM or guest in %s", configFile)
	}
	data, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("read guest: %w", err)
	}

	eng, err := engine.NewWazeroEngineWithConfig(ctx, cfg.engineConfig())
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	mod, err := eng.LoadGuest(ctx, data)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, fmt.Errorf("load guest: %w", err)
	}

	dirs = append(dirs, cfg.Paths...)
	opts := append(cfg.vmOptions(),
		wren.WithPrinter(printer),
		wren.WithLoader(newDirLoader(log, dirs...)),
		wren.WithLogger(log))

	vm, err := wren.NewRuntime(mod).NewVM(ctx, opts...)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, fmt.Errorf("create VM: %w", err)
	}
	return &session{eng: eng, mod: mod, vm: vm}, nil
}

func (s *session) Close(ctx context.Context) error {
	err := s.vm.Close(ctx)
	if cerr := s.eng.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

func run(ctx context.Context, log *zap.Logger, cfg *settings, script string, interactive bool) error {
	if script == "" && (interactive || term.IsTerminal(int(os.Stdin.Fd()))) {
		return runInteractive(ctx, log, cfg)
	}

	module, dir, source, err := readScript(script)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, log, cfg, wren.StdoutPrinter(), []string{dir})
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	return s.vm.Interpret(ctx, module, source)
}

// readScript reads the entry script, or stdin when path is empty.
func readScript(path string) (module, dir, source string, err error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", "", fmt.Errorf("read stdin: %w", err)
		}
		return "main", ".", string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", "", fmt.Errorf("read script: %w", err)
	}
	return moduleName(path), filepath.Dir(path), string(data), nil
}
