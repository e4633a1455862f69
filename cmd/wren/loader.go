package main

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wren-runtime/wren"
)

// dirLoader resolves imports to .wren files, trying each directory in order.
type dirLoader struct {
	dirs []string
	log  *zap.Logger
}

var _ wren.Loader = (*dirLoader)(nil)

func newDirLoader(log *zap.Logger, dirs ...string) *dirLoader {
	return &dirLoader{dirs: dirs, log: log}
}

// Load reads name.wren. Names are slash-separated and may not leave the
// search directories.
func (l *dirLoader) Load(name string) (string, bool) {
	rel, ok := modulePath(name)
	if !ok {
		l.log.Debug("rejected module name", zap.String("module", name))
		return "", false
	}
	for _, dir := range l.dirs {
		path := filepath.Join(dir, rel)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		l.log.Debug("loaded module", zap.String("module", name), zap.String("path", path))
		return string(data), true
	}
	return "", false
}

func modulePath(name string) (string, bool) {
	if name == "" || strings.HasPrefix(name, "/") {
		return "", false
	}
	rel := filepath.FromSlash(name)
	if !filepath.IsLocal(rel) {
		return "", false
	}
	if filepath.Ext(rel) != ".wren" {
		rel += ".wren"
	}
	return rel, true
}

// moduleName names the entry script's module after its file.
func moduleName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".wren")
}
