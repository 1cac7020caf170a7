// Package format defines the import/export contract every annotation format
// implements and the registry that maps format names to adapters.
//
// Format packages register themselves from init; blank-import
// format/all to get every built-in format:
//
//	import _ "github.com/model-collapse/annoconv/format/all"
//
//	ds, err := format.Import("coco_roboflow", "/data/export", format.ImportOptions{})
package format

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/model-collapse/annoconv/dataset"
	"github.com/model-collapse/annoconv/dserrors"
	"github.com/model-collapse/annoconv/logger"
)

// ImportOptions tunes an import.
type ImportOptions struct {
	// Subsets restricts the import to the named subsets. Empty means all.
	Subsets []string
}

// WantSubset reports whether subset passes the Subsets filter.
func (o ImportOptions) WantSubset(subset string) bool {
	if len(o.Subsets) == 0 {
		return true
	}
	for _, s := range o.Subsets {
		if s == subset {
			return true
		}
	}
	return false
}

// ExportOptions tunes an export.
type ExportOptions struct {
	// Lossy downgrades or drops what the target cannot encode instead of
	// failing with UNREPRESENTABLE_ANNOTATION.
	Lossy bool
	// SaveMedia copies (or encodes) item images next to the annotations.
	SaveMedia bool
}

// Adapter translates between one on-disk layout and a Dataset.
type Adapter interface {
	Name() string
	// Detect returns nil when path looks like this format and an
	// UNSUPPORTED_FORMAT error otherwise.
	Detect(path string) error
	Import(path string, opts ImportOptions) (*dataset.Dataset, error)
	Export(ds *dataset.Dataset, path string, opts ExportOptions) error
}

var (
	mu       sync.RWMutex
	adapters = make(map[string]Adapter)
)

// Register makes an adapter available by name. It panics on a duplicate
// name; call it from init.
func Register(a Adapter) {
	mu.Lock()
	defer mu.Unlock()

	name := a.Name()
	if _, dup := adapters[name]; dup {
		panic(fmt.Sprintf("format: Register called twice for %q", name))
	}
	adapters[name] = a
}

// Get returns the adapter registered under name.
func Get(name string) (Adapter, error) {
	mu.RLock()
	a, ok := adapters[name]
	mu.RUnlock()
	if !ok {
		return nil, dserrors.UnsupportedFormat(fmt.Sprintf("unknown format %q", name)).
			WithFormat(name)
	}
	return a, nil
}

// Names lists registered formats in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(adapters))
	for n := range adapters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Detect returns the names of every format whose signature path matches.
func Detect(path string) []string {
	var out []string
	for _, n := range Names() {
		a, err := Get(n)
		if err != nil {
			continue
		}
		if err := a.Detect(path); err == nil {
			out = append(out, n)
		}
	}
	logger.L().Debug("detected formats", zap.String("path", path), zap.Strings("formats", out))
	return out
}

// Import reads path with the named adapter.
func Import(name, path string, opts ImportOptions) (*dataset.Dataset, error) {
	a, err := Get(name)
	if err != nil {
		return nil, err
	}

	log := logger.ForFormat(name)
	start := time.Now()
	ds, err := a.Import(path, opts)
	if err != nil {
		log.Debug("import failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	log.Info("imported dataset",
		zap.String("path", path),
		zap.Int("items", ds.Len()),
		zap.Int("annotations", ds.AnnotationCount()),
		zap.Int("categories", ds.Categories().Len()),
		zap.Duration("took", time.Since(start)),
	)
	return ds, nil
}

// Export writes ds to path with the named adapter.
func Export(name string, ds *dataset.Dataset, path string, opts ExportOptions) error {
	a, err := Get(name)
	if err != nil {
		return err
	}

	log := logger.ForFormat(name)
	start := time.Now()
	if err := a.Export(ds, path, opts); err != nil {
		log.Debug("export failed", zap.String("path", path), zap.Error(err))
		return err
	}
	log.Info("exported dataset",
		zap.String("path", path),
		zap.Int("items", ds.Len()),
		zap.Bool("lossy", opts.Lossy),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// Convert imports src in one format and exports it to dst in another.
func Convert(from, src, to, dst string, iopts ImportOptions, eopts ExportOptions) (*dataset.Dataset, error) {
	ds, err := Import(from, src, iopts)
	if err != nil {
		return nil, err
	}
	if err := Export(to, ds, dst, eopts); err != nil {
		return nil, err
	}
	return ds, nil
}
