// Package transform rewrites a dataset into a new one: shape conversions
// and label remapping. Items are processed on a bounded worker pool and
// come out in their original order.
package transform

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/model-collapse/annoconv/dataset"
	"github.com/model-collapse/annoconv/dserrors"
	"github.com/model-collapse/annoconv/logger"
)

// ItemFunc rewrites one item in place. The item is a private clone.
type ItemFunc func(it *dataset.Item) error

// Transform is one dataset-to-dataset step.
type Transform interface {
	Name() string
	// Prepare returns the output label registry and the per-item rewrite.
	// It runs once per Apply, before any item is touched.
	Prepare(src *dataset.Categories) (*dataset.Categories, ItemFunc, error)
}

var byName = map[string]func() Transform{
	"polygons_to_masks": PolygonsToMasks,
	"boxes_to_masks":    BoxesToMasks,
	"shapes_to_boxes":   ShapesToBoxes,
}

// ByName returns the parameterless transform called name.
func ByName(name string) (Transform, error) {
	if f, ok := byName[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown transform %q", name)
}

type config struct {
	workers int
}

// Option tunes Apply.
type Option func(*config)

// WithWorkers bounds the number of items processed at once. n < 1 means
// runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

type job struct {
	idx int
	it  *dataset.Item
}

// Apply runs ts in sequence on every item of ds and builds the result.
// The first failing item, in item order, decides the returned error.
func Apply(ctx context.Context, ds *dataset.Dataset, ts []Transform, opts ...Option) (*dataset.Dataset, error) {
	cfg := config{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = runtime.NumCPU()
	}

	cats := ds.Categories()
	funcs := make([]ItemFunc, 0, len(ts))
	names := make([]string, 0, len(ts))
	for _, t := range ts {
		next, f, err := t.Prepare(cats)
		if err != nil {
			return nil, err
		}
		cats = next
		funcs = append(funcs, f)
		names = append(names, t.Name())
	}

	start := time.Now()
	items := ds.Items()
	out := make([]*dataset.Item, len(items))
	errs := make([]error, len(items))

	ch := make(chan job, cfg.workers)
	go func() {
		defer close(ch)
		for i, it := range items {
			select {
			case ch <- job{idx: i, it: it}:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg := sync.WaitGroup{}
	wg.Add(cfg.workers)
	for i := 0; i < cfg.workers; i++ {
		go func() {
			defer wg.Done()
			for j := range ch {
				it := j.it.Clone()
				for _, f := range funcs {
					if err := f(it); err != nil {
						errs[j.idx] = err
						break
					}
				}
				out[j.idx] = it
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err == nil {
			continue
		}
		if e, ok := dserrors.As(err); ok {
			return nil, e.WithItem(items[i].ID, items[i].Subset)
		}
		return nil, err
	}

	logger.L().Debug("applied transforms",
		zap.Strings("transforms", names),
		zap.Int("items", len(out)),
		zap.Int("workers", cfg.workers),
		zap.Duration("took", time.Since(start)))
	return dataset.FromIterable(out, cats)
}
