package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/docdiff/docdiff/internal/model"
	"github.com/docdiff/docdiff/pkg/compare"
	"github.com/docdiff/docdiff/pkg/logging"
)

// SourceLoader loads one source; *loader.Loader satisfies it.
type SourceLoader interface {
	LoadE(ctx context.Context, uri string) (*model.Source, error)
}

// Recomparer keeps a set of loaded sources and reruns the comparison each
// time one of them changes.
type Recomparer struct {
	loader SourceLoader
	engine *compare.Engine
	logger *zap.Logger

	// OnResult receives every comparison, including the initial one.
	OnResult func(changed string, result *compare.Result)

	mu      sync.Mutex
	paths   []string
	index   map[string][]int
	sources []*model.Source
}

// NewRecomparer creates a recomparer over paths. Nothing is loaded until
// Start.
func NewRecomparer(paths []string, l SourceLoader, engine *compare.Engine, logger *zap.Logger) *Recomparer {
	if engine == nil {
		engine = compare.New(compare.WithLogger(logger))
	}
	r := &Recomparer{
		loader:  l,
		engine:  engine,
		logger:  logging.OrNop(logger),
		index:   make(map[string][]int, len(paths)),
		sources: make([]*model.Source, len(paths)),
	}
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		r.paths = append(r.paths, abs)
		r.index[abs] = append(r.index[abs], i)
	}
	return r
}

// Start loads every source and reports the first comparison.
func (r *Recomparer) Start(ctx context.Context) error {
	r.mu.Lock()
	for i, p := range r.paths {
		src, err := r.loader.LoadE(ctx, p)
		if err != nil {
			r.mu.Unlock()
			return err
		}
		r.sources[i] = src
	}
	r.mu.Unlock()

	return r.compare(ctx, "")
}

// Reload reloads the changed file and reruns the comparison. It is the
// Watcher's OnChange callback. A failed reload keeps the previous version.
// A file given more than once updates every position it holds.
func (r *Recomparer) Reload(ctx context.Context, path string) error {
	r.mu.Lock()
	positions, ok := r.index[path]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("not a watched source: %s", path)
	}

	src, err := r.loader.LoadE(ctx, path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	for _, i := range positions {
		r.sources[i] = src
	}
	r.mu.Unlock()

	r.logger.Info("source changed", zap.String("path", path), zap.Ints("positions", positions))
	return r.compare(ctx, path)
}

func (r *Recomparer) compare(ctx context.Context, changed string) error {
	r.mu.Lock()
	sources := append([]*model.Source(nil), r.sources...)
	r.mu.Unlock()

	result, err := r.engine.Compare(ctx, sources)
	if err != nil {
		return err
	}
	if r.OnResult != nil {
		r.OnResult(changed, result)
	}
	return nil
}

// Watch wires a Watcher to the recomparer and blocks until ctx is done.
func (r *Recomparer) Watch(ctx context.Context, w *Watcher) error {
	for _, p := range r.paths {
		if err := w.Watch(p); err != nil {
			return err
		}
	}
	w.OnChange = func(path string) error {
		return r.Reload(ctx, path)
	}
	if w.OnError == nil {
		w.OnError = func(path string, err error) {
			r.logger.Warn("reload failed", zap.String("path", path), zap.Error(err))
		}
	}
	return w.Run(ctx)
}
