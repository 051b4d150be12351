// Package compare implements the all-pairs comparison of loaded sources.
//
// Given N sources the engine returns a Summary when N == 1 and a Report with
// N(N-1)/2 pair results when N >= 2, enumerated as (1,2), (1,3), ..., (N-1,N).
// Pair failures are reported inline and never abort the report.
package compare

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docdiff/docdiff/internal/model"
	derrors "github.com/docdiff/docdiff/pkg/errors"
	"github.com/docdiff/docdiff/pkg/logging"
)

// DefaultPreviewRows is the number of rows shown in a single-source summary.
const DefaultPreviewRows = 5

// Engine compares sources. The zero value is not usable; call New.
type Engine struct {
	previewRows int
	workers     int
	logger      *zap.Logger
	tracer      trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithPreviewRows sets how many rows a single-source summary shows.
func WithPreviewRows(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.previewRows = n
		}
	}
}

// WithWorkers bounds how many pairs are compared concurrently. The default
// of 1 compares pairs in order on the calling goroutine.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logging.OrNop(l)
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		previewRows: DefaultPreviewRows,
		workers:     1,
		logger:      zap.NewNop(),
		tracer:      otel.Tracer("github.com/docdiff/docdiff/pkg/compare"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compare compares every pair of sources. Zero sources is an
// InsufficientSources error; one source yields a Summary. The sources are
// only read.
func (e *Engine) Compare(ctx context.Context, sources []*model.Source) (*Result, error) {
	_, span := e.tracer.Start(ctx, "compare.Compare",
		trace.WithAttributes(attribute.Int("docdiff.sources", len(sources))))
	defer span.End()

	switch len(sources) {
	case 0:
		err := derrors.InsufficientSources(0, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	case 1:
		if sources[0] == nil {
			return nil, derrors.InsufficientSources(0, 1)
		}
		return &Result{Summary: &Summary{Source: sources[0], PreviewRows: e.previewRows}}, nil
	}

	report := e.compareAll(sources)
	span.SetAttributes(attribute.Int("docdiff.pairs", len(report.Pairs)))
	return &Result{Report: report}, nil
}

// compareAll never fails: pair problems are recorded inline, and once the
// pairs are enumerated the work runs to completion regardless of ctx.
func (e *Engine) compareAll(sources []*model.Source) *Report {
	n := len(sources)
	type job struct{ i, j, slot int }

	jobs := make([]job, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			jobs = append(jobs, job{i: i, j: j, slot: len(jobs)})
		}
	}

	report := &Report{Sources: n, Pairs: make([]PairResult, len(jobs))}
	start := time.Now()

	run := func(jb job) {
		res := comparePair(sources[jb.i], sources[jb.j], jb.i+1, jb.j+1)
		if res.Outcome == Failed {
			e.logger.Warn("pair comparison failed",
				zap.Int("left", res.Left),
				zap.Int("right", res.Right),
				zap.Error(res.Err))
		}
		report.Pairs[jb.slot] = res
	}

	if e.workers <= 1 || len(jobs) < 2 {
		for _, jb := range jobs {
			run(jb)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(e.workers)
		for _, jb := range jobs {
			g.Go(func() error {
				run(jb)
				return nil
			})
		}
		g.Wait()
	}

	e.logger.Debug("comparison finished",
		zap.Int("sources", n),
		zap.Int("pairs", len(jobs)),
		zap.Int("workers", e.workers),
		zap.Duration("elapsed", time.Since(start)))
	return report
}

// ComparePair compares two sources directly, labelling them i and j.
func (e *Engine) ComparePair(left, right *model.Source, i, j int) PairResult {
	return comparePair(left, right, i, j)
}

var defaultEngine = New()

// Compare runs the default engine without a deadline.
func Compare(sources []*model.Source) (*Result, error) {
	return defaultEngine.Compare(context.Background(), sources)
}

// Render compares sources and returns the rendered result.
func Render(sources []*model.Source) (string, error) {
	res, err := Compare(sources)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}
