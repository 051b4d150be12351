// Package loader turns files and URIs into model.Source values.
//
// Load is total: any failure is logged and an explicit empty source is
// returned, so a bad file never aborts a comparison. LoadE exposes the
// underlying coded error for callers that want it.
package loader

import (
	"context"
	"errors"
	"io/fs"
	"runtime"
	"strings"
	"sync"

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

// Options configures a Loader.
type Options struct {
	// Parallelism bounds LoadAll. Zero means GOMAXPROCS.
	Parallelism int

	// CacheSize is the number of sources kept in memory. Zero disables it.
	CacheSize int

	// SQLDSN is the DuckDB database sql:// URIs run against. Empty means
	// a private in-memory database.
	SQLDSN string

	S3 S3Config
}

// ProgressFunc is called after each source finishes loading.
type ProgressFunc func(done, total int, uri string)

// Loader loads sources. It is safe for concurrent use.
type Loader struct {
	opts   Options
	logger *zap.Logger
	tracer trace.Tracer
	cache  *Cache

	mu  sync.Mutex
	sql *SQLEngine
	s3  *S3Fetcher
}

// New creates a loader. A nil logger discards output.
func New(opts Options, logger *zap.Logger) *Loader {
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}
	return &Loader{
		opts:   opts,
		logger: logging.OrNop(logger),
		tracer: otel.Tracer("github.com/docdiff/docdiff/pkg/loader"),
		cache:  NewCache(opts.CacheSize),
	}
}

// Close releases the shared SQL engine, if one was opened.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sql != nil {
		err := l.sql.Close()
		l.sql = nil
		return err
	}
	return nil
}

// SQL returns the engine bound to Options.SQLDSN, opening it on first use.
func (l *Loader) SQL() (*SQLEngine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sql == nil {
		e, err := OpenSQL(l.opts.SQLDSN)
		if err != nil {
			return nil, err
		}
		l.sql = e
	}
	return l.sql, nil
}

func (l *Loader) s3Fetcher(ctx context.Context) (*S3Fetcher, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.s3 == nil {
		f, err := NewS3Fetcher(ctx, l.opts.S3)
		if err != nil {
			return nil, err
		}
		l.s3 = f
	}
	return l.s3, nil
}

// Load loads uri, returning an empty tabular source on any failure.
func (l *Loader) Load(ctx context.Context, uri string) *model.Source {
	src, err := l.LoadE(ctx, uri)
	if err != nil {
		l.logger.Warn("failed to load source",
			zap.String("path", uri),
			zap.String("format", DetectFormat(uri).String()),
			zap.Error(err))
		return model.Empty(uri)
	}
	return src
}

// LoadE loads uri and reports failures as coded errors: UnsupportedFormat,
// IOFailed, ParseFailed or Canceled.
func (l *Loader) LoadE(ctx context.Context, uri string) (*model.Source, error) {
	ctx, span := l.tracer.Start(ctx, "loader.Load",
		trace.WithAttributes(attribute.String("docdiff.uri", uri)))
	defer span.End()

	src, err := l.load(ctx, uri)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("docdiff.kind", src.Kind.String()),
		attribute.Int("docdiff.rows", src.Shape().Rows),
	)
	return src, nil
}

var testHookDecoded = func(uri string) {}

func (l *Loader) load(ctx context.Context, uri string) (*model.Source, error) {
	if strings.HasPrefix(uri, "s3://") {
		return l.loadS3(ctx, uri)
	}

	format := DetectFormat(uri)
	if format == FormatUnknown {
		return nil, derrors.UnsupportedFormat(uri)
	}

	key := l.cache.Key(uri)
	if src, ok := l.cache.Get(key); ok {
		l.logger.Debug("source cache hit", zap.String("path", uri))
		return src, nil
	}

	src, err := l.decode(ctx, format, uri)
	testHookDecoded(uri)
	if err != nil {
		return nil, classify(ctx, format, uri, err)
	}
	src.Name = uri
	l.cache.Put(key, src)
	return src, nil
}

func (l *Loader) loadS3(ctx context.Context, uri string) (*model.Source, error) {
	_, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, derrors.IOFailed(uri, err)
	}
	format := DetectFormat(key)
	if format == FormatUnknown || format == FormatSQLQuery || format == FormatDuckDB {
		return nil, derrors.UnsupportedFormat(uri)
	}

	fetcher, err := l.s3Fetcher(ctx)
	if err != nil {
		return nil, derrors.IOFailed(uri, err)
	}
	local, cleanup, err := fetcher.Fetch(ctx, uri)
	if err != nil {
		return nil, derrors.IOFailed(uri, err)
	}
	defer cleanup()

	src, err := l.decode(ctx, format, local)
	if err != nil {
		return nil, classify(ctx, format, uri, err)
	}
	src.Name = uri
	return src, nil
}

func (l *Loader) decode(ctx context.Context, format Format, uri string) (*model.Source, error) {
	switch format {
	case FormatCSV, FormatTSV:
		return readDelimitedFile(ctx, uri, format)
	case FormatXLSX:
		return readXLSX(ctx, uri)
	case FormatPDF:
		return readPDF(ctx, uri)
	case FormatDOCX:
		return readDOCX(ctx, uri)
	case FormatText:
		return readPlain(ctx, uri)
	case FormatSQL:
		return readSQLScript(ctx, uri)
	case FormatParquet:
		return readParquet(ctx, uri)
	case FormatDuckDB:
		return readDuckDBURI(ctx, uri)
	case FormatSQLQuery:
		e, err := l.SQL()
		if err != nil {
			return nil, err
		}
		return querySource(ctx, e, uri)
	default:
		return nil, derrors.UnsupportedFormat(uri)
	}
}

func readDelimitedFile(ctx context.Context, path string, format Format) (*model.Source, error) {
	r, cleanup, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var delim rune
	if format == FormatTSV {
		delim = '\t'
	}
	columns, rows, err := readDelimited(ctx, r, delim)
	if err != nil {
		return nil, err
	}
	return model.FromTable(path, columns, rows), nil
}

// classify maps a raw decode failure onto the loader's error codes.
func classify(ctx context.Context, format Format, uri string, err error) error {
	var coded *derrors.Error
	if errors.As(err, &coded) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return derrors.Canceled("load "+uri, err)
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return derrors.IOFailed(uri, err)
	}
	return derrors.ParseFailed(format.String(), uri, err)
}

// LoadAll loads uris concurrently and returns sources in input order. Like
// Load it never fails per source; it only stops early when ctx is done, in
// which case the remaining slots hold empty sources.
func (l *Loader) LoadAll(ctx context.Context, uris []string, progress ProgressFunc) []*model.Source {
	out := make([]*model.Source, len(uris))

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Parallelism)
	for i, uri := range uris {
		g.Go(func() error {
			if gctx.Err() != nil {
				out[i] = model.Empty(uri)
				return nil
			}
			out[i] = l.Load(gctx, uri)

			if progress != nil {
				mu.Lock()
				done++
				progress(done, len(uris), uri)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// SupportedExtensions lists the file extensions Load understands.
func SupportedExtensions() []string {
	return []string{
		".csv", ".tsv", ".tab", ".xlsx", ".xlsm", ".pdf", ".docx",
		".txt", ".md", ".sql", ".parquet",
	}
}
