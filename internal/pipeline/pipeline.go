// Package pipeline runs the namespace rewrite over one batch of generated
// assets. Failures of single assets become diagnostics; the batch itself
// never fails because of them.
package pipeline

import (
	"context"
	"fmt"
	"path"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/fluxbase-eu/jsonpns/internal/asset"
	"github.com/fluxbase-eu/jsonpns/internal/astrewrite"
	"github.com/fluxbase-eu/jsonpns/internal/cache"
	"github.com/fluxbase-eu/jsonpns/internal/diagnostics"
	"github.com/fluxbase-eu/jsonpns/internal/nspath"
	"github.com/fluxbase-eu/jsonpns/internal/observability"
	"github.com/fluxbase-eu/jsonpns/internal/template"
)

// ChunkLoadingJSONP is the chunk loading strategy the stage is enabled for
const ChunkLoadingJSONP = "jsonp"

// DefaultInclude selects the assets processed when no include pattern is given
var DefaultInclude = []string{"*.js", "*.mjs", "*.cjs"}

// Options configures a Stage
type Options struct {
	Global       string
	ChunkLoading string
	Engine       asset.Engine
	Roots        []string
	Marker       string
	LoaderNames  []string
	Include      []string
	Concurrency  int
	Verify       bool
	Shapes       []template.Shape

	// CacheSize <= 0 uses cache.DefaultSize
	CacheSize    int
	DisableCache bool
}

// Option customizes a Stage
type Option func(*Stage)

// WithMetrics records batch and asset metrics on m
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Stage) { s.metrics = m }
}

// WithTracer creates batch and asset spans on t
func WithTracer(t *observability.Tracer) Option {
	return func(s *Stage) { s.tracer = t }
}

// Stats summarizes one batch
type Stats struct {
	Total     int           `json:"total" yaml:"total"`
	Changed   int           `json:"changed" yaml:"changed"`
	Unchanged int           `json:"unchanged" yaml:"unchanged"`
	Cached    int           `json:"cached" yaml:"cached"`
	Failed    int           `json:"failed" yaml:"failed"`
	Skipped   int           `json:"skipped" yaml:"skipped"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Output is the result of one batch. Assets and Results are in input order.
type Output struct {
	BatchID     string                   `json:"batch_id" yaml:"batch_id"`
	Assets      []asset.Asset            `json:"-" yaml:"-"`
	Results     []asset.Result           `json:"results" yaml:"results"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics" yaml:"diagnostics"`
	Stats       Stats                    `json:"stats" yaml:"stats"`
}

// Err combines all diagnostics of the batch, or returns nil
func (o *Output) Err() error {
	if len(o.Diagnostics) == 0 {
		return nil
	}
	var c diagnostics.Collector
	for _, d := range o.Diagnostics {
		c.Add(d.File, d.Err)
	}
	return c.Err()
}

// Stage is safe for concurrent use. Batches share the asset cache.
type Stage struct {
	opts     Options
	enabled  bool
	engine   asset.Engine
	include  []glob.Glob
	quoted   []string
	template *template.Rewriter
	ast      *astrewrite.Rewriter
	cache    *cache.Cache
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// New validates opts and builds a Stage
func New(opts Options, options ...Option) (*Stage, error) {
	engine, err := asset.ParseEngine(string(opts.Engine))
	if err != nil {
		return nil, err
	}
	if opts.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency must not be negative, got: %d", opts.Concurrency)
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	if len(opts.Roots) == 0 {
		opts.Roots = nspath.DefaultRoots
	}
	if opts.Marker == "" {
		opts.Marker = template.DefaultMarker
	}
	if len(opts.LoaderNames) == 0 {
		opts.LoaderNames = astrewrite.DefaultLoaderNames
	}
	if len(opts.Include) == 0 {
		opts.Include = DefaultInclude
	}

	s := &Stage{
		opts:    opts,
		enabled: strings.EqualFold(opts.ChunkLoading, ChunkLoadingJSONP),
		engine:  engine,
		tracer:  observability.NewNoopTracer(),
	}

	for _, pattern := range opts.Include {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
		s.include = append(s.include, g)
	}

	shapes := template.Table()
	if len(opts.Shapes) > 0 {
		shapes = append(shapes, opts.Shapes...)
	}
	s.template, err = template.New(template.Options{
		Name:   opts.Global,
		Roots:  opts.Roots,
		Marker: opts.Marker,
		Shapes: shapes,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid global %q: %w", opts.Global, err)
	}
	s.ast, err = astrewrite.New(astrewrite.Options{
		Name:        opts.Global,
		Roots:       opts.Roots,
		LoaderNames: opts.LoaderNames,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid global %q: %w", opts.Global, err)
	}
	s.quoted = []string{strconv.Quote(opts.Global), "'" + opts.Global + "'"}

	if !opts.DisableCache {
		s.cache, err = cache.New(opts.CacheSize, s.salt(shapes))
		if err != nil {
			return nil, err
		}
	}

	for _, o := range options {
		o(s)
	}
	if s.tracer == nil {
		s.tracer = observability.NewNoopTracer()
	}
	return s, nil
}

// salt describes everything besides the asset content that changes a rewrite
func (s *Stage) salt(shapes []template.Shape) string {
	ids := make([]string, 0, len(shapes))
	for _, sh := range shapes {
		ids = append(ids, sh.ID()+"="+sh.Pattern)
	}
	return strings.Join([]string{
		string(s.engine),
		strings.Join(s.opts.Roots, ","),
		s.opts.Global,
		s.opts.Marker,
		strings.Join(s.opts.LoaderNames, ","),
		strings.Join(ids, ","),
		strconv.FormatBool(s.opts.Verify),
	}, "|")
}

// Enabled reports whether the configured chunk loading strategy is JSONP
func (s *Stage) Enabled() bool {
	return s.enabled
}

// Global returns the configured chunk-loading global
func (s *Stage) Global() string {
	return s.opts.Global
}

// Engine returns the configured engine
func (s *Stage) Engine() asset.Engine {
	return s.engine
}

// Cache returns the asset cache, or nil when caching is disabled
func (s *Stage) Cache() *cache.Cache {
	return s.cache
}

// Includes reports whether name is selected by the include patterns. Patterns
// match the full slash-separated name or its base name.
func (s *Stage) Includes(name string) bool {
	base := path.Base(name)
	for _, g := range s.include {
		if g.Match(name) || g.Match(base) {
			return true
		}
	}
	return false
}

// ProcessAssets rewrites one batch. Per-asset failures are reported in
// Output.Diagnostics and leave that asset untouched. The returned error is
// only set when ctx is cancelled; assets not processed by then are returned
// unchanged.
func (s *Stage) ProcessAssets(ctx context.Context, assets []asset.Asset) (*Output, error) {
	start := time.Now()
	out := &Output{
		BatchID:     uuid.New().String(),
		Assets:      make([]asset.Asset, len(assets)),
		Results:     make([]asset.Result, len(assets)),
		Diagnostics: []diagnostics.Diagnostic{},
	}
	copy(out.Assets, assets)
	for i, a := range assets {
		out.Results[i] = asset.Unchanged(a, asset.EngineNone)
	}

	logger := log.With().Str("batch_id", out.BatchID).Logger()

	if !s.enabled {
		logger.Debug().
			Str("chunk_loading", s.opts.ChunkLoading).
			Msg("Chunk loading is not JSONP, skipping batch")
		out.Stats = Stats{Total: len(assets), Skipped: len(assets), Duration: time.Since(start)}
		return out, nil
	}

	ctx, span := s.tracer.StartBatchSpan(ctx, out.BatchID, s.opts.Global, len(assets))
	if traceID := observability.ExtractTraceID(ctx); traceID != "" {
		logger = logger.With().Str("trace_id", traceID).Logger()
	}

	var collector diagnostics.Collector
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)

	for i, a := range assets {
		if ctx.Err() != nil {
			break
		}
		if !s.Includes(a.Name) {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, err := s.processAsset(ctx, a)
			if err != nil {
				collector.Add(a.Name, err)
				observability.RecordError(ctx, fmt.Errorf("%s: %w", a.Name, err))
				if s.metrics != nil {
					s.metrics.RecordDiagnostic(string(diagnostics.Classify(err)))
				}
				logger.Warn().Err(err).Str("file", a.Name).Msg("Asset left unchanged")
				return nil
			}
			out.Results[i] = res
			out.Assets[i] = res.Asset
			return nil
		})
	}
	_ = g.Wait()

	out.Diagnostics = collector.Diagnostics()
	out.Stats = s.stats(out, len(assets), collector.Len())
	out.Stats.Duration = time.Since(start)

	if s.metrics != nil {
		s.metrics.RecordBatch(out.Stats.Duration)
	}

	err := ctx.Err()
	observability.EndSpan(span, err)

	logger.Info().
		Str("global", s.opts.Global).
		Int("assets", out.Stats.Total).
		Int("changed", out.Stats.Changed).
		Int("cached", out.Stats.Cached).
		Int("diagnostics", len(out.Diagnostics)).
		Dur("duration", out.Stats.Duration).
		Msg("Batch processed")

	if err != nil {
		return out, fmt.Errorf("batch %s cancelled: %w", out.BatchID, err)
	}
	return out, nil
}

// ProcessAssetsAsync runs ProcessAssets on its own goroutine and reports
// the outcome through done. A nil done runs the batch for its side effects
// only (metrics, cache, logs).
func (s *Stage) ProcessAssetsAsync(ctx context.Context, assets []asset.Asset, done func(*Output, error)) {
	go func() {
		out, err := s.ProcessAssets(ctx, assets)
		if done != nil {
			done(out, err)
		}
	}()
}

func (s *Stage) stats(out *Output, total, failed int) Stats {
	st := Stats{Total: total, Failed: failed}
	for _, r := range out.Results {
		switch {
		case r.Engine == asset.EngineNone:
			st.Skipped++
		case r.Cached:
			st.Cached++
		case r.Changed:
			st.Changed++
		default:
			st.Unchanged++
		}
	}
	// failed assets carry EngineNone as well
	st.Skipped -= failed
	return st
}

func (s *Stage) processAsset(ctx context.Context, a asset.Asset) (res asset.Result, err error) {
	ctx, span := s.tracer.StartAssetSpan(ctx, a.Name, string(s.engine))
	start := time.Now()
	defer func() {
		if err == nil {
			observability.SetSpanAttributes(ctx,
				attribute.Bool("jsonpns.changed", res.Changed),
				attribute.Bool("jsonpns.cached", res.Cached),
				attribute.StringSlice("jsonpns.matched", res.Matched),
			)
		}
		observability.EndSpan(span, err)
		if s.metrics != nil {
			s.metrics.RecordAsset(string(s.engine), outcome(res, err), time.Since(start))
		}
	}()

	if s.cache == nil {
		return s.rewrite(a)
	}

	hit := true
	res, err = s.cache.GetOrCompute(a.Name, s.cache.Fingerprint(a), func() (asset.Result, error) {
		hit = false
		return s.rewrite(a)
	})
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(hit)
	}
	return res, err
}

// rewrite runs the configured engine and verifies its output. It never
// panics and never returns a partially rewritten asset.
func (s *Stage) rewrite(a asset.Asset) (res asset.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = asset.Unchanged(a, s.engine)
			err = fmt.Errorf("%w: %s: panic: %v", asset.ErrTransform, a.Name, r)
		}
	}()

	switch s.engine {
	case asset.EngineTemplate:
		res, err = s.template.Rewrite(a)
	case asset.EngineAST:
		res, err = s.ast.Rewrite(a)
	default:
		res, err = s.template.Rewrite(a)
		if err == nil && !res.Changed && s.mentionsGlobal(a.Source) {
			res, err = s.ast.Rewrite(a)
		}
	}
	if err != nil {
		return asset.Unchanged(a, s.engine), err
	}

	if res.Changed && s.opts.Verify {
		if err := verify(res.Asset); err != nil {
			return asset.Unchanged(a, s.engine), fmt.Errorf("%w: %s: %w", asset.ErrTransform, a.Name, err)
		}
	}
	return res, nil
}

// mentionsGlobal reports whether src contains the global as a string
// literal, the precondition for any bracketed access the parser could find
func (s *Stage) mentionsGlobal(src string) bool {
	for _, q := range s.quoted {
		if strings.Contains(src, q) {
			return true
		}
	}
	return false
}

func outcome(res asset.Result, err error) string {
	switch {
	case err != nil:
		return observability.OutcomeFailed
	case res.Cached:
		return observability.OutcomeCached
	case res.Changed:
		return observability.OutcomeChanged
	default:
		return observability.OutcomeUnchanged
	}
}
