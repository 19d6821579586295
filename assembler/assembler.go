// Package assembler is the orchestration point for one request: it solves
// the geometry once, builds and encodes the requested parts, and hands the
// descriptions to a renderer.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/eqplatform/core"
	"github.com/signalsfoundry/eqplatform/csg"
	"github.com/signalsfoundry/eqplatform/internal/logging"
	"github.com/signalsfoundry/eqplatform/internal/observability"
	"github.com/signalsfoundry/eqplatform/model"
	"github.com/signalsfoundry/eqplatform/part"
	"github.com/signalsfoundry/eqplatform/render"
)

const (
	// DefaultConcurrency bounds the renders of one batch.
	DefaultConcurrency = 4
	// DefaultRenderTimeout bounds each render of a request.
	DefaultRenderTimeout = render.DefaultTimeout
)

// ErrNoRenderer is returned by operations that need a renderer when none was
// configured.
var ErrNoRenderer = fmt.Errorf("%w: no renderer configured", render.ErrRenderEngine)

// MetricsRecorder receives solve and render observations.
type MetricsRecorder interface {
	ObserveSolve(outcome string, bearingAngle float64)
	ObserveRender(part, format, outcome string, elapsed time.Duration)
	ObserveBatchFailures(n int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveSolve(string, float64)                        {}
func (noopMetrics) ObserveRender(string, string, string, time.Duration) {}
func (noopMetrics) ObserveBatchFailures(int)                            {}

// Assembler is safe for concurrent use; it holds no per-request state.
type Assembler struct {
	renderer      render.Renderer
	log           logging.Logger
	metrics       MetricsRecorder
	concurrency   int
	renderTimeout time.Duration
	now           func() time.Time
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithRenderer sets the engine used by Generate and GenerateAll.
func WithRenderer(r render.Renderer) Option {
	return func(a *Assembler) { a.renderer = r }
}

// WithLogger sets the fallback logger; a request logger on the context wins.
func WithLogger(l logging.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.log = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(a *Assembler) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithConcurrency bounds the number of concurrent renders in a batch.
func WithConcurrency(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithRenderTimeout bounds each individual render.
func WithRenderTimeout(d time.Duration) Option {
	return func(a *Assembler) {
		if d > 0 {
			a.renderTimeout = d
		}
	}
}

// WithClock overrides the clock used for batch timestamps and tracking plans.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		if now != nil {
			a.now = now
		}
	}
}

// New returns an Assembler with the given options applied.
func New(opts ...Option) *Assembler {
	a := &Assembler{
		log:           logging.Noop(),
		metrics:       noopMetrics{},
		concurrency:   DefaultConcurrency,
		renderTimeout: DefaultRenderTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Description is an encoded part ready for rendering.
type Description struct {
	Kind     model.PartKind
	Geometry core.GeometryState
	// Flat is set when a solid was sliced to 2D for a flat output.
	Flat   bool
	Source []byte
}

// FileName is the name of the description file inside archives.
func (d Description) FileName() string { return d.Kind.Code() + ".scad" }

// Request asks for one rendered part.
type Request struct {
	Parameters model.ParameterSet
	Kind       model.PartKind
	// Output defaults per part kind when unset.
	Output render.OutputKind
}

// Artifact is a rendered part.
type Artifact struct {
	Kind        model.PartKind
	Output      render.OutputKind
	Description Description
	Data        []byte
	Elapsed     time.Duration
}

// FileName is the download name for the artifact.
func (a Artifact) FileName() string {
	return ArtifactName(a.Kind, a.Output)
}

// ArtifactName names a rendered file. The cutting template keeps the name
// users know it by.
func ArtifactName(kind model.PartKind, out render.OutputKind) string {
	if kind == model.PartPlatformTop2D {
		return "platform_template." + out.Extension()
	}
	return kind.Code() + "." + out.Extension()
}

// ContentType is the MIME type of the rendered data.
func (a Artifact) ContentType() string { return a.Output.ContentType() }

func (a *Assembler) logger(ctx context.Context) logging.Logger {
	return logging.FromContext(ctx, a.log)
}

// Solve validates p and derives its geometry, recording the outcome.
func (a *Assembler) Solve(ctx context.Context, p model.ParameterSet) (core.GeometryState, error) {
	_, span := observability.StartSpan(ctx, "assembler.solve",
		attribute.Float64("latitude_deg", p.LatitudeDeg),
	)
	g, err := core.Solve(p)
	observability.EndSpan(span, err)

	switch {
	case err == nil:
		a.metrics.ObserveSolve(observability.OutcomeOK, g.BearingAngle)
	case errors.Is(err, model.ErrInvalidParameter):
		a.metrics.ObserveSolve(observability.OutcomeInvalid, 0)
	case errors.Is(err, core.ErrDegenerateGeometry):
		a.metrics.ObserveSolve(observability.OutcomeDegenerate, 0)
	default:
		a.metrics.ObserveSolve(observability.OutcomeFailed, 0)
	}
	if err != nil {
		a.logger(ctx).Info(ctx, "geometry rejected", logging.Err(err))
		return core.GeometryState{}, err
	}
	return g, nil
}

// Describe solves p and encodes the requested part.
func (a *Assembler) Describe(ctx context.Context, p model.ParameterSet, kind model.PartKind) (Description, error) {
	if !kind.Valid() {
		return Description{}, fmt.Errorf("%w: unknown part kind %s", model.ErrInvalidParameter, kind)
	}
	g, err := a.Solve(ctx, p)
	if err != nil {
		return Description{}, err
	}
	return a.describe(ctx, g, p, kind, false)
}

func (a *Assembler) describe(ctx context.Context, g core.GeometryState, p model.ParameterSet, kind model.PartKind, flat bool) (Description, error) {
	_, span := observability.StartSpan(ctx, "assembler.describe",
		attribute.String("part", kind.Code()),
		attribute.Bool("flat", flat),
	)
	pt := part.Build(kind, g, p)
	src, err := csg.EncodeBytes(part.Document(pt, p, flat))
	observability.EndSpan(span, err)
	if err != nil {
		return Description{}, fmt.Errorf("describe %s: %w", kind.Code(), err)
	}
	return Description{Kind: kind, Geometry: g, Flat: flat && !kind.Is2D(), Source: src}, nil
}

// Generate describes and renders a single part.
func (a *Assembler) Generate(ctx context.Context, req Request) (Artifact, error) {
	if !req.Kind.Valid() {
		return Artifact{}, fmt.Errorf("%w: unknown part kind %s", model.ErrInvalidParameter, req.Kind)
	}
	out := req.Output
	if out == render.OutputUnknown {
		out = render.DefaultOutput(req.Kind)
	}
	if err := checkOutput(req.Kind, out); err != nil {
		return Artifact{}, err
	}
	if a.renderer == nil {
		return Artifact{}, ErrNoRenderer
	}

	g, err := a.Solve(ctx, req.Parameters)
	if err != nil {
		return Artifact{}, err
	}
	desc, err := a.describe(ctx, g, req.Parameters, req.Kind, out.Needs2D())
	if err != nil {
		return Artifact{}, err
	}
	return a.render(ctx, desc, out)
}

// checkOutput rejects combinations the engine cannot produce.
func checkOutput(kind model.PartKind, out render.OutputKind) error {
	if out.Extension() == "" {
		return fmt.Errorf("%w: unknown output format", model.ErrInvalidParameter)
	}
	if out.Needs3D() && kind.Is2D() {
		return fmt.Errorf("%w: %s is a flat drawing and cannot be rendered as %s",
			model.ErrInvalidParameter, kind.Code(), out)
	}
	return nil
}

func (a *Assembler) render(ctx context.Context, desc Description, out render.OutputKind) (Artifact, error) {
	ctx, span := observability.StartSpan(ctx, "assembler.render",
		attribute.String("part", desc.Kind.Code()),
		attribute.String("format", out.Extension()),
	)
	ctx, cancel := context.WithTimeout(ctx, a.renderTimeout)
	defer cancel()

	start := time.Now()
	data, err := a.renderer.Render(ctx, desc.Source, out)
	elapsed := time.Since(start)
	observability.EndSpan(span, err)

	outcome := observability.OutcomeOK
	switch {
	case err == nil:
	case render.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded):
		outcome = observability.OutcomeTimeout
	default:
		outcome = observability.OutcomeFailed
	}
	a.metrics.ObserveRender(desc.Kind.Code(), out.Extension(), outcome, elapsed)

	log := a.logger(ctx).With(
		logging.String("part", desc.Kind.Code()),
		logging.String("format", out.Extension()),
		logging.Duration("elapsed", elapsed),
	)
	if err != nil {
		log.Warn(ctx, "render failed", logging.Err(err))
		return Artifact{}, fmt.Errorf("render %s: %w", desc.Kind.Code(), err)
	}
	log.Info(ctx, "render complete", logging.Int("bytes", len(data)))

	return Artifact{
		Kind:        desc.Kind,
		Output:      out,
		Description: desc,
		Data:        data,
		Elapsed:     elapsed,
	}, nil
}
