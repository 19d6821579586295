package assembler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/eqplatform/core"
	"github.com/signalsfoundry/eqplatform/internal/logging"
	"github.com/signalsfoundry/eqplatform/internal/observability"
	"github.com/signalsfoundry/eqplatform/model"
	"github.com/signalsfoundry/eqplatform/render"
)

// PartResult is the outcome for one part of a batch. Description is set
// whenever the part could be encoded; Artifact only when it also rendered.
type PartResult struct {
	Kind        model.PartKind
	Description Description
	Artifact    Artifact
	Err         error
}

// OK reports whether the part rendered.
func (r PartResult) OK() bool { return r.Err == nil }

// Batch is the result of GenerateAll. All parts share one GeometryState.
type Batch struct {
	ID         string
	CreatedAt  time.Time
	Parameters model.ParameterSet
	Geometry   core.GeometryState
	Output     render.OutputKind

	// Parts follows model.BatchParts order.
	Parts    []PartResult
	Template PartResult

	Tracking core.TrackingPlan
	CutList  core.CutList
}

// Failed lists the parts (and the template) that did not render.
func (b *Batch) Failed() []PartResult {
	var failed []PartResult
	for _, r := range b.Parts {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	if b.Template.Err != nil {
		failed = append(failed, b.Template)
	}
	return failed
}

// FailedCodes returns the part codes of Failed.
func (b *Batch) FailedCodes() []string {
	failed := b.Failed()
	codes := make([]string, 0, len(failed))
	for _, r := range failed {
		codes = append(codes, r.Kind.Code())
	}
	return codes
}

// GenerateAll solves p once and renders every batch part plus the cutting
// template. Only parameter and geometry errors fail the call; a part that
// fails to encode or render is reported in its PartResult and the others
// still complete. output applies to the physical parts and defaults per
// kind; the template is always a vector drawing.
func (a *Assembler) GenerateAll(ctx context.Context, p model.ParameterSet, output render.OutputKind) (*Batch, error) {
	if output != render.OutputUnknown && output.Extension() == "" {
		return nil, fmt.Errorf("%w: unknown output format", model.ErrInvalidParameter)
	}
	if a.renderer == nil {
		return nil, ErrNoRenderer
	}

	batchID := uuid.NewString()
	ctx, span := observability.StartSpan(ctx, "assembler.generate_all",
		attribute.String("batch_id", batchID),
		attribute.String("format", output.String()),
	)
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	g, err := a.Solve(ctx, p)
	if err != nil {
		spanErr = err
		return nil, err
	}

	now := a.now()
	b := &Batch{
		ID:         batchID,
		CreatedAt:  now.UTC(),
		Parameters: p,
		Geometry:   g,
		Output:     output,
		Parts:      make([]PartResult, len(model.BatchParts)),
		Tracking:   core.PlanTracking(g, p, now),
		CutList:    core.BuildCutList(g, p),
	}

	log := a.logger(ctx).With(logging.String("batch_id", batchID))
	log.Info(ctx, "batch started",
		logging.Int("parts", len(model.BatchParts)),
		logging.Float64("bearing_angle", g.BearingAngle),
	)

	var group errgroup.Group
	group.SetLimit(a.concurrency)
	for i, kind := range model.BatchParts {
		out := output
		if out == render.OutputUnknown {
			out = render.DefaultOutput(kind)
		}
		group.Go(func() error {
			b.Parts[i] = a.generatePart(ctx, g, p, kind, out)
			return nil
		})
	}
	group.Go(func() error {
		b.Template = a.generatePart(ctx, g, p, model.PartPlatformTop2D, render.VectorDrawing)
		return nil
	})
	_ = group.Wait()

	failed := b.Failed()
	a.metrics.ObserveBatchFailures(len(failed))
	if len(failed) > 0 {
		log.Warn(ctx, "batch finished with failures", logging.Any("failed", b.FailedCodes()))
	} else {
		log.Info(ctx, "batch finished")
	}
	return b, nil
}

func (a *Assembler) generatePart(ctx context.Context, g core.GeometryState, p model.ParameterSet, kind model.PartKind, out render.OutputKind) PartResult {
	res := PartResult{Kind: kind}
	if err := checkOutput(kind, out); err != nil {
		res.Err = err
		return res
	}
	desc, err := a.describe(ctx, g, p, kind, out.Needs2D())
	if err != nil {
		res.Err = err
		return res
	}
	res.Description = desc
	art, err := a.render(ctx, desc, out)
	if err != nil {
		res.Err = err
		return res
	}
	res.Artifact = art
	return res
}
