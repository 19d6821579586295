// Package part turns a solved platform geometry into solid-geometry trees,
// one builder per part kind.
package part

import (
	"fmt"

	"github.com/signalsfoundry/eqplatform/annotate"
	"github.com/signalsfoundry/eqplatform/core"
	"github.com/signalsfoundry/eqplatform/csg"
	"github.com/signalsfoundry/eqplatform/model"
)

// Part is one generated part. Geometry is the state it was built from and is
// shared read-only between the parts of a request; Solid is owned by the part.
type Part struct {
	Kind     model.PartKind
	Geometry core.GeometryState
	Solid    csg.Node
	// Annotations is set only for the 2D template with annotations enabled.
	Annotations *annotate.Set
}

// Dimensions is 2 for flat drawings and 3 for printable solids.
func (pt Part) Dimensions() int {
	if pt.Kind.Is2D() {
		return 2
	}
	return 3
}

type builderFunc func(g core.GeometryState, p model.ParameterSet) csg.Node

var builders = map[model.PartKind]builderFunc{
	model.PartPlatformTop:          platformTop,
	model.PartBearingNorthEast:     bearingNorthEast,
	model.PartBearingNorthWest:     bearingNorthWest,
	model.PartTemplateBearingSouth: templateBearingSouth,
	model.PartBearingFrontSouth:    bearingFrontSouth,
	model.PartInformationPlate:     informationPlate,
}

// Build composes the solid for kind. It assumes g came from core.Solve(p)
// and panics on an unknown kind, which is a programming error.
func Build(kind model.PartKind, g core.GeometryState, p model.ParameterSet) Part {
	p = p.WithDefaults()
	if kind == model.PartPlatformTop2D {
		return platformTop2D(g, p)
	}
	build, ok := builders[kind]
	if !ok {
		panic(fmt.Sprintf("part: no builder for %s", kind))
	}
	return Part{Kind: kind, Geometry: g, Solid: build(g, p)}
}

// platformTop2D is the cutting template: the platform top projected flat,
// shifted so the south bearing is at the origin, plus the dimension overlay.
func platformTop2D(g core.GeometryState, p model.ParameterSet) Part {
	frame := annotate.Frame(g)
	outline := csg.Move(frame.X, frame.Y, 0, csg.Projection{Child: platformTop(g, p)})
	pt := Part{Kind: model.PartPlatformTop2D, Geometry: g, Solid: outline}
	if p.ShowAnnotations {
		set := annotate.Annotate(g, p)
		pt.Annotations = &set
		pt.Solid = csg.Union(outline, set.Node())
	}
	return pt
}

// Flat returns a 2D view of pt suitable for vector or document output.
// Solids are laid on the print bed and sliced at Z=0 with projection(cut).
func (pt Part) Flat() csg.Node {
	if pt.Kind.Is2D() {
		return pt.Solid
	}
	return csg.Projection{Cut: true, Child: pt.Solid}
}
