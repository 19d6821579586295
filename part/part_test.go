package part

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/eqplatform/core"
	"github.com/signalsfoundry/eqplatform/csg"
	"github.com/signalsfoundry/eqplatform/model"
)

func reference(t *testing.T) (core.GeometryState, model.ParameterSet) {
	t.Helper()
	p := model.DefaultParameters()
	g, err := core.Solve(p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	return g, p
}

func allKinds() []model.PartKind {
	return append([]model.PartKind{model.PartPlatformTop2D}, model.BatchParts...)
}

func TestBuild_EveryKindEncodes(t *testing.T) {
	g, p := reference(t)
	for _, kind := range allKinds() {
		t.Run(kind.Code(), func(t *testing.T) {
			pt := Build(kind, g, p)
			if pt.Kind != kind {
				t.Fatalf("kind = %s, want %s", pt.Kind, kind)
			}
			if pt.Geometry != g {
				t.Fatalf("part does not carry the solved geometry")
			}
			for _, flat := range []bool{false, true} {
				if _, err := csg.EncodeBytes(Document(pt, p, flat)); err != nil {
					t.Fatalf("encode flat=%v: %v", flat, err)
				}
			}
		})
	}
}

func TestBuild_Dimensions(t *testing.T) {
	g, p := reference(t)
	if d := Build(model.PartPlatformTop2D, g, p).Dimensions(); d != 2 {
		t.Fatalf("template dimensions = %d, want 2", d)
	}
	if d := Build(model.PartBearingNorthEast, g, p).Dimensions(); d != 3 {
		t.Fatalf("bearing dimensions = %d, want 3", d)
	}
	if _, ok := Build(model.PartBearingFrontSouth, g, p).Flat().(csg.Projection); !ok {
		t.Fatalf("Flat of a solid should be a projection")
	}
}

func TestBuild_UnknownKindPanics(t *testing.T) {
	g, p := reference(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unknown kind")
		}
	}()
	Build(model.PartUnknown, g, p)
}

func TestNorthWestMirrorsNorthEast(t *testing.T) {
	g, p := reference(t)
	nw := Build(model.PartBearingNorthWest, g, p).Solid
	tr, ok := nw.(csg.Transform)
	if !ok || tr.Kind != csg.Mirror || tr.Vector.X != 1 || tr.Vector.Y != 0 || tr.Vector.Z != 0 {
		t.Fatalf("north-west bearing should be a mirror across X, got %#v", nw)
	}
	ne, err := csg.EncodeBytes(csg.Document{Root: Build(model.PartBearingNorthEast, g, p).Solid})
	if err != nil {
		t.Fatalf("encode ne: %v", err)
	}
	inner, err := csg.EncodeBytes(csg.Document{Root: tr.Child})
	if err != nil {
		t.Fatalf("encode mirrored child: %v", err)
	}
	if !bytes.Equal(ne, inner) {
		t.Fatalf("mirrored child differs from the north-east bearing")
	}
}

func TestPlatformTopBoresBothNorthHoles(t *testing.T) {
	g, p := reference(t)
	solid := Build(model.PartPlatformTop, g, p).Solid

	var xs []float64
	csg.Walk(solid, func(n csg.Node) bool {
		if tr, ok := n.(csg.Transform); ok && tr.Kind == csg.Translate {
			if c, ok := tr.Child.(csg.Cylinder); ok && c.R1 == p.NorthBearingHoleDiameter/2 {
				xs = append(xs, tr.Vector.X)
			}
		}
		return true
	})
	// Three east bores, reached twice: once directly and once under the mirror.
	if len(xs) != 6 {
		t.Fatalf("found %d bores, want 6 (three mirrored)", len(xs))
	}
	north := core.NorthMounting(g, p)
	for i, want := range north.HoleX {
		if xs[i] != want || xs[i+3] != want {
			t.Errorf("bore %d at x=%v/%v, want %v", i, xs[i], xs[i+3], want)
		}
	}

	// Each bore lines up with a ledge hole of the north-east bearing, whose
	// outer end sits on the platform corner.
	for i, hx := range ledgeHoles(g, p) {
		if got := g.EquipmentCircleHalfWidth - p.PrinterBedX + hx; math.Abs(got-north.HoleX[i]) > 1e-9 {
			t.Errorf("ledge hole %d maps to x=%v, bore at %v", i, got, north.HoleX[i])
		}
	}
}

// ledgeHoles returns the x positions of the north block's ledge holes.
func ledgeHoles(g core.GeometryState, p model.ParameterSet) []float64 {
	block, _, _ := northBlock(g, p)
	var xs []float64
	csg.Walk(block, func(n csg.Node) bool {
		if tr, ok := n.(csg.Transform); ok && tr.Kind == csg.Translate {
			if c, ok := tr.Child.(csg.Cylinder); ok && c.R1 == p.NorthBearingHoleDiameter/2 {
				xs = append(xs, tr.Vector.X)
			}
		}
		return true
	})
	return xs
}

// coneApex follows the transforms above the first pointed cylinder under n
// and returns where its apex lands.
func coneApex(n csg.Node) (r3.Vec, bool) {
	switch v := n.(type) {
	case csg.Cylinder:
		return r3.Vec{}, v.R1 == 0 && v.R2 > 0
	case csg.Boolean:
		for _, c := range v.Children {
			if at, ok := coneApex(c); ok {
				return at, true
			}
		}
	case csg.Transform:
		at, ok := coneApex(v.Child)
		if !ok {
			return at, false
		}
		switch v.Kind {
		case csg.Translate:
			return r3.Add(at, v.Vector), true
		case csg.Rotate:
			for _, turn := range []struct {
				deg  float64
				axis r3.Vec
			}{{v.Vector.X, r3.Vec{X: 1}}, {v.Vector.Y, r3.Vec{Y: 1}}, {v.Vector.Z, r3.Vec{Z: 1}}} {
				at = r3.NewRotation(turn.deg*math.Pi/180, turn.axis).Rotate(at)
			}
			return at, true
		case csg.Mirror:
			nrm := r3.Unit(v.Vector)
			return r3.Sub(at, r3.Scale(2*r3.Dot(at, nrm), nrm)), true
		}
	}
	return r3.Vec{}, false
}

func TestNorthEastBearingFollowsBearingAngle(t *testing.T) {
	g, p := reference(t)
	_, depth, _ := northBlock(g, p)
	yOff := g.BearingCircleRadius - depth
	w := p.PrinterBedX

	var apexes []r3.Vec
	for _, b := range []float64{g.BearingAngle, g.BearingAngle + 10} {
		gb := g
		gb.BearingAngle = b
		at, ok := coneApex(bearingNorthEast(gb, p))
		if !ok {
			t.Fatalf("B=%v: no cone in the north-east bearing", b)
		}
		// The block turns about the middle of its inner face, so the apex
		// swings around that point as B changes.
		rad := b * math.Pi / 180
		if want := w/2 - yOff*math.Sin(rad); math.Abs(at.X-want) > 1e-6 {
			t.Errorf("B=%v: apex x = %v, want %v", b, at.X, want)
		}
		if want := -yOff * math.Cos(rad); math.Abs(at.Y-want) > 1e-6 {
			t.Errorf("B=%v: apex y = %v, want %v", b, at.Y, want)
		}
		apexes = append(apexes, at)
	}
	if d := r3.Norm(r3.Sub(apexes[0], apexes[1])); d < 1 {
		t.Fatalf("apex moved %v mm between bearing angles; the solid ignores B", d)
	}

	a, err := csg.EncodeBytes(csg.Document{Root: bearingNorthEast(g, p)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	g.BearingAngle += 10
	b, err := csg.EncodeBytes(csg.Document{Root: bearingNorthEast(g, p)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("north-east bearing unchanged by the bearing angle")
	}
}

func TestFrontSouthConeBelowBlockCentre(t *testing.T) {
	g, p := reference(t)
	at, ok := coneApex(Build(model.PartBearingFrontSouth, g, p).Solid)
	if !ok {
		t.Fatalf("no cone in the south bearing")
	}
	width := 4 * p.SouthBearingDiameter
	if math.Abs(at.X-width/2) > 1e-6 {
		t.Errorf("apex x = %v, want %v", at.X, width/2)
	}
	if want := -(g.SouthBearingOffset - p.SouthBearingDiameter - southFlangeDepth); math.Abs(at.Y-want) > 1e-6 {
		t.Errorf("apex y = %v, want %v", at.Y, want)
	}
}

func TestPartGeometryRules(t *testing.T) {
	g, p := reference(t)
	d := p.SouthBearingDiameter
	rib := (g.BearingAngle - 90) / ribAngleDivisor
	const eps = 1e-9

	tests := []struct {
		name  string
		kind  model.PartKind
		check func(t *testing.T, nodes []csg.Node)
	}{
		{
			name: "bearing cone",
			kind: model.PartBearingNorthEast,
			check: func(t *testing.T, nodes []csg.Node) {
				var found bool
				for _, n := range nodes {
					c, ok := n.(csg.Cylinder)
					if !ok || c.R1 != 0 {
						continue
					}
					found = true
					if got, want := c.R2/c.Height, 1/tanDeg(g.Latitude); math.Abs(got-want) > eps {
						t.Errorf("R2/Height = %v, want 1/tan T = %v", got, want)
					}
					if got, want := c.Height, 2*g.CenterOfGravityHypotenuse; math.Abs(got-want) > eps {
						t.Errorf("height = %v, want 2*cog_hyp = %v", got, want)
					}
				}
				if !found {
					t.Fatalf("no cone")
				}
			},
		},
		{
			name: "ledge holes",
			kind: model.PartBearingNorthEast,
			check: func(t *testing.T, nodes []csg.Node) {
				var xs []float64
				for _, n := range nodes {
					if tr, ok := n.(csg.Transform); ok && tr.Kind == csg.Translate {
						if c, ok := tr.Child.(csg.Cylinder); ok && c.R1 == p.NorthBearingHoleDiameter/2 {
							xs = append(xs, tr.Vector.X)
						}
					}
				}
				want := []float64{p.PrinterBedX * 6 / 30, p.PrinterBedX * 14 / 30, p.PrinterBedX * 22 / 30}
				if len(xs) != len(want) {
					t.Fatalf("got %d holes, want %d", len(xs), len(want))
				}
				for i := range want {
					if math.Abs(xs[i]-want[i]) > eps {
						t.Errorf("hole %d at x=%v, want %v", i, xs[i], want[i])
					}
				}
			},
		},
		{
			name: "rib angles",
			kind: model.PartPlatformTop,
			check: func(t *testing.T, nodes []csg.Node) {
				var angles []float64
				for _, n := range nodes {
					if tr, ok := n.(csg.Transform); ok && tr.Kind == csg.Rotate {
						angles = append(angles, tr.Vector.Z)
					}
				}
				if len(angles) != 2 || angles[0] != rib || angles[1] != -rib {
					t.Fatalf("rib angles = %v, want ±%v", angles, rib)
				}
			},
		},
		{
			name: "centre sphere",
			kind: model.PartPlatformTop,
			check: func(t *testing.T, nodes []csg.Node) {
				for _, n := range nodes {
					if s, ok := n.(csg.Sphere); ok {
						if s.Radius != 5*d {
							t.Fatalf("sphere radius = %v, want %v", s.Radius, 5*d)
						}
						return
					}
				}
				t.Fatalf("no sphere")
			},
		},
		{
			name: "template plate",
			kind: model.PartTemplateBearingSouth,
			check: func(t *testing.T, nodes []csg.Node) {
				c, ok := nodes[1].(csg.Cube)
				if !ok {
					t.Fatalf("first operand is %T, want the plate", nodes[1])
				}
				if c.Size.X != 2*d || c.Size.Y != g.SouthBearingZ || c.Size.Z != plateThickness {
					t.Fatalf("plate = %v, want %v x %v x %v", c.Size, 2*d, g.SouthBearingZ, plateThickness)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nodes []csg.Node
			csg.Walk(Build(tt.kind, g, p).Solid, func(n csg.Node) bool {
				nodes = append(nodes, n)
				return true
			})
			tt.check(t, nodes)
		})
	}
}

func TestTemplateLabel(t *testing.T) {
	tests := []struct {
		name   string
		length float64
		size   float64
		want   string
	}{
		{"full wording", 85, 5, "South bearing height 85 mm"},
		{"fractional height", 92.5, 5, "South bearing height 92.5 mm"},
		{"short plate", 40, 5, "S 40"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, size := templateLabel(tt.length, tt.size)
			if label != tt.want {
				t.Fatalf("label = %q, want %q", label, tt.want)
			}
			if size > tt.size {
				t.Fatalf("size %v exceeds the requested %v", size, tt.size)
			}
			if strings.HasPrefix(label, "South") {
				if w := float64(len(label)) * glyphWidthRatio * size; w > tt.length-2*plateMargin+1e-9 {
					t.Fatalf("label %v mm wide on a %v mm plate", w, tt.length)
				}
			}
		})
	}

	g, p := reference(t)
	var got string
	csg.Walk(Build(model.PartTemplateBearingSouth, g, p).Solid, func(n csg.Node) bool {
		if txt, ok := n.(csg.Text); ok {
			got = txt.Value
		}
		return true
	})
	if got != "South bearing height 85 mm" {
		t.Fatalf("engraved %q", got)
	}
}

func TestPlatformTop2D_Annotations(t *testing.T) {
	g, p := reference(t)

	on := Build(model.PartPlatformTop2D, g, p)
	if on.Annotations == nil {
		t.Fatalf("annotations missing with show_annotations set")
	}
	out, err := csg.EncodeBytes(Document(on, p, true))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	recs, err := csg.ParseAnnotations(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("ParseAnnotations: %v", err)
	}
	if len(recs) != 14 {
		t.Fatalf("got %d annotation records, want 14", len(recs))
	}

	p.ShowAnnotations = false
	off := Build(model.PartPlatformTop2D, g, p)
	if off.Annotations != nil {
		t.Fatalf("annotations present with show_annotations cleared")
	}
	out, err = csg.EncodeBytes(Document(off, p, true))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(string(out), "// @") {
		t.Fatalf("unannotated template contains annotation comments")
	}
}

func TestDocument_SharedConstants(t *testing.T) {
	g, p := reference(t)
	var first map[string]float64
	for _, kind := range model.BatchParts {
		out, err := csg.EncodeBytes(Document(Build(kind, g, p), p, false))
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		consts, err := csg.ParseConstants(bytes.NewReader(out))
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if consts["bearing_angle"] != g.BearingAngle {
			t.Fatalf("%s: bearing_angle = %v, want %v", kind, consts["bearing_angle"], g.BearingAngle)
		}
		if first == nil {
			first = consts
			continue
		}
		for name, v := range first {
			if consts[name] != v {
				t.Fatalf("%s: %s = %v, first part had %v", kind, name, consts[name], v)
			}
		}
	}
}

func TestInfoLines(t *testing.T) {
	g, p := reference(t)
	lines := InfoLines(g, p)
	want := [][2]string{
		{"Hemisphere", "North"},
		{"Latitude", "38.12°"},
		{"North bearing", "20 mm"},
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines", len(lines))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %v, want %v", i, lines[i], want[i])
		}
	}
}
