// Package annotate draws the dimensioning overlay of the 2D platform
// template: dimension lines, angle arcs, labelled points and a title block.
// Everything it produces is flat decoration; it never feeds back into the
// solid parts.
package annotate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/signalsfoundry/eqplatform/core"
	"github.com/signalsfoundry/eqplatform/csg"
	"github.com/signalsfoundry/eqplatform/model"
)

const (
	// DimensionOffset is the perpendicular distance between a measured
	// segment and its dimension line.
	DimensionOffset = 15.0
	// ArcStepDeg is the polyline resolution of angle arcs.
	ArcStepDeg = 2.0

	titleLineSpacing = 1.8
	pointTextScale   = 0.6
)

// Annotation kinds as written into the encoded template.
const (
	KindDimension = "dimension"
	KindAngle     = "angle"
	KindPoint     = "point"
	KindTitle     = "title"
)

// Style carries the drawing parameters shared by every annotation.
type Style struct {
	LineThickness float64
	TextSize      float64
}

// DimensionLine measures the straight distance From → To. The line is drawn
// offset to the left of the direction of travel.
type DimensionLine struct {
	From, To r2.Vec
	Label    string
}

// AngleDimension is an arc of Radius around Center from Start to End degrees
// (counter-clockwise from +X).
type AngleDimension struct {
	Center     r2.Vec
	Radius     float64
	Start, End float64
	Label      string
}

// CoordinatePoint marks a named location.
type CoordinatePoint struct {
	Name string
	At   r2.Vec
}

// TitleBlock is the summary text placed below the template.
type TitleBlock struct {
	Origin r2.Vec
	Lines  [3]string
}

// Set is the full overlay for one template.
type Set struct {
	Style      Style
	Dimensions []DimensionLine
	Angles     []AngleDimension
	Points     []CoordinatePoint
	Title      TitleBlock
}

// Frame returns the template frame offsets: the template is drawn with the
// south bearing at the origin, so platform-frame Y is shifted by bs_y.
func Frame(g core.GeometryState) r2.Vec {
	return r2.Vec{X: 0, Y: -g.SouthBearingOffset}
}

// Annotate builds the overlay for the platform template from g. All
// positions are differences of GeometryState values.
func Annotate(g core.GeometryState, p model.ParameterSet) Set {
	span := g.NorthBearingOffset - g.SouthBearingOffset
	centre := g.CenterOfGravityOffset - g.SouthBearingOffset
	length := g.PlatformLength()
	x := g.EquipmentCircleHalfWidth

	south := r2.Vec{X: 0, Y: 0}
	centrePt := r2.Vec{X: 0, Y: centre}
	northLine := r2.Vec{X: 0, Y: span}
	ne := r2.Vec{X: x, Y: span}
	nw := r2.Vec{X: -x, Y: span}

	s := Set{Style: Style{LineThickness: p.LineThickness, TextSize: p.TextSize}}

	s.Dimensions = []DimensionLine{
		// Width along the south edge, drawn below it.
		{From: r2.Vec{X: x, Y: 0}, To: r2.Vec{X: -x, Y: 0}, Label: mm("Width", 2*x)},
		// Overall length up the east edge, drawn outside it.
		{From: r2.Vec{X: x, Y: length}, To: r2.Vec{X: x, Y: 0}, Label: mm("Length", length)},
		{From: r2.Vec{X: -x, Y: 0}, To: nw, Label: mm("S-N", span)},
		{From: south, To: centrePt, Label: mm("S-C", centre)},
		{From: centrePt, To: northLine, Label: mm("C-N", span-centre)},
		// North edge from NW to NE, drawn above it.
		{From: nw, To: ne, Label: mm("North", 2*x)},
	}

	radius := math.Min(x, centre) / 2
	s.Angles = []AngleDimension{
		{Center: centrePt, Radius: radius, Start: 90, End: 90 + g.Latitude, Label: deg("T", g.Latitude)},
		{Center: centrePt, Radius: radius * 1.5, Start: 0, End: g.BearingAngle, Label: deg("B", g.BearingAngle)},
	}

	s.Points = []CoordinatePoint{
		{Name: "South", At: south},
		{Name: "Center", At: centrePt},
		{Name: "North", At: northLine},
		{Name: "NE", At: ne},
		{Name: "NW", At: nw},
	}

	// The width dimension hangs DimensionOffset below y=0 with its label
	// under it; the title starts below both.
	top := -2*DimensionOffset - 2*p.TextSize
	s.Title = TitleBlock{
		Origin: r2.Vec{X: -x, Y: top},
		Lines: [3]string{
			"Equatorial Platform Template",
			fmt.Sprintf("Latitude %.2f° | Footprint %.0f x %.0f mm", g.Latitude, 2*x, length),
			fmt.Sprintf("Bearing angle %.2f° | South bearing Z %.0f mm", g.BearingAngle, g.SouthBearingZ),
		},
	}
	return s
}

func mm(name string, v float64) string { return fmt.Sprintf("%s %.0f mm", name, v) }

func deg(name string, v float64) string { return fmt.Sprintf("%s %.2f°", name, v) }

// Node renders the overlay as 2D geometry.
func (s Set) Node() csg.Node {
	var nodes []csg.Node
	for _, d := range s.Dimensions {
		nodes = append(nodes, d.Node(s.Style))
	}
	for _, a := range s.Angles {
		nodes = append(nodes, a.Node(s.Style))
	}
	for _, p := range s.Points {
		nodes = append(nodes, p.Node(s.Style))
	}
	nodes = append(nodes, s.Title.Node(s.Style))
	return csg.Union(nodes...)
}

// OffsetSegment returns the dimension line endpoints after the perpendicular
// offset.
func (d DimensionLine) OffsetSegment() (r2.Vec, r2.Vec) {
	n := leftNormal(d.From, d.To)
	off := r2.Scale(DimensionOffset, n)
	return r2.Add(d.From, off), r2.Add(d.To, off)
}

// Node draws extension lines, the dimension line and its centred label.
func (d DimensionLine) Node(st Style) csg.Node {
	a, b := d.OffsetSegment()
	n := leftNormal(d.From, d.To)
	mid := r2.Scale(0.5, r2.Add(a, b))
	labelAt := r2.Add(mid, r2.Scale(st.TextSize*0.6, n))

	angle := math.Atan2(b.Y-a.Y, b.X-a.X) * 180 / math.Pi
	// Keep text upright.
	if angle > 90 {
		angle -= 180
	} else if angle <= -90 {
		angle += 180
	}

	return csg.Annotation{
		Kind:   KindDimension,
		Label:  d.Label,
		Points: []r2.Vec{d.From, d.To},
		Child: csg.Union(
			segment(d.From, a, st.LineThickness/2),
			segment(d.To, b, st.LineThickness/2),
			segment(a, b, st.LineThickness),
			csg.Move(labelAt.X, labelAt.Y, 0, csg.Turn(0, 0, angle, csg.Text{
				Value:  d.Label,
				Size:   st.TextSize,
				HAlign: "center",
				VAlign: "center",
			})),
		),
	}
}

// ArcPoints samples the arc every ArcStepDeg degrees, always including both
// ends.
func (a AngleDimension) ArcPoints() []r2.Vec {
	start, end := a.Start, a.End
	if end < start {
		start, end = end, start
	}
	var pts []r2.Vec
	for t := start; t < end; t += ArcStepDeg {
		pts = append(pts, polar(a.Center, a.Radius, t))
	}
	return append(pts, polar(a.Center, a.Radius, end))
}

// Node draws the arc polyline and places the label at its angular midpoint.
func (a AngleDimension) Node(st Style) csg.Node {
	pts := a.ArcPoints()
	segs := make([]csg.Node, 0, len(pts))
	for i := 1; i < len(pts); i++ {
		segs = append(segs, segment(pts[i-1], pts[i], st.LineThickness))
	}
	mid := (a.Start + a.End) / 2
	labelAt := polar(a.Center, a.Radius+st.TextSize*1.5, mid)
	segs = append(segs, csg.Move(labelAt.X, labelAt.Y, 0, csg.Text{
		Value:  a.Label,
		Size:   st.TextSize,
		HAlign: "center",
		VAlign: "center",
	}))
	return csg.Annotation{
		Kind:   KindAngle,
		Label:  a.Label,
		Points: []r2.Vec{a.Center, pts[0], pts[len(pts)-1]},
		Child:  csg.Union(segs...),
	}
}

// Label is the "name: (x, y)" text, rounded to whole units.
func (c CoordinatePoint) Label() string {
	return fmt.Sprintf("%s: (%.0f, %.0f)", c.Name, roundHalfAway(c.At.X), roundHalfAway(c.At.Y))
}

// Node draws a small disc with the coordinate label beside it.
func (c CoordinatePoint) Node(st Style) csg.Node {
	r := st.LineThickness * 2
	text := st.TextSize * pointTextScale
	return csg.Annotation{
		Kind:   KindPoint,
		Label:  c.Label(),
		Points: []r2.Vec{c.At},
		Child: csg.Union(
			csg.Move(c.At.X, c.At.Y, 0, csg.Circle{Radius: r}),
			csg.Move(c.At.X+r+text/2, c.At.Y+r, 0, csg.Text{Value: c.Label(), Size: text}),
		),
	}
}

// Node stacks the title lines downward from Origin.
func (t TitleBlock) Node(st Style) csg.Node {
	lines := make([]csg.Node, 0, len(t.Lines))
	for i, l := range t.Lines {
		y := t.Origin.Y - float64(i)*st.TextSize*titleLineSpacing
		lines = append(lines, csg.Move(t.Origin.X, y, 0, csg.Text{Value: l, Size: st.TextSize, VAlign: "top"}))
	}
	return csg.Annotation{
		Kind:   KindTitle,
		Label:  t.Lines[0],
		Points: []r2.Vec{t.Origin},
		Child:  csg.Union(lines...),
	}
}

// segment is a straight stroke of the given width.
func segment(a, b r2.Vec, width float64) csg.Node {
	n := r2.Scale(width/2, leftNormal(a, b))
	return csg.Polygon{Points: []r2.Vec{
		r2.Add(a, n),
		r2.Add(b, n),
		r2.Sub(b, n),
		r2.Sub(a, n),
	}}
}

// leftNormal is the unit vector perpendicular to a→b, pointing left.
func leftNormal(a, b r2.Vec) r2.Vec {
	d := r2.Sub(b, a)
	l := r2.Norm(d)
	if l == 0 {
		return r2.Vec{X: 0, Y: 1}
	}
	return r2.Vec{X: -d.Y / l, Y: d.X / l}
}

func polar(c r2.Vec, r, degrees float64) r2.Vec {
	rad := degrees * math.Pi / 180
	return r2.Vec{X: c.X + r*math.Cos(rad), Y: c.Y + r*math.Sin(rad)}
}

func roundHalfAway(v float64) float64 {
	r := math.Round(v)
	if r == 0 {
		return 0
	}
	return r
}
