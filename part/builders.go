package part

import (
	"fmt"
	"math"
	"strings"

	"github.com/signalsfoundry/eqplatform/core"
	"github.com/signalsfoundry/eqplatform/csg"
	"github.com/signalsfoundry/eqplatform/model"
)

const (
	// sphereFactor scales the south bearing diameter into the radius of the
	// rounded centre section of the platform top.
	sphereFactor = 5.0
	// ribAngleDivisor spreads the two diagonal ribs relative to the bearing
	// angle.
	ribAngleDivisor = 1.5

	// South front bearing flange.
	southFlangeThickness   = 5.0
	southFlangeDepth       = 20.0
	southMountHoleDiameter = 5.0

	plateThickness  = 2.0
	engravingDepth  = 0.6
	plateMargin     = 4.0
	glyphWidthRatio = 0.75
	infoLineSpacing = 1.8
	// minLabelSize is the smallest engraving that stays legible.
	minLabelSize = 3.0

	// boreClearance lets hole cylinders poke through both faces.
	boreClearance = 1.0
)

// platformTop is the rotating timber top. The rectangular slab from the south
// to the north bearing line is trimmed to a rounded centre, a south band, the
// north mounting strip and two diagonal ribs, then bored for the north
// bearing screws.
func platformTop(g core.GeometryState, p model.ParameterSet) csg.Node {
	x := g.EquipmentCircleHalfWidth
	t := p.TimberThickness
	d := p.SouthBearingDiameter
	north := core.NorthMounting(g, p)

	slab := csg.Move(-x, g.SouthBearingOffset, 0, csg.Box(2*x, g.NorthBearingOffset-g.SouthBearingOffset, t))

	sphere := csg.Move(0, g.CenterOfGravityOffset, 0, csg.Sphere{Radius: sphereFactor * d})
	southBand := csg.Move(-2*d, g.SouthBearingOffset, 0, csg.Box(4*d, 2*d, t))
	northStrip := csg.Move(-x, g.NorthBearingOffset-north.EnvelopeDepth, 0, csg.Box(2*x, north.EnvelopeDepth, t))

	ribAngle := (g.BearingAngle - 90) / ribAngleDivisor
	ribLen := (g.NorthBearingOffset - g.CenterOfGravityOffset) / math.Cos(ribAngle*math.Pi/180)
	rib := csg.Move(-d, 0, 0, csg.Box(2*d, ribLen, t))
	ribs := csg.Union(
		csg.Move(0, g.CenterOfGravityOffset, 0, csg.Turn(0, 0, ribAngle, rib)),
		csg.Move(0, g.CenterOfGravityOffset, 0, csg.Turn(0, 0, -ribAngle, rib)),
	)

	bores := make([]csg.Node, 0, len(north.HoleX))
	for _, hx := range north.HoleX {
		bores = append(bores, csg.Move(hx, north.HoleY, -boreClearance, csg.Cylinder{
			Height: t + 2*boreClearance,
			R1:     p.NorthBearingHoleDiameter / 2,
			R2:     p.NorthBearingHoleDiameter / 2,
		}))
	}
	east := csg.Union(bores...)

	return csg.Difference(
		csg.Intersection(slab, csg.Union(sphere, southBand, northStrip, ribs)),
		east,
		csg.Reflect(1, 0, 0, east),
	)
}

// bearingCone is the conical bearing surface: apex on the polar axis, axis
// along +Z, half-angle 90-T, tall enough to cover every bearing block.
func bearingCone(g core.GeometryState) csg.Node {
	h := 2 * g.CenterOfGravityHypotenuse
	return csg.Cylinder{Height: h, R1: 0, R2: h / tanDeg(g.Latitude)}
}

// northBlock is the north bearing before it is cut by the cone. X runs along
// the bed width from the inner end to the corner, the slab is the outer
// (bearing) face and the ledge with the screw holes sits on top, inward of
// the slab.
func northBlock(g core.GeometryState, p model.ParameterSet) (csg.Node, float64, float64) {
	width := p.PrinterBedX
	ledge := core.NorthMounting(g, p).EnvelopeDepth
	height := g.EquipmentCircleRise
	support := p.NorthBearingSupportHeight

	slab := csg.Move(0, ledge, 0, csg.Box(width, p.NorthBearingHeight, height))
	ledgeBox := csg.Move(0, 0, height-support, csg.Box(width, ledge, support))

	holes := make([]csg.Node, 0, len(core.NorthHoleFractions))
	for _, f := range core.NorthHoleFractions {
		holes = append(holes, csg.Move(f*width, ledge/2, height-support-boreClearance, csg.Cylinder{
			Height: support + 2*boreClearance,
			R1:     p.NorthBearingHoleDiameter / 2,
			R2:     p.NorthBearingHoleDiameter / 2,
		}))
	}
	return csg.Difference(csg.Union(slab, ledgeBox), holes...), ledge + p.NorthBearingHeight, height
}

// coneInBlock places the cone in a block's frame. The block stands with the
// point (pivotX, 0) over the cone frame's (0, yOff), turned about that point
// by yaw degrees, with its base at height zOff. The cone gets the inverse
// transform, so the turn pivots about the block rather than the cone axis.
func coneInBlock(g core.GeometryState, pivotX, yOff, zOff, yaw float64) csg.Node {
	return csg.Move(pivotX, 0, 0, csg.Turn(0, 0, -yaw, csg.Move(0, -yOff, -zOff, bearingCone(g))))
}

// bearingNorthEast intersects the north block with the cone. The block is
// kept at the origin and the cone is moved into the block's frame; the block
// then flips over so the ledge lies on the print bed.
func bearingNorthEast(g core.GeometryState, p model.ParameterSet) csg.Node {
	block, depth, height := northBlock(g, p)
	// Top of the bearing face meets the cone where its radius is cir1_r.
	z0 := g.BearingCircleRadius * tanDeg(g.Latitude)
	yOff := g.BearingCircleRadius - depth
	zOff := z0 + height/2 - height

	// The block sits at the bearing circle turned by -B about the middle of
	// its inner face.
	cone := coneInBlock(g, p.PrinterBedX/2, yOff, zOff, -g.BearingAngle)
	return onBed(p.PrinterBedX, height, csg.Intersection(block, cone))
}

func bearingNorthWest(g core.GeometryState, p model.ParameterSet) csg.Node {
	return csg.Reflect(1, 0, 0, bearingNorthEast(g, p))
}

// bearingFrontSouth is the pivot bearing under the south edge: a vertical slab
// carrying a flange with three screw holes, cut by the same cone at the south
// bearing offset. The slab's outer face already points north, away from the
// polar axis, so the block is placed without a turn.
func bearingFrontSouth(g core.GeometryState, p model.ParameterSet) csg.Node {
	d := p.SouthBearingDiameter
	width := 4 * d
	height := p.SouthBearingHeight

	slab := csg.Move(0, southFlangeDepth, 0, csg.Box(width, d, height))
	flange := csg.Move(0, 0, height-southFlangeThickness, csg.Box(width, southFlangeDepth, southFlangeThickness))
	var holes []csg.Node
	for i := 1; i <= 3; i++ {
		holes = append(holes, csg.Move(float64(i)*width/4, southFlangeDepth/2, height-southFlangeThickness-boreClearance, csg.Cylinder{
			Height: southFlangeThickness + 2*boreClearance,
			R1:     southMountHoleDiameter / 2,
			R2:     southMountHoleDiameter / 2,
		}))
	}
	block := csg.Difference(csg.Union(slab, flange), holes...)

	// The cone radius equals bs_y at height bs_z.
	yOff := g.SouthBearingOffset - d - southFlangeDepth
	zOff := g.SouthBearingZ - height/2
	cone := csg.Move(width/2, -yOff, -zOff, bearingCone(g))
	return onBed(width, height, csg.Intersection(block, cone))
}

// onBed flips a block of the given footprint width and height about Y so its
// top face lands on Z=0.
func onBed(width, height float64, n csg.Node) csg.Node {
	return csg.Move(width, 0, height, csg.Turn(0, 180, 0, n))
}

// templateBearingSouth is a thin drilling guide the width of two south bearing
// diameters and as long as the south bearing height, engraved with that height.
func templateBearingSouth(g core.GeometryState, p model.ParameterSet) csg.Node {
	w := 2 * p.SouthBearingDiameter
	l := g.SouthBearingZ
	label, size := templateLabel(l, math.Min(p.TextSize, w*0.4))

	return csg.Difference(
		csg.Box(w, l, plateThickness),
		csg.Move(w/2, l/2, plateThickness-engravingDepth, csg.Extrude{
			Height: engravingDepth + boreClearance,
			Child: csg.Turn(0, 0, 90, csg.Text{
				Value:  label,
				Size:   size,
				HAlign: "center",
				VAlign: "center",
			}),
		}),
	)
}

// templateLabel picks the engraving for a template of the given length: the
// full "South bearing height" wording, shrunk as far as minLabelSize to fit
// between the margins, or the short "S <height>" form.
func templateLabel(length, size float64) (string, float64) {
	long := fmt.Sprintf("South bearing height %s mm", trimNumber(length))
	fit := (length - 2*plateMargin) / (float64(len([]rune(long))) * glyphWidthRatio)
	if fit >= minLabelSize {
		return long, math.Min(size, fit)
	}
	return fmt.Sprintf("S %s", trimNumber(length)), size
}

// InfoLines is the label/value table engraved on the information plate.
func InfoLines(g core.GeometryState, p model.ParameterSet) [][2]string {
	return [][2]string{
		{"Hemisphere", titleCase(string(p.WithDefaults().Hemisphere))},
		{"Latitude", fmt.Sprintf("%.2f°", g.Latitude)},
		{"North bearing", fmt.Sprintf("%s mm", trimNumber(p.NorthBearingHeight))},
	}
}

// informationPlate engraves InfoLines in two columns.
func informationPlate(g core.GeometryState, p model.ParameterSet) csg.Node {
	lines := InfoLines(g, p)
	size := p.TextSize
	labelCols, valueCols := 0, 0
	for _, l := range lines {
		labelCols = max(labelCols, len([]rune(l[0])))
		valueCols = max(valueCols, len([]rune(l[1])))
	}
	glyph := size * glyphWidthRatio
	labelW := float64(labelCols)*glyph + plateMargin
	w := 2*plateMargin + labelW + float64(valueCols)*glyph
	h := 2*plateMargin + float64(len(lines))*size*infoLineSpacing

	var text []csg.Node
	for i, l := range lines {
		y := h - plateMargin - float64(i)*size*infoLineSpacing
		text = append(text,
			csg.Move(plateMargin, y, 0, csg.Text{Value: l[0], Size: size, VAlign: "top"}),
			csg.Move(plateMargin+labelW, y, 0, csg.Text{Value: l[1], Size: size, VAlign: "top"}),
		)
	}
	return csg.Difference(
		csg.Box(w, h, plateThickness),
		csg.Move(0, 0, plateThickness-engravingDepth, csg.Extrude{
			Height: engravingDepth + boreClearance,
			Child:  csg.Union(text...),
		}),
	)
}

func tanDeg(d float64) float64 { return math.Tan(d * math.Pi / 180) }

func trimNumber(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", v), "0"), ".")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
