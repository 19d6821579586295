package part

import (
	"fmt"

	"github.com/signalsfoundry/eqplatform/csg"
	"github.com/signalsfoundry/eqplatform/model"
)

// Document wraps pt into a renderer input. Every document of a request
// carries the same derived constants, so the files of a batch can be checked
// against each other. When flat is set 3D parts are sliced to 2D.
func Document(pt Part, p model.ParameterSet, flat bool) csg.Document {
	g := pt.Geometry
	root := pt.Solid
	if flat {
		root = pt.Flat()
	}
	return csg.Document{
		Comments: []string{
			fmt.Sprintf("Equatorial platform part: %s (%s)", pt.Kind, pt.Kind.Code()),
			fmt.Sprintf("Latitude %g, printer bed %g mm", g.Latitude, p.PrinterBedX),
		},
		Segments: csg.DefaultSegments,
		Constants: []csg.Constant{
			{Name: "latitude", Value: g.Latitude},
			{Name: "bearing_angle", Value: g.BearingAngle},
			{Name: "cog_z", Value: g.CenterOfGravityHeight},
			{Name: "cog_y", Value: g.CenterOfGravityOffset},
			{Name: "cog_hyp", Value: g.CenterOfGravityHypotenuse},
			{Name: "bs_z", Value: g.SouthBearingZ},
			{Name: "bs_y", Value: g.SouthBearingOffset},
			{Name: "bn_y", Value: g.NorthBearingOffset},
			{Name: "bn_z", Value: g.NorthBearingHeight},
			{Name: "cir1_r", Value: g.BearingCircleRadius},
			{Name: "cir1_h", Value: g.BearingCircleDepth},
			{Name: "cir1_eqp_r1", Value: g.EquipmentCircleRadius1},
			{Name: "cir1_eqp_r2", Value: g.EquipmentCircleRadius2},
			{Name: "cir1_eqp_x", Value: g.EquipmentCircleHalfWidth},
			{Name: "cir1_eqp_y", Value: g.EquipmentCircleRise},
			{Name: "printer_bed_x", Value: p.PrinterBedX},
			{Name: "line_thickness", Value: p.LineThickness},
			{Name: "text_size", Value: p.TextSize},
			{Name: "show_annotations", Value: p.ShowAnnotations},
		},
		Root: root,
	}
}
