package core

import "github.com/signalsfoundry/eqplatform/model"

// NorthHoleFractions place the three screw holes along a north bearing's
// ledge as fractions of the printer bed width, measured from the ledge's
// inner end.
var NorthHoleFractions = [...]float64{6.0 / 30, 14.0 / 30, 22.0 / 30}

// MountingLayout places the north bearing mounting holes on the platform top.
// Coordinates are in the platform frame (X east, Y north from the polar axis
// foot).
type MountingLayout struct {
	// EnvelopeDepth is the north-south depth of the strip the north bearings
	// are screwed to.
	EnvelopeDepth float64 `json:"envelope_depth" yaml:"envelope_depth"`
	// HoleX are the east offsets of the north-east bearing's holes, one per
	// NorthHoleFractions entry; the west holes mirror them.
	HoleX []float64 `json:"hole_x" yaml:"hole_x"`
	// HoleY is the north offset of every north hole.
	HoleY float64 `json:"hole_y" yaml:"hole_y"`
}

// NorthMounting derives the north bearing hole layout from the bearing
// footprint. Each bearing's outer end sits on a north corner, its ledge runs
// one printer bed width inward and fills the mounting strip, so the holes sit
// mid-strip at the ledge fractions.
func NorthMounting(g GeometryState, p model.ParameterSet) MountingLayout {
	depth := 3 * p.NorthBearingHoleDiameter
	m := MountingLayout{
		EnvelopeDepth: depth,
		HoleX:         make([]float64, len(NorthHoleFractions)),
		HoleY:         g.NorthBearingOffset - depth/2,
	}
	for i, f := range NorthHoleFractions {
		m.HoleX[i] = g.EquipmentCircleHalfWidth - (1-f)*p.PrinterBedX
	}
	return m
}
