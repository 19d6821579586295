package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/eqplatform/model"
)

// ErrDegenerateGeometry is returned (wrapped) when the bearing circle does not
// reach the equipment-mount plane for the requested parameters.
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// DegenerateGeometryError records the inputs that produced an impossible
// bearing-circle intersection. It is deterministic and never worth retrying.
type DegenerateGeometryError struct {
	Latitude        float64
	EquipmentMountZ float64
	TotalWeight     float64
	Radicand        float64
	Reason          string
}

func (e *DegenerateGeometryError) Error() string {
	return fmt.Sprintf("%s: %s (latitude=%g equipment_mount_z=%g total_weight=%g radicand=%g)",
		ErrDegenerateGeometry, e.Reason, e.Latitude, e.EquipmentMountZ, e.TotalWeight, e.Radicand)
}

func (e *DegenerateGeometryError) Unwrap() error { return ErrDegenerateGeometry }

// GeometryState holds every quantity derived from a ParameterSet. Lengths are
// millimetres along the platform frame: Y runs south to north along the
// ground, Z is vertical, and the polar axis passes through the origin tilted
// by Latitude. Angles are degrees.
type GeometryState struct {
	Latitude float64 `json:"latitude" yaml:"latitude"`

	CenterOfGravityHeight     float64 `json:"cog_z" yaml:"cog_z"`
	CenterOfGravityOffset     float64 `json:"cog_y" yaml:"cog_y"`
	CenterOfGravityHypotenuse float64 `json:"cog_hyp" yaml:"cog_hyp"`

	SouthBearingZ      float64 `json:"bs_z" yaml:"bs_z"`
	SouthBearingOffset float64 `json:"bs_y" yaml:"bs_y"`

	NorthBearingOffset float64 `json:"bn_y" yaml:"bn_y"`
	// NorthBearingHeight is where the vertical through the north bearing line
	// meets the polar axis.
	NorthBearingHeight float64 `json:"bn_z" yaml:"bn_z"`

	BearingCircleRadius float64 `json:"cir1_r" yaml:"cir1_r"`
	BearingCircleDepth  float64 `json:"cir1_h" yaml:"cir1_h"`

	EquipmentCircleRadius1   float64 `json:"cir1_eqp_r1" yaml:"cir1_eqp_r1"`
	EquipmentCircleRadius2   float64 `json:"cir1_eqp_r2" yaml:"cir1_eqp_r2"`
	EquipmentCircleHalfWidth float64 `json:"cir1_eqp_x" yaml:"cir1_eqp_x"`
	EquipmentCircleRise      float64 `json:"cir1_eqp_y" yaml:"cir1_eqp_y"`

	BearingAngle float64 `json:"bearing_angle" yaml:"bearing_angle"`
}

// PlatformWidth is the full east-west width of the platform top.
func (g GeometryState) PlatformWidth() float64 { return 2 * g.EquipmentCircleHalfWidth }

// PlatformLength is the south-to-north length of the platform top including
// the north bearing rise.
func (g GeometryState) PlatformLength() float64 {
	return g.NorthBearingOffset - g.SouthBearingOffset + g.EquipmentCircleRise/2
}

// Solve derives the platform geometry. It validates p first and fails fast;
// no partially computed state is ever returned.
func Solve(p model.ParameterSet) (GeometryState, error) {
	if err := p.Validate(); err != nil {
		return GeometryState{}, err
	}

	t := p.LatitudeDeg
	var g GeometryState
	g.Latitude = t

	// Centre of gravity: equipment centre, lower third of the rocker box, top
	// of the rocker box where the tube trunnions sit.
	eqpTop := p.EquipmentMountZ + p.EquipmentMountHeight
	heights := [3]float64{
		p.EquipmentMountZ + p.EquipmentMountHeight/2,
		eqpTop + p.RockerBoxHeight/3,
		eqpTop + p.RockerBoxHeight,
	}
	weights := [3]float64{p.EquipmentWeight, p.RockerBoxWeight, p.TubeWeight}
	g.CenterOfGravityHeight = (weights[0]*heights[0] + weights[1]*heights[1] + weights[2]*heights[2]) /
		(weights[0] + weights[1] + weights[2])

	g.CenterOfGravityOffset = g.CenterOfGravityHeight / tanDeg(t)
	g.CenterOfGravityHypotenuse = g.CenterOfGravityHeight / sinDeg(t)

	g.SouthBearingZ = p.EquipmentMountZ - p.SouthBearingHeight
	g.SouthBearingOffset = g.SouthBearingZ / tanDeg(t)

	g.NorthBearingOffset = g.CenterOfGravityOffset + p.RockerBoxRadius
	g.NorthBearingHeight = g.NorthBearingOffset * tanDeg(t)
	g.BearingCircleRadius = g.NorthBearingOffset * sinDeg(t)
	g.BearingCircleDepth = g.BearingCircleRadius / tanDeg(t)

	g.EquipmentCircleRadius1 = p.EquipmentMountZ / cosDeg(t)
	g.EquipmentCircleRadius2 = g.BearingCircleRadius - g.EquipmentCircleRadius1
	radicand := g.BearingCircleRadius*g.BearingCircleRadius - g.EquipmentCircleRadius2*g.EquipmentCircleRadius2
	if !(radicand > 0) {
		return GeometryState{}, &DegenerateGeometryError{
			Latitude:        t,
			EquipmentMountZ: p.EquipmentMountZ,
			TotalWeight:     p.TotalWeight(),
			Radicand:        radicand,
			Reason:          "bearing circle does not reach the equipment-mount plane",
		}
	}
	g.EquipmentCircleHalfWidth = math.Sqrt(radicand)
	g.EquipmentCircleRise = p.EquipmentMountZ * tanDeg(t)

	g.BearingAngle = atanDeg(g.EquipmentCircleRise / g.EquipmentCircleHalfWidth)
	if !(g.BearingAngle > 0 && g.BearingAngle < 90) {
		return GeometryState{}, &DegenerateGeometryError{
			Latitude:        t,
			EquipmentMountZ: p.EquipmentMountZ,
			TotalWeight:     p.TotalWeight(),
			Radicand:        radicand,
			Reason:          fmt.Sprintf("bearing angle %g is outside (0, 90)", g.BearingAngle),
		}
	}

	return g, nil
}

func sinDeg(d float64) float64 { return math.Sin(d * math.Pi / 180) }
func cosDeg(d float64) float64 { return math.Cos(d * math.Pi / 180) }
func tanDeg(d float64) float64 { return math.Tan(d * math.Pi / 180) }

func atanDeg(v float64) float64 { return math.Atan(v) * 180 / math.Pi }
