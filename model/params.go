package model

import (
	"math"
	"strings"
)

// Hemisphere names the observer's hemisphere. Geometry only depends on the
// magnitude of the latitude; the hemisphere is printed on the information plate.
type Hemisphere string

const (
	HemisphereNorth Hemisphere = "north"
	HemisphereSouth Hemisphere = "south"
)

// MaxTrackingMinutes bounds a tracking run to half a sidereal day.
const MaxTrackingMinutes = 720

// ParameterSet holds the physical inputs for one platform design.
// Lengths are millimetres, weights are in any consistent unit (the original
// calculator used pounds) and angles are degrees.
type ParameterSet struct {
	PrinterBedX float64 `json:"printer_bed_x" yaml:"printer_bed_x"`

	RockerBoxRadius float64 `json:"rocker_box_radius" yaml:"rocker_box_radius"`
	RockerBoxHeight float64 `json:"rocker_box_height" yaml:"rocker_box_height"`
	TubeWeight      float64 `json:"tube_weight" yaml:"tube_weight"`
	RockerBoxWeight float64 `json:"rocker_box_weight" yaml:"rocker_box_weight"`

	LatitudeDeg float64    `json:"latitude_deg" yaml:"latitude_deg"`
	Hemisphere  Hemisphere `json:"hemisphere,omitempty" yaml:"hemisphere,omitempty"`

	EquipmentMountZ      float64 `json:"equipment_mount_z" yaml:"equipment_mount_z"`
	EquipmentMountHeight float64 `json:"equipment_mount_height" yaml:"equipment_mount_height"`
	EquipmentWeight      float64 `json:"equipment_weight" yaml:"equipment_weight"`

	SouthBearingHeight   float64 `json:"south_bearing_height" yaml:"south_bearing_height"`
	SouthBearingDiameter float64 `json:"south_bearing_diameter" yaml:"south_bearing_diameter"`

	NorthBearingHeight        float64 `json:"north_bearing_height" yaml:"north_bearing_height"`
	NorthBearingHoleDiameter  float64 `json:"north_bearing_hole_diameter" yaml:"north_bearing_hole_diameter"`
	NorthBearingSupportHeight float64 `json:"north_bearing_support_height" yaml:"north_bearing_support_height"`

	TimberThickness float64 `json:"timber_thickness,omitempty" yaml:"timber_thickness,omitempty"`
	BaseWidth       float64 `json:"base_width,omitempty" yaml:"base_width,omitempty"`
	BaseDepth       float64 `json:"base_depth,omitempty" yaml:"base_depth,omitempty"`

	TrackingMinutes float64 `json:"tracking_minutes,omitempty" yaml:"tracking_minutes,omitempty"`

	LineThickness   float64 `json:"line_thickness" yaml:"line_thickness"`
	TextSize        float64 `json:"text_size" yaml:"text_size"`
	ShowAnnotations bool    `json:"show_annotations" yaml:"show_annotations"`
}

// DefaultParameters returns the reference design: a 10" Dobsonian at 38.12°N
// printed on a 235 mm bed.
func DefaultParameters() ParameterSet {
	return ParameterSet{
		PrinterBedX:               235,
		RockerBoxRadius:           245,
		RockerBoxHeight:           535,
		TubeWeight:                24.25,
		RockerBoxWeight:           25,
		LatitudeDeg:               38.12,
		Hemisphere:                HemisphereNorth,
		EquipmentMountZ:           160,
		EquipmentMountHeight:      18,
		EquipmentWeight:           15,
		SouthBearingHeight:        75,
		SouthBearingDiameter:      15,
		NorthBearingHeight:        20,
		NorthBearingHoleDiameter:  10,
		NorthBearingSupportHeight: 10,
		TimberThickness:           18,
		BaseWidth:                 600,
		BaseDepth:                 600,
		TrackingMinutes:           60,
		LineThickness:             0.8,
		TextSize:                  5,
		ShowAnnotations:           true,
	}
}

// WithDefaults fills the optional supplemental fields (hemisphere, timber
// sizes, tracking duration) that a caller left at their zero value.
func (p ParameterSet) WithDefaults() ParameterSet {
	def := DefaultParameters()
	if p.Hemisphere == "" {
		p.Hemisphere = def.Hemisphere
	}
	p.Hemisphere = Hemisphere(strings.ToLower(strings.TrimSpace(string(p.Hemisphere))))
	if p.TimberThickness == 0 {
		p.TimberThickness = def.TimberThickness
	}
	if p.BaseWidth == 0 {
		p.BaseWidth = def.BaseWidth
	}
	if p.BaseDepth == 0 {
		p.BaseDepth = def.BaseDepth
	}
	if p.TrackingMinutes == 0 {
		p.TrackingMinutes = def.TrackingMinutes
	}
	return p
}

// TotalWeight is the sum of the component weights used for the centre of
// gravity.
func (p ParameterSet) TotalWeight() float64 {
	return p.EquipmentWeight + p.RockerBoxWeight + p.TubeWeight
}

// Validate checks every field against its domain and returns the first
// violation as a *ParameterError.
func (p ParameterSet) Validate() error {
	lengths := []struct {
		field string
		value float64
	}{
		{"printer_bed_x", p.PrinterBedX},
		{"rocker_box_radius", p.RockerBoxRadius},
		{"rocker_box_height", p.RockerBoxHeight},
		{"equipment_mount_z", p.EquipmentMountZ},
		{"equipment_mount_height", p.EquipmentMountHeight},
		{"south_bearing_height", p.SouthBearingHeight},
		{"south_bearing_diameter", p.SouthBearingDiameter},
		{"north_bearing_height", p.NorthBearingHeight},
		{"north_bearing_hole_diameter", p.NorthBearingHoleDiameter},
		{"north_bearing_support_height", p.NorthBearingSupportHeight},
		{"line_thickness", p.LineThickness},
		{"text_size", p.TextSize},
	}
	for _, l := range lengths {
		if math.IsNaN(l.value) || math.IsInf(l.value, 0) || l.value <= 0 {
			return newParameterError(l.field, l.value, "must be a positive length")
		}
	}

	if math.IsNaN(p.LatitudeDeg) || p.LatitudeDeg <= 0 || p.LatitudeDeg >= 90 {
		return newParameterError("latitude_deg", p.LatitudeDeg, "must be strictly between 0 and 90 degrees")
	}

	weights := []struct {
		field string
		value float64
	}{
		{"tube_weight", p.TubeWeight},
		{"rocker_box_weight", p.RockerBoxWeight},
		{"equipment_weight", p.EquipmentWeight},
	}
	for _, w := range weights {
		if math.IsNaN(w.value) || math.IsInf(w.value, 0) || w.value < 0 {
			return newParameterError(w.field, w.value, "must not be negative")
		}
	}
	if p.TotalWeight() <= 0 {
		return newParameterError("tube_weight", p.TotalWeight(), "total weight must be positive")
	}

	if p.SouthBearingHeight >= p.EquipmentMountZ {
		return newParameterError("south_bearing_height", p.SouthBearingHeight, "must be lower than equipment_mount_z")
	}

	switch p.Hemisphere {
	case "", HemisphereNorth, HemisphereSouth:
	default:
		return newParameterError("hemisphere", 0, "must be \"north\" or \"south\"")
	}

	optional := []struct {
		field string
		value float64
	}{
		{"timber_thickness", p.TimberThickness},
		{"base_width", p.BaseWidth},
		{"base_depth", p.BaseDepth},
		{"tracking_minutes", p.TrackingMinutes},
	}
	for _, o := range optional {
		if math.IsNaN(o.value) || math.IsInf(o.value, 0) || o.value < 0 {
			return newParameterError(o.field, o.value, "must not be negative")
		}
	}
	if p.TrackingMinutes > MaxTrackingMinutes {
		return newParameterError("tracking_minutes", p.TrackingMinutes, "must not exceed 720 minutes")
	}

	return nil
}
