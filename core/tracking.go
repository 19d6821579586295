package core

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/eqplatform/model"
)

// TrackingPlan describes how far the platform turns during one tracking run
// and how much bearing surface that consumes.
type TrackingPlan struct {
	Start    time.Time     `json:"start" yaml:"start"`
	Duration time.Duration `json:"duration" yaml:"duration"`

	// SiderealRateDegPerMinute is the platform rotation rate derived from the
	// advance of Greenwich sidereal time.
	SiderealRateDegPerMinute float64 `json:"sidereal_rate_deg_per_minute" yaml:"sidereal_rate_deg_per_minute"`
	RotationDeg              float64 `json:"rotation_deg" yaml:"rotation_deg"`

	NorthBearingArc float64 `json:"north_bearing_arc" yaml:"north_bearing_arc"`
	SouthBearingArc float64 `json:"south_bearing_arc" yaml:"south_bearing_arc"`

	// MaxDuration is the longest run the printed north bearing segment
	// (one printer bed width of arc) can support.
	MaxDuration time.Duration `json:"max_duration" yaml:"max_duration"`
}

// PlanTracking computes the tracking plan for a run of p.TrackingMinutes
// starting at start.
func PlanTracking(g GeometryState, p model.ParameterSet, start time.Time) TrackingPlan {
	p = p.WithDefaults()
	start = start.UTC().Truncate(time.Second)
	duration := time.Duration(p.TrackingMinutes * float64(time.Minute)).Truncate(time.Second)

	rate := siderealRate(start)
	rotation := siderealAdvance(start, start.Add(duration)) * 180 / math.Pi

	plan := TrackingPlan{
		Start:                    start,
		Duration:                 duration,
		SiderealRateDegPerMinute: rate,
		RotationDeg:              rotation,
		NorthBearingArc:          g.BearingCircleRadius * rotation * math.Pi / 180,
		SouthBearingArc:          p.SouthBearingDiameter / 2 * rotation * math.Pi / 180,
	}
	if g.BearingCircleRadius > 0 && rate > 0 {
		maxDeg := p.PrinterBedX / g.BearingCircleRadius * 180 / math.Pi
		plan.MaxDuration = time.Duration(maxDeg / rate * float64(time.Minute)).Truncate(time.Second)
	}
	return plan
}

// siderealRate samples one hour of Greenwich sidereal time from start.
func siderealRate(start time.Time) float64 {
	advance := siderealAdvance(start, start.Add(time.Hour))
	return advance * 180 / math.Pi / 60
}

// siderealAdvance returns the GMST advance in radians between two instants
// less than one sidereal day apart.
func siderealAdvance(from, to time.Time) float64 {
	if !to.After(from) {
		return 0
	}
	a := satellite.ThetaG_JD(julianDay(from))
	b := satellite.ThetaG_JD(julianDay(to))
	d := math.Mod(b-a, 2*math.Pi)
	if d < 0 {
		d += 2 * math.Pi
	}
	return d
}

func julianDay(t time.Time) float64 {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	return satellite.JDay(year, int(month), day, hour, min, sec)
}
