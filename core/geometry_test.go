package core

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/signalsfoundry/eqplatform/model"
)

func TestSolve_ReferenceDesign(t *testing.T) {
	g, err := Solve(model.DefaultParameters())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	want := GeometryState{
		Latitude:                  38.12,
		CenterOfGravityHeight:     447.21530479896245,
		CenterOfGravityOffset:     569.9449845118128,
		CenterOfGravityHypotenuse: 724.4576000130024,
		SouthBearingZ:             85,
		SouthBearingOffset:        108.3266229121604,
		NorthBearingOffset:        814.9449845118128,
		NorthBearingHeight:        g.NorthBearingHeight,
		BearingCircleRadius:       503.0741200538098,
		BearingCircleDepth:        g.BearingCircleDepth,
		EquipmentCircleRadius1:    203.37614884244667,
		EquipmentCircleRadius2:    299.6979712113631,
		EquipmentCircleHalfWidth:  404.0602632277864,
		EquipmentCircleRise:       125.54623816739797,
		BearingAngle:              17.260629270549007,
	}
	if diff := cmp.Diff(want, g, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("reference geometry mismatch (-want +got):\n%s", diff)
	}
}

func TestSolve_DerivedRelations(t *testing.T) {
	p := model.DefaultParameters()
	g, err := Solve(p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	tan := math.Tan(g.Latitude * math.Pi / 180)
	checks := []struct {
		name      string
		got, want float64
	}{
		{"cog_y", g.CenterOfGravityOffset, g.CenterOfGravityHeight / tan},
		{"bs_z", g.SouthBearingZ, p.EquipmentMountZ - p.SouthBearingHeight},
		{"bn_y", g.NorthBearingOffset, g.CenterOfGravityOffset + p.RockerBoxRadius},
		{"bn_z", g.NorthBearingHeight, g.NorthBearingOffset * tan},
		{"cir1_eqp_r2", g.EquipmentCircleRadius2, g.BearingCircleRadius - g.EquipmentCircleRadius1},
		{"x^2+r2^2", g.EquipmentCircleHalfWidth*g.EquipmentCircleHalfWidth + g.EquipmentCircleRadius2*g.EquipmentCircleRadius2,
			g.BearingCircleRadius * g.BearingCircleRadius},
		{"tan B", math.Tan(g.BearingAngle * math.Pi / 180), g.EquipmentCircleRise / g.EquipmentCircleHalfWidth},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-9*math.Max(1, math.Abs(c.want)) {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestSolve_Deterministic(t *testing.T) {
	p := model.DefaultParameters()
	a, err := Solve(p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	for i := 0; i < 10; i++ {
		b, err := Solve(p)
		if err != nil {
			t.Fatalf("Solve: %v", err)
		}
		if a != b {
			t.Fatalf("run %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestSolve_InvalidParameters(t *testing.T) {
	cases := []struct {
		name  string
		field string
		edit  func(*model.ParameterSet)
	}{
		{"latitude zero", "latitude_deg", func(p *model.ParameterSet) { p.LatitudeDeg = 0 }},
		{"latitude ninety", "latitude_deg", func(p *model.ParameterSet) { p.LatitudeDeg = 90 }},
		{"latitude NaN", "latitude_deg", func(p *model.ParameterSet) { p.LatitudeDeg = math.NaN() }},
		{"negative radius", "rocker_box_radius", func(p *model.ParameterSet) { p.RockerBoxRadius = -1 }},
		{"zero bed", "printer_bed_x", func(p *model.ParameterSet) { p.PrinterBedX = 0 }},
		{"south bearing above mount", "south_bearing_height", func(p *model.ParameterSet) { p.SouthBearingHeight = p.EquipmentMountZ }},
		{"no weight", "tube_weight", func(p *model.ParameterSet) {
			p.TubeWeight, p.RockerBoxWeight, p.EquipmentWeight = 0, 0, 0
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := model.DefaultParameters()
			tc.edit(&p)
			_, err := Solve(p)
			if !errors.Is(err, model.ErrInvalidParameter) {
				t.Fatalf("expected ErrInvalidParameter, got %v", err)
			}
			var pe *model.ParameterError
			if !errors.As(err, &pe) || pe.Field != tc.field {
				t.Fatalf("expected field %q, got %v", tc.field, err)
			}
		})
	}
}

func TestSolve_DegenerateGeometry(t *testing.T) {
	p := model.DefaultParameters()
	p.LatitudeDeg = 85

	_, err := Solve(p)
	if !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("expected ErrDegenerateGeometry, got %v", err)
	}
	var de *DegenerateGeometryError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DegenerateGeometryError, got %T", err)
	}
	if de.Radicand > 0 {
		t.Fatalf("radicand %v should not be positive", de.Radicand)
	}
	if de.Latitude != 85 || de.EquipmentMountZ != p.EquipmentMountZ {
		t.Fatalf("error does not carry inputs: %+v", de)
	}
}

func TestSolve_LatitudeBoundaries(t *testing.T) {
	for _, lat := range []float64{1e-9, 89.999999} {
		p := model.DefaultParameters()
		p.LatitudeDeg = lat
		g, err := Solve(p)
		if err != nil {
			if !errors.Is(err, ErrDegenerateGeometry) {
				t.Fatalf("latitude %v: unexpected error %v", lat, err)
			}
			continue
		}
		for name, v := range map[string]float64{
			"cog_y":         g.CenterOfGravityOffset,
			"cir1_eqp_x":    g.EquipmentCircleHalfWidth,
			"bearing_angle": g.BearingAngle,
		} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("latitude %v: %s is not finite", lat, name)
			}
		}
	}
}

func TestSolve_BearingAngleFallsWithRockerRadius(t *testing.T) {
	p := model.DefaultParameters()
	prev := math.Inf(1)
	for r := 150.0; r <= 400; r += 25 {
		p.RockerBoxRadius = r
		g, err := Solve(p)
		if err != nil {
			t.Fatalf("radius %v: %v", r, err)
		}
		if !(g.BearingAngle < prev) {
			t.Fatalf("radius %v: bearing angle %v did not fall below %v", r, g.BearingAngle, prev)
		}
		prev = g.BearingAngle
	}
}

func TestPlatformExtent(t *testing.T) {
	g, err := Solve(model.DefaultParameters())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got, want := g.PlatformWidth(), 2*404.0602632277864; math.Abs(got-want) > 1e-9 {
		t.Errorf("PlatformWidth = %v, want %v", got, want)
	}
	wantLen := 814.9449845118128 - 108.3266229121604 + 125.54623816739797/2
	if got := g.PlatformLength(); math.Abs(got-wantLen) > 1e-9 {
		t.Errorf("PlatformLength = %v, want %v", got, wantLen)
	}
}
