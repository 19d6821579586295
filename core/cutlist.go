package core

import (
	"fmt"

	"github.com/signalsfoundry/eqplatform/model"
)

// platformBoardRatio sizes the rotating board relative to the base board.
const platformBoardRatio = 0.9

// Board is one rectangular timber panel.
type Board struct {
	Name      string  `json:"name" yaml:"name"`
	Width     float64 `json:"width" yaml:"width"`
	Depth     float64 `json:"depth" yaml:"depth"`
	Thickness float64 `json:"thickness" yaml:"thickness"`
}

// HolePosition is measured from the south bearing, X east, Y north.
type HolePosition struct {
	Name string  `json:"name" yaml:"name"`
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
}

// CutList is the timber bill of materials for the platform.
type CutList struct {
	Base     Board          `json:"base" yaml:"base"`
	Platform Board          `json:"platform" yaml:"platform"`
	Holes    []HolePosition `json:"holes" yaml:"holes"`

	// MinPlatformWidth and MinPlatformDepth are the footprint the bearings
	// need; FitsPlatform reports whether the platform board covers it.
	MinPlatformWidth float64 `json:"min_platform_width" yaml:"min_platform_width"`
	MinPlatformDepth float64 `json:"min_platform_depth" yaml:"min_platform_depth"`
	FitsPlatform     bool    `json:"fits_platform" yaml:"fits_platform"`
}

// BuildCutList lays out the base and platform boards and the bearing holes.
func BuildCutList(g GeometryState, p model.ParameterSet) CutList {
	p = p.WithDefaults()
	cl := CutList{
		Base: Board{
			Name:      "base",
			Width:     p.BaseWidth,
			Depth:     p.BaseDepth,
			Thickness: p.TimberThickness,
		},
		Platform: Board{
			Name:      "platform",
			Width:     p.BaseWidth * platformBoardRatio,
			Depth:     p.BaseDepth * platformBoardRatio,
			Thickness: p.TimberThickness,
		},
		MinPlatformWidth: g.PlatformWidth(),
		MinPlatformDepth: g.PlatformLength(),
	}

	north := NorthMounting(g, p)
	holeY := north.HoleY - g.SouthBearingOffset
	cl.Holes = []HolePosition{{Name: "south bearing", X: 0, Y: 0}}
	for i, x := range north.HoleX {
		cl.Holes = append(cl.Holes,
			HolePosition{Name: fmt.Sprintf("north-east bearing %d", i+1), X: x, Y: holeY},
			HolePosition{Name: fmt.Sprintf("north-west bearing %d", i+1), X: -x, Y: holeY},
		)
	}
	cl.FitsPlatform = cl.Platform.Width >= cl.MinPlatformWidth && cl.Platform.Depth >= cl.MinPlatformDepth
	return cl
}
