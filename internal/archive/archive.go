// Package archive packs a generated batch into a ZIP: one description file
// and one rendered file per part, the cutting template, a YAML manifest and a
// plain-text README.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/eqplatform/assembler"
	"github.com/signalsfoundry/eqplatform/core"
	"github.com/signalsfoundry/eqplatform/model"
	"github.com/signalsfoundry/eqplatform/part"
)

const (
	// ManifestName is the YAML summary of the batch.
	ManifestName = "manifest.yaml"
	// ReadmeName is the assembly notes for the batch.
	ReadmeName = "README.txt"
	// DescriptionDir holds the OpenSCAD sources.
	DescriptionDir = "scad/"
)

// Manifest is written as manifest.yaml.
type Manifest struct {
	BatchID    string             `yaml:"batch_id"`
	CreatedAt  time.Time          `yaml:"created_at"`
	Format     string             `yaml:"format"`
	Parameters model.ParameterSet `yaml:"parameters"`
	Geometry   core.GeometryState `yaml:"geometry"`
	Tracking   TrackingSummary    `yaml:"tracking"`
	CutList    core.CutList       `yaml:"cut_list"`
	Parts      []PartEntry        `yaml:"parts"`
	Failed     []string           `yaml:"failed,omitempty"`
}

// TrackingSummary is the tracking plan in minutes and millimetres.
type TrackingSummary struct {
	Start               time.Time `yaml:"start"`
	DurationMinutes     float64   `yaml:"duration_minutes"`
	RateDegPerMinute    float64   `yaml:"rate_deg_per_minute"`
	RotationDeg         float64   `yaml:"rotation_deg"`
	NorthBearingArcMM   float64   `yaml:"north_bearing_arc_mm"`
	SouthBearingArcMM   float64   `yaml:"south_bearing_arc_mm"`
	MaxDurationMinutes  float64   `yaml:"max_duration_minutes"`
	ExceedsNorthBearing bool      `yaml:"exceeds_north_bearing"`
}

// PartEntry lists the files of one part.
type PartEntry struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Artifact    string `yaml:"artifact,omitempty"`
	Bytes       int    `yaml:"bytes,omitempty"`
	Error       string `yaml:"error,omitempty"`
}

// NewManifest summarises b.
func NewManifest(b *assembler.Batch) Manifest {
	m := Manifest{
		BatchID:    b.ID,
		CreatedAt:  b.CreatedAt,
		Format:     b.Output.Extension(),
		Parameters: b.Parameters,
		Geometry:   b.Geometry,
		Tracking:   summarizeTracking(b.Tracking),
		CutList:    b.CutList,
		Failed:     b.FailedCodes(),
	}
	if m.Format == "" {
		m.Format = "default"
	}
	for _, res := range append(append([]assembler.PartResult(nil), b.Parts...), b.Template) {
		m.Parts = append(m.Parts, entryFor(res))
	}
	return m
}

func summarizeTracking(t core.TrackingPlan) TrackingSummary {
	return TrackingSummary{
		Start:               t.Start,
		DurationMinutes:     t.Duration.Minutes(),
		RateDegPerMinute:    t.SiderealRateDegPerMinute,
		RotationDeg:         t.RotationDeg,
		NorthBearingArcMM:   t.NorthBearingArc,
		SouthBearingArcMM:   t.SouthBearingArc,
		MaxDurationMinutes:  t.MaxDuration.Minutes(),
		ExceedsNorthBearing: t.MaxDuration > 0 && t.Duration > t.MaxDuration,
	}
}

func entryFor(res assembler.PartResult) PartEntry {
	e := PartEntry{Code: res.Kind.Code(), Name: res.Kind.String()}
	if len(res.Description.Source) > 0 {
		e.Description = DescriptionDir + res.Description.FileName()
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
		return e
	}
	e.Artifact = res.Artifact.FileName()
	e.Bytes = len(res.Artifact.Data)
	return e
}

// Write streams the batch archive to w. Failed parts keep their description
// file so they can be rendered by hand.
func Write(w io.Writer, b *assembler.Batch) error {
	zw := zip.NewWriter(w)
	modified := b.CreatedAt
	if modified.IsZero() {
		modified = time.Now()
	}

	add := func(name string, data []byte) error {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return fmt.Errorf("archive %s: %w", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("archive %s: %w", name, err)
		}
		return nil
	}

	results := append(append([]assembler.PartResult(nil), b.Parts...), b.Template)
	for _, res := range results {
		if len(res.Description.Source) > 0 {
			if err := add(DescriptionDir+res.Description.FileName(), res.Description.Source); err != nil {
				return err
			}
		}
		if res.Err == nil && len(res.Artifact.Data) > 0 {
			if err := add(res.Artifact.FileName(), res.Artifact.Data); err != nil {
				return err
			}
		}
	}

	manifest, err := yaml.Marshal(NewManifest(b))
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := add(ManifestName, manifest); err != nil {
		return err
	}
	if err := add(ReadmeName, Readme(b)); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

// Bytes returns the archive as a byte slice.
func Bytes(b *assembler.Batch) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Readme renders the assembly notes: the information plate lines, the timber
// cut list, the tracking plan and any failed parts.
func Readme(b *assembler.Batch) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Equatorial platform parts (batch %s)\n", b.ID)
	fmt.Fprintf(&sb, "Generated %s\n\n", b.CreatedAt.UTC().Format(time.RFC3339))

	for _, line := range part.InfoLines(b.Geometry, b.Parameters) {
		fmt.Fprintf(&sb, "%-16s %s\n", line[0]+":", line[1])
	}
	fmt.Fprintf(&sb, "%-16s %.2f°\n\n", "Bearing angle:", b.Geometry.BearingAngle)

	cl := b.CutList
	sb.WriteString("Timber\n")
	for _, board := range []core.Board{cl.Base, cl.Platform} {
		fmt.Fprintf(&sb, "  %-10s %.0f x %.0f x %.0f mm\n", board.Name, board.Width, board.Depth, board.Thickness)
	}
	fmt.Fprintf(&sb, "  bearings need at least %.0f x %.0f mm", cl.MinPlatformWidth, cl.MinPlatformDepth)
	if !cl.FitsPlatform {
		sb.WriteString(" (platform board too small)")
	}
	sb.WriteString("\n\nBearing holes, from the south bearing (x east, y north)\n")
	for _, h := range cl.Holes {
		fmt.Fprintf(&sb, "  %-20s x %7.1f  y %7.1f mm\n", h.Name, h.X, h.Y)
	}

	t := b.Tracking
	sb.WriteString("\nTracking\n")
	fmt.Fprintf(&sb, "  %.0f min turns the platform %.2f° (%.1f mm along the north bearing)\n",
		t.Duration.Minutes(), t.RotationDeg, t.NorthBearingArc)
	fmt.Fprintf(&sb, "  the printed north bearing supports about %.0f min\n", t.MaxDuration.Minutes())

	sb.WriteString("\nFiles\n")
	names := make([]string, 0, len(b.Parts)+1)
	for _, res := range append(append([]assembler.PartResult(nil), b.Parts...), b.Template) {
		if res.Err == nil {
			names = append(names, res.Artifact.FileName())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&sb, "  %s\n", n)
	}

	if failed := b.Failed(); len(failed) > 0 {
		sb.WriteString("\nFailed parts (render the .scad file by hand)\n")
		for _, res := range failed {
			fmt.Fprintf(&sb, "  %s: %v\n", res.Kind.Code(), res.Err)
		}
	}
	return []byte(sb.String())
}
