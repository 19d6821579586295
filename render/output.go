// Package render turns encoded geometry descriptions into rendered files by
// driving an external CAD engine.
package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/signalsfoundry/eqplatform/model"
)

// OutputKind is the rendered file type.
type OutputKind int

const (
	OutputUnknown OutputKind = iota
	VectorDrawing
	RasterImage
	PrintMesh
	PaginatedDocument
)

var outputInfo = map[OutputKind]struct {
	name, ext, contentType string
}{
	VectorDrawing:     {"vector-2d", "svg", "image/svg+xml"},
	RasterImage:       {"raster-image", "png", "image/png"},
	PrintMesh:         {"print-mesh", "stl", "model/stl"},
	PaginatedDocument: {"paginated-document", "pdf", "application/pdf"},
}

func (k OutputKind) String() string {
	if info, ok := outputInfo[k]; ok {
		return info.name
	}
	return "unknown"
}

// Extension is the file extension without the dot.
func (k OutputKind) Extension() string {
	if info, ok := outputInfo[k]; ok {
		return info.ext
	}
	return ""
}

// ContentType is the MIME type of the rendered file.
func (k OutputKind) ContentType() string {
	if info, ok := outputInfo[k]; ok {
		return info.contentType
	}
	return "application/octet-stream"
}

// Needs2D reports whether the engine can only produce this output from a
// flat description.
func (k OutputKind) Needs2D() bool {
	return k == VectorDrawing || k == PaginatedDocument
}

// Needs3D reports whether the engine can only produce this output from a
// solid.
func (k OutputKind) Needs3D() bool { return k == PrintMesh }

// ParseOutputKind accepts an extension ("svg") or a kind name ("vector-2d").
func ParseOutputKind(raw string) (OutputKind, error) {
	key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "."))
	for k, info := range outputInfo {
		if key == info.ext || key == info.name {
			return k, nil
		}
	}
	return OutputUnknown, fmt.Errorf("%w: unknown output format %q", model.ErrInvalidParameter, raw)
}

// DefaultOutput is SVG for flat drawings and STL for solids.
func DefaultOutput(kind model.PartKind) OutputKind {
	if kind.Is2D() {
		return VectorDrawing
	}
	return PrintMesh
}

// Renderer produces a rendered file from an encoded description.
type Renderer interface {
	Render(ctx context.Context, description []byte, kind OutputKind) ([]byte, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, description []byte, kind OutputKind) ([]byte, error)

func (f RendererFunc) Render(ctx context.Context, description []byte, kind OutputKind) ([]byte, error) {
	return f(ctx, description, kind)
}
