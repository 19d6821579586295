package csg

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrSerialization is returned (wrapped) when a tree cannot be expressed in
// the renderer's input language.
var ErrSerialization = errors.New("serialization error")

// DefaultSegments is the $fn used for curved primitives.
const DefaultSegments = 250

// Constant is a named top-level assignment. Value must be a float64, int,
// bool or string.
type Constant struct {
	Name  string
	Value any
}

// Document is a complete renderer input: header comments, resolution,
// named constants and the geometry tree.
type Document struct {
	Comments  []string
	Segments  int
	Constants []Constant
	Root      Node
}

// Encode writes doc as an OpenSCAD program.
func Encode(w io.Writer, doc Document) error {
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw}
	e.document(doc)
	if e.err != nil {
		return e.err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("csg: flush: %w", err)
	}
	return nil
}

// EncodeBytes is Encode into a byte slice.
func EncodeBytes(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type encoder struct {
	w     *bufio.Writer
	depth int
	err   error
}

func (e *encoder) fail(format string, args ...any) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s", ErrSerialization, fmt.Sprintf(format, args...))
	}
}

func (e *encoder) line(s string) {
	if e.err != nil {
		return
	}
	e.w.WriteString(strings.Repeat("  ", e.depth))
	e.w.WriteString(s)
	e.w.WriteByte('\n')
}

func (e *encoder) document(doc Document) {
	for _, c := range doc.Comments {
		for _, l := range strings.Split(c, "\n") {
			e.line("// " + l)
		}
	}
	segments := doc.Segments
	if segments <= 0 {
		segments = DefaultSegments
	}
	e.line(fmt.Sprintf("$fn = %d;", segments))
	for _, c := range doc.Constants {
		if !validIdent(c.Name) {
			e.fail("invalid constant name %q", c.Name)
			return
		}
		e.line(fmt.Sprintf("%s = %s;", c.Name, e.value(c.Value)))
	}
	if doc.Root == nil {
		e.fail("document has no geometry")
		return
	}
	e.line("")
	e.node(doc.Root)
}

func (e *encoder) value(v any) string {
	switch t := v.(type) {
	case float64:
		return e.num(t)
	case int:
		return strconv.Itoa(t)
	case bool:
		return Bool(t)
	case string:
		return Quote(t)
	default:
		e.fail("unsupported constant type %T", v)
		return ""
	}
}

func (e *encoder) num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		e.fail("non-finite number %v", v)
		return "0"
	}
	return Number(v)
}

func (e *encoder) vec3(v r3.Vec) string {
	return "[" + e.num(v.X) + ", " + e.num(v.Y) + ", " + e.num(v.Z) + "]"
}

func (e *encoder) vec2(v r2.Vec) string {
	return "[" + e.num(v.X) + ", " + e.num(v.Y) + "]"
}

func (e *encoder) block(head string, children ...Node) {
	e.line(head + " {")
	e.depth++
	for _, c := range children {
		e.node(c)
	}
	e.depth--
	e.line("}")
}

func (e *encoder) node(n Node) {
	if e.err != nil {
		return
	}
	switch v := n.(type) {
	case Boolean:
		e.block(v.Op.keyword()+"()", v.Children...)
	case Transform:
		e.block(fmt.Sprintf("%s(%s)", v.Kind.keyword(), e.vec3(v.Vector)), v.Child)
	case Projection:
		e.block(fmt.Sprintf("projection(cut = %s)", Bool(v.Cut)), v.Child)
	case Extrude:
		if v.Height <= 0 {
			e.fail("linear_extrude height %v must be positive", v.Height)
			return
		}
		e.block(fmt.Sprintf("linear_extrude(height = %s, center = %s)", e.num(v.Height), Bool(v.Center)), v.Child)
	case Annotation:
		e.line(e.annotationComment(v))
		if v.Child != nil {
			e.node(v.Child)
		}
	case Cube:
		e.line(fmt.Sprintf("cube(%s, center = %s);", e.vec3(v.Size), Bool(v.Center)))
	case Cylinder:
		e.line(fmt.Sprintf("cylinder(h = %s, r1 = %s, r2 = %s, center = %s);",
			e.num(v.Height), e.num(v.R1), e.num(v.R2), Bool(v.Center)))
	case Sphere:
		e.line(fmt.Sprintf("sphere(r = %s);", e.num(v.Radius)))
	case Square:
		e.line(fmt.Sprintf("square(%s, center = %s);", e.vec2(v.Size), Bool(v.Center)))
	case Circle:
		e.line(fmt.Sprintf("circle(r = %s);", e.num(v.Radius)))
	case Polygon:
		if len(v.Points) < 3 {
			e.fail("polygon needs at least 3 points, got %d", len(v.Points))
			return
		}
		pts := make([]string, len(v.Points))
		for i, p := range v.Points {
			pts[i] = e.vec2(p)
		}
		e.line("polygon(points = [" + strings.Join(pts, ", ") + "]);")
	case Text:
		halign, valign := v.HAlign, v.VAlign
		if halign == "" {
			halign = "left"
		}
		if valign == "" {
			valign = "baseline"
		}
		e.line(fmt.Sprintf("text(%s, size = %s, halign = %s, valign = %s);",
			Quote(v.Value), e.num(v.Size), Quote(halign), Quote(valign)))
	case nil:
		e.fail("nil node")
	default:
		e.fail("unsupported node %T", n)
	}
}

func (e *encoder) annotationComment(a Annotation) string {
	if !validIdent(a.Kind) {
		e.fail("invalid annotation kind %q", a.Kind)
		return ""
	}
	var b strings.Builder
	b.WriteString(annotationPrefix)
	b.WriteString(a.Kind)
	b.WriteByte(' ')
	b.WriteString(Quote(a.Label))
	for _, p := range a.Points {
		b.WriteByte(' ')
		b.WriteString(e.vec2(p))
	}
	return b.String()
}

// Number formats v with the shortest representation that parses back to the
// same float64. Negative zero is written as 0.
func Number(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Bool formats a boolean as a lowercase literal.
func Bool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

var quoteReplacer = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// Quote returns s as a double-quoted string literal.
func Quote(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
