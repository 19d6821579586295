// Package csg models constructive solid geometry as an explicit tree of
// primitives, boolean operations and rigid transforms, and encodes that tree
// as an OpenSCAD program for the external renderer.
package csg

import (
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Node is any element of a geometry tree. The set of implementations is closed.
type Node interface {
	isNode()
}

// Op is a boolean operator.
type Op int

const (
	OpUnion Op = iota
	OpDifference
	OpIntersection
	OpHull
)

func (o Op) keyword() string {
	switch o {
	case OpDifference:
		return "difference"
	case OpIntersection:
		return "intersection"
	case OpHull:
		return "hull"
	default:
		return "union"
	}
}

// Boolean combines its children. For OpDifference the first child is the
// base and the rest are subtracted.
type Boolean struct {
	Op       Op
	Children []Node
}

// TransformKind selects the rigid (or scaling) transform applied to a child.
type TransformKind int

const (
	Translate TransformKind = iota
	Rotate
	Mirror
	Scale
)

func (k TransformKind) keyword() string {
	switch k {
	case Rotate:
		return "rotate"
	case Mirror:
		return "mirror"
	case Scale:
		return "scale"
	default:
		return "translate"
	}
}

// Transform applies Kind with Vector to Child. Rotate vectors are Euler
// angles in degrees; Mirror vectors are the plane normal.
type Transform struct {
	Kind   TransformKind
	Vector r3.Vec
	Child  Node
}

// Projection flattens a 3D child onto the XY plane. With Cut set only the
// slice at Z=0 is kept.
type Projection struct {
	Cut   bool
	Child Node
}

// Extrude lifts a 2D child into a solid of the given height.
type Extrude struct {
	Height float64
	Center bool
	Child  Node
}

// Cube is an axis-aligned box anchored at the origin unless Center is set.
type Cube struct {
	Size   r3.Vec
	Center bool
}

// Cylinder is a (possibly truncated) cone along +Z. R1 is the bottom radius.
type Cylinder struct {
	Height float64
	R1, R2 float64
	Center bool
}

// Sphere is centred at the origin.
type Sphere struct {
	Radius float64
}

// Square is the 2D counterpart of Cube.
type Square struct {
	Size   r2.Vec
	Center bool
}

// Circle is centred at the origin.
type Circle struct {
	Radius float64
}

// Polygon is a simple closed 2D outline.
type Polygon struct {
	Points []r2.Vec
}

// Text is a 2D text outline.
type Text struct {
	Value  string
	Size   float64
	HAlign string
	VAlign string
}

// Annotation tags a subtree with machine-readable drawing metadata that the
// encoder writes as a structured comment. It never changes the geometry of
// Child.
type Annotation struct {
	Kind   string
	Label  string
	Points []r2.Vec
	Child  Node
}

func (Boolean) isNode()    {}
func (Transform) isNode()  {}
func (Projection) isNode() {}
func (Extrude) isNode()    {}
func (Cube) isNode()       {}
func (Cylinder) isNode()   {}
func (Sphere) isNode()     {}
func (Square) isNode()     {}
func (Circle) isNode()     {}
func (Polygon) isNode()    {}
func (Text) isNode()       {}
func (Annotation) isNode() {}

// Union of the non-nil children.
func Union(children ...Node) Node { return Boolean{Op: OpUnion, Children: compact(children)} }

// Difference subtracts rest from base.
func Difference(base Node, rest ...Node) Node {
	return Boolean{Op: OpDifference, Children: compact(append([]Node{base}, rest...))}
}

// Intersection of the non-nil children.
func Intersection(children ...Node) Node {
	return Boolean{Op: OpIntersection, Children: compact(children)}
}

// Hull is the convex hull of the non-nil children.
func Hull(children ...Node) Node { return Boolean{Op: OpHull, Children: compact(children)} }

// Move translates child by (x, y, z).
func Move(x, y, z float64, child Node) Node {
	return Transform{Kind: Translate, Vector: r3.Vec{X: x, Y: y, Z: z}, Child: child}
}

// Turn rotates child by Euler angles in degrees.
func Turn(x, y, z float64, child Node) Node {
	return Transform{Kind: Rotate, Vector: r3.Vec{X: x, Y: y, Z: z}, Child: child}
}

// Reflect mirrors child across the plane with normal (x, y, z).
func Reflect(x, y, z float64, child Node) Node {
	return Transform{Kind: Mirror, Vector: r3.Vec{X: x, Y: y, Z: z}, Child: child}
}

// Box returns an anchored cube of the given size.
func Box(x, y, z float64) Node { return Cube{Size: r3.Vec{X: x, Y: y, Z: z}} }

// Rect returns an anchored square of the given size.
func Rect(x, y float64) Node { return Square{Size: r2.Vec{X: x, Y: y}} }

func compact(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the children of the current node.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch v := n.(type) {
	case Boolean:
		for _, c := range v.Children {
			Walk(c, fn)
		}
	case Transform:
		Walk(v.Child, fn)
	case Projection:
		Walk(v.Child, fn)
	case Extrude:
		Walk(v.Child, fn)
	case Annotation:
		Walk(v.Child, fn)
	}
}
