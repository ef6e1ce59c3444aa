// Package kernel defines the abstract geometry kernel interface.
// Implementations (polytope, sdfx, manifold) provide solid modeling and
// boolean operations behind this interface. The slicer only ever talks to
// this interface, so backends can be swapped without touching the carve loop.
package kernel

import (
	"errors"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ErrNotWatertight is returned whenever a solid (input, intermediate or
// result) is not a closed 2-manifold. It is always fatal for a carve run.
var ErrNotWatertight = errors.New("kernel: solid is not watertight")

// ErrDegenerate is returned when an operation would produce a solid with no
// interior, such as the hull of coplanar points.
var ErrDegenerate = errors.New("kernel: degenerate geometry")

// Solid is an opaque, immutable handle to a kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel is the abstract geometry kernel interface, the boolean volume
// oracle of the slicer. All operands must be watertight; operations report
// ErrNotWatertight instead of returning a degenerate result.
type Kernel interface {
	// Primitives. Box has its minimum corner at the origin; Cylinder stands
	// on the XY plane, centered on the Z axis.
	Box(x, y, z float64) Solid
	Cylinder(height, radius float64, segments int) Solid

	// Construction from external data.
	FromMesh(m *Mesh) (Solid, error)
	ConvexHull(points []v3.Vec) (Solid, error)

	// Boolean operations
	Union(a, b Solid) (Solid, error)
	Difference(a, b Solid) (Solid, error)
	Intersection(a, b Solid) (Solid, error)

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees

	// Measures
	Volume(s Solid) float64
	IsWatertight(s Solid) bool

	// Mesh output
	ToMesh(s Solid) (*Mesh, error)
}
