// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library.
//
// Booleans are exact on the distance fields but every measure (volume,
// watertightness, mesh output) goes through marching cubes, so results are
// approximate at the configured mesh resolution.
package sdfx

import (
	"fmt"
	"math"
	"sync"

	"github.com/chazu/shockwave/pkg/kernel"
	"github.com/chazu/shockwave/pkg/kernel/hull"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

// defaultMeshCells controls marching cubes tessellation resolution.
const defaultMeshCells = 200

// sdfxSolid wraps an sdf.SDF3 to implement kernel.Solid. Solids built from
// explicit geometry keep that mesh so they can be measured without
// resampling.
type sdfxSolid struct {
	s     sdf.SDF3
	empty bool
	exact *kernel.Mesh
	// meet holds the operands of an intersection.
	meet [2]*sdfxSolid

	once sync.Once
	mesh *kernel.Mesh
}

// BoundingBox returns the axis-aligned bounding box.
func (s *sdfxSolid) BoundingBox() (min, max [3]float64) {
	if s.empty {
		return min, max
	}
	bb := s.s.BoundingBox()
	min = [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	max = [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	return min, max
}

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct {
	cells int
}

// Option configures an SdfxKernel.
type Option func(*SdfxKernel)

// WithMeshCells sets the marching cubes resolution along the longest axis.
func WithMeshCells(n int) Option {
	return func(k *SdfxKernel) {
		if n > 0 {
			k.cells = n
		}
	}
}

// New returns a new SdfxKernel.
func New(opts ...Option) *SdfxKernel {
	k := &SdfxKernel{cells: defaultMeshCells}
	for _, o := range opts {
		o(k)
	}
	return k
}

// unwrap extracts the underlying solid from a kernel.Solid.
func unwrap(s kernel.Solid) *sdfxSolid {
	if s == nil {
		return &sdfxSolid{empty: true}
	}
	return s.(*sdfxSolid)
}

// wrap creates a kernel.Solid from an sdf.SDF3.
func wrap(s sdf.SDF3) kernel.Solid {
	return &sdfxSolid{s: s}
}

func emptySolid() kernel.Solid {
	return &sdfxSolid{empty: true}
}

// Box creates a box with the given dimensions. The resulting solid has its
// minimum corner at the origin. sdf.Box3D centers the box at the origin, so
// we translate by half-dimensions.
func (k *SdfxKernel) Box(x, y, z float64) kernel.Solid {
	s, err := sdf.Box3D(v3.Vec{X: x, Y: y, Z: z}, 0)
	if err != nil {
		panic(fmt.Sprintf("sdfx.Box3D: %v", err))
	}
	m := sdf.Translate3d(v3.Vec{X: x / 2, Y: y / 2, Z: z / 2})
	return wrap(sdf.Transform3D(s, m))
}

// Cylinder creates a cylinder standing on the XY plane. The segments
// parameter is ignored since SDF represents smooth surfaces.
func (k *SdfxKernel) Cylinder(height, radius float64, segments int) kernel.Solid {
	s, err := sdf.Cylinder3D(height, radius, 0)
	if err != nil {
		panic(fmt.Sprintf("sdfx.Cylinder3D: %v", err))
	}
	return wrap(sdf.Transform3D(s, sdf.Translate3d(v3.Vec{Z: height / 2})))
}

// FromMesh wraps a closed mesh as a signed distance field.
func (k *SdfxKernel) FromMesh(m *kernel.Mesh) (kernel.Solid, error) {
	if m.IsEmpty() {
		return emptySolid(), nil
	}
	if !m.IsWatertight() {
		return nil, fmt.Errorf("sdfx: from mesh %q: %w", m.Name, kernel.ErrNotWatertight)
	}
	if m.Volume() <= 0 {
		return emptySolid(), nil
	}
	return &sdfxSolid{s: newMeshSDF(m), exact: m.Clone()}, nil
}

// ConvexHull returns the hull of points as the intersection of its
// supporting half-spaces.
func (k *SdfxKernel) ConvexHull(points []v3.Vec) (kernel.Solid, error) {
	h, err := hull.New(points)
	if err != nil {
		return nil, fmt.Errorf("sdfx: convex hull: %w: %v", kernel.ErrDegenerate, err)
	}
	return &sdfxSolid{
		s:     newHullSDF(h),
		exact: kernel.NewMeshFromTriangles(h.Triangles()),
	}, nil
}

// Union returns the union of two solids.
func (k *SdfxKernel) Union(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb := unwrap(a), unwrap(b)
	switch {
	case sa.empty:
		return sb, nil
	case sb.empty:
		return sa, nil
	}
	return wrap(sdf.Union3D(sa.s, sb.s)), nil
}

// Difference returns the difference a - b. Removing a ∩ c from a is
// rewritten as removing c, so a carve loop that subtracts the part of the
// remaining material it just reached keeps a field whose depth grows by one
// operand per step.
func (k *SdfxKernel) Difference(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb := unwrap(a), unwrap(b)
	if sa.empty || sb.empty {
		return sa, nil
	}
	if sb.meet[0] == sa {
		sb = sb.meet[1]
	} else if sb.meet[1] == sa {
		sb = sb.meet[0]
	}
	return wrap(sdf.Difference3D(sa.s, sb.s)), nil
}

// Intersection returns the intersection of two solids.
func (k *SdfxKernel) Intersection(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb := unwrap(a), unwrap(b)
	if sa.empty || sb.empty {
		return emptySolid(), nil
	}
	if !boxesOverlap(sa.s.BoundingBox(), sb.s.BoundingBox()) {
		return emptySolid(), nil
	}
	return &sdfxSolid{s: sdf.Intersect3D(sa.s, sb.s), meet: [2]*sdfxSolid{sa, sb}}, nil
}

func boxesOverlap(a, b sdf.Box3) bool {
	return a.Min.X < b.Max.X && b.Min.X < a.Max.X &&
		a.Min.Y < b.Max.Y && b.Min.Y < a.Max.Y &&
		a.Min.Z < b.Max.Z && b.Min.Z < a.Max.Z
}

// Translate moves a solid by (x, y, z).
func (k *SdfxKernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	ss := unwrap(s)
	if ss.empty {
		return ss
	}
	m := sdf.Translate3d(v3.Vec{X: x, Y: y, Z: z})
	return wrap(sdf.Transform3D(ss.s, m))
}

// Rotate rotates a solid by Euler angles (degrees) around X, Y, Z axes.
func (k *SdfxKernel) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	ss := unwrap(s)
	if ss.empty {
		return ss
	}
	xRad := x * math.Pi / 180.0
	yRad := y * math.Pi / 180.0
	zRad := z * math.Pi / 180.0

	m := sdf.RotateZ(zRad).Mul(sdf.RotateY(yRad)).Mul(sdf.RotateX(xRad))
	return wrap(sdf.Transform3D(ss.s, m))
}

// Volume returns the volume enclosed by the solid's mesh.
func (k *SdfxKernel) Volume(s kernel.Solid) float64 {
	m, err := k.ToMesh(s)
	if err != nil {
		return 0
	}
	return m.Volume()
}

// IsWatertight reports whether the solid's mesh is closed.
func (k *SdfxKernel) IsWatertight(s kernel.Solid) bool {
	m, err := k.ToMesh(s)
	if err != nil {
		return false
	}
	return m.IsWatertight()
}

// ToMesh converts a solid to a triangle mesh using marching cubes. The
// result is cached on the solid.
func (k *SdfxKernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	ss := unwrap(s)
	if ss.empty {
		return &kernel.Mesh{}, nil
	}
	if ss.exact != nil {
		return ss.exact.Clone(), nil
	}
	ss.once.Do(func() {
		renderer := render.NewMarchingCubesUniform(k.cells)
		triangles := render.ToTriangles(ss.s, renderer)

		mesh := &kernel.Mesh{
			Vertices: make([]v3.Vec, 0, len(triangles)*3),
			Normals:  make([]v3.Vec, 0, len(triangles)*3),
			Indices:  make([]uint32, 0, len(triangles)*3),
		}
		for i, tri := range triangles {
			n := tri.Normal()
			for j := 0; j < 3; j++ {
				mesh.Vertices = append(mesh.Vertices, tri[j])
				mesh.Normals = append(mesh.Normals, n)
				mesh.Indices = append(mesh.Indices, uint32(i*3+j))
			}
		}
		ss.mesh = mesh
	})
	return ss.mesh.Clone(), nil
}
