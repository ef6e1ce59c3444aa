//go:build manifold

// Package manifold provides a CGo-based geometry kernel binding to the
// Manifold library (https://github.com/elalish/manifold). Manifold provides
// guaranteed-manifold mesh boolean operations, which makes it the exact
// reference oracle for slicing.
//
// This package requires the Manifold C library (manifoldc) to be installed.
// Build with: go build -tags=manifold
package manifold

/*
#cgo CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -lmanifoldc

#include <stdlib.h>
#include <manifold/manifoldc.h>
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/chazu/shockwave/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface checks.
var _ kernel.Kernel = (*ManifoldKernel)(nil)
var _ kernel.Solid = (*manifoldSolid)(nil)

// manifoldSolid wraps a C ManifoldManifold pointer and implements kernel.Solid.
type manifoldSolid struct {
	ptr *C.ManifoldManifold
}

// BoundingBox returns the axis-aligned bounding box of the solid.
func (s *manifoldSolid) BoundingBox() (min, max [3]float64) {
	alloc := C.manifold_alloc_box()
	bbox := C.manifold_bounding_box(alloc, s.ptr)
	defer C.manifold_delete_box(bbox)

	min[0] = float64(C.manifold_box_min_x(bbox))
	min[1] = float64(C.manifold_box_min_y(bbox))
	min[2] = float64(C.manifold_box_min_z(bbox))
	max[0] = float64(C.manifold_box_max_x(bbox))
	max[1] = float64(C.manifold_box_max_y(bbox))
	max[2] = float64(C.manifold_box_max_z(bbox))
	return min, max
}

// newSolid wraps a C ManifoldManifold pointer with Go-side finalizer
// for automatic memory management.
func newSolid(ptr *C.ManifoldManifold) *manifoldSolid {
	s := &manifoldSolid{ptr: ptr}
	runtime.SetFinalizer(s, func(s *manifoldSolid) {
		if s.ptr != nil {
			C.manifold_delete_manifold(s.ptr)
			s.ptr = nil
		}
	})
	return s
}

// checked wraps ptr and reports ErrNotWatertight when Manifold flagged the
// result as invalid.
func checked(op string, ptr *C.ManifoldManifold) (kernel.Solid, error) {
	s := newSolid(ptr)
	if status := C.manifold_status(ptr); status != C.MANIFOLD_NO_ERROR {
		return nil, fmt.Errorf("manifold: %s: status %d: %w", op, int(status), kernel.ErrNotWatertight)
	}
	return s, nil
}

// ManifoldKernel implements kernel.Kernel using the Manifold C library.
type ManifoldKernel struct{}

// New creates a new ManifoldKernel.
func New() (kernel.Kernel, error) {
	return &ManifoldKernel{}, nil
}

// Box creates a box with its minimum corner at the origin.
func (k *ManifoldKernel) Box(x, y, z float64) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_cube(alloc,
		C.double(x), C.double(y), C.double(z),
		C.int(0), // center=false
	)
	return newSolid(ptr)
}

// Cylinder creates a cylinder standing on the XY plane, centered on the Z
// axis, with the given number of circular segments.
func (k *ManifoldKernel) Cylinder(height, radius float64, segments int) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_cylinder(alloc,
		C.double(height),
		C.double(radius), // radius_low
		C.double(radius), // radius_high
		C.int(segments),
		C.int(0), // center=false
	)
	return newSolid(ptr)
}

// ConvexHull returns the convex hull of points.
func (k *ManifoldKernel) ConvexHull(points []v3.Vec) (kernel.Solid, error) {
	if len(points) < 4 {
		return nil, fmt.Errorf("manifold: convex hull of %d points: %w", len(points), kernel.ErrDegenerate)
	}
	buf := C.malloc(C.size_t(len(points)) * C.size_t(unsafe.Sizeof(C.ManifoldVec3{})))
	defer C.free(buf)
	pts := unsafe.Slice((*C.ManifoldVec3)(buf), len(points))
	for i, p := range points {
		pts[i] = C.ManifoldVec3{x: C.double(p.X), y: C.double(p.Y), z: C.double(p.Z)}
	}
	alloc := C.manifold_alloc_manifold()
	s, err := checked("hull", C.manifold_hull_pts(alloc, &pts[0], C.size_t(len(points))))
	if err != nil {
		return nil, err
	}
	if C.manifold_is_empty(s.(*manifoldSolid).ptr) != 0 {
		return nil, fmt.Errorf("manifold: convex hull: %w", kernel.ErrDegenerate)
	}
	return s, nil
}

// FromMesh builds a manifold from a closed mesh. Coincident vertices are
// welded first since Manifold requires shared vertex indices.
func (k *ManifoldKernel) FromMesh(m *kernel.Mesh) (kernel.Solid, error) {
	if !m.IsWatertight() {
		return nil, fmt.Errorf("manifold: from mesh %q: %w", m.Name, kernel.ErrNotWatertight)
	}
	w := m.Weld()
	if w.IsEmpty() {
		return newSolid(C.manifold_empty(C.manifold_alloc_manifold())), nil
	}

	props := make([]float32, 0, len(w.Vertices)*3)
	for _, v := range w.Vertices {
		props = append(props, float32(v.X), float32(v.Y), float32(v.Z))
	}
	tris := append([]uint32(nil), w.Indices...)

	meshGL := C.manifold_meshgl(C.manifold_alloc_meshgl(),
		(*C.float)(unsafe.Pointer(&props[0])), C.size_t(len(w.Vertices)), C.size_t(3),
		(*C.uint32_t)(unsafe.Pointer(&tris[0])), C.size_t(len(tris)/3),
	)
	defer C.manifold_delete_meshgl(meshGL)
	return checked("from mesh", C.manifold_of_meshgl(C.manifold_alloc_manifold(), meshGL))
}

func pair(a, b kernel.Solid) (*manifoldSolid, *manifoldSolid) {
	return a.(*manifoldSolid), b.(*manifoldSolid)
}

// Union returns the boolean union of two solids.
func (k *ManifoldKernel) Union(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb := pair(a, b)
	return checked("union", C.manifold_union(C.manifold_alloc_manifold(), sa.ptr, sb.ptr))
}

// Difference returns the boolean difference (a minus b).
func (k *ManifoldKernel) Difference(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb := pair(a, b)
	return checked("difference", C.manifold_difference(C.manifold_alloc_manifold(), sa.ptr, sb.ptr))
}

// Intersection returns the boolean intersection of two solids.
func (k *ManifoldKernel) Intersection(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb := pair(a, b)
	return checked("intersection", C.manifold_intersection(C.manifold_alloc_manifold(), sa.ptr, sb.ptr))
}

// Translate moves the solid by (x, y, z).
func (k *ManifoldKernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	ms := s.(*manifoldSolid)
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_translate(alloc, ms.ptr,
		C.double(x), C.double(y), C.double(z),
	)
	return newSolid(ptr)
}

// Rotate rotates the solid by Euler angles (in degrees) around the X, Y, Z axes.
func (k *ManifoldKernel) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	ms := s.(*manifoldSolid)
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_rotate(alloc, ms.ptr,
		C.double(x), C.double(y), C.double(z),
	)
	return newSolid(ptr)
}

// Volume returns the enclosed volume.
func (k *ManifoldKernel) Volume(s kernel.Solid) float64 {
	return float64(C.manifold_volume(s.(*manifoldSolid).ptr))
}

// IsWatertight reports whether Manifold considers the solid valid.
func (k *ManifoldKernel) IsWatertight(s kernel.Solid) bool {
	return C.manifold_status(s.(*manifoldSolid).ptr) == C.MANIFOLD_NO_ERROR
}

// ToMesh extracts a triangle mesh from the solid using Manifold's MeshGL
// format. Only positions are read; normals are recomputed per face.
func (k *ManifoldKernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	ms := s.(*manifoldSolid)

	meshAlloc := C.manifold_alloc_meshgl()
	meshGL := C.manifold_get_meshgl(meshAlloc, ms.ptr)
	defer C.manifold_delete_meshgl(meshGL)

	numVert := int(C.manifold_meshgl_num_vert(meshGL))
	numTri := int(C.manifold_meshgl_num_tri(meshGL))
	if numVert == 0 || numTri == 0 {
		return &kernel.Mesh{}, nil
	}

	// The first 3 vertex properties are always position.
	numProp := int(C.manifold_meshgl_num_prop(meshGL))
	propData := make([]float32, numVert*numProp)
	C.manifold_meshgl_vert_properties(
		(*C.float)(unsafe.Pointer(&propData[0])),
		meshGL,
	)

	indices := make([]uint32, numTri*3)
	C.manifold_meshgl_tri_verts(
		(*C.uint32_t)(unsafe.Pointer(&indices[0])),
		meshGL,
	)

	mesh := &kernel.Mesh{}
	pos := func(i uint32) v3.Vec {
		base := int(i) * numProp
		return v3.Vec{
			X: float64(propData[base+0]),
			Y: float64(propData[base+1]),
			Z: float64(propData[base+2]),
		}
	}
	for t := 0; t < numTri; t++ {
		mesh.AddTriangle(pos(indices[t*3]), pos(indices[t*3+1]), pos(indices[t*3+2]))
	}
	if mesh.TriangleCount() != numTri {
		return nil, fmt.Errorf("manifold: triangle count mismatch: got %d, expected %d",
			mesh.TriangleCount(), numTri)
	}
	return mesh, nil
}
