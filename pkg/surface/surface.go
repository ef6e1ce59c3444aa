// Package surface handles open, oriented triangle surfaces: the printed top
// faces that drive the next carve step and the print bed itself.
package surface

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/shockwave/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ErrEmpty is returned when an operation needs at least one face.
var ErrEmpty = errors.New("surface: no faces")

// Up is the build direction.
var Up = v3.Vec{Z: 1}

// alignSlack absorbs rounding when comparing a face normal against the
// selection cone, so exactly aligned faces survive a zero tolerance.
const alignSlack = 1e-12

// Surface is an open set of oriented triangles with per-vertex outward
// normals. The zero value is the empty surface.
type Surface struct {
	Mesh *kernel.Mesh
}

// New wraps m.
func New(m *kernel.Mesh) Surface {
	return Surface{Mesh: m}
}

// FaceCount returns the number of triangles.
func (s Surface) FaceCount() int {
	if s.Mesh == nil {
		return 0
	}
	return s.Mesh.TriangleCount()
}

// Empty reports whether the surface has no faces.
func (s Surface) Empty() bool {
	return s.FaceCount() == 0
}

// Vertices returns the distinct vertex positions.
func (s Surface) Vertices() []v3.Vec {
	if s.Empty() {
		return nil
	}
	return s.Mesh.UniqueVertices()
}

// Area returns the total face area.
func (s Surface) Area() float64 {
	if s.Empty() {
		return 0
	}
	return s.Mesh.Area()
}

// Offset moves every vertex by d along its normal. Faces are unchanged.
// Vertices without a usable normal fall back to the normal of the first
// face that uses them.
func Offset(s Surface, d float64) Surface {
	if s.Empty() {
		return Surface{}
	}
	m := s.Mesh.Clone()
	normals := vertexNormals(s.Mesh)
	for i := range m.Vertices {
		m.Vertices[i] = m.Vertices[i].Add(normals[i].MulScalar(d))
	}
	m.Normals = normals
	return Surface{Mesh: m}
}

// vertexNormals returns one unit normal per vertex.
func vertexNormals(m *kernel.Mesh) []v3.Vec {
	out := make([]v3.Vec, len(m.Vertices))
	for i := range out {
		if i < len(m.Normals) {
			if l := m.Normals[i].Length(); l > 0 {
				out[i] = m.Normals[i].DivScalar(l)
			}
		}
	}
	for t := 0; t < m.TriangleCount(); t++ {
		n := m.FaceNormal(t)
		for j := 0; j < 3; j++ {
			if idx := m.Indices[t*3+j]; out[idx].Length() == 0 {
				out[idx] = n
			}
		}
	}
	return out
}

// SelectFacesByDirection keeps the faces of m whose unit normal lies within
// tol radians of dir, that is dot(n, dir) > cos(tol). A tolerance of π or
// more keeps every face. The result is welded so each vertex normal is the
// mean of its selected faces. An empty result is valid.
func SelectFacesByDirection(m *kernel.Mesh, dir v3.Vec, tol float64) Surface {
	if m.IsEmpty() {
		return Surface{}
	}
	dir = dir.Normalize()
	all := tol >= math.Pi
	limit := math.Cos(tol) - alignSlack

	var keep [][3]v3.Vec
	for i := 0; i < m.TriangleCount(); i++ {
		n := m.FaceNormal(i)
		if all || (n.Length() > 0 && n.Dot(dir) > limit) {
			a, b, c := m.Triangle(i)
			keep = append(keep, [3]v3.Vec{a, b, c})
		}
	}
	if len(keep) == 0 {
		return Surface{}
	}
	sub := kernel.NewMeshFromTriangles(keep)
	sub.Name = m.Name
	return Surface{Mesh: sub.Weld()}
}

// Plane returns a flat rectangular surface at height z facing up.
func Plane(minX, minY, maxX, maxY, z float64) Surface {
	a := v3.Vec{X: minX, Y: minY, Z: z}
	b := v3.Vec{X: maxX, Y: minY, Z: z}
	c := v3.Vec{X: maxX, Y: maxY, Z: z}
	d := v3.Vec{X: minX, Y: maxY, Z: z}
	m := kernel.NewMeshFromTriangles([][3]v3.Vec{{a, b, c}, {a, c, d}})
	m.Name = "plane"
	return Surface{Mesh: m.Weld()}
}

// Extrude closes a surface into a solid mesh by offsetting it d along its
// vertex normals and stitching the boundary edges of the two sheets. The
// result is oriented outward whatever the sign of d.
func Extrude(s Surface, d float64) (*kernel.Mesh, error) {
	if s.Empty() {
		return nil, ErrEmpty
	}
	if d == 0 {
		return nil, fmt.Errorf("surface: extrude by zero: %w", kernel.ErrDegenerate)
	}
	w := s.Mesh.Weld()
	normals := vertexNormals(w)
	moved := make([]v3.Vec, len(w.Vertices))
	for i, v := range w.Vertices {
		moved[i] = v.Add(normals[i].MulScalar(d))
	}

	out := &kernel.Mesh{Name: s.Mesh.Name}
	for t := 0; t < w.TriangleCount(); t++ {
		i0, i1, i2 := w.Indices[t*3], w.Indices[t*3+1], w.Indices[t*3+2]
		out.AddTriangle(w.Vertices[i0], w.Vertices[i2], w.Vertices[i1])
		out.AddTriangle(moved[i0], moved[i1], moved[i2])
	}
	for _, e := range boundaryEdges(w) {
		a, b := w.Vertices[e[0]], w.Vertices[e[1]]
		a2, b2 := moved[e[0]], moved[e[1]]
		out.AddTriangle(a, b, b2)
		out.AddTriangle(a, b2, a2)
	}

	if out.Volume() < 0 {
		for t := 0; t < out.TriangleCount(); t++ {
			out.Indices[t*3+1], out.Indices[t*3+2] = out.Indices[t*3+2], out.Indices[t*3+1]
			n := out.FaceNormal(t)
			for j := 0; j < 3; j++ {
				out.Normals[out.Indices[t*3+j]] = n
			}
		}
	}
	if !out.IsWatertight() {
		return nil, fmt.Errorf("surface: extrude %q: %w", s.Mesh.Name, kernel.ErrNotWatertight)
	}
	return out, nil
}

// boundaryEdges returns the directed edges of a welded mesh that belong to
// exactly one face, in face order.
func boundaryEdges(m *kernel.Mesh) [][2]uint32 {
	type key struct{ a, b uint32 }
	count := make(map[key]int)
	norm := func(a, b uint32) key {
		if a > b {
			a, b = b, a
		}
		return key{a, b}
	}
	for i := 0; i+2 < len(m.Indices); i += 3 {
		for j := 0; j < 3; j++ {
			count[norm(m.Indices[i+j], m.Indices[i+(j+1)%3])]++
		}
	}
	var out [][2]uint32
	for i := 0; i+2 < len(m.Indices); i += 3 {
		for j := 0; j < 3; j++ {
			a, b := m.Indices[i+j], m.Indices[i+(j+1)%3]
			if count[norm(a, b)] == 1 {
				out = append(out, [2]uint32{a, b})
			}
		}
	}
	return out
}
