package kernel

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// weldQuantum is the grid used to identify coincident vertices when checking
// topology. Meshes are in millimetres, so this is well below print resolution.
const weldQuantum = 1e-6

// Mesh is an indexed triangle mesh. Normals holds one outward normal per
// vertex and Indices holds 3 vertex indices per triangle, counter-clockwise
// when seen from outside.
type Mesh struct {
	Vertices []v3.Vec `json:"vertices"`
	Normals  []v3.Vec `json:"normals"`
	Indices  []uint32 `json:"indices"`
	Name     string   `json:"name,omitempty"`
}

// NewMeshFromTriangles builds a mesh with three private vertices per
// triangle, each carrying the flat face normal.
func NewMeshFromTriangles(tris [][3]v3.Vec) *Mesh {
	m := &Mesh{
		Vertices: make([]v3.Vec, 0, len(tris)*3),
		Normals:  make([]v3.Vec, 0, len(tris)*3),
		Indices:  make([]uint32, 0, len(tris)*3),
	}
	for _, t := range tris {
		m.AddTriangle(t[0], t[1], t[2])
	}
	return m
}

// AddTriangle appends a triangle with its own vertices and flat normal.
func (m *Mesh) AddTriangle(a, b, c v3.Vec) {
	n := TriangleNormal(a, b, c)
	base := uint32(len(m.Vertices))
	m.Vertices = append(m.Vertices, a, b, c)
	m.Normals = append(m.Normals, n, n, n)
	m.Indices = append(m.Indices, base, base+1, base+2)
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no triangles.
func (m *Mesh) IsEmpty() bool {
	return m == nil || len(m.Indices) == 0
}

// Triangle returns the corner positions of triangle i.
func (m *Mesh) Triangle(i int) (a, b, c v3.Vec) {
	return m.Vertices[m.Indices[i*3]], m.Vertices[m.Indices[i*3+1]], m.Vertices[m.Indices[i*3+2]]
}

// FaceNormal returns the unit normal of triangle i derived from its winding.
// Degenerate triangles yield the zero vector.
func (m *Mesh) FaceNormal(i int) v3.Vec {
	a, b, c := m.Triangle(i)
	return TriangleNormal(a, b, c)
}

// TriangleNormal returns the unit normal of the counter-clockwise triangle
// abc, or the zero vector when the triangle has no area.
func TriangleNormal(a, b, c v3.Vec) v3.Vec {
	n := b.Sub(a).Cross(c.Sub(a))
	l := n.Length()
	if l < 1e-15 {
		return v3.Vec{}
	}
	return n.DivScalar(l)
}

// Area returns the total surface area.
func (m *Mesh) Area() float64 {
	var area float64
	for i := 0; i < m.TriangleCount(); i++ {
		a, b, c := m.Triangle(i)
		area += b.Sub(a).Cross(c.Sub(a)).Length() / 2
	}
	return area
}

// Volume returns the signed enclosed volume by the divergence theorem.
// It is only meaningful for closed, outward-oriented meshes.
func (m *Mesh) Volume() float64 {
	var vol float64
	for i := 0; i < m.TriangleCount(); i++ {
		a, b, c := m.Triangle(i)
		vol += a.Dot(b.Cross(c))
	}
	return vol / 6
}

// Bounds returns the axis-aligned bounds of all referenced vertices.
func (m *Mesh) Bounds() (min, max v3.Vec) {
	if len(m.Vertices) == 0 {
		return v3.Vec{}, v3.Vec{}
	}
	min, max = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		min = min.Min(v)
		max = max.Max(v)
	}
	return min, max
}

type weldKey [3]int64

func keyOf(v v3.Vec) weldKey {
	return weldKey{
		int64(math.Round(v.X / weldQuantum)),
		int64(math.Round(v.Y / weldQuantum)),
		int64(math.Round(v.Z / weldQuantum)),
	}
}

// IsWatertight reports whether the mesh is a closed, consistently oriented
// 2-manifold: after welding coincident vertices every directed edge of a
// non-degenerate triangle is matched by exactly one opposite edge.
// The empty mesh is trivially watertight.
func (m *Mesh) IsWatertight() bool {
	if m == nil {
		return true
	}
	ids := make(map[weldKey]int)
	id := func(v v3.Vec) int {
		k := keyOf(v)
		if n, ok := ids[k]; ok {
			return n
		}
		n := len(ids)
		ids[k] = n
		return n
	}
	type edge struct{ a, b int }
	edges := make(map[edge]int)
	for i := 0; i < m.TriangleCount(); i++ {
		a, b, c := m.Triangle(i)
		ia, ib, ic := id(a), id(b), id(c)
		if ia == ib || ib == ic || ic == ia {
			continue
		}
		edges[edge{ia, ib}]++
		edges[edge{ib, ic}]++
		edges[edge{ic, ia}]++
	}
	for e, n := range edges {
		if n != 1 || edges[edge{e.b, e.a}] != 1 {
			return false
		}
	}
	return true
}

// Weld returns a copy of the mesh in which coincident vertices are shared.
// Normals of merged vertices are averaged and renormalized.
func (m *Mesh) Weld() *Mesh {
	out := &Mesh{Name: m.Name}
	ids := make(map[weldKey]uint32)
	for _, idx := range m.Indices {
		v := m.Vertices[idx]
		var n v3.Vec
		if int(idx) < len(m.Normals) {
			n = m.Normals[idx]
		}
		k := keyOf(v)
		j, ok := ids[k]
		if !ok {
			j = uint32(len(out.Vertices))
			ids[k] = j
			out.Vertices = append(out.Vertices, v)
			out.Normals = append(out.Normals, v3.Vec{})
		}
		out.Normals[j] = out.Normals[j].Add(n)
		out.Indices = append(out.Indices, j)
	}
	for i, n := range out.Normals {
		if l := n.Length(); l > 0 {
			out.Normals[i] = n.DivScalar(l)
		}
	}
	return out
}

// Subset returns a new mesh containing only the listed triangles, with
// vertices and normals compacted.
func (m *Mesh) Subset(triangles []int) *Mesh {
	out := &Mesh{Name: m.Name}
	remap := make(map[uint32]uint32)
	for _, t := range triangles {
		for j := 0; j < 3; j++ {
			idx := m.Indices[t*3+j]
			k, ok := remap[idx]
			if !ok {
				k = uint32(len(out.Vertices))
				remap[idx] = k
				out.Vertices = append(out.Vertices, m.Vertices[idx])
				if int(idx) < len(m.Normals) {
					out.Normals = append(out.Normals, m.Normals[idx])
				} else {
					out.Normals = append(out.Normals, v3.Vec{})
				}
			}
			out.Indices = append(out.Indices, k)
		}
	}
	return out
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	return &Mesh{
		Vertices: append([]v3.Vec(nil), m.Vertices...),
		Normals:  append([]v3.Vec(nil), m.Normals...),
		Indices:  append([]uint32(nil), m.Indices...),
		Name:     m.Name,
	}
}

// UniqueVertices returns the distinct vertex positions in first-seen order.
func (m *Mesh) UniqueVertices() []v3.Vec {
	seen := make(map[weldKey]bool, len(m.Vertices))
	out := make([]v3.Vec, 0, len(m.Vertices))
	for _, idx := range m.Indices {
		v := m.Vertices[idx]
		k := keyOf(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}
