package sdfx

import (
	"math"

	"github.com/chazu/shockwave/pkg/kernel"
	"github.com/chazu/shockwave/pkg/kernel/hull"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// boundsPad keeps the zero level set strictly inside the sampled box so
// marching cubes closes the surface.
const boundsPad = 0.05

func paddedBox(lo, hi v3.Vec) sdf.Box3 {
	p := math.Max(hi.Sub(lo).Length()*boundsPad, 1e-3)
	pad := v3.Vec{X: p, Y: p, Z: p}
	return sdf.Box3{Min: lo.Sub(pad), Max: hi.Add(pad)}
}

// hullSDF is the distance bound of a convex polyhedron: the largest signed
// plane distance. It is exact inside and on faces, conservative near edges.
type hullSDF struct {
	planes []hull.Plane
	bb     sdf.Box3
}

func newHullSDF(h *hull.Hull) *hullSDF {
	lo, hi := h.Points[0], h.Points[0]
	for _, p := range h.Points[1:] {
		lo = lo.Min(p)
		hi = hi.Max(p)
	}
	return &hullSDF{planes: h.Planes(), bb: paddedBox(lo, hi)}
}

// Evaluate returns the signed distance bound at p.
func (s *hullSDF) Evaluate(p v3.Vec) float64 {
	d := math.Inf(-1)
	for _, pl := range s.planes {
		d = math.Max(d, pl.Distance(p))
	}
	return d
}

// BoundingBox returns the padded bounds of the hull.
func (s *hullSDF) BoundingBox() sdf.Box3 {
	return s.bb
}

// meshSDF is the signed distance to a closed triangle mesh. The sign comes
// from the generalized winding number, the magnitude from the nearest
// triangle. Evaluation is linear in the triangle count.
type meshSDF struct {
	tris [][3]v3.Vec
	bb   sdf.Box3
}

func newMeshSDF(m *kernel.Mesh) *meshSDF {
	s := &meshSDF{tris: make([][3]v3.Vec, 0, m.TriangleCount())}
	for i := 0; i < m.TriangleCount(); i++ {
		a, b, c := m.Triangle(i)
		s.tris = append(s.tris, [3]v3.Vec{a, b, c})
	}
	lo, hi := m.Bounds()
	s.bb = paddedBox(lo, hi)
	return s
}

// Evaluate returns the signed distance at p, negative inside.
func (s *meshSDF) Evaluate(p v3.Vec) float64 {
	d := math.Inf(1)
	var w float64
	for _, t := range s.tris {
		d = math.Min(d, pointTriangleDistance(p, t[0], t[1], t[2]))
		w += solidAngle(p, t[0], t[1], t[2])
	}
	if w/(4*math.Pi) > 0.5 {
		return -d
	}
	return d
}

// BoundingBox returns the padded bounds of the mesh.
func (s *meshSDF) BoundingBox() sdf.Box3 {
	return s.bb
}

func solidAngle(q, a, b, c v3.Vec) float64 {
	ra, rb, rc := a.Sub(q), b.Sub(q), c.Sub(q)
	la, lb, lc := ra.Length(), rb.Length(), rc.Length()
	num := ra.Dot(rb.Cross(rc))
	den := la*lb*lc + ra.Dot(rb)*lc + rb.Dot(rc)*la + rc.Dot(ra)*lb
	return 2 * math.Atan2(num, den)
}

// pointTriangleDistance returns the distance from p to triangle abc by
// projecting onto the plane and falling back to the edges outside it.
func pointTriangleDistance(p, a, b, c v3.Vec) float64 {
	n := b.Sub(a).Cross(c.Sub(a))
	if l := n.Length(); l > 0 {
		n = n.DivScalar(l)
		q := p.Sub(n.MulScalar(n.Dot(p.Sub(a))))
		if inside(q, a, b, n) && inside(q, b, c, n) && inside(q, c, a, n) {
			return math.Abs(n.Dot(p.Sub(a)))
		}
	}
	return math.Min(segmentDistance(p, a, b), math.Min(segmentDistance(p, b, c), segmentDistance(p, c, a)))
}

func inside(q, a, b, n v3.Vec) bool {
	return b.Sub(a).Cross(q.Sub(a)).Dot(n) >= 0
}

func segmentDistance(p, a, b v3.Vec) float64 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return p.Sub(a).Length()
	}
	t := math.Max(0, math.Min(1, p.Sub(a).Dot(ab)/l2))
	return p.Sub(a.Add(ab.MulScalar(t))).Length()
}
