// Package hull computes 3D convex hulls with the quickhull algorithm.
//
// Every face keeps the set of unprocessed points above it. The furthest
// point of some face is added next: the faces it can see are found by
// walking edge neighbours, removed, and the hole is closed by a fan of new
// faces from the point to the horizon. The orphaned points are handed to
// the new faces or dropped when they fall inside.
package hull

import (
	"errors"
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ErrDegenerate is returned when the input points do not span a volume.
var ErrDegenerate = errors.New("hull: points are coplanar or coincident")

// relEps scales the coplanarity tolerance with the extent of the input.
const relEps = 1e-10

// Plane is an oriented plane. Points with N·x <= D are inside.
type Plane struct {
	N v3.Vec
	D float64
}

// Distance returns the signed distance of p from the plane, positive outside.
func (p Plane) Distance(q v3.Vec) float64 {
	return p.N.Dot(q) - p.D
}

// Hull is a closed convex polyhedron. Faces index Points and are wound
// counter-clockwise when seen from outside.
type Hull struct {
	Points []v3.Vec
	Faces  [][3]int
	Eps    float64
}

// Polygon is a maximal set of coplanar hull faces. Verts index Points and
// run counter-clockwise around Plane.N.
type Polygon struct {
	Plane Plane
	Verts []int
}

type face struct {
	v       [3]int
	plane   Plane
	outside []int
	dead    bool
	mark    int
}

type edge struct{ a, b int }

type builder struct {
	pts   []v3.Vec
	faces []*face
	edges map[edge]*face
	eps   float64
	mark  int
}

// New returns the convex hull of points.
func New(points []v3.Vec) (*Hull, error) {
	pts := dedupe(points)
	if len(pts) < 4 {
		return nil, fmt.Errorf("%w: %d distinct points", ErrDegenerate, len(pts))
	}

	lo, hi := pts[0], pts[0]
	for _, p := range pts[1:] {
		lo = lo.Min(p)
		hi = hi.Max(p)
	}
	scale := math.Max(hi.Sub(lo).Length(), 1)
	b := &builder{pts: pts, edges: make(map[edge]*face), eps: scale * relEps}

	seed, err := b.simplex()
	if err != nil {
		return nil, err
	}
	first := b.faces[:4:4]
	for i := range pts {
		if !seed[i] {
			assign(b.pts, i, first, b.eps)
		}
	}

	pending := append([]*face(nil), first...)
	for len(pending) > 0 {
		f := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if f.dead || len(f.outside) == 0 {
			continue
		}
		pending = append(pending, b.expand(f)...)
	}
	return b.result(), nil
}

// simplex builds the initial tetrahedron and returns the points it used.
func (b *builder) simplex() (map[int]bool, error) {
	pts := b.pts
	i0 := 0
	for i, p := range pts {
		if p.X < pts[i0].X {
			i0 = i
		}
	}

	i1, best := -1, b.eps
	for i, p := range pts {
		if d := p.Sub(pts[i0]).Length(); d > best {
			i1, best = i, d
		}
	}
	if i1 < 0 {
		return nil, ErrDegenerate
	}

	dir := pts[i1].Sub(pts[i0]).Normalize()
	i2, best := -1, b.eps
	for i, p := range pts {
		w := p.Sub(pts[i0])
		if d := w.Sub(dir.MulScalar(w.Dot(dir))).Length(); d > best {
			i2, best = i, d
		}
	}
	if i2 < 0 {
		return nil, ErrDegenerate
	}

	n := pts[i1].Sub(pts[i0]).Cross(pts[i2].Sub(pts[i0])).Normalize()
	i3, best := -1, b.eps
	for i, p := range pts {
		if d := math.Abs(n.Dot(p.Sub(pts[i0]))); d > best {
			i3, best = i, d
		}
	}
	if i3 < 0 {
		return nil, ErrDegenerate
	}

	centre := pts[i0].Add(pts[i1]).Add(pts[i2]).Add(pts[i3]).DivScalar(4)
	for _, f := range [][3]int{{i0, i1, i2}, {i0, i1, i3}, {i0, i2, i3}, {i1, i2, i3}} {
		a, c, d := f[0], f[1], f[2]
		if planeOf(pts[a], pts[c], pts[d]).Distance(centre) > 0 {
			c, d = d, c
		}
		b.add(a, c, d)
	}
	return map[int]bool{i0: true, i1: true, i2: true, i3: true}, nil
}

func (b *builder) add(a, c, d int) *face {
	f := &face{v: [3]int{a, c, d}, plane: planeOf(b.pts[a], b.pts[c], b.pts[d])}
	b.faces = append(b.faces, f)
	b.edges[edge{a, c}] = f
	b.edges[edge{c, d}] = f
	b.edges[edge{d, a}] = f
	return f
}

func (b *builder) kill(f *face) {
	f.dead = true
	f.outside = nil
	for j := 0; j < 3; j++ {
		e := edge{f.v[j], f.v[(j+1)%3]}
		if b.edges[e] == f {
			delete(b.edges, e)
		}
	}
}

// assign hands point i to the face it lies furthest above. Points above
// none of faces are inside the hull and are dropped.
func assign(pts []v3.Vec, i int, faces []*face, eps float64) {
	var best *face
	bestD := eps
	for _, f := range faces {
		if d := f.plane.Distance(pts[i]); d > bestD {
			best, bestD = f, d
		}
	}
	if best != nil {
		best.outside = append(best.outside, i)
	}
}

// expand adds the furthest outside point of f and returns the new faces.
func (b *builder) expand(f *face) []*face {
	far, farD := -1, math.Inf(-1)
	for _, i := range f.outside {
		if d := f.plane.Distance(b.pts[i]); d > farD {
			far, farD = i, d
		}
	}
	p := b.pts[far]

	b.mark++
	f.mark = b.mark
	visible := []*face{f}
	var horizon []edge
	for i := 0; i < len(visible); i++ {
		g := visible[i]
		for j := 0; j < 3; j++ {
			e := edge{g.v[j], g.v[(j+1)%3]}
			n, ok := b.edges[edge{e.b, e.a}]
			if !ok {
				horizon = append(horizon, e)
				continue
			}
			if n.mark == b.mark {
				continue
			}
			if n.plane.Distance(p) > b.eps {
				n.mark = b.mark
				visible = append(visible, n)
				continue
			}
			horizon = append(horizon, e)
		}
	}

	var orphans []int
	for _, g := range visible {
		for _, i := range g.outside {
			if i != far {
				orphans = append(orphans, i)
			}
		}
		b.kill(g)
	}
	created := make([]*face, 0, len(horizon))
	for _, e := range horizon {
		created = append(created, b.add(e.a, e.b, far))
	}
	for _, i := range orphans {
		assign(b.pts, i, created, b.eps)
	}
	return created
}

func (b *builder) result() *Hull {
	h := &Hull{Eps: b.eps}
	remap := make(map[int]int)
	for _, f := range b.faces {
		if f.dead {
			continue
		}
		var tri [3]int
		for j, v := range f.v {
			k, ok := remap[v]
			if !ok {
				k = len(h.Points)
				remap[v] = k
				h.Points = append(h.Points, b.pts[v])
			}
			tri[j] = k
		}
		h.Faces = append(h.Faces, tri)
	}
	return h
}

// Polygons merges edge-adjacent coplanar faces. A group whose boundary is
// not a single loop falls back to its separate triangles.
func (h *Hull) Polygons() []Polygon {
	owner := make(map[edge]int, 3*len(h.Faces))
	planes := make([]Plane, len(h.Faces))
	for i, f := range h.Faces {
		planes[i] = planeOf(h.Points[f[0]], h.Points[f[1]], h.Points[f[2]])
		for j := 0; j < 3; j++ {
			owner[edge{f[j], f[(j+1)%3]}] = i
		}
	}

	group := make([]int, len(h.Faces))
	for i := range group {
		group[i] = -1
	}
	var groups [][]int
	for i := range h.Faces {
		if group[i] >= 0 || planes[i].N.Length() == 0 {
			continue
		}
		ref := planes[i]
		id := len(groups)
		group[i] = id
		members := []int{i}
		for q := 0; q < len(members); q++ {
			f := h.Faces[members[q]]
			for j := 0; j < 3; j++ {
				n, ok := owner[edge{f[(j+1)%3], f[j]}]
				if !ok || group[n] >= 0 || !h.coplanar(ref, planes[n]) {
					continue
				}
				group[n] = id
				members = append(members, n)
			}
		}
		groups = append(groups, members)
	}

	out := make([]Polygon, 0, len(groups))
	for id, members := range groups {
		best := members[0]
		next := make(map[int]int)
		edges := 0
		for _, fi := range members {
			if h.area(fi) > h.area(best) {
				best = fi
			}
			f := h.Faces[fi]
			for j := 0; j < 3; j++ {
				a, c := f[j], f[(j+1)%3]
				if n, ok := owner[edge{c, a}]; ok && group[n] == id {
					continue
				}
				next[a] = c
				edges++
			}
		}
		if loop := chain(next, edges); loop != nil {
			out = append(out, Polygon{Plane: planes[best], Verts: loop})
			continue
		}
		for _, fi := range members {
			f := h.Faces[fi]
			out = append(out, Polygon{Plane: planes[fi], Verts: []int{f[0], f[1], f[2]}})
		}
	}
	return out
}

// chain follows next from an arbitrary start and returns the loop when it
// visits all n boundary edges.
func chain(next map[int]int, n int) []int {
	if len(next) != n {
		return nil
	}
	var start int
	for v := range next {
		start = v
		break
	}
	loop := []int{start}
	for v := next[start]; v != start; v = next[v] {
		if len(loop) > n {
			return nil
		}
		loop = append(loop, v)
	}
	if len(loop) != n {
		return nil
	}
	return loop
}

func (h *Hull) coplanar(p, q Plane) bool {
	return p.N.Dot(q.N) > 1-1e-9 && math.Abs(p.D-q.D) <= h.Eps*10
}

func (h *Hull) area(fi int) float64 {
	f := h.Faces[fi]
	a, b, c := h.Points[f[0]], h.Points[f[1]], h.Points[f[2]]
	return b.Sub(a).Cross(c.Sub(a)).Length()
}

// Planes returns the distinct supporting planes of the hull. Coplanar
// triangles contribute a single plane.
func (h *Hull) Planes() []Plane {
	polys := h.Polygons()
	out := make([]Plane, len(polys))
	for i, p := range polys {
		out[i] = p.Plane
	}
	return out
}

// Contains reports whether q lies inside or on the hull.
func (h *Hull) Contains(q v3.Vec) bool {
	for _, f := range h.Faces {
		p := planeOf(h.Points[f[0]], h.Points[f[1]], h.Points[f[2]])
		if p.Distance(q) > h.Eps*10 {
			return false
		}
	}
	return true
}

// Triangles returns the hull faces as corner positions.
func (h *Hull) Triangles() [][3]v3.Vec {
	out := make([][3]v3.Vec, len(h.Faces))
	for i, f := range h.Faces {
		out[i] = [3]v3.Vec{h.Points[f[0]], h.Points[f[1]], h.Points[f[2]]}
	}
	return out
}

func planeOf(a, b, c v3.Vec) Plane {
	n := b.Sub(a).Cross(c.Sub(a))
	l := n.Length()
	if l == 0 {
		return Plane{}
	}
	n = n.DivScalar(l)
	return Plane{N: n, D: n.Dot(a)}
}

// dedupe drops exact and near-exact duplicates while keeping input order.
func dedupe(points []v3.Vec) []v3.Vec {
	type key [3]int64
	const q = 1e-9
	seen := make(map[key]bool, len(points))
	out := make([]v3.Vec, 0, len(points))
	for _, p := range points {
		k := key{int64(math.Round(p.X / q)), int64(math.Round(p.Y / q)), int64(math.Round(p.Z / q))}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}
