package polytope

import (
	"math"
	"sort"

	"github.com/chazu/shockwave/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// boundary meshes the faces of cells that are not shared with another cell.
// Corners closer than the snap distance are merged and slivers thinner than
// it are dropped. Every edge is then split at the corners lying on it.
func (k *Kernel) boundary(cells []*cell) *kernel.Mesh {
	// Well above the mesh weld grid, so distinct corners never weld together.
	snap := k.eps * 100
	los := make([]v3.Vec, len(cells))
	his := make([]v3.Vec, len(cells))
	for i, c := range cells {
		los[i], his[i] = c.bounds()
	}

	type polygon struct {
		n     v3.Vec
		verts []v3.Vec
	}
	var polys []polygon
	for ci, c := range cells {
		for _, f := range c.faces {
			pieces := [][]v3.Vec{f.verts}
			for cj, other := range cells {
				if cj == ci || !boxesTouch(los[ci], his[ci], los[cj], his[cj], snap) {
					continue
				}
				for _, g := range other.faces {
					if !k.opposite(f.plane, g.plane) {
						continue
					}
					var next [][]v3.Vec
					for _, p := range pieces {
						next = append(next, k.subtractPolygon(p, f.n, g.verts, g.n)...)
					}
					pieces = next
				}
			}
			for _, p := range pieces {
				polys = append(polys, polygon{n: f.n, verts: p})
			}
		}
	}

	pool := newVertexPool(snap)
	var rings [][]int
	for _, p := range polys {
		ring := make([]int, 0, len(p.verts))
		for _, v := range p.verts {
			i := pool.index(v)
			if len(ring) > 0 && ring[len(ring)-1] == i {
				continue
			}
			ring = append(ring, i)
		}
		for len(ring) > 1 && ring[0] == ring[len(ring)-1] {
			ring = ring[:len(ring)-1]
		}
		if len(ring) < 3 || pool.thin(ring, p.n) {
			continue
		}
		rings = append(rings, ring)
	}

	pool.sortX()
	m := &kernel.Mesh{}
	for _, ring := range rings {
		full := make([]int, 0, len(ring))
		for i, a := range ring {
			full = append(full, a)
			full = append(full, pool.between(a, ring[(i+1)%len(ring)])...)
		}
		pool.fan(m, full)
	}
	return m
}

func boxesTouch(alo, ahi, blo, bhi v3.Vec, eps float64) bool {
	return alo.X <= bhi.X+eps && blo.X <= ahi.X+eps &&
		alo.Y <= bhi.Y+eps && blo.Y <= ahi.Y+eps &&
		alo.Z <= bhi.Z+eps && blo.Z <= ahi.Z+eps
}

type gridKey [3]int64

// vertexPool hands out one index per position, treating points within tol
// of an earlier point as that point.
type vertexPool struct {
	tol  float64
	pts  []v3.Vec
	grid map[gridKey][]int
	byX  []int
}

func newVertexPool(tol float64) *vertexPool {
	return &vertexPool{tol: tol, grid: make(map[gridKey][]int)}
}

func (p *vertexPool) key(v v3.Vec) gridKey {
	return gridKey{
		int64(math.Floor(v.X / p.tol)),
		int64(math.Floor(v.Y / p.tol)),
		int64(math.Floor(v.Z / p.tol)),
	}
}

func (p *vertexPool) index(v v3.Vec) int {
	k := p.key(v)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				for _, i := range p.grid[gridKey{k[0] + dx, k[1] + dy, k[2] + dz}] {
					if p.pts[i].Sub(v).Length() <= p.tol {
						return i
					}
				}
			}
		}
	}
	i := len(p.pts)
	p.pts = append(p.pts, v)
	p.grid[k] = append(p.grid[k], i)
	return i
}

// thin reports whether the polygon is narrower than the pool tolerance.
func (p *vertexPool) thin(ring []int, n v3.Vec) bool {
	vs := make([]v3.Vec, len(ring))
	var perimeter float64
	for i, r := range ring {
		vs[i] = p.pts[r]
		perimeter += p.pts[ring[(i+1)%len(ring)]].Sub(p.pts[r]).Length()
	}
	return polygonArea(vs, n) <= p.tol*perimeter
}

func (p *vertexPool) sortX() {
	p.byX = make([]int, len(p.pts))
	for i := range p.byX {
		p.byX[i] = i
	}
	sort.Slice(p.byX, func(i, j int) bool { return p.pts[p.byX[i]].X < p.pts[p.byX[j]].X })
}

// between returns the pooled points strictly inside segment ab, ordered
// from a to b.
func (p *vertexPool) between(a, b int) []int {
	pa, pb := p.pts[a], p.pts[b]
	d := pb.Sub(pa)
	l2 := d.Dot(d)
	if l2 == 0 {
		return nil
	}
	lo, hi := math.Min(pa.X, pb.X)-p.tol, math.Max(pa.X, pb.X)+p.tol
	start := sort.Search(len(p.byX), func(i int) bool { return p.pts[p.byX[i]].X >= lo })

	type hit struct {
		i int
		t float64
	}
	var hits []hit
	for _, i := range p.byX[start:] {
		q := p.pts[i]
		if q.X > hi {
			break
		}
		if i == a || i == b {
			continue
		}
		t := q.Sub(pa).Dot(d) / l2
		if t <= 0 || t >= 1 || pa.Add(d.MulScalar(t)).Sub(q).Length() > p.tol {
			continue
		}
		hits = append(hits, hit{i, t})
	}
	sort.Slice(hits, func(x, y int) bool { return hits[x].t < hits[y].t })
	out := make([]int, len(hits))
	for j, h := range hits {
		out[j] = h.i
	}
	return out
}

// fan triangulates a convex ring. Rings with a straight corner are fanned
// from their centre so that no triangle collapses onto an edge.
func (p *vertexPool) fan(m *kernel.Mesh, ring []int) {
	straight := false
	for i, r := range ring {
		prev := p.pts[ring[(i+len(ring)-1)%len(ring)]]
		next := p.pts[ring[(i+1)%len(ring)]]
		base := next.Sub(prev)
		if l := base.Length(); l == 0 || p.pts[r].Sub(prev).Cross(base).Length()/l <= p.tol {
			straight = true
			break
		}
	}
	if !straight {
		a := p.pts[ring[0]]
		for i := 1; i+1 < len(ring); i++ {
			m.AddTriangle(a, p.pts[ring[i]], p.pts[ring[i+1]])
		}
		return
	}
	var c v3.Vec
	for _, r := range ring {
		c = c.Add(p.pts[r])
	}
	c = c.DivScalar(float64(len(ring)))
	for i, r := range ring {
		m.AddTriangle(c, p.pts[r], p.pts[ring[(i+1)%len(ring)]])
	}
}
