package polytope

import (
	"math"
	"sort"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// plane is an oriented plane; points with n·x <= d are inside.
type plane struct {
	n v3.Vec
	d float64
}

func (p plane) dist(q v3.Vec) float64 { return p.n.Dot(q) - p.d }

func (p plane) flip() plane { return plane{n: p.n.MulScalar(-1), d: -p.d} }

// face is a convex planar polygon wound counter-clockwise around n.
type face struct {
	plane
	verts []v3.Vec
}

// cell is a bounded convex polyhedron.
type cell struct {
	faces []face
}

func boxCell(lo, hi v3.Vec) *cell {
	p := func(x, y, z int) v3.Vec {
		v := lo
		if x == 1 {
			v.X = hi.X
		}
		if y == 1 {
			v.Y = hi.Y
		}
		if z == 1 {
			v.Z = hi.Z
		}
		return v
	}
	mk := func(n v3.Vec, d float64, vs ...v3.Vec) face {
		return face{plane: plane{n: n, d: d}, verts: vs}
	}
	return &cell{faces: []face{
		mk(v3.Vec{Z: -1}, -lo.Z, p(0, 0, 0), p(0, 1, 0), p(1, 1, 0), p(1, 0, 0)),
		mk(v3.Vec{Z: 1}, hi.Z, p(0, 0, 1), p(1, 0, 1), p(1, 1, 1), p(0, 1, 1)),
		mk(v3.Vec{Y: -1}, -lo.Y, p(0, 0, 0), p(1, 0, 0), p(1, 0, 1), p(0, 0, 1)),
		mk(v3.Vec{Y: 1}, hi.Y, p(0, 1, 0), p(0, 1, 1), p(1, 1, 1), p(1, 1, 0)),
		mk(v3.Vec{X: -1}, -lo.X, p(0, 0, 0), p(0, 0, 1), p(0, 1, 1), p(0, 1, 0)),
		mk(v3.Vec{X: 1}, hi.X, p(1, 0, 0), p(1, 1, 0), p(1, 1, 1), p(1, 0, 1)),
	}}
}

func (c *cell) bounds() (lo, hi v3.Vec) {
	first := true
	for _, f := range c.faces {
		for _, v := range f.verts {
			if first {
				lo, hi, first = v, v, false
				continue
			}
			lo = lo.Min(v)
			hi = hi.Max(v)
		}
	}
	return lo, hi
}

// volume sums signed tetrahedra from a reference vertex to every face fan.
func (c *cell) volume() float64 {
	if len(c.faces) == 0 || len(c.faces[0].verts) == 0 {
		return 0
	}
	r := c.faces[0].verts[0]
	var vol float64
	for _, f := range c.faces {
		a := f.verts[0].Sub(r)
		for i := 1; i+1 < len(f.verts); i++ {
			b := f.verts[i].Sub(r)
			cc := f.verts[i+1].Sub(r)
			vol += a.Dot(b.Cross(cc))
		}
	}
	return vol / 6
}

func (c *cell) vertices() []v3.Vec {
	var out []v3.Vec
	for _, f := range c.faces {
		out = append(out, f.verts...)
	}
	return out
}

func (c *cell) centroid() v3.Vec {
	var sum v3.Vec
	n := 0
	for _, f := range c.faces {
		for _, v := range f.verts {
			sum = sum.Add(v)
			n++
		}
	}
	if n == 0 {
		return sum
	}
	return sum.DivScalar(float64(n))
}

// closed reports whether the face area vectors cancel, which holds for any
// closed polyhedron.
func (c *cell) closed(eps float64) bool {
	var sum v3.Vec
	var total float64
	for _, f := range c.faces {
		a := polygonArea(f.verts, f.n)
		sum = sum.Add(f.n.MulScalar(a))
		total += a
	}
	return total > 0 && sum.Length() <= eps*math.Max(total, 1)
}

func (c *cell) transform(fn func(v3.Vec) v3.Vec, rot func(v3.Vec) v3.Vec) *cell {
	out := &cell{faces: make([]face, len(c.faces))}
	for i, f := range c.faces {
		vs := make([]v3.Vec, len(f.verts))
		for j, v := range f.verts {
			vs[j] = fn(v)
		}
		n := rot(f.n).Normalize()
		out.faces[i] = face{plane: plane{n: n, d: n.Dot(vs[0])}, verts: vs}
	}
	return out
}

// clip returns the part of c with p.dist <= 0, or nil when nothing with
// positive volume remains. The input is returned unchanged when it already
// lies inside the plane.
func (c *cell) clip(p plane, eps float64) *cell {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, f := range c.faces {
		for _, v := range f.verts {
			s := p.dist(v)
			lo = math.Min(lo, s)
			hi = math.Max(hi, s)
		}
	}
	if hi <= eps {
		return c
	}
	if lo >= -eps {
		return nil
	}

	out := &cell{}
	var cut []v3.Vec
	for _, f := range c.faces {
		vs, on := clipPolygon(f.verts, p, eps)
		cut = append(cut, on...)
		if len(vs) >= 3 && polygonArea(vs, f.n) > eps*eps {
			out.faces = append(out.faces, face{plane: f.plane, verts: vs})
		}
	}
	if top := capPolygon(cut, p.n, eps); len(top) >= 3 {
		out.faces = append(out.faces, face{plane: p, verts: top})
	}
	if len(out.faces) < 4 {
		return nil
	}
	return out
}

// clipPolygon clips a convex polygon against p (Sutherland-Hodgman) and
// also returns the points that lie on p.
func clipPolygon(vs []v3.Vec, p plane, eps float64) (out, on []v3.Vec) {
	n := len(vs)
	for i := 0; i < n; i++ {
		a, b := vs[i], vs[(i+1)%n]
		sa, sb := p.dist(a), p.dist(b)
		if sa <= eps {
			out = append(out, a)
			if sa >= -eps {
				on = append(on, a)
			}
		}
		if (sa < -eps && sb > eps) || (sa > eps && sb < -eps) {
			t := sa / (sa - sb)
			x := a.Add(b.Sub(a).MulScalar(t))
			out = append(out, x)
			on = append(on, x)
		}
	}
	return dedupeRing(out, eps), on
}

// capPolygon orders the cut points counter-clockwise around n.
func capPolygon(pts []v3.Vec, n v3.Vec, eps float64) []v3.Vec {
	var uniq []v3.Vec
	for _, p := range pts {
		dup := false
		for _, q := range uniq {
			if p.Sub(q).Length() <= eps*10 {
				dup = true
				break
			}
		}
		if !dup {
			uniq = append(uniq, p)
		}
	}
	if len(uniq) < 3 {
		return nil
	}
	var centre v3.Vec
	for _, p := range uniq {
		centre = centre.Add(p)
	}
	centre = centre.DivScalar(float64(len(uniq)))
	u, w := basis(n)
	sort.Slice(uniq, func(i, j int) bool {
		di, dj := uniq[i].Sub(centre), uniq[j].Sub(centre)
		return math.Atan2(di.Dot(w), di.Dot(u)) < math.Atan2(dj.Dot(w), dj.Dot(u))
	})
	if polygonArea(uniq, n) <= eps*eps {
		return nil
	}
	return uniq
}

// basis returns two unit vectors u, w with u × w = n.
func basis(n v3.Vec) (u, w v3.Vec) {
	ref := v3.Vec{X: 1}
	if math.Abs(n.X) > 0.9 {
		ref = v3.Vec{Y: 1}
	}
	u = ref.Cross(n).Normalize()
	w = n.Cross(u)
	return u, w
}

func dedupeRing(vs []v3.Vec, eps float64) []v3.Vec {
	if len(vs) == 0 {
		return vs
	}
	out := vs[:0:0]
	for _, v := range vs {
		if len(out) > 0 && v.Sub(out[len(out)-1]).Length() <= eps*10 {
			continue
		}
		out = append(out, v)
	}
	for len(out) > 1 && out[0].Sub(out[len(out)-1]).Length() <= eps*10 {
		out = out[:len(out)-1]
	}
	return out
}

// polygonArea returns the signed area of a planar polygon around n.
func polygonArea(vs []v3.Vec, n v3.Vec) float64 {
	if len(vs) < 3 {
		return 0
	}
	var sum v3.Vec
	for i := 1; i+1 < len(vs); i++ {
		sum = sum.Add(vs[i].Sub(vs[0]).Cross(vs[i+1].Sub(vs[0])))
	}
	return sum.Dot(n) / 2
}
