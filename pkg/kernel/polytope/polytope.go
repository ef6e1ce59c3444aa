// Package polytope implements kernel.Kernel with exact plane clipping of
// convex cells. A solid is a list of interior-disjoint bounded convex
// polyhedra; booleans reduce to clipping cells against each other's face
// planes, so flat-faced inputs give flat-faced results with no resampling.
package polytope

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/chazu/shockwave/pkg/kernel"
	"github.com/chazu/shockwave/pkg/kernel/hull"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ kernel.Kernel = (*Kernel)(nil)

// ErrTooComplex is returned by FromMesh for non-convex meshes with more
// distinct face planes than the decomposition limit.
var ErrTooComplex = errors.New("polytope: mesh too complex to decompose")

const (
	defaultEps       = 1e-7
	defaultMinVolume = 1e-9
	defaultMaxPlanes = 64
)

// Kernel is the convex-cell kernel. The zero value is not usable; call New.
type Kernel struct {
	eps       float64
	minVolume float64
	maxPlanes int
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithMaxPlanes sets how many distinct face planes a non-convex mesh may
// have before FromMesh gives up.
func WithMaxPlanes(n int) Option {
	return func(k *Kernel) { k.maxPlanes = n }
}

// WithTolerance sets the distance tolerance used for clipping.
func WithTolerance(eps float64) Option {
	return func(k *Kernel) { k.eps = eps }
}

// New returns a Kernel.
func New(opts ...Option) *Kernel {
	k := &Kernel{eps: defaultEps, minVolume: defaultMinVolume, maxPlanes: defaultMaxPlanes}
	for _, o := range opts {
		o(k)
	}
	return k
}

type solid struct {
	cells []*cell

	once sync.Once
	mesh *kernel.Mesh
}

// BoundingBox returns the axis-aligned bounding box. Empty solids report a
// zero box.
func (s *solid) BoundingBox() (min, max [3]float64) {
	lo, hi, ok := s.bounds()
	if !ok {
		return min, max
	}
	return [3]float64{lo.X, lo.Y, lo.Z}, [3]float64{hi.X, hi.Y, hi.Z}
}

func (s *solid) bounds() (lo, hi v3.Vec, ok bool) {
	for i, c := range s.cells {
		clo, chi := c.bounds()
		if i == 0 {
			lo, hi = clo, chi
			continue
		}
		lo = lo.Min(clo)
		hi = hi.Max(chi)
	}
	return lo, hi, len(s.cells) > 0
}

// Cells returns the number of convex cells in s.
func Cells(s kernel.Solid) int {
	return len(unwrap(s).cells)
}

func unwrap(s kernel.Solid) *solid {
	if s == nil {
		return &solid{}
	}
	ps, ok := s.(*solid)
	if !ok {
		panic(fmt.Sprintf("polytope: foreign solid %T", s))
	}
	return ps
}

func wrap(cells []*cell) kernel.Solid {
	return &solid{cells: cells}
}

// Box creates a box with its minimum corner at the origin.
func (k *Kernel) Box(x, y, z float64) kernel.Solid {
	if x <= 0 || y <= 0 || z <= 0 {
		panic(fmt.Sprintf("polytope.Box: non-positive size %v,%v,%v", x, y, z))
	}
	return wrap([]*cell{boxCell(v3.Vec{}, v3.Vec{X: x, Y: y, Z: z})})
}

// Cylinder creates a prism with the given number of sides standing on the
// XY plane, centered on the Z axis.
func (k *Kernel) Cylinder(height, radius float64, segments int) kernel.Solid {
	if segments < 3 {
		segments = 32
	}
	pts := make([]v3.Vec, 0, segments*2)
	for i := 0; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / float64(segments)
		x, y := radius*math.Cos(a), radius*math.Sin(a)
		pts = append(pts, v3.Vec{X: x, Y: y}, v3.Vec{X: x, Y: y, Z: height})
	}
	s, err := k.ConvexHull(pts)
	if err != nil {
		panic(fmt.Sprintf("polytope.Cylinder: %v", err))
	}
	return s
}

// ConvexHull returns the hull of points as a single cell.
func (k *Kernel) ConvexHull(points []v3.Vec) (kernel.Solid, error) {
	c, err := k.hullCell(points)
	if err != nil {
		return nil, fmt.Errorf("polytope: convex hull: %w", err)
	}
	return wrap([]*cell{c}), nil
}

// hullCell builds one cell whose faces are the hull's coplanar groups.
func (k *Kernel) hullCell(points []v3.Vec) (*cell, error) {
	h, err := hull.New(points)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kernel.ErrDegenerate, err)
	}
	c := &cell{}
	for _, p := range h.Polygons() {
		vs := make([]v3.Vec, len(p.Verts))
		for i, j := range p.Verts {
			vs[i] = h.Points[j]
		}
		c.faces = append(c.faces, face{plane: plane{n: p.Plane.N, d: p.Plane.D}, verts: vs})
	}
	if len(c.faces) < 4 || c.volume() <= k.minVolume {
		return nil, kernel.ErrDegenerate
	}
	return c, nil
}

// Intersection returns the common volume of a and b.
func (k *Kernel) Intersection(a, b kernel.Solid) (kernel.Solid, error) {
	if err := k.check("intersection", a, b); err != nil {
		return nil, err
	}
	sa, sb := unwrap(a), unwrap(b)
	var out []*cell
	for _, ca := range sa.cells {
		for _, cb := range sb.cells {
			if c := k.intersectCells(ca, cb); c != nil {
				out = append(out, c)
			}
		}
	}
	return wrap(k.merge(out)), nil
}

// Difference returns a with b removed.
func (k *Kernel) Difference(a, b kernel.Solid) (kernel.Solid, error) {
	if err := k.check("difference", a, b); err != nil {
		return nil, err
	}
	cells := unwrap(a).cells
	for _, cb := range unwrap(b).cells {
		var next []*cell
		for _, ca := range cells {
			next = append(next, k.subtractCell(ca, cb)...)
		}
		cells = next
	}
	return wrap(k.merge(cells)), nil
}

// Union returns the volume covered by a or b. The cells of a are kept and
// the parts of b outside a are appended.
func (k *Kernel) Union(a, b kernel.Solid) (kernel.Solid, error) {
	rest, err := k.Difference(b, a)
	if err != nil {
		return nil, err
	}
	cells := append(append([]*cell(nil), unwrap(a).cells...), unwrap(rest).cells...)
	return wrap(k.merge(cells)), nil
}

// check rejects operands holding a cell that is not a closed polyhedron.
// Clipping only needs closed cells; whether neighbouring cells meet edge
// to edge is left to IsWatertight.
func (k *Kernel) check(op string, operands ...kernel.Solid) error {
	for i, s := range operands {
		for _, c := range unwrap(s).cells {
			if c.volume() <= 0 || !c.closed(1e-6) {
				return fmt.Errorf("polytope: %s operand %d: %w", op, i, kernel.ErrNotWatertight)
			}
		}
	}
	return nil
}

// merge repeatedly replaces two cells by their hull when the hull adds no
// volume, that is when their union is already convex. Booleans split cells
// along every cutting plane; merging keeps the count from compounding over
// a chain of operations.
func (k *Kernel) merge(cells []*cell) []*cell {
	if len(cells) < 2 {
		return cells
	}
	cells = append([]*cell(nil), cells...)
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(cells); i++ {
			for j := i + 1; j < len(cells); j++ {
				m := k.join(cells[i], cells[j])
				if m == nil {
					continue
				}
				cells[i] = m
				cells = append(cells[:j], cells[j+1:]...)
				changed = true
				j = i
			}
		}
	}
	return cells
}

// join returns the hull of a and b when it equals their union, or nil.
func (k *Kernel) join(a, b *cell) *cell {
	if !touches(a, b, k.eps*10) || !k.facing(a, b) {
		return nil
	}
	pts := append(a.vertices(), b.vertices()...)
	c, err := k.hullCell(pts)
	if err != nil {
		return nil
	}
	sum := a.volume() + b.volume()
	if math.Abs(c.volume()-sum) > k.minVolume+1e-9*sum {
		return nil
	}
	return c
}

// facing reports whether a face of a lies on a face plane of b with the
// opposite orientation.
func (k *Kernel) facing(a, b *cell) bool {
	for _, f := range a.faces {
		for _, g := range b.faces {
			if k.opposite(f.plane, g.plane) {
				return true
			}
		}
	}
	return false
}

func touches(a, b *cell, eps float64) bool {
	alo, ahi := a.bounds()
	blo, bhi := b.bounds()
	return boxesTouch(alo, ahi, blo, bhi, eps)
}

func overlaps(a, b *cell, eps float64) bool {
	alo, ahi := a.bounds()
	blo, bhi := b.bounds()
	return alo.X < bhi.X-eps && blo.X < ahi.X-eps &&
		alo.Y < bhi.Y-eps && blo.Y < ahi.Y-eps &&
		alo.Z < bhi.Z-eps && blo.Z < ahi.Z-eps
}

func (k *Kernel) intersectCells(a, b *cell) *cell {
	if !overlaps(a, b, k.eps) {
		return nil
	}
	c := a
	for _, f := range b.faces {
		c = c.clip(f.plane, k.eps)
		if c == nil {
			return nil
		}
	}
	if c.volume() <= k.minVolume {
		return nil
	}
	return c
}

// subtractCell splits a into the pieces outside each face plane of b.
func (k *Kernel) subtractCell(a, b *cell) []*cell {
	if k.intersectCells(a, b) == nil {
		return []*cell{a}
	}
	var out []*cell
	rest := a
	for _, f := range b.faces {
		if piece := rest.clip(f.plane.flip(), k.eps); piece != nil && piece.volume() > k.minVolume {
			out = append(out, piece)
		}
		rest = rest.clip(f.plane, k.eps)
		if rest == nil {
			break
		}
	}
	return out
}

// Translate moves a solid by (x, y, z).
func (k *Kernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	t := v3.Vec{X: x, Y: y, Z: z}
	return k.transform(s, func(v v3.Vec) v3.Vec { return v.Add(t) }, func(n v3.Vec) v3.Vec { return n })
}

// Rotate rotates a solid by Euler angles (degrees) around X, Y, Z axes.
func (k *Kernel) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	m := sdf.RotateZ(sdf.DtoR(z)).Mul(sdf.RotateY(sdf.DtoR(y))).Mul(sdf.RotateX(sdf.DtoR(x)))
	return k.transform(s, m.MulPosition, m.MulPosition)
}

func (k *Kernel) transform(s kernel.Solid, fn, rot func(v3.Vec) v3.Vec) kernel.Solid {
	src := unwrap(s).cells
	cells := make([]*cell, len(src))
	for i, c := range src {
		cells[i] = c.transform(fn, rot)
	}
	return wrap(cells)
}

// Volume returns the enclosed volume.
func (k *Kernel) Volume(s kernel.Solid) float64 {
	var vol float64
	for _, c := range unwrap(s).cells {
		vol += c.volume()
	}
	return vol
}

// IsWatertight reports whether the boundary mesh of s is closed: every
// cell has positive volume and the cells meet edge to edge. The empty solid
// is watertight.
func (k *Kernel) IsWatertight(s kernel.Solid) bool {
	for _, c := range unwrap(s).cells {
		if c.volume() <= 0 || !c.closed(1e-6) {
			return false
		}
	}
	m, err := k.ToMesh(s)
	return err == nil && m.IsWatertight()
}

// ToMesh returns the boundary of s. Faces shared between two cells cancel,
// so internal partitions never appear, and polygon edges are split at the
// corners of neighbouring polygons so that no T-junctions remain. The mesh
// is computed once per solid.
func (k *Kernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	ps := unwrap(s)
	ps.once.Do(func() { ps.mesh = k.boundary(ps.cells) })
	return ps.mesh.Clone(), nil
}

func (k *Kernel) opposite(a, b plane) bool {
	return a.n.Dot(b.n) < -1+1e-9 && math.Abs(a.d+b.d) <= k.eps*10
}

// subtractPolygon removes convex polygon g from coplanar convex polygon p.
// g's edges bound half-planes inside the shared plane.
func (k *Kernel) subtractPolygon(p []v3.Vec, n v3.Vec, g []v3.Vec, gn v3.Vec) [][]v3.Vec {
	var out [][]v3.Vec
	rest := p
	for i := range g {
		a, b := g[i], g[(i+1)%len(g)]
		e := b.Sub(a).Cross(gn)
		l := e.Length()
		if l == 0 {
			continue
		}
		e = e.DivScalar(l)
		edge := plane{n: e, d: e.Dot(a)}
		if piece, _ := clipPolygon(rest, edge.flip(), k.eps); len(piece) >= 3 && polygonArea(piece, n) > k.eps*k.eps {
			out = append(out, piece)
		}
		rest, _ = clipPolygon(rest, edge, k.eps)
		if len(rest) < 3 || polygonArea(rest, n) <= k.eps*k.eps {
			return out
		}
	}
	return out
}

// FromMesh converts a closed, outward-oriented mesh into cells. Convex
// meshes become one cell; others are partitioned by their own face planes
// and the cells with the mesh's winding number are kept.
func (k *Kernel) FromMesh(m *kernel.Mesh) (kernel.Solid, error) {
	if m.IsEmpty() {
		return wrap(nil), nil
	}
	if !m.IsWatertight() {
		return nil, fmt.Errorf("polytope: from mesh %q: %w", m.Name, kernel.ErrNotWatertight)
	}
	vol := m.Volume()
	if vol < -k.minVolume {
		return nil, fmt.Errorf("polytope: from mesh %q: inverted orientation: %w", m.Name, kernel.ErrNotWatertight)
	}
	if vol <= k.minVolume {
		return wrap(nil), nil
	}

	planes := k.meshPlanes(m)
	verts := m.UniqueVertices()
	if k.convex(verts, planes) {
		c, err := k.hullCell(verts)
		if err != nil {
			return nil, fmt.Errorf("polytope: from mesh %q: %w", m.Name, err)
		}
		return wrap([]*cell{c}), nil
	}
	if len(planes) > k.maxPlanes {
		return nil, fmt.Errorf("%w: %d face planes (limit %d)", ErrTooComplex, len(planes), k.maxPlanes)
	}

	lo, hi := m.Bounds()
	pad := v3.Vec{X: 1, Y: 1, Z: 1}
	cells := []*cell{boxCell(lo.Sub(pad), hi.Add(pad))}
	for _, p := range planes {
		var next []*cell
		for _, c := range cells {
			if in := c.clip(p, k.eps); in != nil && in.volume() > k.minVolume {
				next = append(next, in)
			}
			if out := c.clip(p.flip(), k.eps); out != nil && out.volume() > k.minVolume {
				next = append(next, out)
			}
		}
		cells = next
	}

	var kept []*cell
	for _, c := range cells {
		if windingNumber(m, c.centroid()) > 0.5 {
			kept = append(kept, c)
		}
	}
	return wrap(k.merge(kept)), nil
}

func (k *Kernel) meshPlanes(m *kernel.Mesh) []plane {
	var out []plane
	for i := 0; i < m.TriangleCount(); i++ {
		n := m.FaceNormal(i)
		if n.Length() == 0 {
			continue
		}
		a, _, _ := m.Triangle(i)
		p := plane{n: n, d: n.Dot(a)}
		dup := false
		for _, q := range out {
			if p.n.Dot(q.n) > 1-1e-9 && math.Abs(p.d-q.d) <= k.eps*10 {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}

func (k *Kernel) convex(verts []v3.Vec, planes []plane) bool {
	for _, p := range planes {
		for _, v := range verts {
			if p.dist(v) > k.eps*10 {
				return false
			}
		}
	}
	return true
}

// windingNumber returns the generalized winding number of m around q using
// the solid angle of each triangle (Van Oosterom and Strackee).
func windingNumber(m *kernel.Mesh, q v3.Vec) float64 {
	var total float64
	for i := 0; i < m.TriangleCount(); i++ {
		a, b, c := m.Triangle(i)
		ra, rb, rc := a.Sub(q), b.Sub(q), c.Sub(q)
		la, lb, lc := ra.Length(), rb.Length(), rc.Length()
		num := ra.Dot(rb.Cross(rc))
		den := la*lb*lc + ra.Dot(rb)*lc + rb.Dot(rc)*la + rc.Dot(ra)*lb
		total += 2 * math.Atan2(num, den)
	}
	return total / (4 * math.Pi)
}
