package clearance

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/chazu/shockwave/pkg/kernel"
	"github.com/chazu/shockwave/pkg/kernel/hull"
	"github.com/chazu/shockwave/pkg/surface"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"golang.org/x/sync/errgroup"
)

// Minkowski sweeps a clearance shape over a surface.
type Minkowski interface {
	Name() string
	Sum(ctx context.Context, k kernel.Kernel, s surface.Surface, shape *Shape) (kernel.Solid, error)
}

// Strategy names accepted by ByName.
const (
	StrategyApproximate = "approximate"
	StrategyExact       = "exact"
)

// ByName returns the strategy registered under name.
func ByName(name string, workers int) (Minkowski, error) {
	switch name {
	case StrategyApproximate, "":
		return Approximate{Workers: workers}, nil
	case StrategyExact:
		return Exact{}, nil
	}
	return nil, fmt.Errorf("clearance: unknown minkowski strategy %q", name)
}

// chunkSize bounds how many surface vertices a single worker sums.
const chunkSize = 256

// Approximate is the convex hull of all pairwise vertex sums. It is exact
// for convex inputs and over-approximates concave or disjoint surfaces.
type Approximate struct {
	// Workers limits concurrent summing; zero means GOMAXPROCS.
	Workers int
}

// Name returns "approximate".
func (Approximate) Name() string { return StrategyApproximate }

// Sum returns hull{a+b : a in s, b in shape}.
func (a Approximate) Sum(ctx context.Context, k kernel.Kernel, s surface.Surface, shape *Shape) (kernel.Solid, error) {
	if s.Empty() {
		return nil, surface.ErrEmpty
	}
	pts, err := pairwiseSums(ctx, extremePoints(s.Vertices()), shape.Points, a.Workers)
	if err != nil {
		return nil, err
	}
	hull, err := k.ConvexHull(pts)
	if err != nil {
		return nil, fmt.Errorf("clearance: approximate sum: %w", err)
	}
	if !k.IsWatertight(hull) {
		return nil, fmt.Errorf("clearance: approximate sum: %w", kernel.ErrNotWatertight)
	}
	return hull, nil
}

// extremePoints drops the points that lie inside the hull of the others.
// They cannot contribute a hull vertex to any sum. Flat point sets are
// returned unchanged.
func extremePoints(pts []v3.Vec) []v3.Vec {
	h, err := hull.New(pts)
	if err != nil {
		return pts
	}
	return h.Points
}

// pairwiseSums computes every a+b. Each worker writes a disjoint index
// range, so the output order is fixed regardless of scheduling.
func pairwiseSums(ctx context.Context, as, bs []v3.Vec, workers int) ([]v3.Vec, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]v3.Vec, len(as)*len(bs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(as); start += chunkSize {
		start := start
		end := min(start+chunkSize, len(as))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				row := out[i*len(bs) : (i+1)*len(bs)]
				for j, b := range bs {
					row[j] = as[i].Add(b)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Exact decomposes the surface into triangles, hulls each triangle swept by
// the convex shape and unions the pieces. A convex surface is swept as one
// piece. Cost grows with the face count.
type Exact struct{}

// Name returns "exact".
func (Exact) Name() string { return StrategyExact }

// Sum returns the union over faces f of hull(f ⊕ shape).
func (Exact) Sum(ctx context.Context, k kernel.Kernel, s surface.Surface, shape *Shape) (kernel.Solid, error) {
	if s.Empty() {
		return nil, surface.ErrEmpty
	}
	var groups [][]v3.Vec
	if convexSurface(s) {
		groups = append(groups, s.Vertices())
	} else {
		for i := 0; i < s.FaceCount(); i++ {
			a, b, c := s.Mesh.Triangle(i)
			groups = append(groups, []v3.Vec{a, b, c})
		}
	}

	pieces := make([]kernel.Solid, 0, len(groups))
	for i, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pts := make([]v3.Vec, 0, len(g)*len(shape.Points))
		for _, v := range g {
			for _, p := range shape.Points {
				pts = append(pts, v.Add(p))
			}
		}
		h, err := k.ConvexHull(pts)
		if err != nil {
			return nil, fmt.Errorf("clearance: exact sum: piece %d: %w", i, err)
		}
		pieces = append(pieces, h)
	}

	sum, err := unionAll(ctx, k, pieces)
	if err != nil {
		return nil, err
	}
	if !k.IsWatertight(sum) {
		return nil, fmt.Errorf("clearance: exact sum: %w", kernel.ErrNotWatertight)
	}
	return sum, nil
}

// convexSurface reports whether s lies on the boundary of a convex body and
// its rim is convex: every face plane, and every boundary edge's outward
// half-plane within its face, has all vertices on the inner side.
func convexSurface(s surface.Surface) bool {
	m := s.Mesh.Weld()
	verts := m.Vertices
	lo, hi := m.Bounds()
	tol := 1e-9 * math.Max(hi.Sub(lo).Length(), 1)
	supports := func(n v3.Vec, at v3.Vec) bool {
		for _, v := range verts {
			if n.Dot(v.Sub(at)) > tol {
				return false
			}
		}
		return true
	}

	type edge struct{ a, b uint32 }
	count := make(map[edge]int, len(m.Indices))
	for i := 0; i+2 < len(m.Indices); i += 3 {
		for j := 0; j < 3; j++ {
			count[edge{m.Indices[i+j], m.Indices[i+(j+1)%3]}]++
		}
	}
	for i := 0; i < m.TriangleCount(); i++ {
		n := m.FaceNormal(i)
		if n.Length() == 0 {
			continue
		}
		a, _, _ := m.Triangle(i)
		if !supports(n, a) {
			return false
		}
		for j := 0; j < 3; j++ {
			e := edge{m.Indices[3*i+j], m.Indices[3*i+(j+1)%3]}
			if count[edge{e.b, e.a}] > 0 {
				continue
			}
			pa, pb := verts[e.a], verts[e.b]
			out := pb.Sub(pa).Cross(n)
			if l := out.Length(); l > 0 && !supports(out.DivScalar(l), pa) {
				return false
			}
		}
	}
	return true
}

// unionAll reduces pieces pairwise so operands stay balanced in size.
func unionAll(ctx context.Context, k kernel.Kernel, pieces []kernel.Solid) (kernel.Solid, error) {
	for len(pieces) > 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := make([]kernel.Solid, 0, (len(pieces)+1)/2)
		for i := 0; i+1 < len(pieces); i += 2 {
			u, err := k.Union(pieces[i], pieces[i+1])
			if err != nil {
				return nil, fmt.Errorf("clearance: exact sum: union: %w", err)
			}
			next = append(next, u)
		}
		if len(pieces)%2 == 1 {
			next = append(next, pieces[len(pieces)-1])
		}
		pieces = next
	}
	return pieces[0], nil
}
