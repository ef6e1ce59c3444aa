// Package assemble walks a model graph and builds the solid it describes
// using a geometry kernel. The graph is never mutated.
package assemble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/shockwave/pkg/graph"
	"github.com/chazu/shockwave/pkg/kernel"
	"github.com/rs/zerolog"
)

var (
	// ErrEmpty is returned for a graph without model roots.
	ErrEmpty = errors.New("assemble: model has no roots")
	// ErrInvalidGraph wraps structural validation failures.
	ErrInvalidGraph = errors.New("assemble: invalid model graph")
	// ErrNoMeshLoader is returned when a graph references a mesh but no
	// loader was configured.
	ErrNoMeshLoader = errors.New("assemble: mesh primitive without a mesh loader")
)

// MeshLoader resolves mesh primitives by name.
type MeshLoader interface {
	Load(name string) (*kernel.Mesh, error)
}

// Option configures Build.
type Option func(*assembler)

// WithMeshLoader sets the loader for (mesh ...) primitives.
func WithMeshLoader(l MeshLoader) Option {
	return func(a *assembler) { a.meshes = l }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *assembler) { a.log = l.With().Str("component", "assemble").Logger() }
}

type assembler struct {
	k      kernel.Kernel
	g      *graph.ModelGraph
	meshes MeshLoader
	log    zerolog.Logger

	// Shared subgraphs (a part placed twice) are built once.
	built map[graph.NodeID]kernel.Solid
}

// Build returns the union of all model roots. The graph must pass
// structural validation and the result must be watertight.
func Build(k kernel.Kernel, g *graph.ModelGraph, opts ...Option) (kernel.Solid, error) {
	if g == nil || len(g.Roots) == 0 {
		return nil, ErrEmpty
	}
	var msgs []string
	for _, e := range graph.Validate(g) {
		if e.Severity == graph.SeverityError {
			msgs = append(msgs, e.Error())
		}
	}
	if len(msgs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidGraph, strings.Join(msgs, "; "))
	}

	a := &assembler{k: k, g: g, log: zerolog.Nop(), built: make(map[graph.NodeID]kernel.Solid)}
	for _, opt := range opts {
		opt(a)
	}

	var result kernel.Solid
	for _, rootID := range g.Roots {
		s, err := a.node(g.Get(rootID))
		if err != nil {
			return nil, fmt.Errorf("assemble: root %s: %w", rootID.Short(), err)
		}
		if result == nil {
			result = s
			continue
		}
		if result, err = k.Union(result, s); err != nil {
			return nil, fmt.Errorf("assemble: union of roots: %w", err)
		}
	}

	if !k.IsWatertight(result) {
		return nil, fmt.Errorf("assemble: %w", kernel.ErrNotWatertight)
	}
	a.log.Debug().Int("nodes", g.NodeCount()).Float64("volume", k.Volume(result)).Msg("Assembled model")
	return result, nil
}

// node returns the solid for n, building it on first use.
func (a *assembler) node(n *graph.Node) (kernel.Solid, error) {
	if s, ok := a.built[n.ID]; ok {
		return s, nil
	}

	var (
		s   kernel.Solid
		err error
	)
	switch n.Kind {
	case graph.NodePrimitive:
		s, err = a.primitive(n)
	case graph.NodeTransform:
		s, err = a.transform(n)
	case graph.NodeBoolean:
		s, err = a.boolean(n)
	case graph.NodeGroup:
		s, err = a.fold(n, a.k.Union)
	default:
		err = fmt.Errorf("unknown node kind: %v", n.Kind)
	}
	if err != nil {
		return nil, err
	}

	a.built[n.ID] = s
	return s, nil
}

func (a *assembler) primitive(n *graph.Node) (kernel.Solid, error) {
	switch d := n.Data.(type) {
	case graph.BoxData:
		return a.k.Box(d.Size.X, d.Size.Y, d.Size.Z), nil
	case graph.CylinderData:
		seg := d.Segments
		if seg == 0 {
			seg = a.g.Defaults.Segments
		}
		return a.k.Cylinder(d.Height, d.Radius, seg), nil
	case graph.MeshData:
		if a.meshes == nil {
			return nil, ErrNoMeshLoader
		}
		m, err := a.meshes.Load(d.Name)
		if err != nil {
			return nil, fmt.Errorf("mesh %q: %w", d.Name, err)
		}
		s, err := a.k.FromMesh(m)
		if err != nil {
			return nil, fmt.Errorf("mesh %q: %w", d.Name, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("primitive node %s has unsupported data type %T", n.ID.Short(), n.Data)
	}
}

// transform applies rotation first, then translation.
func (a *assembler) transform(n *graph.Node) (kernel.Solid, error) {
	td, ok := n.Data.(graph.TransformData)
	if !ok {
		return nil, fmt.Errorf("transform node %s has unexpected data type %T", n.ID.Short(), n.Data)
	}
	s, err := a.node(a.g.Get(n.Children[0]))
	if err != nil {
		return nil, err
	}
	if r := td.Rotation; r != nil && !r.IsZero() {
		s = a.k.Rotate(s, r.X, r.Y, r.Z)
	}
	if t := td.Translation; t != nil && !t.IsZero() {
		s = a.k.Translate(s, t.X, t.Y, t.Z)
	}
	return s, nil
}

func (a *assembler) boolean(n *graph.Node) (kernel.Solid, error) {
	bd, ok := n.Data.(graph.BooleanData)
	if !ok {
		return nil, fmt.Errorf("boolean node %s has unexpected data type %T", n.ID.Short(), n.Data)
	}
	switch bd.Op {
	case graph.OpUnion:
		return a.fold(n, a.k.Union)
	case graph.OpDifference:
		return a.fold(n, a.k.Difference)
	case graph.OpIntersection:
		return a.fold(n, a.k.Intersection)
	}
	return nil, fmt.Errorf("boolean node %s has unknown op %d", n.ID.Short(), int(bd.Op))
}

// fold combines the children of n left to right with op.
func (a *assembler) fold(n *graph.Node, op func(x, y kernel.Solid) (kernel.Solid, error)) (kernel.Solid, error) {
	var acc kernel.Solid
	for _, child := range a.g.Children(n) {
		s, err := a.node(child)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			acc = s
			continue
		}
		if acc, err = op(acc, s); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID.Short(), err)
		}
	}
	return acc, nil
}
