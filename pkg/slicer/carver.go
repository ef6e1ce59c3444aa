// Package slicer decomposes a solid into an ordered sequence of printable,
// possibly non-planar slices.
//
// Each step sweeps the nozzle clearance cone over the surface printed last,
// intersects the reachable region with the material still to print and
// emits that intersection as the next slice. Its upward-facing faces become
// the surface for the following step.
package slicer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chazu/shockwave/pkg/clearance"
	"github.com/chazu/shockwave/pkg/kernel"
	"github.com/chazu/shockwave/pkg/surface"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxIterations caps the number of carve steps.
	DefaultMaxIterations = 200
	// DefaultVolumeEpsilon is the volume in mm³ treated as empty.
	DefaultVolumeEpsilon = 1e-6
)

// Params holds the numeric carve settings.
type Params struct {
	LayerHeight   float64
	SafeAngle     float64 // degrees
	MaxIterations int
	VolumeEpsilon float64
}

// MeshSaver stores diagnostic geometry.
type MeshSaver interface {
	Save(name string, m *kernel.Mesh) error
}

// Option configures a Carver.
type Option func(*Carver)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Carver) { c.log = l.With().Str("component", "slicer").Logger() }
}

// WithObserver registers an observer for step and run events.
func WithObserver(o Observer) Option {
	return func(c *Carver) { c.observer = o }
}

// WithDiagnostics saves offending geometry when a run fails on a
// watertightness check.
func WithDiagnostics(s MeshSaver) Option {
	return func(c *Carver) { c.diagnostics = s }
}

// WithStrategy selects the Minkowski strategy. The default is
// clearance.Approximate.
func WithStrategy(m clearance.Minkowski) Option {
	return func(c *Carver) { c.strategy = m }
}

// Carver runs the slice decomposition against a kernel.
type Carver struct {
	k           kernel.Kernel
	params      Params
	shape       *clearance.Shape
	strategy    clearance.Minkowski
	log         zerolog.Logger
	observer    Observer
	diagnostics MeshSaver
}

// New builds a Carver and its clearance shape.
func New(k kernel.Kernel, p Params, opts ...Option) (*Carver, error) {
	if p.MaxIterations <= 0 {
		p.MaxIterations = DefaultMaxIterations
	}
	if p.VolumeEpsilon <= 0 {
		p.VolumeEpsilon = DefaultVolumeEpsilon
	}
	shape, err := clearance.NozzleShape(k, p.LayerHeight, p.SafeAngle)
	if err != nil {
		return nil, fmt.Errorf("slicer: %w", err)
	}
	c := &Carver{
		k:        k,
		params:   p,
		shape:    shape,
		strategy: clearance.Approximate{},
		log:      zerolog.Nop(),
		observer: nopObserver{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Shape returns the clearance cone in use.
func (c *Carver) Shape() *clearance.Shape {
	return c.shape
}

// Init returns the starting state: the base surface is the first printed
// surface and a one-layer slab below it stands in for printed material.
// Without a base surface nothing counts as printed.
func (c *Carver) Init(input kernel.Solid, base surface.Surface) (EngineState, error) {
	if !c.k.IsWatertight(input) {
		return EngineState{}, fmt.Errorf("slicer: input: %w", kernel.ErrNotWatertight)
	}
	st := EngineState{Remaining: input, PrintedSurface: base}
	if base.Empty() {
		return st, nil
	}
	slab, err := surface.Extrude(base, -c.params.LayerHeight)
	if err != nil {
		return EngineState{}, fmt.Errorf("slicer: base slab: %w", err)
	}
	printed, err := c.k.FromMesh(slab)
	if err != nil {
		return EngineState{}, fmt.Errorf("slicer: base slab: %w", err)
	}
	if !c.k.IsWatertight(printed) {
		return EngineState{}, fmt.Errorf("slicer: base slab: %w", kernel.ErrNotWatertight)
	}
	st.Printed = []kernel.Solid{printed}
	return st, nil
}

// Step performs one carve transition. It never modifies st; on any
// terminal outcome the returned state equals st.
func (c *Carver) Step(ctx context.Context, st EngineState) (EngineState, StepOutcome) {
	fail := func(reason error) (EngineState, StepOutcome) {
		return st, StepOutcome{Status: Failed, Reason: reason, RemainingVolume: c.k.Volume(st.Remaining)}
	}

	if st.PrintedSurface.Empty() {
		rv := c.k.Volume(st.Remaining)
		if rv <= c.params.VolumeEpsilon {
			return st, StepOutcome{Status: ConvergedFull, RemainingVolume: rv}
		}
		return st, StepOutcome{Status: ConvergedPartial, Reason: ErrZeroProgress, RemainingVolume: rv}
	}

	extended := surface.Offset(st.PrintedSurface, c.params.LayerHeight)
	reach, err := c.strategy.Sum(ctx, c.k, extended, c.shape)
	if err != nil {
		if ctx.Err() != nil {
			return fail(ErrCancelled)
		}
		return fail(fmt.Errorf("clearance volume: %w", err))
	}

	candidate, err := c.k.Intersection(st.Remaining, reach)
	if err != nil {
		return fail(fmt.Errorf("reachable material: %w", err))
	}
	cv := c.k.Volume(candidate)
	if cv <= c.params.VolumeEpsilon {
		// Nothing is reachable. That only means success when nothing is left.
		rv := c.k.Volume(st.Remaining)
		if rv <= c.params.VolumeEpsilon {
			return st, StepOutcome{Status: ConvergedFull, RemainingVolume: rv}
		}
		return st, StepOutcome{Status: ConvergedPartial, Reason: ErrZeroProgress, RemainingVolume: rv}
	}
	if !c.k.IsWatertight(candidate) {
		c.saveDiagnostic(st.Index, "candidate", candidate)
		return fail(fmt.Errorf("slice %d: %w", st.Index, kernel.ErrNotWatertight))
	}

	remaining, err := c.k.Difference(st.Remaining, candidate)
	if err != nil {
		return fail(fmt.Errorf("remaining material: %w", err))
	}

	mesh, err := c.k.ToMesh(candidate)
	if err != nil {
		return fail(fmt.Errorf("slice %d mesh: %w", st.Index, err))
	}
	top := surface.SelectFacesByDirection(mesh, surface.Up, clearance.SelectionTolerance(c.params.SafeAngle))
	if top.Empty() {
		return st, StepOutcome{Status: ConvergedPartial, Reason: ErrZeroProgress, RemainingVolume: c.k.Volume(st.Remaining)}
	}

	// The candidate was cut from Remaining, so it never overlaps an earlier
	// piece and the printed volume grows by appending it.
	printed := make([]kernel.Solid, len(st.Printed), len(st.Printed)+1)
	copy(printed, st.Printed)
	printed = append(printed, candidate)

	slice := &Slice{Index: st.Index, Volume: candidate, Surface: top, VolumeMM3: cv}
	next := EngineState{
		Remaining:      remaining,
		Printed:        printed,
		PrintedSurface: top,
		Index:          st.Index + 1,
	}
	return next, StepOutcome{Status: Running, Slice: slice, RemainingVolume: c.k.Volume(remaining)}
}

// Carve runs Step until a terminal status. The returned Result always holds
// every slice emitted; the error is a *TerminalError exactly when the
// status is Failed.
func (c *Carver) Carve(ctx context.Context, input kernel.Solid, base surface.Surface) (*Result, error) {
	res := &Result{Status: Running, InputVolume: c.k.Volume(input)}
	res.RemainingVolume = res.InputVolume

	st, err := c.Init(input, base)
	if err != nil {
		return c.finish(res, Failed, err)
	}

	for {
		if ctx.Err() != nil {
			return c.finish(res, Failed, ErrCancelled)
		}
		if res.Iterations >= c.params.MaxIterations {
			if res.RemainingVolume <= c.params.VolumeEpsilon {
				return c.finish(res, ConvergedFull, nil)
			}
			return c.finish(res, Failed, ErrIterationLimitExceeded)
		}

		start := time.Now()
		next, out := c.Step(ctx, st)
		res.Iterations++
		res.RemainingVolume = out.RemainingVolume
		if out.Slice != nil {
			res.Slices = append(res.Slices, *out.Slice)
		}

		report := StepReport{
			Iteration: res.Iterations,
			Index:     st.Index,
			Status:    out.Status,
			Duration:  time.Since(start),
			Progress:  res.Progress(),
		}
		if out.Slice != nil {
			report.SliceVolume = out.Slice.VolumeMM3
		}
		c.observer.StepCompleted(report)
		c.log.Debug().
			Int("iteration", report.Iteration).
			Int("index", report.Index).
			Str("status", out.Status.String()).
			Float64("slice_volume", report.SliceVolume).
			Dur("duration", report.Duration).
			Msgf("Generating slices: %.2f%%", report.Progress*100)

		if out.Status.Terminal() {
			return c.finish(res, out.Status, out.Reason)
		}
		st = next
	}
}

func (c *Carver) finish(res *Result, status Status, reason error) (*Result, error) {
	res.Status = status
	res.Reason = reason
	c.observer.CarveFinished(res)

	ev := c.log.Info()
	if status == Failed {
		ev = c.log.Error().Err(reason)
	} else if reason != nil {
		ev = c.log.Warn().Err(reason)
	}
	ev.Str("status", status.String()).
		Int("slices", len(res.Slices)).
		Int("iterations", res.Iterations).
		Float64("progress", res.Progress()).
		Msg("Carve finished")

	if status != Failed {
		return res, nil
	}
	return res, &TerminalError{Status: status, Reason: reason, Index: len(res.Slices)}
}

func (c *Carver) saveDiagnostic(index int, what string, s kernel.Solid) {
	if c.diagnostics == nil {
		return
	}
	name := fmt.Sprintf("slice-%03d-%s.stl", index, what)
	m, err := c.k.ToMesh(s)
	if err == nil {
		err = c.diagnostics.Save(name, m)
	}
	if err != nil {
		c.log.Warn().Err(err).Str("file", name).Msg("Failed to save diagnostic geometry")
		return
	}
	c.log.Info().Str("file", name).Msg("Saved diagnostic geometry")
}

// IsNotWatertight reports whether err stems from a watertightness failure.
func IsNotWatertight(err error) bool {
	return errors.Is(err, kernel.ErrNotWatertight)
}
