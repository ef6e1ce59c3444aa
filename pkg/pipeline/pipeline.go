// Package pipeline wires the slicer end to end: it loads a model from an
// STL file or a model script, clips it to the printer, carves it into
// slices and exports the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chazu/shockwave/pkg/assemble"
	"github.com/chazu/shockwave/pkg/clearance"
	"github.com/chazu/shockwave/pkg/config"
	"github.com/chazu/shockwave/pkg/engine"
	"github.com/chazu/shockwave/pkg/kernel"
	"github.com/chazu/shockwave/pkg/kernel/manifold"
	"github.com/chazu/shockwave/pkg/kernel/polytope"
	"github.com/chazu/shockwave/pkg/kernel/sdfx"
	"github.com/chazu/shockwave/pkg/prepare"
	"github.com/chazu/shockwave/pkg/repository"
	"github.com/chazu/shockwave/pkg/slicer"
	"github.com/chazu/shockwave/pkg/surface"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Model file extensions.
const (
	ExtSTL    = ".stl"
	ExtScript = ".swm"
)

// ErrUnsupportedModel is returned for model files that are neither STL nor
// model scripts.
var ErrUnsupportedModel = errors.New("pipeline: unsupported model file")

// NewKernel returns the backend named by cfg.Kernel. The manifold backend
// falls back to polytope when the binary was built without it.
func NewKernel(cfg config.Slicer, log zerolog.Logger) (kernel.Kernel, error) {
	switch cfg.Kernel {
	case "polytope", "":
		return polytope.New(), nil
	case "sdfx":
		return sdfx.New(sdfx.WithMeshCells(cfg.MeshCells)), nil
	case "manifold":
		k, err := manifold.New()
		if errors.Is(err, manifold.ErrUnavailable) {
			log.Warn().Err(err).Msg("Falling back to the polytope kernel")
			return polytope.New(), nil
		}
		return k, err
	}
	return nil, fmt.Errorf("pipeline: unknown kernel %q", cfg.Kernel)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger passed to every stage.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithKernel overrides the configured kernel backend.
func WithKernel(k kernel.Kernel) Option {
	return func(p *Pipeline) { p.k = k }
}

// WithObserver adds a carve observer, such as telemetry.Metrics.
func WithObserver(o slicer.Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

// WithRepository sets the repository that holds the bed mesh.
func WithRepository(r *repository.FileRepository) Option {
	return func(p *Pipeline) { p.repo = r }
}

// WithDropToBed moves loaded models down onto the bed before clipping.
func WithDropToBed() Option {
	return func(p *Pipeline) { p.drop = true }
}

// Pipeline holds the collaborators for one configuration. It is safe to
// run several models through one Pipeline sequentially.
type Pipeline struct {
	cfg       *config.Config
	k         kernel.Kernel
	engine    *engine.Engine
	repo      *repository.FileRepository
	observers slicer.Observers
	drop      bool
	log       zerolog.Logger
}

// New validates cfg and builds a Pipeline.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.k == nil {
		k, err := NewKernel(cfg.Slicer, p.log)
		if err != nil {
			return nil, err
		}
		p.k = k
	}
	if p.repo == nil {
		p.repo = repository.NewFileRepository(".", p.log)
	}
	p.engine = engine.NewEngine(engine.WithLogger(p.log))
	return p, nil
}

// Kernel returns the kernel in use.
func (p *Pipeline) Kernel() kernel.Kernel {
	return p.k
}

// LoadModel reads an STL mesh or evaluates a model script. Mesh primitives
// in scripts resolve relative to the script's directory.
func (p *Pipeline) LoadModel(ctx context.Context, path string) (kernel.Solid, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	switch strings.ToLower(filepath.Ext(abs)) {
	case ExtSTL:
		m, err := p.repo.Load(abs)
		if err != nil {
			return nil, err
		}
		s, err := p.k.FromMesh(m)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %s: %w", path, err)
		}
		return s, nil

	case ExtScript:
		src, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		res, err := p.engine.Compile(ctx, string(src))
		if err != nil {
			return nil, fmt.Errorf("pipeline: %s: %w", path, err)
		}
		if err := res.Err(); err != nil {
			return nil, fmt.Errorf("pipeline: %s: %w", path, err)
		}
		meshes := repository.NewFileRepository(filepath.Dir(abs), p.log)
		return assemble.Build(p.k, res.Graph, assemble.WithMeshLoader(meshes), assemble.WithLogger(p.log))
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, path)
}

// Prepare returns the bed surface and the model clipped to the build
// volume above it.
func (p *Pipeline) Prepare(model kernel.Solid) (kernel.Solid, surface.Surface, error) {
	bed, err := p.repo.BedSurface(p.cfg)
	if err != nil {
		return nil, surface.Surface{}, err
	}
	if p.drop {
		model = prepare.DropToBed(p.k, model, bedFloor(bed))
	}
	clipped, err := prepare.ClipToBuildVolume(p.k, model, bed, p.cfg.Printer.BuildHeight)
	if err != nil {
		return nil, surface.Surface{}, err
	}
	return clipped, bed, nil
}

// bedFloor returns the lowest Z of the bed.
func bedFloor(bed surface.Surface) float64 {
	floor := math.Inf(1)
	for _, v := range bed.Vertices() {
		floor = math.Min(floor, v.Z)
	}
	if math.IsInf(floor, 1) {
		return 0
	}
	return floor
}

// Carve slices model on bed. The error is a *slicer.TerminalError when the
// run failed; the result is valid either way.
func (p *Pipeline) Carve(ctx context.Context, model kernel.Solid, bed surface.Surface) (*slicer.Result, error) {
	sc := p.cfg.Slicer
	strategy, err := clearance.ByName(sc.Minkowski, sc.Workers)
	if err != nil {
		return nil, err
	}
	opts := []slicer.Option{
		slicer.WithLogger(p.log),
		slicer.WithStrategy(strategy),
		slicer.WithObserver(p.observers),
	}
	if sc.DiagnosticsDir != "" {
		opts = append(opts, slicer.WithDiagnostics(repository.NewFileRepository(sc.DiagnosticsDir, p.log)))
	}

	c, err := slicer.New(p.k, slicer.Params{
		LayerHeight:   sc.LayerHeight,
		SafeAngle:     p.cfg.SafeAngle(),
		MaxIterations: sc.MaxIterations,
		VolumeEpsilon: sc.VolumeEpsilon,
	}, opts...)
	if err != nil {
		return nil, err
	}
	return c.Carve(ctx, model, bed)
}

// Slice runs the whole pipeline for the model at path and exports into
// outDir. A failed carve still exports the slices emitted before the
// failure and returns the summary alongside the *slicer.TerminalError.
func (p *Pipeline) Slice(ctx context.Context, path, outDir string) (*Summary, error) {
	runID := uuid.New().String()
	log := p.log.With().Str("run_id", runID).Str("model", path).Logger()
	start := time.Now()

	model, err := p.LoadModel(ctx, path)
	if err != nil {
		return nil, err
	}
	clipped, bed, err := p.Prepare(model)
	if err != nil {
		return nil, err
	}
	log.Info().
		Float64("volume", p.k.Volume(clipped)).
		Float64("clipped", p.k.Volume(model)-p.k.Volume(clipped)).
		Msg("Prepared model")

	res, carveErr := p.Carve(ctx, clipped, bed)
	if res == nil {
		return nil, carveErr
	}

	sum, err := p.Export(ctx, Run{ID: runID, Model: path}, res, outDir)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("status", res.Status.String()).
		Int("slices", len(res.Slices)).
		Dur("elapsed", time.Since(start)).
		Str("out", outDir).
		Msg("Slicing finished")
	return sum, carveErr
}
