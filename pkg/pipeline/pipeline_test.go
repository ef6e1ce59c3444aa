package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/shockwave/pkg/config"
	"github.com/chazu/shockwave/pkg/kernel/polytope"
	"github.com/chazu/shockwave/pkg/pipeline"
	"github.com/chazu/shockwave/pkg/repository"
	"github.com/chazu/shockwave/pkg/slicer"
	"github.com/rs/zerolog"
)

// testConfig is a 50×50 mm flat bed with 1 mm layers and a 10° safe angle.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Printer.BedSize = config.Size2{X: 50, Y: 50}
	cfg.Printer.BuildHeight = 40
	cfg.Printer.Extruders[0].SafeAngle = 10
	cfg.Slicer.LayerHeight = 1
	cfg.Slicer.Workers = 2
	return cfg
}

func newPipeline(t *testing.T, cfg *config.Config, opts ...pipeline.Option) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNewKernel(t *testing.T) {
	tests := []struct {
		name    string
		kernel  string
		wantErr bool
	}{
		{"default", "", false},
		{"polytope", "polytope", false},
		{"sdfx", "sdfx", false},
		{"manifold falls back", "manifold", false},
		{"unknown", "cgal", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default().Slicer
			cfg.Kernel = tt.kernel
			k, err := pipeline.NewKernel(cfg, zerolog.Nop())
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewKernel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && k == nil {
				t.Error("NewKernel() returned nil kernel")
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Slicer.LayerHeight = 0
	if _, err := pipeline.New(cfg); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("New() error = %v, want ErrInvalid", err)
	}
}

func TestLoadModel(t *testing.T) {
	k := polytope.New()
	p := newPipeline(t, testConfig(), pipeline.WithKernel(k))
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("script", func(t *testing.T) {
		s, err := p.LoadModel(ctx, filepath.Join("testdata", "block.swm"))
		if err != nil {
			t.Fatalf("LoadModel() error = %v", err)
		}
		if v := k.Volume(s); math.Abs(v-300) > 1e-6 {
			t.Errorf("Volume = %f, want 300", v)
		}
	})

	t.Run("script with mesh", func(t *testing.T) {
		m, err := k.ToMesh(k.Box(2, 2, 2))
		if err != nil {
			t.Fatal(err)
		}
		if err := repository.NewFileRepository(dir, zerolog.Nop()).Save("cube.stl", m); err != nil {
			t.Fatal(err)
		}
		script := filepath.Join(dir, "cut.swm")
		writeFile(t, script, `(model "cut" (difference (mesh "cube") (box 1 2 2)))`)

		s, err := p.LoadModel(ctx, script)
		if err != nil {
			t.Fatalf("LoadModel() error = %v", err)
		}
		if v := k.Volume(s); math.Abs(v-4) > 1e-4 {
			t.Errorf("Volume = %f, want 4", v)
		}
	})

	t.Run("stl", func(t *testing.T) {
		s, err := p.LoadModel(ctx, filepath.Join(dir, "cube.stl"))
		if err != nil {
			t.Fatalf("LoadModel() error = %v", err)
		}
		if v := k.Volume(s); math.Abs(v-8) > 1e-4 {
			t.Errorf("Volume = %f, want 8", v)
		}
	})

	t.Run("script error", func(t *testing.T) {
		script := filepath.Join(dir, "bad.swm")
		writeFile(t, script, `(model "bad" (box 1 -1 1))`)
		_, err := p.LoadModel(ctx, script)
		if err == nil || !strings.Contains(err.Error(), "must be positive") {
			t.Errorf("LoadModel() error = %v, want dimension error", err)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if _, err := p.LoadModel(ctx, filepath.Join(dir, "model.obj")); !errors.Is(err, pipeline.ErrUnsupportedModel) {
			t.Errorf("LoadModel() error = %v, want ErrUnsupportedModel", err)
		}
	})
}

func TestPrepare(t *testing.T) {
	k := polytope.New()
	ctx := context.Background()

	t.Run("clips to build volume", func(t *testing.T) {
		p := newPipeline(t, testConfig(), pipeline.WithKernel(k))
		// Half the box hangs off the bed edge at X=50.
		model := k.Translate(k.Box(10, 10, 3), 45, 20, 0)
		clipped, bed, err := p.Prepare(model)
		if err != nil {
			t.Fatalf("Prepare() error = %v", err)
		}
		if bed.Empty() {
			t.Error("bed surface is empty")
		}
		if v := k.Volume(clipped); math.Abs(v-150) > 1e-6 {
			t.Errorf("clipped volume = %f, want 150", v)
		}
	})

	t.Run("drops to bed", func(t *testing.T) {
		p := newPipeline(t, testConfig(), pipeline.WithKernel(k), pipeline.WithDropToBed())
		model, err := p.LoadModel(ctx, filepath.Join("testdata", "block.swm"))
		if err != nil {
			t.Fatal(err)
		}
		clipped, _, err := p.Prepare(k.Translate(model, 0, 0, 7))
		if err != nil {
			t.Fatalf("Prepare() error = %v", err)
		}
		min, _ := clipped.BoundingBox()
		if math.Abs(min[2]) > 1e-9 {
			t.Errorf("min Z = %f, want 0", min[2])
		}
		if v := k.Volume(clipped); math.Abs(v-300) > 1e-6 {
			t.Errorf("volume = %f, want 300", v)
		}
	})
}

type countingObserver struct {
	steps    int
	finished bool
}

func (o *countingObserver) StepCompleted(slicer.StepReport) { o.steps++ }
func (o *countingObserver) CarveFinished(*slicer.Result)    { o.finished = true }

func TestSlice(t *testing.T) {
	k := polytope.New()
	obs := &countingObserver{}
	p := newPipeline(t, testConfig(), pipeline.WithKernel(k), pipeline.WithObserver(obs))
	out := t.TempDir()

	sum, err := p.Slice(context.Background(), filepath.Join("testdata", "block.swm"), out)
	if err != nil {
		t.Fatalf("Slice() error = %v", err)
	}
	if sum.Status != slicer.ConvergedFull {
		t.Fatalf("Status = %s, want CONVERGED_FULL (%s)", sum.Status, sum.Reason)
	}
	if len(sum.Slices) != 3 {
		t.Fatalf("len(Slices) = %d, want 3", len(sum.Slices))
	}
	if sum.RunID == "" {
		t.Error("summary has no run id")
	}
	if math.Abs(sum.SlicedVolume-300) > 1e-6 {
		t.Errorf("SlicedVolume = %f, want 300", sum.SlicedVolume)
	}
	if obs.steps != sum.Iterations || !obs.finished {
		t.Errorf("observer saw %d steps (finished %v), want %d", obs.steps, obs.finished, sum.Iterations)
	}

	for i, s := range sum.Slices {
		if s.Index != i {
			t.Errorf("slice %d has index %d", i, s.Index)
		}
		if s.VolumeFile != pipeline.VolumeFileName(i) || s.SurfaceFile != pipeline.SurfaceFileName(i) {
			t.Errorf("slice %d files = %q, %q", i, s.VolumeFile, s.SurfaceFile)
		}
		for _, f := range []string{s.VolumeFile, s.SurfaceFile} {
			if _, err := os.Stat(filepath.Join(out, f)); err != nil {
				t.Errorf("missing %s: %v", f, err)
			}
		}
	}
	for _, f := range []string{pipeline.SurfacesFile, pipeline.PrologueFile, pipeline.SummaryFile} {
		if _, err := os.Stat(filepath.Join(out, f)); err != nil {
			t.Errorf("missing %s: %v", f, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(out, pipeline.SummaryFile))
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("summary.json: %v", err)
	}
	if decoded["status"] != "CONVERGED_FULL" {
		t.Errorf("summary status = %v, want CONVERGED_FULL", decoded["status"])
	}

	prologue, err := os.ReadFile(filepath.Join(out, pipeline.PrologueFile))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(prologue)), "\n")
	if len(lines) != 6 {
		t.Fatalf("prologue has %d lines, want 6:\n%s", len(lines), prologue)
	}
	if lines[4] != "G0 X5 Y5 Z1 F30000" {
		t.Errorf("travel = %q", lines[4])
	}
	if !strings.HasPrefix(lines[5], "G1 X45 Y5 Z1 E") {
		t.Errorf("prime line = %q", lines[5])
	}
}

func TestSliceCancelled(t *testing.T) {
	k := polytope.New()
	p := newPipeline(t, testConfig(), pipeline.WithKernel(k))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Slice(ctx, filepath.Join("testdata", "block.swm"), t.TempDir())
	if err == nil {
		t.Fatal("Slice() on a cancelled context should fail")
	}
}
