package repository

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/chazu/shockwave/pkg/config"
	"github.com/chazu/shockwave/pkg/kernel"
	"github.com/chazu/shockwave/pkg/surface"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/rs/zerolog"
)

func cube(s float64) *kernel.Mesh {
	p := func(x, y, z float64) v3.Vec { return v3.Vec{X: x * s, Y: y * s, Z: z * s} }
	v := [8]v3.Vec{p(0, 0, 0), p(1, 0, 0), p(1, 1, 0), p(0, 1, 0), p(0, 0, 1), p(1, 0, 1), p(1, 1, 1), p(0, 1, 1)}
	faces := [][4]int{{0, 3, 2, 1}, {4, 5, 6, 7}, {0, 1, 5, 4}, {1, 2, 6, 5}, {2, 3, 7, 6}, {3, 0, 4, 7}}
	var tris [][3]v3.Vec
	for _, f := range faces {
		tris = append(tris, [3]v3.Vec{v[f[0]], v[f[1]], v[f[2]]}, [3]v3.Vec{v[f[0]], v[f[2]], v[f[3]]})
	}
	return kernel.NewMeshFromTriangles(tris)
}

func TestSaveLoad(t *testing.T) {
	r := NewFileRepository(t.TempDir(), zerolog.Nop())
	if err := r.Save("parts/cube", cube(2)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	m, err := r.Load("parts/cube.stl")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m.Name != "cube" {
		t.Errorf("Name = %q, want cube", m.Name)
	}
	if m.TriangleCount() != 12 {
		t.Errorf("TriangleCount() = %d, want 12", m.TriangleCount())
	}
	if m.VertexCount() != 8 {
		t.Errorf("VertexCount() = %d, want 8 after welding", m.VertexCount())
	}
	if !m.IsWatertight() {
		t.Error("loaded cube should be watertight")
	}
	if v := m.Volume(); math.Abs(v-8) > 1e-6 {
		t.Errorf("Volume() = %f, want 8", v)
	}
}

func TestLoadNotFound(t *testing.T) {
	r := NewFileRepository(t.TempDir(), zerolog.Nop())
	if _, err := r.Load("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	r := NewFileRepository(t.TempDir(), zerolog.Nop())
	p := filepath.Join(dir, "abs.stl")
	if err := r.Save(p, cube(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Load(p); err != nil {
		t.Errorf("Load(%q) error = %v", p, err)
	}
}

func TestFlatBedSurface(t *testing.T) {
	r := NewFileRepository(t.TempDir(), zerolog.Nop())
	cfg := config.Default()
	cfg.Printer.BedSize = config.Size2{X: 100, Y: 50}

	s, err := r.BedSurface(cfg)
	if err != nil {
		t.Fatalf("BedSurface() error = %v", err)
	}
	if s.FaceCount() != 2 {
		t.Errorf("FaceCount() = %d, want 2", s.FaceCount())
	}
	if a := s.Area(); math.Abs(a-5000) > 1e-9 {
		t.Errorf("Area() = %f, want 5000", a)
	}
	again, err := r.BedSurface(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if again.Mesh != s.Mesh {
		t.Error("BedSurface should be cached per configuration")
	}

	other := config.Default()
	other.Printer.BedSize = config.Size2{X: 10, Y: 10}
	small, err := r.BedSurface(other)
	if err != nil {
		t.Fatal(err)
	}
	if small.Mesh == s.Mesh {
		t.Error("different configurations should not share a bed surface")
	}
}

func TestMeshBedSurface(t *testing.T) {
	r := NewFileRepository(t.TempDir(), zerolog.Nop())
	bed := surface.Plane(0, 0, 30, 30, 0)
	if err := r.Save("curved-bed", bed.Mesh); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Printer.BedSurface = "curved-bed"
	s, err := r.BedSurface(cfg)
	if err != nil {
		t.Fatalf("BedSurface() error = %v", err)
	}
	if a := s.Area(); math.Abs(a-900) > 1e-6 {
		t.Errorf("Area() = %f, want 900", a)
	}

	cfg.Printer.BedSurface = "missing-bed"
	if _, err := r.BedSurface(cfg); !errors.Is(err, ErrNotFound) {
		t.Errorf("BedSurface() error = %v, want ErrNotFound", err)
	}
}

func TestTriangleConversion(t *testing.T) {
	m := cube(1)
	tris := ToTriangles(m)
	if len(tris) != 12 {
		t.Fatalf("len(ToTriangles()) = %d, want 12", len(tris))
	}
	back := FromTriangles(tris)
	if back.VertexCount() != 8 || !back.IsWatertight() {
		t.Errorf("FromTriangles() gave %d vertices, watertight=%v", back.VertexCount(), back.IsWatertight())
	}
	if ToTriangles(nil) != nil {
		t.Error("ToTriangles(nil) should be nil")
	}
}
