package prepare

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/shockwave/pkg/kernel"
	"github.com/chazu/shockwave/pkg/kernel/polytope"
	"github.com/chazu/shockwave/pkg/surface"
)

func TestClipToBuildVolume(t *testing.T) {
	k := polytope.New()
	bed := surface.Plane(0, 0, 10, 10, 0)
	tests := []struct {
		name    string
		model   kernel.Solid
		height  float64
		wantVol float64
	}{
		{"inside", k.Translate(k.Box(2, 2, 2), 1, 1, 0), 20, 8},
		{"overhangs the bed edge", k.Translate(k.Box(4, 4, 1), 8, 8, 0), 20, 4},
		{"taller than the printer", k.Box(1, 1, 30), 20, 20},
		{"below the bed", k.Translate(k.Box(2, 2, 2), 1, 1, -1), 20, 4},
		{"entirely outside", k.Translate(k.Box(1, 1, 1), 50, 50, 0), 20, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClipToBuildVolume(k, tt.model, bed, tt.height)
			if err != nil {
				t.Fatalf("ClipToBuildVolume() error = %v", err)
			}
			if v := k.Volume(got); math.Abs(v-tt.wantVol) > 1e-6 {
				t.Errorf("Volume = %f, want %f", v, tt.wantVol)
			}
		})
	}
}

func TestBuildVolume(t *testing.T) {
	k := polytope.New()
	vol, err := BuildVolume(k, surface.Plane(0, 0, 10, 20, 0), 5)
	if err != nil {
		t.Fatalf("BuildVolume() error = %v", err)
	}
	if v := k.Volume(vol); math.Abs(v-1000) > 1e-6 {
		t.Errorf("Volume = %f, want 1000", v)
	}
	if _, err := BuildVolume(k, surface.Plane(0, 0, 1, 1, 0), 0); err == nil {
		t.Error("zero height should fail")
	}
	if _, err := BuildVolume(k, surface.Surface{}, 5); !errors.Is(err, surface.ErrEmpty) {
		t.Errorf("empty bed error = %v, want surface.ErrEmpty", err)
	}
}

type openKernel struct{ *polytope.Kernel }

func (openKernel) IsWatertight(kernel.Solid) bool { return false }

func TestClipRejectsOpenModel(t *testing.T) {
	k := openKernel{polytope.New()}
	_, err := ClipToBuildVolume(k, k.Box(1, 1, 1), surface.Plane(0, 0, 10, 10, 0), 10)
	if !errors.Is(err, kernel.ErrNotWatertight) {
		t.Errorf("error = %v, want ErrNotWatertight", err)
	}
}

func TestDropToBed(t *testing.T) {
	k := polytope.New()
	s := DropToBed(k, k.Translate(k.Box(1, 1, 1), 3, 4, 7.5), 0)
	min, max := s.BoundingBox()
	if math.Abs(min[2]) > 1e-12 || math.Abs(max[2]-1) > 1e-12 {
		t.Errorf("Z range = [%f, %f], want [0, 1]", min[2], max[2])
	}
	if min[0] != 3 || min[1] != 4 {
		t.Errorf("XY moved to (%f, %f)", min[0], min[1])
	}
}
