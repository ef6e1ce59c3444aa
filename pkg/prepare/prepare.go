// Package prepare readies a model for slicing: it checks the model is
// closed and discards whatever lies outside the printable volume.
package prepare

import (
	"fmt"

	"github.com/chazu/shockwave/pkg/kernel"
	"github.com/chazu/shockwave/pkg/surface"
)

// BuildVolume extrudes the bed surface up to height and returns it as a
// solid.
func BuildVolume(k kernel.Kernel, bed surface.Surface, height float64) (kernel.Solid, error) {
	if height <= 0 {
		return nil, fmt.Errorf("prepare: build height %v must be positive", height)
	}
	m, err := surface.Extrude(bed, height)
	if err != nil {
		return nil, fmt.Errorf("prepare: build volume: %w", err)
	}
	m.Name = "build-volume"
	vol, err := k.FromMesh(m)
	if err != nil {
		return nil, fmt.Errorf("prepare: build volume: %w", err)
	}
	if !k.IsWatertight(vol) {
		return nil, fmt.Errorf("prepare: build volume: %w", kernel.ErrNotWatertight)
	}
	return vol, nil
}

// ClipToBuildVolume intersects model with the volume above the bed.
func ClipToBuildVolume(k kernel.Kernel, model kernel.Solid, bed surface.Surface, height float64) (kernel.Solid, error) {
	if !k.IsWatertight(model) {
		return nil, fmt.Errorf("prepare: model: %w", kernel.ErrNotWatertight)
	}
	vol, err := BuildVolume(k, bed, height)
	if err != nil {
		return nil, err
	}
	clipped, err := k.Intersection(model, vol)
	if err != nil {
		return nil, fmt.Errorf("prepare: clip: %w", err)
	}
	if !k.IsWatertight(clipped) {
		return nil, fmt.Errorf("prepare: clipped model: %w", kernel.ErrNotWatertight)
	}
	return clipped, nil
}

// DropToBed translates s so its lowest point rests at z.
func DropToBed(k kernel.Kernel, s kernel.Solid, z float64) kernel.Solid {
	if k.Volume(s) <= 0 {
		return s
	}
	min, _ := s.BoundingBox()
	if min[2] == z {
		return s
	}
	return k.Translate(s, 0, 0, z-min[2])
}
