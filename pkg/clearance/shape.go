// Package clearance models where the nozzle can reach: the clearance cone
// that hangs below the nozzle tip and the Minkowski sums that sweep it over
// an already printed surface.
package clearance

import (
	"fmt"
	"math"

	"github.com/chazu/shockwave/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ConeSections is the number of sides of the faceted clearance cone.
const ConeSections = 8

// Shape is the convex clearance solid of the nozzle. The apex sits at the
// origin and the base ring lies Height below it, so sweeping the apex over
// a surface covers every point the nozzle can still deposit into.
type Shape struct {
	Height    float64
	Radius    float64
	SafeAngle float64 // degrees from horizontal
	Sections  int

	// Points holds the apex followed by the base ring.
	Points []v3.Vec
	Solid  kernel.Solid
}

// NozzleShape builds the clearance cone for a layer height and a safe
// overhang angle in degrees. The cone is 2×layerHeight tall with radius
// tan(90°-safeAngle)×height, so its flanks rise at safeAngle.
func NozzleShape(k kernel.Kernel, layerHeight, safeAngle float64) (*Shape, error) {
	if layerHeight <= 0 {
		return nil, fmt.Errorf("clearance: layer height %v must be positive", layerHeight)
	}
	if safeAngle <= 0 || safeAngle >= 90 {
		return nil, fmt.Errorf("clearance: safe angle %v must be in (0, 90) degrees", safeAngle)
	}
	h := 2 * layerHeight
	r := math.Tan((90-safeAngle)*math.Pi/180) * h

	pts := make([]v3.Vec, 0, ConeSections+1)
	pts = append(pts, v3.Vec{})
	for i := 0; i < ConeSections; i++ {
		a := 2 * math.Pi * float64(i) / ConeSections
		pts = append(pts, v3.Vec{X: r * math.Cos(a), Y: r * math.Sin(a), Z: -h})
	}

	s, err := k.ConvexHull(pts)
	if err != nil {
		return nil, fmt.Errorf("clearance: nozzle cone: %w", err)
	}
	if !k.IsWatertight(s) {
		return nil, fmt.Errorf("clearance: nozzle cone: %w", kernel.ErrNotWatertight)
	}
	return &Shape{
		Height:    h,
		Radius:    r,
		SafeAngle: safeAngle,
		Sections:  ConeSections,
		Points:    pts,
		Solid:     s,
	}, nil
}

// FacetError returns, in degrees, how much steeper the flanks of an
// n-sided cone inscribed in a circular cone of slope safeAngle are at
// their midpoints. Selecting top faces with a tolerance below
// safeAngle+FacetError rejects faces the faceted cone itself produces.
func FacetError(safeAngle float64, sections int) float64 {
	s := safeAngle * math.Pi / 180
	steep := math.Atan(math.Tan(s) / math.Cos(math.Pi/float64(sections)))
	return (steep - s) * 180 / math.Pi
}

// SelectionTolerance returns the angular tolerance, in radians, used to
// pick the top faces of a carved slice: twice the safe angle.
func SelectionTolerance(safeAngle float64) float64 {
	return 2 * safeAngle * math.Pi / 180
}
