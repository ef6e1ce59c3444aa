package slicer

import (
	"errors"
	"fmt"

	"github.com/chazu/shockwave/pkg/kernel"
	"github.com/chazu/shockwave/pkg/surface"
)

// Status is the state of a carve run.
type Status int

const (
	// Running means the carve loop can take another step.
	Running Status = iota
	// ConvergedFull means all material was emitted as slices.
	ConvergedFull
	// ConvergedPartial means material remains but no printable top
	// surface could be found for it.
	ConvergedPartial
	// Failed means the run stopped on a fatal condition.
	Failed
)

var statusNames = map[Status]string{
	Running:          "RUNNING",
	ConvergedFull:    "CONVERGED_FULL",
	ConvergedPartial: "CONVERGED_PARTIAL",
	Failed:           "FAILED",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further step may be taken.
func (s Status) Terminal() bool {
	return s != Running
}

// Terminal reasons. kernel.ErrNotWatertight is the fourth.
var (
	ErrZeroProgress           = errors.New("slicer: material remains but no printable top surface was found")
	ErrIterationLimitExceeded = errors.New("slicer: iteration limit exceeded")
	ErrCancelled              = errors.New("slicer: cancelled")
)

// TerminalError is returned by Carve when a run ends FAILED.
type TerminalError struct {
	Status Status
	Reason error
	// Index is the number of slices emitted before the failure.
	Index int
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("slicer: %s after %d slices: %v", e.Status, e.Index, e.Reason)
}

func (e *TerminalError) Unwrap() error {
	return e.Reason
}

// Slice is one printable piece: a watertight volume and the top surface
// the next slice is built on.
type Slice struct {
	Index     int
	Volume    kernel.Solid
	Surface   surface.Surface
	VolumeMM3 float64
}

// EngineState is the carve loop state. Step never modifies its argument.
type EngineState struct {
	Remaining kernel.Solid
	// Printed holds the base slab followed by every slice volume. The
	// pieces are interior-disjoint; their union is the printed volume.
	Printed        []kernel.Solid
	PrintedSurface surface.Surface
	Index          int
}

// PrintedVolume returns the total volume of the printed pieces.
func (s EngineState) PrintedVolume(k kernel.Kernel) float64 {
	var v float64
	for _, p := range s.Printed {
		v += k.Volume(p)
	}
	return v
}

// StepOutcome describes one transition.
type StepOutcome struct {
	Status Status
	Reason error
	// Slice is set when the step emitted a slice.
	Slice *Slice
	// RemainingVolume is the volume left to print after the step.
	RemainingVolume float64
}

// Result is the output of a carve run. Slices are in print order and are
// valid whatever the status.
type Result struct {
	Slices          []Slice
	Status          Status
	Reason          error
	Iterations      int
	InputVolume     float64
	RemainingVolume float64
}

// Progress returns the printed fraction of the input volume.
func (r *Result) Progress() float64 {
	return Progress(r.InputVolume, r.RemainingVolume)
}

// SlicedVolume returns the sum of emitted slice volumes.
func (r *Result) SlicedVolume() float64 {
	var v float64
	for _, s := range r.Slices {
		v += s.VolumeMM3
	}
	return v
}

// Progress returns 1 - remaining/input, or 1 for an empty input.
func Progress(input, remaining float64) float64 {
	if input <= 0 {
		return 1
	}
	p := 1 - remaining/input
	if p < 0 {
		return 0
	}
	return p
}
