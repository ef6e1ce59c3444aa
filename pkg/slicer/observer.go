package slicer

import "time"

// StepReport summarizes one carve step.
type StepReport struct {
	Index       int
	Iteration   int
	Duration    time.Duration
	SliceVolume float64
	Progress    float64
	Status      Status
}

// Observer receives carve events. Calls happen on the carving goroutine;
// implementations must not block.
type Observer interface {
	StepCompleted(StepReport)
	CarveFinished(*Result)
}

type nopObserver struct{}

func (nopObserver) StepCompleted(StepReport) {}
func (nopObserver) CarveFinished(*Result)    {}

// Observers fans events out to several observers in order.
type Observers []Observer

// StepCompleted forwards r to every observer.
func (os Observers) StepCompleted(r StepReport) {
	for _, o := range os {
		o.StepCompleted(r)
	}
}

// CarveFinished forwards res to every observer.
func (os Observers) CarveFinished(res *Result) {
	for _, o := range os {
		o.CarveFinished(res)
	}
}
