// Package gcode emits motion commands. Every function is pure: it takes the
// printer state and returns the next state with the lines to send.
package gcode

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/chazu/shockwave/pkg/config"
	"github.com/go-gl/mathgl/mgl64"
)

// State is the tool position and the absolute extruder position in
// millimetres of filament.
type State struct {
	Position  mgl64.Vec3
	Extrusion float64
}

// Setup returns the initial state and the preamble: absolute extrusion,
// bed and nozzle temperatures and the part fan.
func Setup(e config.Extruder) (State, []string) {
	f := e.Filament
	return State{}, []string{
		"M82 ; Set extruder to absolute positioning",
		fmt.Sprintf("M140 S%s ; Set bed temperature", num(f.BedTemperature)),
		fmt.Sprintf("M104 S%s ; Set extruder temperature", num(f.ExtruderTemperature)),
		fmt.Sprintf("M106 S%d ; Set fan speed", int(math.Round(f.FanSpeed*255))),
	}
}

// FilamentArea returns the cross-section of the filament in mm².
func FilamentArea(e config.Extruder) float64 {
	r := e.FilamentDiameter / 2
	return math.Pi * r * r
}

// Extrude moves in a straight line to end while depositing materialMM3 of
// plastic. The feedrate is set so the extruder runs at its volumetric flow
// limit, capped by maxFeedrate in mm/s.
func Extrude(e config.Extruder, maxFeedrate float64, st State, end mgl64.Vec3, materialMM3 float64) (State, []string) {
	dist := end.Sub(st.Position).Len()
	filament := materialMM3 / FilamentArea(e)
	next := State{Position: end, Extrusion: st.Extrusion + filament}

	// Seconds needed to push the material through the nozzle.
	t := materialMM3 / e.VolumetricFlow
	var speed float64 // mm/s along the path
	switch {
	case t <= 0:
		speed = maxFeedrate
	case dist == 0:
		speed = filament / t
	default:
		speed = math.Min(dist/t, maxFeedrate)
	}

	line := "G1"
	if dist > 0 {
		line += " " + coords(end)
	}
	line += fmt.Sprintf(" E%s F%s", num(next.Extrusion), num(speed*60))
	return next, []string{line}
}

// Travel moves to end without extruding.
func Travel(maxFeedrate float64, st State, end mgl64.Vec3) (State, []string) {
	next := State{Position: end, Extrusion: st.Extrusion}
	return next, []string{fmt.Sprintf("G0 %s F%s", coords(end), num(maxFeedrate*60))}
}

// Write sends lines to w, one per line.
func Write(w io.Writer, lines []string) error {
	bw := bufio.NewWriter(w)
	for _, l := range lines {
		if _, err := bw.WriteString(l); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func coords(p mgl64.Vec3) string {
	return fmt.Sprintf("X%s Y%s Z%s", num(p.X()), num(p.Y()), num(p.Z()))
}

// num formats v with at most five decimals and no trailing zeros.
func num(v float64) string {
	v = math.Round(v*1e5) / 1e5
	if v == 0 {
		v = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
