// Package config holds the printer and slicer settings. Configurations are
// YAML documents layered over Default and checked with struct tags plus a
// few cross-field rules.
package config

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/chazu/shockwave/pkg/clearance"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// BedFlat is the bed surface id for a generated flat bed.
const BedFlat = "flat"

var (
	// ErrMultipleExtruders is returned for printers with more than one
	// extruder. Only extruder 0 drives the clearance model.
	ErrMultipleExtruders = errors.New("config: multiple extruders are not supported")
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("config: invalid configuration")
)

// Filament describes the material loaded into an extruder.
type Filament struct {
	BedTemperature      float64 `yaml:"bed_temperature" validate:"gte=0,lte=150"`
	ExtruderTemperature float64 `yaml:"extruder_temperature" validate:"gte=0,lte=400"`
	// FanSpeed is a fraction of full speed.
	FanSpeed float64 `yaml:"fan_speed" validate:"gte=0,lte=1"`
}

// Extruder describes one nozzle and its feed.
type Extruder struct {
	VolumetricFlow   float64  `yaml:"volumetric_flow_mm3s" validate:"gt=0"`
	FilamentDiameter float64  `yaml:"filament_diameter_mm" validate:"gt=0"`
	Filament         Filament `yaml:"filament"`
	// SafeAngle is the angle from horizontal, in degrees, below which no
	// part of the print may rise around the nozzle. Small values approach
	// planar printing.
	SafeAngle      float64 `yaml:"safe_angle_from_nozzle_degrees" validate:"gt=0,lt=90"`
	NozzleDiameter float64 `yaml:"nozzle_diameter_mm" validate:"gt=0"`
}

// Size2 is a width and depth in millimetres.
type Size2 struct {
	X float64 `yaml:"x" validate:"gt=0"`
	Y float64 `yaml:"y" validate:"gt=0"`
}

// Printer holds the mechanical settings.
type Printer struct {
	// BedSurface is BedFlat or the name of a mesh in the model repository.
	BedSurface        string     `yaml:"print_bed_surface" validate:"required"`
	BedSize           Size2      `yaml:"bed_size_mm"`
	BuildHeight       float64    `yaml:"print_volume_height_mm" validate:"gt=0"`
	MaxPrintFeedrate  float64    `yaml:"max_print_feedrate_mm_s" validate:"gt=0"`
	MaxTravelFeedrate float64    `yaml:"max_travel_feedrate_mm_s" validate:"gt=0"`
	Extruders         []Extruder `yaml:"extruders" validate:"required,min=1,dive"`
}

// Slicer holds the carve settings.
type Slicer struct {
	LayerHeight    float64 `yaml:"layer_height_mm" validate:"gt=0"`
	MaxIterations  int     `yaml:"max_iterations" validate:"gte=1"`
	Minkowski      string  `yaml:"minkowski" validate:"oneof=approximate exact"`
	Kernel         string  `yaml:"kernel" validate:"oneof=polytope sdfx manifold"`
	MeshCells      int     `yaml:"mesh_cells" validate:"gte=8"`
	VolumeEpsilon  float64 `yaml:"volume_epsilon_mm3" validate:"gt=0"`
	DiagnosticsDir string  `yaml:"diagnostics_dir"`
	Workers        int     `yaml:"workers" validate:"gte=0"`
}

// Config is the full configuration.
type Config struct {
	Printer Printer `yaml:"printer"`
	Slicer  Slicer  `yaml:"slicer"`
}

// Default returns the stock configuration: a 220×220 mm flat bed, one
// 0.4 mm nozzle with a 15° safe angle and 0.3 mm layers.
func Default() *Config {
	return &Config{
		Printer: Printer{
			BedSurface:        BedFlat,
			BedSize:           Size2{X: 220, Y: 220},
			BuildHeight:       200,
			MaxPrintFeedrate:  100,
			MaxTravelFeedrate: 500,
			Extruders: []Extruder{{
				VolumetricFlow:   7,
				FilamentDiameter: 1.75,
				Filament: Filament{
					BedTemperature:      60,
					ExtruderTemperature: 200,
					FanSpeed:            1,
				},
				SafeAngle:      15,
				NozzleDiameter: 0.4,
			}},
		},
		Slicer: Slicer{
			LayerHeight:   0.3,
			MaxIterations: 200,
			Minkowski:     clearance.StrategyApproximate,
			Kernel:        "polytope",
			MeshCells:     200,
			VolumeEpsilon: 1e-6,
		},
	}
}

// Load reads and validates a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse YAML: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(c.Printer.Extruders) > 1 {
		return fmt.Errorf("%w: got %d", ErrMultipleExtruders, len(c.Printer.Extruders))
	}
	if c.Slicer.LayerHeight >= c.Printer.BuildHeight {
		return fmt.Errorf("%w: layer height %v must be below build height %v",
			ErrInvalid, c.Slicer.LayerHeight, c.Printer.BuildHeight)
	}
	return checkFaceting(c.SafeAngle(), clearance.ConeSections)
}

// checkFaceting requires the top-face tolerance to admit the flanks of the
// faceted cone, which are steeper than the safe angle at their midpoints.
func checkFaceting(safeAngle float64, sections int) error {
	tol := clearance.SelectionTolerance(safeAngle) * 180 / math.Pi
	if flank := safeAngle + clearance.FacetError(safeAngle, sections); flank > tol {
		return fmt.Errorf("%w: %d-sided cone flanks reach %.2f°, above the %.2f° top-face tolerance",
			ErrInvalid, sections, flank, tol)
	}
	return nil
}

// Extruder returns extruder 0.
func (c *Config) Extruder() Extruder {
	return c.Printer.Extruders[0]
}

// SafeAngle returns the safe angle of extruder 0 in degrees.
func (c *Config) SafeAngle() float64 {
	if len(c.Printer.Extruders) == 0 {
		return 0
	}
	return c.Printer.Extruders[0].SafeAngle
}

// Key returns a stable digest of the configuration for cache lookups.
func (c *Config) Key() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		// Config holds only plain values.
		panic(fmt.Sprintf("config: marshal: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
