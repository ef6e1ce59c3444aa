package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/chazu/shockwave/pkg/gcode"
	"github.com/chazu/shockwave/pkg/kernel"
	"github.com/chazu/shockwave/pkg/repository"
	"github.com/chazu/shockwave/pkg/slicer"
	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"
)

// Export file names.
const (
	SummaryFile  = "summary.json"
	SurfacesFile = "surfaces.stl"
	PrologueFile = "prologue.gcode"
)

// primeMargin is the distance of the prime line from the bed edges, in mm.
const primeMargin = 5

// Run identifies one pipeline run in exported files.
type Run struct {
	ID    string
	Model string
}

// SliceSummary describes one exported slice.
type SliceSummary struct {
	Index        int     `json:"index"`
	VolumeMM3    float64 `json:"volume_mm3"`
	SurfaceFaces int     `json:"surface_faces"`
	SurfaceArea  float64 `json:"surface_area_mm2"`
	VolumeFile   string  `json:"volume_file"`
	SurfaceFile  string  `json:"surface_file,omitempty"`
}

// Summary is written as summary.json next to the slice files.
type Summary struct {
	RunID           string         `json:"run_id"`
	Model           string         `json:"model"`
	ConfigKey       string         `json:"config_key"`
	Kernel          string         `json:"kernel"`
	Minkowski       string         `json:"minkowski"`
	Status          slicer.Status  `json:"status"`
	Reason          string         `json:"reason,omitempty"`
	Iterations      int            `json:"iterations"`
	InputVolume     float64        `json:"input_volume_mm3"`
	RemainingVolume float64        `json:"remaining_volume_mm3"`
	SlicedVolume    float64        `json:"sliced_volume_mm3"`
	Progress        float64        `json:"progress"`
	Slices          []SliceSummary `json:"slices"`
}

// VolumeFileName returns the STL file name of slice i's volume.
func VolumeFileName(i int) string {
	return fmt.Sprintf("slice-%03d.stl", i)
}

// SurfaceFileName returns the STL file name of slice i's top surface.
func SurfaceFileName(i int) string {
	return fmt.Sprintf("slice-%03d-surface.stl", i)
}

// Export writes every slice volume and surface as STL, all surfaces merged
// into surfaces.stl, the printer prologue and summary.json into dir. Slices
// are written concurrently.
func (p *Pipeline) Export(ctx context.Context, run Run, res *slicer.Result, dir string) (*Summary, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	out := repository.NewFileRepository(dir, p.log)

	sum := &Summary{
		RunID:           run.ID,
		Model:           run.Model,
		ConfigKey:       p.cfg.Key(),
		Kernel:          p.cfg.Slicer.Kernel,
		Minkowski:       p.cfg.Slicer.Minkowski,
		Status:          res.Status,
		Iterations:      res.Iterations,
		InputVolume:     res.InputVolume,
		RemainingVolume: res.RemainingVolume,
		SlicedVolume:    res.SlicedVolume(),
		Progress:        res.Progress(),
		Slices:          make([]SliceSummary, len(res.Slices)),
	}
	if res.Reason != nil {
		sum.Reason = res.Reason.Error()
	}

	g, ctx := errgroup.WithContext(ctx)
	workers := p.cfg.Slicer.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)

	for i, s := range res.Slices {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ss := SliceSummary{
				Index:        s.Index,
				VolumeMM3:    s.VolumeMM3,
				SurfaceFaces: s.Surface.FaceCount(),
				SurfaceArea:  s.Surface.Area(),
				VolumeFile:   VolumeFileName(s.Index),
			}
			m, err := p.k.ToMesh(s.Volume)
			if err != nil {
				return fmt.Errorf("pipeline: slice %d: %w", s.Index, err)
			}
			if err := out.Save(ss.VolumeFile, m); err != nil {
				return err
			}
			if !s.Surface.Empty() {
				ss.SurfaceFile = SurfaceFileName(s.Index)
				if err := out.Save(ss.SurfaceFile, s.Surface.Mesh); err != nil {
					return err
				}
			}
			sum.Slices[i] = ss
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if merged := mergeSurfaces(res.Slices); !merged.IsEmpty() {
		if err := out.Save(SurfacesFile, merged); err != nil {
			return nil, err
		}
	}
	if err := p.writePrologue(filepath.Join(dir, PrologueFile)); err != nil {
		return nil, err
	}
	if err := writeSummary(filepath.Join(dir, SummaryFile), sum); err != nil {
		return nil, err
	}

	p.log.Info().Str("dir", dir).Int("slices", len(res.Slices)).Msg("Exported slices")
	return sum, nil
}

// mergeSurfaces concatenates the slice surfaces in print order.
func mergeSurfaces(slices []slicer.Slice) *kernel.Mesh {
	merged := &kernel.Mesh{Name: "surfaces"}
	for _, s := range slices {
		m := s.Surface.Mesh
		for t := 0; t < s.Surface.FaceCount(); t++ {
			a, b, c := m.Triangle(t)
			merged.AddTriangle(a, b, c)
		}
	}
	return merged
}

// writePrologue emits the heat-up sequence and a prime line along the
// front edge of the bed at first-layer height.
func (p *Pipeline) writePrologue(path string) error {
	pr := p.cfg.Printer
	e := p.cfg.Extruder()
	layer := p.cfg.Slicer.LayerHeight

	st, lines := gcode.Setup(e)
	start := mgl64.Vec3{primeMargin, primeMargin, layer}
	end := mgl64.Vec3{pr.BedSize.X - primeMargin, primeMargin, layer}

	st, travel := gcode.Travel(pr.MaxTravelFeedrate, st, start)
	lines = append(lines, travel...)
	material := end.Sub(start).Len() * e.NozzleDiameter * layer
	_, prime := gcode.Extrude(e, pr.MaxPrintFeedrate, st, end, material)
	lines = append(lines, prime...)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := gcode.Write(f, lines); err != nil {
		f.Close()
		return fmt.Errorf("pipeline: write %s: %w", path, err)
	}
	return f.Close()
}

func writeSummary(path string, sum *Summary) error {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}
