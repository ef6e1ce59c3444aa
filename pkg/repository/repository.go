// Package repository loads and stores meshes as STL files and provides the
// print bed surface.
package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chazu/shockwave/pkg/config"
	"github.com/chazu/shockwave/pkg/kernel"
	"github.com/chazu/shockwave/pkg/surface"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a named mesh does not exist.
var ErrNotFound = errors.New("repository: mesh not found")

// Repository stores named meshes.
type Repository interface {
	Load(name string) (*kernel.Mesh, error)
	Save(name string, m *kernel.Mesh) error
}

// FileRepository keeps meshes as STL files under a directory. Names
// without an extension get ".stl".
type FileRepository struct {
	dir string
	log zerolog.Logger

	mu   sync.Mutex
	beds map[string]surface.Surface
}

// NewFileRepository returns a repository rooted at dir.
func NewFileRepository(dir string, log zerolog.Logger) *FileRepository {
	return &FileRepository{
		dir:  dir,
		log:  log.With().Str("component", "repository").Logger(),
		beds: make(map[string]surface.Surface),
	}
}

// Dir returns the root directory.
func (r *FileRepository) Dir() string {
	return r.dir
}

func (r *FileRepository) path(name string) string {
	if filepath.Ext(name) == "" {
		name += ".stl"
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(r.dir, name)
}

// Load reads an STL file into a welded mesh.
func (r *FileRepository) Load(name string) (*kernel.Mesh, error) {
	p := r.path(name)
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("repository: %w", err)
	}
	tris, err := render.LoadSTL(p)
	if err != nil {
		return nil, fmt.Errorf("repository: load %s: %w", p, err)
	}
	m := FromTriangles(tris)
	m.Name = strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	r.log.Debug().Str("path", p).Int("triangles", m.TriangleCount()).Msg("Loaded mesh")
	return m, nil
}

// Save writes m as a binary STL file, creating parent directories.
func (r *FileRepository) Save(name string, m *kernel.Mesh) error {
	p := r.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("repository: %w", err)
	}
	if err := render.SaveSTL(p, ToTriangles(m)); err != nil {
		return fmt.Errorf("repository: save %s: %w", p, err)
	}
	r.log.Debug().Str("path", p).Int("triangles", m.TriangleCount()).Msg("Saved mesh")
	return nil
}

// BedSurface returns the print bed surface for cfg. The flat bed spans
// the configured bed size at Z=0; any other id names a mesh to load.
// Results are cached per configuration.
func (r *FileRepository) BedSurface(cfg *config.Config) (surface.Surface, error) {
	key := cfg.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.beds[key]; ok {
		return s, nil
	}

	var s surface.Surface
	if id := cfg.Printer.BedSurface; id == config.BedFlat {
		s = surface.Plane(0, 0, cfg.Printer.BedSize.X, cfg.Printer.BedSize.Y, 0)
	} else {
		m, err := r.Load(id)
		if err != nil {
			return surface.Surface{}, fmt.Errorf("repository: bed surface: %w", err)
		}
		s = surface.New(m)
		if s.Empty() {
			return surface.Surface{}, fmt.Errorf("repository: bed surface %q: %w", id, surface.ErrEmpty)
		}
	}
	r.beds[key] = s
	return s, nil
}

// FromTriangles converts sdfx triangles to a welded mesh.
func FromTriangles(tris []*sdf.Triangle3) *kernel.Mesh {
	raw := make([][3]v3.Vec, 0, len(tris))
	for _, t := range tris {
		raw = append(raw, [3]v3.Vec{t[0], t[1], t[2]})
	}
	return kernel.NewMeshFromTriangles(raw).Weld()
}

// ToTriangles converts a mesh to sdfx triangles.
func ToTriangles(m *kernel.Mesh) []*sdf.Triangle3 {
	if m.IsEmpty() {
		return nil
	}
	out := make([]*sdf.Triangle3, 0, m.TriangleCount())
	for i := 0; i < m.TriangleCount(); i++ {
		a, b, c := m.Triangle(i)
		out = append(out, &sdf.Triangle3{a, b, c})
	}
	return out
}
