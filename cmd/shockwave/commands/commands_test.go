package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const smallPrinter = `
printer:
  bed_size_mm: {x: 50, y: 50}
  print_volume_height_mm: 40
  extruders:
    - volumetric_flow_mm3s: 7
      filament_diameter_mm: 1.75
      safe_angle_from_nozzle_degrees: 10
      nozzle_diameter_mm: 0.4
slicer:
  layer_height_mm: 1
`

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestConfigCommand(t *testing.T) {
	out, err := run(t, "config")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	for _, want := range []string{"layer_height_mm: 0.3", "print_bed_surface: flat"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "shockwave test") || !strings.Contains(out, "commit: none") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTemp(t, dir, "printer.yaml", smallPrinter)

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"config only", []string{"validate", "-c", cfg}, "configuration: ok", false},
		{"model", []string{"validate", "-c", cfg, writeTemp(t, dir, "ok.swm", `(model "m" (box 2 2 2))`)}, "8.00 mm³", false},
		{"bad model", []string{"validate", "-c", cfg, writeTemp(t, dir, "bad.swm", `(model "m" (box 0 2 2))`)}, "", true},
		{"bad config", []string{"validate", "-c", writeTemp(t, dir, "bad.yaml", "slicer:\n  layer_height_mm: -1\n")}, "", true},
		{"missing config", []string{"validate", "-c", filepath.Join(dir, "none.yaml")}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v\n%s", err, tt.wantErr, out)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestSliceCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTemp(t, dir, "printer.yaml", smallPrinter)
	model := writeTemp(t, dir, "block.swm", `(model "block" (place (box 10 10 2) :at (vec3 20 20 5)))`)
	outDir := filepath.Join(dir, "out")

	out, err := run(t, "slice", "-c", cfg, "--drop", "-o", outDir, model)
	if err != nil {
		t.Fatalf("slice: %v\n%s", err, out)
	}
	if !strings.Contains(out, "CONVERGED_FULL") || !strings.Contains(out, "2 slices") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(outDir, "summary.json")); err != nil {
		t.Errorf("summary.json: %v", err)
	}
}

func TestLogOutputFile(t *testing.T) {
	dir := t.TempDir()
	cfg := writeTemp(t, dir, "printer.yaml", smallPrinter)
	logFile := filepath.Join(dir, "run.log")

	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--log-level", "debug", "--log-format", "json", "--log-output", logFile, "validate", "-c", cfg})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("validate: %v\n%s", err, out.String())
	}
	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Pipeline ready") {
		t.Errorf("log file missing pipeline line:\n%s", data)
	}
}
