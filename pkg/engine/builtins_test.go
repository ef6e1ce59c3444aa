package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/chazu/shockwave/pkg/graph"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessSource(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(cylinder :height 10)`,
			expect: `(cylinder "__kw_height" 10)`,
		},
		{
			name:   "multiple keywords",
			input:  `(box :x 40 :y 20)`,
			expect: `(box "__kw_x" 40 "__kw_y" 20)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(def wall-thickness 2)`,
			expect: `(def wall_thickness 2)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "negative literal preserved",
			input:  `(vec3 -5 0 -1.5)`,
			expect: `(vec3 -5 0 -1.5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:corner-radius`,
			expect: `"__kw_corner-radius"`,
		},
		{
			name:   "escaped quote in string",
			input:  `"a \" :b" :c`,
			expect: `"a \" :b" "__kw_c"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := preprocessSource(tt.input); got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// evaluate runs source through a fresh engine and fails on any error.
func evaluate(t *testing.T, source string) *graph.ModelGraph {
	t.Helper()
	g, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if g == nil {
		t.Fatal("expected non-nil graph")
	}
	return g
}

// evalError runs source and returns the first eval error message.
func evalError(t *testing.T, source string) string {
	t.Helper()
	g, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if g != nil || len(evalErrs) == 0 {
		t.Fatalf("expected eval errors for %q", source)
	}
	return evalErrs[0].Message
}

func onlyPrimitive(t *testing.T, g *graph.ModelGraph) *graph.Node {
	t.Helper()
	prims := g.Primitives()
	if len(prims) != 1 {
		t.Fatalf("got %d primitives, want 1", len(prims))
	}
	return prims[0]
}

// ---------------------------------------------------------------------------
// Primitive tests
// ---------------------------------------------------------------------------

func TestBoxForms(t *testing.T) {
	want := graph.BoxData{Size: graph.Vec3{X: 40, Y: 20, Z: 5}}
	for _, src := range []string{
		`(box 40 20 5)`,
		`(box (vec3 40 20 5))`,
		`(box :x 40 :y 20 :z 5)`,
		`(box 40.0 20 5.0)`,
	} {
		t.Run(src, func(t *testing.T) {
			n := onlyPrimitive(t, evaluate(t, src))
			if n.Data != want {
				t.Errorf("data = %+v, want %+v", n.Data, want)
			}
		})
	}
}

func TestBoxErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`(box 1 2)`, "0, 1 or 3 positional"},
		{`(box "a" 2 3)`, "expected number"},
		{`(box 7)`, "expected vec3"},
	}
	for _, tt := range tests {
		if msg := evalError(t, tt.src); !strings.Contains(msg, tt.want) {
			t.Errorf("%s: error %q, want containing %q", tt.src, msg, tt.want)
		}
	}
}

func TestCylinder(t *testing.T) {
	tests := []struct {
		src  string
		want graph.CylinderData
	}{
		{`(cylinder 10 3)`, graph.CylinderData{Height: 10, Radius: 3}},
		{`(cylinder :height 10 :radius 3 :segments 24)`, graph.CylinderData{Height: 10, Radius: 3, Segments: 24}},
		{`(cylinder :height 8 :diameter 5)`, graph.CylinderData{Height: 8, Radius: 2.5}},
	}
	for _, tt := range tests {
		n := onlyPrimitive(t, evaluate(t, tt.src))
		if n.Data != tt.want {
			t.Errorf("%s: data = %+v, want %+v", tt.src, n.Data, tt.want)
		}
	}
}

func TestMesh(t *testing.T) {
	n := onlyPrimitive(t, evaluate(t, `(mesh "bracket.stl")`))
	if md, ok := n.Data.(graph.MeshData); !ok || md.Name != "bracket.stl" {
		t.Errorf("data = %+v", n.Data)
	}
}

func TestVec3Arity(t *testing.T) {
	if msg := evalError(t, `(vec3 1 2)`); !strings.Contains(msg, "exactly 3") {
		t.Errorf("error = %q", msg)
	}
}

// ---------------------------------------------------------------------------
// Composition tests
// ---------------------------------------------------------------------------

func TestPlace(t *testing.T) {
	g := evaluate(t, `(place (box 1 1 1) :at (vec3 0 0 19) :rotate (vec3 0 0 90))`)
	if g.NodeCount() != 2 {
		t.Fatalf("node count = %d, want 2", g.NodeCount())
	}

	var place *graph.Node
	for _, n := range g.Nodes {
		if n.Kind == graph.NodeTransform {
			place = n
		}
	}
	if place == nil {
		t.Fatal("no transform node")
	}
	td := place.Data.(graph.TransformData)
	if td.Translation == nil || *td.Translation != (graph.Vec3{Z: 19}) {
		t.Errorf("translation = %v", td.Translation)
	}
	if td.Rotation == nil || *td.Rotation != (graph.Vec3{Z: 90}) {
		t.Errorf("rotation = %v", td.Rotation)
	}
	if kids := g.Children(place); len(kids) != 1 || kids[0].Kind != graph.NodePrimitive {
		t.Errorf("children = %v", place.Children)
	}

	if msg := evalError(t, `(place (box 1 1 1) (box 2 2 2))`); !strings.Contains(msg, "exactly one shape") {
		t.Errorf("error = %q", msg)
	}
}

func TestBooleans(t *testing.T) {
	tests := []struct {
		src      string
		op       graph.BooleanOp
		operands int
	}{
		{`(union (box 1 1 1) (box 2 2 2))`, graph.OpUnion, 2},
		{`(difference (box 4 4 4) (cylinder 4 1) (cylinder 4 0.5))`, graph.OpDifference, 3},
		{`(intersection (box 1 1 1) (list (box 2 2 2) (box 3 3 3)))`, graph.OpIntersection, 3},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			g := evaluate(t, tt.src)
			var found *graph.Node
			for _, n := range g.Nodes {
				if n.Kind == graph.NodeBoolean {
					found = n
				}
			}
			if found == nil {
				t.Fatal("no boolean node")
			}
			if bd := found.Data.(graph.BooleanData); bd.Op != tt.op {
				t.Errorf("op = %s, want %s", bd.Op, tt.op)
			}
			if len(found.Children) != tt.operands {
				t.Errorf("operands = %d, want %d", len(found.Children), tt.operands)
			}
		})
	}

	if msg := evalError(t, `(union)`); !strings.Contains(msg, "at least one shape") {
		t.Errorf("error = %q", msg)
	}
	if msg := evalError(t, `(union (box 1 1 1) 5)`); !strings.Contains(msg, "expected shape") {
		t.Errorf("error = %q", msg)
	}
}

func TestDefpartAndPart(t *testing.T) {
	g := evaluate(t, `
; a plate with a hole
(def wall-thickness 5)
(defpart "plate" (difference (box 40 20 wall-thickness) (place (cylinder wall-thickness 2) :at (vec3 20 10 0))))
(model "fixture"
  (part "plate")
  (place (part "plate") :at (vec3 0 0 5)))
`)
	plate := g.Lookup("plate")
	if plate == nil || plate.Kind != graph.NodeGroup {
		t.Fatalf("plate = %+v", plate)
	}
	if plate.ID != graph.NewNodeID("defpart/plate") {
		t.Error("defpart ID should derive from the part name")
	}

	box := g.Get(g.Get(plate.Children[0]).Children[0])
	if bd, ok := box.Data.(graph.BoxData); !ok || bd.Size.Z != 5 {
		t.Errorf("base = %+v, want a 40x20x5 box", box.Data)
	}

	fixture := g.Lookup("fixture")
	if fixture == nil {
		t.Fatal("no model node")
	}
	if len(g.Roots) != 1 || g.Roots[0] != fixture.ID {
		t.Errorf("roots = %v, want [fixture]", g.Roots)
	}
	if len(fixture.Children) != 2 || fixture.Children[0] != plate.ID {
		t.Errorf("fixture children = %v", fixture.Children)
	}
}

func TestPartErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`(part "missing")`, `no part named "missing"`},
		{`(defpart "a" (box 1 1 1)) (defpart "a" (box 2 2 2))`, "already defined"},
		{`(defpart "a" 5)`, "expected shape"},
		{`(model "m")`, "at least one shape"},
		{`(defpart "a" (box 1 1 1)) (model "a" (part "a"))`, "already defined"},
	}
	for _, tt := range tests {
		if msg := evalError(t, tt.src); !strings.Contains(msg, tt.want) {
			t.Errorf("%s: error %q, want containing %q", tt.src, msg, tt.want)
		}
	}
}

func TestDeterministicIDs(t *testing.T) {
	src := `(model "m" (union (box 1 1 1) (place (box 2 2 2) :at (vec3 1 0 0))))`
	a := evaluate(t, src)
	b := evaluate(t, src)
	if a.NodeCount() != b.NodeCount() {
		t.Fatalf("node counts differ: %d vs %d", a.NodeCount(), b.NodeCount())
	}
	for id := range a.Nodes {
		if b.Get(id) == nil {
			t.Errorf("node %s missing from second evaluation", id.Short())
		}
	}
}

// ---------------------------------------------------------------------------
// Compile tests
// ---------------------------------------------------------------------------

func TestCompile(t *testing.T) {
	tests := []struct {
		name         string
		src          string
		wantErr      string
		wantWarnings int
	}{
		{name: "valid", src: `(model "m" (box 1 1 1))`},
		{name: "no model", src: `(box 1 1 1)`, wantErr: "no model root"},
		{name: "flat box", src: `(model "m" (box 1 0 1))`, wantErr: "box dimension Y"},
		{name: "syntax", src: `(model "m" (box 1 1 1)`, wantErr: ""},
		{name: "no-op union", src: `(model "m" (union (box 1 1 1)))`, wantWarnings: 1},
	}
	eng := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := eng.Compile(context.Background(), tt.src)
			if err != nil {
				t.Fatalf("Compile() fatal error = %v", err)
			}
			if tt.name == "syntax" {
				if res.Err() == nil || res.Graph != nil {
					t.Error("syntax error should fail to compile")
				}
				return
			}
			if tt.wantErr == "" {
				if res.Err() != nil {
					t.Fatalf("Compile() errors = %v", res.Err())
				}
				if res.Graph == nil {
					t.Fatal("expected graph")
				}
			} else {
				if res.Graph != nil {
					t.Error("graph should be nil on errors")
				}
				if res.Err() == nil || !strings.Contains(res.Err().Error(), tt.wantErr) {
					t.Errorf("Err() = %v, want containing %q", res.Err(), tt.wantErr)
				}
			}
			if len(res.Warnings) != tt.wantWarnings {
				t.Errorf("warnings = %v, want %d", res.Warnings, tt.wantWarnings)
			}
		})
	}
}
