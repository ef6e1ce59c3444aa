package graph

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// buildValidBracket creates a valid model: a plate with a hole cut through
// it, placed on the bed, under a model root.
func buildValidBracket() *ModelGraph {
	g := New()

	plateID := NewNodeID("box/1")
	holeID := NewNodeID("cylinder/2")
	cutID := NewNodeID("difference/3")
	partID := NewNodeID("defpart/bracket")
	placeID := NewNodeID("place/4")
	modelID := NewNodeID("model/bracket")

	g.AddNode(&Node{ID: plateID, Kind: NodePrimitive, Data: BoxData{Size: Vec3{40, 20, 5}}})
	g.AddNode(&Node{ID: holeID, Kind: NodePrimitive, Data: CylinderData{Height: 5, Radius: 2, Segments: 16}})
	g.AddNode(&Node{
		ID: cutID, Kind: NodeBoolean,
		Children: []NodeID{plateID, holeID},
		Data:     BooleanData{Op: OpDifference},
	})
	g.AddNode(&Node{
		ID: partID, Kind: NodeGroup, Name: "bracket",
		Children: []NodeID{cutID},
		Data:     GroupData{Description: "part"},
	})
	at := Vec3{10, 10, 0}
	g.AddNode(&Node{
		ID: placeID, Kind: NodeTransform,
		Children: []NodeID{partID},
		Data:     TransformData{Translation: &at},
	})
	g.AddNode(&Node{
		ID: modelID, Kind: NodeGroup, Name: "fixture",
		Children: []NodeID{placeID},
		Data:     GroupData{Description: "model"},
	})
	g.AddRoot(modelID)

	return g
}

// hasError returns true if errs contains at least one error-severity finding
// whose message contains substr.
func hasError(errs []ValidationError, substr string) bool {
	for _, e := range errs {
		if e.Severity == SeverityError && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// hasWarning returns true if errs contains at least one warning-severity
// finding whose message contains substr.
func hasWarning(errs []ValidationError, substr string) bool {
	for _, e := range errs {
		if e.Severity == SeverityWarning && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func logAll(t *testing.T, errs []ValidationError) {
	t.Helper()
	for _, e := range errs {
		t.Logf("  %s", e)
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestValidate_ValidGraph(t *testing.T) {
	res := ValidateAll(buildValidBracket())
	for _, e := range res.Errors {
		t.Errorf("unexpected validation error: %s", e)
	}
	for _, w := range res.Warnings {
		t.Errorf("unexpected warning: %s", w.Message)
	}
	if !res.OK() {
		t.Error("OK() = false")
	}
}

func TestValidate_EmptyGraph(t *testing.T) {
	if errs := Validate(New()); len(errs) != 0 {
		logAll(t, errs)
		t.Error("empty graph should validate")
	}
}

func TestValidate_CycleDetection(t *testing.T) {
	g := New()

	aID := NewNodeID("a")
	bID := NewNodeID("b")
	cID := NewNodeID("c")

	// a -> b -> c -> a
	g.AddNode(&Node{ID: aID, Kind: NodeGroup, Name: "a", Children: []NodeID{bID}, Data: GroupData{}})
	g.AddNode(&Node{ID: bID, Kind: NodeGroup, Name: "b", Children: []NodeID{cID}, Data: GroupData{}})
	g.AddNode(&Node{ID: cID, Kind: NodeGroup, Name: "c", Children: []NodeID{aID}, Data: GroupData{}})
	g.AddRoot(aID)

	errs := Validate(g)
	if !hasError(errs, "cycle") {
		logAll(t, errs)
		t.Error("expected cycle detection error, got none")
	}
}

func TestValidate_DanglingReference(t *testing.T) {
	g := New()
	parentID := NewNodeID("parent")
	g.AddNode(&Node{
		ID: parentID, Kind: NodeGroup, Name: "parent",
		Children: []NodeID{NewNodeID("missing-child")},
		Data:     GroupData{},
	})
	g.AddRoot(parentID)

	errs := Validate(g)
	if !hasError(errs, "does not exist") {
		logAll(t, errs)
		t.Error("expected dangling reference error, got none")
	}
}

func TestValidate_Roots(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		g := buildValidBracket()
		g.AddRoot(NewNodeID("model/ghost"))
		if !hasError(Validate(g), "root reference") {
			t.Error("expected root reference error")
		}
	})
	t.Run("no root", func(t *testing.T) {
		g := buildValidBracket()
		g.Roots = nil
		if !hasError(Validate(g), "no model root") {
			t.Error("expected missing root error")
		}
	})
	t.Run("orphan", func(t *testing.T) {
		g := buildValidBracket()
		g.AddNode(&Node{ID: NewNodeID("box/99"), Kind: NodePrimitive, Data: BoxData{Size: Vec3{1, 1, 1}}})
		errs := Validate(g)
		if !hasWarning(errs, "orphan") {
			logAll(t, errs)
			t.Error("expected orphan warning")
		}
		if res := ValidateAll(g); !res.OK() || len(res.Warnings) != 1 {
			t.Errorf("ValidateAll = %d errors, %d warnings; want 0, 1", len(res.Errors), len(res.Warnings))
		}
	})
}

func TestValidate_DuplicateNames(t *testing.T) {
	g := buildValidBracket()
	dup := NewNodeID("defpart/bracket-2")
	g.AddNode(&Node{
		ID: dup, Kind: NodeGroup, Name: "bracket",
		Children: []NodeID{NewNodeID("box/1")},
		Data:     GroupData{},
	})
	g.Get(NewNodeID("model/bracket")).Children = append(g.Get(NewNodeID("model/bracket")).Children, dup)

	if !hasError(Validate(g), "duplicate name") {
		t.Error("expected duplicate name error")
	}
}

func TestValidate_Arity(t *testing.T) {
	tests := []struct {
		name string
		node *Node
		want string
	}{
		{
			name: "primitive with children",
			node: &Node{Kind: NodePrimitive, Children: []NodeID{NewNodeID("box/1")}, Data: BoxData{Size: Vec3{1, 1, 1}}},
			want: "want 0",
		},
		{
			name: "transform with two children",
			node: &Node{Kind: NodeTransform, Children: []NodeID{NewNodeID("box/1"), NewNodeID("cylinder/2")}, Data: TransformData{}},
			want: "want 1",
		},
		{
			name: "boolean without operands",
			node: &Node{Kind: NodeBoolean, Data: BooleanData{Op: OpIntersection}},
			want: "intersection has no operands",
		},
		{
			name: "empty group",
			node: &Node{Kind: NodeGroup, Name: "nothing", Data: GroupData{}},
			want: `group "nothing" is empty`,
		},
		{
			name: "payload mismatch",
			node: &Node{Kind: NodePrimitive, Data: GroupData{}},
			want: "primitive has graph.GroupData payload",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := buildValidBracket()
			tt.node.ID = NewNodeID("test/" + tt.name)
			g.AddNode(tt.node)
			g.AddRoot(tt.node.ID)
			errs := Validate(g)
			if !hasError(errs, tt.want) {
				logAll(t, errs)
				t.Errorf("expected error containing %q", tt.want)
			}
		})
	}
}

func TestValidateAll_Geometry(t *testing.T) {
	tests := []struct {
		name string
		data NodeData
		want string
	}{
		{"flat box", BoxData{Size: Vec3{1, 0, 1}}, "box dimension Y"},
		{"negative height", CylinderData{Height: -1, Radius: 1}, "cylinder height"},
		{"zero radius", CylinderData{Height: 1}, "cylinder radius"},
		{"two segments", CylinderData{Height: 1, Radius: 1, Segments: 2}, "at least 3"},
		{"unnamed mesh", MeshData{}, "no name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			id := NewNodeID("prim")
			g.AddNode(&Node{ID: id, Kind: NodePrimitive, Data: tt.data})
			g.AddRoot(id)

			res := ValidateAll(g)
			if res.OK() {
				t.Fatal("expected geometry errors")
			}
			found := false
			for _, e := range res.Errors {
				if strings.Contains(e.Message, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("no error containing %q in %v", tt.want, res.Errors)
			}
		})
	}
}

func TestValidateAll_NoOpWarnings(t *testing.T) {
	g := New()
	boxID := NewNodeID("box/1")
	unionID := NewNodeID("union/2")
	placeID := NewNodeID("place/3")
	g.AddNode(&Node{ID: boxID, Kind: NodePrimitive, Data: BoxData{Size: Vec3{1, 1, 1}}})
	g.AddNode(&Node{ID: unionID, Kind: NodeBoolean, Children: []NodeID{boxID}, Data: BooleanData{Op: OpUnion}})
	g.AddNode(&Node{ID: placeID, Kind: NodeTransform, Children: []NodeID{unionID}, Data: TransformData{}})
	g.AddRoot(placeID)

	res := ValidateAll(g)
	if !res.OK() {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Warnings) != 2 {
		t.Errorf("got %d warnings, want 2: %v", len(res.Warnings), res.Warnings)
	}
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Message: "boom", Severity: SeverityError}
	if got := e.Error(); got != "[error] boom" {
		t.Errorf("Error() = %q", got)
	}
	id := NewNodeID("x")
	e = ValidationError{NodeID: id, Message: "odd", Severity: SeverityWarning}
	if got, want := e.Error(), "[warning] node "+id.Short()+": odd"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got := ValidationSeverity(5).String(); got != "ValidationSeverity(5)" {
		t.Errorf("String() = %q", got)
	}
}
