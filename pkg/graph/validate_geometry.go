package graph

import "fmt"

// ---------------------------------------------------------------------------
// Tier 2: geometric validation (errors and warnings)
// ---------------------------------------------------------------------------

// validateGeometry runs all Tier 2 geometric checks.
// Returns errors (blocking) and warnings (advisory) separately.
func validateGeometry(g *ModelGraph) ([]ValidationError, []ValidationWarning) {
	var errs []ValidationError
	var warnings []ValidationWarning

	errs = append(errs, validateDimensions(g)...)
	warnings = append(warnings, validateNoOps(g)...)

	return errs, warnings
}

// validateDimensions checks that every primitive has positive extents and a
// usable facet count.
func validateDimensions(g *ModelGraph) []ValidationError {
	var errs []ValidationError
	add := func(n *Node, format string, args ...any) {
		errs = append(errs, ValidationError{
			NodeID:   n.ID,
			Message:  fmt.Sprintf(format, args...),
			Severity: SeverityError,
		})
	}

	for _, node := range g.Nodes {
		switch d := node.Data.(type) {
		case BoxData:
			for _, c := range []struct {
				axis string
				v    float64
			}{{"X", d.Size.X}, {"Y", d.Size.Y}, {"Z", d.Size.Z}} {
				if c.v <= 0 {
					add(node, "box dimension %s is %.4f, must be positive", c.axis, c.v)
				}
			}
		case CylinderData:
			if d.Height <= 0 {
				add(node, "cylinder height is %.4f, must be positive", d.Height)
			}
			if d.Radius <= 0 {
				add(node, "cylinder radius is %.4f, must be positive", d.Radius)
			}
			if d.Segments != 0 && d.Segments < 3 {
				add(node, "cylinder has %d segments, need at least 3", d.Segments)
			}
		case MeshData:
			if d.Name == "" {
				add(node, "mesh reference has no name")
			}
		}
	}

	return errs
}

// validateNoOps warns about nodes that do not change their operand.
func validateNoOps(g *ModelGraph) []ValidationWarning {
	var warnings []ValidationWarning

	for _, node := range g.Nodes {
		switch d := node.Data.(type) {
		case BooleanData:
			if len(node.Children) == 1 {
				warnings = append(warnings, ValidationWarning{
					NodeID:  node.ID,
					Message: fmt.Sprintf("%s with a single operand has no effect", d.Op),
				})
			}
		case TransformData:
			if (d.Translation == nil || d.Translation.IsZero()) && (d.Rotation == nil || d.Rotation.IsZero()) {
				warnings = append(warnings, ValidationWarning{
					NodeID:  node.ID,
					Message: "place without :at or :rotate has no effect",
				})
			}
		}
	}

	return warnings
}
