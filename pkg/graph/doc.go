// Package graph defines the model graph produced by evaluating a model
// script. The graph is an immutable DAG of primitives, transforms, boolean
// operations and groups that together describe one printable solid.
package graph
