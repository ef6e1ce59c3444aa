//go:build !manifold

// Package manifold binds the Manifold boolean library. Without the
// "manifold" build tag only this stub is compiled and New reports
// ErrUnavailable, so callers can fall back to a pure-Go kernel.
//
// Build with: go build -tags=manifold
package manifold

import "github.com/chazu/shockwave/pkg/kernel"

// New reports ErrUnavailable.
func New() (kernel.Kernel, error) {
	return nil, ErrUnavailable
}
