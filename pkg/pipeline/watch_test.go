package pipeline_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/shockwave/pkg/pipeline"
	"github.com/rs/zerolog"
)

func TestWatchDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.swm")
	writeFile(t, path, `(model "m" (box 1 1 1))`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- pipeline.Watch(ctx, path, func(context.Context) error {
			calls <- struct{}{}
			return nil
		}, zerolog.Nop())
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	for i := 0; i < 3; i++ {
		writeFile(t, path, `(model "m" (box 2 2 2))`)
	}
	// Writes to other files in the directory are ignored.
	writeFile(t, filepath.Join(dir, "other.swm"), `(model "o" (box 1 1 1))`)

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("callback not called after write")
	}
	select {
	case <-calls:
		t.Error("burst of writes triggered more than one callback")
	case <-time.After(2 * pipeline.WatchDelay):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	err := pipeline.Watch(context.Background(), filepath.Join(t.TempDir(), "missing", "m.swm"),
		func(context.Context) error { return nil }, zerolog.Nop())
	if err == nil {
		t.Error("Watch() on a missing directory should fail")
	}
}
