package content_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/example/sogretobot/internal/content"
	"github.com/example/sogretobot/internal/content/contenttest"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := contenttest.Store(t)
	w := content.NewWatcher(store, zap.NewNop())
	w.SetDebounce(20 * time.Millisecond)

	results := make(chan error, 4)
	w.OnReload(func(err error) {
		select {
		case results <- err:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	next := []byte(`{"practice_structure": {"stages": [{"stage_id": 1, "steps": [{"step_id": 1}]}]}}`)
	// The watcher may not be registered yet; keep writing until it reacts.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(store.Path(), next, 0o644)
		select {
		case err := <-results:
			return err == nil
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, store.Tree().TotalStages())

	cancel()
	require.NoError(t, <-done)
}

func TestWatcherKeepsTreeOnBrokenWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := contenttest.Store(t)
	before := store.Tree()
	w := content.NewWatcher(store, zap.NewNop())
	w.SetDebounce(20 * time.Millisecond)

	results := make(chan error, 4)
	w.OnReload(func(err error) {
		select {
		case results <- err:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(store.Path(), []byte("{not json"), 0o644)
		select {
		case err := <-results:
			return err != nil
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Same(t, before, store.Tree())

	cancel()
	require.NoError(t, <-done)
}
