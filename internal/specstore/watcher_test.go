package specstore

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_DebouncedCallback(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, specialistsYAML)

	var calls atomic.Int64
	w, err := NewWatcher(path, 50*time.Millisecond, func(context.Context) { calls.Add(1) }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte(specialistsYAML), 0600))
	}

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int64(1), calls.Load(), "burst coalesced into one callback")
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, specialistsYAML)

	var calls atomic.Int64
	w, err := NewWatcher(path, 20*time.Millisecond, func(context.Context) { calls.Add(1) }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0600))
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestNewWatcher_Validation(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "a.yaml"), 0, nil, nil)
	assert.Error(t, err)

	_, err = NewWatcher("/definitely/not/here/a.yaml", 0, func(context.Context) {}, nil)
	assert.Error(t, err)
}
