package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherTriggersOnChange(t *testing.T) {
	tmp := t.TempDir()
	srcDir := filepath.Join(tmp, "docs")
	buildDir := filepath.Join(srcDir, "_build")
	require.NoError(t, os.MkdirAll(srcDir, 0o750))

	var fired atomic.Int32
	w, err := NewWatcher(srcDir, buildDir, func() { fired.Add(1) })
	require.NoError(t, err)
	w.WithDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "index.md"), []byte("# hi"), 0o640))

	deadline := time.Now().Add(3 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	require.Greater(t, fired.Load(), int32(0), "watcher did not fire")
}

func TestWatcherDebouncesBursts(t *testing.T) {
	tmp := t.TempDir()
	srcDir := filepath.Join(tmp, "docs")
	require.NoError(t, os.MkdirAll(srcDir, 0o750))

	var fired atomic.Int32
	w, err := NewWatcher(srcDir, filepath.Join(srcDir, "_build"), func() { fired.Add(1) })
	require.NoError(t, err)
	w.WithDebounce(200 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop(ctx) }()

	// Burst of writes inside the debounce window
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.md"), []byte{byte('0' + i)}, 0o640))
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(600 * time.Millisecond)
	require.Equal(t, int32(1), fired.Load(), "burst should collapse into one trigger")
}

func TestWatcherIgnoresBuildDir(t *testing.T) {
	tmp := t.TempDir()
	srcDir := filepath.Join(tmp, "docs")
	buildDir := filepath.Join(srcDir, "_build")
	require.NoError(t, os.MkdirAll(buildDir, 0o750))

	var fired atomic.Int32
	w, err := NewWatcher(srcDir, buildDir, func() { fired.Add(1) })
	require.NoError(t, err)
	w.WithDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop(ctx) }()

	// Writes inside the build tree must not trigger a rebuild.
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "index.html"), []byte("out"), 0o640))

	time.Sleep(300 * time.Millisecond)
	require.Equal(t, int32(0), fired.Load(), "build output change triggered a rebuild")
}
