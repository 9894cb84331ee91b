package watch

import (
	"context"
	"errors"
	"os"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wudi/docketkit/pipeline"
	"github.com/wudi/docketkit/security"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProcessor struct {
	mu   sync.Mutex
	runs [][]string
}

func (p *fakeProcessor) Process(_ context.Context, req pipeline.Request) (pipeline.Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := security.DefaultLimits().CheckCount(len(req.Files)); err != nil {
		return pipeline.Summary{}, err
	}
	var names []string
	sum := pipeline.Summary{Total: len(req.Files)}
	for i, f := range req.Files {
		names = append(names, f.Name)
		status := pipeline.OutcomeCompleted
		if f.Name == "bad.png" {
			status = pipeline.OutcomeFailed
		}
		sum.Files = append(sum.Files, pipeline.FileOutcome{Index: i, Name: f.Name, Status: status})
	}
	p.runs = append(p.runs, names)
	return sum, nil
}

func (p *fakeProcessor) runCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.runs)
}

func write(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("\x89PNG\r\n\x1a\n"), 0o644))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Dir: t.TempDir()}, &fakeProcessor{}, nil)
	assert.ErrorIs(t, err, pipeline.ErrMissingFields)
	_, err = New(Config{Dir: t.TempDir(), ClientID: "c", UserID: "u"}, nil, nil)
	assert.Error(t, err)

	w, err := New(Config{Dir: t.TempDir(), ClientID: "c", UserID: "u"}, &fakeProcessor{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, w.cfg.Debounce)
	assert.Equal(t, pipeline.PriorityMedium, w.cfg.Priority)
}

func TestSettledWaitsForQuietInbox(t *testing.T) {
	w, err := New(Config{Dir: t.TempDir(), ClientID: "c", UserID: "u", Debounce: time.Second}, &fakeProcessor{}, nil)
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	w.pending["/in/b.png"] = now.Add(-2 * time.Second)
	w.pending["/in/a.png"] = now.Add(-500 * time.Millisecond)

	if got := w.settled(); got != nil {
		t.Fatalf("settled = %v while a file is still arriving", got)
	}
	now = now.Add(time.Second)
	assert.Equal(t, []string{"/in/a.png", "/in/b.png"}, w.settled())
	assert.Empty(t, w.pending)
}

func TestAccepted(t *testing.T) {
	for name, want := range map[string]bool{
		"docket.PNG": true, "scan.jpeg": true, "notes.txt": false, ".hidden.png": false, "done": false,
	} {
		if got := accepted(name); got != want {
			t.Fatalf("accepted(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestRunMovesFilesByOutcome(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "early.png")
	write(t, dir, "notes.txt")

	proc := &fakeProcessor{}
	w, err := New(Config{Dir: dir, ClientID: "c", UserID: "u", Debounce: 20 * time.Millisecond}, proc, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("run: %v", err)
		}
	})

	require.Eventually(t, func() bool { return exists(filepath.Join(dir, DoneDir, "early.png")) }, 5*time.Second, 10*time.Millisecond)

	write(t, dir, "late.jpg")
	write(t, dir, "bad.png")
	require.Eventually(t, func() bool {
		return exists(filepath.Join(dir, DoneDir, "late.jpg")) && exists(filepath.Join(dir, FailedDir, "bad.png"))
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, exists(filepath.Join(dir, "notes.txt")))
	assert.GreaterOrEqual(t, proc.runCount(), 2)
}

func TestFlushSplitsLargeInbox(t *testing.T) {
	dir := t.TempDir()
	for _, sub := range []string{DoneDir, FailedDir} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0o755))
	}
	n := security.DefaultLimits().MaxFilesPerRequest + 1
	var paths []string
	for i := range n {
		name := fmt.Sprintf("docket-%03d.png", i)
		write(t, dir, name)
		paths = append(paths, filepath.Join(dir, name))
	}
	proc := &fakeProcessor{}
	w, err := New(Config{Dir: dir, ClientID: "c", UserID: "u"}, proc, nil)
	require.NoError(t, err)

	w.flush(context.Background(), paths)

	done, err := os.ReadDir(filepath.Join(dir, DoneDir))
	require.NoError(t, err)
	failed, err := os.ReadDir(filepath.Join(dir, FailedDir))
	require.NoError(t, err)
	assert.Len(t, done, n)
	assert.Empty(t, failed)
	assert.Equal(t, 2, proc.runCount())
}
