// Package watch turns a local inbox directory into bulk docket runs. Image
// files dropped into the directory are collected until the directory has
// been quiet for the debounce window, processed as one run, and moved to
// done/ or failed/ by outcome.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wudi/docketkit/intake"
	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/pipeline"
	"github.com/wudi/docketkit/security"
)

// Subdirectories of the inbox receiving handled files.
const (
	DoneDir   = "done"
	FailedDir = "failed"
)

// Extensions are the file suffixes picked up from the inbox.
var Extensions = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".gif", ".webp"}

// Processor runs a bulk request. *pipeline.Processor satisfies it.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Summary, error)
}

// Config describes the inbox and the tenant its files belong to.
type Config struct {
	Dir      string
	ClientID string
	UserID   string
	Debounce time.Duration
	Priority pipeline.Priority
	// MaxFiles caps the files sent in one request; larger inboxes are
	// processed as several runs.
	MaxFiles int
}

// Watcher feeds inbox files to a Processor.
type Watcher struct {
	cfg     Config
	proc    Processor
	log     observability.Logger
	pending map[string]time.Time
	now     func() time.Time
}

// New checks cfg and returns a Watcher. Run starts it.
func New(cfg Config, proc Processor, log observability.Logger) (*Watcher, error) {
	if cfg.Dir == "" || cfg.ClientID == "" || cfg.UserID == "" {
		return nil, fmt.Errorf("watch: %w: dir, client and user", pipeline.ErrMissingFields)
	}
	if proc == nil {
		return nil, errors.New("watch: processor is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if cfg.Priority == "" {
		cfg.Priority = pipeline.PriorityMedium
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = security.DefaultLimits().MaxFilesPerRequest
	}
	return &Watcher{
		cfg:     cfg,
		proc:    proc,
		log:     observability.OrNop(log).With(observability.String("inbox", cfg.Dir)),
		pending: make(map[string]time.Time),
		now:     time.Now,
	}, nil
}

// Run watches the inbox until ctx is done. Files already present when it
// starts are processed too.
func (w *Watcher) Run(ctx context.Context) error {
	for _, d := range []string{w.cfg.Dir, filepath.Join(w.cfg.Dir, DoneDir), filepath.Join(w.cfg.Dir, FailedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("watch: %w", err)
		}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}
	if err := w.sweep(); err != nil {
		return err
	}
	w.log.Info("watching inbox", observability.String("client", w.cfg.ClientID))

	tick := max(w.cfg.Debounce/4, 10*time.Millisecond)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 && accepted(ev.Name) {
				w.pending[ev.Name] = w.now()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", observability.Err(err))
		case <-ticker.C:
			if files := w.settled(); len(files) > 0 {
				w.flush(ctx, files)
			}
		}
	}
}

// sweep queues the files already waiting in the inbox.
func (w *Watcher) sweep() error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && accepted(e.Name()) {
			w.pending[filepath.Join(w.cfg.Dir, e.Name())] = w.now()
		}
	}
	return nil
}

func accepted(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// settled returns the pending files once the newest event is older than
// the debounce window, so a copy in progress is never split across runs.
func (w *Watcher) settled() []string {
	if len(w.pending) == 0 {
		return nil
	}
	now := w.now()
	for _, at := range w.pending {
		if now.Sub(at) < w.cfg.Debounce {
			return nil
		}
	}
	files := make([]string, 0, len(w.pending))
	for p := range w.pending {
		files = append(files, p)
	}
	clear(w.pending)
	sort.Strings(files)
	return files
}

func (w *Watcher) flush(ctx context.Context, paths []string) {
	var (
		files []intake.File
		kept  []string
	)
	for _, p := range paths {
		f, err := intake.FromPath(p)
		switch {
		case errors.Is(err, os.ErrNotExist):
			continue
		case err != nil:
			w.log.Warn("inbox file unreadable", observability.String("file", p), observability.Err(err))
			w.move(p, FailedDir)
			continue
		}
		files = append(files, f)
		kept = append(kept, p)
	}
	for start := 0; start < len(files); start += w.cfg.MaxFiles {
		if ctx.Err() != nil {
			return
		}
		end := min(start+w.cfg.MaxFiles, len(files))
		w.run(ctx, files[start:end], kept[start:end])
	}
}

// run processes one request worth of inbox files and moves each by outcome.
func (w *Watcher) run(ctx context.Context, files []intake.File, kept []string) {
	sum, err := w.proc.Process(ctx, pipeline.Request{
		ClientID: w.cfg.ClientID,
		UserID:   w.cfg.UserID,
		Files:    files,
		Priority: w.cfg.Priority,
	})
	if err != nil && len(sum.Files) == 0 {
		w.log.Error("inbox run failed", observability.Int("files", len(files)), observability.Err(err))
		if ctx.Err() == nil {
			for _, p := range kept {
				w.move(p, FailedDir)
			}
		}
		return
	}
	for _, o := range sum.Files {
		if o.Index < 0 || o.Index >= len(kept) {
			continue
		}
		switch o.Status {
		case pipeline.OutcomeCompleted, pipeline.OutcomeOCRFailed:
			w.move(kept[o.Index], DoneDir)
		case pipeline.OutcomeSkipped:
			// Cancelled runs leave the rest for the next start.
			if err == nil {
				w.move(kept[o.Index], FailedDir)
			}
		default:
			w.move(kept[o.Index], FailedDir)
		}
	}
	w.log.Info("inbox run finished",
		observability.String("run", sum.RunID),
		observability.Int("processed", sum.Processed),
		observability.Int("failed", sum.Failed),
		observability.Int("skipped", sum.Skipped))
}

// move renames p into sub, keeping earlier files of the same name.
func (w *Watcher) move(p, sub string) {
	dst := filepath.Join(w.cfg.Dir, sub, filepath.Base(p))
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(dst)
		dst = strings.TrimSuffix(dst, ext) + "-" + strconv.FormatInt(w.now().UnixNano(), 10) + ext
	}
	if err := os.Rename(p, dst); err != nil {
		w.log.Warn("inbox move failed", observability.String("file", p), observability.Err(err))
	}
}
