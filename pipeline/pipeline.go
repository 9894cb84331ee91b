// Package pipeline runs uploaded dockets through storage, OCR, field
// extraction and compliance checks, in fixed-size concurrent batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wudi/docketkit/audit"
	"github.com/wudi/docketkit/compliance"
	"github.com/wudi/docketkit/extractor"
	"github.com/wudi/docketkit/intake"
	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/ocr"
	"github.com/wudi/docketkit/recovery"
	"github.com/wudi/docketkit/security"
	"github.com/wudi/docketkit/store"
	"github.com/wudi/docketkit/streaming"
)

// Priority is the processing priority forwarded to the OCR engine.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var (
	// ErrInvalidPriority is returned by ParsePriority for unknown values.
	ErrInvalidPriority = errors.New("invalid processing priority")
	// ErrMissingFields reports a request without tenant, user or file.
	ErrMissingFields = errors.New("missing required fields")
)

// ParsePriority accepts high, medium or low. An empty value means medium.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityMedium, nil
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
}

// Config tunes bulk runs.
type Config struct {
	BatchSize  int           `yaml:"batch_size"`
	BatchDelay time.Duration `yaml:"batch_delay"`
	// Strategy is lenient or strict.
	Strategy string `yaml:"strategy"`
	// ThumbnailSize is the longest edge of stored thumbnails; zero disables them.
	ThumbnailSize int `yaml:"thumbnail_size"`
}

// DefaultConfig returns the settings used by the bulk upload endpoint.
func DefaultConfig() Config {
	return Config{
		BatchSize:     10,
		BatchDelay:    time.Second,
		Strategy:      "lenient",
		ThumbnailSize: 320,
	}
}

// Deps are the collaborators of a Processor. Logger and Tracer are optional.
type Deps struct {
	Uploader  *intake.Uploader
	Engine    ocr.Engine
	Store     *store.Store
	Extractor *extractor.Extractor
	Rules     compliance.Validator
	Audit     audit.Writer
	Limits    security.Limits
	Logger    observability.Logger
	Tracer    observability.Tracer
}

// Processor turns docket files into delivery records.
type Processor struct {
	cfg       Config
	uploader  *intake.Uploader
	engine    ocr.Engine
	store     *store.Store
	extractor *extractor.Extractor
	rules     compliance.Validator
	audit     audit.Writer
	limits    security.Limits
	log       observability.Logger
	tracer    observability.Tracer
	now       func() time.Time
}

// New validates deps and returns a Processor.
func New(cfg Config, deps Deps) (*Processor, error) {
	switch {
	case deps.Uploader == nil:
		return nil, errors.New("pipeline: uploader is required")
	case deps.Engine == nil:
		return nil, errors.New("pipeline: ocr engine is required")
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	}
	if _, err := recovery.New(cfg.Strategy); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if deps.Extractor == nil {
		deps.Extractor = extractor.New(extractor.DefaultOptions())
	}
	if deps.Rules == nil {
		deps.Rules = compliance.DefaultRules()
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NopTracer()
	}
	return &Processor{
		cfg:       cfg,
		uploader:  deps.Uploader,
		engine:    deps.Engine,
		store:     deps.Store,
		extractor: deps.Extractor,
		rules:     deps.Rules,
		audit:     deps.Audit,
		limits:    deps.Limits,
		log:       observability.OrNop(deps.Logger),
		tracer:    deps.Tracer,
		now:       time.Now,
	}, nil
}

// SetClock replaces the time source used for storage paths and dates.
func (p *Processor) SetClock(now func() time.Time) { p.now = now }

// Request is one bulk run.
type Request struct {
	ClientID  string
	UserID    string
	Files     []intake.File
	Priority  Priority
	BatchSize int
	// Strategy overrides the configured recovery strategy for this run.
	Strategy recovery.Strategy
	// Stream receives progress events when set. The caller owns it.
	Stream *streaming.Stream
}

// File outcome states.
const (
	OutcomeCompleted = "completed"
	OutcomeOCRFailed = "ocr_failed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// FileOutcome is what happened to one file of a run.
type FileOutcome struct {
	Index      int     `json:"index"`
	Name       string  `json:"name"`
	Path       string  `json:"path,omitempty"`
	RecordID   string  `json:"deliveryRecordId,omitempty"`
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence,omitempty"`
	Alerts     int     `json:"alerts,omitempty"`
	Stage      string  `json:"stage,omitempty"`
	Error      string  `json:"error,omitempty"`

	uploaded bool
	err      error
}

// Summary holds the counters of a run. Every file is counted exactly once
// in Processed, Failed or Skipped.
type Summary struct {
	RunID           string        `json:"runId"`
	Total           int           `json:"total"`
	Processed       int           `json:"processed"`
	Uploaded        int           `json:"uploaded"`
	Failed          int           `json:"failed"`
	Skipped         int           `json:"skipped"`
	Errors          []string      `json:"errors"`
	DeliveryRecords []string      `json:"deliveryRecords"`
	Aborted         bool          `json:"aborted"`
	Priority        Priority      `json:"processingPriority"`
	BatchSize       int           `json:"batchSize"`
	Files           []FileOutcome `json:"files"`
}

// Process runs req.Files through the pipeline batch by batch. Files of a
// batch run concurrently; the next batch starts BatchDelay after the
// previous one finished. The summary is returned even when the context is
// cancelled part way, together with the context error.
func (p *Processor) Process(ctx context.Context, req Request) (Summary, error) {
	if req.ClientID == "" || req.UserID == "" {
		return Summary{}, fmt.Errorf("%w: clientId or userId", ErrMissingFields)
	}
	if len(req.Files) == 0 {
		return Summary{}, intake.ErrNoFiles
	}
	if err := p.limits.CheckCount(len(req.Files)); err != nil {
		return Summary{}, err
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	strategy := req.Strategy
	if strategy == nil {
		var err error
		if strategy, err = recovery.New(p.cfg.Strategy); err != nil {
			return Summary{}, err
		}
	}
	size := p.limits.ClampBatchSize(req.BatchSize, p.cfg.BatchSize)
	now := p.now()

	sum := Summary{
		RunID:           uuid.NewString(),
		Total:           len(req.Files),
		Errors:          []string{},
		DeliveryRecords: []string{},
		Priority:        req.Priority,
		BatchSize:       size,
		Files:           make([]FileOutcome, 0, len(req.Files)),
	}
	batches := (len(req.Files) + size - 1) / size
	log := p.log.With(observability.String("run", sum.RunID), observability.String("client", req.ClientID))
	ctx, span := p.tracer.StartSpan(ctx, "pipeline.run")
	span.SetTag("files", sum.Total)
	span.SetTag("batches", batches)
	defer span.Finish()

	log.Info("bulk processing started", observability.Int("files", sum.Total), observability.Int("batch_size", size),
		observability.String("priority", string(req.Priority)))
	req.Stream.Publish(streaming.RunStartEvent{RunID: sum.RunID, Total: sum.Total, Batches: batches})

	var runErr error
	for start, batch := 0, 1; start < len(req.Files); start, batch = start+size, batch+1 {
		end := min(start+size, len(req.Files))
		outcomes := p.runBatch(ctx, req, batch, start, req.Files[start:end], now)
		for _, o := range outcomes {
			sum.fold(o)
			if o.err == nil {
				continue
			}
			// The docket is kept with a failed record; only hard failures
			// reach the strategy.
			if o.Status == OutcomeOCRFailed {
				sum.Errors = append(sum.Errors, o.Error)
				continue
			}
			loc := recovery.Location{Batch: batch, Index: o.Index, File: o.Name, Stage: o.Stage}
			switch strategy.OnError(ctx, o.err, loc) {
			case recovery.ActionFail:
				sum.Aborted = true
				sum.Errors = append(sum.Errors, o.Error)
			case recovery.ActionWarn:
				sum.Errors = append(sum.Errors, o.Error)
			}
		}
		req.Stream.Publish(streaming.BatchDoneEvent{Batch: batch})
		log.Debug("batch completed", observability.Int("batch", batch), observability.Int("files", len(outcomes)))

		if end == len(req.Files) {
			break
		}
		if sum.Aborted {
			log.Warn("bulk processing aborted", observability.Int("batch", batch))
			sum.skip(req.Files, end)
			break
		}
		if err := sleep(ctx, p.cfg.BatchDelay); err != nil {
			runErr = err
			sum.skip(req.Files, end)
			break
		}
	}

	p.writeAudit(ctx, log, audit.Entry{
		ClientID:     req.ClientID,
		UserID:       req.UserID,
		Action:       audit.ActionBulkCompleted,
		ResourceType: audit.ResourceBulkOperation,
		Details: map[string]any{
			"runId":              sum.RunID,
			"totalFiles":         sum.Total,
			"processedFiles":     sum.Processed,
			"uploadedFiles":      sum.Uploaded,
			"failedFiles":        sum.Failed,
			"skippedFiles":       sum.Skipped,
			"aborted":            sum.Aborted,
			"processingPriority": req.Priority,
			"batchSize":          size,
			"deliveryRecordIds":  sum.DeliveryRecords,
			"errors":             sum.Errors,
		},
	})
	req.Stream.Publish(streaming.RunDoneEvent{Processed: sum.Processed, Failed: sum.Failed, Aborted: sum.Aborted})
	log.Info("bulk processing completed",
		observability.Int("processed", sum.Processed),
		observability.Int("uploaded", sum.Uploaded),
		observability.Int("failed", sum.Failed),
		observability.Int("skipped", sum.Skipped))
	if runErr != nil {
		span.SetError(runErr)
	}
	return sum, runErr
}

func (p *Processor) runBatch(ctx context.Context, req Request, batch, offset int, files []intake.File, now time.Time) []FileOutcome {
	ctx, span := p.tracer.StartSpan(ctx, "pipeline.batch")
	span.SetTag("batch", batch)
	span.SetTag("size", len(files))
	defer span.Finish()
	req.Stream.Publish(streaming.BatchStartEvent{Batch: batch, Size: len(files)})

	outcomes := make([]FileOutcome, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		index := offset + i
		g.Go(func() error {
			o := p.bulkFile(gctx, req, index, f, now)
			outcomes[i] = o
			req.Stream.Publish(streaming.FileDoneEvent{
				Batch: batch, Index: index, File: f.Name, RecordID: o.RecordID, Status: o.Status, Err: o.Error,
			})
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *Summary) fold(o FileOutcome) {
	if o.uploaded {
		s.Uploaded++
	}
	switch o.Status {
	case OutcomeCompleted, OutcomeOCRFailed:
		s.Processed++
		s.DeliveryRecords = append(s.DeliveryRecords, o.RecordID)
	case OutcomeFailed:
		s.Failed++
	}
	s.Files = append(s.Files, o)
}

func (s *Summary) skip(files []intake.File, from int) {
	for i := from; i < len(files); i++ {
		s.Skipped++
		s.Files = append(s.Files, FileOutcome{Index: i, Name: files[i].Name, Status: OutcomeSkipped})
	}
}

func (p *Processor) writeAudit(ctx context.Context, log observability.Logger, e audit.Entry) {
	// The run already happened; record it even if the caller went away.
	if err := p.audit.Write(context.WithoutCancel(ctx), e); err != nil {
		log.Warn("audit write failed", observability.String("action", e.Action), observability.Err(err))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
