// Package remote calls the hosted document-processing function that runs
// OCR for uploaded dockets. Importing the package registers the "remote"
// engine.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/ocr"
)

func init() {
	ocr.Register("remote", func(_ context.Context, cfg ocr.Config, log observability.Logger) (ocr.Engine, error) {
		return New(cfg.Remote, WithLogger(log))
	})
}

// StatusError reports a non-2xx response from the function.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("document function returned %d: %s", e.Code, e.Body)
}

// ErrRejected is returned when the function answers 2xx with success=false.
var ErrRejected = errors.New("document function reported failure")

// Engine posts docket images to the document-processing function.
type Engine struct {
	endpoint   string
	serviceKey string
	bucket     string
	attempts   int
	backoff    time.Duration
	client     *http.Client
	log        observability.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(e *Engine) { e.client = c } }

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l observability.Logger) Option {
	return func(e *Engine) { e.log = observability.OrNop(l) }
}

// New validates cfg and builds an Engine.
func New(cfg ocr.RemoteConfig, opts ...Option) (*Engine, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote ocr: base_url is required")
	}
	fn := cfg.Function
	if fn == "" {
		fn = "process-delivery-docket"
	}
	e := &Engine{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/functions/v1/" + fn,
		serviceKey: cfg.ServiceKey,
		bucket:     cfg.Bucket,
		attempts:   cfg.MaxAttempts,
		backoff:    cfg.Backoff,
		client:     &http.Client{Timeout: cfg.Timeout},
		log:        observability.NopLogger{},
	}
	if e.attempts <= 0 {
		e.attempts = 1
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Name() string { return "remote" }

type requestMetadata struct {
	BulkUpload         bool   `json:"bulkUpload"`
	OriginalFileName   string `json:"originalFileName"`
	ProcessingPriority string `json:"processingPriority,omitempty"`
	BatchIndex         *int   `json:"batchIndex,omitempty"`
}

type request struct {
	BucketID string          `json:"bucketId"`
	FileName string          `json:"fileName"`
	FilePath string          `json:"filePath"`
	UserID   string          `json:"userId"`
	ClientID string          `json:"clientId"`
	FileType string          `json:"fileType"`
	FileData string          `json:"fileData"`
	Metadata requestMetadata `json:"metadata"`
}

type response struct {
	Success       bool    `json:"success"`
	ExtractedText string  `json:"extractedText"`
	Confidence    float64 `json:"confidence"`
	Message       string  `json:"message"`
	Error         string  `json:"error"`
	Data          struct {
		RawExtractedText string  `json:"raw_extracted_text"`
		ConfidenceScore  float64 `json:"confidence_score"`
	} `json:"data"`
}

// Recognize sends one docket to the function. 5xx responses and transport
// errors are retried up to the configured number of attempts with linear
// backoff; 4xx responses fail immediately.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	body, err := json.Marshal(e.buildRequest(in))
	if err != nil {
		return ocr.Result{}, fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		res, retry, err := e.post(ctx, body)
		if err == nil {
			res.InputID = in.ID
			return res, nil
		}
		lastErr = err
		if !retry || attempt == e.attempts {
			break
		}
		e.log.Warn("document function attempt failed",
			observability.String("input", in.ID),
			observability.Int("attempt", attempt),
			observability.Err(err),
		)
		select {
		case <-ctx.Done():
			return ocr.Result{}, ctx.Err()
		case <-time.After(e.backoff * time.Duration(attempt)):
		}
	}
	return ocr.Result{}, lastErr
}

func (e *Engine) buildRequest(in ocr.Input) request {
	meta := requestMetadata{
		OriginalFileName:   in.FileName,
		ProcessingPriority: in.Metadata[ocr.MetaPriority],
	}
	meta.BulkUpload, _ = strconv.ParseBool(in.Metadata[ocr.MetaBulkUpload])
	if v, err := strconv.Atoi(in.Metadata[ocr.MetaBatchIndex]); err == nil {
		meta.BatchIndex = &v
	}
	return request{
		BucketID: e.bucket,
		FileName: in.FileName,
		FilePath: in.Path,
		UserID:   in.UserID,
		ClientID: in.ClientID,
		FileType: string(in.Format),
		FileData: base64.StdEncoding.EncodeToString(in.Image),
		Metadata: meta,
	}
}

func (e *Engine) post(ctx context.Context, body []byte) (ocr.Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return ocr.Result{}, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.serviceKey)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return ocr.Result{}, ctx.Err() == nil, fmt.Errorf("call document function: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return ocr.Result{}, true, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ocr.Result{}, resp.StatusCode >= 500, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return ocr.Result{}, false, fmt.Errorf("decode response: %w", err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = out.Message
		}
		return ocr.Result{}, false, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	text := out.ExtractedText
	if text == "" {
		text = out.Data.RawExtractedText
	}
	conf := out.Confidence
	if conf == 0 {
		conf = out.Data.ConfidenceScore
	}
	return ocr.Result{PlainText: text, Confidence: conf, Engine: "remote"}, false, nil
}
