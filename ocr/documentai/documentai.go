// Package documentai runs OCR through a Google Cloud Document AI processor.
// Requests are authenticated with a service-account key using the oauth2
// google token source. Importing the package registers the "documentai"
// engine.
package documentai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/ocr"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const scope = "https://www.googleapis.com/auth/cloud-platform"

func init() {
	ocr.Register("documentai", func(ctx context.Context, cfg ocr.Config, log observability.Logger) (ocr.Engine, error) {
		return New(ctx, cfg.DocumentAI, WithLogger(log))
	})
}

// APIError reports a non-2xx answer from the Document AI API.
type APIError struct {
	Code int
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("document ai returned %d: %s", e.Code, e.Body)
}

// Engine calls the :process method of one processor.
type Engine struct {
	endpoint string
	client   *http.Client
	log      observability.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithHTTPClient supplies an already authenticated client. Credentials from
// the config are not loaded when it is set.
func WithHTTPClient(c *http.Client) Option { return func(e *Engine) { e.client = c } }

// WithEndpoint overrides the processor URL.
func WithEndpoint(url string) Option { return func(e *Engine) { e.endpoint = url } }

// WithLogger sets the engine logger.
func WithLogger(l observability.Logger) Option {
	return func(e *Engine) { e.log = observability.OrNop(l) }
}

// Endpoint returns the :process URL for a processor.
func Endpoint(cfg ocr.DocumentAIConfig) string {
	loc := cfg.Location
	if loc == "" {
		loc = "us"
	}
	return fmt.Sprintf("https://%s-documentai.googleapis.com/v1/projects/%s/locations/%s/processors/%s:process",
		loc, cfg.ProjectID, loc, cfg.ProcessorID)
}

// New builds an Engine. Unless WithHTTPClient is given, the service-account
// key is read from CredentialsJSON or CredentialsFile.
func New(ctx context.Context, cfg ocr.DocumentAIConfig, opts ...Option) (*Engine, error) {
	e := &Engine{log: observability.NopLogger{}}
	for _, opt := range opts {
		opt(e)
	}
	if e.endpoint == "" {
		var missing []string
		if cfg.ProjectID == "" {
			missing = append(missing, "project_id")
		}
		if cfg.ProcessorID == "" {
			missing = append(missing, "processor_id")
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("documentai: missing %s", strings.Join(missing, ", "))
		}
		e.endpoint = Endpoint(cfg)
	}
	if e.client == nil {
		key, err := credentials(cfg)
		if err != nil {
			return nil, err
		}
		creds, err := google.CredentialsFromJSON(ctx, key, scope)
		if err != nil {
			return nil, fmt.Errorf("documentai: parse credentials: %w", err)
		}
		e.client = oauth2.NewClient(context.WithoutCancel(ctx), creds.TokenSource)
		e.client.Timeout = cfg.Timeout
	}
	return e, nil
}

func credentials(cfg ocr.DocumentAIConfig) ([]byte, error) {
	if cfg.CredentialsJSON != "" {
		return []byte(cfg.CredentialsJSON), nil
	}
	if cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("documentai: read credentials: %w", err)
		}
		return data, nil
	}
	return nil, errors.New("documentai: missing credentials")
}

func (e *Engine) Name() string { return "documentai" }

type rawDocument struct {
	Content  string `json:"content"`
	MimeType string `json:"mimeType"`
}

type processRequest struct {
	RawDocument rawDocument `json:"rawDocument"`
}

type processResponse struct {
	Document struct {
		Text  string `json:"text"`
		Pages []struct {
			Layout struct {
				Confidence float64 `json:"confidence"`
			} `json:"layout"`
		} `json:"pages"`
	} `json:"document"`
}

// Recognize sends the raw image to the processor and returns the document
// text with the mean page confidence.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	mime := string(in.Format)
	if mime == "" {
		mime = string(ocr.ImageFormatJPEG)
	}
	body, err := json.Marshal(processRequest{RawDocument: rawDocument{
		Content:  base64.StdEncoding.EncodeToString(in.Image),
		MimeType: mime,
	}})
	if err != nil {
		return ocr.Result{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return ocr.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("call document ai: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return ocr.Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ocr.Result{}, &APIError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	var out processResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return ocr.Result{}, fmt.Errorf("decode response: %w", err)
	}

	var sum float64
	for _, p := range out.Document.Pages {
		sum += p.Layout.Confidence
	}
	var conf float64
	if n := len(out.Document.Pages); n > 0 {
		conf = sum / float64(n)
	}
	e.log.Debug("document ai extracted text",
		observability.String("input", in.ID),
		observability.Int("chars", len(out.Document.Text)),
	)
	return ocr.Result{
		InputID:    in.ID,
		PlainText:  out.Document.Text,
		Confidence: conf,
		Engine:     e.Name(),
	}, nil
}
