package documentai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wudi/docketkit/ocr"
)

func TestEndpoint(t *testing.T) {
	got := Endpoint(ocr.DocumentAIConfig{ProjectID: "p1", ProcessorID: "abc"})
	want := "https://us-documentai.googleapis.com/v1/projects/p1/locations/us/processors/abc:process"
	if got != want {
		t.Fatalf("Endpoint() = %s, want %s", got, want)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(context.Background(), ocr.DocumentAIConfig{ProjectID: "p1"}); err == nil {
		t.Fatalf("expected error for missing processor id")
	}
	if _, err := New(context.Background(), ocr.DocumentAIConfig{ProjectID: "p1", ProcessorID: "x"}); err == nil {
		t.Fatalf("expected error for missing credentials")
	}
	if _, err := New(context.Background(), ocr.DocumentAIConfig{ProjectID: "p1", ProcessorID: "x", CredentialsJSON: "{not json"}); err == nil {
		t.Fatalf("expected error for malformed credentials")
	}
}

func TestRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req processRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.RawDocument.MimeType != "image/png" || req.RawDocument.Content != "AQID" {
			t.Errorf("unexpected raw document %+v", req.RawDocument)
		}
		_, _ = w.Write([]byte(`{"document":{"text":"SERVICE FOODS\n26/08/2025","pages":[{"layout":{"confidence":0.9}},{"layout":{"confidence":0.7}}]}}`))
	}))
	defer srv.Close()

	eng, err := New(context.Background(), ocr.DocumentAIConfig{}, WithHTTPClient(srv.Client()), WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := eng.Recognize(context.Background(), ocr.Input{ID: "d1", Image: []byte{1, 2, 3}, Format: ocr.ImageFormatPNG})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if res.PlainText != "SERVICE FOODS\n26/08/2025" {
		t.Fatalf("unexpected text %q", res.PlainText)
	}
	if res.Confidence < 0.799 || res.Confidence > 0.801 {
		t.Fatalf("expected mean confidence 0.8, got %f", res.Confidence)
	}
}

func TestRecognizeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "PERMISSION_DENIED", http.StatusForbidden)
	}))
	defer srv.Close()

	eng, _ := New(context.Background(), ocr.DocumentAIConfig{}, WithHTTPClient(srv.Client()), WithEndpoint(srv.URL))
	_, err := eng.Recognize(context.Background(), ocr.Input{ID: "d1", Image: []byte{1}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusForbidden || apiErr.Body != "PERMISSION_DENIED" {
		t.Fatalf("unexpected error %v", err)
	}
}
