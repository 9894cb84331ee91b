package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"reflect"
	"testing"

	"github.com/wudi/docketkit/observability"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestNewInput(t *testing.T) {
	meta := map[string]string{"priority": "high"}
	in, err := NewInput("rec-1", "docket.png", pngBytes(t),
		WithLanguages("eng", "mri"),
		WithDPI(300),
		WithOwner("client-1", "user-1"),
		WithPath("client-1/2025-08-26/docket.png"),
		WithMetadata(meta),
	)
	if err != nil {
		t.Fatalf("NewInput() error = %v", err)
	}
	if in.Format != ImageFormatPNG {
		t.Fatalf("unexpected format: %v", in.Format)
	}
	if in.ClientID != "client-1" || in.UserID != "user-1" {
		t.Fatalf("unexpected owner: %q/%q", in.ClientID, in.UserID)
	}
	if !reflect.DeepEqual(in.Languages, []string{"eng", "mri"}) {
		t.Fatalf("unexpected languages: %+v", in.Languages)
	}
	if in.DPI != 300 {
		t.Fatalf("unexpected dpi: %d", in.DPI)
	}
	meta["priority"] = "low"
	if in.Metadata["priority"] != "high" {
		t.Fatalf("metadata was not copied: %+v", in.Metadata)
	}
}

func TestNewInputRejectsNonImage(t *testing.T) {
	_, err := NewInput("x", "notes.txt", []byte("just some text"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestTesseractOptions(t *testing.T) {
	in := Input{}
	WithTesseractPSM(6)(&in)
	if got := in.Metadata["tessedit_pageseg_mode"]; got != "6" {
		t.Fatalf("expected PSM to be set, got %q", got)
	}
	WithTesseractWhitelist("ABC")(&in)
	if got := in.Metadata["tessedit_char_whitelist"]; got != "ABC" {
		t.Fatalf("expected whitelist to be set, got %q", got)
	}
}

type countingEngine struct{ calls int }

func (c *countingEngine) Name() string { return "counting" }

func (c *countingEngine) Recognize(_ context.Context, in Input) (Result, error) {
	c.calls++
	if in.ID == "bad" {
		return Result{}, errors.New("unreadable")
	}
	return Result{InputID: in.ID, PlainText: "text " + in.ID}, nil
}

func TestRecognizeAllSequential(t *testing.T) {
	eng := &countingEngine{}
	res, err := RecognizeAll(context.Background(), eng, []Input{{ID: "a"}, {ID: "b"}})
	if err != nil {
		t.Fatalf("RecognizeAll() error = %v", err)
	}
	if len(res) != 2 || res[1].PlainText != "text b" {
		t.Fatalf("unexpected results: %+v", res)
	}

	_, err = RecognizeAll(context.Background(), eng, []Input{{ID: "bad"}, {ID: "c"}})
	if err == nil {
		t.Fatalf("expected error for unreadable input")
	}
	if eng.calls != 3 {
		t.Fatalf("expected run to stop at first error, calls=%d", eng.calls)
	}
}

func TestRecognizeAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RecognizeAll(ctx, &countingEngine{}, []Input{{ID: "a"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	eng, err := New(context.Background(), Config{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if eng.Name() != "noop" {
		t.Fatalf("expected noop default, got %s", eng.Name())
	}

	Register("counting-test", func(context.Context, Config, observability.Logger) (Engine, error) {
		return &countingEngine{}, nil
	})
	eng, err = New(context.Background(), Config{Engine: "counting-test"}, observability.NopLogger{})
	if err != nil || eng.Name() != "counting" {
		t.Fatalf("unexpected engine %v, err %v", eng, err)
	}

	if _, err := New(context.Background(), Config{Engine: "abbyy"}, nil); err == nil {
		t.Fatalf("expected unknown engine error")
	}
}

func TestMeanConfidence(t *testing.T) {
	words := []TextWord{{Text: "SERVICE", Confidence: 0.9}, {Text: "", Confidence: 0.1}, {Text: "FOODS", Confidence: 0.7}, {Text: "x"}}
	if got := MeanConfidence(words); got < 0.799 || got > 0.801 {
		t.Fatalf("expected 0.8, got %f", got)
	}
	if MeanConfidence(nil) != 0 {
		t.Fatalf("expected zero for no words")
	}
}
