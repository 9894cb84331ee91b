package ocr

import (
	"context"
	"errors"
)

// ErrUnsupportedFormat is returned when an input is not an image the engines
// accept.
var ErrUnsupportedFormat = errors.New("ocr: unsupported image format")

// ImageFormat identifies the content type of an OCR input image.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatJPEG ImageFormat = "image/jpeg"
	ImageFormatTIFF ImageFormat = "image/tiff"
	ImageFormatGIF  ImageFormat = "image/gif"
	ImageFormatWebP ImageFormat = "image/webp"
)

// Input encapsulates a single docket image submitted for OCR.
type Input struct {
	// ID is a caller-provided identifier that is echoed back in the
	// corresponding Result.
	ID string
	// Image is the encoded image payload in the format specified by Format.
	Image []byte
	// Format declares the image content type (e.g., image/png).
	Format ImageFormat
	// FileName is the original upload name.
	FileName string
	// Path is the object path of the stored image, for engines that read
	// from the bucket themselves.
	Path string
	// ClientID and UserID identify the tenant and uploader.
	ClientID string
	UserID   string
	// DPI carries the effective dots-per-inch for the image; zero means unknown.
	DPI int
	// Languages is a list of language hints (e.g., "eng") that providers can
	// use to select trained data.
	Languages []string
	// Metadata allows callers to pass through engine-specific knobs without
	// hard-coding them into the API surface.
	Metadata map[string]string
}

// Well-known Input.Metadata keys set by the docket pipeline.
const (
	MetaBulkUpload = "bulkUpload"
	MetaPriority   = "processingPriority"
	MetaBatchIndex = "batchIndex"
)

// TextWord represents a single recognized token.
type TextWord struct {
	Text       string
	Confidence float64
}

// Result captures OCR output for a single input image.
type Result struct {
	// InputID mirrors the Input.ID that produced this result.
	InputID string
	// PlainText contains the linearized text extracted from the image.
	PlainText string
	// Words carries per-token confidence when the engine reports it.
	Words []TextWord
	// Confidence is the engine's overall confidence in [0,1]; zero means the
	// engine did not report one.
	Confidence float64
	// Language indicates the dominant language detected, if known.
	Language string
	// Engine names the provider that produced the result.
	Engine string
}

// Engine is the simplest OCR provider contract: one image in, one result out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// BatchEngine handles multiple images in a single call, enabling providers that
// amortize setup costs or remote round-trips.
type BatchEngine interface {
	Engine
	RecognizeBatch(ctx context.Context, inputs []Input) ([]Result, error)
}
