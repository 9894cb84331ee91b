package ocr

import (
	"fmt"

	"github.com/wudi/docketkit/imaging"
)

// InputOption mutates an OCR input.
type InputOption func(*Input)

// WithLanguages sets language hints on the OCR input.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithDPI overrides the DPI value on the OCR input.
func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithOwner records the tenant and uploader on the input.
func WithOwner(clientID, userID string) InputOption {
	return func(in *Input) {
		in.ClientID = clientID
		in.UserID = userID
	}
}

// WithPath records where the image is stored.
func WithPath(path string) InputOption {
	return func(in *Input) { in.Path = path }
}

// WithMetadata sets provider-specific metadata for the input.
func WithMetadata(metadata map[string]string) InputOption {
	return func(in *Input) {
		if len(metadata) == 0 {
			in.Metadata = nil
			return
		}
		in.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			in.Metadata[k] = v
		}
	}
}

// NewInput builds an OCR input from an uploaded docket image. The format is
// sniffed from the payload so a wrong client-supplied content type does not
// reach the engine.
func NewInput(id, fileName string, data []byte, opts ...InputOption) (Input, error) {
	format, err := formatOf(data)
	if err != nil {
		return Input{}, fmt.Errorf("%s: %w", fileName, err)
	}
	in := Input{
		ID:       id,
		Image:    data,
		Format:   format,
		FileName: fileName,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in, nil
}

func formatOf(data []byte) (ImageFormat, error) {
	switch ct := imaging.DetectContentType(data); ct {
	case string(ImageFormatPNG), string(ImageFormatJPEG), string(ImageFormatTIFF),
		string(ImageFormatGIF), string(ImageFormatWebP):
		return ImageFormat(ct), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ct)
	}
}
