package security

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTooLarge reports a docket file above MaxFileSize.
	ErrTooLarge = errors.New("file too large")
	// ErrUnsupportedType reports a content type outside AllowedTypes.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrTooManyFiles reports a bulk request above MaxFilesPerRequest.
	ErrTooManyFiles = errors.New("too many files")
	// ErrEmptyFile reports a zero-length upload.
	ErrEmptyFile = errors.New("empty file")
)

// Limits defines intake boundaries for docket uploads.
// These limits keep a single request from exhausting memory or storage.
type Limits struct {
	// Maximum size of a single docket file (bytes). Default: 8 MB.
	MaxFileSize int64 `yaml:"max_file_size"`

	// Content type prefixes accepted for dockets. Default: image/.
	AllowedTypes []string `yaml:"allowed_types"`

	// Maximum number of files in one bulk request. Default: 200.
	MaxFilesPerRequest int `yaml:"max_files_per_request"`

	// Upper bound for the caller-supplied batch size. Default: 50.
	MaxBatchSize int `yaml:"max_batch_size"`

	// Memory used for multipart parsing before spilling to disk. Default: 32 MB.
	MaxMultipartMemory int64 `yaml:"max_multipart_memory"`
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize:        8 * 1024 * 1024, // 8 MB
		AllowedTypes:       []string{"image/"},
		MaxFilesPerRequest: 200,
		MaxBatchSize:       50,
		MaxMultipartMemory: 32 * 1024 * 1024, // 32 MB
	}
}

// CheckFile validates a single upload against the limits.
func (l Limits) CheckFile(contentType string, size int64) error {
	if size == 0 {
		return ErrEmptyFile
	}
	if l.MaxFileSize > 0 && size > l.MaxFileSize {
		return fmt.Errorf("%w: %d bytes, maximum %d", ErrTooLarge, size, l.MaxFileSize)
	}
	if !l.allowed(contentType) {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	return nil
}

// CheckCount validates the number of files in a bulk request.
func (l Limits) CheckCount(n int) error {
	if l.MaxFilesPerRequest > 0 && n > l.MaxFilesPerRequest {
		return fmt.Errorf("%w: %d, maximum %d", ErrTooManyFiles, n, l.MaxFilesPerRequest)
	}
	return nil
}

// ClampBatchSize bounds a requested batch size to [1, MaxBatchSize]. A
// non-positive request yields def.
func (l Limits) ClampBatchSize(n, def int) int {
	if n <= 0 {
		n = def
	}
	if n <= 0 {
		n = 1
	}
	if l.MaxBatchSize > 0 && n > l.MaxBatchSize {
		n = l.MaxBatchSize
	}
	return n
}

func (l Limits) allowed(contentType string) bool {
	if len(l.AllowedTypes) == 0 {
		return true
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	for _, prefix := range l.AllowedTypes {
		if strings.HasPrefix(ct, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}
