// Package intake turns uploaded docket files into validated, stored
// objects: it names them, checks them against the upload limits and writes
// them to the docket bucket.
package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wudi/docketkit/imaging"
	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/security"
	"github.com/wudi/docketkit/storage"
)

// BulkFieldPrefix marks the multipart fields carrying files in a bulk
// upload.
const BulkFieldPrefix = "file_"

// ErrNoFiles is returned when a bulk form has no file fields.
var ErrNoFiles = errors.New("no files provided for processing")

// File is one docket file held in memory.
type File struct {
	Field       string
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// SafeName replaces every character outside [a-zA-Z0-9.-] with '_'.
func SafeName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// SinglePath is the object path of a single upload:
// {clientId}/{YYYY-MM-DD}/{unixMillis}-{safeName}.
func SinglePath(clientID, name string, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s/%s/%d-%s", clientID, now.Format(time.DateOnly), now.UnixMilli(), SafeName(name))
}

// BulkPath is the object path of the index-th file of a bulk upload:
// {clientId}/{YYYY-MM-DD}/bulk_upload/bulk_{unixMillis+index}_{safeName}.
func BulkPath(clientID, name string, now time.Time, index int) string {
	now = now.UTC()
	return fmt.Sprintf("%s/%s/bulk_upload/bulk_%d_%s", clientID, now.Format(time.DateOnly), now.UnixMilli()+int64(index), SafeName(name))
}

// FromHeader reads a multipart file into memory, reading at most
// maxSize+1 bytes so oversize files are detected without buffering them.
func FromHeader(field string, fh *multipart.FileHeader, maxSize int64) (File, error) {
	f, err := fh.Open()
	if err != nil {
		return File{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	var r io.Reader = f
	if maxSize > 0 {
		r = io.LimitReader(f, maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	size := fh.Size
	if size < int64(len(data)) {
		size = int64(len(data))
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = imaging.DetectContentType(data)
	}
	return File{Field: field, Name: fh.Filename, ContentType: ct, Size: size, Data: data}, nil
}

// FromMultipart collects every file field starting with prefix, ordered by
// the numeric suffix of the field name (file_2 before file_10). The field
// count is checked against limits before any part is read.
func FromMultipart(form *multipart.Form, prefix string, limits security.Limits) ([]File, error) {
	if form == nil {
		return nil, ErrNoFiles
	}
	var fields []string
	for key, headers := range form.File {
		if strings.HasPrefix(key, prefix) && len(headers) > 0 {
			fields = append(fields, key)
		}
	}
	if len(fields) == 0 {
		return nil, ErrNoFiles
	}
	if err := limits.CheckCount(len(fields)); err != nil {
		return nil, err
	}
	sort.Slice(fields, func(i, j int) bool { return naturalLess(fields[i], fields[j]) })
	files := make([]File, 0, len(fields))
	for _, key := range fields {
		f, err := FromHeader(key, form.File[key][0], limits.MaxFileSize)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func naturalLess(a, b string) bool {
	na, errA := strconv.Atoi(a[strings.LastIndexByte(a, '_')+1:])
	nb, errB := strconv.Atoi(b[strings.LastIndexByte(b, '_')+1:])
	if errA == nil && errB == nil && na != nb {
		return na < nb
	}
	return a < b
}

// FromPath reads a local file, sniffing its content type.
func FromPath(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return File{
		Field:       "file",
		Name:        filepath.Base(path),
		ContentType: imaging.DetectContentType(data),
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}

// Uploader validates files and writes them to the docket bucket.
type Uploader struct {
	bucket    storage.Bucket
	limits    security.Limits
	thumbSize int
	log       observability.Logger
}

// NewUploader returns an Uploader. A thumbSize of zero disables thumbnails.
func NewUploader(bucket storage.Bucket, limits security.Limits, thumbSize int, log observability.Logger) *Uploader {
	return &Uploader{bucket: bucket, limits: limits, thumbSize: thumbSize, log: observability.OrNop(log)}
}

// Bucket returns the destination bucket.
func (u *Uploader) Bucket() storage.Bucket { return u.bucket }

// Validate checks f against the upload limits.
func (u *Uploader) Validate(f File) error {
	return u.limits.CheckFile(f.ContentType, f.Size)
}

// Upload stores f at path without overwriting. A thumbnail is written under
// thumbnails/ on a best-effort basis.
func (u *Uploader) Upload(ctx context.Context, path string, f File) (storage.Object, error) {
	obj, err := u.bucket.Upload(ctx, path, bytes.NewReader(f.Data), storage.UploadOptions{
		ContentType:  f.ContentType,
		CacheControl: "3600",
		Upsert:       false,
	})
	if err != nil {
		return storage.Object{}, err
	}
	if u.thumbSize > 0 {
		u.thumbnail(ctx, path, f)
	}
	return obj, nil
}

// ThumbnailPath is where the thumbnail of an object is stored.
func ThumbnailPath(path string) string {
	return "thumbnails/" + strings.TrimSuffix(path, filepath.Ext(path)) + ".jpg"
}

func (u *Uploader) thumbnail(ctx context.Context, path string, f File) {
	thumb, err := imaging.Thumbnail(f.Data, u.thumbSize)
	if err == nil {
		_, err = u.bucket.Upload(ctx, ThumbnailPath(path), bytes.NewReader(thumb), storage.UploadOptions{
			ContentType:  "image/jpeg",
			CacheControl: "3600",
			Upsert:       true,
		})
	}
	if err != nil {
		u.log.Warn("thumbnail skipped", observability.String("path", path), observability.Err(err))
	}
}
