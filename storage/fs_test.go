package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func newBucket(t *testing.T) *FSBucket {
	t.Helper()
	b, err := NewFSBucket(t.TempDir(), "delivery-dockets")
	if err != nil {
		t.Fatalf("NewFSBucket: %v", err)
	}
	return b
}

func TestUploadOpenList(t *testing.T) {
	ctx := context.Background()
	b := newBucket(t)

	obj, err := b.Upload(ctx, "c1/2025-08-26/1-docket.jpg", bytes.NewReader([]byte("jpeg")), UploadOptions{ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if obj.Path != "c1/2025-08-26/1-docket.jpg" || obj.Size != 4 {
		t.Fatalf("unexpected object: %+v", obj)
	}

	rc, err := b.Open(ctx, obj.Path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "jpeg" {
		t.Fatalf("unexpected content %q", data)
	}

	list, err := b.List(ctx, "c1/2025-08-26")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Path != obj.Path {
		t.Fatalf("unexpected listing: %+v", list)
	}
}

func TestUploadWithoutUpsertRejectsExisting(t *testing.T) {
	ctx := context.Background()
	b := newBucket(t)
	if _, err := b.Upload(ctx, "a/b.png", bytes.NewReader([]byte("1")), UploadOptions{}); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if _, err := b.Upload(ctx, "a/b.png", bytes.NewReader([]byte("2")), UploadOptions{}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := b.Upload(ctx, "a/b.png", bytes.NewReader([]byte("22")), UploadOptions{Upsert: true}); err != nil {
		t.Fatalf("upsert upload: %v", err)
	}
}

func TestRejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	b := newBucket(t)
	for _, p := range []string{"", "/etc/passwd", "../x", "a/../../x", `a\b`} {
		if _, err := b.Upload(ctx, p, bytes.NewReader(nil), UploadOptions{}); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("path %q: expected ErrInvalidPath, got %v", p, err)
		}
	}
}

func TestDeleteAndExists(t *testing.T) {
	ctx := context.Background()
	b := newBucket(t)
	if _, err := b.Upload(ctx, "x.png", bytes.NewReader([]byte("1")), UploadOptions{}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	ok, err := b.Exists(ctx, "x.png")
	if err != nil || !ok {
		t.Fatalf("expected object to exist: %v %v", ok, err)
	}
	if err := b.Delete(ctx, "x.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := b.Delete(ctx, "x.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
