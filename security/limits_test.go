package security

import (
	"errors"
	"testing"
)

func TestCheckFile(t *testing.T) {
	l := DefaultLimits()
	cases := []struct {
		name string
		ct   string
		size int64
		want error
	}{
		{"jpeg", "image/jpeg", 1024, nil},
		{"upper case type", "IMAGE/PNG", 10, nil},
		{"pdf", "application/pdf", 1024, ErrUnsupportedType},
		{"too large", "image/png", 8*1024*1024 + 1, ErrTooLarge},
		{"exactly max", "image/png", 8 * 1024 * 1024, nil},
		{"empty", "image/png", 0, ErrEmptyFile},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := l.CheckFile(tc.ct, tc.size)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestClampBatchSize(t *testing.T) {
	l := DefaultLimits()
	if got := l.ClampBatchSize(0, 10); got != 10 {
		t.Fatalf("expected default 10, got %d", got)
	}
	if got := l.ClampBatchSize(500, 10); got != 50 {
		t.Fatalf("expected clamp to 50, got %d", got)
	}
	if got := l.ClampBatchSize(-1, 0); got != 1 {
		t.Fatalf("expected floor of 1, got %d", got)
	}
}

func TestCheckCount(t *testing.T) {
	l := Limits{MaxFilesPerRequest: 2}
	if err := l.CheckCount(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.CheckCount(3); !errors.Is(err, ErrTooManyFiles) {
		t.Fatalf("expected ErrTooManyFiles, got %v", err)
	}
}
