package recovery_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/wudi/docketkit/recovery"
)

func TestRecoveryStrategies(t *testing.T) {
	loc := recovery.Location{Batch: 2, Index: 11, File: "docket.jpg", Stage: "upload"}
	boom := errors.New("bucket unavailable")

	t.Run("StrictStrategy", func(t *testing.T) {
		if got := recovery.NewStrictStrategy().OnError(context.Background(), boom, loc); got != recovery.ActionFail {
			t.Fatalf("expected ActionFail, got %v", got)
		}
	})

	t.Run("LenientStrategy", func(t *testing.T) {
		rec := recovery.NewLenientStrategy()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if got := rec.OnError(context.Background(), boom, loc); got != recovery.ActionWarn {
					t.Errorf("expected ActionWarn, got %v", got)
				}
			}()
		}
		wg.Wait()
		errs := rec.Errors()
		if len(errs) != 8 {
			t.Fatalf("expected 8 recorded errors, got %d", len(errs))
		}
		if !errors.Is(errs[0], boom) {
			t.Fatalf("recorded error does not wrap cause: %v", errs[0])
		}
		if !strings.Contains(errs[0].Error(), "docket.jpg") {
			t.Fatalf("recorded error missing file name: %v", errs[0])
		}
	})
}

func TestNewByName(t *testing.T) {
	for _, name := range []string{"", "lenient", "Strict"} {
		if _, err := recovery.New(name); err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
	}
	if _, err := recovery.New("optimistic"); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}
