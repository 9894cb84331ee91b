package scripting

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGojaEngine_ContextCancellation(t *testing.T) {
	engine := NewEngine()

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	if _, err := engine.Execute(ctx, "while (true) {}"); err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}

	if _, err := engine.Execute(context.Background(), "1 + 1"); err != nil {
		t.Fatalf("engine should recover after cancellation, got %v", err)
	}
}

func TestGojaEngine_ImmediateCancel(t *testing.T) {
	engine := NewEngine()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Execute(ctx, "42"); err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}

type captureHelpers struct{ messages []string }

func (c *captureHelpers) Log(m string) { c.messages = append(c.messages, m) }

func TestGojaEngine_BindAndHelpers(t *testing.T) {
	engine := NewEngine()
	h := &captureHelpers{}
	if err := engine.RegisterHelpers(h); err != nil {
		t.Fatalf("RegisterHelpers: %v", err)
	}
	if err := engine.Bind("field", map[string]interface{}{"label": "Phone"}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	v, err := engine.Execute(context.Background(), `console.log("checking " + field.label); field.label.length`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v != int64(5) {
		t.Fatalf("unexpected value %#v", v)
	}
	if len(h.messages) != 1 || h.messages[0] != "checking Phone" {
		t.Fatalf("unexpected log messages %v", h.messages)
	}
}

func TestEvalBool(t *testing.T) {
	ok, err := EvalBool(context.Background(), `value.startsWith("NZ") && value.length == 6`, map[string]interface{}{"value": "NZ1234"})
	if err != nil || !ok {
		t.Fatalf("expected true, got %v (%v)", ok, err)
	}
	ok, err = EvalBool(context.Background(), `value > 10`, map[string]interface{}{"value": 3})
	if err != nil || ok {
		t.Fatalf("expected false, got %v (%v)", ok, err)
	}
	if _, err := EvalBool(context.Background(), `"yes"`, nil); err == nil {
		t.Fatalf("expected error for non-boolean result")
	}
	if _, err := EvalBool(context.Background(), `value.(`, map[string]interface{}{"value": 1}); err == nil {
		t.Fatalf("expected syntax error")
	}
}
