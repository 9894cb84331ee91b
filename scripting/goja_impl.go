package scripting

import (
	"context"
	"fmt"
	"sort"

	"github.com/dop251/goja"
)

// GojaEngine runs JavaScript with goja. A GojaEngine is not safe for
// concurrent use; EvalBool creates a fresh runtime per call.
type GojaEngine struct {
	vm *goja.Runtime
}

func NewEngine() *GojaEngine {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	return &GojaEngine{vm: vm}
}

func (e *GojaEngine) Execute(ctx context.Context, script string) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	defer e.vm.ClearInterrupt()

	go func() {
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	val, err := e.vm.RunString(script)
	if err != nil {
		if interruptedErr, ok := err.(*goja.InterruptedError); ok {
			if cause := interruptedErr.Unwrap(); cause != nil {
				return nil, cause
			}
			return nil, context.Canceled
		}
		return nil, err
	}
	if val == nil {
		return nil, nil
	}
	return val.Export(), nil
}

func (e *GojaEngine) Bind(name string, value interface{}) error {
	return e.vm.Set(name, value)
}

// RegisterHelpers exposes h to scripts as a global "console.log" and "log".
func (e *GojaEngine) RegisterHelpers(h Helpers) error {
	logFn := func(call goja.FunctionCall) goja.Value {
		msg := ""
		if len(call.Arguments) > 0 {
			msg = call.Arguments[0].String()
		}
		h.Log(msg)
		return goja.Undefined()
	}
	console := e.vm.NewObject()
	if err := console.Set("log", logFn); err != nil {
		return err
	}
	if err := e.vm.Set("console", console); err != nil {
		return err
	}
	return e.vm.Set("log", logFn)
}

// EvalBool evaluates script in a new runtime with vars bound as globals and
// reports whether the completion value is strictly true. Any other value,
// including truthy non-booleans, yields an error so rule authors notice.
func EvalBool(ctx context.Context, script string, vars map[string]interface{}) (bool, error) {
	e := NewEngine()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := e.Bind(name, vars[name]); err != nil {
			return false, fmt.Errorf("bind %s: %w", name, err)
		}
	}
	v, err := e.Execute(ctx, script)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("script returned %T, want bool", v)
	}
	return b, nil
}
