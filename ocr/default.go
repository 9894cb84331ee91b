package ocr

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wudi/docketkit/observability"
)

// Factory builds an engine from configuration. Engines register a factory
// from their package init so that a blank import is enough to make them
// selectable.
type Factory func(ctx context.Context, cfg Config, log observability.Logger) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"noop": func(context.Context, Config, observability.Logger) (Engine, error) {
			return NoopEngine{}, nil
		},
	}
)

// Register makes an engine factory available under name. Registering the
// same name twice replaces the earlier factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Engines lists the registered engine names.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the engine named by cfg.Engine. An empty name selects noop.
func New(ctx context.Context, cfg Config, log observability.Logger) (Engine, error) {
	name := cfg.Engine
	if name == "" {
		name = "noop"
	}
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ocr: unknown engine %q (registered: %v)", name, Engines())
	}
	return f(ctx, cfg, observability.OrNop(log))
}

// NoopEngine returns an empty result for every input. It is the default for
// development and tests.
type NoopEngine struct{}

func (NoopEngine) Name() string { return "noop" }

func (NoopEngine) Recognize(ctx context.Context, input Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{InputID: input.ID, Engine: "noop"}, nil
}
