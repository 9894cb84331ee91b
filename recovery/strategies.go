package recovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// New returns a fresh strategy by name. Strategies may carry per-run state,
// so callers build one per run.
func New(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lenient":
		return NewLenientStrategy(), nil
	case "strict":
		return NewStrictStrategy(), nil
	default:
		return nil, fmt.Errorf("unknown recovery strategy %q", name)
	}
}

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx context.Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy records every failure and lets the run continue.
type LenientStrategy struct {
	mu     sync.Mutex
	errors []error
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{}
}

func (s *LenientStrategy) OnError(ctx context.Context, err error, location Location) Action {
	s.mu.Lock()
	s.errors = append(s.errors, fmt.Errorf("[%s] batch %d file %q: %w", location.Stage, location.Batch, location.File, err))
	s.mu.Unlock()
	return ActionWarn
}

// Errors returns the failures seen so far.
func (s *LenientStrategy) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errors...)
}
