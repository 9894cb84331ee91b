package scripting

import (
	"context"
)

// Engine represents a scripting engine (e.g., JavaScript) used for
// user-authored validation rules.
type Engine interface {
	// Execute runs a script and returns its completion value.
	Execute(ctx context.Context, script string) (interface{}, error)

	// Bind exposes a Go value to scripts under name.
	Bind(name string, value interface{}) error
}

// Helpers is the set of functions every validation script can call.
type Helpers interface {
	// Log forwards a message from the script to the host logger.
	Log(message string)
}
