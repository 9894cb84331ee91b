package recovery

import "context"

// Strategy decides what a bulk run does after a docket fails.
type Strategy interface {
	OnError(ctx context.Context, err error, location Location) Action
}

// Location identifies the failing docket within a run.
type Location struct {
	Batch int // 1-based batch number
	Index int // 0-based position in the request
	File  string
	Stage string // validate, upload, ocr, record
}

type Action int

const (
	// ActionFail stops scheduling further batches.
	ActionFail Action = iota
	// ActionSkip drops the docket silently.
	ActionSkip
	// ActionWarn records the error and continues.
	ActionWarn
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionSkip:
		return "skip"
	case ActionWarn:
		return "warn"
	default:
		return "unknown"
	}
}
