package streaming

import (
	"sync"
	"sync/atomic"
)

type EventType int

const (
	EventRunStart EventType = iota
	EventBatchStart
	EventFileDone
	EventBatchDone
	EventRunDone
)

type Event interface{ Type() EventType }

type RunStartEvent struct {
	RunID   string `json:"runId"`
	Total   int    `json:"total"`
	Batches int    `json:"batches"`
}

func (RunStartEvent) Type() EventType { return EventRunStart }

type BatchStartEvent struct {
	Batch int `json:"batch"`
	Size  int `json:"size"`
}

func (BatchStartEvent) Type() EventType { return EventBatchStart }

type FileDoneEvent struct {
	Batch    int    `json:"batch"`
	Index    int    `json:"index"`
	File     string `json:"file"`
	RecordID string `json:"deliveryRecordId,omitempty"`
	Status   string `json:"status"`
	Err      string `json:"error,omitempty"`
}

func (FileDoneEvent) Type() EventType { return EventFileDone }

type BatchDoneEvent struct {
	Batch int `json:"batch"`
}

func (BatchDoneEvent) Type() EventType { return EventBatchDone }

type RunDoneEvent struct {
	Processed int  `json:"processed"`
	Failed    int  `json:"failed"`
	Aborted   bool `json:"aborted"`
}

func (RunDoneEvent) Type() EventType { return EventRunDone }

// Stream fans progress events out to a single consumer. Publish never blocks:
// when the buffer is full the event is dropped and counted.
type Stream struct {
	mu      sync.RWMutex
	ch      chan Event
	closed  bool
	dropped atomic.Int64
}

// NewStream creates a stream with the given buffer size (minimum 1).
func NewStream(buffer int) *Stream {
	if buffer < 1 {
		buffer = 1
	}
	return &Stream{ch: make(chan Event, buffer)}
}

// Publish delivers ev if there is room. It is safe on a nil Stream.
func (s *Stream) Publish(ev Event) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *Stream) Events() <-chan Event { return s.ch }

// Dropped reports how many events were discarded because the buffer was full.
func (s *Stream) Dropped() int64 { return s.dropped.Load() }

// Close ends the stream. Calling it more than once is a no-op.
func (s *Stream) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}
