package streaming

import (
	"encoding/json"
	"testing"
)

func TestStreamDeliversInOrder(t *testing.T) {
	s := NewStream(4)
	s.Publish(RunStartEvent{RunID: "r", Total: 2, Batches: 1})
	s.Publish(FileDoneEvent{Index: 0, File: "a.jpg", Status: "completed"})
	s.Publish(RunDoneEvent{Processed: 1})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []EventType
	for ev := range s.Events() {
		got = append(got, ev.Type())
	}
	want := []EventType{EventRunStart, EventFileDone, EventRunDone}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestStreamDropsWhenFull(t *testing.T) {
	s := NewStream(1)
	if !s.Publish(BatchStartEvent{Batch: 1}) {
		t.Fatalf("first publish should succeed")
	}
	if s.Publish(BatchDoneEvent{Batch: 1}) {
		t.Fatalf("second publish should be dropped")
	}
	if s.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", s.Dropped())
	}
}

func TestStreamCloseIdempotentAndNilSafe(t *testing.T) {
	s := NewStream(1)
	_ = s.Close()
	_ = s.Close()
	if s.Publish(RunDoneEvent{}) {
		t.Fatalf("publish after close should fail")
	}

	var nilStream *Stream
	if nilStream.Publish(RunDoneEvent{}) {
		t.Fatalf("nil stream publish should report false")
	}
	if err := nilStream.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestEventsEncodeCamelCase(t *testing.T) {
	data, err := json.Marshal(FileDoneEvent{Batch: 1, File: "a.jpg", RecordID: "rec-1", Status: "failed", Err: "boom"})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"batch":1,"index":0,"file":"a.jpg","deliveryRecordId":"rec-1","status":"failed","error":"boom"}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
	data, _ = json.Marshal(RunStartEvent{RunID: "r", Total: 2, Batches: 1})
	if string(data) != `{"runId":"r","total":2,"batches":1}` {
		t.Fatalf("unexpected run start encoding %s", data)
	}
}
