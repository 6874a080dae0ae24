package grading_test

import (
	"testing"

	"github.com/p-n-ai/ledger/internal/grading"
)

func TestMemoryEventLogger_LogEvent(t *testing.T) {
	logger := grading.NewMemoryEventLogger()

	err := logger.LogEvent(t.Context(), grading.Event{
		SessionID: "session-1",
		EventType: grading.EventGradeSubmitted,
		Data:      map[string]any{"passed": true},
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].EventType != grading.EventGradeSubmitted {
		t.Errorf("EventType = %q, want %s", events[0].EventType, grading.EventGradeSubmitted)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestMemoryEventLogger_RequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		event grading.Event
	}{
		{"missing type", grading.Event{SessionID: "s"}},
		{"missing session", grading.Event{EventType: grading.EventGradeSubmitted}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := grading.NewMemoryEventLogger()
			if err := logger.LogEvent(t.Context(), tt.event); err == nil {
				t.Error("LogEvent() error = nil")
			}
			if n := len(logger.Events()); n != 0 {
				t.Errorf("len(events) = %d, want 0", n)
			}
		})
	}
}

func TestPostgresEventLogger_NilPool(t *testing.T) {
	logger := grading.NewPostgresEventLogger(nil)

	if err := logger.LogEvent(t.Context(), grading.Event{SessionID: "s", EventType: grading.EventGradeSubmitted}); err == nil {
		t.Fatal("expected error for nil pool")
	}
	if err := logger.EnsureSchema(t.Context()); err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestScriptDigest(t *testing.T) {
	a := grading.ScriptDigest("water_liters = 50")
	b := grading.ScriptDigest("water_liters = 50")
	c := grading.ScriptDigest("water_liters = 51")

	if a != b {
		t.Error("digest should be stable")
	}
	if a == c {
		t.Error("different scripts should have different digests")
	}
	if len(a) != 32 {
		t.Errorf("len(digest) = %d, want 32", len(a))
	}
}
