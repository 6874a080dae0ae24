package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Debug("hidden")
	logger.Info("submission graded", "passed", true)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["msg"] != "submission graded" || rec["passed"] != true {
		t.Errorf("record = %v", rec)
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "debug", Format: "text"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("script executed", "runtime", "lua")
	if !strings.Contains(buf.String(), "runtime=lua") {
		t.Errorf("output = %q, want runtime=lua", buf.String())
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, Options{Level: "info", Format: "xml"}); err == nil {
		t.Error("New() should reject unknown formats")
	}
	if _, err := New(&bytes.Buffer{}, Options{Level: "chatty"}); err == nil {
		t.Error("New() should reject unknown levels")
	}
}

func TestNew_JournalFallsBack(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "info", Journal: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("still logs locally")
	if !strings.Contains(buf.String(), "still logs locally") {
		t.Errorf("output = %q, want the local record", buf.String())
	}
}

func TestJournalKey(t *testing.T) {
	if got := journalKey("session_id.v2"); got != "SESSION_ID_V2" {
		t.Errorf("journalKey() = %q, want SESSION_ID_V2", got)
	}
}

func TestJournalOptions_Level(t *testing.T) {
	opts := journalOptions(slog.LevelWarn)
	if opts.Level == nil || opts.Level.Level() != slog.LevelWarn {
		t.Errorf("journal level = %v, want %v", opts.Level, slog.LevelWarn)
	}
	if got := opts.ReplaceAttr(nil, slog.String("node.title", "x")); got.Key != "NODE_TITLE" {
		t.Errorf("ReplaceAttr() key = %q, want NODE_TITLE", got.Key)
	}
}
