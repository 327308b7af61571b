package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("Level.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"WARN", WarnLevel},
		{"WARNING", WarnLevel},
		{"error", ErrorLevel},
		{"invalid", InfoLevel}, // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestJSONLogger_Output(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	logger.Info("segment sealed", SegmentID(3), Bytes(16777216))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v", err)
	}

	if entry.Level != "INFO" {
		t.Errorf("Expected level INFO, got %s", entry.Level)
	}
	if entry.Message != "segment sealed" {
		t.Errorf("Expected message 'segment sealed', got %s", entry.Message)
	}
	if entry.Fields["segment_id"] != float64(3) {
		t.Errorf("Expected segment_id 3, got %v", entry.Fields["segment_id"])
	}
}

func TestJSONLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, WarnLevel)

	logger.Debug("suppressed")
	logger.Info("suppressed")
	logger.Warn("emitted")

	if lines := bytes.Count(buf.Bytes(), []byte("\n")); lines != 1 {
		t.Errorf("Expected 1 log line, got %d", lines)
	}
}

func TestJSONLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	child := logger.With(Component("compactor"))
	child.Info("run complete", Records(42))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v", err)
	}

	if entry.Fields["component"] != "compactor" {
		t.Errorf("Expected component field from parent, got %v", entry.Fields["component"])
	}
	if entry.Fields["records"] != float64(42) {
		t.Errorf("Expected records 42, got %v", entry.Fields["records"])
	}
}

func TestErrorField(t *testing.T) {
	f := Error(errors.New("disk full"))
	if f.Key != "error" || f.Value != "disk full" {
		t.Errorf("Unexpected error field: %+v", f)
	}

	f = Error(nil)
	if f.Value != nil {
		t.Errorf("Expected nil value for nil error, got %v", f.Value)
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Info("dropped")
	if logger.With(Component("x")).GetLevel() != InfoLevel {
		t.Error("NopLogger should report InfoLevel")
	}
}
