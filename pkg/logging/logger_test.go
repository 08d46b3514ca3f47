package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestTextFormatOmitsBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Info("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written below min level, got %q", buf.String())
	}

	l.Error("boom", "code", 500)
	if !strings.Contains(buf.String(), "boom") || !strings.Contains(buf.String(), "code=500") {
		t.Fatalf("expected rendered line to contain msg and keyvals, got %q", buf.String())
	}
}

func TestWithAccumulatesFieldsAcrossFormats(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, LevelInfo).With("component", "store")
	l.Info("loaded", "count", 3)

	var record struct {
		Level  string         `json:"level"`
		Msg    string         `json:"msg"`
		Fields map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected valid JSON line, got %q: %v", buf.String(), err)
	}
	if record.Level != "INFO" || record.Msg != "loaded" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.Fields["component"] != "store" {
		t.Fatalf("expected component field from With() to survive, got %+v", record.Fields)
	}
	if record.Fields["count"] != float64(3) {
		t.Fatalf("expected count field from the call site, got %+v", record.Fields)
	}
}

func TestJSONFormatOneRecordPerLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, LevelDebug)
	l.Debug("first")
	l.Debug("second")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	for _, line := range lines {
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("expected each line to be valid JSON, got %q: %v", line, err)
		}
	}
}

func TestNopDiscardsEverything(t *testing.T) {
	l := Nop().With("component", "anything")
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
}
