package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{" warn ", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("JSON") != FormatJSON {
		t.Error("JSON not recognized")
	}
	if ParseFormat("text") != FormatText || ParseFormat("") != FormatText {
		t.Error("text is not the default")
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, FormatJSON)
	log.Debug("hidden")
	log.Info("exported", "overlays", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1:\n%s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["msg"] != "exported" || entry["overlays"] != float64(3) {
		t.Errorf("entry = %v", entry)
	}
	ts, _ := entry["time"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("time %q is not RFC3339: %v", ts, err)
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, FormatText)
	log.Debug("skipped shape", "shape", "slide_0_shape_1")
	out := buf.String()
	if !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "shape=slide_0_shape_1") {
		t.Errorf("output = %q", out)
	}
}

func TestGetLogger(t *testing.T) {
	if GetLogger() == nil {
		t.Fatal("GetLogger returned nil before InitLogger")
	}
	log := InitLogger(LevelError, FormatText)
	if GetLogger() != log {
		t.Error("GetLogger does not return the initialized logger")
	}
}
