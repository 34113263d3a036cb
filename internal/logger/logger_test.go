package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"none", LevelNone},
		{"garbage", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(LevelWarn, &buf, "")

	l.Debug("dropped debug")
	l.Info("dropped info")
	l.Warn("kept warn")
	l.Error("kept error")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("low-severity messages should be filtered, got: %s", out)
	}
	if !strings.Contains(out, "kept warn") || !strings.Contains(out, "kept error") {
		t.Errorf("expected warn and error messages, got: %s", out)
	}
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(LevelInfo, &buf, "session")
	scoped := l.WithPrefix("planner")

	scoped.Info("hello")

	if !strings.Contains(buf.String(), "[session:planner]") {
		t.Errorf("expected nested prefix, got: %s", buf.String())
	}
}

func TestDiscardNeverWrites(t *testing.T) {
	l := Discard()
	l.Error("should vanish")
	if l.GetLevel() != LevelNone {
		t.Errorf("discard logger should report LevelNone, got %v", l.GetLevel())
	}
}

func TestNewFileEmptyPathDisables(t *testing.T) {
	l, err := NewFile(LevelInfo, "", "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Info("nowhere")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
