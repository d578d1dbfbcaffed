package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestSimpleLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewSimpleLoggerWithWriter(&buf)

	l.Info("pool established", String("host", "DEV400"), Int("size", 3))

	out := buf.String()
	if !strings.Contains(out, "[INFO]") {
		t.Errorf("expected level marker, got: %s", out)
	}
	if !strings.Contains(out, "pool established") {
		t.Errorf("expected message, got: %s", out)
	}
	if !strings.Contains(out, "host=DEV400") || !strings.Contains(out, "size=3") {
		t.Errorf("expected fields, got: %s", out)
	}
}

func TestSimpleLoggerErrorField(t *testing.T) {
	var buf bytes.Buffer
	l := NewSimpleLoggerWithWriter(&buf)

	l.Warn("cleanup failed", Err(errors.New("socket closed")))

	if !strings.Contains(buf.String(), "error=socket closed") {
		t.Errorf("expected error field, got: %s", buf.String())
	}
}

func TestSetGlobalLogger(t *testing.T) {
	orig := Log
	defer SetGlobalLogger(orig)

	var buf bytes.Buffer
	SetGlobalLogger(NewSimpleLoggerWithWriter(&buf))
	Info("hello")

	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("expected global logger output, got: %s", buf.String())
	}
}

func TestNoOpLogger(t *testing.T) {
	l := NewNoOpLogger()
	// Must not panic or write anywhere.
	l.Debug("a")
	l.Info("b")
	l.Warn("c")
	l.Error("d", Err(errors.New("x")))
}
