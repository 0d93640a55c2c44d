package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZeroLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := zeroLogger{log: zerolog.New(&buf)}

	l.Warn("reload failed", "layer", 2, "error", errors.New("busy"), "complete", false, "dangling")

	out := buf.String()
	for _, want := range []string{
		`"level":"warn"`,
		`"message":"reload failed"`,
		`"layer":2`,
		`"error":"busy"`,
		`"complete":false`,
		`"extra":"dangling"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %s is missing %s", out, want)
		}
	}
}

func TestZeroLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, false)
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug message written at info level: %q", buf.String())
	}

	buf.Reset()
	l = newLogger(&buf, true)
	l.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug message missing at debug level: %q", buf.String())
	}
}
