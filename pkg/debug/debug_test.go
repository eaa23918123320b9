package debug

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLogDisabledWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	SetEnabled(false)
	SetOutput(&buf)

	Log("hello %d", 1)
	LogTiming("load", time.Millisecond)
	LogIf(true, "cond")
	LogEnterExit("fn")()

	if buf.Len() != 0 {
		t.Errorf("expected no output when disabled, got %q", buf.String())
	}
}

func TestLogEnabled(t *testing.T) {
	var buf bytes.Buffer
	SetEnabled(true)
	SetOutput(&buf)
	defer SetEnabled(false)

	Log("listing %s", "/tmp")
	LogIf(false, "skipped")
	LogEnterExit("load")()

	out := buf.String()
	for _, want := range []string{"listing /tmp", "-> load", "<- load"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "skipped") {
		t.Error("LogIf(false) should not write")
	}
}
