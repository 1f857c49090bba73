package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogger_InfoLineFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Infof("%s %s %d", "GET", "/index.html", 200)

	line := buf.String()
	if !strings.HasSuffix(line, "GET /index.html 200\n") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.HasPrefix(line, "[") {
		t.Fatalf("expected timestamp prefix, got %q", line)
	}
	if strings.Contains(line, "ERROR:") {
		t.Fatalf("info line should not carry ERROR prefix: %q", line)
	}
}

func TestLogger_ErrorLinePrefixed(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Errorf("could not open file: %s", "boom")

	line := buf.String()
	if !strings.Contains(line, "] ERROR: could not open file: boom\n") {
		t.Fatalf("unexpected error line: %q", line)
	}
}
