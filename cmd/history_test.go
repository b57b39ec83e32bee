package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/shadecheck/internal/types"
)

func TestWriteCaptureTable(t *testing.T) {
	var buf bytes.Buffer
	writeCaptureTable(&buf, []types.CaptureRecord{
		{ID: strings.Repeat("ab", 32), FileName: "one.jpg", Width: 1280, Height: 720, Readiness: "Ready", CapturedAt: time.Now()},
		{ID: "short", FileName: "two.jpg", Width: 640, Height: 480, Label: "keeper", Readiness: "Ready", CapturedAt: time.Now()},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected header, rule and 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[2], strings.Repeat("ab", 6)+" ") {
		t.Errorf("Expected id shortened to 12 chars, got %q", lines[2])
	}
	if !strings.Contains(lines[2], "1280x720") || !strings.Contains(lines[2], " - ") {
		t.Errorf("Unexpected row %q", lines[2])
	}
	if !strings.Contains(lines[3], "keeper") {
		t.Errorf("Expected label in row %q", lines[3])
	}
}
