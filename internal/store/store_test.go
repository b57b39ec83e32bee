package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/andresmejia3/shadecheck/internal/types"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Fatalf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("shadecheck_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Test Scenarios ---

	first := types.CaptureRecord{
		ID:        "aaaa1111",
		SessionID: "session-1",
		Location:  "/tmp/captures/one.jpg",
		FileName:  "one.jpg",
		MimeType:  "image/jpeg",
		SourceTag: "camera",
		Width:     1280,
		Height:    720,
		Readiness: "Ready",
		Debug:     types.Debug{MeanLuma: 128.5, Sharpness: 22},
	}
	second := first
	second.ID = "aaaa2222"
	second.SessionID = "session-2"
	second.Location = "/tmp/captures/two.jpg"
	second.FileName = "two.jpg"

	if err := s.InsertCapture(ctx, first); err != nil {
		t.Fatalf("InsertCapture failed: %v", err)
	}
	if err := s.InsertCapture(ctx, second); err != nil {
		t.Fatalf("InsertCapture failed: %v", err)
	}

	// Same bytes again must not duplicate
	if err := s.InsertCapture(ctx, first); err != nil {
		t.Fatalf("Re-inserting a capture failed: %v", err)
	}

	got, err := s.GetCapture(ctx, "aaaa1")
	if err != nil {
		t.Fatalf("GetCapture by prefix failed: %v", err)
	}
	if got.ID != first.ID || got.Width != 1280 || got.Readiness != "Ready" {
		t.Errorf("Unexpected capture %+v", got)
	}
	if got.Debug.MeanLuma < 128.5-1e-9 || got.Debug.MeanLuma > 128.5+1e-9 {
		t.Errorf("Expected mean luma 128.5, got %f", got.Debug.MeanLuma)
	}

	if _, err := s.GetCapture(ctx, "aaaa"); !errors.Is(err, ErrAmbiguous) {
		t.Errorf("Expected ErrAmbiguous, got %v", err)
	}
	if _, err := s.GetCapture(ctx, "ffff"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := s.LabelCapture(ctx, second.ID, "passport"); err != nil {
		t.Fatalf("LabelCapture failed: %v", err)
	}
	if err := s.LabelCapture(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound when labelling a missing capture, got %v", err)
	}

	captures, err := s.ListCaptures(ctx, 0)
	if err != nil {
		t.Fatalf("ListCaptures failed: %v", err)
	}
	if len(captures) != 2 {
		t.Fatalf("Expected 2 captures, got %d", len(captures))
	}
	labelled := 0
	for _, c := range captures {
		if c.Label == "passport" {
			labelled++
		}
	}
	if labelled != 1 {
		t.Errorf("Expected exactly one labelled capture, got %d", labelled)
	}

	limited, err := s.ListCaptures(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("Expected 1 capture with limit, got %d (%v)", len(limited), err)
	}

	// A retried hand-off in session-2 stores a new image; only the new one stays.
	retry := second
	retry.ID = "bbbb3333"
	retry.FileName = "three.jpg"
	if err := s.InsertCapture(ctx, retry); err != nil {
		t.Fatalf("InsertCapture for retry failed: %v", err)
	}
	if _, err := s.GetCapture(ctx, second.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Earlier attempt should be replaced, got %v", err)
	}
	captures, err = s.ListCaptures(ctx, 0)
	if err != nil || len(captures) != 2 {
		t.Errorf("Expected one record per session after retry, got %d (%v)", len(captures), err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.ListCaptures(ctx, 0); err == nil {
		t.Error("Expected query against dropped table to fail")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
