package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rpattn/rollcall/internal/export"
	"github.com/rpattn/rollcall/internal/ingestion"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// execute runs the root command with args and returns its captured output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var ee *exitErr
	if !errors.As(err, &ee) {
		t.Fatalf("expected exitErr, got %v", err)
	}
	return ee.code
}

func TestIngestRequiresYear(t *testing.T) {
	_, err := execute(t, "ingest", "--config", t.TempDir(), "--start", "1", "--end", "3")
	if code := exitCode(t, err); code != exitUsage {
		t.Fatalf("expected usage exit code, got %d", code)
	}
	if !strings.Contains(err.Error(), "--year") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIngestRequiresRange(t *testing.T) {
	_, err := execute(t, "ingest", "--config", t.TempDir(), "--year", "2023")
	if err == nil || !strings.Contains(err.Error(), "start") {
		t.Fatalf("expected missing flag error, got %v", err)
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "export", "--config", t.TempDir(), "--format", "parquet")
	if code := exitCode(t, err); code != exitUsage {
		t.Fatalf("expected usage exit code, got %d", code)
	}
}

func TestMigrateRejectsUnknownDirection(t *testing.T) {
	if _, err := execute(t, "migrate", "--config", t.TempDir(), "sideways"); err == nil {
		t.Fatalf("expected invalid argument error")
	}
	if _, err := execute(t, "migrate", "--config", t.TempDir()); err == nil {
		t.Fatalf("expected missing argument error")
	}
}

func TestInvalidLogLevelIsUsageError(t *testing.T) {
	_, err := execute(t, "ingest", "--config", t.TempDir(), "--log-level", "loud", "--start", "1", "--end", "2", "--year", "2023")
	if code := exitCode(t, err); code != exitUsage {
		t.Fatalf("expected usage exit code, got %d", code)
	}
}

func TestServeMuxRoutes(t *testing.T) {
	registry := prometheus.NewRegistry()
	ingestService := ingestion.NewService(nil, nil, nil, ingestion.WithMetrics(ingestion.NewMetrics(registry)))
	exportService := export.NewService(nil)
	handler := newServeMux(zap.NewNop(), ingestService, exportService, registry, []string{"http://localhost:3000"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "rollcall_rows_written_total") {
		t.Fatalf("expected ingestion metrics to be exposed, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(`{"start":0,"end":1,"year":2023}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid ingest request to be rejected, got %d", rec.Code)
	}
}
