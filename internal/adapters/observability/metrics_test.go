package observability_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"lender_directory/internal/adapters/observability"
	"lender_directory/internal/domain"
)

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	// record one sample so counters are non-zero
	observability.ObserveHTTP("/test", "GET", 200, 12*time.Millisecond)
	observability.ObserveStore(domain.TableLenders, "select", nil, time.Millisecond)

	mh := observability.MetricsHandler(reg)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mh.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	for _, name := range []string{"lenders_http_requests_total", "lenders_store_operations_total"} {
		if !strings.Contains(out, name) {
			t.Fatalf("expected %s in output", name)
		}
	}
}

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		"ok":          nil,
		"not_found":   fmt.Errorf("x: %w", domain.ErrNotFound),
		"constraint":  fmt.Errorf("x: %w", domain.ErrConstraint),
		"invalid":     fmt.Errorf("x: %w", domain.ErrValidation),
		"unavailable": fmt.Errorf("x: %w", domain.ErrUnavailable),
		"error":       errors.New("boom"),
	}
	for want, err := range cases {
		if got := observability.Outcome(err); got != want {
			t.Fatalf("Outcome(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestReporterLogsAndCounts(t *testing.T) {
	var buf bytes.Buffer
	r := observability.NewReporter(zerolog.New(&buf))

	before := testutil.ToFloat64(observability.PartialFailures.WithLabelValues("attach"))
	r.ReportPartial("attach", "l1", errors.New("upload failed"))
	after := testutil.ToFloat64(observability.PartialFailures.WithLabelValues("attach"))

	if after-before != 1 {
		t.Fatalf("partial failure counter moved by %v", after-before)
	}
	if !strings.Contains(buf.String(), `"op":"attach"`) || !strings.Contains(buf.String(), "upload failed") {
		t.Fatalf("unexpected log line: %s", buf.String())
	}
}
