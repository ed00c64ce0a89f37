package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"sessionprobe/internal/logx"
)

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	if m.ProbesTotal == nil || m.ProbeDuration == nil || m.RunsTotal == nil || m.ActiveRuns == nil || m.ProbeOffset == nil {
		t.Fatal("metrics not initialized")
	}
}

func TestRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RunStarted()
	m.SetOffset(120)
	m.ObserveProbe(OutcomeNoMatch, 50*time.Millisecond)
	m.ObserveProbe(OutcomeNoMatch, 70*time.Millisecond)
	m.ObserveProbe(OutcomeMatch, 60*time.Millisecond)

	if got := testutil.ToFloat64(m.ActiveRuns); got != 1 {
		t.Errorf("ActiveRuns = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ProbeOffset); got != 120 {
		t.Errorf("ProbeOffset = %v, want 120", got)
	}
	if got := testutil.ToFloat64(m.ProbesTotal.WithLabelValues(OutcomeNoMatch)); got != 2 {
		t.Errorf("no_match probes = %v, want 2", got)
	}

	m.RunFinished("timeout_detected")
	if got := testutil.ToFloat64(m.ActiveRuns); got != 0 {
		t.Errorf("ActiveRuns after finish = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("timeout_detected")); got != 1 {
		t.Errorf("RunsTotal = %v, want 1", got)
	}

	gathered, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if len(gathered) == 0 {
		t.Error("no metric families gathered")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RunStarted()
	m.SetOffset(1)
	m.ObserveProbe(OutcomeError, time.Second)
	m.RunFinished("completed")
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveProbe(OutcomeMatch, 10*time.Millisecond)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `sessionprobe_probes_total{outcome="match"} 1`) {
		t.Errorf("probes_total missing from output:\n%s", body)
	}
}

func TestServeAndShutdown(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	s, err := Serve("127.0.0.1:0", reg, logx.Nop())
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	resp, err := http.Get("http://" + s.Addr + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}

	var nilServer *Server
	if err := nilServer.Shutdown(ctx); err != nil {
		t.Errorf("nil Shutdown: %v", err)
	}
}
