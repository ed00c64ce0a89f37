package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionprobe/internal/dummy"
	"sessionprobe/internal/logx"
	"sessionprobe/internal/probe"
	"sessionprobe/internal/sender"
	"sessionprobe/internal/storage"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

func startTarget(t *testing.T, clock *stepClock) (probe.BaseRequest, *dummy.Target) {
	t.Helper()
	target := dummy.NewTarget(dummy.ServerConfig{SessionTTL: 5 * time.Second, Now: clock.Now})
	srv := httptest.NewServer(target)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	id := target.Login()
	return probe.BaseRequest{
		Endpoint: probe.Endpoint{Host: host, Port: port},
		Raw:      dummy.SampleRequest(srv.Listener.Addr().String(), id),
	}, target
}

func newSender(t *testing.T) *sender.Sender {
	t.Helper()
	s, err := sender.New(sender.DefaultConfig())
	require.NoError(t, err)
	return s
}

func TestRunDetectsTimeout(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	base, _ := startTarget(t, clock)

	dir := t.TempDir()
	store, err := storage.Open(storage.Config{Driver: "json", Path: filepath.Join(dir, "history.json")}, logx.Nop())
	require.NoError(t, err)
	defer store.Close()

	var out bytes.Buffer
	prefix := filepath.Join(dir, "report")
	st, err := Run(context.Background(), Options{
		Config:    probe.Config{Match: dummy.ExpiredMessage, MinOffset: 1, MaxOffset: 10, Interval: 1},
		Base:      base,
		Sender:    newSender(t),
		Store:     store,
		OutPrefix: prefix,
		Clock:     clock,
		Out:       &out,
		NoSignals: true,
	})
	require.NoError(t, err)
	assert.Equal(t, probe.StatusTimeoutDetected, st.Status)
	off, ok := st.Detected()
	require.True(t, ok)
	assert.Equal(t, uint(6), off)

	text := out.String()
	assert.Contains(t, text, "STARTING SESSION TIMEOUT TEST")
	assert.Contains(t, text, "Session timeout detected: 0:00:06")
	assert.Contains(t, text, "Testing interval")
	assert.Contains(t, text, "Reports saved")

	items, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "timeout_detected", items[0].Summary.Status)
	require.NotNil(t, items[0].Summary.DetectedOffset)
	assert.Equal(t, uint(6), *items[0].Summary.DetectedOffset)

	for _, f := range []string{prefix + ".csv", prefix + ".json", prefix + "_summary.json"} {
		_, err := os.Stat(f)
		assert.NoError(t, err, f)
	}
	data, err := os.ReadFile(prefix + ".json")
	require.NoError(t, err)
	var recs []probe.ProbeRecord
	require.NoError(t, json.Unmarshal(data, &recs))
	assert.Len(t, recs, 6)
	assert.True(t, recs[5].Matched)
}

func TestRunInvalidConfig(t *testing.T) {
	var out bytes.Buffer
	_, err := Run(context.Background(), Options{
		Config:    probe.Config{Match: "", MinOffset: 5, MaxOffset: 1, Interval: 0},
		Base:      probe.BaseRequest{Endpoint: probe.Endpoint{Host: "x"}, Raw: []byte("GET / HTTP/1.1\r\n\r\n")},
		Sender:    newSender(t),
		Out:       &out,
		NoSignals: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, probe.ErrValidation))
	assert.Contains(t, out.String(), "❌")
}

func TestRunTransportError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	var out bytes.Buffer
	st, err := Run(context.Background(), Options{
		Config:    probe.Config{Match: "expired", MinOffset: 0, MaxOffset: 3, Interval: 1},
		Base:      probe.BaseRequest{Endpoint: probe.Endpoint{Host: "127.0.0.1", Port: port}, Raw: []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n")},
		Sender:    newSender(t),
		Clock:     &stepClock{},
		Out:       &out,
		NoSignals: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, probe.ErrTransport)
	assert.Equal(t, probe.StatusCompleted, st.Status)
	assert.Contains(t, out.String(), "Test aborted")
}

func TestRunCancelled(t *testing.T) {
	clock := &stepClock{}
	base, _ := startTarget(t, clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	st, err := Run(ctx, Options{
		Config:    probe.Config{Match: dummy.ExpiredMessage, MinOffset: 1, MaxOffset: 10, Interval: 1},
		Base:      base,
		Sender:    newSender(t),
		Clock:     clock,
		Out:       &out,
		NoSignals: true,
	})
	require.NoError(t, err)
	assert.Equal(t, probe.StatusCancelled, st.Status)
	assert.Contains(t, out.String(), "Test cancelled.")
}

func TestProgressLine(t *testing.T) {
	line := progressLine(probe.RunState{NextOffset: 60, UntilNextProbe: 30, Elapsed: 90, Remaining: 90}, 180)
	assert.Contains(t, line, " 50%")
	assert.Contains(t, line, "Testing interval 0:01:00")
	assert.Contains(t, line, "Next test 0:00:30")
	assert.Contains(t, line, "Remaining 0:01:30")

	assert.Contains(t, progressLine(probe.RunState{Elapsed: 400, Remaining: -1}, 180), "100%")
	assert.Equal(t, "[██████████----------]", progressBar(0.5, 20))
}

// gatedWriter holds the first progress write until gate closes, so the
// scheduler runs ahead and overflows a small update buffer.
type gatedWriter struct {
	buf  bytes.Buffer
	gate chan struct{}
	held bool
}

func (w *gatedWriter) Write(p []byte) (int, error) {
	if !w.held && bytes.HasPrefix(p, []byte("\r[")) {
		w.held = true
		<-w.gate
	}
	return w.buf.Write(p)
}

type lastCallSender struct {
	mu    sync.Mutex
	calls int
	last  int
	gate  chan struct{}
}

func (s *lastCallSender) Send(context.Context, probe.Endpoint, []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls == s.last {
		close(s.gate)
		return []byte("HTTP/1.1 200 OK\r\n\r\n<p>session expired</p>"), nil
	}
	return []byte("HTTP/1.1 200 OK\r\n\r\n<p>welcome</p>"), nil
}

func TestRunPrintsEveryProbeWhenSnapshotsAreDropped(t *testing.T) {
	gate := make(chan struct{})
	out := &gatedWriter{gate: gate}
	st, err := Run(context.Background(), Options{
		Config:       probe.Config{Match: "expired", MinOffset: 0, MaxOffset: 10, Interval: 1},
		Base:         probe.BaseRequest{Endpoint: probe.Endpoint{Host: "app.example"}, Raw: []byte("GET / HTTP/1.1\r\nHost: app.example\r\n\r\n")},
		Sender:       &lastCallSender{last: 4, gate: gate},
		Clock:        &stepClock{},
		UpdateBuffer: 1,
		Out:          out,
		NoSignals:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, probe.StatusTimeoutDetected, st.Status)

	text := out.buf.String()
	assert.Equal(t, 4, strings.Count(text, " probe #"))
	for i := 1; i <= 4; i++ {
		assert.Contains(t, text, "probe #"+strconv.Itoa(i)+" ")
	}
	assert.Equal(t, 1, strings.Count(text, "⏰"))
}

func TestPrintProbes(t *testing.T) {
	res := []probe.ProbeRecord{
		{Seq: 1, Offset: 60, StatusCode: 200},
		{Seq: 2, Offset: 120, Err: "connection refused"},
		{Seq: 3, Offset: 180, Matched: true},
	}
	var out bytes.Buffer
	assert.Equal(t, 1, printProbes(&out, res[:1], 0))
	assert.Equal(t, 3, printProbes(&out, res, 1))
	assert.Equal(t, 3, printProbes(&out, res, 3))

	text := out.String()
	assert.Equal(t, 3, strings.Count(text, " probe #"))
	assert.Contains(t, text, "❌ probe #2 at 0:02:00 idle: connection refused")
	assert.Contains(t, text, "⏰ probe #3 at 0:03:00 idle")
}
