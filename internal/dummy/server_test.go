package dummy

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionprobe/internal/probe"
	"sessionprobe/internal/sender"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sleep lets the same clock drive the probe scheduler.
func (c *manualClock) Sleep(ctx context.Context, d time.Duration) error {
	c.Advance(d)
	return ctx.Err()
}

func get(t *testing.T, h http.Handler, path, id string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if id != "" {
		req.AddCookie(&http.Cookie{Name: CookieName, Value: id})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, string(body)
}

func TestSessionExpiresAfterIdleTTL(t *testing.T) {
	clock := newManualClock()
	target := NewTarget(ServerConfig{SessionTTL: 5 * time.Second, Now: clock.Now})
	id := target.Login()

	clock.Advance(5 * time.Second)
	_, body := get(t, target, "/account", id)
	assert.Contains(t, body, "Welcome back", "idle equal to the TTL is still valid")

	clock.Advance(3 * time.Second)
	_, body = get(t, target, "/account", id)
	assert.Contains(t, body, "Welcome back", "previous request refreshed the session")

	clock.Advance(6 * time.Second)
	_, body = get(t, target, "/account", id)
	assert.Contains(t, body, ExpiredMessage)

	// expired sessions do not come back
	_, body = get(t, target, "/account", id)
	assert.Contains(t, body, ExpiredMessage)
}

func TestLoginAndLogout(t *testing.T) {
	target := NewTarget(ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	rec := httptest.NewRecorder()
	target.ServeHTTP(rec, req)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)

	_, body := get(t, target, "/account", cookies[0].Value)
	assert.Contains(t, body, "Welcome back")

	get(t, target, "/logout", cookies[0].Value)
	_, body = get(t, target, "/account", cookies[0].Value)
	assert.Contains(t, body, ExpiredMessage)

	code, _ := get(t, target, "/account", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestSampleRequest(t *testing.T) {
	raw := string(SampleRequest("127.0.0.1:8080", "abc"))
	assert.True(t, strings.HasPrefix(raw, "GET /account HTTP/1.1\r\n"))
	assert.Contains(t, raw, "Host: 127.0.0.1:8080\r\n")
	assert.Contains(t, raw, "Cookie: SESSIONID=abc\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\n"))
}

func TestStartServesOnFreePort(t *testing.T) {
	srv, err := Start(ServerConfig{Port: 0})
	require.NoError(t, err)

	resp, err := http.Get("http://" + srv.Addr + "/login")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	http.DefaultClient.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}

func TestProbeFindsSessionTimeout(t *testing.T) {
	clock := newManualClock()
	target := NewTarget(ServerConfig{SessionTTL: 5 * time.Second, Now: clock.Now})
	srv := httptest.NewServer(target)
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	snd, err := sender.New(sender.DefaultConfig())
	require.NoError(t, err)
	sched := probe.NewScheduler(snd, probe.Options{Clock: clock})

	base := probe.BaseRequest{
		Endpoint: probe.Endpoint{Host: host, Port: port},
		Raw:      SampleRequest(srv.Listener.Addr().String(), target.Login()),
	}
	h, err := sched.Start(context.Background(), probe.Config{Match: ExpiredMessage, MinOffset: 1, MaxOffset: 10, Interval: 1}, base)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := h.Wait(ctx)
	require.NoError(t, err)

	require.Equal(t, probe.StatusTimeoutDetected, st.Status)
	off, _ := st.Detected()
	// the first gap longer than the 5s TTL
	assert.Equal(t, uint(6), off)
	assert.Equal(t, 6, st.Probes)
}
