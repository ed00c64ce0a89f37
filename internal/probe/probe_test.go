package probe

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTotalHorizon(t *testing.T) {
	tests := []struct {
		min, max, interval uint
		want               int64
	}{
		{1, 2, 1, 3},
		{1, 4, 1, 10},
		{5, 60, 5, 390},
		{1, 120, 1, 7260},
		{0, 0, 1, 0},
		{3, 3, 10, 3},
		{1, 10, 4, 1 + 5 + 9},
		{5, 4, 1, 0},
		{1, 10, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TotalHorizon(tt.min, tt.max, tt.interval), "TotalHorizon(%d,%d,%d)", tt.min, tt.max, tt.interval)
	}
}

func TestProbeCount(t *testing.T) {
	assert.Equal(t, 2, ProbeCount(1, 2, 1))
	assert.Equal(t, 12, ProbeCount(5, 60, 5))
	assert.Equal(t, 3, ProbeCount(1, 10, 4))
	assert.Equal(t, 0, ProbeCount(1, 10, 0))
}

func TestTotalHorizonSaturates(t *testing.T) {
	assert.Equal(t, int64(1<<61+1<<30), TotalHorizon(0, 1<<31, 1))
	assert.Equal(t, int64(math.MaxInt64), TotalHorizon(0, 1<<32, 1))
	assert.Equal(t, int64(math.MaxInt64), TotalHorizon(0, 1<<33, 1))
	assert.Equal(t, int64(math.MaxInt64), TotalHorizon(0, ^uint(0), 1))
	assert.Equal(t, int64(math.MaxInt64), TotalHorizon(^uint(0)-1, ^uint(0), 1))
	assert.Equal(t, int64(^uint(0)>>1), TotalHorizon(^uint(0)>>1, ^uint(0)>>1, 1))

	assert.Equal(t, math.MaxInt, ProbeCount(0, ^uint(0), 1))
	assert.Equal(t, 2, ProbeCount(^uint(0)-1, ^uint(0), 1))
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches([]byte("HTTP/1.1 200 OK\r\n\r\nYour session has expired"), "session has expired"))
	assert.False(t, Matches([]byte("Expired at the start"), "Expired"), "match at index 0 is ignored")
	assert.False(t, Matches([]byte("Expired. Expired"), "Expired"), "only the first occurrence counts")
	assert.False(t, Matches([]byte("welcome back"), "expired"))
	assert.False(t, Matches([]byte("anything"), ""))
	assert.False(t, Matches(nil, "x"))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, 200, StatusCode([]byte("HTTP/1.1 200 OK\r\nServer: x\r\n\r\n")))
	assert.Equal(t, 302, StatusCode([]byte("HTTP/2 302\n")))
	assert.Equal(t, 0, StatusCode([]byte("garbage")))
	assert.Equal(t, 0, StatusCode([]byte("HTTP/1.1 2000 OK")))
	assert.Equal(t, 0, StatusCode(nil))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "timeout_detected", StatusTimeoutDetected.String())
	assert.False(t, StatusIdle.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusTimeoutDetected.Terminal())
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "https://example.com:443", Endpoint{Host: "example.com", Secure: true}.String())
	assert.Equal(t, "http://127.0.0.1:8080", Endpoint{Host: "127.0.0.1", Port: 8080}.String())
	assert.Equal(t, "http://[::1]:80", Endpoint{Host: "::1"}.String())
}

func TestRealClockSleep(t *testing.T) {
	var c RealClock
	assert.NoError(t, c.Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, c.Sleep(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
