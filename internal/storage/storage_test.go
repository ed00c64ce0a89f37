package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionprobe/internal/logx"
	"sessionprobe/internal/probe"
)

var drivers = []string{"json", "bolt", "sqlite"}

func openTemp(t *testing.T, driver string) Store {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "history."+driver)}, logx.Nop())
	require.NoError(t, err)
	require.NotNil(t, st)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func item(id string, at time.Time) HistoryItem {
	off := uint(960)
	return HistoryItem{
		ID:        id,
		Timestamp: at,
		Endpoint:  "https://app.example:443",
		Request:   "GET /account HTTP/1.1",
		Config:    probe.Config{Match: "expired", MinOffset: 900, MaxOffset: 7200, Interval: 60},
		Summary: RunSummary{
			Status:         probe.StatusTimeoutDetected.String(),
			DetectedOffset: &off,
			Probes:         2,
			ElapsedSeconds: 1860,
		},
		Results: []probe.ProbeRecord{{Seq: 1, Offset: 900, StatusCode: 200}, {Seq: 2, Offset: 960, Matched: true}},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for _, driver := range drivers {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			st := openTemp(t, driver)
			base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

			require.NoError(t, st.Save(ctx, item("older", base)))
			require.NoError(t, st.Save(ctx, item("newer", base.Add(time.Minute))))

			list, err := st.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "newer", list[0].ID)
			assert.Equal(t, "older", list[1].ID)

			got, err := st.Get(ctx, "older")
			require.NoError(t, err)
			assert.Equal(t, "older", got.ID)
			require.NotNil(t, got.Summary.DetectedOffset)
			assert.Equal(t, uint(960), *got.Summary.DetectedOffset)
			assert.Len(t, got.Results, 2)
			assert.Equal(t, uint(7200), got.Config.MaxOffset)

			_, err = st.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreCapsHistory(t *testing.T) {
	for _, driver := range drivers {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			st := openTemp(t, driver)
			base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

			for i := 0; i < MaxItems+5; i++ {
				require.NoError(t, st.Save(ctx, item(fmt.Sprintf("run-%03d", i), base.Add(time.Duration(i)*time.Second))))
			}

			list, err := st.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, MaxItems)
			assert.Equal(t, fmt.Sprintf("run-%03d", MaxItems+4), list[0].ID)
			assert.Equal(t, "run-005", list[len(list)-1].ID)

			_, err = st.Get(ctx, "run-000")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreReopen(t *testing.T) {
	for _, driver := range drivers {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			cfg := Config{Driver: driver, Path: filepath.Join(t.TempDir(), "h")}

			st, err := Open(cfg, logx.Logger{})
			require.NoError(t, err)
			require.NoError(t, st.Save(ctx, item("persisted", time.Now())))
			require.NoError(t, st.Close())

			st, err = Open(cfg, logx.Logger{})
			require.NoError(t, err)
			defer st.Close()
			got, err := st.Get(ctx, "persisted")
			require.NoError(t, err)
			assert.Equal(t, "persisted", got.ID)
		})
	}
}

func TestOpenDrivers(t *testing.T) {
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	assert.NoError(t, err)
	assert.Nil(t, st)

	_, err = Open(Config{Driver: "postgres", Path: filepath.Join(t.TempDir(), "x")}, logx.Nop())
	assert.True(t, errors.Is(err, ErrUnknownDriver))

	assert.Equal(t, "history.db", filepath.Base(DefaultPath("bbolt")))
	assert.Equal(t, "history.sqlite", filepath.Base(DefaultPath("sqlite3")))
	assert.Equal(t, "history.json", filepath.Base(DefaultPath("")))
}

func TestNewItem(t *testing.T) {
	off := uint(120)
	st := probe.RunState{
		Status:         probe.StatusTimeoutDetected,
		DetectedOffset: &off,
		Probes:         3,
		Elapsed:        250,
		StartedAt:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	base := probe.BaseRequest{
		Endpoint: probe.Endpoint{Host: "h", Port: 8443, Secure: true},
		Raw:      []byte("GET /me HTTP/1.1\r\nHost: h\r\n\r\n"),
	}

	it := NewItem("id-1", base, probe.Config{Match: "x", MinOffset: 60, MaxOffset: 120, Interval: 30}, st, nil, 12.5, 40)
	assert.Equal(t, "https://h:8443", it.Endpoint)
	assert.Equal(t, "GET /me HTTP/1.1", it.Request)
	assert.Equal(t, "timeout_detected", it.Summary.Status)
	assert.Equal(t, uint(120), *it.Summary.DetectedOffset)
	assert.Equal(t, int64(250), it.Summary.ElapsedSeconds)
	assert.Equal(t, st.StartedAt, it.Timestamp)

	st.Status = probe.StatusCompleted
	st.DetectedOffset = nil
	st.Err = &probe.TransportError{Offset: 60, Err: errors.New("refused")}
	it = NewItem("id-2", base, probe.Config{}, st, nil, 0, 0)
	assert.Nil(t, it.Summary.DetectedOffset)
	assert.Contains(t, it.Summary.Error, "refused")
}
