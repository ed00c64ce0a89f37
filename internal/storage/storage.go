// Package storage keeps the history of finished probe runs.
package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sessionprobe/internal/logx"
	"sessionprobe/internal/probe"
)

// MaxItems caps every store; older runs are dropped first.
const MaxItems = 100

var (
	ErrNotFound      = errors.New("storage: run not found")
	ErrUnknownDriver = errors.New("storage: unknown driver")
)

type HistoryItem struct {
	ID        string              `json:"id"`
	Timestamp time.Time           `json:"timestamp"`
	Endpoint  string              `json:"endpoint"`
	Request   string              `json:"request"`
	Config    probe.Config        `json:"config"`
	Summary   RunSummary          `json:"summary"`
	Results   []probe.ProbeRecord `json:"results"`
}

type RunSummary struct {
	Status         string  `json:"status"`
	DetectedOffset *uint   `json:"detected_offset,omitempty"`
	Probes         int     `json:"probes"`
	ElapsedSeconds int64   `json:"elapsed_seconds"`
	Error          string  `json:"error,omitempty"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	P99LatencyMs   float64 `json:"p99_latency_ms"`
}

// Store is the persistence API used by the CLI and the TUI. List returns
// newest first.
type Store interface {
	Save(ctx context.Context, item HistoryItem) error
	List(ctx context.Context) ([]HistoryItem, error)
	Get(ctx context.Context, id string) (HistoryItem, error)
	Close() error
}

type Config struct {
	Driver string
	Path   string
}

// DefaultDir is ~/.sessionprobe, or .sessionprobe when there is no home.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".sessionprobe"
	}
	return filepath.Join(home, ".sessionprobe")
}

// DefaultPath returns the history location for driver inside DefaultDir.
func DefaultPath(driver string) string {
	name := "history.json"
	switch normalizeDriver(driver) {
	case "bolt":
		name = "history.db"
	case "sqlite":
		name = "history.sqlite"
	}
	return filepath.Join(DefaultDir(), name)
}

// Open initializes the configured store.
// It returns (nil, nil) if history is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := normalizeDriver(cfg.Driver)
	if driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = DefaultPath(driver)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	log = log.With(logx.String("driver", driver), logx.String("path", cfg.Path))
	switch driver {
	case "json":
		return openJSON(cfg, log)
	case "bolt":
		return openBolt(cfg, log)
	case "sqlite":
		return openSQLite(cfg, log)
	default:
		return nil, errors.Join(ErrUnknownDriver, errors.New(cfg.Driver))
	}
}

func normalizeDriver(d string) string {
	switch d = strings.ToLower(strings.TrimSpace(d)); d {
	case "":
		return "json"
	case "bbolt":
		return "bolt"
	case "sqlite3":
		return "sqlite"
	case "off", "disabled":
		return "none"
	default:
		return d
	}
}

// NewItem builds a history entry from a finished run.
func NewItem(id string, base probe.BaseRequest, cfg probe.Config, st probe.RunState, results []probe.ProbeRecord, avgMs, p99Ms float64) HistoryItem {
	sum := RunSummary{
		Status:         st.Status.String(),
		Probes:         st.Probes,
		ElapsedSeconds: st.Elapsed,
		AvgLatencyMs:   avgMs,
		P99LatencyMs:   p99Ms,
	}
	if off, ok := st.Detected(); ok {
		sum.DetectedOffset = &off
	}
	if st.Err != nil {
		sum.Error = st.Err.Error()
	}
	ts := st.StartedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return HistoryItem{
		ID:        id,
		Timestamp: ts,
		Endpoint:  base.Endpoint.String(),
		Request:   firstLine(base.Raw),
		Config:    cfg,
		Summary:   sum,
		Results:   results,
	}
}

func firstLine(raw []byte) string {
	s := string(raw)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, "\r")
}
