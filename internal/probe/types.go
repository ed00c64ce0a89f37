package probe

import (
	"net"
	"strconv"
	"time"
)

// Config describes one probing run. All offsets are in seconds.
type Config struct {
	Match     string `json:"match" yaml:"match" validate:"required"`
	MinOffset uint   `json:"min_offset" yaml:"min_offset"`
	MaxOffset uint   `json:"max_offset" yaml:"max_offset" validate:"gtefield=MinOffset"`
	Interval  uint   `json:"interval" yaml:"interval" validate:"gt=0"`
}

// Endpoint is where the captured request is sent.
type Endpoint struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Secure bool   `json:"secure"`
}

func (e Endpoint) Scheme() string {
	if e.Secure {
		return "https"
	}
	return "http"
}

// Addr returns host:port, filling in the scheme default when Port is unset.
func (e Endpoint) Addr() string {
	port := e.Port
	if port == 0 {
		port = 80
		if e.Secure {
			port = 443
		}
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}

func (e Endpoint) String() string {
	return e.Scheme() + "://" + e.Addr()
}

// BaseRequest is the captured request, reissued byte for byte on every probe.
type BaseRequest struct {
	Endpoint Endpoint `json:"endpoint"`
	Raw      []byte   `json:"raw"`
}

type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusTimeoutDetected
	StatusCompleted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusTimeoutDetected:
		return "timeout_detected"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	return s == StatusTimeoutDetected || s == StatusCompleted || s == StatusCancelled
}

// RunState is a point-in-time view of a run. Values handed out by the
// scheduler are never modified afterwards.
type RunState struct {
	Status         Status
	NextOffset     uint
	UntilNextProbe uint
	Elapsed        int64
	// Remaining is a best-effort countdown and may go negative.
	Remaining      int64
	DetectedOffset *uint
	Probes         int
	Err            error
	StartedAt      time.Time
	UpdatedAt      time.Time
}

// Detected returns the detected offset and whether one was found.
func (s RunState) Detected() (uint, bool) {
	if s.DetectedOffset == nil {
		return 0, false
	}
	return *s.DetectedOffset, true
}

// ProbeRecord is one issued probe.
type ProbeRecord struct {
	Seq        int           `json:"seq"`
	Offset     uint          `json:"offset"`
	At         time.Time     `json:"at"`
	Latency    time.Duration `json:"latency"`
	StatusCode int           `json:"status_code"`
	Bytes      int           `json:"bytes"`
	Matched    bool          `json:"matched"`
	Err        string        `json:"err,omitempty"`
}
