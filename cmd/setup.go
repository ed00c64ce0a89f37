package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sessionprobe/internal/capture"
	"sessionprobe/internal/config"
	"sessionprobe/internal/logx"
	"sessionprobe/internal/metrics"
	"sessionprobe/internal/probe"
	"sessionprobe/internal/sender"
	"sessionprobe/internal/storage"
)

// env holds everything a probe run needs besides its parameters.
type env struct {
	cfg     *config.Config
	log     logx.Logger
	store   storage.Store
	sender  *sender.Sender
	metrics *metrics.Metrics

	closers    []io.Closer
	metricsSrv *metrics.Server
}

func newEnv(cfg *config.Config, console bool) (*env, error) {
	log, closer, err := logx.New(cfg.LogConfig(console))
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	e := &env{cfg: cfg, log: log, closers: []io.Closer{closer}}

	e.sender, err = sender.New(cfg.SenderConfig())
	if err != nil {
		e.Close()
		return nil, err
	}

	e.store, err = storage.Open(cfg.StorageConfig(), log)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("history: %w", err)
	}
	if e.store != nil {
		e.closers = append(e.closers, e.store)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	e.metrics = metrics.New(reg)
	if addr := cfg.Metrics.Addr; addr != "" {
		e.metricsSrv, err = metrics.Serve(addr, reg, log)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("metrics: %w", err)
		}
	}
	return e, nil
}

func (e *env) Close() {
	if e.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = e.metricsSrv.Shutdown(ctx)
		cancel()
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close: %v\n", err)
		}
	}
}

func (e *env) scheduler() *probe.Scheduler {
	return probe.NewScheduler(e.sender, probe.Options{
		Logger:  e.log,
		Metrics: e.metrics,
	})
}

// loadRequest reads the configured request; nil when none is configured.
func loadRequest(cfg *config.Config) (*probe.BaseRequest, error) {
	r := cfg.Request
	switch r.File {
	case "":
		return nil, nil
	case "-":
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		base, err := capture.FromRaw(raw, r.Target, r.Plain)
		if err != nil {
			return nil, err
		}
		return &base, nil
	default:
		base, err := capture.LoadFile(r.File, r.Target, r.Plain)
		if err != nil {
			return nil, err
		}
		return &base, nil
	}
}

var errRunFailed = errors.New("run failed")
