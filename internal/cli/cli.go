// Package cli runs a probe without the TUI and prints progress to a
// terminal or a CI log.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sessionprobe/internal/capture"
	"sessionprobe/internal/logx"
	"sessionprobe/internal/metrics"
	"sessionprobe/internal/probe"
	"sessionprobe/internal/storage"
	"sessionprobe/internal/timefmt"
	"sessionprobe/internal/tui/app"
	"sessionprobe/internal/tui/result"
)

type Options struct {
	Config probe.Config
	Base   probe.BaseRequest
	Sender probe.Sender

	// Store receives the finished run; nil disables history.
	Store storage.Store
	// OutPrefix enables CSV/JSON reports at OutPrefix.{csv,json,_summary.json}.
	OutPrefix string

	Logger  logx.Logger
	Metrics *metrics.Metrics
	Clock   probe.Clock
	Tick    time.Duration
	// UpdateBuffer is the snapshot channel capacity; see probe.Options.
	UpdateBuffer int

	// Out defaults to os.Stdout.
	Out io.Writer
	// NoSignals leaves SIGINT handling to the caller.
	NoSignals bool
}

// Run executes one probe run to completion. The error is non-nil when the
// run could not start or ended on a transport failure; a cancelled run is
// not an error.
func Run(ctx context.Context, opts Options) (probe.RunState, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if !opts.NoSignals {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}

	sched := probe.NewScheduler(opts.Sender, probe.Options{
		Clock:        opts.Clock,
		Logger:       opts.Logger,
		Metrics:      opts.Metrics,
		Tick:         opts.Tick,
		UpdateBuffer: opts.UpdateBuffer,
	})

	h, err := sched.Start(ctx, opts.Config, opts.Base)
	if err != nil {
		fmt.Fprintf(out, "❌ %v\n", err)
		return probe.RunState{}, err
	}
	printHeader(out, h)

	horizon := probe.TotalHorizon(opts.Config.MinOffset, opts.Config.MaxOffset, opts.Config.Interval)
	// snapshots can be dropped when the buffer is full, so probe lines
	// follow the result list rather than the snapshots
	printed := 0
	for st := range h.Updates() {
		if st.Probes > printed {
			printed = printProbes(out, h.Results(), printed)
		}
		fmt.Fprintf(out, "\r%s", progressLine(st, horizon))
	}
	printProbes(out, h.Results(), printed)

	final := h.State()
	printSummary(out, h, final)

	res := h.Results()
	snap := h.Stats().Snapshot()
	item := storage.NewItem(h.ID(), h.Base(), h.Config(), final, res, snap.AvgLatencyMs, snap.P99LatencyMs)
	saveHistory(ctx, out, opts, item)
	writeReports(out, opts.OutPrefix, item)

	if final.Err != nil {
		return final, final.Err
	}
	return final, nil
}

func printHeader(w io.Writer, h *probe.Handle) {
	cfg := h.Config()
	fmt.Fprintf(w, "\n🔎 STARTING SESSION TIMEOUT TEST\n")
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Target      : %s\n", h.Base().Endpoint)
	fmt.Fprintf(w, "Request     : %s\n", capture.RequestLine(h.Base().Raw))
	fmt.Fprintf(w, "Match       : %q\n", cfg.Match)
	fmt.Fprintf(w, "Offsets     : %s .. %s every %s\n",
		timefmt.Format(int64(cfg.MinOffset)), timefmt.Format(int64(cfg.MaxOffset)), timefmt.Format(int64(cfg.Interval)))
	fmt.Fprintf(w, "Probes      : %d\n", probe.ProbeCount(cfg.MinOffset, cfg.MaxOffset, cfg.Interval))
	fmt.Fprintf(w, "Horizon     : %s\n", timefmt.Format(probe.TotalHorizon(cfg.MinOffset, cfg.MaxOffset, cfg.Interval)))
	fmt.Fprintf(w, "======================================================================\n\n")
}

func progressLine(st probe.RunState, horizon int64) string {
	pct := 1.0
	if horizon > 0 {
		pct = float64(st.Elapsed) / float64(horizon)
	}
	pct = max(0, min(pct, 1))
	return fmt.Sprintf("%s %3.0f%% | Testing interval %s | Next test %s | Elapsed %s | Remaining %s | Probes %d ",
		progressBar(pct, 20), pct*100,
		timefmt.Format(int64(st.NextOffset)),
		timefmt.Format(int64(st.UntilNextProbe)),
		timefmt.Format(st.Elapsed),
		timefmt.Format(st.Remaining),
		st.Probes,
	)
}

// printProbes prints res[from:] and returns the new count of printed records.
func printProbes(w io.Writer, res []probe.ProbeRecord, from int) int {
	for _, r := range res[min(from, len(res)):] {
		printProbe(w, r)
	}
	return max(from, len(res))
}

func printProbe(w io.Writer, r probe.ProbeRecord) {
	mark := "✅"
	detail := fmt.Sprintf("HTTP %d, %d bytes", r.StatusCode, r.Bytes)
	switch {
	case r.Err != "":
		mark, detail = "❌", r.Err
	case r.Matched:
		mark = "⏰"
	}
	fmt.Fprintf(w, "\r%-120s\r%s probe #%d at %s idle: %s (%s)\n",
		"", mark, r.Seq, timefmt.Format(int64(r.Offset)), detail, r.Latency.Round(time.Millisecond))
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	filled = max(0, min(filled, width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

func printSummary(w io.Writer, h *probe.Handle, st probe.RunState) {
	snap := h.Stats().Snapshot()

	fmt.Fprintf(w, "\n\n📊 RESULT\n")
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "%s\n\n", result.Verdict(st))
	fmt.Fprintf(w, "Elapsed        : %s\n", timefmt.Format(st.Elapsed))
	fmt.Fprintf(w, "Probes Sent    : %d\n", snap.Probes)
	fmt.Fprintf(w, "Failures       : %d\n", snap.Failed)
	if snap.Probes > 0 {
		fmt.Fprintf(w, "\n⏱️  PROBE LATENCY (ms)\n")
		fmt.Fprintf(w, "   Avg : %.2f\n", snap.AvgLatencyMs)
		fmt.Fprintf(w, "   P50 : %.2f\n", snap.P50LatencyMs)
		fmt.Fprintf(w, "   P99 : %.2f\n", snap.P99LatencyMs)
		fmt.Fprintf(w, "   Max : %.2f\n", snap.MaxLatencyMs)
	}
	fmt.Fprintf(w, "======================================================================\n")
}

func saveHistory(ctx context.Context, w io.Writer, opts Options, item storage.HistoryItem) {
	if opts.Store == nil {
		return
	}
	// the run context may already be cancelled by SIGINT
	if err := opts.Store.Save(context.WithoutCancel(ctx), item); err != nil {
		fmt.Fprintf(w, "⚠️  could not save history: %v\n", err)
		opts.Logger.Warn("history save failed", logx.String("run", item.ID), logx.Err(err))
	}
}

func writeReports(w io.Writer, prefix string, item storage.HistoryItem) {
	if prefix == "" {
		return
	}
	fmt.Fprintf(w, "\n💾 Generating reports with prefix: %s\n", prefix)
	if err := app.ExportRun(item, prefix); err != nil {
		fmt.Fprintf(w, "❌ report failed: %v\n", err)
		return
	}
	fmt.Fprintf(w, "✅ Reports saved to %s.{csv,json,_summary.json}\n", prefix)
}
