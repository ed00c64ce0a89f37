package app

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"os"
	"strconv"

	"sessionprobe/internal/probe"
	"sessionprobe/internal/storage"
	"sessionprobe/internal/timefmt"
)

// ExportCSV writes one row per probe.
func ExportCSV(results []probe.ProbeRecord, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := []string{
		"seq", "timeStamp", "offsetSeconds", "offset", "latencyMs",
		"responseCode", "responseMessage", "bytes", "matched", "error",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		record := []string{
			strconv.Itoa(r.Seq),
			strconv.FormatInt(r.At.UnixMilli(), 10),
			strconv.FormatUint(uint64(r.Offset), 10),
			timefmt.Format(int64(r.Offset)),
			strconv.FormatInt(r.Latency.Milliseconds(), 10),
			strconv.Itoa(r.StatusCode),
			http.StatusText(r.StatusCode),
			strconv.Itoa(r.Bytes),
			strconv.FormatBool(r.Matched),
			r.Err,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// ExportJSON writes v as indented JSON.
func ExportJSON(v any, filename string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

// ExportRun writes prefix.csv (probes), prefix.json (probes) and
// prefix_summary.json (the whole run without the probe list).
func ExportRun(item storage.HistoryItem, prefix string) error {
	if err := ExportCSV(item.Results, prefix+".csv"); err != nil {
		return err
	}
	if err := ExportJSON(item.Results, prefix+".json"); err != nil {
		return err
	}
	summary := item
	summary.Results = nil
	return ExportJSON(summary, prefix+"_summary.json")
}
