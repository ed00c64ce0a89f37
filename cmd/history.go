package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sessionprobe/internal/storage"
	"sessionprobe/internal/timefmt"
	"sessionprobe/internal/tui/app"
	"sessionprobe/internal/tui/styles"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List, show and export stored runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeEnv, err := openHistory()
		if err != nil {
			return err
		}
		defer closeEnv()

		items, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No history found.")
			return nil
		}
		fmt.Println(historyTable(items))
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print one stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeEnv, err := openHistory()
		if err != nil {
			return err
		}
		defer closeEnv()

		item, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(item)
		case "yaml":
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(item)
		default:
			return fmt.Errorf("unknown format %q (json, yaml)", format)
		}
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export ID",
	Short: "Write CSV and JSON reports for one stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeEnv, err := openHistory()
		if err != nil {
			return err
		}
		defer closeEnv()

		item, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		prefix, _ := cmd.Flags().GetString("out")
		if prefix == "" {
			prefix = "sessionprobe_history_" + item.ID
		}
		if err := app.ExportRun(item, prefix); err != nil {
			return err
		}
		fmt.Printf("✅ Reports saved to %s.{csv,json,_summary.json}\n", prefix)
		return nil
	},
}

func init() {
	historyShowCmd.Flags().StringP("format", "f", "json", "output format: json or yaml")
	historyExportCmd.Flags().StringP("out", "o", "", "output filename prefix")
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyExportCmd)
}

func openHistory() (storage.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	e, err := newEnv(cfg, verbose)
	if err != nil {
		return nil, nil, err
	}
	if e.store == nil {
		e.Close()
		return nil, nil, errors.New("history is disabled (storage.driver: none)")
	}
	return e.store, e.Close, nil
}

func historyTable(items []storage.HistoryItem) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.ColorBorder)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Active.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("ID", "STARTED", "ENDPOINT", "STATUS", "TIMEOUT", "PROBES")

	for _, it := range items {
		detected := "-"
		if it.Summary.DetectedOffset != nil {
			detected = timefmt.Format(int64(*it.Summary.DetectedOffset))
		}
		t.Row(
			it.ID,
			it.Timestamp.Local().Format("2006-01-02 15:04:05"),
			it.Endpoint,
			it.Summary.Status,
			detected,
			strconv.Itoa(it.Summary.Probes),
		)
	}
	return t.Render()
}
