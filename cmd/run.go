package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sessionprobe/internal/cli"
	"sessionprobe/internal/config"
)

var runOutPrefix string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one test without the TUI",
	Example: `  sessionprobe run -r account.txt -m "Your session has expired" --min 15m --max 2h --interval 5m
  sessionprobe run -r burp-export.xml -m "Please log in" --out report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runHeadless(cmd.Context(), cfg, runOutPrefix)
	},
}

func init() {
	addProbeFlags(runCmd.Flags())
	_ = runCmd.MarkFlagRequired("request")
	runCmd.Flags().StringVarP(&runOutPrefix, "out", "o", "", "output filename prefix for reports")
}

func runHeadless(ctx context.Context, cfg *config.Config, prefix string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	base, err := loadRequest(cfg)
	if err != nil {
		return err
	}
	if base == nil {
		return errors.New("no request: use --request FILE")
	}
	pcfg, err := cfg.ProbeConfig()
	if err != nil {
		return err
	}

	e, err := newEnv(cfg, verbose)
	if err != nil {
		return err
	}
	defer e.Close()

	_, err = cli.Run(ctx, cli.Options{
		Config:    pcfg,
		Base:      *base,
		Sender:    e.sender,
		Store:     e.store,
		OutPrefix: prefix,
		Logger:    e.log,
		Metrics:   e.metrics,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", errRunFailed, err)
	}
	return nil
}
