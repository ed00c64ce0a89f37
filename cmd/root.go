// Package cmd wires the sessionprobe command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"sessionprobe/internal/banner"
	"sessionprobe/internal/config"
)

var (
	cfgFile   string
	verbose   bool
	headless  bool
	outPrefix string
)

var rootCmd = &cobra.Command{
	Use:   "sessionprobe",
	Short: "sessionprobe - find out how long an idle session stays valid",
	Long: `
sessionprobe replays one captured, authenticated HTTP request after longer
and longer idle periods and reports the first idle time at which the server
answers with an expiry page.

It supports two modes:
1. TUI Mode (Default): Interactive Terminal UI
2. CLI Mode (Headless): --request FILE --headless, or the "run" command

Configuration is read from ./sessionprobe.yaml or ~/.sessionprobe.yaml.
Environment variables override it with the SESSIONPROBE_ prefix, e.g.
SESSIONPROBE_PROBE_MATCH="Your session has expired".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if headless {
			if cfg.Request.File == "" {
				return fmt.Errorf("--headless needs --request")
			}
			return runHeadless(cmd.Context(), cfg, outPrefix)
		}
		return runTUI(cfg)
	},
}

func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		_ = cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./sessionprobe.yaml or $HOME/.sessionprobe.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "also log to stderr (headless commands)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-file", "", "JSON log file (default ~/.sessionprobe/sessionprobe.log)")
	pf.String("storage", "", "history driver: json, bolt, sqlite, none")
	pf.String("storage-path", "", "history file (default under ~/.sessionprobe)")

	addProbeFlags(rootCmd.Flags())
	rootCmd.Flags().BoolVar(&headless, "headless", false, "run without the TUI (needs --request)")
	rootCmd.Flags().StringVarP(&outPrefix, "out", "o", "", "output filename prefix for reports (headless)")

	rootCmd.AddCommand(runCmd, targetCmd, historyCmd, configCmd)
}

// addProbeFlags registers the flags shared by the root and run commands.
func addProbeFlags(fs *pflag.FlagSet) {
	fs.StringP("request", "r", "", "raw HTTP request file or Burp XML export ('-' for stdin)")
	fs.StringP("target", "t", "", "endpoint override, e.g. https://app.example:8443")
	fs.Bool("plain", false, "use http when the endpoint comes from the Host header")
	fs.StringP("match", "m", "", "text that shows the session has expired")
	fs.String("min", "", "minimum session duration (e.g. 15m)")
	fs.String("max", "", "maximum session duration (e.g. 2h)")
	fs.String("interval", "", "step between probes (e.g. 1m)")
	fs.String("timeout", "", "per probe timeout (e.g. 30s)")
	fs.String("proxy", "", "proxy URL: http, https, socks5 or socks5h")
	fs.Bool("verify-tls", false, "verify TLS certificates")
	fs.Float64("rate-limit", 0, "max probes per second (0 = unlimited)")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"request":      "request.file",
	"target":       "request.target",
	"plain":        "request.plain",
	"match":        "probe.match",
	"min":          "probe.min",
	"max":          "probe.max",
	"interval":     "probe.interval",
	"timeout":      "http.timeout",
	"proxy":        "http.proxy",
	"verify-tls":   "http.verify_tls",
	"rate-limit":   "http.rate_limit",
	"metrics-addr": "metrics.addr",
	"log-level":    "log.level",
	"log-file":     "log.file",
	"storage":      "storage.driver",
	"storage-path": "storage.path",
}

// bindFlags binds the flags of the command being executed, so a flag
// defined on several commands always refers to the one in use.
func bindFlags(cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func initConfig() {
	config.InitViper(viper.GetViper(), cfgFile)
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}
