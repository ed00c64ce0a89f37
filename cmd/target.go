package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sessionprobe/internal/banner"
	"sessionprobe/internal/dummy"
	"sessionprobe/internal/logx"
)

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Run a local demo server whose sessions expire after an idle period",
	Long: `Starts a small web application with idle-timeout sessions, logs in once
and prints a raw request that carries the fresh session cookie. Save it to a
file and point sessionprobe at it:

  sessionprobe target --ttl 90s --write account.txt
  sessionprobe run -r account.txt --plain -m "Your session has expired" --min 30s --max 3m --interval 30s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		write, _ := cmd.Flags().GetString("write")

		log := logx.NewConsole(os.Stderr, "info")
		srv, err := dummy.Start(dummy.ServerConfig{Port: port, SessionTTL: ttl, Logger: log})
		if err != nil {
			return err
		}

		id := srv.Login()
		raw := dummy.SampleRequest(srv.Addr, id)

		fmt.Println(banner.GetStringWithTagline("demo target"))
		fmt.Printf("Listening on  : http://%s\n", srv.Addr)
		fmt.Printf("Session TTL   : %s\n", ttl)
		fmt.Printf("Expiry text   : %q\n", dummy.ExpiredMessage)
		fmt.Printf("\nRequest with a fresh session:\n\n%s\n", raw)
		if write != "" {
			if err := os.WriteFile(write, raw, 0o600); err != nil {
				return err
			}
			fmt.Printf("💾 Request saved to %s\n", write)
		}
		fmt.Println("Press Ctrl+C to stop.")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	targetCmd.Flags().IntP("port", "p", 8080, "port to listen on (0 picks a free port)")
	targetCmd.Flags().Duration("ttl", 2*time.Minute, "idle time after which a session expires")
	targetCmd.Flags().StringP("write", "w", "", "also save the sample request to this file")
}
