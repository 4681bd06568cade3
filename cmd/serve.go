package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/voicenote/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control server",
	Long: `Start the voicenote HTTP server to record and send voice notes remotely.
This allows a chat client or a phone on the same network to drive the microphone.

The server will display the local network URL for easy access from other devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")
		if port == "" {
			port = cfg.Server.Port
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, closeEngine := newService(cmd)
		defer closeEngine()

		if warmup, _ := cmd.Flags().GetBool("warmup"); warmup {
			go func() {
				if _, err := svc.WarmUp(ctx); err != nil {
					slog.Warn("Engine warm-up failed", "error", err)
				}
			}()
		}

		slog.Info("voicenote server starting", "port", port, "config", cfgFile, "profile", cfg.Profile)

		// Start blocks until ctx is cancelled
		if err := server.New(svc, cfgFile, port).Start(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "", "port for the HTTP server (default from config)")
	serveCmd.Flags().Bool("warmup", false, "load the conversion engine at startup")
}
