package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a voice message from the microphone",
	Long: `Record a voice message from the configured source until Ctrl+C.
The recording is saved in the format picked for this machine. Add -p to
continue with other steps, e.g. 'voicenote record -p rs --to <id>'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeEngine := newService(cmd)
		defer closeEngine()

		path, err := recordOnce(cmd.Context(), svc, func() {
			slog.Info("Recording... Press Ctrl+C to stop")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			<-sigChan

			slog.Info("Stopping recording...")
		})
		if err != nil {
			return fmt.Errorf("recording failed: %w", err)
		}
		fmt.Printf("Saved %s\n", path)

		return executePipeline(cmd.Context(), svc, &pipelineState{file: path, recorded: true}, 'r')
	},
}
