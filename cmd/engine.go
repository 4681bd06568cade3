package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/audiolibrelab/voicenote/internal/service"

	"github.com/spf13/cobra"
)

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Manage the conversion engine",
}

var engineWarmupCmd = &cobra.Command{
	Use:   "warmup",
	Short: "Load the conversion engine ahead of the first conversion",
	Long: `Resolve the ffmpeg binary used for conversion, downloading it into the
cache directory when it is not installed, and report its version.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeEngine := newService(cmd)
		defer closeEngine()

		info, err := svc.WarmUp(cmd.Context())
		if err != nil {
			return errors.New(service.Notice(err))
		}

		fmt.Printf("engine ready in %s\n", info.LoadTime.Round(time.Millisecond))
		if info.Version != "" {
			fmt.Printf("version: %s\n", info.Version)
		}
		return nil
	},
}

func init() {
	engineCmd.AddCommand(engineWarmupCmd)
}
