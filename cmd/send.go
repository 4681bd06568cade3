package cmd

import (
	"errors"
	"fmt"

	"github.com/audiolibrelab/voicenote/internal/service"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send [file]",
	Short: "Send an audio file as a voice note",
	Long: `Send an audio file to a conversation as a voice note. The file is
converted to Ogg/Opus first when its format is not voice compatible.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if conversationID == "" {
			return fmt.Errorf("no conversation specified, use --to <conversation-id>")
		}

		svc, closeEngine := newService(cmd)
		defer closeEngine()

		res, err := svc.SendFile(cmd.Context(), args[0], conversationID, caption)
		if err != nil {
			return errors.New(service.Notice(err))
		}
		printSendResult(res)

		return executePipeline(cmd.Context(), svc, &pipelineState{file: args[0]}, 's')
	},
}
