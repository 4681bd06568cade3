package cmd

import (
	"errors"
	"fmt"

	"github.com/audiolibrelab/voicenote/internal/audio"
	"github.com/audiolibrelab/voicenote/internal/service"

	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert [file]",
	Short: "Convert an audio file into a voice note",
	Long: `Convert an audio file into a mono Ogg/Opus voice note. Files that are
already voice compatible are copied unchanged. The result is written to the
output directory unless -o is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := args[0]
		output, _ := cmd.Flags().GetString("output")

		svc, closeEngine := newService(cmd)
		defer closeEngine()

		if audio.RequiresConversion(audio.FormatForFile(input).MimeType) {
			fmt.Printf("Converting %s...\n", input)
		}
		path, err := svc.ConvertFile(cmd.Context(), input, output)
		if err != nil {
			return errors.New(service.Notice(err))
		}
		fmt.Printf("Voice note written to %s\n", path)

		return executePipeline(cmd.Context(), svc, &pipelineState{file: path}, 'c')
	},
}

func init() {
	convertCmd.Flags().StringP("output", "o", "", "output file (default: output directory)")
}
