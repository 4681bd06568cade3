package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/audiolibrelab/voicenote/internal/audio"
	"github.com/audiolibrelab/voicenote/internal/packager"
	"github.com/audiolibrelab/voicenote/internal/transcode"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [file]",
	Short: "Show how a file would be handled and the resolved configuration",
	Long:  `Display the detected format of an audio file, whether it needs conversion before sending, and the resolved configuration of the active profile.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		format := audio.FormatForFile(path)
		fmt.Printf("=== FILE ===\n")
		fmt.Printf("path: %s\n", path)
		fmt.Printf("size: %d bytes\n", len(data))
		fmt.Printf("format: %s (%s)\n", format.DisplayName, format.MimeType)
		fmt.Printf("media_kind: %s\n", packager.ClassifyMediaKind(format.MimeType, filepath.Base(path)))
		fmt.Printf("requires_conversion: %t\n", audio.RequiresConversion(format.MimeType))

		if header, err := transcode.ReadVoiceNoteHeader(data); err == nil {
			fmt.Printf("opus: channels=%d sample_rate=%d pre_skip=%d\n", header.Channels, header.SampleRate, header.PreSkip)
			if err := transcode.ValidateVoiceNote(data); err != nil {
				fmt.Printf("voice_note: no (%v)\n", err)
			} else {
				fmt.Printf("voice_note: yes\n")
			}
		}

		fmt.Printf("\n=== RESOLVED CONFIGURATION (%s) ===\n", cfg.Profile)

		fmt.Printf("\n[Source]\n")
		fmt.Printf("name: %s\n", cfg.Source.Name)
		fmt.Printf("device: %s\n", cfg.Source.Device)

		fmt.Printf("\n[Audio]\n")
		fmt.Printf("backend: %s\n", cfg.Audio.Backend)
		fmt.Printf("sample_rate: %d\n", cfg.Audio.SampleRate)

		fmt.Printf("\n[Engine]\n")
		fmt.Printf("load_timeout: %s\n", cfg.Engine.GetLoadTimeout())
		fmt.Printf("failure_cooldown: %s\n", cfg.Engine.GetFailureCooldown())
		fmt.Printf("transcode_timeout: %s\n", cfg.Transcode.GetTimeout())

		fmt.Printf("\n[Upload]\n")
		fmt.Printf("base_url: %s\n", cfg.Upload.BaseURL)

		fmt.Printf("\n[Output]\n")
		fmt.Printf("directory: %s\n", cfg.Output.Directory)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
