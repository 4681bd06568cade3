package cmd

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/audiolibrelab/voicenote/internal/audio"
	"github.com/audiolibrelab/voicenote/internal/config"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio sources",
	Long:  `List the capture sources the configured backend can record from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// cfg is only loaded when --config was given
		sourcesCfg := cfg
		if sourcesCfg == nil {
			var err error
			if sourcesCfg, err = loadConfig(); err != nil {
				slog.Warn("Could not load configuration, using defaults", "error", err)
				sourcesCfg = config.Default()
			}
		}

		return listAvailableSources(sourcesCfg)
	},
}

func listAvailableSources(cfg *config.Config) error {
	sources, err := audio.NewSourceLister(cfg).ListSources()
	if err != nil {
		return fmt.Errorf("failed to get %s sources: %w", cfg.Audio.Backend, err)
	}

	fmt.Printf("🎙 Audio Sources (%s, backend %s)\n", runtime.GOOS, cfg.Audio.Backend)
	fmt.Printf("═══════════════════════════════════════\n\n")

	fmt.Printf("📋 SOURCES (%d found):\n", len(sources))
	for i, source := range sources {
		marker := " "
		if source == cfg.Source.Device {
			marker = "*"
		}
		fmt.Printf(" %s%d. %s\n", marker, i+1, source)
	}

	if err := audio.ValidateSource(audio.NewSourceLister(cfg), cfg.Source.Device); err != nil {
		fmt.Printf("\n⚠ configured source: %v\n", err)
	}

	fmt.Printf("\n💡 Usage:\n")
	fmt.Printf("  • Use \"default\" for the system default microphone\n")
	fmt.Printf("  • Configure in definitions.sources[].device and reference it with source.ref\n\n")

	return nil
}
