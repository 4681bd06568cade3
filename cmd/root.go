package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/audiolibrelab/voicenote/internal/config"
	"github.com/audiolibrelab/voicenote/internal/service"

	"github.com/spf13/cobra"
)

var (
	cfg            *config.Config
	cfgFile        string
	pipeline       string
	profile        string
	conversationID string
	caption        string
	verboseLevel   int
)

var rootCmd = &cobra.Command{
	Use:   "voicenote [file]",
	Short: "Record, convert and send voice messages",
	Long: `voicenote captures voice messages from a microphone, converts them to
mono Ogg/Opus when the capture format is not accepted as a voice note,
and sends them to a chat backend.

When a file is provided, it acts as 'voicenote run [file]'.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		// For sources command, only load config if explicitly provided
		if cmd.Name() == "sources" && cfgFile == "" {
			return nil
		}

		var err error
		cfg, err = loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		return validatePipeline()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return runCmd.RunE(cmd, args)
		}
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/voicenote.yaml)")
	rootCmd.PersistentFlags().StringVarP(&pipeline, "pipeline", "p", "", "pipeline steps: r=record, c=convert, s=send, p=play (e.g., 'rcp', 'rs', 'cs')")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().StringVarP(&conversationID, "to", "t", "", "conversation id used by the send step")
	rootCmd.PersistentFlags().StringVar(&caption, "caption", "", "caption attached to the voice note")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=ffmpeg output, 3=max tracing")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(engineCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the selected profile. Without --config a missing default
// file falls back to the built-in configuration.
func loadConfig() (*config.Config, error) {
	explicit := cfgFile != ""
	if !explicit {
		cfgFile = os.ExpandEnv("$HOME/.config/voicenote.yaml")
	}

	if _, err := os.Stat(cfgFile); !explicit && errors.Is(err, fs.ErrNotExist) {
		if profile != "" && profile != "default" {
			return nil, fmt.Errorf("profile '%s' requested but %s does not exist", profile, cfgFile)
		}
		slog.Debug("No config file found, using built-in defaults", "path", cfgFile)
		return config.Default(), nil
	}

	return config.LoadWithProfile(cfgFile, profile)
}

// newService wires a service for the loaded config. The returned func releases the engine.
func newService(cmd *cobra.Command) (*service.VoiceNoteService, func()) {
	handle := service.NewEngineHandle(cfg)
	svc := service.NewFromConfig(cmd.Context(), cfg, cfgFile, handle)
	return svc, func() {
		if err := handle.Close(); err != nil {
			slog.Debug("Engine close failed", "error", err)
		}
	}
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	case 1, 2, 3:
		// Level 3 additionally raises the ffmpeg log level
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))

	if level >= 3 {
		os.Setenv("FFMPEG_LOGLEVEL", "debug")
	}
}
