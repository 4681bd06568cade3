package play

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// players in order of preference
var players = []string{"vlc", "mpv", "ffplay", "aplay"}

type Player struct {
	lookPath func(string) (string, error)
}

func New() *Player {
	return &Player{lookPath: exec.LookPath}
}

// Play previews an audio file with the first available player and waits for it to finish
func (p *Player) Play(audioFile string) error {
	if _, err := os.Stat(audioFile); err != nil {
		return fmt.Errorf("audio file not found: %s", audioFile)
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return fmt.Errorf("no suitable audio player found: %w", err)
	}

	args, err := playerArgs(player, audioFile)
	if err != nil {
		return err
	}

	slog.Info("Playing voice note", "file", audioFile, "player", player)
	cmd := exec.Command(player, args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}
	return nil
}

func (p *Player) findAudioPlayer() (string, error) {
	for _, player := range players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}
	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(players, ", "))
}

func playerArgs(player, audioFile string) ([]string, error) {
	switch player {
	case "vlc":
		return []string{"--intf", "dummy", "--play-and-exit", audioFile}, nil
	case "mpv":
		return []string{"--no-video", audioFile}, nil
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "error", audioFile}, nil
	case "aplay":
		// aplay only decodes WAV
		if !strings.EqualFold(filepath.Ext(audioFile), ".wav") {
			return nil, fmt.Errorf("aplay requires WAV input, got %s", filepath.Base(audioFile))
		}
		return []string{audioFile}, nil
	}
	return nil, fmt.Errorf("unsupported player: %s", player)
}
