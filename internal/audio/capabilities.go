package audio

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Capabilities is the set of ffmpeg muxers and encoders available at runtime
type Capabilities struct {
	muxers   map[string]bool
	encoders map[string]bool
}

// NewCapabilities builds a capability set from muxer and encoder names
func NewCapabilities(muxers, encoders []string) Capabilities {
	c := Capabilities{
		muxers:   make(map[string]bool, len(muxers)),
		encoders: make(map[string]bool, len(encoders)),
	}
	for _, m := range muxers {
		c.muxers[m] = true
	}
	for _, e := range encoders {
		c.encoders[e] = true
	}
	return c
}

func (c Capabilities) HasMuxer(name string) bool {
	return c.muxers[name]
}

func (c Capabilities) HasEncoder(name string) bool {
	return c.encoders[name]
}

// Muxers returns the sorted muxer names
func (c Capabilities) Muxers() []string {
	return sortedKeys(c.muxers)
}

// Encoders returns the sorted encoder names
func (c Capabilities) Encoders() []string {
	return sortedKeys(c.encoders)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ProbeCapabilities queries ffmpeg for its muxers and encoders. Both listings are
// fetched concurrently.
func ProbeCapabilities(ctx context.Context, ffmpegPath string) (Capabilities, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	var muxers, encoders []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := runListing(gctx, ffmpegPath, "-muxers")
		if err != nil {
			return err
		}
		muxers = parseListing(out)
		return nil
	})
	g.Go(func() error {
		out, err := runListing(gctx, ffmpegPath, "-encoders")
		if err != nil {
			return err
		}
		encoders = parseListing(out)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Capabilities{}, fmt.Errorf("failed to probe ffmpeg capabilities: %w", err)
	}

	slog.Debug("ffmpeg capabilities probed", "muxers", len(muxers), "encoders", len(encoders))
	return NewCapabilities(muxers, encoders), nil
}

func runListing(ctx context.Context, ffmpegPath, flag string) (string, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", flag)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", ffmpegPath, flag, err)
	}
	return string(out), nil
}

// parseListing extracts component names from `ffmpeg -muxers` or `ffmpeg -encoders`
// output. Entries follow a dashed separator line and start with a flags column.
func parseListing(out string) []string {
	var names []string
	started := false
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !started {
			if strings.HasPrefix(line, "--") {
				started = true
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		for _, name := range strings.Split(fields[1], ",") {
			if name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
