package audio

import (
	"bufio"
	"fmt"
	"os/exec"
	"strings"
)

// SourceLister lists capture sources known to the sound server
type SourceLister interface {
	ListSources() ([]string, error)
}

// PulseSources lists sources through pactl. Works for PulseAudio and pipewire-pulse.
type PulseSources struct{}

// ListSources returns all capture source names, monitors included
func (p *PulseSources) ListSources() ([]string, error) {
	output, err := exec.Command("pactl", "list", "short", "sources").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list pulse sources: %w", err)
	}
	return parsePactlSources(string(output)), nil
}

// parsePactlSources reads `pactl list short sources` output: index, name, driver, spec, state
func parsePactlSources(output string) []string {
	var sources []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		sources = append(sources, fields[1])
	}
	return sources
}

// ALSASources lists PCM capture devices through arecord
type ALSASources struct{}

func (a *ALSASources) ListSources() ([]string, error) {
	output, err := exec.Command("arecord", "-L").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list ALSA devices: %w", err)
	}
	return parseArecordDevices(string(output)), nil
}

// parseArecordDevices keeps the device names of `arecord -L`; description lines are indented
func parseArecordDevices(output string) []string {
	var devices []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		devices = append(devices, strings.TrimSpace(line))
	}
	return devices
}

// ValidateSource checks that a source exists exactly once
func ValidateSource(lister SourceLister, name string) error {
	if isDefaultSource(name) {
		return nil
	}
	all, err := lister.ListSources()
	if err != nil {
		return err
	}
	return validateSourceInList(name, all)
}

func isDefaultSource(name string) bool {
	return name == "" || name == "default"
}

func validateSourceInList(name string, all []string) error {
	if isDefaultSource(name) {
		return nil
	}

	duplicates := findSourceDuplicatesInList(name, all)
	if len(duplicates) == 0 {
		return fmt.Errorf("source not found: %s", name)
	}
	if len(duplicates) > 1 {
		return fmt.Errorf("duplicate sources detected for '%s': %v", name, duplicates)
	}
	return nil
}

// findSourceDuplicatesInList returns every exact match. Similar names such as
// "mic" and "mic-2" are different sources.
func findSourceDuplicatesInList(name string, all []string) []string {
	var matches []string
	for _, s := range all {
		if s == name {
			matches = append(matches, s)
		}
	}
	return matches
}
