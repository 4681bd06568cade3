package audio

import (
	"errors"
	"strings"
	"testing"
)

type staticSources struct {
	sources []string
	err     error
}

func (s *staticSources) ListSources() ([]string, error) {
	return s.sources, s.err
}

func TestValidateSource_Success(t *testing.T) {
	lister := &staticSources{sources: []string{"alsa_output.pci.monitor", "alsa_input.usb-mic"}}

	err := ValidateSource(lister, "alsa_input.usb-mic")
	if err != nil {
		t.Errorf("Expected no error for valid single source, got: %v", err)
	}
}

func TestValidateSource_NotFound(t *testing.T) {
	lister := &staticSources{sources: []string{"alsa_output.pci.monitor"}}

	err := ValidateSource(lister, "alsa_input.nonexistent")
	if err == nil {
		t.Fatal("Expected error for nonexistent source")
	}
	if !strings.Contains(err.Error(), "source not found") {
		t.Errorf("Expected 'source not found' error, got: %v", err)
	}
}

func TestValidateSource_DuplicateDetection(t *testing.T) {
	lister := &staticSources{sources: []string{
		"bluez_input.headset",
		"bluez_input.headset", // True duplicate - same name appears twice
		"bluez_input.headset-2",
	}}

	err := ValidateSource(lister, "bluez_input.headset")
	if err == nil {
		t.Fatal("Expected error for duplicate sources")
	}
	if !strings.Contains(err.Error(), "duplicate sources detected") {
		t.Errorf("Expected 'duplicate sources detected' error, got: %v", err)
	}
}

func TestValidateSource_DefaultSkipsLookup(t *testing.T) {
	lister := &staticSources{err: errors.New("pactl not installed")}

	for _, name := range []string{"", "default"} {
		if err := ValidateSource(lister, name); err != nil {
			t.Errorf("Expected no error for %q, got: %v", name, err)
		}
	}
}

func TestValidateSource_ListerError(t *testing.T) {
	lister := &staticSources{err: errors.New("pactl not installed")}

	if err := ValidateSource(lister, "alsa_input.usb-mic"); err == nil {
		t.Error("Expected lister error to be returned")
	}
}

func TestFindSourceDuplicates_SimilarNames(t *testing.T) {
	all := []string{
		"alsa_input.usb-mic",
		"alsa_input.usb-mic-2", // Different device - NOT a duplicate
		"alsa_input.usb-mic.2",
	}

	duplicates := findSourceDuplicatesInList("alsa_input.usb-mic", all)
	if len(duplicates) != 1 {
		t.Errorf("Expected 1 match (itself), got %d: %v", len(duplicates), duplicates)
	}
}

func TestParsePactlSources(t *testing.T) {
	output := "0\talsa_output.pci-0000_00_1f.3.analog-stereo.monitor\tmodule-alsa-card.c\ts16le 2ch 48000Hz\tSUSPENDED\n" +
		"1\talsa_input.pci-0000_00_1f.3.analog-stereo\tmodule-alsa-card.c\ts16le 2ch 48000Hz\tRUNNING\n" +
		"\n"

	sources := parsePactlSources(output)
	expected := []string{
		"alsa_output.pci-0000_00_1f.3.analog-stereo.monitor",
		"alsa_input.pci-0000_00_1f.3.analog-stereo",
	}
	if len(sources) != len(expected) {
		t.Fatalf("Expected %d sources, got %d: %v", len(expected), len(sources), sources)
	}
	for i := range expected {
		if sources[i] != expected[i] {
			t.Errorf("Source %d: expected %s, got %s", i, expected[i], sources[i])
		}
	}
}

func TestParseArecordDevices(t *testing.T) {
	output := "null\n" +
		"    Discard all samples (playback) or generate zero samples (capture)\n" +
		"default\n" +
		"    Default Audio Device\n" +
		"plughw:CARD=USB,DEV=0\n" +
		"    USB Audio, USB Audio\n" +
		"    Hardware device with all software conversions\n"

	devices := parseArecordDevices(output)
	expected := []string{"null", "default", "plughw:CARD=USB,DEV=0"}
	if len(devices) != len(expected) {
		t.Fatalf("Expected %d devices, got %d: %v", len(expected), len(devices), devices)
	}
	for i := range expected {
		if devices[i] != expected[i] {
			t.Errorf("Device %d: expected %s, got %s", i, expected[i], devices[i])
		}
	}
}
