package config

import (
	"os"
	"strings"
	"testing"
)

const validConfig = `
active_config: office

globals:
  output:
    directory: /tmp/voicenote-global

definitions:
  sources:
    - id: builtin
      name: Built-in microphone
      device: default
    - id: headset
      name: USB headset
      device: plughw:CARD=USB,DEV=0
      backend: alsa

configs:
  default:
    source:
      ref: builtin
    engine:
      load_timeout: 45
    upload:
      base_url: https://chat.example.com
      token: default-token
  office:
    source:
      ref: headset
    transcode:
      timeout: 20
`

func TestValidateConfigurationFormat_ValidConfig(t *testing.T) {
	configFile := createTempConfig(t, validConfig)
	defer os.Remove(configFile)

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if rootConfig.ActiveConfig != "office" {
		t.Errorf("Expected active config 'office', got '%s'", rootConfig.ActiveConfig)
	}
	if rootConfig.Definitions == nil || len(rootConfig.Definitions.Sources) != 2 {
		t.Fatalf("Expected 2 source definitions, got %+v", rootConfig.Definitions)
	}
	def := rootConfig.Definitions.Sources[1]
	if def.ID != "headset" || def.Backend != "alsa" {
		t.Errorf("Invalid second definition: %+v", def)
	}

	office := rootConfig.Configs["office"]
	if office == nil || office.Source == nil || office.Source.Ref != "headset" {
		t.Fatalf("Expected office profile referencing headset, got %+v", office)
	}
}

func TestLoadWithProfile_ActiveProfileFallsBackToDefault(t *testing.T) {
	configFile := createTempConfig(t, validConfig)
	defer os.Remove(configFile)

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.Profile != "office" {
		t.Errorf("Expected profile 'office', got '%s'", cfg.Profile)
	}
	if cfg.Source.Device != "plughw:CARD=USB,DEV=0" {
		t.Errorf("Expected headset device, got '%s'", cfg.Source.Device)
	}
	if cfg.Audio.Backend != "alsa" {
		t.Errorf("Expected backend from source definition 'alsa', got '%s'", cfg.Audio.Backend)
	}
	if cfg.Transcode.Timeout != 20 {
		t.Errorf("Expected profile transcode timeout 20, got %d", cfg.Transcode.Timeout)
	}
	if cfg.Engine.LoadTimeout != 45 {
		t.Errorf("Expected load timeout inherited from default profile 45, got %d", cfg.Engine.LoadTimeout)
	}
	if cfg.Upload.BaseURL != "https://chat.example.com" || cfg.Upload.Token != "default-token" {
		t.Errorf("Expected upload settings inherited from default profile, got %+v", cfg.Upload)
	}
	if cfg.Upload.UploadPath != "/api/media/upload" {
		t.Errorf("Expected built-in upload path, got '%s'", cfg.Upload.UploadPath)
	}
	if cfg.Output.Directory != "/tmp/voicenote-global" {
		t.Errorf("Expected global output directory, got '%s'", cfg.Output.Directory)
	}
}

func TestLoadWithProfile_ExplicitProfile(t *testing.T) {
	configFile := createTempConfig(t, validConfig)
	defer os.Remove(configFile)

	cfg, err := LoadWithProfile(configFile, "default")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Source.ID != "builtin" || cfg.Source.Device != "default" {
		t.Errorf("Expected builtin source, got %+v", cfg.Source)
	}
	if cfg.Transcode.Timeout != 30 {
		t.Errorf("Expected built-in transcode timeout 30, got %d", cfg.Transcode.Timeout)
	}
}

func TestLoadWithProfile_UnknownProfile(t *testing.T) {
	configFile := createTempConfig(t, validConfig)
	defer os.Remove(configFile)

	_, err := LoadWithProfile(configFile, "studio")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected profile not found error, got: %v", err)
	}
}

func TestLoadWithProfile_NoFile(t *testing.T) {
	_, err := LoadWithProfile("", "")
	if err == nil {
		t.Error("Expected error without config file")
	}
}

func TestValidateConfigurationFormat_MissingConfigs(t *testing.T) {
	configFile := createTempConfig(t, `
active_config: default
definitions:
  sources:
    - id: builtin
      name: Built-in
      device: default
`)
	defer os.Remove(configFile)

	_, err := ValidateConfigurationFormat(configFile)
	if err == nil || !strings.Contains(err.Error(), "configs section is required") {
		t.Errorf("Expected configs section error, got: %v", err)
	}
}

func TestValidateConfigurationFormat_NoDefinitions(t *testing.T) {
	configFile := createTempConfig(t, `
configs:
  default:
    audio:
      backend: pipewire
`)
	defer os.Remove(configFile)

	cfg, err := LoadWithProfile(configFile, "")
	if err != nil {
		t.Fatalf("Expected config without definitions to load, got: %v", err)
	}
	if cfg.Source.Device != "default" {
		t.Errorf("Expected built-in default source, got '%s'", cfg.Source.Device)
	}
	if cfg.Audio.Backend != "pipewire" {
		t.Errorf("Expected backend 'pipewire', got '%s'", cfg.Audio.Backend)
	}
}

func TestValidateConfigurationFormat_InvalidReference(t *testing.T) {
	configFile := createTempConfig(t, `
definitions:
  sources:
    - id: builtin
      name: Built-in
      device: default
configs:
  default:
    source:
      ref: missing
`)
	defer os.Remove(configFile)

	_, err := ValidateConfigurationFormat(configFile)
	if err == nil || !strings.Contains(err.Error(), "undefined source definition 'missing'") {
		t.Errorf("Expected undefined reference error, got: %v", err)
	}
}

func TestValidateConfigurationFormat_DuplicateDefinitionIDs(t *testing.T) {
	configFile := createTempConfig(t, `
definitions:
  sources:
    - id: mic
      name: First
      device: default
    - id: mic
      name: Second
      device: hw:1,0
configs:
  default: {}
`)
	defer os.Remove(configFile)

	_, err := ValidateConfigurationFormat(configFile)
	if err == nil || !strings.Contains(err.Error(), "duplicate ID 'mic'") {
		t.Errorf("Expected duplicate ID error, got: %v", err)
	}
}

func TestValidateConfigurationFormat_InvalidSourceDefinition(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		expected string
	}{
		{"missing name", "    - id: a\n      device: default\n", "'name' is required"},
		{"missing device", "    - id: a\n      name: A\n", "'device' is required"},
		{"bad device", "    - id: a\n      name: A\n      device: \"hw:\"\n", "valid capture source"},
		{"bad backend", "    - id: a\n      name: A\n      device: default\n      backend: jack\n", "'backend' must be"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile := createTempConfig(t, "definitions:\n  sources:\n"+tt.source+"configs:\n  default: {}\n")
			defer os.Remove(configFile)

			_, err := ValidateConfigurationFormat(configFile)
			if err == nil || !strings.Contains(err.Error(), tt.expected) {
				t.Errorf("Expected error containing %q, got: %v", tt.expected, err)
			}
		})
	}
}

func TestLoadWithProfile_InvalidValues(t *testing.T) {
	configFile := createTempConfig(t, `
configs:
  default:
    audio:
      sample_rate: 44100
`)
	defer os.Remove(configFile)

	_, err := LoadWithProfile(configFile, "")
	if err == nil || !strings.Contains(err.Error(), "sample_rate") {
		t.Errorf("Expected sample rate validation error, got: %v", err)
	}
}

func TestUpdateActiveConfig(t *testing.T) {
	configFile := createTempConfig(t, validConfig)
	defer os.Remove(configFile)

	if err := UpdateActiveConfig(configFile, "default"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	active, profiles, err := ListProfiles(configFile)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if active != "default" {
		t.Errorf("Expected active config 'default', got '%s'", active)
	}
	if len(profiles) != 2 {
		t.Errorf("Expected 2 profiles, got %v", profiles)
	}

	if err := UpdateActiveConfig(configFile, "studio"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

// createTempConfig writes content to a temporary YAML file
func createTempConfig(t *testing.T, content string) string {
	tmpfile, err := os.CreateTemp("", "voicenote-test-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}

	if err := tmpfile.Close(); err != nil {
		t.Fatalf("Failed to close temp file: %v", err)
	}

	return tmpfile.Name()
}
