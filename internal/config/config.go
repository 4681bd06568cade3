package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type DefinitionsConfig struct {
	Sources []SourceDefinition `mapstructure:"sources" yaml:"sources"`
}

// SourceDefinition names a capture source once so profiles can reference it
type SourceDefinition struct {
	ID      string `mapstructure:"id" yaml:"id"`
	Name    string `mapstructure:"name" yaml:"name"`
	Device  string `mapstructure:"device" yaml:"device"`
	Backend string `mapstructure:"backend" yaml:"backend"`
}

type SourceReference struct {
	Ref string `mapstructure:"ref" yaml:"ref"`
}

type GlobalsConfig struct {
	Output OutputConfig `mapstructure:"output" yaml:"output"`
}

type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Globals      *GlobalsConfig            `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Definitions  *DefinitionsConfig        `mapstructure:"definitions,omitempty" yaml:"definitions,omitempty"`
	Configs      map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
}

// Config is a fully resolved profile
type Config struct {
	Source    SourceConfig    `mapstructure:"source" yaml:"source"`
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Transcode TranscodeConfig `mapstructure:"transcode" yaml:"transcode"`
	Upload    UploadConfig    `mapstructure:"upload" yaml:"upload"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`

	// Profile is the name the config was resolved from
	Profile string `mapstructure:"-" yaml:"profile,omitempty"`
}

// ConfigProfile is a profile as written in the file, before references are resolved
type ConfigProfile struct {
	Source    *SourceReference `mapstructure:"source,omitempty" yaml:"source,omitempty"`
	Audio     AudioConfig      `mapstructure:"audio" yaml:"audio"`
	Engine    EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Transcode TranscodeConfig  `mapstructure:"transcode" yaml:"transcode"`
	Upload    UploadConfig     `mapstructure:"upload" yaml:"upload"`
	Output    OutputConfig     `mapstructure:"output" yaml:"output"`
	Server    ServerConfig     `mapstructure:"server" yaml:"server"`
}

type SourceConfig struct {
	ID     string `mapstructure:"id" yaml:"id"`
	Name   string `mapstructure:"name" yaml:"name"`
	Device string `mapstructure:"device" yaml:"device"`
}

type AudioConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"` // "pulse", "pipewire", "alsa", "auto"
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	FFmpegPath string `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
}

type EngineConfig struct {
	BinaryPath      string `mapstructure:"binary_path" yaml:"binary_path"`
	DownloadURL     string `mapstructure:"download_url" yaml:"download_url"`
	CacheDir        string `mapstructure:"cache_dir" yaml:"cache_dir"`
	WorkspaceDir    string `mapstructure:"workspace_dir" yaml:"workspace_dir"`
	LoadTimeout     int    `mapstructure:"load_timeout" yaml:"load_timeout"`         // seconds
	FailureCooldown int    `mapstructure:"failure_cooldown" yaml:"failure_cooldown"` // seconds, 0 disables
	MaxConcurrent   int    `mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

type TranscodeConfig struct {
	Timeout int `mapstructure:"timeout" yaml:"timeout"` // seconds
}

type UploadConfig struct {
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"`
	UploadPath   string `mapstructure:"upload_path" yaml:"upload_path"`
	MessagesPath string `mapstructure:"messages_path" yaml:"messages_path"`
	Token        string `mapstructure:"token" yaml:"token,omitempty"`
	Timeout      int    `mapstructure:"timeout" yaml:"timeout"` // seconds
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

var defaultConfig = Config{
	Source: SourceConfig{ID: "default", Name: "System default", Device: "default"},
	Audio: AudioConfig{
		Backend:    "auto",
		SampleRate: 48000,
		FFmpegPath: "ffmpeg",
	},
	Engine: EngineConfig{
		CacheDir:      "~/.cache/voicenote",
		LoadTimeout:   60,
		MaxConcurrent: 1,
	},
	Transcode: TranscodeConfig{Timeout: 30},
	Upload: UploadConfig{
		BaseURL:      "http://localhost:3000",
		UploadPath:   "/api/media/upload",
		MessagesPath: "/api/messages",
		Timeout:      30,
	},
	Output: OutputConfig{Directory: "~/Audio/VoiceNotes"},
	Server: ServerConfig{Port: "8080"},
}

// Default returns the built-in configuration with paths expanded
func Default() *Config {
	cfg := defaultConfig
	cfg.Profile = "default"
	cfg.expandPaths()
	return &cfg
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	selectedConfig, err := convertProfileToConfig(selectedProfile, rootConfig.Definitions)
	if err != nil {
		return nil, fmt.Errorf("error resolving configuration profile '%s': %w", configName, err)
	}

	// Profiles fall back to configs.default, which falls back to the built-in defaults
	base := &defaultConfig
	if configName != "default" {
		if defaultProfile, exists := rootConfig.Configs["default"]; exists {
			resolvedDefault, err := convertProfileToConfig(defaultProfile, rootConfig.Definitions)
			if err != nil {
				return nil, fmt.Errorf("error resolving default configuration: %w", err)
			}
			base = mergeConfigs(base, resolvedDefault)
		}
	}
	selectedConfig = mergeConfigs(base, selectedConfig)

	// Global output directory takes priority over profile-specific directory
	if rootConfig.Globals != nil && rootConfig.Globals.Output.Directory != "" {
		selectedConfig.Output.Directory = rootConfig.Globals.Output.Directory
	}

	selectedConfig.Profile = configName
	selectedConfig.expandPaths()

	if err := selectedConfig.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selectedConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return err
	}
	if _, ok := rootConfig.Configs[newActiveConfig]; !ok {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// ListProfiles returns the profile names defined in the config file
func ListProfiles(configFile string) (active string, profiles []string, err error) {
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return "", nil, err
	}
	for name := range rootConfig.Configs {
		profiles = append(profiles, name)
	}
	return rootConfig.ActiveConfig, profiles, nil
}

// convertProfileToConfig converts a ConfigProfile to Config by resolving the source reference
func convertProfileToConfig(profile *ConfigProfile, definitions *DefinitionsConfig) (*Config, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}

	config := &Config{
		Audio:     profile.Audio,
		Engine:    profile.Engine,
		Transcode: profile.Transcode,
		Upload:    profile.Upload,
		Output:    profile.Output,
		Server:    profile.Server,
	}

	if profile.Source == nil {
		return config, nil
	}
	if profile.Source.Ref == "" {
		return nil, fmt.Errorf("source: 'ref' is required")
	}

	definition := findDefinition(definitions, profile.Source.Ref)
	if definition == nil {
		return nil, fmt.Errorf("source: reference '%s' not found in definitions", profile.Source.Ref)
	}

	config.Source = SourceConfig{ID: definition.ID, Name: definition.Name, Device: definition.Device}
	// A source defined for a specific backend wins over the profile's backend
	if definition.Backend != "" {
		config.Audio.Backend = definition.Backend
	}

	return config, nil
}

func findDefinition(definitions *DefinitionsConfig, id string) *SourceDefinition {
	if definitions == nil {
		return nil
	}
	for i := range definitions.Sources {
		if definitions.Sources[i].ID == id {
			return &definitions.Sources[i]
		}
	}
	return nil
}

// mergeConfigs overlays the non-zero fields of profile onto base
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{}
	if base != nil {
		*result = *base
	}
	if profile == nil {
		return result
	}

	if profile.Source.Device != "" {
		result.Source = profile.Source
	}

	if profile.Audio.Backend != "" {
		result.Audio.Backend = profile.Audio.Backend
	}
	if profile.Audio.SampleRate != 0 {
		result.Audio.SampleRate = profile.Audio.SampleRate
	}
	if profile.Audio.FFmpegPath != "" {
		result.Audio.FFmpegPath = profile.Audio.FFmpegPath
	}

	if profile.Engine.BinaryPath != "" {
		result.Engine.BinaryPath = profile.Engine.BinaryPath
	}
	if profile.Engine.DownloadURL != "" {
		result.Engine.DownloadURL = profile.Engine.DownloadURL
	}
	if profile.Engine.CacheDir != "" {
		result.Engine.CacheDir = profile.Engine.CacheDir
	}
	if profile.Engine.WorkspaceDir != "" {
		result.Engine.WorkspaceDir = profile.Engine.WorkspaceDir
	}
	if profile.Engine.LoadTimeout != 0 {
		result.Engine.LoadTimeout = profile.Engine.LoadTimeout
	}
	if profile.Engine.FailureCooldown != 0 {
		result.Engine.FailureCooldown = profile.Engine.FailureCooldown
	}
	if profile.Engine.MaxConcurrent != 0 {
		result.Engine.MaxConcurrent = profile.Engine.MaxConcurrent
	}

	if profile.Transcode.Timeout != 0 {
		result.Transcode.Timeout = profile.Transcode.Timeout
	}

	if profile.Upload.BaseURL != "" {
		result.Upload.BaseURL = profile.Upload.BaseURL
	}
	if profile.Upload.UploadPath != "" {
		result.Upload.UploadPath = profile.Upload.UploadPath
	}
	if profile.Upload.MessagesPath != "" {
		result.Upload.MessagesPath = profile.Upload.MessagesPath
	}
	if profile.Upload.Token != "" {
		result.Upload.Token = profile.Upload.Token
	}
	if profile.Upload.Timeout != 0 {
		result.Upload.Timeout = profile.Upload.Timeout
	}

	if profile.Output.Directory != "" {
		result.Output.Directory = profile.Output.Directory
	}
	if profile.Server.Port != "" {
		result.Server.Port = profile.Server.Port
	}

	return result
}

func (c *Config) expandPaths() {
	c.Output.Directory = expandPath(c.Output.Directory)
	c.Engine.CacheDir = expandPath(c.Engine.CacheDir)
	c.Engine.WorkspaceDir = expandPath(c.Engine.WorkspaceDir)
	c.Engine.BinaryPath = expandPath(c.Engine.BinaryPath)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Validate checks every section of a resolved config
func (c *Config) Validate() error {
	if !isValidAudioSource(c.Source.Device) {
		return fmt.Errorf("source: invalid device %q", c.Source.Device)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Transcode.Validate(); err != nil {
		return fmt.Errorf("transcode: %w", err)
	}
	if err := c.Upload.Validate(); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func (a AudioConfig) Validate() error {
	if !isValidBackend(a.Backend) {
		return fmt.Errorf("backend must be one of auto, pulse, pipewire, alsa, got: %s", a.Backend)
	}
	switch a.SampleRate {
	case 0, 8000, 12000, 16000, 24000, 48000:
	default:
		return fmt.Errorf("sample_rate must be an Opus rate (8000, 12000, 16000, 24000, 48000), got: %d", a.SampleRate)
	}
	return nil
}

func (e EngineConfig) Validate() error {
	if e.LoadTimeout <= 0 {
		return fmt.Errorf("load_timeout must be > 0, got: %d", e.LoadTimeout)
	}
	if e.FailureCooldown < 0 {
		return fmt.Errorf("failure_cooldown must be >= 0, got: %d", e.FailureCooldown)
	}
	if e.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be >= 1, got: %d", e.MaxConcurrent)
	}
	if e.DownloadURL != "" && !isHTTPURL(e.DownloadURL) {
		return fmt.Errorf("download_url must be an http(s) URL, got: %s", e.DownloadURL)
	}
	return nil
}

func (t TranscodeConfig) Validate() error {
	if t.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got: %d", t.Timeout)
	}
	return nil
}

func (u UploadConfig) Validate() error {
	if u.BaseURL != "" && !isHTTPURL(u.BaseURL) {
		return fmt.Errorf("base_url must be an http(s) URL, got: %s", u.BaseURL)
	}
	if u.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got: %d", u.Timeout)
	}
	return nil
}

func (s ServerConfig) Validate() error {
	port, err := strconv.Atoi(s.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got: %s", s.Port)
	}
	return nil
}

// GetLoadTimeout returns the engine load timeout
func (e EngineConfig) GetLoadTimeout() time.Duration {
	return time.Duration(e.LoadTimeout) * time.Second
}

// GetFailureCooldown returns how long a failed engine load is remembered
func (e EngineConfig) GetFailureCooldown() time.Duration {
	return time.Duration(e.FailureCooldown) * time.Second
}

// GetTimeout returns the conversion deadline
func (t TranscodeConfig) GetTimeout() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeout returns the HTTP request timeout
func (u UploadConfig) GetTimeout() time.Duration {
	return time.Duration(u.Timeout) * time.Second
}

func isValidBackend(backend string) bool {
	switch strings.ToLower(backend) {
	case "", "auto", "pulse", "pipewire", "alsa":
		return true
	}
	return false
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// isValidAudioSource checks if a device name is usable by the pulse or ALSA backends
func isValidAudioSource(source string) bool {
	source = strings.TrimSpace(source)

	if source == "" {
		return false
	}
	if strings.ContainsAny(source, " \t\n") {
		return false
	}

	// ALSA names such as "hw:1,0" or "plughw:CARD=USB,DEV=0"
	if strings.Contains(source, ":") {
		lastColonIndex := strings.LastIndex(source, ":")
		deviceName := source[:lastColonIndex]
		params := source[lastColonIndex+1:]
		return len(deviceName) > 0 && len(params) > 0
	}

	return true
}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("VOICENOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("configs section is required and cannot be empty")
	}

	if err := validateDefinitions(rootConfig.Definitions); err != nil {
		return nil, fmt.Errorf("invalid definitions: %w", err)
	}

	for configName, configProfile := range rootConfig.Configs {
		if configProfile == nil {
			continue
		}
		if err := validateSourceReference(configProfile.Source, rootConfig.Definitions); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	return &rootConfig, nil
}

// validateDefinitions validates the optional definitions section
func validateDefinitions(definitions *DefinitionsConfig) error {
	if definitions == nil {
		return nil
	}

	seenIDs := make(map[string]bool)

	for i, def := range definitions.Sources {
		prefix := fmt.Sprintf("definitions.sources[%d]", i)
		if def.ID == "" {
			return fmt.Errorf("%s: 'id' is required", prefix)
		}
		if seenIDs[def.ID] {
			return fmt.Errorf("%s: duplicate ID '%s'", prefix, def.ID)
		}
		seenIDs[def.ID] = true

		if err := validateSourceDefinition(def, prefix); err != nil {
			return err
		}
	}

	return nil
}

// validateSourceDefinition validates a single source definition
func validateSourceDefinition(def SourceDefinition, prefix string) error {
	if def.Name == "" {
		return fmt.Errorf("%s: 'name' is required", prefix)
	}
	if def.Device == "" {
		return fmt.Errorf("%s: 'device' is required", prefix)
	}
	if !isValidAudioSource(def.Device) {
		return fmt.Errorf("%s: device must be a valid capture source name, got: %s", prefix, def.Device)
	}
	if !isValidBackend(def.Backend) {
		return fmt.Errorf("%s: 'backend' must be one of auto, pulse, pipewire, alsa, got: %s", prefix, def.Backend)
	}
	return nil
}

// validateSourceReference validates a profile's source reference
func validateSourceReference(ref *SourceReference, definitions *DefinitionsConfig) error {
	if ref == nil {
		return nil
	}
	if ref.Ref == "" {
		return fmt.Errorf("source: 'ref' is required")
	}
	if findDefinition(definitions, ref.Ref) == nil {
		return fmt.Errorf("source: references undefined source definition '%s'", ref.Ref)
	}
	return nil
}
