// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/staslianx/balli-sub009/internal/pacing"
	"github.com/staslianx/balli-sub009/internal/reconnect"
	"github.com/staslianx/balli-sub009/internal/sse"
	"github.com/staslianx/balli-sub009/internal/stream"
	"github.com/staslianx/balli-sub009/internal/util"
)

// CurrentVersion is written into new config files.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete balli-stream configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Server    ServerConfig    `toml:"server" json:"server"`
	Stream    StreamConfig    `toml:"stream" json:"stream"`
	Pacing    PacingConfig    `toml:"pacing" json:"pacing"`
	Reconnect ReconnectConfig `toml:"reconnect" json:"reconnect"`
	Client    ClientConfig    `toml:"client" json:"client"`
	Logging   LoggingConfig   `toml:"logging" json:"logging"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host" json:"host"`
	Port int    `toml:"port" json:"port"`
	// AuthToken enables bearer auth on the stream endpoint when set.
	AuthToken string `toml:"auth_token" json:"auth_token"`
	// CORSOrigins lists allowed browser origins; "*" allows any.
	CORSOrigins []string `toml:"cors_origins" json:"cors_origins"`
	// RateLimitPerMinute is the per-client request budget (0 = unlimited).
	RateLimitPerMinute int `toml:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	RateLimitBurst     int `toml:"rate_limit_burst" json:"rate_limit_burst"`
	// ProducerDelayMs paces the built-in demo producer.
	ProducerDelayMs int `toml:"producer_delay_ms" json:"producer_delay_ms"`
}

// StreamConfig contains transport limits shared by server and client.
type StreamConfig struct {
	// SizeLimitBytes is the per-response ceiling; must not exceed the hard cap.
	SizeLimitBytes   int64 `toml:"size_limit_bytes" json:"size_limit_bytes"`
	HeartbeatMs      int   `toml:"heartbeat_ms" json:"heartbeat_ms"`
	IdleTimeoutMs    int   `toml:"idle_timeout_ms" json:"idle_timeout_ms"`
	DecodeThreshold  int   `toml:"decode_threshold" json:"decode_threshold"`
	MaxWithheldBytes int   `toml:"max_withheld_bytes" json:"max_withheld_bytes"`
}

// PacingConfig contains the display delays. Zero or negative values disable a
// delay; a section left out entirely takes the defaults.
type PacingConfig struct {
	BaseDelayMs        int `toml:"base_delay_ms" json:"base_delay_ms"`
	SpaceDelayMs       int `toml:"space_delay_ms" json:"space_delay_ms"`
	PunctuationDelayMs int `toml:"punctuation_delay_ms" json:"punctuation_delay_ms"`
}

// ReconnectConfig contains the client retry policy.
type ReconnectConfig struct {
	MaxAttempts      int     `toml:"max_attempts" json:"max_attempts"`
	InitialBackoffMs int     `toml:"initial_backoff_ms" json:"initial_backoff_ms"`
	MaxBackoffMs     int     `toml:"max_backoff_ms" json:"max_backoff_ms"`
	Multiplier       float64 `toml:"multiplier" json:"multiplier"`
	Jitter           float64 `toml:"jitter" json:"jitter"`
}

// ClientConfig contains settings for the ask and chat commands.
type ClientConfig struct {
	ServerURL string `toml:"server_url" json:"server_url"`
	// ConnectTimeoutMs bounds the wait for response headers (0 = none).
	ConnectTimeoutMs int `toml:"connect_timeout_ms" json:"connect_timeout_ms"`
	// Viewer selects "auto", "tui" or "plain" output.
	Viewer string `toml:"viewer" json:"viewer"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	// Format is "auto", "json" or "terminal".
	Format string `toml:"format" json:"format"`
	Debug  bool   `toml:"debug" json:"debug"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	rc := reconnect.DefaultConfig()
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			Host:               "127.0.0.1",
			Port:               8787,
			CORSOrigins:        []string{"http://localhost:*", "http://127.0.0.1:*"},
			RateLimitPerMinute: 60,
			RateLimitBurst:     10,
			ProducerDelayMs:    40,
		},
		Stream: StreamConfig{
			SizeLimitBytes:   sse.DefaultLimit,
			HeartbeatMs:      int(sse.DefaultHeartbeatInterval / time.Millisecond),
			IdleTimeoutMs:    int(stream.DefaultIdleTimeout / time.Millisecond),
			DecodeThreshold:  sse.DefaultDecodeThreshold,
			MaxWithheldBytes: sse.DefaultMaxWithheld,
		},
		Pacing: PacingConfig{
			BaseDelayMs:        int(pacing.DefaultBaseDelay / time.Millisecond),
			SpaceDelayMs:       int(pacing.DefaultSpaceDelay / time.Millisecond),
			PunctuationDelayMs: int(pacing.DefaultPunctuationDelay / time.Millisecond),
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:      rc.MaxAttempts,
			InitialBackoffMs: int(rc.InitialBackoff / time.Millisecond),
			MaxBackoffMs:     int(rc.MaxBackoff / time.Millisecond),
			Multiplier:       rc.Multiplier,
			Jitter:           rc.Jitter,
		},
		Client: ClientConfig{
			ServerURL:        "http://127.0.0.1:8787",
			ConnectTimeoutMs: 10000,
			Viewer:           "auto",
		},
		Logging: LoggingConfig{
			Format: "auto",
		},
	}
}

// =============================================================================
// TYPED ACCESSORS
// =============================================================================

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ProducerDelay returns the demo producer's pause between items.
func (s ServerConfig) ProducerDelay() time.Duration {
	return time.Duration(s.ProducerDelayMs) * time.Millisecond
}

// Heartbeat returns the keep-alive interval.
func (s StreamConfig) Heartbeat() time.Duration {
	return time.Duration(s.HeartbeatMs) * time.Millisecond
}

// IdleTimeout returns how long a client waits on a silent stream.
func (s StreamConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutMs) * time.Millisecond
}

// Engine returns the pacing engine configuration.
func (p PacingConfig) Engine() pacing.Config {
	return pacing.Config{
		BaseDelay:        msOrDisabled(p.BaseDelayMs),
		SpaceDelay:       msOrDisabled(p.SpaceDelayMs),
		PunctuationDelay: msOrDisabled(p.PunctuationDelayMs),
	}
}

// msOrDisabled keeps an explicit zero from falling back to the engine default.
func msOrDisabled(ms int) time.Duration {
	if ms <= 0 {
		return -1
	}
	return time.Duration(ms) * time.Millisecond
}

// Policy returns the reconnect policy.
func (r ReconnectConfig) Policy() reconnect.Config {
	return reconnect.Config{
		MaxAttempts:    r.MaxAttempts,
		InitialBackoff: time.Duration(r.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(r.MaxBackoffMs) * time.Millisecond,
		Multiplier:     r.Multiplier,
		Jitter:         r.Jitter,
	}
}

// ConnectTimeout returns the response header timeout.
func (c ClientConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the balli configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv("BALLI_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".balli"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions tightens a config file to 0600, since it may hold
// the server auth token.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	var loadErr error

	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			cfg, err := LoadFromPath(tomlPath)
			if err == nil {
				return cfg, nil
			}
			loadErr = err
		}
	}

	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			cfg, err := LoadFromPath(jsonPath)
			if err == nil {
				return cfg, nil
			}
			loadErr = err
		}
	}

	cfg := Default()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	// Defaults come back together with the load error for informational purposes.
	return cfg, loadErr
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return fillDefaults(cfg)
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return fillDefaults(cfg)
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish runs the steps shared by every load path.
func (c *Config) finish() error {
	c.ApplyEnvOverrides()
	if err := c.Migrate(); err != nil {
		return fmt.Errorf("config migration failed: %w", err)
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// fillDefaults fills in values a partial file left empty.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = defaults.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}

	if cfg.Client.ServerURL == "" {
		cfg.Client.ServerURL = defaults.Client.ServerURL
	}
	if cfg.Client.Viewer == "" {
		cfg.Client.Viewer = defaults.Client.Viewer
	}

	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}

	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("# balli-stream configuration file\n")
	buf.WriteString("# Durations are in milliseconds. Negative pacing delays disable the pause.\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitPerMinute < 0 {
		add("server.rate_limit_per_minute", "must not be negative")
	}
	if c.Server.RateLimitBurst < 0 {
		add("server.rate_limit_burst", "must not be negative")
	}
	if c.Server.ProducerDelayMs < 0 {
		add("server.producer_delay_ms", "must not be negative")
	}
	for _, origin := range c.Server.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			add("server.cors_origins", "origin %q must start with http:// or https://", origin)
		}
	}

	// Stream
	if c.Stream.SizeLimitBytes <= 0 || c.Stream.SizeLimitBytes > sse.HardCap {
		add("stream.size_limit_bytes", "must be between 1 and %d", sse.HardCap)
	}
	if c.Stream.HeartbeatMs < 100 {
		add("stream.heartbeat_ms", "must be at least 100")
	}
	if c.Stream.IdleTimeoutMs < 1000 {
		add("stream.idle_timeout_ms", "must be at least 1000")
	}
	if c.Stream.IdleTimeoutMs > 0 && c.Stream.HeartbeatMs >= c.Stream.IdleTimeoutMs {
		add("stream.heartbeat_ms", "must be shorter than stream.idle_timeout_ms")
	}
	if c.Stream.DecodeThreshold < 1 {
		add("stream.decode_threshold", "must be positive")
	}
	if c.Stream.MaxWithheldBytes < 1 || c.Stream.MaxWithheldBytes > 4 {
		add("stream.max_withheld_bytes", "must be between 1 and 4")
	}

	// Pacing
	for field, ms := range map[string]int{
		"pacing.base_delay_ms":        c.Pacing.BaseDelayMs,
		"pacing.space_delay_ms":       c.Pacing.SpaceDelayMs,
		"pacing.punctuation_delay_ms": c.Pacing.PunctuationDelayMs,
	} {
		if ms > 1000 {
			add(field, "must be at most 1000, got %d", ms)
		}
	}

	// Reconnect
	if c.Reconnect.MaxAttempts < 1 {
		add("reconnect.max_attempts", "must be at least 1")
	}
	if c.Reconnect.InitialBackoffMs < 1 {
		add("reconnect.initial_backoff_ms", "must be positive")
	}
	if c.Reconnect.MaxBackoffMs < c.Reconnect.InitialBackoffMs {
		add("reconnect.max_backoff_ms", "must not be below reconnect.initial_backoff_ms")
	}
	if c.Reconnect.Multiplier < 1 {
		add("reconnect.multiplier", "must be at least 1")
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter > 1 {
		add("reconnect.jitter", "must be between 0 and 1")
	}

	// Client
	if u, err := url.Parse(c.Client.ServerURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("client.server_url", "must be an http or https URL, got %q", c.Client.ServerURL)
	}
	if c.Client.ConnectTimeoutMs < 0 {
		add("client.connect_timeout_ms", "must not be negative")
	}
	switch c.Client.Viewer {
	case "auto", "tui", "plain":
	default:
		add("client.viewer", "must be auto, tui or plain, got %q", c.Client.Viewer)
	}

	// Logging
	switch c.Logging.Format {
	case "auto", "json", "terminal":
	default:
		add("logging.format", "must be auto, json or terminal, got %q", c.Logging.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults sets default values for zero-value fields that have no
// meaningful zero.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Stream.SizeLimitBytes == 0 {
		c.Stream.SizeLimitBytes = d.Stream.SizeLimitBytes
	}
	if c.Stream.HeartbeatMs == 0 {
		c.Stream.HeartbeatMs = d.Stream.HeartbeatMs
	}
	if c.Stream.IdleTimeoutMs == 0 {
		c.Stream.IdleTimeoutMs = d.Stream.IdleTimeoutMs
	}
	if c.Stream.DecodeThreshold == 0 {
		c.Stream.DecodeThreshold = d.Stream.DecodeThreshold
	}
	if c.Stream.MaxWithheldBytes == 0 {
		c.Stream.MaxWithheldBytes = d.Stream.MaxWithheldBytes
	}

	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = d.Reconnect.MaxAttempts
	}
	if c.Reconnect.InitialBackoffMs == 0 {
		c.Reconnect.InitialBackoffMs = d.Reconnect.InitialBackoffMs
	}
	if c.Reconnect.MaxBackoffMs == 0 {
		c.Reconnect.MaxBackoffMs = d.Reconnect.MaxBackoffMs
	}
	if c.Reconnect.Multiplier == 0 {
		c.Reconnect.Multiplier = d.Reconnect.Multiplier
	}

	if c.Pacing == (PacingConfig{}) {
		c.Pacing = d.Pacing
	}

	_ = fillDefaults(c)
}

// Migrate upgrades older configuration files in place.
func (c *Config) Migrate() error {
	if c.Version == "" {
		c.Version = CurrentVersion
	}
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version %q", c.Version)
	}
	// Earlier builds called the human-readable format "text".
	if c.Logging.Format == "text" {
		c.Logging.Format = "terminal"
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - BALLI_HOST, BALLI_PORT: server listen address
//   - BALLI_AUTH_TOKEN: server.auth_token
//   - BALLI_SERVER_URL: client.server_url
//   - BALLI_IDLE_TIMEOUT_MS: stream.idle_timeout_ms
//   - BALLI_SIZE_LIMIT_BYTES: stream.size_limit_bytes
//   - BALLI_LOG_FORMAT: logging.format
//   - BALLI_DEBUG: set to "1" or "true" to enable debug logs
func (c *Config) ApplyEnvOverrides() {
	if host := os.Getenv("BALLI_HOST"); host != "" {
		c.Server.Host = host
	}
	if port, ok := envInt("BALLI_PORT"); ok {
		c.Server.Port = port
	}
	if token := os.Getenv("BALLI_AUTH_TOKEN"); token != "" {
		c.Server.AuthToken = token
	}
	if u := os.Getenv("BALLI_SERVER_URL"); u != "" {
		c.Client.ServerURL = u
	}
	if ms, ok := envInt("BALLI_IDLE_TIMEOUT_MS"); ok {
		c.Stream.IdleTimeoutMs = ms
	}
	if n, ok := envInt("BALLI_SIZE_LIMIT_BYTES"); ok {
		c.Stream.SizeLimitBytes = int64(n)
	}
	if format := os.Getenv("BALLI_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
	if debug := os.Getenv("BALLI_DEBUG"); debug != "" {
		c.Logging.Debug = debug == "1" || strings.EqualFold(debug, "true")
	}
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: ignoring %s=%q: not an integer\n", name, raw)
		return 0, false
	}
	return n, true
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "stream.heartbeat_ms").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookupField(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "pacing.base_delay_ms").
func (c *Config) Set(key string, value any) error {
	field, err := c.lookupField(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookupField(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// fieldByTag finds the struct field whose toml tag is name.
func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tagName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tagName(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
	return tag
}

// setFieldValue sets a reflect.Value from a value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, item := range strings.Split(strVal, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := tagName(f)
			if name == "" || name == "-" {
				continue
			}
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, prefix+name+".")
				continue
			}
			keys = append(keys, prefix+name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.CORSOrigins != nil {
		clone.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	}
	return &clone
}

// String returns the config as JSON with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Server.AuthToken != "" {
		safe.Server.AuthToken = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
