// Package config loads the YAML configuration, fills defaults and validates
// the result before anything is wired.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable consulted when no -config flag is given.
const EnvPath = "MEDIADASH_CONFIG"

// DefaultPath is used when neither the flag nor the environment names a config.
const DefaultPath = "data/config.yaml"

// Transport kinds.
const (
	TransportTCP    = "tcp"
	TransportTelnet = "telnet"
	TransportSerial = "serial"
	TransportMQTT   = "mqtt"
)

// UI modes.
const (
	UIModeAuto     = "auto"
	UIModeTview    = "tview"
	UIModeHeadless = "headless"
)

// Config represents the complete client configuration
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Framer    FramerConfig    `yaml:"framer"`
	Artwork   ArtworkConfig   `yaml:"artwork"`
	UI        UIConfig        `yaml:"ui"`
	Commands  CommandsConfig  `yaml:"commands"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Logging   LoggingConfig   `yaml:"logging"`

	// LoadedFrom is the file or directory the config came from.
	LoadedFrom string `yaml:"-"`
}

// TransportConfig selects and parameterizes the host link
type TransportConfig struct {
	Kind           string       `yaml:"kind"`
	Host           string       `yaml:"host"`
	Port           int          `yaml:"port"`
	DialTimeoutMS  int          `yaml:"dial_timeout_ms"`
	ReconnectMS    int          `yaml:"reconnect_ms"`
	ReconnectMaxMS int          `yaml:"reconnect_max_ms"`
	Serial         SerialConfig `yaml:"serial"`
	MQTT           MQTTConfig   `yaml:"mqtt"`
}

type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type MQTTConfig struct {
	Broker       string `yaml:"broker"`
	StatusTopic  string `yaml:"status_topic"`
	CommandTopic string `yaml:"command_topic"`
	ClientID     string `yaml:"client_id"`
}

type FramerConfig struct {
	MaxLineBytes int `yaml:"max_line_bytes"`
}

// ArtworkConfig describes the RGB565 thumbnail and its disk cache.
type ArtworkConfig struct {
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	BigEndian       bool   `yaml:"big_endian"`
	HashPrefixBytes int    `yaml:"hash_prefix_bytes"`
	CacheDir        string `yaml:"cache_dir"`
	CacheBytes      int64  `yaml:"cache_bytes"`
}

// UIConfig controls the presentation loop.
type UIConfig struct {
	Mode                 string `yaml:"mode"`
	TickMS               int    `yaml:"tick_ms"`
	StatsIntervalSeconds int    `yaml:"stats_interval_seconds"`

	// DebounceMS maps an action class (playback, skip, seek, mode, like,
	// queue, process) to its window; missing classes keep their default.
	DebounceMS map[string]int `yaml:"debounce_ms"`
}

type CommandsConfig struct {
	QueueDepth int `yaml:"queue_depth"`
	MaxBytes   int `yaml:"max_bytes"`
}

type RecorderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	MaxRows int    `yaml:"max_rows"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
	// MaxFileBytes rolls the day's file to a numbered sibling once reached.
	MaxFileBytes  int64  `yaml:"max_file_bytes"`
}

// ResolvePath picks the config location: the flag value, then the
// environment, then DefaultPath.
func ResolvePath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads a YAML file, or every *.yaml/*.yml file in a directory merged
// in name order, then applies defaults and validates.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	files := []string{path}
	if info.IsDir() {
		files, err = yamlFiles(path)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no YAML files in config directory %s", path)
		}
	}

	var cfg Config
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", filepath.Base(file), err)
		}
	}
	cfg.LoadedFrom = path
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// ApplyDefaults fills every zero value.
func (c *Config) ApplyDefaults() {
	t := &c.Transport
	t.Kind = strings.ToLower(strings.TrimSpace(t.Kind))
	if t.Kind == "" {
		t.Kind = TransportTCP
	}
	if t.Host == "" {
		t.Host = "127.0.0.1"
	}
	if t.Port == 0 {
		t.Port = 5555
	}
	if t.DialTimeoutMS <= 0 {
		t.DialTimeoutMS = 5000
	}
	if t.ReconnectMS <= 0 {
		t.ReconnectMS = 3000
	}
	if t.ReconnectMaxMS < t.ReconnectMS {
		t.ReconnectMaxMS = t.ReconnectMS
	}
	if t.Serial.Baud <= 0 {
		t.Serial.Baud = 115200
	}
	if t.MQTT.StatusTopic == "" {
		t.MQTT.StatusTopic = "mediadash/status"
	}
	if t.MQTT.CommandTopic == "" {
		t.MQTT.CommandTopic = "mediadash/cmd"
	}

	if c.Framer.MaxLineBytes <= 0 {
		c.Framer.MaxLineBytes = 32 * 1024
	}

	a := &c.Artwork
	if a.Width == 0 {
		a.Width = 80
	}
	if a.Height == 0 {
		a.Height = 80
	}
	if a.HashPrefixBytes <= 0 {
		a.HashPrefixBytes = 4096
	}
	if a.CacheBytes <= 0 {
		a.CacheBytes = 8 << 20
	}

	u := &c.UI
	u.Mode = strings.ToLower(strings.TrimSpace(u.Mode))
	if u.Mode == "" {
		u.Mode = UIModeAuto
	}
	if u.TickMS <= 0 {
		u.TickMS = 100
	}
	if u.StatsIntervalSeconds <= 0 {
		u.StatsIntervalSeconds = 30
	}

	if c.Commands.QueueDepth <= 0 {
		c.Commands.QueueDepth = 16
	}
	if c.Commands.MaxBytes <= 0 {
		c.Commands.MaxBytes = 128
	}

	if c.Recorder.Path == "" {
		c.Recorder.Path = "data/history.db"
	}
	if c.Recorder.MaxRows <= 0 {
		c.Recorder.MaxRows = 10000
	}

	if c.Logging.Dir == "" {
		c.Logging.Dir = "data/logs"
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = 7
	}
	if c.Logging.MaxFileBytes <= 0 {
		c.Logging.MaxFileBytes = 4 << 20
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	t := c.Transport
	switch t.Kind {
	case TransportTCP, TransportTelnet:
		if t.Port <= 0 || t.Port > 65535 {
			errs = append(errs, fmt.Errorf("transport.port %d out of range", t.Port))
		}
	case TransportSerial:
		if strings.TrimSpace(t.Serial.Device) == "" {
			errs = append(errs, errors.New("transport.serial.device is required for serial transport"))
		}
	case TransportMQTT:
		if strings.TrimSpace(t.MQTT.Broker) == "" {
			errs = append(errs, errors.New("transport.mqtt.broker is required for mqtt transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.kind %q is not one of tcp, telnet, serial, mqtt", t.Kind))
	}
	if c.Artwork.Width <= 0 || c.Artwork.Height <= 0 || c.Artwork.Width > 1024 || c.Artwork.Height > 1024 {
		errs = append(errs, fmt.Errorf("artwork dimensions %dx%d invalid", c.Artwork.Width, c.Artwork.Height))
	}
	if min := 4 * c.Artwork.Width * c.Artwork.Height; c.Framer.MaxLineBytes < min {
		errs = append(errs, fmt.Errorf("framer.max_line_bytes %d cannot hold a %dx%d artwork line (need >= %d)",
			c.Framer.MaxLineBytes, c.Artwork.Width, c.Artwork.Height, min))
	}
	switch c.UI.Mode {
	case UIModeAuto, UIModeTview, UIModeHeadless:
	default:
		errs = append(errs, fmt.Errorf("ui.mode %q is not one of auto, tview, headless", c.UI.Mode))
	}
	for class, ms := range c.UI.DebounceMS {
		if ms < 0 {
			errs = append(errs, fmt.Errorf("ui.debounce_ms.%s must be >= 0", class))
		}
	}
	if c.Commands.MaxBytes > 128 {
		errs = append(errs, fmt.Errorf("commands.max_bytes %d exceeds the 128 byte wire limit", c.Commands.MaxBytes))
	}
	return errors.Join(errs...)
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (t TransportConfig) DialTimeout() time.Duration    { return ms(t.DialTimeoutMS) }
func (t TransportConfig) ReconnectDelay() time.Duration { return ms(t.ReconnectMS) }
func (t TransportConfig) ReconnectMax() time.Duration   { return ms(t.ReconnectMaxMS) }
func (u UIConfig) Tick() time.Duration                  { return ms(u.TickMS) }
func (u UIConfig) StatsInterval() time.Duration {
	return time.Duration(u.StatsIntervalSeconds) * time.Second
}

// Debounce returns the configured per-class windows.
func (u UIConfig) Debounce() map[string]time.Duration {
	out := make(map[string]time.Duration, len(u.DebounceMS))
	for class, v := range u.DebounceMS {
		out[strings.ToLower(strings.TrimSpace(class))] = ms(v)
	}
	return out
}

// Print displays the configuration
func (c *Config) Print() {
	t := c.Transport
	switch t.Kind {
	case TransportSerial:
		fmt.Printf("Transport: serial %s @ %d baud\n", t.Serial.Device, t.Serial.Baud)
	case TransportMQTT:
		fmt.Printf("Transport: mqtt %s (status=%s, commands=%s)\n", t.MQTT.Broker, t.MQTT.StatusTopic, t.MQTT.CommandTopic)
	default:
		fmt.Printf("Transport: %s %s:%d (reconnect %s)\n", t.Kind, t.Host, t.Port, t.ReconnectDelay())
	}
	fmt.Printf("Artwork: %dx%d RGB565", c.Artwork.Width, c.Artwork.Height)
	if c.Artwork.CacheDir != "" {
		fmt.Printf(", cache %s", c.Artwork.CacheDir)
	}
	fmt.Println()
	fmt.Printf("UI: %s, tick %s\n", c.UI.Mode, c.UI.Tick())
	if c.Recorder.Enabled {
		fmt.Printf("Recorder: %s (max %d rows)\n", c.Recorder.Path, c.Recorder.MaxRows)
	}
	if c.Logging.Enabled {
		fmt.Printf("Logging: %s (retain %d days, roll at %d bytes)\n", c.Logging.Dir, c.Logging.RetentionDays, c.Logging.MaxFileBytes)
	}
}
