// Package config provides the structures used for configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lone-faerie/sensorlink/config/secrets"
	"github.com/lone-faerie/sensorlink/log"
)

// Payloads published to the availability topic.
const (
	AvailabilitySuffix = "availability"
	OnlinePayload      = "online"
	OfflinePayload     = "offline"
)

// Telemetry sources.
const (
	SourceSerial = "serial"
	SourceStatic = "static"
)

// Config contains the configuration for the connection loop and telemetry.
// Config should be created with a call to [Default], [Read], or [Load] as
// string values are expanded and defaults filled in after decoding.
type Config struct {
	// TopicPrefix is prepended to serial sensor names and is the base of the
	// availability topic. A leading or trailing "~" in any configured topic
	// is replaced by TopicPrefix.
	TopicPrefix string `yaml:"topic_prefix"`
	// LoopDelay is the pause at the end of every loop iteration.
	LoopDelay time.Duration   `yaml:"loop_delay"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Link      LinkConfig      `yaml:"link"`
	Time      TimeConfig      `yaml:"time"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Status    StatusConfig    `yaml:"status,omitempty"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Retry     RetryConfig     `yaml:"retry"`
	Log       LogConfig       `yaml:"log"`
}

// LinkConfig is the configuration of the network link that must be up
// before connecting to the broker.
type LinkConfig struct {
	// Interface is the network interface to wait for, e.g. "wlan0". If blank
	// then any non-loopback interface with an address is accepted.
	Interface string `yaml:"interface,omitempty"`
	// PollInterval is the delay between checks of the link.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// TimeConfig is the configuration for synchronizing the wall clock.
type TimeConfig struct {
	Enabled bool     `yaml:"enabled"`
	Servers []string `yaml:"servers"`
	// MinEpoch is the smallest unix time accepted as a synchronized clock.
	MinEpoch     int64         `yaml:"min_epoch"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	// UTCOffset is the offset of the local time zone used when printing
	// the current time.
	UTCOffset time.Duration `yaml:"utc_offset"`
}

// StatusConfig is the configuration for the status indicator.
type StatusConfig struct {
	// LED is the name of the LED under /sys/class/leds toggled around every
	// publish. If blank then no indicator is used.
	LED string `yaml:"led,omitempty"`
}

// RetryConfig is the retry policy used for every connection step. The delay
// between attempts is the poll or retry interval of the step.
type RetryConfig struct {
	// Backoff is "constant" (default) or "exponential".
	Backoff string `yaml:"backoff"`
	// MaxAttempts is the number of failed attempts before giving up. The
	// default of 0 retries forever.
	MaxAttempts int `yaml:"max_attempts"`
}

// LogConfig is the configuration of the default logger.
type LogConfig struct {
	Level  log.Level `yaml:"level"`
	Output string    `yaml:"output,omitempty"`
	Format string    `yaml:"format,omitempty"`
}

// Default returns the default Config when no config file is provided.
func Default(opts ...Option) *Config {
	cfg := newDefault()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.load()
	return cfg
}

func newDefault() *Config {
	return &Config{
		TopicPrefix: "sensors/home/study",
		LoopDelay:   500 * time.Millisecond,
		MQTT:        defaultMQTT(),
		Link: LinkConfig{
			PollInterval: 500 * time.Millisecond,
		},
		Time: TimeConfig{
			Enabled:      true,
			Servers:      []string{"pool.ntp.org", "time.nist.gov"},
			MinEpoch:     1510592825,
			PollInterval: 500 * time.Millisecond,
			Timeout:      5 * time.Second,
			UTCOffset:    -5 * time.Hour,
		},
		Telemetry: defaultTelemetry(),
		Discovery: DiscoveryConfig{
			Prefix:   "homeassistant",
			NodeID:   "sensorlink",
			Retained: true,
		},
		Retry: RetryConfig{
			Backoff: "constant",
		},
		Log: LogConfig{
			Level:  log.LevelInfo,
			Output: "stderr",
			Format: "text",
		},
	}
}

// Read returns the Config parsed from the yaml encoded config from r.
// Values missing from r keep their default.
func Read(r io.Reader) (*Config, error) {
	cfg := newDefault()
	if err := yaml.NewDecoder(r).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.load()
	return cfg, nil
}

// Load returns the Config parsed from the yaml file at path. Any .env file in
// the working directory or next to path is loaded into the environment first,
// without overriding variables that are already set. If path does not exist,
// the default config is returned.
func Load(path string) (*Config, error) {
	loadDotEnv(path)

	log.Info("Loading config", "path", path)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info("No config file, using defaults", "path", path)
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func loadDotEnv(path string) {
	files := []string{".env"}
	if path != "" {
		if env := filepath.Join(filepath.Dir(path), ".env"); env != files[0] {
			files = append(files, env)
		}
	}
	for _, name := range files {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			log.WarnError("Unable to load env file", err, "path", name)
		} else {
			log.Debug("Loaded env file", "path", name)
		}
	}
}

// AvailabilityTopic returns the topic the online and offline payloads are
// published to, "<topic_prefix>/availability".
func (cfg *Config) AvailabilityTopic() string {
	return cfg.TopicPrefix + "/" + AvailabilitySuffix
}

// Validate reports the configuration values that cannot be used.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.TopicPrefix == "" {
		errs = append(errs, errors.New("topic_prefix is empty"))
	}
	if cfg.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is empty"))
	}
	switch cfg.Telemetry.Source {
	case SourceSerial:
		if cfg.Telemetry.Serial.Port == "" {
			errs = append(errs, errors.New("telemetry.serial.port is empty"))
		}
		if cfg.Telemetry.Serial.BufferSize < 2 {
			errs = append(errs, fmt.Errorf("telemetry.serial.buffer_size %d is too small", cfg.Telemetry.Serial.BufferSize))
		}
	case SourceStatic:
		if cfg.Telemetry.Interval <= 0 {
			errs = append(errs, errors.New("telemetry.interval must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("telemetry.source %q is not one of %q, %q", cfg.Telemetry.Source, SourceSerial, SourceStatic))
	}
	switch strings.ToLower(cfg.Retry.Backoff) {
	case "", "constant", "fixed", "exponential":
	default:
		errs = append(errs, fmt.Errorf("retry.backoff %q is unknown", cfg.Retry.Backoff))
	}
	return errors.Join(errs...)
}

func (cfg *Config) load() {
	log.Debug("Topic Prefix", "prefix", cfg.TopicPrefix)

	cfg.forValue(reflect.ValueOf(cfg).Elem(), "")

	if cfg.Telemetry.Serial.BufferSize <= 0 {
		cfg.Telemetry.Serial.BufferSize = DefaultBufferSize
	}
	if cfg.MQTT.RetryInterval <= 0 {
		cfg.MQTT.RetryInterval = DefaultRetryInterval
	}
	if cfg.Telemetry.Source == "" {
		cfg.Telemetry.Source = SourceSerial
	}
}

var topicFields = []string{
	"Topic", "Subscribe",
}

// forValue expands every string reachable from v, replacing the base of
// topic fields with the topic prefix.
func (cfg *Config) forValue(v reflect.Value, field string) {
	switch v.Kind() {
	case reflect.String:
		s := Expand(v.String())
		if slices.Contains(topicFields, field) {
			s = ReplaceBase(cfg.TopicPrefix, s)
		}
		v.SetString(s)
	case reflect.Struct:
		t := v.Type()
		n := v.NumField()
		for i := 0; i < n; i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			cfg.forValue(v.Field(i), f.Name)
		}
	case reflect.Slice, reflect.Array:
		n := v.Len()
		for i := 0; i < n; i++ {
			cfg.forValue(v.Index(i), field)
		}
	case reflect.Pointer:
		if !v.IsNil() {
			cfg.forValue(v.Elem(), field)
		}
	}
}

// ReplaceBase replaces a "~" at the start or end of topic with base.
//
//	ReplaceBase("base", "~/foo") => "base/foo"
//	ReplaceBase("base", "foo/~") => "foo/base"
func ReplaceBase(base, topic string) string {
	if topic == "~" {
		return base
	}
	if s, ok := strings.CutPrefix(topic, "~/"); ok {
		topic = base + "/" + s
	}
	if s, ok := strings.CutSuffix(topic, "/~"); ok {
		topic = s + "/" + base
	}
	return topic
}

// Expand replaces ${var} or $var in s according to the values of
// the current environment variables, and replaces !secret var according
// to the file at /run/secrets/<var>.
func Expand(s string) string {
	if secret, ok := secrets.CutPrefix(s); ok {
		return secrets.MustRead(secret, "")
	}
	return os.ExpandEnv(s)
}

// Write writes the yaml encoding of cfg to w.
func (cfg *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()

	enc.SetIndent(2)
	return enc.Encode(cfg)
}
