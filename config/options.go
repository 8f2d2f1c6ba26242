package config

import "time"

// Option modifies the default Config before its values are expanded.
type Option func(*Config)

// WithTopicPrefix sets the topic prefix.
func WithTopicPrefix(prefix string) Option {
	return func(cfg *Config) {
		cfg.TopicPrefix = prefix
	}
}

// WithBroker sets the broker address.
func WithBroker(broker string) Option {
	return func(cfg *Config) {
		cfg.MQTT.Broker = broker
	}
}

// WithStatic selects the static telemetry source publishing every interval.
func WithStatic(interval time.Duration) Option {
	return func(cfg *Config) {
		cfg.Telemetry.Source = SourceStatic
		cfg.Telemetry.Interval = interval
	}
}

// WithoutTimeSync disables synchronizing the wall clock.
func WithoutTimeSync() Option {
	return func(cfg *Config) {
		cfg.Time.Enabled = false
	}
}
