package config

import "time"

// DefaultBufferSize is the capacity of the serial message buffer, including
// the terminator.
const DefaultBufferSize = 40

// TelemetryConfig is the configuration of the telemetry source.
type TelemetryConfig struct {
	// Source is "serial" (default) to read readings from the serial port, or
	// "static" to publish the Static readings every Interval.
	Source string `yaml:"source"`
	// Interval is the cadence of the static source.
	Interval time.Duration `yaml:"interval"`
	// PublishDelay is the pause after every publish, during which the
	// status indicator stays on.
	PublishDelay time.Duration  `yaml:"publish_delay"`
	Serial       SerialConfig   `yaml:"serial"`
	Static       []StaticConfig `yaml:"static,omitempty"`
}

// SerialConfig is the configuration of the serial port the sensor board is
// attached to. Messages are JSON objects of the form
// {"sensor": "<name>", "value": "<payload>"} followed by Terminator.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	// BufferSize is the capacity of the message buffer including the
	// terminator. Longer messages are truncated.
	BufferSize int  `yaml:"buffer_size"`
	Terminator byte `yaml:"terminator"`
	// ReadTimeout bounds how long a read waits for data, so the loop is
	// never blocked by a quiet port.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// StaticConfig is a fixed reading published by the static source. Topic is
// published to verbatim.
type StaticConfig struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
}

func defaultTelemetry() TelemetryConfig {
	return TelemetryConfig{
		Source:       SourceSerial,
		Interval:     5 * time.Second,
		PublishDelay: 100 * time.Millisecond,
		Serial: SerialConfig{
			Port:        "/dev/ttyUSB0",
			Baud:        115200,
			BufferSize:  DefaultBufferSize,
			ReadTimeout: 10 * time.Millisecond,
		},
		Static: []StaticConfig{
			{Topic: "sensors/home/study/temperature", Payload: "21.5"},
			{Topic: "sensors/home/study/humidity", Payload: "45"},
			{Topic: "sensors/home/study/movement", Payload: "0"},
		},
	}
}
