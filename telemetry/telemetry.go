// Package telemetry provides the sources of sensor readings published by the
// bridge: a serial-attached sensor board sending JSON messages, or a fixed
// set of readings published on a schedule.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/lone-faerie/sensorlink/config"
)

// Reading is a single sensor value to publish.
type Reading struct {
	// Sensor is the topic suffix of the reading, or the full topic if
	// Qualified is true.
	Sensor    string
	Value     string
	Qualified bool
}

// Topic returns the topic r is published to: prefix/Sensor, or Sensor
// verbatim if r is qualified.
func (r Reading) Topic(prefix string) string {
	if r.Qualified || prefix == "" {
		return r.Sensor
	}
	return prefix + "/" + r.Sensor
}

func (r Reading) String() string {
	return r.Sensor + "=" + r.Value
}

// Source produces readings. Poll is called once per loop iteration and must
// not block waiting for data.
type Source interface {
	// Poll returns the readings available at now, if any.
	Poll(ctx context.Context, now time.Time) ([]Reading, error)
	// Close releases the resources of the source.
	Close() error
}

// Acker is implemented by sources that schedule their next readings from
// the time the previous readings were published.
type Acker interface {
	Ack(now time.Time)
}

// New returns the source selected by cfg.Telemetry.Source.
func New(cfg *config.Config) (Source, error) {
	switch cfg.Telemetry.Source {
	case config.SourceSerial, "":
		return OpenSerial(cfg.Telemetry.Serial)
	case config.SourceStatic:
		return NewStatic(cfg.Telemetry.Interval, StaticReadings(cfg.Telemetry.Static)...), nil
	}
	return nil, fmt.Errorf("unknown telemetry source %q", cfg.Telemetry.Source)
}
