package telemetry

import (
	"context"
	"slices"
	"time"

	"github.com/lone-faerie/sensorlink/config"
)

// StaticSource returns the same readings every interval. The first poll
// always returns them; later polls return them once the clock is strictly
// past the end of the previous burst plus the interval. The end of a burst
// is reported with [StaticSource.Ack], or is the poll time otherwise.
type StaticSource struct {
	readings []Reading
	interval time.Duration
	next     time.Time
	started  bool
}

// NewStatic returns a StaticSource publishing readings every interval.
func NewStatic(interval time.Duration, readings ...Reading) *StaticSource {
	return &StaticSource{
		readings: readings,
		interval: interval,
	}
}

// StaticReadings converts the configured readings, which are published to
// their topic verbatim.
func StaticReadings(cfg []config.StaticConfig) []Reading {
	r := make([]Reading, len(cfg))
	for i := range cfg {
		r[i] = Reading{
			Sensor:    cfg[i].Topic,
			Value:     cfg[i].Payload,
			Qualified: true,
		}
	}
	return r
}

func (s *StaticSource) Poll(_ context.Context, now time.Time) ([]Reading, error) {
	if s.started && !now.After(s.next) {
		return nil, nil
	}
	s.started = true
	s.next = now.Add(s.interval)
	return slices.Clone(s.readings), nil
}

// Ack marks the end of the burst returned by the last poll at now.
func (s *StaticSource) Ack(now time.Time) {
	if s.started {
		s.next = now.Add(s.interval)
	}
}

// Next returns the time after which the next burst is due.
func (s *StaticSource) Next() time.Time {
	return s.next
}

func (s *StaticSource) Close() error { return nil }
