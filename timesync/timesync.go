// Package timesync synchronizes the wall clock with NTP servers before
// anything time-dependent, such as TLS, is attempted.
package timesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/beevik/ntp"

	"github.com/lone-faerie/sensorlink/config"
	"github.com/lone-faerie/sensorlink/log"
)

// ErrImplausible is returned by [Syncer.Sync] when a server reports a time
// before the configured minimum epoch.
var ErrImplausible = errors.New("implausible time")

// QueryFunc asks host for the current time.
type QueryFunc func(host string, timeout time.Duration) (*ntp.Response, error)

// Query is the default QueryFunc, which validates the response.
func Query(host string, timeout time.Duration) (*ntp.Response, error) {
	resp, err := ntp.QueryWithOptions(host, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	if err = resp.Validate(); err != nil {
		return nil, err
	}
	return resp, nil
}

// Syncer keeps the offset between the local clock and NTP time.
type Syncer struct {
	servers  []string
	minEpoch time.Time
	timeout  time.Duration
	zone     *time.Location
	query    QueryFunc

	mu     sync.RWMutex
	offset time.Duration
	synced bool
}

// New returns a Syncer for the servers in cfg. If query is nil [Query] is used.
func New(cfg config.TimeConfig, query QueryFunc) *Syncer {
	if query == nil {
		query = Query
	}
	return &Syncer{
		servers:  cfg.Servers,
		minEpoch: time.Unix(cfg.MinEpoch, 0),
		timeout:  cfg.Timeout,
		zone:     Zone(cfg.UTCOffset),
		query:    query,
	}
}

// Zone returns a fixed time zone offset from UTC.
func Zone(offset time.Duration) *time.Location {
	secs := int(offset / time.Second)
	name := "UTC"
	if secs != 0 {
		sign, abs := '+', secs
		if secs < 0 {
			sign, abs = '-', -secs
		}
		name = fmt.Sprintf("UTC%c%d", sign, abs/3600)
		if m := (abs % 3600) / 60; m != 0 {
			name += fmt.Sprintf(":%02d", m)
		}
	}
	return time.FixedZone(name, secs)
}

// Sync queries the servers in order until one reports a plausible time.
func (s *Syncer) Sync(ctx context.Context) error {
	if len(s.servers) == 0 {
		return errors.New("no time servers")
	}

	var errs []error
	for _, host := range s.servers {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := s.query(host, s.timeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", host, err))
			continue
		}
		if resp.Time.Before(s.minEpoch) {
			errs = append(errs, fmt.Errorf("%s: %w %s", host, ErrImplausible, resp.Time.UTC().Format(time.RFC3339)))
			continue
		}

		s.mu.Lock()
		s.offset = resp.ClockOffset
		s.synced = true
		s.mu.Unlock()

		log.Info("Time synchronized", "server", host, "offset", resp.ClockOffset, "time", s.Local().Format(time.ANSIC))
		return nil
	}
	return errors.Join(errs...)
}

// Synced reports whether a Sync has succeeded.
func (s *Syncer) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// Offset returns the offset to add to the local clock.
func (s *Syncer) Offset() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset
}

// Now returns the current time corrected by the last synchronization.
func (s *Syncer) Now() time.Time {
	return time.Now().Add(s.Offset())
}

// Local returns [Syncer.Now] in the configured time zone.
func (s *Syncer) Local() time.Time {
	return s.Now().In(s.zone)
}
