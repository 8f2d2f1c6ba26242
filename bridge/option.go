package bridge

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/lone-faerie/sensorlink/discovery"
	"github.com/lone-faerie/sensorlink/internal/clock"
	"github.com/lone-faerie/sensorlink/link"
	"github.com/lone-faerie/sensorlink/log"
	"github.com/lone-faerie/sensorlink/retry"
	"github.com/lone-faerie/sensorlink/status"
	"github.com/lone-faerie/sensorlink/telemetry"
)

type Option func(*Bridge)

// WithClient sets the MQTT client. The client's will is the payload
// published by [Bridge.Close].
func WithClient(c mqtt.Client) Option {
	return func(b *Bridge) {
		b.client = c
	}
}

func WithLink(l link.Link) Option {
	return func(b *Bridge) {
		b.link = l
	}
}

// WithSyncer sets the clock synchronization step. A nil Syncer skips it.
func WithSyncer(s Syncer) Option {
	return func(b *Bridge) {
		b.syncer = s
		b.syncSet = true
	}
}

func WithSource(s telemetry.Source) Option {
	return func(b *Bridge) {
		b.source = s
	}
}

func WithIndicator(i status.Indicator) Option {
	return func(b *Bridge) {
		b.indicator = i
	}
}

func WithClock(c clock.Clock) Option {
	return func(b *Bridge) {
		b.clock = c
	}
}

// WithHandler sets the handler of messages received on subscribed topics.
func WithHandler(h Handler) Option {
	return func(b *Bridge) {
		b.handler = h
	}
}

func WithDiscovery(d *discovery.Discovery) Option {
	return func(b *Bridge) {
		b.discovery = d
	}
}

// WithRetry sets the retry policy of every connection step.
func WithRetry(p retry.Policy) Option {
	return func(b *Bridge) {
		b.linkPolicy = p
		b.timePolicy = p
		b.mqttPolicy = p
	}
}

// WithLogLevel installs loggers for the MQTT client package logging at level
// and above.
func WithLogLevel(level log.Level) Option {
	return func(b *Bridge) {
		mqtt.CRITICAL, mqtt.ERROR, mqtt.WARN, mqtt.DEBUG = noopLogger, noopLogger, noopLogger, noopLogger

		if level <= log.LevelError {
			mqtt.CRITICAL = log.ErrorLogger()
			mqtt.ERROR = log.ErrorLogger()
		}
		if level <= log.LevelWarn {
			mqtt.WARN = log.WarnLogger()
		}
		if level <= log.LevelDebug {
			mqtt.DEBUG = log.DebugLogger()
		}
	}
}

func WithTopicPrefix(prefix string) Option {
	return func(b *Bridge) {
		b.topicPrefix = prefix
	}
}
