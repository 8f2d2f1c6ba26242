// Package bridge runs the connection loop that bridges sensor telemetry to an
// MQTT broker. A [Bridge] brings the network link up, synchronizes the clock,
// connects to the broker with a last will, announces itself online and then
// publishes readings from its telemetry source, reconnecting whenever the
// connection is lost.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/lone-faerie/sensorlink/config"
	"github.com/lone-faerie/sensorlink/discovery"
	"github.com/lone-faerie/sensorlink/internal/clock"
	"github.com/lone-faerie/sensorlink/link"
	"github.com/lone-faerie/sensorlink/log"
	"github.com/lone-faerie/sensorlink/retry"
	"github.com/lone-faerie/sensorlink/status"
	"github.com/lone-faerie/sensorlink/telemetry"
	"github.com/lone-faerie/sensorlink/timesync"
)

// State is the connection state of a Bridge.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Syncer synchronizes the wall clock.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Bridge is the mqtt client that bridges telemetry to the mqtt broker.
type Bridge struct {
	client    mqtt.Client
	link      link.Link
	syncer    Syncer
	syncSet   bool
	source    telemetry.Source
	indicator status.Indicator
	clock     clock.Clock
	handler   Handler
	discovery *discovery.Discovery

	topicPrefix  string
	availability string
	subscribe    []string
	loopDelay    time.Duration
	publishDelay time.Duration

	linkPolicy retry.Policy
	timePolicy retry.Policy
	mqttPolicy retry.Policy

	state      State
	sessions   int
	discovered map[string]bool
	pending    []mqtt.Token
}

var noopLogger = mqtt.NOOPLogger{}

// New returns a new Bridge with the given config and options. The config is
// used to fill in any values not provided by the options. Unless a source is
// given with [WithSource], the telemetry source is opened here.
func New(cfg *config.Config, opts ...Option) (*Bridge, error) {
	b := &Bridge{}

	for _, opt := range opts {
		opt(b)
	}

	if b.topicPrefix == "" {
		b.topicPrefix = cfg.TopicPrefix
	}
	b.availability = b.topicPrefix + "/" + config.AvailabilitySuffix
	b.subscribe = cfg.MQTT.Subscribe
	b.loopDelay = cfg.LoopDelay
	b.publishDelay = cfg.Telemetry.PublishDelay

	if b.handler == nil {
		b.handler = LogHandler()
	}

	if b.client == nil {
		o := cfg.MQTT.ClientOptions(b.availability)
		o.SetDefaultPublishHandler(b.onMessage)
		o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WarnError("Connection lost", err)
		})
		b.client = mqtt.NewClient(o)
	}

	if cfg.MQTT.LogLevel < log.LevelDisabled && mqtt.ERROR == noopLogger {
		WithLogLevel(cfg.MQTT.LogLevel)(b)
	}

	if b.link == nil {
		b.link = link.New(cfg.Link)
	}

	if !b.syncSet && cfg.Time.Enabled {
		b.syncer = timesync.New(cfg.Time, nil)
	}

	if b.clock == nil {
		b.clock = clock.Real()
		if s, ok := b.syncer.(*timesync.Syncer); ok {
			b.clock = clock.Adjust(b.clock, s.Offset)
		}
	}

	if b.indicator == nil {
		b.indicator = status.New(cfg.Status)
	}

	if b.discovery == nil && cfg.Discovery.Enabled {
		d, err := discovery.New(&cfg.Discovery, b.availability)
		if err != nil {
			log.Error("Unable to get discovery", err)
		} else {
			b.discovery = d
		}
	}

	if err := b.policies(cfg); err != nil {
		return nil, err
	}

	if b.source == nil {
		src, err := telemetry.New(cfg)
		if err != nil {
			return nil, err
		}
		b.source = src
	}

	return b, nil
}

func (b *Bridge) policies(cfg *config.Config) (err error) {
	policy := func(p *retry.Policy, interval time.Duration) {
		if *p != nil || err != nil {
			return
		}
		*p, err = retry.New(cfg.Retry.Backoff, interval, cfg.Retry.MaxAttempts)
	}

	policy(&b.linkPolicy, cfg.Link.PollInterval)
	policy(&b.timePolicy, cfg.Time.PollInterval)
	policy(&b.mqttPolicy, cfg.MQTT.RetryInterval)

	return err
}

// State returns the state of the bridge as of the last loop iteration.
func (b *Bridge) State() State {
	return b.state
}

// Sessions returns the number of connections established.
func (b *Bridge) Sessions() int {
	return b.sessions
}

// waitToken waits for the first of ctx.Done() or t.Done() and returns t.Error(),
// or ctx.Err() if ctx.Done() finished first.
func waitToken(ctx context.Context, t mqtt.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Done():
	}

	return t.Error()
}

type step struct {
	name   string
	policy retry.Policy
	fn     func(context.Context) error
}

// Establish runs the connection sequence: link, time, broker. Each step is
// retried according to its policy. Once connected, the online payload is
// published to the availability topic and the configured topics are
// subscribed to.
func (b *Bridge) Establish(ctx context.Context) error {
	b.state = Disconnected
	b.setIndicator(true)

	steps := []step{
		{"link", b.linkPolicy, b.link.Up},
		{"time", b.timePolicy, b.sync},
		{"mqtt", b.mqttPolicy, b.connect},
	}

	for _, s := range steps {
		if err := retry.Do(ctx, b.clock, s.policy, s.fn, notify(s.name)); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}

	b.state = Connected
	b.sessions++
	b.discovered = nil
	log.Info("Connected", "broker", b.brokers(), "session", b.sessions)

	if err := waitToken(ctx, b.announce()); err != nil {
		if ctx.Err() != nil {
			return err
		}
		log.WarnError("Unable to announce availability", err, "topic", b.availability)
	}

	if len(b.subscribe) > 0 {
		b.subscribeAll(ctx)
	}

	b.setIndicator(false)

	return nil
}

func notify(step string) retry.Notify {
	return func(failures int, err error, next time.Duration) {
		switch {
		case step == "mqtt":
			log.WarnError("Unable to connect to broker", err, "attempt", failures, "retry", next)
		case failures == 1:
			log.Info("Waiting for "+step, "cause", err, "retry", next)
		default:
			log.Debug("Waiting for "+step, "cause", err, "attempt", failures)
		}
	}
}

func (b *Bridge) sync(ctx context.Context) error {
	if b.syncer == nil {
		return nil
	}
	return b.syncer.Sync(ctx)
}

func (b *Bridge) connect(ctx context.Context) error {
	t := b.client.Connect()
	return waitToken(ctx, t)
}

func (b *Bridge) brokers() []string {
	opts := b.client.OptionsReader()
	servers := opts.Servers()
	s := make([]string, len(servers))
	for i := range servers {
		s[i] = servers[i].String()
	}
	return s
}

// announce publishes the online payload to the availability topic.
func (b *Bridge) announce() mqtt.Token {
	return b.client.Publish(b.availability, 0, false, config.OnlinePayload)
}

// publishWill publishes the client's LWT payload to the LWT topic.
func (b *Bridge) publishWill() mqtt.Token {
	opts := b.client.OptionsReader()
	return b.client.Publish(opts.WillTopic(), opts.WillQos(), opts.WillRetained(), opts.WillPayload())
}

func (b *Bridge) subscribeAll(ctx context.Context) {
	filters := make(map[string]byte, len(b.subscribe))
	for _, topic := range b.subscribe {
		filters[topic] = 0
	}

	t := b.client.SubscribeMultiple(filters, b.onMessage)
	if err := waitToken(ctx, t); err != nil {
		log.Error("Could not subscribe", err, "topics", b.subscribe)
		return
	}
	log.Debug("Subscribed", "topics", b.subscribe)
}

func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	b.handler.HandleMessage(msg.Topic(), msg.Payload())
}

func (b *Bridge) setIndicator(on bool) {
	if err := b.indicator.Set(on); err != nil {
		log.Debug("Unable to set status indicator", "on", on, "cause", err)
	}
}

// Publish publishes r without waiting for it to be sent. The status
// indicator is lit for the publish delay that follows.
func (b *Bridge) Publish(ctx context.Context, r telemetry.Reading) error {
	topic := r.Topic(b.topicPrefix)

	if b.discovery != nil && !b.discovered[topic] {
		b.discover(topic)
	}

	b.setIndicator(true)
	defer b.setIndicator(false)

	log.Info("Publishing", "topic", topic, "payload", r.Value)
	b.pending = append(b.pending, b.client.Publish(topic, 0, false, r.Value))

	return b.clock.Sleep(ctx, b.publishDelay)
}

func (b *Bridge) discover(topic string) {
	if b.discovered == nil {
		b.discovered = make(map[string]bool)
	}
	b.discovered[topic] = true
	b.discovery.Add(topic)

	t, err := b.discovery.Publish(b.client)
	if err != nil {
		log.WarnError("Unable to marshal discovery", err)
		return
	}
	b.pending = append(b.pending, t)
}

// yield checks the publishes still in flight without blocking, logging the
// ones that failed.
func (b *Bridge) yield() {
	n := 0
	for _, t := range b.pending {
		select {
		case <-t.Done():
			if err := t.Error(); err != nil {
				log.WarnError("Unable to publish", err)
			}
		default:
			b.pending[n] = t
			n++
		}
	}
	clear(b.pending[n:])
	b.pending = b.pending[:n]
}

// Step runs one iteration of the connection loop: reconnect if the
// connection was lost, publish the readings available from the source,
// check publishes in flight and sleep for the loop delay.
func (b *Bridge) Step(ctx context.Context) error {
	if !b.client.IsConnected() {
		if b.state == Connected {
			log.Warn("Disconnected, reconnecting")
		}
		if err := b.Establish(ctx); err != nil {
			return err
		}
	}

	readings, err := b.source.Poll(ctx, b.clock.Now())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.WarnError("Unable to read telemetry", err)
	}

	for _, r := range readings {
		if err := b.Publish(ctx, r); err != nil {
			return err
		}
	}

	if len(readings) > 0 {
		if a, ok := b.source.(telemetry.Acker); ok {
			a.Ack(b.clock.Now())
		}
	}

	b.yield()

	return b.clock.Sleep(ctx, b.loopDelay)
}

// Run runs the connection loop until ctx is done, in which case it returns
// nil, or until a connection step gives up.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		err := b.Step(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil
		}
		return err
	}
}

// Send connects, publishes readings, waits for them to be sent and closes the
// bridge.
func (b *Bridge) Send(ctx context.Context, readings ...telemetry.Reading) error {
	defer b.Close()

	if err := b.Establish(ctx); err != nil {
		return err
	}

	for _, r := range readings {
		if err := b.Publish(ctx, r); err != nil {
			return err
		}
	}

	var errs []error
	for _, t := range b.pending {
		errs = append(errs, waitToken(ctx, t))
	}
	b.pending = nil

	return errors.Join(errs...)
}

// Close publishes the offline payload, disconnects from the broker and
// closes the telemetry source.
func (b *Bridge) Close() error {
	log.Debug("Closing bridge")

	if b.client.IsConnected() || b.client.IsConnectionOpen() {
		t := b.publishWill()
		t.WaitTimeout(time.Second)

		b.client.Disconnect(250)
	}

	b.state = Disconnected
	b.pending = nil

	return b.source.Close()
}
