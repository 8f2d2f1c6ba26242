package bridge

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/beevik/ntp"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/lone-faerie/sensorlink/config"
	"github.com/lone-faerie/sensorlink/discovery"
	"github.com/lone-faerie/sensorlink/internal/clock"
	"github.com/lone-faerie/sensorlink/link"
	"github.com/lone-faerie/sensorlink/mock"
	"github.com/lone-faerie/sensorlink/retry"
	"github.com/lone-faerie/sensorlink/telemetry"
	"github.com/lone-faerie/sensorlink/timesync"
)

const (
	prefix       = "sensors/home/study"
	availability = prefix + "/availability"
)

var start = time.Unix(1700000000, 0)

// recorder records the connection steps and indicator changes in order.
type recorder struct {
	mu     sync.Mutex
	events []string
	leds   []bool

	linkDown int
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) Up(ctx context.Context) error {
	if r.linkDown > 0 {
		r.linkDown--
		return link.ErrDown
	}
	r.add("link")
	return nil
}

func (r *recorder) Sync(context.Context) error {
	r.add("time")
	return nil
}

func (r *recorder) Set(on bool) error {
	r.mu.Lock()
	r.leds = append(r.leds, on)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

type fixture struct {
	*Bridge
	client *mock.Client
	clock  *clock.Fake
	rec    *recorder
}

func newFixture(t *testing.T, cfg *config.Config, src telemetry.Source, opts ...Option) *fixture {
	t.Helper()

	if cfg == nil {
		cfg = config.Default(config.WithBroker("localhost"))
	}

	rec := &recorder{}
	o := cfg.MQTT.ClientOptions(cfg.AvailabilityTopic())
	o.SetOnConnectHandler(func(mqtt.Client) { rec.add("mqtt") })
	c := mock.NewClient(o, nil)
	clk := clock.NewFake(start)

	opts = append([]Option{
		WithClient(c),
		WithLink(rec),
		WithSyncer(rec),
		WithIndicator(rec),
		WithClock(clk),
		WithSource(src),
	}, opts...)

	b, err := New(cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{Bridge: b, client: c, clock: clk, rec: rec}
}

func (f *fixture) step(t *testing.T) {
	t.Helper()
	if err := f.Step(context.Background()); err != nil {
		t.Fatalf("Step() = %v", err)
	}
}

func topics(msgs []mock.Message) []string {
	s := make([]string, len(msgs))
	for i, m := range msgs {
		s[i] = m.String()
	}
	return s
}

func TestStepSerial(t *testing.T) {
	var port bytes.Buffer
	f := newFixture(t, nil, telemetry.NewSerialSource(&port, telemetry.DefaultSize, 0))

	port.WriteString(`{"sensor":"temp","value":"21.5"}` + "\x00")
	f.step(t)

	want := []string{
		availability + " online",
		prefix + "/temp 21.5",
	}
	if got := topics(f.client.Published()); !slices.Equal(got, want) {
		t.Errorf("published %q, want %q", got, want)
	}
	if f.State() != Connected {
		t.Errorf("State() = %v, want connected", f.State())
	}
	if want := []string{"link", "time", "mqtt"}; !slices.Equal(f.rec.Events(), want) {
		t.Errorf("events = %v, want %v", f.rec.Events(), want)
	}
	if want := []bool{true, false, true, false}; !slices.Equal(f.rec.leds, want) {
		t.Errorf("indicator = %v, want %v", f.rec.leds, want)
	}
	if want := 600 * time.Millisecond; f.clock.Slept() != want {
		t.Errorf("slept %v, want %v", f.clock.Slept(), want)
	}

	msg := f.client.Published()[1]
	if msg.QoS != 0 || msg.Retained {
		t.Errorf("telemetry published with qos %d, retained %t", msg.QoS, msg.Retained)
	}
}

func TestStepMalformed(t *testing.T) {
	var port bytes.Buffer
	f := newFixture(t, nil, telemetry.NewSerialSource(&port, telemetry.DefaultSize, 0))

	port.WriteString(`{"sensor":"temp",` + "\x00" + `{"sensor":"hum","value":"45"}` + "\x00")
	f.step(t)
	f.step(t)

	want := []string{
		availability + " online",
		prefix + "/hum 45",
	}
	if got := topics(f.client.Published()); !slices.Equal(got, want) {
		t.Errorf("published %q, want %q", got, want)
	}
}

func TestReconnect(t *testing.T) {
	var port bytes.Buffer
	f := newFixture(t, nil, telemetry.NewSerialSource(&port, telemetry.DefaultSize, 0))

	port.WriteString(`{"sensor":"temp","value":"21.5"}` + "\x00")
	f.step(t)

	f.client.Drop()
	port.WriteString(`{"sensor":"temp","value":"22"}` + "\x00")
	f.step(t)

	want := []string{
		availability + " online",
		prefix + "/temp 21.5",
		availability + " online",
		prefix + "/temp 22",
	}
	if got := topics(f.client.Published()); !slices.Equal(got, want) {
		t.Errorf("published %q, want %q", got, want)
	}
	if want := []string{"link", "time", "mqtt", "link", "time", "mqtt"}; !slices.Equal(f.rec.Events(), want) {
		t.Errorf("events = %v, want %v", f.rec.Events(), want)
	}
	if wills := topics(f.client.Wills()); !slices.Equal(wills, []string{availability + " offline"}) {
		t.Errorf("wills = %q", wills)
	}
	if f.Sessions() != 2 {
		t.Errorf("Sessions() = %d, want 2", f.Sessions())
	}
}

func TestOnlineOncePerSession(t *testing.T) {
	f := newFixture(t, nil, telemetry.NewStatic(time.Second, telemetry.Reading{Sensor: "a", Value: "1"}))

	for i := 0; i < 10; i++ {
		f.step(t)
	}

	var online int
	for i, msg := range f.client.Published() {
		if msg.Topic != availability {
			continue
		}
		if i != 0 {
			t.Errorf("online published at %d, after telemetry", i)
		}
		online++
	}
	if online != 1 {
		t.Errorf("online published %d times, want 1", online)
	}
}

func TestSyncedClock(t *testing.T) {
	cfg := config.Default(config.WithBroker("localhost"))
	offset := time.Hour
	s := timesync.New(cfg.Time, func(string, time.Duration) (*ntp.Response, error) {
		return &ntp.Response{Time: time.Now().Add(offset), ClockOffset: offset}, nil
	})

	rec := &recorder{}
	b, err := New(cfg,
		WithClient(mock.NewClient(cfg.MQTT.ClientOptions(cfg.AvailabilityTopic()), nil)),
		WithLink(rec),
		WithSyncer(s),
		WithIndicator(rec),
		WithSource(telemetry.NewStatic(cfg.Telemetry.Interval)),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Establish(context.Background()); err != nil {
		t.Fatalf("Establish() = %v", err)
	}

	if skew := b.clock.Now().Sub(time.Now()); skew < offset-time.Minute || skew > offset+time.Minute {
		t.Errorf("clock skew = %v, want about %v", skew, offset)
	}
}

func TestStatic(t *testing.T) {
	cfg := config.Default(config.WithBroker("localhost"), config.WithStatic(5*time.Second))
	src := telemetry.NewStatic(cfg.Telemetry.Interval, telemetry.StaticReadings(cfg.Telemetry.Static)...)
	f := newFixture(t, cfg, src)

	// A burst at 5.8s makes a third one due at 11.6s, so two bursts are only
	// expected within 10s.
	var bursts []time.Duration
	for f.clock.Now().Before(start.Add(10 * time.Second)) {
		at := f.clock.Now().Sub(start)
		n := len(f.client.Published())
		f.step(t)

		var published []string
		for _, msg := range f.client.Published()[n:] {
			if msg.Topic != availability {
				published = append(published, msg.String())
			}
		}
		if len(published) == 0 {
			continue
		}

		want := []string{
			"sensors/home/study/temperature 21.5",
			"sensors/home/study/humidity 45",
			"sensors/home/study/movement 0",
		}
		if !slices.Equal(published, want) {
			t.Fatalf("burst at %v = %q, want %q", at, published, want)
		}
		bursts = append(bursts, at)
	}

	if len(bursts) != 2 {
		t.Fatalf("bursts at %v, want 2", bursts)
	}
	if bursts[0] != 0 {
		t.Errorf("first burst at %v, want 0", bursts[0])
	}
	if bursts[1] < 5*time.Second || bursts[1] > 6*time.Second {
		t.Errorf("second burst at %v, want about 5s", bursts[1])
	}
}

func TestEstablishRetry(t *testing.T) {
	errRefused := errors.New("connection refused")

	t.Run("Forever", func(t *testing.T) {
		f := newFixture(t, nil, telemetry.NewStatic(time.Second))
		f.rec.linkDown = 4
		f.client.FailConnects(3, errRefused)

		if err := f.Establish(context.Background()); err != nil {
			t.Fatal(err)
		}
		want := 4*500*time.Millisecond + 3*config.DefaultRetryInterval
		if f.clock.Slept() != want {
			t.Errorf("slept %v, want %v", f.clock.Slept(), want)
		}
		if f.client.Connects() != 1 {
			t.Errorf("Connects() = %d, want 1", f.client.Connects())
		}
	})

	t.Run("GiveUp", func(t *testing.T) {
		f := newFixture(t, nil, telemetry.NewStatic(time.Second),
			WithRetry(retry.Limited{Interval: 5 * time.Second, Attempts: 3}))
		f.client.FailConnects(10, errRefused)

		err := f.Run(context.Background())
		if !errors.Is(err, retry.ErrGaveUp) || !errors.Is(err, errRefused) {
			t.Fatalf("Run() = %v, want ErrGaveUp wrapping %v", err, errRefused)
		}
		if f.clock.Slept() != 10*time.Second {
			t.Errorf("slept %v, want 10s", f.clock.Slept())
		}
		if len(f.client.Published()) != 0 {
			t.Errorf("published %v before connecting", f.client.Published())
		}
	})

	t.Run("Canceled", func(t *testing.T) {
		f := newFixture(t, nil, telemetry.NewStatic(time.Second))
		f.client.FailConnects(10, errRefused)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := f.Run(ctx); err != nil {
			t.Fatalf("Run() = %v, want nil", err)
		}
	})
}

func TestClose(t *testing.T) {
	f := newFixture(t, nil, telemetry.NewStatic(time.Second))
	f.step(t)

	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	msgs := f.client.Published()
	if got := msgs[len(msgs)-1].String(); got != availability+" offline" {
		t.Errorf("last published %q, want offline", got)
	}
	if f.client.IsConnected() || f.State() != Disconnected {
		t.Error("connected after Close()")
	}
}

func TestSend(t *testing.T) {
	f := newFixture(t, nil, telemetry.NewStatic(time.Second))

	err := f.Send(context.Background(), telemetry.Reading{Sensor: "door", Value: "open"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		availability + " online",
		prefix + "/door open",
		availability + " offline",
	}
	if got := topics(f.client.Published()); !slices.Equal(got, want) {
		t.Errorf("published %q, want %q", got, want)
	}
}

func TestPublishFailure(t *testing.T) {
	f := newFixture(t, nil, telemetry.NewStatic(time.Second, telemetry.Reading{Sensor: "a", Value: "1"}))
	f.step(t)

	f.client.FailPublishes(errors.New("queue full"))
	f.clock.Advance(2 * time.Second)
	f.step(t)

	if len(f.pending) != 0 {
		t.Errorf("%d publishes still pending after yield", len(f.pending))
	}
}

func TestHandler(t *testing.T) {
	cfg := config.Default(config.WithBroker("localhost"))
	cfg.MQTT.Subscribe = []string{prefix + "/command/#"}

	var got []string
	f := newFixture(t, cfg, telemetry.NewStatic(time.Second), WithHandler(HandlerFunc(func(topic string, payload []byte) {
		got = append(got, topic+" "+string(payload))
	})))
	f.step(t)

	if !f.client.Deliver(prefix+"/command/led", []byte("on")) {
		t.Fatal("no subscription for command topic")
	}
	if want := []string{prefix + "/command/led on"}; !slices.Equal(got, want) {
		t.Errorf("handled %q, want %q", got, want)
	}
}

func TestDiscovery(t *testing.T) {
	cfg := config.Default(config.WithBroker("localhost"))
	cfg.Discovery.Enabled = true
	d, err := discovery.New(&cfg.Discovery, availability)
	if err != nil {
		t.Fatal(err)
	}

	var port bytes.Buffer
	f := newFixture(t, cfg, telemetry.NewSerialSource(&port, telemetry.DefaultSize, 0), WithDiscovery(d))

	port.WriteString(`{"sensor":"temp","value":"21.5"}` + "\x00")
	f.step(t)
	port.WriteString(`{"sensor":"temp","value":"22"}` + "\x00")
	f.step(t)

	msgs := f.client.Published()
	want := []string{availability, d.Topic(), prefix + "/temp", prefix + "/temp"}
	var got []string
	for _, m := range msgs {
		got = append(got, m.Topic)
	}
	if !slices.Equal(got, want) {
		t.Errorf("published to %q, want %q", got, want)
	}
	if d.Len() != 1 {
		t.Errorf("discovered %d sensors, want 1", d.Len())
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Disconnected, "disconnected"},
		{Connected, "connected"},
		{State(7), "State(7)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}
