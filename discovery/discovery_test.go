package discovery

import (
	"testing"

	"github.com/lone-faerie/sensorlink/config"
	"github.com/lone-faerie/sensorlink/discovery/icon"
	"github.com/lone-faerie/sensorlink/mock"
)

func newDiscovery(t *testing.T) *Discovery {
	t.Helper()

	cfg := config.Default().Discovery
	cfg.DeviceName = "Study"
	d, err := New(&cfg, "sensors/home/study/availability")
	if err != nil {
		t.Fatal(err)
	}
	d.ObjectID = "gateway"
	return d
}

func TestID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"sensorlink", "sensorlink"},
		{"sensors/home/study/temp", "sensors_home_study_temp"},
		{"my host.local", "my_host_local"},
		{"/a//b/", "a_b"},
	}
	for _, tt := range tests {
		if got := ID(tt.in); got != tt.want {
			t.Errorf("ID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAdd(t *testing.T) {
	d := newDiscovery(t)

	if !d.Add("sensors/home/study/temperature") {
		t.Fatal("Add() = false for new sensor")
	}
	if d.Add("sensors/home/study/temperature") {
		t.Error("Add() = true for known sensor")
	}
	d.Add("sensors/home/study/door_state")
	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}

	cmp := d.Components["sensorlink_gateway_sensors_home_study_temperature"]
	if cmp == nil {
		t.Fatalf("component not found in %v", d.Components)
	}
	want := Component{
		Platform:            Sensor,
		Name:                "Temperature",
		StateTopic:          "sensors/home/study/temperature",
		UniqueID:            "sensorlink_gateway_sensors_home_study_temperature",
		AvailabilityTopic:   "sensors/home/study/availability",
		PayloadAvailable:    "online",
		PayloadNotAvailable: "offline",
		DeviceClass:         "temperature",
		StateClass:          "measurement",
		UnitOfMeasurement:   "°C",
		Icon:                icon.Temperature,
	}
	for opt, v := range want {
		if cmp[opt] != v {
			t.Errorf("%s = %v, want %v", opt, cmp[opt], v)
		}
	}
	if name := d.Components["sensorlink_gateway_sensors_home_study_door_state"][Name]; name != "Door State" {
		t.Errorf("Name = %v, want %q", name, "Door State")
	}
}

func TestPublish(t *testing.T) {
	d := newDiscovery(t)
	d.Add("sensors/home/study/humidity")

	c := mock.NewClient(nil, nil)
	tok, err := d.Publish(c)
	if err != nil {
		t.Fatal(err)
	}
	if err = tok.Error(); err != nil {
		t.Fatal(err)
	}

	msgs := c.Published()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	msg := msgs[0]
	if want := "homeassistant/device/sensorlink/gateway/config"; msg.Topic != want {
		t.Errorf("topic = %q, want %q", msg.Topic, want)
	}
	if !msg.Retained {
		t.Error("discovery payload not retained")
	}

	var payload struct {
		Origin     Origin                    `json:"o"`
		Device     Device                    `json:"dev"`
		Components map[string]map[string]any `json:"cmps"`
	}
	if err = json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Origin.Name != "sensorlink" {
		t.Errorf("origin = %q, want sensorlink", payload.Origin.Name)
	}
	if payload.Device.Name != "Study" {
		t.Errorf("device = %q, want Study", payload.Device.Name)
	}
	cmp := payload.Components["sensorlink_gateway_sensors_home_study_humidity"]
	if cmp["stat_t"] != "sensors/home/study/humidity" || cmp["unit_of_meas"] != "%" {
		t.Errorf("component = %v", cmp)
	}

	d.Remove(c)
	if msgs = c.Published(); len(msgs[1].Payload) != 0 {
		t.Errorf("Remove() payload = %q, want empty", msgs[1].Payload)
	}
}

func TestNewDevice(t *testing.T) {
	tests := []struct {
		name, host, want string
	}{
		{"Study", "gateway", "Study"},
		{"", "study-pi", "Study Pi"},
		{"hostname", "study-pi", "Study Pi"},
		{"", "raspberrypi", "Sensorlink"},
		{"", "", "Sensorlink"},
	}
	for _, tt := range tests {
		if got := NewDevice(tt.name, tt.host).Name; got != tt.want {
			t.Errorf("NewDevice(%q, %q).Name = %q, want %q", tt.name, tt.host, got, tt.want)
		}
	}
}
