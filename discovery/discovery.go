// Package discovery builds the Home Assistant MQTT discovery payload for the
// sensors published by the bridge. All sensors belong to one device, and the
// device payload is republished whenever a new sensor is seen.
//
// See https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery
package discovery

import (
	"errors"
	"os"
	"path"
	"regexp"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"

	"github.com/lone-faerie/sensorlink/config"
)

const (
	BinarySensor = "binary_sensor"
	Sensor       = "sensor"
)

const (
	Diagnostic = "diagnostic"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Component is the discovery config of a single entity.
type Component map[Option]any

// Discovery is the device discovery payload.
type Discovery struct {
	Origin     *Origin              `json:"o"`
	Device     *Device              `json:"dev"`
	Components map[string]Component `json:"cmps"`

	AvailabilityTopic string `json:"-"`
	ObjectID          string `json:"-"`
	NodeID            string `json:"-"`

	prefix   string
	qos      byte
	retained bool
	mu       sync.Mutex
}

var invalidID = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// ID returns s with every run of characters not allowed in a node or object
// id replaced by an underscore.
func ID(s string) string {
	return strings.Trim(invalidID.ReplaceAllString(s, "_"), "_")
}

// New returns the Discovery for the device given by cfg, whose sensors are
// available while availability reads "online".
func New(cfg *config.DiscoveryConfig, availability string) (*Discovery, error) {
	host, _ := os.Hostname()
	dev := NewDevice(cfg.DeviceName, host)

	d := &Discovery{
		Origin:            NewOrigin(),
		Device:            dev,
		Components:        make(map[string]Component),
		AvailabilityTopic: availability,
		NodeID:            ID(cfg.NodeID),
		ObjectID:          ID(host),
		prefix:            cfg.Prefix,
		qos:               cfg.QoS,
		retained:          cfg.Retained,
	}
	if d.NodeID == "" {
		d.NodeID = "sensorlink"
	}
	if d.ObjectID == "" {
		d.ObjectID = ID(dev.Name)
	}
	if d.ObjectID == "" {
		return nil, errors.New("no object id")
	}
	dev.Identifiers = []string{d.NodeID + "_" + d.ObjectID}
	return d, nil
}

// Topic returns the topic the discovery payload is published to.
func (d *Discovery) Topic() string {
	elems := []string{d.prefix, "device", d.NodeID, d.ObjectID, "config"}
	return strings.Join(elems, "/")
}

// Add adds a component for the sensor whose state is published to topic.
// It reports false if the component is already present.
func (d *Discovery) Add(topic string) bool {
	id := ID(d.NodeID + "_" + d.ObjectID + "_" + topic)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.Components[id]; ok {
		return false
	}

	name := path.Base(topic)
	cmp := Component{
		Platform:            Sensor,
		Name:                Title(name),
		StateTopic:          topic,
		UniqueID:            id,
		AvailabilityTopic:   d.AvailabilityTopic,
		PayloadAvailable:    config.OnlinePayload,
		PayloadNotAvailable: config.OfflinePayload,
	}
	for opt, v := range classify(name) {
		cmp[opt] = v
	}
	d.Components[id] = cmp
	return true
}

// Len returns the number of components.
func (d *Discovery) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Components)
}

// MarshalJSON returns the discovery payload.
func (d *Discovery) MarshalJSON() ([]byte, error) {
	type discovery Discovery

	d.mu.Lock()
	defer d.mu.Unlock()
	return json.Marshal((*discovery)(d))
}

// Publish publishes the discovery payload with c without waiting for it to
// be sent.
func (d *Discovery) Publish(c mqtt.Client) (mqtt.Token, error) {
	payload, err := d.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return c.Publish(d.Topic(), d.qos, d.retained, payload), nil
}

// Remove publishes an empty payload to the discovery topic, which deletes
// the device and its components.
func (d *Discovery) Remove(c mqtt.Client) mqtt.Token {
	return c.Publish(d.Topic(), d.qos, d.retained, []byte{})
}
