// Package mock provides an in-memory [mqtt.Client] that records what is
// published. It backs the dry-run mode of the CLI and the tests.
package mock

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"

	"github.com/lone-faerie/sensorlink/log"
)

// ErrNotConnected is the error of tokens for publishes while disconnected.
var ErrNotConnected = errors.New("not connected")

// Message is a recorded publish.
type Message struct {
	Topic    string `json:"topic"`
	Payload  []byte `json:"-"`
	QoS      byte   `json:"qos"`
	Retained bool   `json:"retained"`
}

func (m Message) String() string {
	return m.Topic + " " + string(m.Payload)
}

// Client is an [mqtt.Client] that never touches the network. Publishes are
// recorded, and written to w as JSON if w is not nil.
type Client struct {
	opts *mqtt.ClientOptions
	w    io.Writer

	mu           sync.Mutex
	connected    bool
	connects     int
	failConnects int
	connectErr   error
	publishErr   error
	published    []Message
	wills        []Message
	routes       map[string]mqtt.MessageHandler
}

// NewClient returns a disconnected Client with the options o, which may be nil.
func NewClient(o *mqtt.ClientOptions, w io.Writer) *Client {
	if o == nil {
		o = mqtt.NewClientOptions()
	}
	return &Client{
		opts:   o,
		w:      w,
		routes: make(map[string]mqtt.MessageHandler),
	}
}

// FailConnects makes the next n calls to Connect fail with err.
func (c *Client) FailConnects(n int, err error) {
	c.mu.Lock()
	c.failConnects = n
	c.connectErr = err
	c.mu.Unlock()
}

// FailPublishes makes every following publish fail with err, or succeed
// again if err is nil.
func (c *Client) FailPublishes(err error) {
	c.mu.Lock()
	c.publishErr = err
	c.mu.Unlock()
}

// Drop closes the connection as if the network went away. The will message,
// if any, is recorded as delivered by the broker.
func (c *Client) Drop() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	if c.opts.WillEnabled {
		c.wills = append(c.wills, Message{
			Topic:    c.opts.WillTopic,
			Payload:  c.opts.WillPayload,
			QoS:      c.opts.WillQos,
			Retained: c.opts.WillRetained,
		})
	}
	lost := c.opts.OnConnectionLost
	c.mu.Unlock()

	if lost != nil {
		lost(c, errors.New("connection reset by peer"))
	}
}

// Connects returns the number of successful connects.
func (c *Client) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// Published returns the messages published so far.
func (c *Client) Published() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.published)
}

// Wills returns the will messages delivered by [Client.Drop].
func (c *Client) Wills() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.wills)
}

// Deliver passes a message to the handlers of every matching subscription
// and reports whether there was one.
func (c *Client) Deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	var handlers []mqtt.MessageHandler
	for filter, h := range c.routes {
		if Match(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(c, &message{topic: topic, payload: payload})
	}
	return len(handlers) > 0
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) IsConnectionOpen() bool {
	return c.IsConnected()
}

func (c *Client) Connect() mqtt.Token {
	c.mu.Lock()
	if c.failConnects > 0 {
		c.failConnects--
		err := c.connectErr
		c.mu.Unlock()
		return newToken(err)
	}
	c.connected = true
	c.connects++
	onConnect := c.opts.OnConnect
	c.mu.Unlock()

	if onConnect != nil {
		onConnect(c)
	}
	return newToken(nil)
}

func (c *Client) Disconnect(_ uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var p []byte
	switch v := payload.(type) {
	case []byte:
		p = slices.Clone(v)
	case string:
		p = []byte(v)
	case bytes.Buffer:
		p = slices.Clone(v.Bytes())
	default:
		return newToken(fmt.Errorf("unknown payload type %T", payload))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return newToken(ErrNotConnected)
	}
	if c.publishErr != nil {
		return newToken(c.publishErr)
	}

	msg := Message{Topic: topic, Payload: p, QoS: qos, Retained: retained}
	c.published = append(c.published, msg)
	if c.w != nil {
		c.write(msg)
	}
	return newToken(nil)
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func (c *Client) write(msg Message) {
	e := json.NewEncoder(c.w)
	e.SetIndent("", "  ")
	err := e.Encode(struct {
		Message
		Payload string `json:"payload"`
	}{msg, string(msg.Payload)})
	if err != nil {
		log.Error("Error encoding "+msg.Topic, err)
	}
	if s, ok := c.w.(interface{ Sync() error }); ok {
		s.Sync()
	}
}

func (c *Client) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return c.SubscribeMultiple(map[string]byte{topic: qos}, callback)
}

func (c *Client) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return newToken(ErrNotConnected)
	}
	if callback == nil {
		callback = c.opts.DefaultPublishHandler
	}
	for topic := range filters {
		c.routes[topic] = callback
	}
	return newToken(nil)
}

func (c *Client) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.routes, topic)
	}
	return newToken(nil)
}

func (c *Client) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	c.routes[topic] = callback
	c.mu.Unlock()
}

func (c *Client) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.NewOptionsReader(c.opts)
}

type message struct {
	topic   string
	payload []byte
}

func (m *message) Duplicate() bool   { return false }
func (m *message) Qos() byte         { return 0 }
func (m *message) Retained() bool    { return false }
func (m *message) MessageID() uint16 { return 0 }
func (m *message) Ack()              {}

func (m *message) Topic() string {
	return m.topic
}

func (m *message) Payload() []byte {
	return m.payload
}
