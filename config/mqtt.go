package config

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/lone-faerie/sensorlink/log"
)

// DefaultPort is the port of the broker if the broker address has none.
const DefaultPort = 1883

// DefaultRetryInterval is the delay between attempts to connect to the broker.
const DefaultRetryInterval = 5 * time.Second

// MQTTConfig is the configuration for the MQTT client.
//
// See [mqtt.ClientOptions]
type MQTTConfig struct {
	// Broker is the address of the broker. The format should be scheme://host:port
	// where "scheme" is one of "tcp", "ssl", or "ws", "host" is the ip-address
	// (or hostname) and "port" is the port on which the broker is accepting
	// connections. The scheme defaults to "tcp" and the port to 1883.
	Broker string `yaml:"broker"`
	// ClientID is the client ID used when connecting to the broker. If blank
	// then one is derived from the program name, hostname and pid.
	ClientID string `yaml:"client_id,omitempty"`
	// Username is the username used when connecting to the broker.
	Username string `yaml:"username"`
	// Password is the password used when connecting to the broker.
	Password string `yaml:"password"`
	// RetryInterval is the delay between attempts to connect to the broker.
	RetryInterval time.Duration `yaml:"retry_interval"`
	// KeepAlive is the duration that the client should wait before pinging the broker.
	KeepAlive time.Duration `yaml:"keep_alive,omitempty"`
	// ConnectTimeout is the duration that the client will wait when attempting to open a
	// connection to the broker before timing out.
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`
	// PingTimeout is the duration that the client will wait after pinging the broker to
	// determine if the connection was lost.
	PingTimeout time.Duration `yaml:"ping_timeout,omitempty"`
	// WriteTimeout is the duration that the client will block for when publishing a message
	// before unblocking with a timeout error. A duration of 0 means the client will never
	// time out.
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
	// CertFile is the path to the PEM-encoded TLS certificate. If blank (default) then
	// TLS is not used between the client and the broker.
	CertFile string `yaml:"cert_file,omitempty"`
	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file,omitempty"`
	// Subscribe is the list of topics whose messages are logged when received.
	Subscribe []string `yaml:"subscribe,omitempty"`
	// LogLevel is the log level to provide to the backing MQTT client package.
	// See [mqtt.Logger]
	LogLevel log.Level `yaml:"log_level"`

	tlsCert *tls.Certificate
}

func defaultMQTT() MQTTConfig {
	return MQTTConfig{
		Broker:        "$SENSORLINK_BROKER_ADDRESS",
		ClientID:      "$SENSORLINK_CLIENT_ID",
		Username:      "$SENSORLINK_BROKER_USERNAME",
		Password:      "$SENSORLINK_BROKER_PASSWORD",
		RetryInterval: DefaultRetryInterval,
		LogLevel:      log.LevelDisabled,
	}
}

// BrokerURI returns the broker address with the scheme and port filled in.
func (cfg *MQTTConfig) BrokerURI() string {
	addr := cfg.Broker
	if addr == "" {
		return ""
	}

	scheme := "tcp"
	if s, rest, ok := strings.Cut(addr, "://"); ok {
		scheme, addr = s, rest
	}

	if _, _, err := net.SplitHostPort(addr); err != nil {
		host := strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
		addr = net.JoinHostPort(host, strconv.Itoa(DefaultPort))
	}

	return scheme + "://" + addr
}

// ClientOptions returns cfg formatted as [mqtt.ClientOptions] to provide to
// the backing MQTT client when calling [mqtt.NewClient]. The last will is
// registered on willTopic with the offline payload, QoS 0 and not retained.
// Automatic reconnection is disabled since the connection loop reconnects.
func (cfg *MQTTConfig) ClientOptions(willTopic string) *mqtt.ClientOptions {
	o := mqtt.NewClientOptions()
	o.AddBroker(cfg.BrokerURI())
	o.SetClientID(cfg.clientID())
	o.SetUsername(cfg.Username).SetPassword(cfg.Password)
	o.SetAutoReconnect(false)
	o.SetConnectRetry(false)
	o.SetWill(willTopic, OfflinePayload, 0, false)

	if cfg.KeepAlive > 0 {
		o.SetKeepAlive(cfg.KeepAlive)
	}

	if cfg.ConnectTimeout > 0 {
		o.SetConnectTimeout(cfg.ConnectTimeout)
	}

	if cfg.PingTimeout > 0 {
		o.SetPingTimeout(cfg.PingTimeout)
	}

	if cfg.WriteTimeout > 0 {
		o.SetWriteTimeout(cfg.WriteTimeout)
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		o.SetTLSConfig(&tls.Config{
			GetClientCertificate: cfg.getCertificate,
		})
	}

	return o
}

func (cfg *MQTTConfig) clientID() string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	binary := path.Base(os.Args[0])
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s_%s_%d", binary, hostname, os.Getpid())
}

func (cfg *MQTTConfig) getCertificate(_ *tls.CertificateRequestInfo) (*tls.Certificate, error) {
	if cfg.tlsCert == nil {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}

		cfg.tlsCert = &cert
	}

	return cfg.tlsCert, nil
}

// DiscoveryConfig is the configuration for performing MQTT discovery of the
// published sensors.
//
// See https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Prefix is the discovery_prefix part of the discovery topic
	// in the form <discovery_prefix>/<component>/[<node_id>/]<object_id>/config.
	// The default value is "homeassistant"
	Prefix string `yaml:"prefix"`
	// NodeID is the node_id part of the discovery topic. It may only
	// consist of characters from [a-zA-Z0-9_-].
	NodeID string `yaml:"node_id,omitempty"`
	// DeviceName is the name of the device grouping the sensors. If blank
	// then the hostname is used.
	DeviceName string `yaml:"device_name,omitempty"`
	// Retained indicates if the discovery payload should be retained at the broker.
	Retained bool `yaml:"retained"`
	// QoS is the Quality of Service used for the discovery payload.
	QoS byte `yaml:"qos,omitempty"`
}
