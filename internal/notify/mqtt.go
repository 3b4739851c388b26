// Package notify publishes provisioning results for other systems to pick up.
package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 5 * time.Second

// Result is the outcome of one provisioning session.
type Result struct {
	Session   string `json:"session"`
	Device    string `json:"device"`
	State     string `json:"state"`
	ExitCode  int    `json:"exitCode"`
	Error     string `json:"error,omitempty"`
	Commands  int    `json:"commands"`
	Timestamp string `json:"timestamp"`
}

// MQTTConfig describes the broker results go to. URL carries the base
// topic, e.g. mqtt://broker.lan/lab/switches.
type MQTTConfig struct {
	URL      string
	ClientID string
	Username string
	Password string
}

// MQTT publishes results to the endpoint's status topic.
type MQTT struct {
	client mqtt.Client
	status string
	logger *log.Logger
}

// Endpoint is where results go: a paho broker address and the base topic.
type Endpoint struct {
	Broker string
	Topic  string
}

// StatusTopic is the topic results are published on.
func (e Endpoint) StatusTopic() string { return e.Topic + "/status" }

// ParseEndpoint reads mqtt://host[:port]/topic (tcp:// is accepted too).
// The port defaults to 1883.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid broker URL %q: %w", raw, err)
	}
	switch u.Scheme {
	case "mqtt", "tcp":
	default:
		return Endpoint{}, fmt.Errorf("broker URL %q: scheme must be mqtt or tcp", raw)
	}

	topic := strings.Trim(u.Path, "/")
	if u.Hostname() == "" || topic == "" {
		return Endpoint{}, fmt.Errorf("broker URL %q: need both a host and a topic", raw)
	}

	port := u.Port()
	if port == "" {
		port = "1883"
	}
	return Endpoint{
		Broker: "tcp://" + net.JoinHostPort(u.Hostname(), port),
		Topic:  topic,
	}, nil
}

// DialMQTT connects to the broker named in cfg.
func DialMQTT(cfg MQTTConfig, logger *log.Logger) (*MQTT, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	ep, err := ParseEndpoint(cfg.URL)
	if err != nil {
		return nil, err
	}

	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("switchload_%d", time.Now().Unix())
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(ep.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(publishTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Printf("MQTT connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", ep.Broker, token.Error())
	}
	logger.Printf("Connected to MQTT broker %s, results go to %s", ep.Broker, ep.StatusTopic())

	return &MQTT{client: client, status: ep.StatusTopic(), logger: logger}, nil
}

// Publish sends r as JSON.
func (m *MQTT) Publish(r Result) error {
	if r.Timestamp == "" {
		r.Timestamp = time.Now().Format(time.RFC3339)
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("error marshaling result: %w", err)
	}

	token := m.client.Publish(m.status, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to %s", m.status)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("error publishing to %s: %w", m.status, err)
	}

	m.logger.Printf("Published result to topic '%s'", m.status)
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
