// Package notify publishes scheduling decisions over MQTT so downstream
// systems can react without polling the ledger.
package notify

import (
	"crypto/tls"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fleetops/dutyroster/core/session"
	"github.com/fleetops/dutyroster/infra/logger"
)

// Config describes the MQTT notifier.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
	QOS      byte   `json:"qos"`
}

// SetDefaults fills optional fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "dutyroster-notify"
	}
	if c.Topic == "" {
		c.Topic = "roster/decisions"
	}
}

// Client is the subset of the paho client the notifier needs.
type Client interface {
	IsConnected() bool
	Disconnect(uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Notifier serializes decision events as JSON and publishes them on a topic.
type Notifier struct {
	client Client
	topic  string
	qos    byte
	log    logger.Logger
}

// New connects to the broker and returns a ready notifier.
func New(cfg Config, tlsConfig *tls.Config) (*Notifier, error) {
	cfg.SetDefaults()
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetTLSConfig(tlsConfig).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return NewWithClient(cfg, client), nil
}

// NewWithClient builds a notifier around an existing client connection.
func NewWithClient(cfg Config, client Client) *Notifier {
	cfg.SetDefaults()
	return &Notifier{
		client: client,
		topic:  cfg.Topic,
		qos:    cfg.QOS,
		log:    logger.New("notify"),
	}
}

// NotifyDecision publishes one decision event. Marshal or broker errors are
// returned to the caller; the notifier never blocks scheduling on delivery.
func (n *Notifier) NotifyDecision(ev session.DecisionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	token := n.client.Publish(n.topic, n.qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		n.log.Errorf("publish decision for block %s: %v", ev.Decision.BlockID, err)
		return err
	}
	return nil
}

// Close disconnects from the broker.
func (n *Notifier) Close() {
	if n.client.IsConnected() {
		n.client.Disconnect(250)
	}
}
