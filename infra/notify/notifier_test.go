package notify

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/dutyroster/core/session"
)

type mockToken struct {
	err error
}

func (t *mockToken) Wait() bool                       { return true }
func (t *mockToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *mockToken) Error() error                     { return t.err }
func (t *mockToken) Done() <-chan struct{}            { return make(chan struct{}) }

type mockClient struct {
	Disconnected bool
	Topic        string
	Payload      []byte
	PublishErr   error
}

func (m *mockClient) IsConnected() bool       { return true }
func (m *mockClient) Disconnect(quiesce uint) { m.Disconnected = true }
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	m.Topic = topic
	m.Payload = payload.([]byte)
	return &mockToken{err: m.PublishErr}
}

func TestNotifyDecision_PublishesJSON(t *testing.T) {
	mc := &mockClient{}
	n := NewWithClient(Config{Topic: "roster/decisions"}, mc)

	ev := session.DecisionEvent{
		TenantID:  "acme",
		WeekStart: "2025-01-05",
		Decision:  session.Decision{BlockID: "b1", DriverID: "d1", Action: session.ActionAssigned},
	}
	require.NoError(t, n.NotifyDecision(ev))
	require.Equal(t, "roster/decisions", mc.Topic)

	var got session.DecisionEvent
	require.NoError(t, json.Unmarshal(mc.Payload, &got))
	require.Equal(t, "acme", got.TenantID)
	require.Equal(t, "b1", got.Decision.BlockID)
}

func TestNotifyDecision_PublishError(t *testing.T) {
	mc := &mockClient{PublishErr: errors.New("broker gone")}
	n := NewWithClient(Config{}, mc)
	err := n.NotifyDecision(session.DecisionEvent{})
	require.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	require.Equal(t, "dutyroster-notify", cfg.ClientID)
	require.Equal(t, "roster/decisions", cfg.Topic)
}

func TestClose_DisconnectsClient(t *testing.T) {
	mc := &mockClient{}
	n := NewWithClient(Config{}, mc)
	n.Close()
	require.True(t, mc.Disconnected)
}
