package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fleetops/dutyroster/core/session"
)

func startMosquitto(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	conf := `listener 1883
allow_anonymous true
persistence false
log_dest stdout
`
	dir := t.TempDir()
	path := filepath.Join(dir, "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatalf("write conf: %v", err)
	}

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{
			{
				HostFilePath:      path,
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0644,
			},
		},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("container start: %v", err)
	}
	host, err := cont.Host(ctx)
	require.NoError(t, err)
	port, err := cont.MappedPort(ctx, "1883")
	require.NoError(t, err)
	return cont, fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

func TestNotifier_PublishesOverRealBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	cont, broker := startMosquitto(ctx, t)
	defer func() {
		_ = cont.Terminate(ctx)
	}()

	received := make(chan []byte, 1)
	subOpts := paho.NewClientOptions().AddBroker(broker).SetClientID("sub")
	sub := paho.NewClient(subOpts)
	token := sub.Connect()
	token.Wait()
	require.NoError(t, token.Error())
	defer sub.Disconnect(100)
	token = sub.Subscribe("roster/decisions", 1, func(_ paho.Client, msg paho.Message) {
		received <- msg.Payload()
	})
	token.Wait()
	require.NoError(t, token.Error())

	n, err := New(Config{Broker: broker, ClientID: "notify-e2e", QOS: 1}, nil)
	require.NoError(t, err)
	defer n.Close()

	ev := session.DecisionEvent{
		TenantID:  "acme",
		WeekStart: "2025-01-05",
		Decision:  session.Decision{BlockID: "b42", DriverID: "d7", Action: session.ActionAssigned},
	}
	require.NoError(t, n.NotifyDecision(ev))

	select {
	case payload := <-received:
		var got session.DecisionEvent
		require.NoError(t, json.Unmarshal(payload, &got))
		require.Equal(t, "b42", got.Decision.BlockID)
		require.Equal(t, "d7", got.Decision.DriverID)
	case <-time.After(5 * time.Second):
		t.Fatal("decision not delivered within 5s")
	}
}
