package mqttbridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GroundLink/internal/bus"
	"GroundLink/internal/logger"
	"GroundLink/internal/models"
)

type doneToken struct{ done chan struct{} }

func newDoneToken() *doneToken {
	t := &doneToken{done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{} { return t.done }
func (t *doneToken) Error() error { return nil }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient records publishes; other mqtt.Client methods are not used.
type fakeClient struct {
	mqtt.Client
	mu   sync.Mutex
	sent []published
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newDoneToken()
}

func (c *fakeClient) Connect() mqtt.Token { return newDoneToken() }
func (c *fakeClient) Disconnect(uint) {}

func (c *fakeClient) messages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.sent...)
}

func TestTopicAndQoS(t *testing.T) {
	assert.Equal(t, "gl/telemetry_flight", Topic("gl/", bus.TelemetryFlight))
	assert.Equal(t, "gl/link_status_updated", Topic("gl", bus.LinkStatusUpdated))
	assert.Equal(t, byte(0), QoS(bus.TelemetryNavigation))
	assert.Equal(t, byte(1), QoS(bus.CommandExecutionUpdated))
	assert.Equal(t, byte(1), QoS(bus.MissionStatusUpdated))
}

func TestEncode(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	payload, err := Encode(bus.ServerEvent{
		Kind:      bus.LinkStatusUpdated,
		Data:      models.LinkStatus{ID: "l1", Connected: true, BytesSent: 7},
		Timestamp: ts,
	})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "link_status_updated", decoded["kind"])
	assert.Equal(t, "2024-05-01T12:00:00Z", decoded["timestamp"])
	data := decoded["data"].(map[string]interface{})
	assert.Equal(t, "l1", data["id"])
	assert.Equal(t, true, data["connected"])
	assert.Equal(t, float64(7), data["bytes_sent"])
}

func TestDecodeClientEvent(t *testing.T) {
	ev, err := DecodeClientEvent([]byte(`{"kind":"execute_command","command_id":"c1",
		"request":{"command":{"arm_disarm":{"arm":true}},"executor":{"vehicle_id":"v1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, bus.ExecuteCommandEvent, ev.Kind)
	require.NotNil(t, ev.Request)
	require.NotNil(t, ev.Request.Command.ArmDisarm)
	assert.True(t, ev.Request.Command.ArmDisarm.Arm)
	assert.Equal(t, "v1", ev.Request.Executor.VehicleID)

	ev, err = DecodeClientEvent([]byte(`{"kind":"set_link_connected","link_id":"l1","connected":true}`))
	require.NoError(t, err)
	assert.Equal(t, bus.SetLinkConnected("l1", true), ev)

	for _, bad := range []string{
		`not json`,
		`{"kind":"reboot"}`,
		`{"kind":"execute_command","command_id":"c1"}`,
		`{"kind":"upload_mission"}`,
		`{"kind":"cancel_command"}`,
		`{"kind":"set_link_connected"}`,
	} {
		_, err := DecodeClientEvent([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestForwardsServerEvents(t *testing.T) {
	server := bus.NewServerBus()
	client := &fakeClient{}
	b := &Bridge{
		cfg:    Config{TopicPrefix: "gl", Buffer: 16, ConnectTimeout: time.Second},
		client: client,
		server: server,
		log:    logger.New("MQTT"),
	}
	require.NoError(t, b.Start(context.Background()))

	server.Publish(bus.NewServerEvent(bus.TelemetrySystem, models.System{ID: "v1"}))
	server.Publish(bus.NewServerEvent(bus.MissionStatusUpdated, models.DefaultMissionStatus("m1")))

	require.Eventually(t, func() bool { return len(client.messages()) == 2 }, time.Second, 5*time.Millisecond)
	b.Stop()

	sent := client.messages()
	assert.Equal(t, "gl/telemetry_system", sent[0].topic)
	assert.Equal(t, byte(0), sent[0].qos)
	assert.Equal(t, "gl/mission_status_updated", sent[1].topic)
	assert.Equal(t, byte(1), sent[1].qos)
	assert.Contains(t, string(sent[1].payload), `"not_actual"`)
}

type fakeMessage struct {
	mqtt.Message
	payload []byte
}

func (m fakeMessage) Payload() []byte { return m.payload }
func (m fakeMessage) Topic() string { return "gl/client" }

func TestClientMessagesReachBus(t *testing.T) {
	clientBus := bus.NewClientBus()
	sub := clientBus.Subscribe(4)
	b := New(Config{TopicPrefix: "gl", ClientEvents: true}, bus.NewServerBus(), clientBus)

	b.onClientMessage(nil, fakeMessage{payload: []byte(`{"kind":"download_mission","mission_id":"m1"}`)})
	b.onClientMessage(nil, fakeMessage{payload: []byte(`{"kind":"bogus"}`)})

	ev, ok := sub.TryRecv()
	require.True(t, ok)
	assert.Equal(t, bus.DownloadMission("m1"), ev)
	_, ok = sub.TryRecv()
	assert.False(t, ok)
}
