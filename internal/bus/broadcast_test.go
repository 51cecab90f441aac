package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GroundLink/internal/models"
)

func TestFanOut(t *testing.T) {
	b := NewClientBus()
	first := b.Subscribe(4)
	second := b.Subscribe(4)

	assert.Equal(t, 2, b.Publish(DownloadMission("m1")))

	ev, ok := first.TryRecv()
	require.True(t, ok)
	assert.Equal(t, DownloadMissionEvent, ev.Kind)
	assert.Equal(t, "m1", ev.MissionID)

	ev, ok = second.TryRecv()
	require.True(t, ok)
	assert.Equal(t, "m1", ev.MissionID)

	_, ok = first.TryRecv()
	assert.False(t, ok)
}

func TestFullSubscriberDropsOnlyForItself(t *testing.T) {
	b := NewServerBus()
	slow := b.Subscribe(1)
	fast := b.Subscribe(8)

	b.Publish(NewServerEvent(TelemetryFlight, models.Flight{ID: "a"}))
	delivered := b.Publish(NewServerEvent(TelemetryFlight, models.Flight{ID: "b"}))
	assert.Equal(t, 1, delivered)

	ev, ok := slow.TryRecv()
	require.True(t, ok)
	assert.Equal(t, "a", ev.Data.(models.Flight).ID)
	_, ok = slow.TryRecv()
	assert.False(t, ok)

	assert.Len(t, fast.C(), 2)
}

func TestUnsubscribe(t *testing.T) {
	b := NewClientBus()
	sub := b.Subscribe(2)
	sub.Close()
	sub.Close()

	assert.Equal(t, 0, b.Subscribers())
	assert.Equal(t, 0, b.Publish(CancelCommand("c1")))

	_, ok := <-sub.C()
	assert.False(t, ok)
}

func TestCloseBroadcast(t *testing.T) {
	b := NewClientBus()
	sub := b.Subscribe(2)
	b.Close()

	_, ok := sub.TryRecv()
	assert.False(t, ok)
	assert.Equal(t, 0, b.Publish(SetLinkConnected("l1", true)))

	late := b.Subscribe(1)
	_, ok = <-late.C()
	assert.False(t, ok)
}

func TestEventConstructors(t *testing.T) {
	req := CommandRequest{
		Command:  models.Command{ArmDisarm: &models.ArmDisarm{Arm: true}},
		Executor: models.Executor{VehicleID: "v1"},
	}
	ev := ExecuteCommand(req, "c1")
	require.NotNil(t, ev.Request)
	assert.Equal(t, "arm_disarm", ev.Request.Command.Name())
	assert.Equal(t, "c1", ev.CommandID)

	ev = SetLinkConnected("l1", true)
	assert.Equal(t, SetLinkConnectedEvent, ev.Kind)
	assert.True(t, ev.Connected)

	assert.True(t, TelemetrySystem.IsTelemetry())
	assert.False(t, MissionStatusUpdated.IsTelemetry())
}

func TestValidateClientEvent(t *testing.T) {
	assert.NoError(t, DownloadMission("m1").Validate())
	assert.NoError(t, CancelCommand("c1").Validate())
	assert.Error(t, DownloadMission("").Validate())
	assert.Error(t, ClientEvent{Kind: ExecuteCommandEvent, CommandID: "c1"}.Validate())
	assert.Error(t, ClientEvent{Kind: "reboot"}.Validate())
}
