package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GroundLink/internal/bus"
	"GroundLink/internal/codec"
	"GroundLink/internal/link"
	"GroundLink/internal/models"
	"GroundLink/internal/store"
)

var (
	epoch     = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	wallClock = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	tables  *store.Tables
	server  *bus.ServerBus
	events  *bus.Subscription[bus.ServerEvent]
	client  *bus.ClientBus
	handler *Handler
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	tables := store.NewTables(store.NewMemoryBackend())
	server := bus.NewServerBus()
	client := bus.NewClientBus()
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		tables: tables,
		server: server,
		events: server.Subscribe(1024),
		client: client,
		now:    epoch,
	}
	f.handler = New(DefaultConfig(), tables, server, client.Subscribe(16),
		WithWallClock(func() time.Time { return wallClock }), WithName("test"))
	return f
}

func (f *fixture) frame(sys uint8, msg message.Message) {
	f.handler.HandleFrame(f.ctx, link.Frame{SystemID: sys, ComponentID: 1, Message: msg})
}

func (f *fixture) tick() []message.Message {
	return f.handler.Tick(f.ctx, f.now)
}

func (f *fixture) advance(d time.Duration) []message.Message {
	f.now = f.now.Add(d)
	return f.tick()
}

func (f *fixture) heartbeat(sys uint8, mavType common.MAV_TYPE) {
	f.frame(sys, &common.MessageHeartbeat{
		Type:         mavType,
		Autopilot:    common.MAV_AUTOPILOT_ARDUPILOTMEGA,
		BaseMode:     common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED,
		SystemStatus: common.MAV_STATE_STANDBY,
	})
}

// vehicle returns the id of the vehicle bound to sys.
func (f *fixture) vehicle(sys uint8) string {
	found, err := f.tables.VehicleDescriptions.SelectWhere(f.ctx, "protocol_id", models.MavlinkProtocolID(sys))
	require.NoError(f.t, err)
	require.Len(f.t, found, 1)
	return found[0].ID
}

func (f *fixture) assign(missionID string, sys uint8, items ...models.MissionRouteItem) {
	_, err := f.tables.MissionAssignments.Create(f.ctx, &models.MissionAssignment{ID: missionID, VehicleID: f.vehicle(sys)})
	require.NoError(f.t, err)
	if items == nil {
		items = []models.MissionRouteItem{}
	}
	_, err = f.tables.MissionRoutes.Create(f.ctx, &models.MissionRoute{ID: missionID, Items: items})
	require.NoError(f.t, err)
}

func (f *fixture) missionStatus(id string) models.MissionStatus {
	s, err := f.tables.MissionStatuses.SelectOne(f.ctx, id)
	require.NoError(f.t, err)
	return *s
}

// drain returns the server events published so far.
func (f *fixture) drain() []bus.ServerEvent {
	var out []bus.ServerEvent
	for {
		ev, ok := f.events.TryRecv()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func lastCommandState(events []bus.ServerEvent, id string) (models.CommandState, bool) {
	var state models.CommandState
	found := false
	for _, ev := range events {
		if e, ok := ev.Data.(models.CommandExecution); ok && e.ID == id {
			state, found = e.State, true
		}
	}
	return state, found
}

func armRequest(vehicleID string) bus.CommandRequest {
	return bus.CommandRequest{
		Command:  models.Command{ArmDisarm: &models.ArmDisarm{Arm: true}},
		Executor: models.Executor{VehicleID: vehicleID},
	}
}

// ============================================================================
// Heartbeat and telemetry
// ============================================================================

func TestAutoAddOnFirstHeartbeat(t *testing.T) {
	f := newFixture(t)

	f.frame(7, &common.MessageHeartbeat{
		Type:         common.MAV_TYPE_QUADROTOR,
		Autopilot:    common.MAV_AUTOPILOT_ARDUPILOTMEGA,
		BaseMode:     common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED | common.MAV_MODE_FLAG_SAFETY_ARMED,
		CustomMode:   5,
		SystemStatus: common.MAV_STATE_ACTIVE,
	})

	all, err := f.tables.VehicleDescriptions.SelectAll(f.ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	desc := all[0]
	assert.Equal(t, models.VehicleTypeCopter, desc.Type)
	require.NotNil(t, desc.Protocol.Mavlink)
	assert.Equal(t, uint8(7), desc.Protocol.Mavlink.MavID)
	assert.Equal(t, codec.AvailableModes(models.VehicleTypeCopter), desc.AvailableModes)
	assert.Equal(t, codec.CopterModes, f.handler.modes[7])

	status, err := f.tables.VehicleStatuses.SelectOne(f.ctx, desc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VehicleStateActive, status.State)
	assert.True(t, status.Armed)
	assert.Equal(t, models.ModeLoiter, status.Mode)
	assert.Equal(t, wallClock.UnixMilli(), status.LastHeartbeat)

	// a second heartbeat reuses the identity
	f.heartbeat(7, common.MAV_TYPE_QUADROTOR)
	all, err = f.tables.VehicleDescriptions.SelectAll(f.ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	kinds := map[bus.ServerEventKind]int{}
	for _, ev := range f.drain() {
		kinds[ev.Kind]++
	}
	assert.Equal(t, 2, kinds[bus.VehicleUpserted])
	assert.Equal(t, 2, kinds[bus.VehicleStatusUpdated])
}

func TestHeartbeatIgnoredFromGroundStations(t *testing.T) {
	f := newFixture(t)

	f.frame(255, &common.MessageHeartbeat{Type: common.MAV_TYPE_GCS, Autopilot: common.MAV_AUTOPILOT_INVALID})
	f.frame(9, &common.MessageHeartbeat{Type: common.MAV_TYPE_QUADROTOR, Autopilot: common.MAV_AUTOPILOT_INVALID})

	all, err := f.tables.VehicleDescriptions.SelectAll(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestHeartbeatWithoutAutoAdd(t *testing.T) {
	f := newFixture(t)
	f.handler.cfg.AutoAddVehicles = false

	f.heartbeat(4, common.MAV_TYPE_FIXED_WING)
	all, err := f.tables.VehicleDescriptions.SelectAll(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	// a vehicle added by a client is picked up
	_, err = f.tables.VehicleDescriptions.Create(f.ctx, &models.VehicleDescription{
		Name: "plane", Type: models.VehicleTypeAuto, Protocol: models.MavlinkProtocolID(4),
	})
	require.NoError(t, err)
	f.heartbeat(4, common.MAV_TYPE_FIXED_WING)

	id := f.vehicle(4)
	desc, err := f.tables.VehicleDescriptions.SelectOne(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.VehicleTypeFixedWing, desc.Type)
	assert.Equal(t, codec.PlaneModes, f.handler.modes[4])
}

func TestTelemetryRequiresKnownVehicle(t *testing.T) {
	f := newFixture(t)

	f.frame(2, &common.MessageAttitude{Roll: 0.5})
	all, err := f.tables.Flight.SelectAll(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	f.heartbeat(2, common.MAV_TYPE_QUADROTOR)
	id := f.vehicle(2)
	f.frame(2, &common.MessageAttitude{Roll: 0.5})
	f.frame(2, &common.MessageVfrHud{Groundspeed: 12, Alt: 100})
	f.frame(2, &common.MessageHomePosition{Latitude: 557000000, Longitude: 376000000, Altitude: 150000})

	flight, err := f.tables.Flight.SelectOne(f.ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 28.6479, flight.Roll, 1e-3)
	assert.Equal(t, float32(12), flight.GroundSpeed)

	nav, err := f.tables.Navigation.SelectOne(f.ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 55.7, nav.HomePosition.Latitude, 1e-6)
	assert.InDelta(t, 150.0, nav.HomePosition.Altitude, 1e-6)
}

// ============================================================================
// Commands
// ============================================================================

func TestCommandRetryAndAccept(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(1, common.MAV_TYPE_QUADROTOR)
	vehicleID := f.vehicle(1)

	f.client.Publish(bus.ExecuteCommand(armRequest(vehicleID), "cmd-1"))

	var sent []*common.MessageCommandLong
	collect := func(out []message.Message) {
		for _, msg := range out {
			if cl, ok := msg.(*common.MessageCommandLong); ok {
				sent = append(sent, cl)
			}
		}
	}
	collect(f.tick())
	collect(f.advance(2 * time.Second))
	collect(f.advance(2 * time.Second))

	require.Len(t, sent, 3)
	for i, cl := range sent {
		assert.Equal(t, common.MAV_CMD_COMPONENT_ARM_DISARM, cl.Command)
		assert.Equal(t, uint8(i), cl.Confirmation)
		assert.Equal(t, uint8(1), cl.TargetSystem)
		assert.Equal(t, float32(1), cl.Param1)
	}

	f.frame(1, &common.MessageCommandAck{Command: common.MAV_CMD_COMPONENT_ARM_DISARM, Result: common.MAV_RESULT_ACCEPTED})

	state, ok := lastCommandState(f.drain(), "cmd-1")
	require.True(t, ok)
	assert.Equal(t, models.CommandAccepted, state.Kind)
	assert.Empty(t, f.handler.pendingAcks)
	assert.Empty(t, f.handler.commandLastSent)
	_, err := f.tables.CommandExecutions.SelectOne(f.ctx, "cmd-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCommandExhaustion(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(1, common.MAV_TYPE_QUADROTOR)
	f.handler.HandleClientEvent(f.ctx, bus.ExecuteCommand(armRequest(f.vehicle(1)), "cmd-1"))

	frames := len(f.tick())
	// ticks every 100ms for 15s
	for i := 0; i < 150; i++ {
		frames += len(f.advance(100 * time.Millisecond))
	}

	assert.Equal(t, 5, frames)
	state, ok := lastCommandState(f.drain(), "cmd-1")
	require.True(t, ok)
	assert.Equal(t, models.CommandFailed, state.Kind)
	assert.Empty(t, f.handler.pendingAcks)
	assert.Empty(t, f.handler.commandLastSent)
}

func TestCommandInProgressIsNotResent(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(1, common.MAV_TYPE_QUADROTOR)
	f.handler.HandleClientEvent(f.ctx, bus.ExecuteCommand(bus.CommandRequest{
		Command:  models.Command{Calibrate: &models.Calibrate{Type: models.CalibrationGyro}},
		Executor: models.Executor{VehicleID: f.vehicle(1)},
	}, "cal"))

	require.Len(t, f.tick(), 1)
	f.frame(1, &common.MessageCommandAck{Command: common.MAV_CMD_PREFLIGHT_CALIBRATION, Result: common.MAV_RESULT_IN_PROGRESS})

	e, err := f.tables.CommandExecutions.SelectOne(f.ctx, "cal")
	require.NoError(t, err)
	assert.Equal(t, models.CommandState{Kind: models.CommandInProgress}, e.State)
	assert.Empty(t, f.advance(5*time.Second))

	f.frame(1, &common.MessageCommandAck{Command: common.MAV_CMD_PREFLIGHT_CALIBRATION, Result: common.MAV_RESULT_DENIED})
	state, _ := lastCommandState(f.drain(), "cal")
	assert.Equal(t, models.CommandDenied, state.Kind)
	assert.Empty(t, f.handler.pendingAcks)
}

func TestCommandFireAndForget(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(1, common.MAV_TYPE_QUADROTOR)
	f.handler.HandleClientEvent(f.ctx, bus.ExecuteCommand(bus.CommandRequest{
		Command:  models.Command{OverrideServos: &models.OverrideServos{Servos: map[uint16]uint16{3: 1500}}},
		Executor: models.Executor{VehicleID: f.vehicle(1)},
	}, "rc"))

	out := f.tick()
	require.Len(t, out, 1)
	rc, ok := out[0].(*common.MessageRcChannelsOverride)
	require.True(t, ok)
	assert.Equal(t, uint16(1500), rc.Chan3Raw)

	state, _ := lastCommandState(f.drain(), "rc")
	assert.Equal(t, models.CommandAccepted, state.Kind)
	assert.Empty(t, f.handler.pendingAcks)
	assert.Empty(t, f.handler.commandLastSent)
	assert.Empty(t, f.advance(3*time.Second))
}

func TestCommandUnknownVehicleFails(t *testing.T) {
	f := newFixture(t)
	f.handler.HandleClientEvent(f.ctx, bus.ExecuteCommand(armRequest("ghost"), "cmd-1"))

	assert.Empty(t, f.tick())
	state, _ := lastCommandState(f.drain(), "cmd-1")
	assert.Equal(t, models.CommandFailed, state.Kind)
	_, err := f.tables.CommandExecutions.SelectOne(f.ctx, "cmd-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetModeWaitsForModeTable(t *testing.T) {
	f := newFixture(t)
	// generic autopilot: no mode table
	f.frame(1, &common.MessageHeartbeat{Type: common.MAV_TYPE_QUADROTOR, Autopilot: common.MAV_AUTOPILOT_GENERIC})
	vehicleID := f.vehicle(1)
	f.handler.HandleClientEvent(f.ctx, bus.ExecuteCommand(bus.CommandRequest{
		Command:  models.Command{SetMode: &models.SetMode{Mode: models.ModeRTL}},
		Executor: models.Executor{VehicleID: vehicleID},
	}, "mode"))

	assert.Empty(t, f.tick())
	e, err := f.tables.CommandExecutions.SelectOne(f.ctx, "mode")
	require.NoError(t, err)
	assert.Equal(t, models.CommandInitial, e.State.Kind)

	f.heartbeat(1, common.MAV_TYPE_QUADROTOR)
	out := f.advance(100 * time.Millisecond)
	require.Len(t, out, 1)
	cl := out[0].(*common.MessageCommandLong)
	assert.Equal(t, common.MAV_CMD_DO_SET_MODE, cl.Command)
	assert.Equal(t, float32(6), cl.Param2)
}

func TestSetModeMissingFromTableIsUnsupported(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(1, common.MAV_TYPE_QUADROTOR)
	f.handler.HandleClientEvent(f.ctx, bus.ExecuteCommand(bus.CommandRequest{
		Command:  models.Command{SetMode: &models.SetMode{Mode: models.ModeQHover}},
		Executor: models.Executor{VehicleID: f.vehicle(1)},
	}, "mode"))

	assert.Empty(t, f.tick())
	state, _ := lastCommandState(f.drain(), "mode")
	assert.Equal(t, models.CommandUnsupported, state.Kind)
}

func TestCancelCommand(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(1, common.MAV_TYPE_QUADROTOR)
	f.handler.HandleClientEvent(f.ctx, bus.ExecuteCommand(armRequest(f.vehicle(1)), "cmd-1"))
	require.Len(t, f.tick(), 1)

	f.handler.HandleClientEvent(f.ctx, bus.CancelCommand("cmd-1"))
	state, _ := lastCommandState(f.drain(), "cmd-1")
	assert.Equal(t, models.CommandCanceled, state.Kind)
	assert.Empty(t, f.handler.pendingAcks)
	assert.Empty(t, f.handler.commandLastSent)
	assert.Empty(t, f.advance(3*time.Second))
}

func TestCommandInProgressTimesOut(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(1, common.MAV_TYPE_QUADROTOR)
	f.handler.HandleClientEvent(f.ctx, bus.ExecuteCommand(armRequest(f.vehicle(1)), "cmd-1"))
	require.Len(t, f.tick(), 1)
	f.frame(1, &common.MessageCommandAck{Command: common.MAV_CMD_COMPONENT_ARM_DISARM, Result: common.MAV_RESULT_IN_PROGRESS})

	// progress reports keep it alive
	for i := 0; i < 3; i++ {
		for j := 0; j < 80; j++ {
			assert.Empty(t, f.advance(100*time.Millisecond))
		}
		f.frame(1, &common.MessageCommandAck{Command: common.MAV_CMD_COMPONENT_ARM_DISARM, Result: common.MAV_RESULT_IN_PROGRESS, Progress: uint8(20 * (i + 1))})
	}
	e, err := f.tables.CommandExecutions.SelectOne(f.ctx, "cmd-1")
	require.NoError(t, err)
	assert.Equal(t, models.CommandInProgress, e.State.Kind)

	// then the final ack is lost
	for i := 0; i < 6000; i++ {
		assert.Empty(t, f.advance(100*time.Millisecond))
	}
	state, _ := lastCommandState(f.drain(), "cmd-1")
	assert.Equal(t, models.CommandFailed, state.Kind)
	assert.Empty(t, f.handler.pendingAcks)
	assert.Empty(t, f.handler.commandLastSent)
	_, err = f.tables.CommandExecutions.SelectOne(f.ctx, "cmd-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetModeWithoutModeTableFailsEventually(t *testing.T) {
	f := newFixture(t)
	f.frame(1, &common.MessageHeartbeat{Type: common.MAV_TYPE_QUADROTOR, Autopilot: common.MAV_AUTOPILOT_GENERIC})
	f.handler.HandleClientEvent(f.ctx, bus.ExecuteCommand(bus.CommandRequest{
		Command:  models.Command{SetMode: &models.SetMode{Mode: models.ModeRTL}},
		Executor: models.Executor{VehicleID: f.vehicle(1)},
	}, "mode"))

	assert.Empty(t, f.tick())
	for i := 0; i < 100; i++ {
		assert.Empty(t, f.advance(100*time.Millisecond))
	}
	state, _ := lastCommandState(f.drain(), "mode")
	assert.Equal(t, models.CommandFailed, state.Kind)
	assert.Empty(t, f.handler.commandQueued)
}

// otherLink is a second handler over the same store, as run for another link.
func (f *fixture) otherLink() *Handler {
	return New(DefaultConfig(), f.tables, f.server, nil,
		WithWallClock(func() time.Time { return wallClock }), WithName("other"))
}

func TestCommandForVehicleNotHeardIsStored(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(1, common.MAV_TYPE_QUADROTOR)
	vehicleID := f.vehicle(1)
	f.drain()

	other := f.otherLink()
	other.HandleClientEvent(f.ctx, bus.ExecuteCommand(armRequest(vehicleID), "cmd-1"))

	e, err := f.tables.CommandExecutions.SelectOne(f.ctx, "cmd-1")
	require.NoError(t, err)
	assert.Equal(t, models.CommandInitial, e.State.Kind)
	state, ok := lastCommandState(f.drain(), "cmd-1")
	require.True(t, ok)
	assert.Equal(t, models.CommandInitial, state.Kind)

	// the other handler never hears system 1
	now := epoch
	for i := 0; i < 100; i++ {
		assert.Empty(t, other.Tick(f.ctx, now))
		now = now.Add(100 * time.Millisecond)
	}
	assert.Empty(t, other.Tick(f.ctx, now))
	state, _ = lastCommandState(f.drain(), "cmd-1")
	assert.Equal(t, models.CommandFailed, state.Kind)
	_, err = f.tables.CommandExecutions.SelectOne(f.ctx, "cmd-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCommandSentOnceVehicleIsHeard(t *testing.T) {
	f := newFixture(t)
	_, err := f.tables.VehicleDescriptions.Create(f.ctx, &models.VehicleDescription{
		ID: "remote", Protocol: models.MavlinkProtocolID(42),
	})
	require.NoError(t, err)

	f.handler.HandleClientEvent(f.ctx, bus.ExecuteCommand(armRequest("remote"), "cmd-1"))
	assert.Empty(t, f.tick())
	assert.Empty(t, f.advance(time.Second))

	f.heartbeat(42, common.MAV_TYPE_QUADROTOR)
	out := f.advance(100 * time.Millisecond)
	require.Len(t, out, 1)
	cl, ok := out[0].(*common.MessageCommandLong)
	require.True(t, ok)
	assert.Equal(t, uint8(42), cl.TargetSystem)
	assert.Empty(t, f.handler.commandQueued)
}

func TestCommandOwnedByOtherLinkIsLeftAlone(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(1, common.MAV_TYPE_QUADROTOR)
	other := f.otherLink()

	f.client.Publish(bus.ExecuteCommand(armRequest(f.vehicle(1)), "cmd-1"))
	require.Len(t, f.tick(), 1)

	// the owner keeps resending; the other handler only watches
	now := epoch
	for i := 0; i < 50; i++ {
		assert.Empty(t, other.Tick(f.ctx, now))
		now = now.Add(100 * time.Millisecond)
	}
	e, err := f.tables.CommandExecutions.SelectOne(f.ctx, "cmd-1")
	require.NoError(t, err)
	assert.Equal(t, models.CommandSent, e.State.Kind)
	assert.Empty(t, other.commandQueued)
}

// ============================================================================
// Missions
// ============================================================================

func TestMissionDownloadWithHome(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(3, common.MAV_TYPE_FIXED_WING)
	vehicleID := f.vehicle(3)
	f.assign("m1", 3)

	f.handler.HandleClientEvent(f.ctx, bus.DownloadMission("m1"))
	out := f.tick()
	require.Len(t, out, 1)
	assert.IsType(t, &common.MessageMissionRequestList{}, out[0])

	f.frame(3, &common.MessageMissionCount{Count: 4})
	assert.Equal(t, models.MissionState{Kind: models.MissionDownload, Total: 4}, f.missionStatus("m1").State)

	home := models.Geodetic{Latitude: 55.75, Longitude: 37.61, Altitude: 140, Frame: models.FrameAboveSeaLevel}
	items := []models.MissionRouteItem{
		{Waypoint: &models.Waypoint{Position: models.Geodetic{Latitude: 55.76, Longitude: 37.62, Altitude: 50, Frame: models.FrameRelativeHome}, HoldTime: 2}},
		{Waypoint: &models.Waypoint{Position: models.Geodetic{Latitude: 55.77, Longitude: 37.63, Altitude: 60, Frame: models.FrameRelativeHome}}},
		{Landing: &models.Landing{Position: models.Geodetic{Latitude: 55.75, Longitude: 37.61, Altitude: 0, Frame: models.FrameRelativeHome}}},
	}

	for seq := uint16(0); seq < 4; seq++ {
		// nothing is requested before the resend interval elapses
		assert.Empty(t, f.advance(time.Second))
		out := f.advance(time.Second)
		require.Len(t, out, 1)
		req, ok := out[0].(*common.MessageMissionRequestInt)
		require.True(t, ok)
		assert.Equal(t, seq, req.Seq)

		if seq == 0 {
			f.frame(3, codec.HomeItem(255, home))
		} else {
			msg, ok := codec.EncodeMissionItem(255, seq, items[seq-1])
			require.True(t, ok)
			f.frame(3, msg)
		}
	}

	nav, err := f.tables.Navigation.SelectOne(f.ctx, vehicleID)
	require.NoError(t, err)
	assert.InDelta(t, home.Latitude, nav.HomePosition.Latitude, 1e-6)
	assert.InDelta(t, home.Altitude, nav.HomePosition.Altitude, 1e-3)

	route, err := f.tables.MissionRoutes.SelectOne(f.ctx, "m1")
	require.NoError(t, err)
	require.Len(t, route.Items, 3)
	require.NotNil(t, route.Items[0].Waypoint)
	assert.Equal(t, float32(2), route.Items[0].Waypoint.HoldTime)
	require.NotNil(t, route.Items[1].Waypoint)
	require.NotNil(t, route.Items[2].Landing)

	assert.Equal(t, models.MissionState{Kind: models.MissionActual, Total: 4}, f.missionStatus("m1").State)
	assert.Empty(t, f.handler.transfers)

	out = f.advance(3 * time.Second)
	require.Len(t, out, 1)
	ack, ok := out[0].(*common.MessageMissionAck)
	require.True(t, ok)
	assert.Equal(t, common.MAV_MISSION_ACCEPTED, ack.Type)
	assert.Equal(t, uint8(3), ack.TargetSystem)
}

func TestMissionDownloadOutOfOrderItem(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(3, common.MAV_TYPE_FIXED_WING)
	f.assign("m1", 3)
	f.handler.HandleClientEvent(f.ctx, bus.DownloadMission("m1"))
	f.tick()
	f.frame(3, &common.MessageMissionCount{Count: 3})

	msg, _ := codec.EncodeMissionItem(255, 2, models.MissionRouteItem{Waypoint: &models.Waypoint{}})
	f.frame(3, msg)
	assert.Equal(t, models.MissionState{Kind: models.MissionDownload, Total: 3}, f.missionStatus("m1").State)
}

func TestMissionDownloadEmptyAndTruncate(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(3, common.MAV_TYPE_FIXED_WING)
	f.assign("m1", 3,
		models.MissionRouteItem{Waypoint: &models.Waypoint{}},
		models.MissionRouteItem{Waypoint: &models.Waypoint{}},
	)

	f.handler.HandleClientEvent(f.ctx, bus.DownloadMission("m1"))
	f.tick()
	f.frame(3, &common.MessageMissionCount{Count: 0})

	assert.Equal(t, models.MissionState{Kind: models.MissionActual}, f.missionStatus("m1").State)
	assert.Empty(t, f.handler.transfers)
	route, err := f.tables.MissionRoutes.SelectOne(f.ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, route.Items)
}

func TestMissionUpload(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(2, common.MAV_TYPE_QUADROTOR)
	vehicleID := f.vehicle(2)
	home := models.Geodetic{Latitude: 48.1, Longitude: 11.5, Altitude: 520, Frame: models.FrameAboveSeaLevel}
	_, err := f.tables.Navigation.Create(f.ctx, &models.Navigation{ID: vehicleID, HomePosition: home})
	require.NoError(t, err)

	takeoff := models.MissionRouteItem{Takeoff: &models.TakeoffItem{Position: models.Geodetic{Latitude: 48.1, Longitude: 11.5, Altitude: 30, Frame: models.FrameRelativeHome}, Pitch: 15}}
	waypoint := models.MissionRouteItem{Waypoint: &models.Waypoint{Position: models.Geodetic{Latitude: 48.2, Longitude: 11.6, Altitude: 40, Frame: models.FrameRelativeHome}}}
	f.assign("m2", 2, takeoff, waypoint)

	f.handler.HandleClientEvent(f.ctx, bus.UploadMission("m2"))
	out := f.tick()
	require.Len(t, out, 1)
	count, ok := out[0].(*common.MessageMissionCount)
	require.True(t, ok)
	assert.Equal(t, uint16(3), count.Count)
	assert.Equal(t, models.MissionState{Kind: models.MissionPrepareUpload, Total: 3}, f.missionStatus("m2").State)

	var sent []*common.MessageMissionItemInt
	for seq := uint16(0); seq < 3; seq++ {
		f.frame(2, &common.MessageMissionRequest{Seq: seq})
		out := f.advance(2 * time.Second)
		require.Len(t, out, 1)
		item, ok := out[0].(*common.MessageMissionItemInt)
		require.True(t, ok)
		assert.Equal(t, seq, item.Seq)
		sent = append(sent, item)
	}

	assert.InDelta(t, home.Latitude, codec.DecodeDegE7(sent[0].X), 1e-6)
	assert.Equal(t, float32(520), sent[0].Z)
	assert.Equal(t, takeoff, codec.DecodeMissionItem(sent[1]))
	assert.Equal(t, waypoint, codec.DecodeMissionItem(sent[2]))

	f.frame(2, &common.MessageMissionAck{Type: common.MAV_MISSION_ACCEPTED})
	assert.Equal(t, models.MissionState{Kind: models.MissionActual, Total: 3}, f.missionStatus("m2").State)
	assert.Empty(t, f.handler.transfers)
	assert.Empty(t, f.handler.missionLastSent)
}

func TestMissionUploadSkipsGaps(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(2, common.MAV_TYPE_QUADROTOR)
	f.assign("m2", 2, models.MissionRouteItem{})

	f.handler.HandleClientEvent(f.ctx, bus.UploadMission("m2"))
	f.tick()
	f.frame(2, &common.MessageMissionRequestInt{Seq: 1})
	assert.Empty(t, f.advance(2*time.Second))
	assert.Equal(t, models.MissionState{Kind: models.MissionUpload, Total: 2, Progress: 1}, f.missionStatus("m2").State)

	// out of range requests are ignored
	f.frame(2, &common.MessageMissionRequest{Seq: 5})
	assert.Equal(t, uint16(1), f.missionStatus("m2").State.Progress)
}

func TestMissionUploadRejected(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(2, common.MAV_TYPE_QUADROTOR)
	f.assign("m2", 2, models.MissionRouteItem{Waypoint: &models.Waypoint{}})

	f.handler.HandleClientEvent(f.ctx, bus.UploadMission("m2"))
	f.tick()
	f.frame(2, &common.MessageMissionAck{Type: common.MAV_MISSION_NO_SPACE})

	assert.Equal(t, models.MissionNotActual, f.missionStatus("m2").State.Kind)
	assert.Empty(t, f.handler.transfers)
}

func TestMissionClear(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(2, common.MAV_TYPE_QUADROTOR)
	f.assign("m2", 2, models.MissionRouteItem{Waypoint: &models.Waypoint{}})

	f.handler.HandleClientEvent(f.ctx, bus.ClearMission("m2"))
	out := f.tick()
	require.Len(t, out, 1)
	assert.IsType(t, &common.MessageMissionClearAll{}, out[0])

	f.frame(2, &common.MessageMissionAck{Type: common.MAV_MISSION_ACCEPTED})
	assert.Equal(t, models.MissionState{Kind: models.MissionActual}, f.missionStatus("m2").State)
	route, err := f.tables.MissionRoutes.SelectOne(f.ctx, "m2")
	require.NoError(t, err)
	assert.Empty(t, route.Items)
}

func TestMissionPhaseViolation(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(2, common.MAV_TYPE_QUADROTOR)
	f.assign("m2", 2, models.MissionRouteItem{Waypoint: &models.Waypoint{}})

	f.handler.HandleClientEvent(f.ctx, bus.UploadMission("m2"))
	f.handler.HandleClientEvent(f.ctx, bus.DownloadMission("m2"))
	assert.Equal(t, models.MissionPrepareUpload, f.missionStatus("m2").State.Kind)
}

func TestCancelMissionState(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(2, common.MAV_TYPE_QUADROTOR)
	f.assign("m2", 2)

	f.handler.HandleClientEvent(f.ctx, bus.DownloadMission("m2"))
	require.Len(t, f.tick(), 1)
	f.handler.HandleClientEvent(f.ctx, bus.CancelMissionState("m2"))

	assert.Equal(t, models.MissionNotActual, f.missionStatus("m2").State.Kind)
	assert.Empty(t, f.handler.transfers)
	assert.Empty(t, f.advance(3*time.Second))
}

func TestMissionProgress(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(2, common.MAV_TYPE_QUADROTOR)
	f.assign("m2", 2,
		models.MissionRouteItem{Takeoff: &models.TakeoffItem{}},
		models.MissionRouteItem{Waypoint: &models.Waypoint{}},
	)

	f.frame(2, &common.MessageMissionCurrent{Seq: 0})
	_, err := f.tables.MissionStatuses.SelectOne(f.ctx, "m2")
	assert.ErrorIs(t, err, store.ErrNotFound)

	f.frame(2, &common.MessageMissionCurrent{Seq: 2})
	status := f.missionStatus("m2")
	assert.Equal(t, models.MissionInProgress, status.Progress.Kind)
	assert.Equal(t, uint16(1), status.Progress.Current)

	f.frame(2, &common.MessageMissionItemReached{Seq: 1})
	f.frame(2, &common.MessageMissionItemReached{Seq: 1})
	assert.Equal(t, []uint16{0}, f.missionStatus("m2").Progress.Reached)

	f.frame(2, &common.MessageMissionItemReached{Seq: 2})
	status = f.missionStatus("m2")
	assert.Equal(t, models.MissionFinished, status.Progress.Kind)
	assert.Equal(t, []uint16{0, 1}, status.Progress.Reached)
}

// ============================================================================
// Run loop
// ============================================================================

type fakeTransport struct {
	frames chan link.Frame
	sent   chan message.Message
}

func (t *fakeTransport) Frames() <-chan link.Frame { return t.frames }

func (t *fakeTransport) Send(msg message.Message) error {
	t.sent <- msg
	return nil
}

func TestRunSendsAndStops(t *testing.T) {
	tables := store.NewTables(store.NewMemoryBackend())
	client := bus.NewClientBus()
	cfg := DefaultConfig()
	cfg.TickInterval = 10 * time.Millisecond
	h := New(cfg, tables, nil, client.Subscribe(4))

	tr := &fakeTransport{frames: make(chan link.Frame, 4), sent: make(chan message.Message, 16)}
	done := make(chan error, 1)
	go func() { done <- h.Run(context.Background(), tr) }()

	tr.frames <- link.Frame{SystemID: 1, Message: &common.MessageHeartbeat{
		Type: common.MAV_TYPE_QUADROTOR, Autopilot: common.MAV_AUTOPILOT_ARDUPILOTMEGA,
	}}
	require.Eventually(t, func() bool {
		found, _ := tables.VehicleDescriptions.SelectAll(context.Background())
		return len(found) == 1
	}, time.Second, 5*time.Millisecond)

	found, _ := tables.VehicleDescriptions.SelectAll(context.Background())
	client.Publish(bus.ExecuteCommand(armRequest(found[0].ID), "cmd-1"))

	select {
	case msg := <-tr.sent:
		assert.IsType(t, &common.MessageCommandLong{}, msg)
	case <-time.After(time.Second):
		t.Fatal("no frame sent")
	}

	close(tr.frames)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTransportClosed)
	case <-time.After(time.Second):
		t.Fatal("handler did not stop")
	}
}
