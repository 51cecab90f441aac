package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GroundLink/internal/models"
)

func TestCreateAllocatesID(t *testing.T) {
	ctx := context.Background()
	tables := NewTables(NewMemoryBackend())

	created, err := tables.VehicleDescriptions.Create(ctx, &models.VehicleDescription{Name: "alpha"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	loaded, err := tables.VehicleDescriptions.SelectOne(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", loaded.Name)
}

func TestCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	tables := NewTables(NewMemoryBackend())

	_, err := tables.LinkStatuses.Create(ctx, &models.LinkStatus{ID: "l1"})
	require.NoError(t, err)
	_, err = tables.LinkStatuses.Create(ctx, &models.LinkStatus{ID: "l1"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestUpdateMissing(t *testing.T) {
	ctx := context.Background()
	tables := NewTables(NewMemoryBackend())

	err := tables.Flight.Update(ctx, &models.Flight{ID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tables.Flight.SelectOne(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, tables.Flight.Delete(ctx, "nope"), ErrNotFound)
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	tables := NewTables(NewMemoryBackend())

	require.NoError(t, tables.VehicleStatuses.Upsert(ctx, &models.VehicleStatus{ID: "v1", Armed: true}))
	require.NoError(t, tables.VehicleStatuses.Upsert(ctx, &models.VehicleStatus{ID: "v1", Armed: false, Mode: models.ModeLoiter}))

	all, err := tables.VehicleStatuses.SelectAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Armed)
	assert.Equal(t, models.ModeLoiter, all[0].Mode)
}

func TestSelectWhereStructValue(t *testing.T) {
	ctx := context.Background()
	tables := NewTables(NewMemoryBackend())

	for _, sys := range []uint8{1, 2, 3} {
		_, err := tables.VehicleDescriptions.Create(ctx, &models.VehicleDescription{
			Protocol: models.MavlinkProtocolID(sys),
			Type:     models.VehicleTypeAuto,
		})
		require.NoError(t, err)
	}

	found, err := tables.VehicleDescriptions.SelectWhere(ctx, "protocol_id", models.MavlinkProtocolID(2))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, uint8(2), found[0].Protocol.Mavlink.MavID)

	found, err = tables.VehicleDescriptions.SelectWhere(ctx, "protocol_id", models.MavlinkProtocolID(9))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSelectWhereString(t *testing.T) {
	ctx := context.Background()
	tables := NewTables(NewMemoryBackend())

	_, err := tables.MissionAssignments.Create(ctx, &models.MissionAssignment{ID: "m1", VehicleID: "v1"})
	require.NoError(t, err)
	_, err = tables.MissionAssignments.Create(ctx, &models.MissionAssignment{ID: "m2", VehicleID: "v2"})
	require.NoError(t, err)

	found, err := tables.MissionAssignments.SelectWhere(ctx, "vehicle_id", "v2")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "m2", found[0].ID)
}

func TestDocumentsAreCopies(t *testing.T) {
	ctx := context.Background()
	tables := NewTables(NewMemoryBackend())

	route := &models.MissionRoute{ID: "m1", Items: []models.MissionRouteItem{
		{Waypoint: &models.Waypoint{HoldTime: 3}},
		{},
	}}
	_, err := tables.MissionRoutes.Create(ctx, route)
	require.NoError(t, err)
	route.Items[0].Waypoint.HoldTime = 99

	loaded, err := tables.MissionRoutes.SelectOne(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, loaded.Items, 2)
	assert.Equal(t, float32(3), loaded.Items[0].Waypoint.HoldTime)
	assert.True(t, loaded.Items[1].IsGap())
}

func TestCommandRoundTripThroughStore(t *testing.T) {
	ctx := context.Background()
	tables := NewTables(NewMemoryBackend())

	exec := &models.CommandExecution{
		ID:       "c1",
		Command:  models.Command{ReturnToLaunch: &models.ReturnToLaunch{}},
		Executor: models.Executor{VehicleID: "v1"},
		State:    models.CommandState{Kind: models.CommandSent, Attempt: 2},
	}
	_, err := tables.CommandExecutions.Create(ctx, exec)
	require.NoError(t, err)

	loaded, err := tables.CommandExecutions.SelectOne(ctx, "c1")
	require.NoError(t, err)
	assert.NotNil(t, loaded.Command.ReturnToLaunch)
	assert.Equal(t, "return_to_launch", loaded.Command.Name())
	assert.Equal(t, exec.State, loaded.State)
}
