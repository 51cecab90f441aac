package protocol

import (
	"context"
	"fmt"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/pkg/errors"

	"GroundLink/internal/bus"
	"GroundLink/internal/codec"
	"GroundLink/internal/models"
	"GroundLink/internal/store"
)

const defaultVehicleColor = "#1e88e5"

// vehicleFor resolves the vehicle bound to sys. Unknown systems are
// created only when create is set and auto-add is enabled.
func (h *Handler) vehicleFor(ctx context.Context, sys uint8, create bool) (*models.VehicleDescription, error) {
	if id, ok := h.vehicles[sys]; ok {
		desc, err := h.tables.VehicleDescriptions.SelectOne(ctx, id)
		if err == nil {
			return desc, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		// removed by a client; forget the binding
		delete(h.vehicles, sys)
		delete(h.modes, sys)
	}

	found, err := h.tables.VehicleDescriptions.SelectWhere(ctx, "protocol_id", models.MavlinkProtocolID(sys))
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		h.vehicles[sys] = found[0].ID
		return found[0], nil
	}
	if !create || !h.cfg.AutoAddVehicles {
		return nil, nil
	}

	desc, err := h.tables.VehicleDescriptions.Create(ctx, &models.VehicleDescription{
		Name:           fmt.Sprintf("MAV %d", sys),
		Color:          defaultVehicleColor,
		Type:           models.VehicleTypeAuto,
		Protocol:       models.MavlinkProtocolID(sys),
		Features:       []models.VehicleFeature{},
		AvailableModes: []models.VehicleMode{},
	})
	if err != nil {
		return nil, err
	}
	h.vehicles[sys] = desc.ID
	h.log.Info("New vehicle %s for MAVLink system %d", desc.ID, sys)
	h.publish(bus.VehicleUpserted, *desc)
	return desc, nil
}

// systemFor returns the MAVLink system id of a vehicle. ok is false when
// the vehicle does not exist or has no MAVLink binding.
func (h *Handler) systemFor(ctx context.Context, vehicleID string) (sys uint8, ok bool, err error) {
	desc, err := h.tables.VehicleDescriptions.SelectOne(ctx, vehicleID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if desc.Protocol.Mavlink == nil {
		return 0, false, nil
	}
	return desc.Protocol.Mavlink.MavID, true, nil
}

func (h *Handler) handleHeartbeat(ctx context.Context, sys uint8, m *common.MessageHeartbeat) {
	if m.Type == common.MAV_TYPE_GCS || m.Autopilot == common.MAV_AUTOPILOT_INVALID {
		return
	}
	now := h.wall()

	desc, err := h.vehicleFor(ctx, sys, true)
	if err != nil {
		h.log.Error("Failed to resolve vehicle for system %d: %v", sys, err)
		return
	}
	if desc == nil {
		h.log.Debug("Heartbeat from unknown system %d dropped, auto-add disabled", sys)
		return
	}

	changed := false
	if desc.Type == models.VehicleTypeAuto {
		if kind := codec.VehicleTypeFromMav(m.Type); kind != models.VehicleTypeUnknown {
			desc.Type = kind
			changed = true
			h.log.Info("Vehicle %s type resolved to %s", desc.ID, kind)
		}
	}
	if len(h.modes[sys]) == 0 || len(desc.AvailableModes) == 0 {
		if table := codec.ModesFor(m.Autopilot, desc.Type); table != nil {
			h.modes[sys] = table
			if len(desc.AvailableModes) == 0 {
				desc.AvailableModes = codec.AvailableModes(desc.Type)
				changed = true
			}
		}
	}
	if changed {
		if err := h.tables.VehicleDescriptions.Update(ctx, desc); err != nil {
			h.log.Error("Failed to update vehicle %s: %v", desc.ID, err)
		} else {
			h.publish(bus.VehicleUpserted, *desc)
		}
	}

	status := &models.VehicleStatus{
		ID:            desc.ID,
		LastHeartbeat: now.UnixMilli(),
		State:         codec.VehicleStateFromMav(m.SystemStatus),
		Armed:         codec.IsArmed(m.BaseMode),
		Mode:          h.modes[sys].Mode(m.CustomMode),
	}
	if err := h.tables.VehicleStatuses.Upsert(ctx, status); err != nil {
		h.log.Error("Failed to store status of vehicle %s: %v", desc.ID, err)
		return
	}
	h.publish(bus.VehicleStatusUpdated, *status)
}
