package protocol

import (
	"context"

	"GroundLink/internal/bus"
	"GroundLink/internal/models"
)

// telemetryVehicle resolves sys for telemetry. Telemetry never creates a
// vehicle; discovery happens on heartbeats.
func (h *Handler) telemetryVehicle(ctx context.Context, sys uint8) (string, bool) {
	desc, err := h.vehicleFor(ctx, sys, false)
	if err != nil {
		h.log.Error("Failed to resolve vehicle for system %d: %v", sys, err)
		return "", false
	}
	if desc == nil {
		return "", false
	}
	return desc.ID, true
}

func (h *Handler) updateFlight(ctx context.Context, sys uint8, fn func(*models.Flight)) {
	id, ok := h.telemetryVehicle(ctx, sys)
	if !ok {
		return
	}
	row, err := upsertRow(ctx, h.tables.Flight, id, fn)
	if err != nil {
		h.log.Error("Failed to store flight telemetry of %s: %v", id, err)
		return
	}
	h.publish(bus.TelemetryFlight, *row)
}

func (h *Handler) updateNavigation(ctx context.Context, sys uint8, fn func(*models.Navigation)) {
	id, ok := h.telemetryVehicle(ctx, sys)
	if !ok {
		return
	}
	row, err := upsertRow(ctx, h.tables.Navigation, id, fn)
	if err != nil {
		h.log.Error("Failed to store navigation telemetry of %s: %v", id, err)
		return
	}
	h.publish(bus.TelemetryNavigation, *row)
}

func (h *Handler) updateRawSns(ctx context.Context, sys uint8, fn func(*models.RawSns)) {
	id, ok := h.telemetryVehicle(ctx, sys)
	if !ok {
		return
	}
	row, err := upsertRow(ctx, h.tables.RawSns, id, fn)
	if err != nil {
		h.log.Error("Failed to store raw GNSS telemetry of %s: %v", id, err)
		return
	}
	h.publish(bus.TelemetryRawSns, *row)
}

func (h *Handler) updateSystem(ctx context.Context, sys uint8, fn func(*models.System)) {
	id, ok := h.telemetryVehicle(ctx, sys)
	if !ok {
		return
	}
	row, err := upsertRow(ctx, h.tables.System, id, fn)
	if err != nil {
		h.log.Error("Failed to store system telemetry of %s: %v", id, err)
		return
	}
	h.publish(bus.TelemetrySystem, *row)
}
