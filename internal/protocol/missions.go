package protocol

import (
	"context"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/pkg/errors"

	"GroundLink/internal/bus"
	"GroundLink/internal/codec"
	"GroundLink/internal/models"
	"GroundLink/internal/store"
)

// missionFrames runs the send algorithm over the active transfers.
func (h *Handler) missionFrames(ctx context.Context, now time.Time) []message.Message {
	var out []message.Message
	for _, sys := range sortedSystems(h.transfers) {
		status := h.transfers[sys]
		if status.State.IsIdle() {
			delete(h.transfers, sys)
			delete(h.missionLastSent, status.ID)
			continue
		}
		if last, ok := h.missionLastSent[status.ID]; ok && now.Sub(last) < h.cfg.MissionResendInterval {
			continue
		}
		msg := h.missionFrame(ctx, sys, status)
		if msg == nil {
			continue
		}
		h.missionLastSent[status.ID] = now
		out = append(out, msg)
	}
	return out
}

func (h *Handler) missionFrame(ctx context.Context, sys uint8, status models.MissionStatus) message.Message {
	switch status.State.Kind {
	case models.MissionPrepareDownload:
		return &common.MessageMissionRequestList{
			TargetSystem:    sys,
			TargetComponent: codec.TargetComponent,
			MissionType:     common.MAV_MISSION_TYPE_MISSION,
		}

	case models.MissionDownload:
		return &common.MessageMissionRequestInt{
			TargetSystem:    sys,
			TargetComponent: codec.TargetComponent,
			Seq:             status.State.Progress,
			MissionType:     common.MAV_MISSION_TYPE_MISSION,
		}

	case models.MissionPrepareUpload:
		return &common.MessageMissionCount{
			TargetSystem:    sys,
			TargetComponent: codec.TargetComponent,
			Count:           status.State.Total,
			MissionType:     common.MAV_MISSION_TYPE_MISSION,
		}

	case models.MissionUpload:
		return h.uploadItem(ctx, sys, status)

	case models.MissionClearing:
		return &common.MessageMissionClearAll{
			TargetSystem:    sys,
			TargetComponent: codec.TargetComponent,
			MissionType:     common.MAV_MISSION_TYPE_MISSION,
		}
	}
	return nil
}

// uploadItem encodes the item the vehicle asked for. Sequence 0 is the
// home position; the user item i travels as sequence i+1.
func (h *Handler) uploadItem(ctx context.Context, sys uint8, status models.MissionStatus) message.Message {
	seq := status.State.Progress
	if seq == 0 {
		var home models.Geodetic
		if vehicleID, ok := h.vehicles[sys]; ok {
			nav, err := h.tables.Navigation.SelectOne(ctx, vehicleID)
			if err == nil {
				home = nav.HomePosition
			} else if !errors.Is(err, store.ErrNotFound) {
				h.log.Error("Failed to load home position of %s: %v", vehicleID, err)
			}
		}
		return codec.HomeItem(sys, home)
	}

	route, err := h.loadRoute(ctx, status.ID)
	if err != nil {
		h.log.Error("Failed to load route %s: %v", status.ID, err)
		return nil
	}
	index := int(seq) - 1
	if index >= len(route.Items) {
		h.log.Warn("Mission %s: vehicle requested item %d of %d", status.ID, seq, len(route.Items))
		return nil
	}
	msg, ok := codec.EncodeMissionItem(sys, seq, route.Items[index])
	if !ok {
		return nil
	}
	return msg
}

func (h *Handler) loadRoute(ctx context.Context, missionID string) (*models.MissionRoute, error) {
	route, err := h.tables.MissionRoutes.SelectOne(ctx, missionID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.MissionRoute{ID: missionID, Items: []models.MissionRouteItem{}}, nil
	}
	return route, err
}

func (h *Handler) loadMissionStatus(ctx context.Context, missionID string) (models.MissionStatus, error) {
	status, err := h.tables.MissionStatuses.SelectOne(ctx, missionID)
	if errors.Is(err, store.ErrNotFound) {
		return models.DefaultMissionStatus(missionID), nil
	}
	if err != nil {
		return models.MissionStatus{}, err
	}
	return *status, nil
}

// setTransfer persists status, publishes it and keeps the active transfer
// table in sync: idle states leave it, others replace the entry of sys.
func (h *Handler) setTransfer(ctx context.Context, sys uint8, status models.MissionStatus) {
	if status.State.IsIdle() {
		if cur, ok := h.transfers[sys]; ok && cur.ID == status.ID {
			delete(h.transfers, sys)
		}
		delete(h.missionLastSent, status.ID)
	} else {
		h.transfers[sys] = status
	}
	h.saveMissionStatus(ctx, status)
}

func (h *Handler) saveMissionStatus(ctx context.Context, status models.MissionStatus) {
	if err := h.tables.MissionStatuses.Upsert(ctx, &status); err != nil {
		h.log.Error("Failed to store mission status %s: %v", status.ID, err)
	}
	h.publish(bus.MissionStatusUpdated, status)
}

func (h *Handler) saveRoute(ctx context.Context, route *models.MissionRoute) {
	if err := h.tables.MissionRoutes.Upsert(ctx, route); err != nil {
		h.log.Error("Failed to store route %s: %v", route.ID, err)
	}
	h.publish(bus.MissionRouteUpdated, *route)
}

func (h *Handler) handleMissionCount(ctx context.Context, sys uint8, m *common.MessageMissionCount) {
	status, ok := h.transfers[sys]
	if !ok || status.State.Kind != models.MissionPrepareDownload {
		h.log.Debug("MISSION_COUNT from system %d outside a download", sys)
		return
	}

	route, err := h.loadRoute(ctx, status.ID)
	if err != nil {
		h.log.Error("Failed to load route %s: %v", status.ID, err)
	} else {
		userItems := 0
		if m.Count > 0 {
			userItems = int(m.Count) - 1
		}
		if len(route.Items) > userItems {
			route.Items = route.Items[:userItems]
			h.saveRoute(ctx, route)
		}
	}

	if m.Count == 0 {
		status.State = models.MissionState{Kind: models.MissionActual}
	} else {
		status.State = models.MissionState{Kind: models.MissionDownload, Total: m.Count}
	}
	h.log.Info("Mission %s: downloading %d items from system %d", status.ID, m.Count, sys)
	h.setTransfer(ctx, sys, status)
}

func (h *Handler) handleMissionItem(ctx context.Context, sys uint8, m *common.MessageMissionItemInt) {
	status, ok := h.transfers[sys]
	if !ok || status.State.Kind != models.MissionDownload {
		h.log.Debug("MISSION_ITEM_INT from system %d outside a download", sys)
		return
	}
	if m.Seq != status.State.Progress {
		h.log.Debug("Mission %s: item %d dropped, expecting %d", status.ID, m.Seq, status.State.Progress)
		return
	}

	if m.Seq == 0 {
		home := codec.DecodePosition(m.Frame, m.X, m.Y, m.Z)
		if vehicleID, ok := h.vehicles[sys]; ok {
			row, err := upsertRow(ctx, h.tables.Navigation, vehicleID, func(n *models.Navigation) { n.HomePosition = home })
			if err != nil {
				h.log.Error("Failed to store home position of %s: %v", vehicleID, err)
			} else {
				h.publish(bus.TelemetryNavigation, *row)
			}
		}
	} else {
		route, err := h.loadRoute(ctx, status.ID)
		if err != nil {
			h.log.Error("Failed to load route %s: %v", status.ID, err)
			return
		}
		index := int(m.Seq) - 1
		for len(route.Items) <= index {
			route.Items = append(route.Items, models.MissionRouteItem{})
		}
		route.Items[index] = codec.DecodeMissionItem(m)
		h.saveRoute(ctx, route)
	}

	total := status.State.Total
	progress := status.State.Progress + 1
	if progress >= total {
		status.State = models.MissionState{Kind: models.MissionActual, Total: total}
		h.queued = append(h.queued, &common.MessageMissionAck{
			TargetSystem:    sys,
			TargetComponent: codec.TargetComponent,
			Type:            common.MAV_MISSION_ACCEPTED,
			MissionType:     common.MAV_MISSION_TYPE_MISSION,
		})
		h.log.Info("Mission %s: download of %d items complete", status.ID, total)
	} else {
		status.State = models.MissionState{Kind: models.MissionDownload, Total: total, Progress: progress}
	}
	h.setTransfer(ctx, sys, status)
}

func (h *Handler) handleMissionRequest(ctx context.Context, sys uint8, seq uint16) {
	status, ok := h.transfers[sys]
	if !ok {
		return
	}
	if status.State.Kind != models.MissionPrepareUpload && status.State.Kind != models.MissionUpload {
		h.log.Debug("Mission request from system %d outside an upload", sys)
		return
	}
	if seq >= status.State.Total {
		h.log.Warn("Mission %s: vehicle requested item %d of %d", status.ID, seq, status.State.Total)
		return
	}
	status.State = models.MissionState{Kind: models.MissionUpload, Total: status.State.Total, Progress: seq}
	h.setTransfer(ctx, sys, status)
}

func (h *Handler) handleMissionAck(ctx context.Context, sys uint8, m *common.MessageMissionAck) {
	status, ok := h.transfers[sys]
	if !ok {
		return
	}

	if m.Type != common.MAV_MISSION_ACCEPTED {
		h.log.Warn("Mission %s: vehicle answered %d in %s", status.ID, m.Type, status.State.Kind)
		status.State = models.MissionState{Kind: models.MissionNotActual}
		h.setTransfer(ctx, sys, status)
		return
	}

	switch status.State.Kind {
	case models.MissionPrepareUpload, models.MissionUpload:
		status.State = models.MissionState{Kind: models.MissionActual, Total: status.State.Total}
		h.log.Info("Mission %s: upload accepted", status.ID)
	case models.MissionClearing:
		status.State = models.MissionState{Kind: models.MissionActual}
		route, err := h.loadRoute(ctx, status.ID)
		if err != nil {
			h.log.Error("Failed to load route %s: %v", status.ID, err)
		} else if len(route.Items) > 0 {
			route.Items = []models.MissionRouteItem{}
			h.saveRoute(ctx, route)
		}
		h.log.Info("Mission %s: cleared", status.ID)
	default:
		return
	}
	h.setTransfer(ctx, sys, status)
}

// missionsOf returns the statuses of missions assigned to the vehicle of
// sys, preferring the in-memory copy of an active transfer.
func (h *Handler) missionsOf(ctx context.Context, sys uint8) []models.MissionStatus {
	vehicleID, ok := h.vehicles[sys]
	if !ok {
		return nil
	}
	assignments, err := h.tables.MissionAssignments.SelectWhere(ctx, "vehicle_id", vehicleID)
	if err != nil {
		h.log.Error("Failed to load missions of %s: %v", vehicleID, err)
		return nil
	}

	out := make([]models.MissionStatus, 0, len(assignments))
	for _, a := range assignments {
		if cur, ok := h.transfers[sys]; ok && cur.ID == a.ID {
			out = append(out, cur)
			continue
		}
		status, err := h.loadMissionStatus(ctx, a.ID)
		if err != nil {
			h.log.Error("Failed to load mission status %s: %v", a.ID, err)
			continue
		}
		out = append(out, status)
	}
	return out
}

func (h *Handler) updateProgress(ctx context.Context, sys uint8, status models.MissionStatus) {
	if cur, ok := h.transfers[sys]; ok && cur.ID == status.ID {
		h.transfers[sys] = status
	}
	h.saveMissionStatus(ctx, status)
}

func (h *Handler) handleMissionCurrent(ctx context.Context, sys uint8, seq uint16) {
	current := uint16(0)
	if seq > 0 {
		current = seq - 1
	}
	for _, status := range h.missionsOf(ctx, sys) {
		start := status.Progress.Kind == models.MissionOnHold && seq > 0
		if status.Progress.Current == current && !start {
			continue
		}
		status.Progress.Current = current
		if start {
			status.Progress.Kind = models.MissionInProgress
		}
		h.updateProgress(ctx, sys, status)
	}
}

func (h *Handler) handleMissionItemReached(ctx context.Context, sys uint8, seq uint16) {
	if seq == 0 {
		return
	}
	reached := seq - 1
	for _, status := range h.missionsOf(ctx, sys) {
		if containsSeq(status.Progress.Reached, reached) {
			continue
		}
		status.Progress.Reached = append(status.Progress.Reached, reached)
		if status.Progress.Kind == models.MissionOnHold {
			status.Progress.Kind = models.MissionInProgress
		}
		if route, err := h.loadRoute(ctx, status.ID); err == nil && len(route.Items) > 0 && int(reached) == len(route.Items)-1 {
			status.Progress.Kind = models.MissionFinished
		}
		h.updateProgress(ctx, sys, status)
	}
}

func containsSeq(list []uint16, v uint16) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
