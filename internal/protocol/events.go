package protocol

import (
	"context"

	"github.com/pkg/errors"

	"GroundLink/internal/bus"
	"GroundLink/internal/models"
	"GroundLink/internal/store"
)

// HandleClientEvent applies one operator request. Every handler sees every
// event; commands are stored by whichever handler gets there first and sent
// by the one whose link carries the vehicle, missions are ignored unless the
// vehicle is on this link.
func (h *Handler) HandleClientEvent(ctx context.Context, ev bus.ClientEvent) {
	switch ev.Kind {
	case bus.ExecuteCommandEvent:
		h.executeCommand(ctx, ev)
	case bus.CancelCommandEvent:
		h.cancelCommand(ctx, ev.CommandID)
	case bus.DownloadMissionEvent:
		h.startTransfer(ctx, ev.MissionID, ev.Kind)
	case bus.UploadMissionEvent:
		h.startTransfer(ctx, ev.MissionID, ev.Kind)
	case bus.ClearMissionEvent:
		h.startTransfer(ctx, ev.MissionID, ev.Kind)
	case bus.CancelMissionStateEvent:
		h.cancelMissionState(ctx, ev.MissionID)
	case bus.SetLinkConnectedEvent:
		// supervisor business
	default:
		h.log.Warn("Unknown client event %q", ev.Kind)
	}
}

func (h *Handler) executeCommand(ctx context.Context, ev bus.ClientEvent) {
	if ev.Request == nil {
		h.log.Warn("Execute command %s without request", ev.CommandID)
		return
	}
	exec := &models.CommandExecution{
		ID:       ev.CommandID,
		Command:  ev.Request.Command,
		Executor: ev.Request.Executor,
		State:    models.CommandState{Kind: models.CommandInitial},
	}
	created, err := h.tables.CommandExecutions.Create(ctx, exec)
	if errors.Is(err, store.ErrAlreadyExists) {
		// stored by the handler of another link
		h.log.Debug("Command %s already queued", ev.CommandID)
		return
	}
	if err != nil {
		h.log.Error("Failed to store command %s: %v", ev.CommandID, err)
		return
	}
	h.log.Info("Command %s (%s) queued for vehicle %s", created.ID, created.Command.Name(), created.Executor.VehicleID)
	h.publish(bus.CommandExecutionUpdated, *created)
}

func (h *Handler) cancelCommand(ctx context.Context, id string) {
	e, err := h.tables.CommandExecutions.SelectOne(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		h.log.Debug("Cancel of unknown command %s", id)
		return
	}
	if err != nil {
		h.log.Error("Failed to load command %s: %v", id, err)
		return
	}
	h.finishCommand(ctx, e, models.CommandState{Kind: models.CommandCanceled})
}

// missionSystem resolves the system id a mission is assigned to. ok is
// false when the mission has no assignment or its vehicle is not bound.
func (h *Handler) missionSystem(ctx context.Context, missionID string) (sys uint8, ok bool, err error) {
	assignment, err := h.tables.MissionAssignments.SelectOne(ctx, missionID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return h.systemFor(ctx, assignment.VehicleID)
}

func (h *Handler) startTransfer(ctx context.Context, missionID string, kind bus.ClientEventKind) {
	sys, ok, err := h.missionSystem(ctx, missionID)
	if err != nil {
		h.log.Error("Failed to resolve mission %s: %v", missionID, err)
		return
	}
	if !ok {
		h.log.Debug("Mission %s is not assigned to a MAVLink vehicle", missionID)
		return
	}
	if !h.owns(sys) {
		return
	}

	status, err := h.loadMissionStatus(ctx, missionID)
	if err != nil {
		h.log.Error("Failed to load mission status %s: %v", missionID, err)
		return
	}
	if !status.State.IsIdle() {
		h.log.Warn("Mission %s: %s refused while %s", missionID, kind, status.State.Kind)
		return
	}
	if cur, busy := h.transfers[sys]; busy {
		h.log.Warn("Mission %s: %s refused, system %d is busy with %s", missionID, kind, sys, cur.ID)
		return
	}

	switch kind {
	case bus.DownloadMissionEvent:
		status.State = models.MissionState{Kind: models.MissionPrepareDownload}
	case bus.UploadMissionEvent:
		route, err := h.loadRoute(ctx, missionID)
		if err != nil {
			h.log.Error("Failed to load route %s: %v", missionID, err)
			return
		}
		status.State = models.MissionState{Kind: models.MissionPrepareUpload, Total: uint16(len(route.Items) + 1)}
	case bus.ClearMissionEvent:
		status.State = models.MissionState{Kind: models.MissionClearing}
	}
	delete(h.missionLastSent, missionID)
	h.log.Info("Mission %s: %s on system %d", missionID, status.State.Kind, sys)
	h.setTransfer(ctx, sys, status)
}

func (h *Handler) cancelMissionState(ctx context.Context, missionID string) {
	for sys, cur := range h.transfers {
		if cur.ID == missionID {
			delete(h.transfers, sys)
		}
	}
	delete(h.missionLastSent, missionID)

	sys, ok, err := h.missionSystem(ctx, missionID)
	if err != nil {
		h.log.Error("Failed to resolve mission %s: %v", missionID, err)
		return
	}
	if !ok || !h.owns(sys) {
		return
	}

	status, err := h.loadMissionStatus(ctx, missionID)
	if err != nil {
		h.log.Error("Failed to load mission status %s: %v", missionID, err)
		return
	}
	status.State = models.MissionState{Kind: models.MissionNotActual}
	h.log.Info("Mission %s: transfer canceled", missionID)
	h.saveMissionStatus(ctx, status)
}
