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

// commandFrames runs the send algorithm over every stored execution.
func (h *Handler) commandFrames(ctx context.Context, now time.Time) []message.Message {
	executions, err := h.tables.CommandExecutions.SelectAll(ctx)
	if err != nil {
		h.log.Error("Failed to load command executions: %v", err)
		return nil
	}

	live := make(map[string]bool, len(executions))
	var out []message.Message
	for _, e := range executions {
		live[e.ID] = true
		if msg := h.commandFrame(ctx, e, now); msg != nil {
			out = append(out, msg)
		}
	}
	// finished by another handler
	for id := range h.commandQueued {
		if !live[id] {
			delete(h.commandQueued, id)
		}
	}
	return out
}

// commandTimeout bounds how long an execution may wait to be sent, and how
// long an in-progress execution may stay silent.
func (h *Handler) commandTimeout() time.Duration {
	return time.Duration(h.cfg.MaxCommandSendAttempts) * h.cfg.CommandResendInterval
}

// commandFrame returns the frame to emit for e at now, or nil.
func (h *Handler) commandFrame(ctx context.Context, e *models.CommandExecution, now time.Time) message.Message {
	if e.State.IsTerminal() {
		// left behind by a failed delete
		h.forgetCommand(ctx, e.ID)
		return nil
	}

	stale := false
	if e.State.Kind == models.CommandInitial {
		first, ok := h.commandQueued[e.ID]
		if !ok {
			first = now
			h.commandQueued[e.ID] = now
		}
		stale = now.Sub(first) >= h.commandTimeout()
	} else {
		delete(h.commandQueued, e.ID)
	}

	if e.State.Kind != models.CommandInProgress {
		if last, ok := h.commandLastSent[e.ID]; ok && now.Sub(last) < h.cfg.CommandResendInterval {
			return nil
		}
	}

	sys, bound, err := h.systemFor(ctx, e.Executor.VehicleID)
	if err != nil {
		h.log.Error("Failed to resolve executor of command %s: %v", e.ID, err)
		return nil
	}
	if !bound {
		h.log.Warn("Command %s targets unknown vehicle %q", e.ID, e.Executor.VehicleID)
		h.finishCommand(ctx, e, models.CommandState{Kind: models.CommandFailed})
		return nil
	}
	if !h.owns(sys) {
		if stale {
			h.log.Warn("Command %s (%s) not sent: system %d not heard on any link", e.ID, e.Command.Name(), sys)
			h.finishCommand(ctx, e, models.CommandState{Kind: models.CommandFailed})
		}
		return nil
	}

	var attempt uint8
	switch e.State.Kind {
	case models.CommandInitial:
		attempt = 1
	case models.CommandSent:
		if e.State.Attempt >= h.cfg.MaxCommandSendAttempts {
			h.log.Warn("Command %s (%s) not acknowledged after %d attempts", e.ID, e.Command.Name(), e.State.Attempt)
			h.finishCommand(ctx, e, models.CommandState{Kind: models.CommandFailed})
			return nil
		}
		attempt = e.State.Attempt + 1
	case models.CommandInProgress:
		// the entry is dropped on every IN_PROGRESS ack
		last, ok := h.commandLastSent[e.ID]
		if !ok {
			h.commandLastSent[e.ID] = now
			return nil
		}
		if now.Sub(last) >= h.commandTimeout() {
			h.log.Warn("Command %s (%s) in progress without news for %v", e.ID, e.Command.Name(), now.Sub(last))
			h.finishCommand(ctx, e, models.CommandState{Kind: models.CommandFailed})
		}
		return nil
	}

	enc, err := codec.EncodeCommand(e.Command, sys, attempt, h.modes[sys])
	if errors.Is(err, codec.ErrModesUnknown) {
		if stale {
			h.log.Warn("Command %s: no mode table for system %d", e.ID, sys)
			h.finishCommand(ctx, e, models.CommandState{Kind: models.CommandFailed})
		}
		return nil
	}
	if err != nil {
		h.log.Warn("Command %s: %v", e.ID, err)
		h.finishCommand(ctx, e, models.CommandState{Kind: models.CommandUnsupported})
		return nil
	}

	if enc.HasAck {
		h.pendingAcks[ackKey{command: enc.AckCmd, system: sys}] = e.ID
	}
	h.commandLastSent[e.ID] = now
	delete(h.commandQueued, e.ID)
	e.State = models.CommandState{Kind: models.CommandSent, Attempt: attempt}
	if err := h.tables.CommandExecutions.Update(ctx, e); err != nil {
		h.log.Error("Failed to store command %s: %v", e.ID, err)
	}
	h.publish(bus.CommandExecutionUpdated, *e)
	h.log.Debug("Command %s (%s) attempt %d to system %d", e.ID, e.Command.Name(), attempt, sys)

	if !enc.HasAck {
		h.finishCommand(ctx, e, models.CommandState{Kind: models.CommandAccepted})
	}
	return enc.Message
}

func (h *Handler) handleCommandAck(ctx context.Context, sys uint8, m *common.MessageCommandAck) {
	key := ackKey{command: uint16(m.Command), system: sys}
	id, ok := h.pendingAcks[key]
	if !ok {
		h.log.Debug("Unexpected COMMAND_ACK %d from system %d", m.Command, sys)
		return
	}

	e, err := h.tables.CommandExecutions.SelectOne(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		delete(h.pendingAcks, key)
		return
	}
	if err != nil {
		h.log.Error("Failed to load command %s: %v", id, err)
		return
	}

	state := codec.CommandResult(m.Result)
	if !state.IsTerminal() {
		delete(h.commandLastSent, id)
		e.State = state
		if err := h.tables.CommandExecutions.Update(ctx, e); err != nil {
			h.log.Error("Failed to store command %s: %v", id, err)
		}
		h.publish(bus.CommandExecutionUpdated, *e)
		return
	}
	h.finishCommand(ctx, e, state)
}

// finishCommand moves e to a terminal state, drops its tracking entries
// and removes it from the store.
func (h *Handler) finishCommand(ctx context.Context, e *models.CommandExecution, state models.CommandState) {
	e.State = state
	h.log.Info("Command %s (%s) finished: %s", e.ID, e.Command.Name(), state.Kind)
	h.publish(bus.CommandExecutionUpdated, *e)
	h.forgetCommand(ctx, e.ID)
}

func (h *Handler) forgetCommand(ctx context.Context, id string) {
	for key, pending := range h.pendingAcks {
		if pending == id {
			delete(h.pendingAcks, key)
		}
	}
	delete(h.commandLastSent, id)
	delete(h.commandQueued, id)
	if err := h.tables.CommandExecutions.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		h.log.Error("Failed to remove command %s: %v", id, err)
	}
}
