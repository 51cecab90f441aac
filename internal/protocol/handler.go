// Package protocol drives the vehicles seen on one MAVLink link: it folds
// inbound frames into the store and, once per tick, computes the frames
// needed to move command executions and mission transfers forward.
package protocol

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/pkg/errors"

	"GroundLink/internal/bus"
	"GroundLink/internal/codec"
	"GroundLink/internal/link"
	"GroundLink/internal/logger"
	"GroundLink/internal/metrics"
	"GroundLink/internal/models"
	"GroundLink/internal/store"
)

// ErrTransportClosed is returned by Run when the link stops delivering frames.
var ErrTransportClosed = errors.New("transport closed")

type Config struct {
	AutoAddVehicles        bool
	MaxCommandSendAttempts uint8
	CommandResendInterval  time.Duration
	MissionResendInterval  time.Duration
	TickInterval           time.Duration
}

func DefaultConfig() Config {
	return Config{
		AutoAddVehicles:        true,
		MaxCommandSendAttempts: 5,
		CommandResendInterval:  2 * time.Second,
		MissionResendInterval:  2 * time.Second,
		TickInterval:           100 * time.Millisecond,
	}
}

// Transport is the part of a link connection the handler needs.
type Transport interface {
	Frames() <-chan link.Frame
	Send(msg message.Message) error
}

type ackKey struct {
	command uint16
	system  uint8
}

type Handler struct {
	cfg    Config
	tables *store.Tables
	server *bus.ServerBus
	client *bus.Subscription[bus.ClientEvent]
	log    *logger.Scoped
	wall   func() time.Time

	rxCounter   *atomic.Uint64
	txCounter   *atomic.Uint64
	dropCounter *atomic.Uint64

	vehicles        map[uint8]string // system id -> vehicle id
	modes           map[uint8]codec.ModeTable
	transfers       map[uint8]models.MissionStatus
	pendingAcks     map[ackKey]string
	commandLastSent map[string]time.Time
	commandQueued   map[string]time.Time // first tick an execution was seen unsent
	missionLastSent map[string]time.Time
	queued          []message.Message
}

type Option func(*Handler)

// WithWallClock replaces time.Now for heartbeat timestamps.
func WithWallClock(fn func() time.Time) Option {
	return func(h *Handler) { h.wall = fn }
}

// WithCounters counts frames handled and frames sent.
func WithCounters(rx, tx *atomic.Uint64) Option {
	return func(h *Handler) { h.rxCounter, h.txCounter = rx, tx }
}

// WithDropCounter counts inbound frames of message types the handler ignores.
func WithDropCounter(c *atomic.Uint64) Option {
	return func(h *Handler) { h.dropCounter = c }
}

// WithName tags log lines, usually with the link id.
func WithName(name string) Option {
	return func(h *Handler) { h.log = logger.New("HANDLER").With(name) }
}

// New creates a handler. client may be nil when no client events are expected.
func New(cfg Config, tables *store.Tables, server *bus.ServerBus, client *bus.Subscription[bus.ClientEvent], opts ...Option) *Handler {
	if cfg.MaxCommandSendAttempts == 0 {
		cfg.MaxCommandSendAttempts = 5
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	h := &Handler{
		cfg:             cfg,
		tables:          tables,
		server:          server,
		client:          client,
		log:             logger.New("HANDLER"),
		wall:            time.Now,
		vehicles:        make(map[uint8]string),
		modes:           make(map[uint8]codec.ModeTable),
		transfers:       make(map[uint8]models.MissionStatus),
		pendingAcks:     make(map[ackKey]string),
		commandLastSent: make(map[string]time.Time),
		commandQueued:   make(map[string]time.Time),
		missionLastSent: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run processes frames from t and sends tick batches until ctx is done or
// the transport closes its frame channel.
func (h *Handler) Run(ctx context.Context, t Transport) error {
	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()
	frames := t.Frames()

	h.log.Info("Handler started")
	defer h.log.Info("Handler stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case f, ok := <-frames:
			if !ok {
				return ErrTransportClosed
			}
			h.HandleFrame(ctx, f)

		case now := <-ticker.C:
			for _, msg := range h.Tick(ctx, now) {
				if err := t.Send(msg); err != nil {
					h.log.Error("Failed to send %s: %v", codec.MessageName(msg), err)
					continue
				}
				if h.txCounter != nil {
					h.txCounter.Add(1)
				}
			}
		}
	}
}

// HandleFrame folds one inbound frame into handler state and the store.
func (h *Handler) HandleFrame(ctx context.Context, f link.Frame) {
	if h.rxCounter != nil {
		h.rxCounter.Add(1)
	}
	sys := f.SystemID

	switch m := f.Message.(type) {
	case *common.MessageHeartbeat:
		h.handleHeartbeat(ctx, sys, m)

	case *common.MessageAttitude:
		h.updateFlight(ctx, sys, func(r *models.Flight) { codec.ApplyAttitude(r, m) })
	case *common.MessageVfrHud:
		h.updateFlight(ctx, sys, func(r *models.Flight) { codec.ApplyVfrHud(r, m) })
	case *common.MessageGlobalPositionInt:
		h.updateNavigation(ctx, sys, func(r *models.Navigation) { codec.ApplyGlobalPosition(r, m) })
	case *common.MessageHomePosition:
		h.updateNavigation(ctx, sys, func(r *models.Navigation) { codec.ApplyHomePosition(r, m) })
	case *common.MessageNavControllerOutput:
		h.updateNavigation(ctx, sys, func(r *models.Navigation) { codec.ApplyNavControllerOutput(r, m) })
	case *common.MessagePositionTargetGlobalInt:
		h.updateNavigation(ctx, sys, func(r *models.Navigation) { codec.ApplyPositionTarget(r, m) })
	case *common.MessageGpsRawInt:
		h.updateRawSns(ctx, sys, func(r *models.RawSns) { codec.ApplyGpsRawInt(r, m) })
	case *common.MessageSysStatus:
		h.updateSystem(ctx, sys, func(r *models.System) { codec.ApplySysStatus(r, m) })

	case *common.MessageCommandAck:
		h.handleCommandAck(ctx, sys, m)

	case *common.MessageMissionCount:
		h.handleMissionCount(ctx, sys, m)
	case *common.MessageMissionItemInt:
		h.handleMissionItem(ctx, sys, m)
	case *common.MessageMissionRequest:
		h.handleMissionRequest(ctx, sys, m.Seq)
	case *common.MessageMissionRequestInt:
		h.handleMissionRequest(ctx, sys, m.Seq)
	case *common.MessageMissionAck:
		h.handleMissionAck(ctx, sys, m)
	case *common.MessageMissionCurrent:
		h.handleMissionCurrent(ctx, sys, m.Seq)
	case *common.MessageMissionItemReached:
		h.handleMissionItemReached(ctx, sys, m.Seq)

	default:
		metrics.Global.IncDropped(codec.MessageName(f.Message))
		if h.dropCounter != nil {
			h.dropCounter.Add(1)
		}
	}
}

// Tick computes the outbound batch for instant now: queued frames first,
// then at most one frame per command execution and per mission transfer.
func (h *Handler) Tick(ctx context.Context, now time.Time) []message.Message {
	if h.client != nil {
		if ev, ok := h.client.TryRecv(); ok {
			h.HandleClientEvent(ctx, ev)
		}
	}

	out := h.queued
	h.queued = nil
	out = append(out, h.commandFrames(ctx, now)...)
	out = append(out, h.missionFrames(ctx, now)...)
	return out
}

func (h *Handler) publish(kind bus.ServerEventKind, data interface{}) {
	if h.server != nil {
		h.server.Publish(bus.NewServerEvent(kind, data))
	}
}

// owns reports whether sys has been seen on this handler's link.
func (h *Handler) owns(sys uint8) bool {
	_, ok := h.vehicles[sys]
	return ok
}

func sortedSystems[V any](m map[uint8]V) []uint8 {
	out := make([]uint8, 0, len(m))
	for sys := range m {
		out = append(out, sys)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// upsertRow loads the row id (or starts an empty one), applies fn and
// writes it back.
func upsertRow[E any, P store.Document[E]](ctx context.Context, t *store.Table[E, P], id string, fn func(*E)) (*E, error) {
	row, err := t.SelectOne(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		row = new(E)
		P(row).SetEntityID(id)
	} else if err != nil {
		return nil, err
	}
	fn(row)
	return row, t.Upsert(ctx, row)
}
