// Package supervisor owns the set of open links. It opens and closes
// connections on request, runs one protocol handler per open link and
// keeps link statuses in the store up to date.
package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"

	"GroundLink/internal/bus"
	"GroundLink/internal/link"
	"GroundLink/internal/logger"
	"GroundLink/internal/models"
	"GroundLink/internal/protocol"
	"GroundLink/internal/store"
)

// Conn is the part of a link connection the supervisor drives.
type Conn interface {
	Connect() error
	Disconnect()
	Frames() <-chan link.Frame
	Send(msg message.Message) error
	IsHealthy() bool
	IsOnline() bool
	BytesReceived() uint64
	BytesSent() uint64
}

// Dialer builds an unconnected Conn for a link description.
type Dialer func(desc models.LinkDescription) (Conn, error)

// LinkDialer dials real MAVLink links with cfg, taking the protocol
// version from each description.
func LinkDialer(cfg link.Config) Dialer {
	return func(desc models.LinkDescription) (Conn, error) {
		endpoint := link.EndpointFromModel(desc.Protocol)
		if _, err := link.ParseURI(endpoint.URI()); err != nil {
			return nil, err
		}
		c := cfg
		c.Version = desc.Protocol.Version
		return link.New(endpoint, c), nil
	}
}

type Config struct {
	TickInterval  time.Duration
	StatsInterval int // seconds
	ClientBuffer  int
	Handler       protocol.Config
}

func DefaultConfig() Config {
	return Config{
		TickInterval:  100 * time.Millisecond,
		StatsInterval: 30,
		ClientBuffer:  64,
		Handler:       protocol.DefaultConfig(),
	}
}

type openLink struct {
	id     string
	conn   Conn
	sub    *bus.Subscription[bus.ClientEvent]
	cancel context.CancelFunc
	done   chan struct{}
}

type Supervisor struct {
	cfg    Config
	tables *store.Tables
	server *bus.ServerBus
	client *bus.ClientBus
	events *bus.Subscription[bus.ClientEvent]
	dial   Dialer
	log    *logger.Scoped

	stats   *logger.StatsManager
	rx      *atomic.Uint64
	tx      *atomic.Uint64
	dropped *atomic.Uint64
	faulted *atomic.Uint64

	mu    deadlock.Mutex
	links map[string]*openLink

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(cfg Config, tables *store.Tables, server *bus.ServerBus, client *bus.ClientBus, dial Dialer) *Supervisor {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 64
	}
	stats := logger.NewStatsManager(cfg.StatsInterval)
	return &Supervisor{
		cfg:     cfg,
		tables:  tables,
		server:  server,
		client:  client,
		events:  client.Subscribe(cfg.ClientBuffer),
		dial:    dial,
		log:     logger.New("SUPERVISOR"),
		stats:   stats,
		rx:      stats.RegisterCounter("frames_rx"),
		tx:      stats.RegisterCounter("frames_tx"),
		dropped: stats.RegisterCounter("frames_dropped"),
		faulted: stats.RegisterCounter("links_faulted"),
		links:   make(map[string]*openLink),
		stopCh:  make(chan struct{}),
	}
}

// Init resets every configured link status and opens the autoconnect links.
func (s *Supervisor) Init(ctx context.Context) error {
	descs, err := s.tables.LinkDescriptions.SelectAll(ctx)
	if err != nil {
		return errors.Wrap(err, "load links")
	}
	for _, desc := range descs {
		s.writeStatus(ctx, models.LinkStatus{ID: desc.ID})
		if desc.Autoconnect {
			if err := s.open(ctx, *desc); err != nil {
				s.log.Warn("Autoconnect of %s failed: %v", desc.ID, err)
			}
		}
	}
	s.log.Info("%d link(s) configured, %d open", len(descs), s.OpenLinks())
	return nil
}

// Start runs Init and then the supervision loop until Stop.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	s.stats.Start()
	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop ends the loop, closes every link and resets their statuses.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()

	ctx := context.Background()
	s.mu.Lock()
	ids := make([]string, 0, len(s.links))
	for id := range s.links {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.close(ctx, id)
	}

	s.events.Close()
	s.stats.Stop()
	s.log.Info("Supervisor stopped: %s", s.stats.Report())
}

func (s *Supervisor) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick applies at most one link request, then checks every open link:
// faulted links are closed and removed, healthy ones get a fresh status.
func (s *Supervisor) Tick(ctx context.Context) {
	s.handleLinkRequest(ctx)

	s.mu.Lock()
	links := make([]*openLink, 0, len(s.links))
	for _, l := range s.links {
		links = append(links, l)
	}
	s.mu.Unlock()

	for _, l := range links {
		if !l.conn.IsHealthy() {
			s.log.Warn("Link %s faulted, closing", l.id)
			s.faulted.Add(1)
			s.close(ctx, l.id)
			continue
		}
		s.writeStatus(ctx, models.LinkStatus{
			ID:            l.id,
			Connected:     true,
			Online:        l.conn.IsOnline(),
			BytesReceived: l.conn.BytesReceived(),
			BytesSent:     l.conn.BytesSent(),
		})
	}
}

func (s *Supervisor) handleLinkRequest(ctx context.Context) {
	for {
		ev, ok := s.events.TryRecv()
		if !ok {
			return
		}
		if ev.Kind != bus.SetLinkConnectedEvent {
			continue
		}
		if ev.Connected {
			desc, err := s.tables.LinkDescriptions.SelectOne(ctx, ev.LinkID)
			if err != nil {
				s.log.Warn("Cannot connect link %s: %v", ev.LinkID, err)
				return
			}
			if err := s.open(ctx, *desc); err != nil {
				s.log.Warn("Connect of %s failed: %v", ev.LinkID, err)
			}
		} else {
			s.close(ctx, ev.LinkID)
		}
		return
	}
}

// open connects a link and starts its handler. Opening an open link is a no-op.
func (s *Supervisor) open(ctx context.Context, desc models.LinkDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[desc.ID]; ok {
		return nil
	}
	conn, err := s.dial(desc)
	if err != nil {
		return errors.Wrapf(err, "dial %s", desc.ID)
	}
	if err := conn.Connect(); err != nil {
		return errors.Wrapf(err, "connect %s", desc.ID)
	}

	hctx, cancel := context.WithCancel(ctx)
	l := &openLink{
		id:     desc.ID,
		conn:   conn,
		sub:    s.client.Subscribe(s.cfg.ClientBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	h := protocol.New(s.cfg.Handler, s.tables, s.server, l.sub,
		protocol.WithName(desc.ID),
		protocol.WithCounters(s.rx, s.tx),
		protocol.WithDropCounter(s.dropped),
	)
	go func() {
		defer close(l.done)
		if err := h.Run(hctx, conn); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Debug("Handler of %s exited: %v", desc.ID, err)
		}
	}()
	s.links[desc.ID] = l
	s.log.Info("Link %s (%s) open", desc.ID, desc.Name)
	return nil
}

// close stops the handler of a link, disconnects it and resets its status.
func (s *Supervisor) close(ctx context.Context, id string) {
	s.mu.Lock()
	l, ok := s.links[id]
	delete(s.links, id)
	s.mu.Unlock()
	if !ok {
		return
	}

	l.cancel()
	l.conn.Disconnect()
	<-l.done
	l.sub.Close()
	s.writeStatus(ctx, models.LinkStatus{ID: id})
	s.log.Info("Link %s closed", id)
}

func (s *Supervisor) writeStatus(ctx context.Context, status models.LinkStatus) {
	if err := s.tables.LinkStatuses.Upsert(ctx, &status); err != nil {
		s.log.Error("Failed to store status of link %s: %v", status.ID, err)
		return
	}
	if s.server != nil {
		s.server.Publish(bus.NewServerEvent(bus.LinkStatusUpdated, status))
	}
}

// OpenLinks returns the number of open links.
func (s *Supervisor) OpenLinks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

// IsOpen reports whether link id is open.
func (s *Supervisor) IsOpen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.links[id]
	return ok
}
