package link

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"

	"GroundLink/internal/codec"
	"GroundLink/internal/logger"
	"GroundLink/internal/metrics"
	"GroundLink/internal/models"
)

// Config tunes one connection. Zero durations take the defaults below.
type Config struct {
	SystemID           uint8
	ComponentID        uint8
	Version            models.MavlinkVersion
	PollInterval       time.Duration
	OnlineInterval     time.Duration
	ResetStatsInterval time.Duration
	DialTimeout        time.Duration
	FrameBuffer        int
}

func (c Config) withDefaults() Config {
	if c.SystemID == 0 {
		c.SystemID = 255
	}
	if c.ComponentID == 0 {
		c.ComponentID = 190
	}
	if c.Version == "" {
		c.Version = models.MavlinkV2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Millisecond
	}
	if c.OnlineInterval <= 0 {
		c.OnlineInterval = 2 * time.Second
	}
	if c.ResetStatsInterval <= 0 {
		c.ResetStatsInterval = time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.FrameBuffer <= 0 {
		c.FrameBuffer = 256
	}
	return c
}

// Frame is one decoded inbound message with its sender.
type Frame struct {
	SystemID    uint8
	ComponentID uint8
	Message     message.Message
}

// State of a connection. Faulted connections stay faulted until Disconnect.
type State int32

const (
	Closed State = iota
	Opening
	Open
	Faulted
)

func (s State) String() string {
	switch s {
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Faulted:
		return "faulted"
	}
	return "closed"
}

// Connection is one MAVLink link.
type Connection struct {
	endpoint Endpoint
	cfg      Config
	log      *logger.Scoped

	// mu guards the transport handles; the receive task never takes it
	mu        deadlock.Mutex
	node      *gomavlib.Node
	transport *countingTransport
	frames    chan Frame
	cancel    context.CancelFunc
	done      chan struct{}

	state    atomic.Int32
	faultMu  deadlock.Mutex
	fault    error
	stats    atomic.Pointer[trafficStats]
	lastRecv atomic.Pointer[time.Time] // nil until the first frame
}

func New(endpoint Endpoint, cfg Config) *Connection {
	c := &Connection{
		endpoint: endpoint,
		cfg:      cfg.withDefaults(),
		log:      logger.New("LINK").With(endpoint.URI()),
		frames:   make(chan Frame),
	}
	c.stats.Store(newTrafficStats(c.cfg.ResetStatsInterval, time.Now()))
	return c
}

func (c *Connection) Endpoint() Endpoint { return c.endpoint }

// Connect opens the transport and starts the receive task. Connecting an
// open connection is a no-op.
func (c *Connection) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case Open:
		return nil
	case Faulted:
		c.teardownLocked()
	}
	c.state.Store(int32(Opening))

	rwc, err := c.endpoint.open(c.cfg.DialTimeout)
	if err != nil {
		c.state.Store(int32(Closed))
		return &IOError{Op: "connect", Err: err}
	}

	stats := newTrafficStats(c.cfg.ResetStatsInterval, time.Now())
	c.stats.Store(stats)
	transport := newCountingTransport(rwc, stats, c.endpoint.Kind == models.LinkUDP, c.cfg.PollInterval)

	outVersion := gomavlib.V2
	if c.cfg.Version == models.MavlinkV1 {
		outVersion = gomavlib.V1
	}
	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints: []gomavlib.EndpointConf{
			gomavlib.EndpointCustom{ReadWriteCloser: transport},
		},
		Dialect:        common.Dialect,
		OutVersion:     outVersion,
		OutSystemID:    c.cfg.SystemID,
		OutComponentID: c.cfg.ComponentID,
	})
	if err != nil {
		transport.Close()
		c.state.Store(int32(Closed))
		return &IOError{Op: "connect", Err: errors.Wrap(err, "create MAVLink node")}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.node = node
	c.transport = transport
	c.frames = make(chan Frame, c.cfg.FrameBuffer)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.setFaultErr(nil)
	c.lastRecv.Store(nil)
	c.state.Store(int32(Open))

	go c.receive(ctx, node, transport, stats, c.frames, c.done)

	metrics.Global.IncLinkOpened()
	c.log.Info("Connected (MAVLink %s, sys %d comp %d)", c.cfg.Version, c.cfg.SystemID, c.cfg.ComponentID)
	return nil
}

// Disconnect stops the receive task and drops the transport. Safe to call
// on a closed connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == Closed {
		return
	}
	c.teardownLocked()
	c.log.Info("Disconnected")
}

func (c *Connection) teardownLocked() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	if c.node != nil {
		c.node.Close()
	}
	if c.transport != nil {
		c.transport.Close()
	}
	c.node, c.transport, c.cancel = nil, nil, nil
	c.state.Store(int32(Closed))
}

// receive forwards node events until cancelled or the transport fails.
// Every poll interval it rotates the traffic statistics and checks the
// transport for errors.
func (c *Connection) receive(ctx context.Context, node *gomavlib.Node, transport *countingTransport, stats *trafficStats, frames chan<- Frame, done chan<- struct{}) {
	defer close(done)
	defer close(frames)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	events := node.Events()

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-ticker.C:
			stats.rotate(now)
			if err := transport.Err(); err != nil {
				c.setFault(err)
				return
			}

		case event, ok := <-events:
			if !ok {
				c.setFault(&IOError{Op: "recv", Err: errors.New("node closed")})
				return
			}
			switch e := event.(type) {
			case *gomavlib.EventFrame:
				now := time.Now()
				c.lastRecv.Store(&now)
				msg := e.Message()
				metrics.Global.IncReceived(codec.MessageName(msg))
				select {
				case frames <- Frame{SystemID: e.SystemID(), ComponentID: e.ComponentID(), Message: msg}:
				case <-ctx.Done():
					return
				}

			case *gomavlib.EventParseError:
				c.log.Debug("Parse error: %v", e.Error)

			case *gomavlib.EventChannelOpen:
				c.log.Debug("Channel opened")

			case *gomavlib.EventChannelClose:
				err := transport.Err()
				if err == nil {
					err = &IOError{Op: "recv", Err: errors.New("channel closed")}
				}
				c.setFault(err)
				return
			}
		}
	}
}

func (c *Connection) setFault(err error) {
	if !c.state.CompareAndSwap(int32(Open), int32(Faulted)) {
		return
	}
	c.setFaultErr(err)
	metrics.Global.IncLinkFaulted()
	c.log.Error("Link faulted: %v", err)
}

func (c *Connection) setFaultErr(err error) {
	c.faultMu.Lock()
	c.fault = err
	c.faultMu.Unlock()
}

// Frames delivers inbound frames in arrival order. The channel is closed
// when the receive task stops.
func (c *Connection) Frames() <-chan Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Send writes one message to the link.
func (c *Connection) Send(msg message.Message) error {
	c.mu.Lock()
	node := c.node
	c.mu.Unlock()
	state := c.State()

	name := codec.MessageName(msg)
	if state != Open || node == nil {
		metrics.Global.IncFailed(name)
		return &IOError{Op: "send", Err: ErrNotConnected}
	}
	if err := node.WriteMessageAll(msg); err != nil {
		metrics.Global.IncFailed(name)
		ioErr := &IOError{Op: "send", Err: err}
		c.setFault(ioErr)
		return ioErr
	}
	metrics.Global.IncSent(name)
	return nil
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

// Err returns the error that faulted the connection, if any.
func (c *Connection) Err() error {
	c.faultMu.Lock()
	defer c.faultMu.Unlock()
	return c.fault
}

// IsHealthy reports whether the receive task is still running.
func (c *Connection) IsHealthy() bool {
	return c.State() == Open
}

// IsOnline reports whether a frame arrived within the online interval.
func (c *Connection) IsOnline() bool {
	last := c.lastRecv.Load()
	if last == nil {
		return false
	}
	return time.Since(*last) < c.cfg.OnlineInterval
}

// BytesReceived is the inbound rate in bytes per second.
func (c *Connection) BytesReceived() uint64 {
	rx, _ := c.stats.Load().rates()
	return rx
}

// BytesSent is the outbound rate in bytes per second.
func (c *Connection) BytesSent() uint64 {
	_, tx := c.stats.Load().rates()
	return tx
}
