// Package mqttbridge mirrors server events to an MQTT broker and, when
// enabled, feeds operator requests published on the broker into the
// client event bus.
package mqttbridge

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"GroundLink/internal/bus"
	"GroundLink/internal/logger"
)

type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	ClientEvents   bool // subscribe to <prefix>/client
	ConnectTimeout time.Duration
	Buffer         int
}

// Bridge publishes every server event as JSON on <prefix>/<kind>.
type Bridge struct {
	cfg       Config
	client    mqtt.Client
	server    *bus.ServerBus
	clientBus *bus.ClientBus
	log       *logger.Scoped

	sub  *bus.Subscription[bus.ServerEvent]
	wg   sync.WaitGroup
	stop context.CancelFunc
}

func New(cfg Config, server *bus.ServerBus, clientBus *bus.ClientBus) *Bridge {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "groundlink"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	b := &Bridge{
		cfg:       cfg,
		server:    server,
		clientBus: clientBus,
		log:       logger.New("MQTT"),
	}
	b.client = mqtt.NewClient(b.options())
	return b
}

func (b *Bridge) options() *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(b.cfg.ClientID).
		SetUsername(b.cfg.Username).
		SetPassword(b.cfg.Password).
		SetProtocolVersion(4). // MQTT 3.1.1
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			b.log.Warn("Connection to %s lost: %v", b.cfg.Broker, err)
		})
}

// onConnect runs on every (re)connect; subscriptions do not survive a
// clean session.
func (b *Bridge) onConnect(c mqtt.Client) {
	b.log.Info("Connected to %s", b.cfg.Broker)
	if !b.cfg.ClientEvents || b.clientBus == nil {
		return
	}
	topic := b.cfg.TopicPrefix + "/client"
	tok := c.Subscribe(topic, 1, b.onClientMessage)
	go func() {
		<-tok.Done()
		if err := tok.Error(); err != nil {
			b.log.Error("Subscribe to %s failed: %v", topic, err)
		}
	}()
}

func (b *Bridge) onClientMessage(_ mqtt.Client, msg mqtt.Message) {
	ev, err := DecodeClientEvent(msg.Payload())
	if err != nil {
		b.log.Warn("Dropping client event from %s: %v", msg.Topic(), err)
		return
	}
	b.log.Debug("Client event %s from broker", ev.Kind)
	b.clientBus.Publish(ev)
}

// Start connects to the broker and starts forwarding server events.
func (b *Bridge) Start(ctx context.Context) error {
	tok := b.client.Connect()
	if !tok.WaitTimeout(b.cfg.ConnectTimeout) {
		// SetConnectRetry keeps trying in the background
		b.log.Warn("Broker %s not reachable yet, retrying in background", b.cfg.Broker)
	} else if err := tok.Error(); err != nil {
		return errors.Wrapf(err, "connect %s", b.cfg.Broker)
	}

	ctx, b.stop = context.WithCancel(ctx)
	b.sub = b.server.Subscribe(b.cfg.Buffer)
	b.wg.Add(1)
	go b.forward(ctx)
	return nil
}

// Stop ends forwarding and disconnects.
func (b *Bridge) Stop() {
	if b.stop != nil {
		b.stop()
	}
	b.wg.Wait()
	if b.sub != nil {
		b.sub.Close()
	}
	b.client.Disconnect(250)
	b.log.Info("Bridge stopped")
}

func (b *Bridge) forward(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-b.sub.C():
			if !ok {
				return
			}
			b.publish(ev)
		}
	}
}

func (b *Bridge) publish(ev bus.ServerEvent) {
	payload, err := Encode(ev)
	if err != nil {
		b.log.Error("Failed to encode %s: %v", ev.Kind, err)
		return
	}
	topic := Topic(b.cfg.TopicPrefix, ev.Kind)
	qos := QoS(ev.Kind)
	tok := b.client.Publish(topic, qos, false, payload)
	if qos == 0 {
		return
	}
	go func() {
		<-tok.Done()
		if err := tok.Error(); err != nil {
			b.log.Warn("Publish to %s failed: %v", topic, err)
		}
	}()
}

// Topic is the topic server events of kind are published on.
func Topic(prefix string, kind bus.ServerEventKind) string {
	return strings.TrimSuffix(prefix, "/") + "/" + string(kind)
}

// QoS is 0 for telemetry, which is superseded by the next sample, and 1
// for everything else.
func QoS(kind bus.ServerEventKind) byte {
	if kind.IsTelemetry() {
		return 0
	}
	return 1
}

// Encode renders a server event as {"kind","data","timestamp"}.
func Encode(ev bus.ServerEvent) ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeClientEvent parses and checks an operator request.
func DecodeClientEvent(payload []byte) (bus.ClientEvent, error) {
	var ev bus.ClientEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return bus.ClientEvent{}, errors.Wrap(err, "decode client event")
	}
	if err := ev.Validate(); err != nil {
		return bus.ClientEvent{}, err
	}
	return ev, nil
}
