package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"iot-gateway/common"
	"iot-gateway/relay"
	"iot-gateway/serial"
)

// ErrMalformedMessage is returned for payloads that are not valid JSON.
var ErrMalformedMessage = errors.New("router: malformed message")

// DefaultDebugTopic carries serial debug responses.
const DefaultDebugTopic = "data/debug"

const defaultStoreTimeout = 5 * time.Second

// Sink persists every decoded inbound message.
type Sink interface {
	Store(ctx context.Context, data any) error
}

// Exchanger runs one command/response round trip with the serial peripheral.
type Exchanger interface {
	Exchange(cmd common.SerialCommand) (common.SerialResponse, error)
}

// Publisher sends a payload to the broker.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// RelayObserver is told about every decoded relay status and control message.
type RelayObserver interface {
	ObserveStatus(status *relay.DeviceStatus)
	ObserveControl(deviceID string, cmd *relay.ControlCommand)
}

// Config holds the router's outbound addressing.
type Config struct {
	DebugTopic   string
	Topics       relay.Topics
	StoreTimeout time.Duration
}

// Router classifies inbound broker messages and dispatches them.
// Route is safe for concurrent use.
type Router struct {
	config    Config
	sink      Sink
	serial    Exchanger
	publisher Publisher
	observer  RelayObserver
	logger    *logrus.Entry
	stats     counters
}

type counters struct {
	routed       atomic.Uint64
	dropped      atomic.Uint64
	storeFailed  atomic.Uint64
	debug        atomic.Uint64
	debugFailed  atomic.Uint64
	relayStatus  atomic.Uint64
	relayControl atomic.Uint64
}

// Stats is a snapshot of the router counters.
type Stats struct {
	Routed       uint64 `json:"routed"`
	Dropped      uint64 `json:"dropped"`
	StoreFailed  uint64 `json:"store_failed"`
	Debug        uint64 `json:"debug"`
	DebugFailed  uint64 `json:"debug_failed"`
	RelayStatus  uint64 `json:"relay_status"`
	RelayControl uint64 `json:"relay_control"`
}

// New creates a router. observer may be nil.
func New(config Config, sink Sink, exchanger Exchanger, publisher Publisher, observer RelayObserver, logger *logrus.Entry) *Router {
	if config.DebugTopic == "" {
		config.DebugTopic = DefaultDebugTopic
	}
	if config.Topics.Namespace == "" {
		config.Topics = relay.NewTopics(relay.DefaultNamespace)
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = defaultStoreTimeout
	}
	return &Router{
		config:    config,
		sink:      sink,
		serial:    exchanger,
		publisher: publisher,
		observer:  observer,
		logger:    logger,
	}
}

// Route handles one inbound message. Only ErrMalformedMessage is returned;
// failures further down are logged and counted.
func (r *Router) Route(msg common.BrokerMessage) error {
	data, err := decodePayload(msg.Payload)
	if err != nil {
		r.stats.dropped.Inc()
		r.logger.WithError(err).WithField("topic", msg.Topic).Warn("Invalid JSON, message dropped")
		return fmt.Errorf("%w: %s: %w", ErrMalformedMessage, msg.Topic, err)
	}
	r.stats.routed.Inc()

	r.store(msg.Topic, data)

	if cmd, ok := debugCommand(data); ok {
		r.handleDebug(cmd)
	}

	if deviceID, ok := r.config.Topics.ParseStatus(msg.Topic); ok {
		r.handleStatus(deviceID, msg)
	} else if deviceID, ok := r.config.Topics.ParseControl(msg.Topic); ok {
		r.handleControl(deviceID, msg)
	}

	return nil
}

// Stats returns the current counters.
func (r *Router) Stats() Stats {
	return Stats{
		Routed:       r.stats.routed.Load(),
		Dropped:      r.stats.dropped.Load(),
		StoreFailed:  r.stats.storeFailed.Load(),
		Debug:        r.stats.debug.Load(),
		DebugFailed:  r.stats.debugFailed.Load(),
		RelayStatus:  r.stats.relayStatus.Load(),
		RelayControl: r.stats.relayControl.Load(),
	}
}

// decodePayload keeps numbers as json.Number so integers beyond 2^53 survive
// the trip to the sinks.
func decodePayload(payload []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if !json.Valid(payload) {
		return nil, errors.New("trailing data after JSON value")
	}
	return data, nil
}

func (r *Router) store(topic string, data any) {
	if r.sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.config.StoreTimeout)
	defer cancel()

	if err := r.sink.Store(ctx, data); err != nil {
		r.stats.storeFailed.Inc()
		r.logger.WithError(err).WithField("topic", topic).Error("Failed to store message")
	}
}

// debugCommand recognizes {"type":"serial_debug","command":"..."}.
func debugCommand(data any) (common.SerialCommand, bool) {
	obj, ok := data.(map[string]any)
	if !ok || obj["type"] != common.TypeSerialDebug {
		return common.SerialCommand{}, false
	}
	text, ok := obj["command"].(string)
	if !ok {
		return common.SerialCommand{}, false
	}
	return common.SerialCommand{Text: text}, true
}

func (r *Router) handleDebug(cmd common.SerialCommand) {
	r.stats.debug.Inc()
	log := r.logger.WithField("command", cmd.Text)

	if r.serial == nil {
		r.stats.debugFailed.Inc()
		log.Warn("No serial session, debug command skipped")
		return
	}

	resp, err := r.serial.Exchange(cmd)
	if err != nil {
		r.stats.debugFailed.Inc()
		switch {
		case errors.Is(err, serial.ErrDeviceUnavailable):
			log.WithError(err).Warn("Serial device unavailable, no response published")
		case errors.Is(err, serial.ErrMalformedResponse):
			log.WithError(err).Warn("Malformed serial response, no response published")
		default:
			log.WithError(err).Error("Serial exchange failed")
		}
		return
	}

	out := common.NewDebugResponse(common.DebugExchange{
		Command:   cmd,
		Response:  resp,
		Timestamp: time.Now(),
	})

	payload, err := json.Marshal(out)
	if err != nil {
		r.stats.debugFailed.Inc()
		log.WithError(err).Error("Failed to encode debug response")
		return
	}

	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(r.config.DebugTopic, payload); err != nil {
		r.stats.debugFailed.Inc()
		log.WithError(err).Error("Failed to publish debug response")
		return
	}

	log.WithField("response", resp.Text).Debug("Debug response published")
}

func (r *Router) handleStatus(deviceID string, msg common.BrokerMessage) {
	status, err := relay.DecodeStatusFrom(deviceID, msg.Payload)
	if err != nil {
		r.logger.WithError(err).WithField("topic", msg.Topic).Debug("Not a relay status, stored only")
		return
	}
	r.stats.relayStatus.Inc()

	if r.observer != nil {
		r.observer.ObserveStatus(status)
	}
}

func (r *Router) handleControl(deviceID string, msg common.BrokerMessage) {
	cmd, err := relay.DecodeControl(msg.Payload)
	if err != nil {
		r.logger.WithError(err).WithField("topic", msg.Topic).Debug("Not a relay control, stored only")
		return
	}
	r.stats.relayControl.Inc()

	if r.observer != nil {
		r.observer.ObserveControl(deviceID, cmd)
	}
}
