package gateway

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"iot-gateway/api"
	"iot-gateway/config"
	"iot-gateway/influx"
	"iot-gateway/logging"
	"iot-gateway/mqtt"
	"iot-gateway/relay"
	"iot-gateway/router"
	"iot-gateway/serial"
	"iot-gateway/storage"
)

// broker is the part of mqtt.Session the supervisor drives.
type broker interface {
	Connect() error
	IsConnected() bool
	Publish(topic string, payload []byte) error
	OnMessage(handler mqtt.MessageHandler)
	Close() error
}

// device is the part of serial.Session the supervisor drives.
type device interface {
	router.Exchanger
	Reopen() error
	Available() bool
	Close() error
}

// Gateway owns every component and the reconnect policy.
type Gateway struct {
	cfg    *config.Config
	logger *logrus.Entry

	broker    broker
	serial    device
	store     *storage.SQLiteStore
	telemetry *influx.Sink
	router    *router.Router
	api       *api.Server
	discovery *relay.Discovery

	mu            sync.Mutex
	everConnected bool
}

// New builds the gateway. Only an unopenable database is fatal.
func New(cfg *config.Config, logger *logrus.Logger) (*Gateway, error) {
	g := &Gateway{
		cfg:       cfg,
		logger:    logging.Component(logger, "gateway"),
		discovery: relay.NewDiscovery(relay.NewTopics(cfg.Relay.Namespace)),
	}

	store, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	g.store = store

	sinks := storage.Fanout{store}
	telemetry, err := influx.Connect(cfg.InfluxDB, logging.Component(logger, "influx"))
	switch {
	case errors.Is(err, influx.ErrDisabled):
	case err != nil:
		g.logger.WithError(err).Warn("InfluxDB unavailable, telemetry disabled")
	default:
		g.telemetry = telemetry
		sinks = append(sinks, telemetry)
	}

	resolver := serial.NewResolver(cfg.Serial, logging.Component(logger, "serial"))
	g.serial = serial.NewSession(cfg.Serial, resolver, logging.Component(logger, "serial"))

	mqttCfg := cfg.MQTT
	mqttCfg.PresenceTopic = cfg.PresenceTopic()
	g.broker = mqtt.NewSession(mqttCfg, cfg.InboundTopics(), logging.Component(logger, "mqtt"))

	g.router = router.New(router.Config{
		DebugTopic: cfg.Topics.Debug,
		Topics:     relay.NewTopics(cfg.Relay.Namespace),
	}, sinks, g.serial, g.broker, g, logging.Component(logger, "router"))

	g.broker.OnMessage(g.router.Route)

	if cfg.HTTP.Enabled {
		g.api, err = api.New(api.Config{
			Listen:       cfg.HTTP.Listen,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			PublishTopic: cfg.Topics.Publish,
			Topics:       relay.NewTopics(cfg.Relay.Namespace),
		}, api.Deps{
			Broker:  g.broker,
			Records: store,
			Serial:  g.serial,
			Stats:   g.router.Stats,
			Logger:  logging.Component(logger, "api"),
		})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("creating HTTP API: %w", err)
		}
	}

	return g, nil
}

// Devices returns the relay devices seen since start.
func (g *Gateway) Devices() []relay.Observed {
	return g.discovery.Devices()
}

// Stats returns the router counters.
func (g *Gateway) Stats() router.Stats {
	return g.router.Stats()
}

// ObserveStatus implements router.RelayObserver.
func (g *Gateway) ObserveStatus(status *relay.DeviceStatus) {
	_, known := g.discovery.Lookup(status.DeviceID)
	g.discovery.Observe(*status)

	log := g.logger.WithFields(logrus.Fields{
		"device_id": status.DeviceID,
		"relays":    len(status.Relays),
		"on":        status.OnCount(),
	})
	if !known {
		log.Info("Relay device discovered")
	} else {
		log.Debug("Relay status")
	}

	if g.telemetry != nil {
		g.telemetry.WriteRelayStatus(status)
	}
}

// ObserveControl implements router.RelayObserver.
func (g *Gateway) ObserveControl(deviceID string, cmd *relay.ControlCommand) {
	g.logger.WithFields(logrus.Fields{
		"device_id": deviceID,
		"relay":     cmd.Relay,
		"state":     cmd.State,
	}).Info("Relay control observed")
}
