package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"iot-gateway/mqtt"
)

// Run starts the gateway and blocks until ctx is done.
//
// Broker connects are retried every reconnect interval. Once a session has
// been established paho's auto-reconnect takes over, unless it is disabled.
// The serial port is re-resolved on the same ticker while no handle is open.
func (g *Gateway) Run(ctx context.Context) error {
	g.logger.Info("IoT gateway starting")

	if err := g.serial.Reopen(); err != nil {
		g.logger.WithError(err).Warn("No serial device, will retry")
	}
	g.connectBroker()

	if g.api != nil {
		if err := g.api.Start(); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(g.cfg.Reconnect.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.shutdown()
			return nil
		case <-ticker.C:
			if g.needsConnect() {
				g.connectBroker()
			}
			if !g.serial.Available() {
				if err := g.serial.Reopen(); err != nil {
					g.logger.WithError(err).Debug("Serial device still unavailable")
				}
			}
		}
	}
}

func (g *Gateway) needsConnect() bool {
	if g.broker.IsConnected() {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.everConnected || !g.cfg.MQTT.AutoReconnect
}

func (g *Gateway) connectBroker() {
	err := g.broker.Connect()
	if err == nil {
		g.mu.Lock()
		g.everConnected = true
		g.mu.Unlock()
		return
	}

	log := g.logger.WithError(err)
	var connErr *mqtt.ConnectError
	if errors.As(err, &connErr) {
		log = log.WithField("code", connErr.Code)
	}
	log.WithField("retry_in", g.cfg.Reconnect.Interval).Warn("MQTT connect failed")
}

func (g *Gateway) shutdown() {
	g.logger.Info("IoT gateway stopping")

	if g.api != nil {
		if err := g.api.Close(); err != nil {
			g.logger.WithError(err).Warn("HTTP API shutdown")
		}
	}
	if err := g.broker.Close(); err != nil {
		g.logger.WithError(err).Warn("MQTT close")
	}
	if err := g.serial.Close(); err != nil {
		g.logger.WithError(err).Warn("Serial close")
	}
	if g.telemetry != nil {
		g.telemetry.Close()
	}
	if err := g.store.Close(); err != nil {
		g.logger.WithError(err).Warn("Storage close")
	}

	g.logger.WithFields(logrus.Fields{"stats": g.router.Stats()}).Info("IoT gateway stopped")
}
