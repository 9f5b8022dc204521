package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"iot-gateway/config"
	"iot-gateway/gateway"
	"iot-gateway/logging"
)

func main() {
	configPath := flag.StringP("config", "c", "", "path to config.yaml (default: ./config.yaml or /etc/iot-gateway/config.yaml)")
	logLevel := flag.String("log-level", "", "override logging.level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := logging.New(cfg.Logging)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to start gateway")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithField("broker", cfg.MQTT.Broker).Info("IoT gateway started. Press Ctrl+C to stop.")
	if err := gw.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Gateway stopped with error")
	}
}
