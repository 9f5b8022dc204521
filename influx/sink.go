package influx

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultBatchSize      = 100
	defaultFlushInterval  = 10 // seconds
)

// Config maps to the influxdb section of config.yaml.
type Config struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	Token         string `mapstructure:"token"`
	Org           string `mapstructure:"org"`
	Bucket        string `mapstructure:"bucket"`
	BatchSize     int    `mapstructure:"batch_size"`
	FlushInterval int    `mapstructure:"flush_interval"` // seconds
}

// pointWriter is the part of the non-blocking write API the sink uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Sink writes numeric sensor readings and relay telemetry as points.
// Writes are batched and never block the caller.
type Sink struct {
	client influxdb2.Client
	writer pointWriter
	logger *logrus.Entry

	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

// Connect creates the client, pings the server and starts the write API.
func Connect(cfg Config, logger *logrus.Entry) (*Sink, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.WithError(err).Warn("InfluxDB write failed")
		}
	}()

	logger.WithFields(logrus.Fields{"url": cfg.URL, "bucket": cfg.Bucket}).Info("Connected to InfluxDB")

	s := newSink(writeAPI, logger)
	s.client = client
	return s, nil
}

func newSink(writer pointWriter, logger *logrus.Entry) *Sink {
	return &Sink{writer: writer, logger: logger, now: time.Now}
}

// Store implements storage.Sink. Messages without numeric fields are skipped.
func (s *Sink) Store(_ context.Context, data any) error {
	if point := SensorPoint(data, s.now()); point != nil {
		s.write(point)
	}
	return nil
}

func (s *Sink) write(points ...*write.Point) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	for _, p := range points {
		s.writer.WritePoint(p)
	}
}

// Flush blocks until buffered points are sent.
func (s *Sink) Flush() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.closed {
		s.writer.Flush()
	}
}

// Close flushes and shuts the client down. Later writes are dropped.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.writer.Flush()
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
