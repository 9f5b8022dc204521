package gateway

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-gateway/common"
	"iot-gateway/config"
	"iot-gateway/logging"
	"iot-gateway/mqtt"
	"iot-gateway/serial"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Database.Path = filepath.Join(t.TempDir(), "gateway.db")
	cfg.HTTP.Enabled = false
	cfg.Reconnect.Interval = 10 * time.Millisecond
	cfg.Serial.Candidates = []string{filepath.Join(t.TempDir(), "ttyUSB0")}
	return cfg
}

func testLogger() *logrus.Logger {
	return logging.Discard().Logger
}

type fakeBroker struct {
	mu        sync.Mutex
	failures  int
	connects  int
	connected bool
	closed    bool
}

func (b *fakeBroker) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects++
	if b.connects <= b.failures {
		return &mqtt.ConnectError{Code: 5, Err: assert.AnError}
	}
	b.connected = true
	return nil
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Publish(string, []byte) error  { return nil }
func (b *fakeBroker) OnMessage(mqtt.MessageHandler) {}

func (b *fakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBroker) drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

func (b *fakeBroker) attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

func (b *fakeBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type fakeDevice struct {
	mu      sync.Mutex
	reopens int
	openAt  int
	closed  bool
}

func (d *fakeDevice) Exchange(common.SerialCommand) (common.SerialResponse, error) {
	return common.SerialResponse{}, serial.ErrDeviceUnavailable
}

func (d *fakeDevice) Reopen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reopens++
	if d.reopens < d.openAt {
		return serial.ErrDeviceUnavailable
	}
	return nil
}

func (d *fakeDevice) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reopens >= d.openAt
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reopens
}

func runGateway(t *testing.T, g *Gateway) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()
	return cancel, done
}

func TestRunRetriesBrokerConnect(t *testing.T) {
	g, err := New(testConfig(t), testLogger())
	require.NoError(t, err)

	b := &fakeBroker{failures: 3}
	d := &fakeDevice{}
	g.broker, g.serial = b, d

	cancel, done := runGateway(t, g)

	require.Eventually(t, b.IsConnected, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 4, b.attempts())

	cancel()
	require.NoError(t, <-done)
	assert.True(t, b.isClosed())
}

func TestRunLeavesReconnectToPaho(t *testing.T) {
	g, err := New(testConfig(t), testLogger())
	require.NoError(t, err)

	b := &fakeBroker{}
	g.broker, g.serial = b, &fakeDevice{}

	cancel, done := runGateway(t, g)
	require.Eventually(t, b.IsConnected, time.Second, 5*time.Millisecond)

	b.drop()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, b.attempts())

	cancel()
	<-done
}

func TestRunReconnectsWithoutAutoReconnect(t *testing.T) {
	cfg := testConfig(t)
	cfg.MQTT.AutoReconnect = false
	g, err := New(cfg, testLogger())
	require.NoError(t, err)

	b := &fakeBroker{}
	g.broker, g.serial = b, &fakeDevice{}

	cancel, done := runGateway(t, g)
	require.Eventually(t, b.IsConnected, time.Second, 5*time.Millisecond)

	b.drop()
	require.Eventually(t, func() bool { return b.attempts() >= 2 && b.IsConnected() }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRunReresolvesSerial(t *testing.T) {
	g, err := New(testConfig(t), testLogger())
	require.NoError(t, err)

	d := &fakeDevice{openAt: 3}
	g.broker, g.serial = &fakeBroker{}, d

	cancel, done := runGateway(t, g)

	require.Eventually(t, d.Available, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, d.attempts(), "no reopen once a handle is held")

	cancel()
	<-done
	d.mu.Lock()
	assert.True(t, d.closed)
	d.mu.Unlock()
}

func TestNewFailsOnUnopenableDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = "/dev/null/gateway.db"

	_, err := New(cfg, testLogger())
	assert.Error(t, err)
}

func TestRoutingWiring(t *testing.T) {
	g, err := New(testConfig(t), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { g.store.Close() })

	status := `{"deviceId":"AA:BB:CC","deviceType":"SmartRelay","numOutputs":2,"rssi":-55,"relays":[{"index":0,"state":true},{"index":1,"state":false}]}`
	require.NoError(t, g.router.Route(common.BrokerMessage{Topic: "mySmartHome/relay/AA:BB:CC/status", Payload: []byte(status)}))
	require.NoError(t, g.router.Route(common.BrokerMessage{Topic: "data/pub", Payload: []byte(`{"type":"serial_debug","command":"AT+INFO"}`)}))

	devices := g.Devices()
	require.Len(t, devices, 1)
	assert.Equal(t, "AA:BB:CC", devices[0].Status.DeviceID)
	assert.Equal(t, -55, devices[0].Status.RSSI)

	records, err := g.store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	stats := g.Stats()
	assert.Equal(t, uint64(2), stats.Routed)
	assert.Equal(t, uint64(1), stats.RelayStatus)
	assert.Equal(t, uint64(1), stats.DebugFailed)
}
