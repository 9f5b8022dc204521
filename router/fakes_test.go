package router

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"iot-gateway/common"
	"iot-gateway/relay"
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Store(ctx context.Context, data any) error {
	args := m.Called(data)
	return args.Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(topic string, payload []byte) error {
	args := m.Called(topic, payload)
	return args.Error(0)
}

type mockExchanger struct {
	mock.Mock
}

func (m *mockExchanger) Exchange(cmd common.SerialCommand) (common.SerialResponse, error) {
	args := m.Called(cmd)
	return args.Get(0).(common.SerialResponse), args.Error(1)
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []*relay.DeviceStatus
	controls map[string]*relay.ControlCommand
}

func (o *recordingObserver) ObserveStatus(status *relay.DeviceStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func (o *recordingObserver) ObserveControl(deviceID string, cmd *relay.ControlCommand) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.controls == nil {
		o.controls = make(map[string]*relay.ControlCommand)
	}
	o.controls[deviceID] = cmd
}

// linePort answers each written line with "OK <line>" and logs every
// write and read so interleaving is visible.
type linePort struct {
	mu      sync.Mutex
	pending []byte
	events  []string
}

func (p *linePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := strings.TrimSpace(string(b))
	p.events = append(p.events, "write "+line)
	p.pending = append(p.pending, []byte("OK "+line+"\r\n")...)
	return len(b), nil
}

func (p *linePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	p.events = append(p.events, "read")
	return n, nil
}

func (p *linePort) Buffered() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending), nil
}

func (p *linePort) Close() error { return nil }

func (p *linePort) history() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

var errDisk = errors.New("disk full")
