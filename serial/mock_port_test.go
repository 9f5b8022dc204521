package serial

import (
	"errors"
	"io"
	"strings"
	"sync"
)

// echoPort answers every written line with a fixed reply.
type echoPort struct {
	mu       sync.Mutex
	reply    []byte
	pending  []byte
	writes   []string
	events   *[]string
	writeErr error
	closed   bool
}

func newEchoPort(reply string) *echoPort {
	return &echoPort{reply: []byte(reply)}
}

func (p *echoPort) record(event string) {
	if p.events != nil {
		*p.events = append(*p.events, event)
	}
}

func (p *echoPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeErr != nil {
		return 0, p.writeErr
	}
	cmd := strings.TrimSpace(string(b))
	p.writes = append(p.writes, string(b))
	p.record("write " + cmd)
	p.pending = append(p.pending, p.reply...)
	return len(b), nil
}

func (p *echoPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	p.record("read")
	return n, nil
}

func (p *echoPort) Buffered() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending), nil
}

func (p *echoPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *echoPort) writeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

var errNoDevice = errors.New("no such file or directory")
