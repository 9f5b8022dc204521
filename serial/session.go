package serial

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"iot-gateway/common"
)

const lineEnding = "\r\n"

// Session owns the serial handle and runs one exchange at a time.
//
// The peripheral protocol has no framing, so a response is whatever arrived
// within the settle delay after the write. This is best effort: a slow
// peripheral can spill its answer into the next exchange.
type Session struct {
	mu       sync.Mutex
	port     Port
	resolver *Resolver
	settle   time.Duration
	logger   *logrus.Entry
}

// NewSession creates a session without an open port. Call Reopen or Attach before exchanging.
func NewSession(config Config, resolver *Resolver, logger *logrus.Entry) *Session {
	return &Session{
		resolver: resolver,
		settle:   config.SettleDelay,
		logger:   logger,
	}
}

// Reopen closes the current handle, if any, and asks the resolver for a new one.
func (s *Session) Reopen() error {
	if s.resolver == nil {
		return ErrDeviceUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()

	port, err := s.resolver.Open()
	if err != nil {
		return err
	}
	s.port = port
	return nil
}

// Attach installs an already opened port, closing the previous one.
func (s *Session) Attach(port Port) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()
	s.port = port
}

// Available reports whether a handle is currently open.
func (s *Session) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

// Close releases the handle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// Exchange writes the command, waits the settle delay and returns everything buffered.
// The whole sequence runs under the session lock.
func (s *Session) Exchange(cmd common.SerialCommand) (common.SerialResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return common.SerialResponse{}, ErrDeviceUnavailable
	}

	if _, err := s.port.Write([]byte(cmd.Text + lineEnding)); err != nil {
		s.dropLocked(err)
		return common.SerialResponse{}, fmt.Errorf("%w: write: %w", ErrDeviceUnavailable, err)
	}
	s.logger.WithField("command", cmd.Text).Debug("Command written")

	time.Sleep(s.settle)

	raw, err := drain(s.port)
	if err != nil {
		s.dropLocked(err)
		return common.SerialResponse{}, fmt.Errorf("%w: read: %w", ErrDeviceUnavailable, err)
	}

	if !utf8.Valid(raw) {
		return common.SerialResponse{}, fmt.Errorf("%w: %q", ErrMalformedResponse, raw)
	}

	return common.SerialResponse{
		Text:       strings.TrimSpace(string(raw)),
		CapturedAt: time.Now(),
	}, nil
}

// dropLocked closes a handle that failed I/O. Re-resolution is left to the caller.
func (s *Session) dropLocked(cause error) {
	s.logger.WithError(cause).Warn("Serial I/O failed, closing port")
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.port != nil {
		s.port.Close()
		s.port = nil
	}
}

// drain reads every byte the driver currently holds.
func drain(port Port) ([]byte, error) {
	var out []byte
	for {
		n, err := port.Buffered()
		if err != nil {
			return out, err
		}
		if n <= 0 {
			return out, nil
		}

		buf := make([]byte, n)
		read, err := port.Read(buf)
		out = append(out, buf[:read]...)
		if err != nil && !errors.Is(err, io.EOF) {
			return out, err
		}
		if read == 0 {
			return out, nil
		}
	}
}
