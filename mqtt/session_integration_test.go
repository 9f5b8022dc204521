//go:build integration

package mqtt

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/DrmagicE/gmqtt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-gateway/common"
	"iot-gateway/logging"
)

// startBroker runs an in-process broker on a random local port.
func startBroker(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := gmqtt.NewServer(gmqtt.WithTCPListener(ln))
	srv.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	return "tcp://" + ln.Addr().String()
}

func TestSessionRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Broker = startBroker(t)
	cfg.ConnectTimeout = 5 * time.Second
	cfg.PublishTimeout = 5 * time.Second

	received := make(chan common.BrokerMessage, 1)
	s := NewSession(cfg, []string{"data/pub"}, logging.Discard())
	s.OnMessage(func(msg common.BrokerMessage) error {
		received <- msg
		return nil
	})

	require.NoError(t, s.Connect())
	t.Cleanup(func() { _ = s.Close() })

	// subscriptions are issued from the on-connect callback
	require.Eventually(t, func() bool {
		_ = s.Publish("data/pub", []byte(`{"temperature":21.5}`))
		select {
		case msg := <-received:
			assert.Equal(t, "data/pub", msg.Topic)
			assert.JSONEq(t, `{"temperature":21.5}`, string(msg.Payload))
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
}

func TestConnectUnreachableBroker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Broker = "tcp://127.0.0.1:1"
	cfg.ConnectTimeout = 2 * time.Second

	err := NewSession(cfg, nil, logging.Discard()).Connect()
	assert.ErrorIs(t, err, ErrConnectFailed)
}
