package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	mqttLib "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"iot-gateway/common"
)

// maxPayloadSize keeps a single publish within typical broker limits.
const maxPayloadSize = 1 << 20

// disconnectQuiesce is how long Close waits for in-flight work, in ms.
const disconnectQuiesce = 250

// MessageHandler receives every inbound message. A returned error is logged and dropped.
type MessageHandler func(msg common.BrokerMessage) error

// ClientFactory creates the underlying paho client. Tests replace it with a mock.
type ClientFactory func(opts *mqttLib.ClientOptions) mqttLib.Client

// Session is the gateway's single long-lived broker connection.
//
// The inbound topic set is subscribed in the on-connect callback, so it is
// restored after every reconnect. Publish is safe to call while messages are
// being received.
type Session struct {
	config    Config
	newClient ClientFactory
	logger    *logrus.Entry

	mu      sync.RWMutex
	client  mqttLib.Client
	topics  []string
	handler MessageHandler
}

// NewSession creates a session that will subscribe to topics once connected.
func NewSession(config Config, topics []string, logger *logrus.Entry) *Session {
	if config.ClientID == "" {
		config.ClientID = GenerateClientID()
	}
	return &Session{
		config:    config,
		newClient: mqttLib.NewClient,
		logger:    logger,
		topics:    append([]string(nil), topics...),
	}
}

// WithClientFactory replaces the paho client constructor.
func (s *Session) WithClientFactory(factory ClientFactory) *Session {
	s.newClient = factory
	return s
}

// OnMessage sets the handler for inbound messages.
func (s *Session) OnMessage(handler MessageHandler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// Topics returns the inbound topic set.
func (s *Session) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.topics...)
}

// Connect dials the broker once. On failure it returns a *ConnectError and
// leaves retrying to the caller.
func (s *Session) Connect() error {
	opts := s.buildOptions()
	client := s.newClient(opts)

	s.logger.WithField("broker", s.config.Broker).Info("Connecting to MQTT broker")

	// a failed client is discarded so its connect goroutine stops
	token := client.Connect()
	if !token.WaitTimeout(s.config.ConnectTimeout) {
		client.Disconnect(0)
		return &ConnectError{Err: fmt.Errorf("timeout after %v", s.config.ConnectTimeout)}
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return &ConnectError{Code: returnCode(token, err), Err: err}
	}

	s.mu.Lock()
	old := s.client
	s.client = client
	s.mu.Unlock()

	if old != nil && old != client {
		old.Disconnect(0)
	}

	return nil
}

func (s *Session) buildOptions() *mqttLib.ClientOptions {
	opts := mqttLib.NewClientOptions()
	opts.AddBroker(s.config.Broker)
	opts.SetClientID(s.config.ClientID)
	opts.SetKeepAlive(s.config.KeepAlive)
	opts.SetConnectTimeout(s.config.ConnectTimeout)
	opts.SetAutoReconnect(s.config.AutoReconnect)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(true)

	// handlers run on their own goroutines so a serial exchange never stalls receipt
	opts.SetOrderMatters(false)

	if s.config.Username != "" {
		opts.SetUsername(s.config.Username)
		opts.SetPassword(s.config.Password)
	}

	if s.config.PresenceTopic != "" {
		opts.SetWill(s.config.PresenceTopic, string(s.presencePayload("offline", "unexpected_disconnect")), 1, true)
	}

	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqttLib.Client, err error) {
		s.logger.WithError(err).Warn("MQTT connection lost")
	})
	opts.SetReconnectingHandler(func(_ mqttLib.Client, _ *mqttLib.ClientOptions) {
		s.logger.Info("Reconnecting to MQTT broker")
	})

	return opts
}

// onConnect (re)subscribes the inbound topic set and announces presence.
func (s *Session) onConnect(client mqttLib.Client) {
	s.logger.Info("Connected to MQTT broker")

	filters := make(map[string]byte)
	for _, topic := range s.Topics() {
		filters[topic] = s.config.QoS
	}

	if len(filters) > 0 {
		token := client.SubscribeMultiple(filters, s.dispatch)
		if !token.WaitTimeout(s.config.PublishTimeout) {
			s.logger.WithField("topics", s.Topics()).Error("Subscribe timed out")
		} else if err := token.Error(); err != nil {
			s.logger.WithError(err).WithField("topics", s.Topics()).Error("Subscribe failed")
		} else {
			s.logger.WithField("topics", s.Topics()).Info("Subscribed to inbound topics")
		}
	}

	if s.config.PresenceTopic != "" {
		client.Publish(s.config.PresenceTopic, 1, true, s.presencePayload("online", ""))
	}
}

// dispatch hands a paho message to the handler, recovering from panics.
func (s *Session) dispatch(_ mqttLib.Client, msg mqttLib.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{"topic": msg.Topic(), "panic": r}).Error("Message handler panicked")
		}
	}()

	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()

	if handler == nil {
		s.logger.WithField("topic", msg.Topic()).Debug("No handler, message dropped")
		return
	}

	if err := handler(common.BrokerMessage{Topic: msg.Topic(), Payload: msg.Payload()}); err != nil {
		s.logger.WithError(err).WithField("topic", msg.Topic()).Debug("Message dropped")
	}
}

// Subscribe adds a topic to the inbound set and subscribes now if connected.
func (s *Session) Subscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	s.mu.Lock()
	s.topics = append(s.topics, topic)
	client := s.client
	s.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return nil
	}

	token := client.Subscribe(topic, s.config.QoS, s.dispatch)
	if !token.WaitTimeout(s.config.PublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrSubscribeFailed, topic, s.config.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// Publish sends payload to topic. Success means the transport accepted the
// message, not that any subscriber received it.
func (s *Session) Publish(topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}

	token := client.Publish(topic, s.config.QoS, false, payload)
	if !token.WaitTimeout(s.config.PublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, s.config.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}

	s.logger.WithFields(logrus.Fields{"topic": topic, "bytes": len(payload)}).Debug("Published")
	return nil
}

// PublishJSON marshals v and publishes it.
func (s *Session) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", ErrPublishFailed, err)
	}
	return s.Publish(topic, payload)
}

// IsConnected reports whether the transport is currently connected.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil && s.client.IsConnected()
}

// Close announces a graceful shutdown and disconnects.
func (s *Session) Close() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}

	if client.IsConnected() && s.config.PresenceTopic != "" {
		token := client.Publish(s.config.PresenceTopic, 1, true, s.presencePayload("offline", "graceful_shutdown"))
		token.WaitTimeout(s.config.PublishTimeout)
	}

	client.Disconnect(disconnectQuiesce)
	s.logger.Info("MQTT session closed")
	return nil
}

func (s *Session) presencePayload(status, reason string) []byte {
	payload, _ := json.Marshal(struct {
		Status    string `json:"status"`
		ClientID  string `json:"client_id"`
		Reason    string `json:"reason,omitempty"`
		Timestamp int64  `json:"timestamp"`
	}{status, s.config.ClientID, reason, time.Now().Unix()})
	return payload
}

// returnCode recovers the CONNACK code from a failed connect.
func returnCode(token mqttLib.Token, err error) byte {
	if ct, ok := token.(*mqttLib.ConnectToken); ok && ct.ReturnCode() != packets.Accepted {
		return ct.ReturnCode()
	}
	for code, known := range packets.ConnErrors {
		if known != nil && errors.Is(err, known) {
			return code
		}
	}
	return 0
}
