package mqtt

import (
	"time"

	"github.com/google/uuid"
)

// Config describes the broker connection.
type Config struct {
	Broker         string        `mapstructure:"broker"`          // e.g. "tcp://localhost:1883"
	Username       string        `mapstructure:"username"`        // optional
	Password       string        `mapstructure:"password"`        // optional
	ClientID       string        `mapstructure:"client_id"`       // generated when empty
	QoS            byte          `mapstructure:"qos"`             // 0, 1 or 2
	KeepAlive      time.Duration `mapstructure:"keep_alive"`      // broker ping interval
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"` // initial connect wait
	PublishTimeout time.Duration `mapstructure:"publish_timeout"` // wait for transport acceptance
	AutoReconnect  bool          `mapstructure:"auto_reconnect"`  // reconnect after an established session drops
	PresenceTopic  string        `mapstructure:"presence_topic"`  // retained online/offline, empty disables
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       GenerateClientID(),
		QoS:            0,
		KeepAlive:      60 * time.Second,
		ConnectTimeout: 10 * time.Second,
		PublishTimeout: 5 * time.Second,
		AutoReconnect:  true,
	}
}

// GenerateClientID returns a unique client ID for this process.
func GenerateClientID() string {
	return "iot-gateway-" + uuid.NewString()[:8]
}
