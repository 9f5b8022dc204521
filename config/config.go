package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"iot-gateway/influx"
	"iot-gateway/logging"
	"iot-gateway/mqtt"
	"iot-gateway/relay"
	"iot-gateway/serial"
	"iot-gateway/storage"
)

// EnvPrefix prefixes environment overrides, e.g. GATEWAY_MQTT_BROKER.
const EnvPrefix = "GATEWAY"

// Config is the whole gateway configuration.
type Config struct {
	MQTT      mqtt.Config     `mapstructure:"mqtt"`
	Serial    serial.Config   `mapstructure:"serial"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Topics    TopicsConfig    `mapstructure:"topics"`
	Database  storage.Config  `mapstructure:"database"`
	InfluxDB  influx.Config   `mapstructure:"influxdb"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Logging   logging.Config  `mapstructure:"logging"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
}

// RelayConfig addresses the relay device protocol.
type RelayConfig struct {
	Namespace      string `mapstructure:"namespace"`
	ObserveControl bool   `mapstructure:"observe_control"` // also subscribe to control topics
}

// TopicsConfig names the fixed gateway topics.
type TopicsConfig struct {
	Ingest  string `mapstructure:"ingest"`  // inbound sensor data and debug commands
	Publish string `mapstructure:"publish"` // outbound messages from the web API
	Debug   string `mapstructure:"debug"`   // serial debug responses
}

// HTTPConfig configures the JSON API.
type HTTPConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ReconnectConfig drives broker reconnects and serial re-resolution.
type ReconnectConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads the configuration. With an empty path config.yaml is searched in
// the working directory and /etc/iot-gateway; a missing file then means defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/iot-gateway")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	mqttDefaults := mqtt.DefaultConfig()
	v.SetDefault("mqtt.broker", mqttDefaults.Broker)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.qos", mqttDefaults.QoS)
	v.SetDefault("mqtt.keep_alive", mqttDefaults.KeepAlive)
	v.SetDefault("mqtt.connect_timeout", mqttDefaults.ConnectTimeout)
	v.SetDefault("mqtt.publish_timeout", mqttDefaults.PublishTimeout)
	v.SetDefault("mqtt.auto_reconnect", mqttDefaults.AutoReconnect)
	v.SetDefault("mqtt.presence_topic", "")

	serialDefaults := serial.DefaultConfig()
	v.SetDefault("serial.candidates", serialDefaults.Candidates)
	v.SetDefault("serial.baud_rate", serialDefaults.BaudRate)
	v.SetDefault("serial.read_timeout", serialDefaults.ReadTimeout)
	v.SetDefault("serial.settle_delay", serialDefaults.SettleDelay)

	v.SetDefault("relay.namespace", relay.DefaultNamespace)
	v.SetDefault("relay.observe_control", false)

	v.SetDefault("topics.ingest", "data/pub")
	v.SetDefault("topics.publish", "data/sub")
	v.SetDefault("topics.debug", "data/debug")

	v.SetDefault("database.path", "./data/gateway.db")
	v.SetDefault("database.wal_mode", true)
	v.SetDefault("database.busy_timeout", 5)

	v.SetDefault("influxdb.enabled", false)
	v.SetDefault("influxdb.url", "http://localhost:8086")
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.org", "")
	v.SetDefault("influxdb.bucket", "iot")
	v.SetDefault("influxdb.batch_size", 100)
	v.SetDefault("influxdb.flush_interval", 10)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen", ":5000")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("reconnect.interval", 5*time.Second)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.MQTT.Broker == "" {
		add("mqtt.broker is required")
	}
	if c.MQTT.QoS > 2 {
		add("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.MQTT.ConnectTimeout <= 0 {
		add("mqtt.connect_timeout must be positive")
	}
	if c.MQTT.PublishTimeout <= 0 {
		add("mqtt.publish_timeout must be positive")
	}

	if c.Serial.BaudRate <= 0 {
		add("serial.baud_rate must be positive, got %d", c.Serial.BaudRate)
	}
	if c.Serial.SettleDelay < 0 {
		add("serial.settle_delay cannot be negative")
	}

	if c.Relay.Namespace == "" || strings.ContainsAny(c.Relay.Namespace, "+#/") {
		add("relay.namespace must be a single topic level, got %q", c.Relay.Namespace)
	}

	for key, topic := range map[string]string{
		"topics.ingest":  c.Topics.Ingest,
		"topics.publish": c.Topics.Publish,
		"topics.debug":   c.Topics.Debug,
	} {
		if topic == "" {
			add("%s is required", key)
		}
	}
	if strings.ContainsAny(c.Topics.Publish+c.Topics.Debug, "+#") {
		add("topics.publish and topics.debug cannot contain wildcards")
	}

	if c.Database.Path == "" {
		add("database.path is required")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			add("influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			add("influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		add("http.listen is required when http is enabled")
	}

	if c.Reconnect.Interval <= 0 {
		add("reconnect.interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// InboundTopics returns the broker subscriptions the gateway needs.
func (c *Config) InboundTopics() []string {
	topics := relay.NewTopics(c.Relay.Namespace)
	inbound := []string{c.Topics.Ingest, topics.StatusWildcard()}
	if c.Relay.ObserveControl {
		inbound = append(inbound, topics.ControlWildcard())
	}
	return inbound
}

// PresenceTopic is where the gateway announces itself, unless configured otherwise.
func (c *Config) PresenceTopic() string {
	if c.MQTT.PresenceTopic != "" {
		return c.MQTT.PresenceTopic
	}
	return c.Relay.Namespace + "/gateway/status"
}
