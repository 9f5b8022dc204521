package serial

import (
	"runtime"
	"time"
)

// Config describes how the serial peripheral is located and talked to.
type Config struct {
	Candidates  []string      `mapstructure:"candidates"`   // Device paths tried in order
	BaudRate    int           `mapstructure:"baud_rate"`    // Line speed, 8N1 is fixed
	ReadTimeout time.Duration `mapstructure:"read_timeout"` // Per-read timeout of the open port
	SettleDelay time.Duration `mapstructure:"settle_delay"` // Wait between write and read
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Candidates:  DefaultCandidates(),
		BaudRate:    115200,
		ReadTimeout: time.Second,
		SettleDelay: 100 * time.Millisecond,
	}
}

// DefaultCandidates lists the usual device paths of USB serial adapters on this platform.
func DefaultCandidates() []string {
	switch runtime.GOOS {
	case "linux":
		return []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyACM0", "/dev/ttyACM1", "/dev/ttyAMA0", "/dev/serial0"}
	case "darwin":
		return []string{"/dev/tty.usbserial", "/dev/tty.usbmodem", "/dev/tty.SLAB_USBtoUART"}
	default:
		return []string{"COM3", "COM4", "COM5", "COM6"}
	}
}
