package influx

import "errors"

var (
	// ErrDisabled is returned by Connect when InfluxDB is turned off in config.
	ErrDisabled = errors.New("influx: disabled in configuration")

	// ErrConnectionFailed is returned when the server cannot be reached or is unhealthy.
	ErrConnectionFailed = errors.New("influx: connection failed")
)
