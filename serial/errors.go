package serial

import "errors"

var (
	// ErrDeviceUnavailable is returned when no serial handle is open.
	ErrDeviceUnavailable = errors.New("serial: device unavailable")

	// ErrMalformedResponse is returned when the peripheral answered with bytes that are not text.
	ErrMalformedResponse = errors.New("serial: response is not valid text")
)
