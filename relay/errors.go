package relay

import "errors"

var (
	// ErrDecode is returned when a payload does not have the relay status or control shape.
	ErrDecode = errors.New("relay: payload does not match expected shape")

	// ErrInvalidControl is returned when a control command cannot be addressed or encoded.
	ErrInvalidControl = errors.New("relay: invalid control command")
)
