package mqtt

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectFailed is returned when the broker session could not be established.
	ErrConnectFailed = errors.New("mqtt: connect failed")

	// ErrNotConnected is returned when publishing without a live connection.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrPublishFailed is returned when the transport did not accept a message.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscription was rejected or timed out.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)

// ConnectError carries the broker's CONNACK return code of a failed connect.
// Code is 0 when the failure happened before the broker answered (network, timeout).
type ConnectError struct {
	Code byte
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("mqtt: connect failed (code %d): %v", e.Code, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	return []error{ErrConnectFailed, e.Err}
}
