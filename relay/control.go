package relay

import (
	"fmt"

	"github.com/goccy/go-json"
)

// ControlCommand switches one relay of one device. There is no acknowledgement:
// the effect is confirmed by observing the next status message.
type ControlCommand struct {
	Relay int  `json:"relay"`
	State bool `json:"state"`
}

// EncodeControl returns the topic and payload that switch relay index of deviceID.
func (t Topics) EncodeControl(deviceID string, index int, state bool) (string, []byte, error) {
	if deviceID == "" {
		return "", nil, fmt.Errorf("%w: empty device id", ErrInvalidControl)
	}
	if index < 0 {
		return "", nil, fmt.Errorf("%w: negative relay index %d", ErrInvalidControl, index)
	}

	payload, err := json.Marshal(ControlCommand{Relay: index, State: state})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidControl, err)
	}
	return t.Control(deviceID), payload, nil
}

// DecodeControl validates and decodes a control payload.
func DecodeControl(payload []byte) (*ControlCommand, error) {
	if err := validate(controlSchema, payload); err != nil {
		return nil, err
	}

	var cmd ControlCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &cmd, nil
}
