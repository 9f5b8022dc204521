package relay

import (
	"fmt"
	"sort"

	"github.com/goccy/go-json"
)

// Relay is the state of one output channel.
type Relay struct {
	Index      int   `json:"index"`
	State      bool  `json:"state"`
	LastChange int64 `json:"lastChange,omitempty"` // device millis at last switch
	OnDuration int64 `json:"onDuration,omitempty"` // accumulated on time, ms
	Pin        int   `json:"pin,omitempty"`
}

// DeviceStatus is what a relay device publishes on its status topic.
type DeviceStatus struct {
	DeviceID   string  `json:"deviceId"`
	DeviceType string  `json:"deviceType,omitempty"`
	NumOutputs int     `json:"numOutputs,omitempty"`
	Timestamp  int64   `json:"timestamp,omitempty"` // device uptime, ms
	RSSI       int     `json:"rssi,omitempty"`
	Relays     []Relay `json:"relays"`
}

// DecodeStatus validates and decodes a status payload.
// Relay indices must be unique within one message.
func DecodeStatus(payload []byte) (*DeviceStatus, error) {
	if err := validate(statusSchema, payload); err != nil {
		return nil, err
	}

	var status DeviceStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	seen := make(map[int]struct{}, len(status.Relays))
	for _, r := range status.Relays {
		if _, dup := seen[r.Index]; dup {
			return nil, fmt.Errorf("%w: duplicate relay index %d", ErrDecode, r.Index)
		}
		seen[r.Index] = struct{}{}
	}

	sort.Slice(status.Relays, func(i, j int) bool {
		return status.Relays[i].Index < status.Relays[j].Index
	})

	return &status, nil
}

// DecodeStatusFrom decodes a status received on the status topic of deviceID.
// The topic names the publisher, so a payload claiming another device is rejected.
func DecodeStatusFrom(deviceID string, payload []byte) (*DeviceStatus, error) {
	status, err := DecodeStatus(payload)
	if err != nil {
		return nil, err
	}
	if status.DeviceID != deviceID {
		return nil, fmt.Errorf("%w: deviceId %q published on the topic of %q", ErrDecode, status.DeviceID, deviceID)
	}
	return status, nil
}

// EncodeStatus serializes a status the way the firmware does.
func EncodeStatus(status DeviceStatus) ([]byte, error) {
	return json.Marshal(status)
}

// RelayState returns the state of the relay at index and whether it was reported.
func (s *DeviceStatus) RelayState(index int) (bool, bool) {
	for _, r := range s.Relays {
		if r.Index == index {
			return r.State, true
		}
	}
	return false, false
}

// OnCount returns how many relays are switched on.
func (s *DeviceStatus) OnCount() int {
	n := 0
	for _, r := range s.Relays {
		if r.State {
			n++
		}
	}
	return n
}
