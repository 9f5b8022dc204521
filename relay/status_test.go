package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStatus(t *testing.T) {
	payload := []byte(`{
		"deviceId": "A1B2C3D4E5F6",
		"deviceType": "SmartRelay",
		"numOutputs": 4,
		"timestamp": 123456,
		"rssi": -61,
		"relays": [
			{"index": 1, "state": false, "lastChange": 0, "onDuration": 0, "pin": 4},
			{"index": 0, "state": true, "lastChange": 1200, "onDuration": 5000, "pin": 5}
		]
	}`)

	status, err := DecodeStatus(payload)
	require.NoError(t, err)

	assert.Equal(t, "A1B2C3D4E5F6", status.DeviceID)
	assert.Equal(t, "SmartRelay", status.DeviceType)
	assert.Equal(t, 4, status.NumOutputs)
	assert.Equal(t, -61, status.RSSI)
	require.Len(t, status.Relays, 2)
	assert.Equal(t, 0, status.Relays[0].Index, "relays are ordered by index")
	assert.Equal(t, int64(5000), status.Relays[0].OnDuration)
	assert.Equal(t, 1, status.OnCount())

	on, ok := status.RelayState(0)
	assert.True(t, ok)
	assert.True(t, on)

	_, ok = status.RelayState(3)
	assert.False(t, ok)
}

func TestDecodeStatusErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"missing relays", `{"deviceId":"AABBCC","deviceType":"SmartRelay","numOutputs":4}`},
		{"missing device id", `{"relays":[]}`},
		{"empty device id", `{"deviceId":"","relays":[]}`},
		{"negative index", `{"deviceId":"AABBCC","relays":[{"index":-1,"state":true}]}`},
		{"string state", `{"deviceId":"AABBCC","relays":[{"index":0,"state":"on"}]}`},
		{"fractional index", `{"deviceId":"AABBCC","relays":[{"index":1.5,"state":true}]}`},
		{"duplicate index", `{"deviceId":"AABBCC","relays":[{"index":2,"state":true},{"index":2,"state":false}]}`},
		{"not an object", `[1,2,3]`},
		{"not json", `SmartRelay online - AABBCC`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := DecodeStatus([]byte(tt.payload))
			assert.Nil(t, status)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestDecodeStatusFrom(t *testing.T) {
	payload := []byte(`{"deviceId":"AA:BB:CC","relays":[{"index":0,"state":true}]}`)

	status, err := DecodeStatusFrom("AA:BB:CC", payload)
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC", status.DeviceID)

	_, err = DecodeStatusFrom("DD:EE:FF", payload)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = DecodeStatusFrom("AA:BB:CC", []byte(`{"deviceId":"AA:BB:CC"}`))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestControlStatusRoundTrip(t *testing.T) {
	topics := NewTopics("")

	topic, payload, err := topics.EncodeControl("AA:BB:CC", 2, true)
	require.NoError(t, err)
	assert.Equal(t, "mySmartHome/relay/AA:BB:CC/control", topic)
	assert.JSONEq(t, `{"relay":2,"state":true}`, string(payload))

	cmd, err := DecodeControl(payload)
	require.NoError(t, err)

	raw, err := EncodeStatus(DeviceStatus{
		DeviceID: "AA:BB:CC",
		Relays:   []Relay{{Index: cmd.Relay, State: cmd.State}},
	})
	require.NoError(t, err)

	status, err := DecodeStatus(raw)
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC", status.DeviceID)

	on, ok := status.RelayState(2)
	assert.True(t, ok)
	assert.True(t, on)
}

func TestEncodeControlInvalid(t *testing.T) {
	topics := NewTopics("")

	_, _, err := topics.EncodeControl("", 0, true)
	assert.ErrorIs(t, err, ErrInvalidControl)

	_, _, err = topics.EncodeControl("AABBCC", -1, true)
	assert.ErrorIs(t, err, ErrInvalidControl)
}

func TestDecodeControlErrors(t *testing.T) {
	for _, payload := range []string{`{"relay":1}`, `{"state":true}`, `{"relay":"1","state":true}`, `nope`} {
		_, err := DecodeControl([]byte(payload))
		assert.ErrorIs(t, err, ErrDecode, payload)
	}
}
