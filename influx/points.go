package influx

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"iot-gateway/relay"
)

const (
	measurementSensor = "sensor_data"
	measurementRelay  = "relay_state"
	measurementDevice = "relay_device"
)

// SensorPoint turns the numeric and boolean top-level fields of a JSON object
// into a point. A "deviceId" or "device_id" string becomes the device_id tag.
// It returns nil when there is nothing to record.
func SensorPoint(data any, ts time.Time) *write.Point {
	obj, ok := data.(map[string]any)
	if !ok {
		return nil
	}

	tags := make(map[string]string)
	fields := make(map[string]any)
	for key, value := range obj {
		switch v := value.(type) {
		case float64, bool:
			fields[key] = v
		case json.Number:
			if field, ok := numberField(v); ok {
				fields[key] = field
			}
		case string:
			if key == "deviceId" || key == "device_id" {
				tags["device_id"] = v
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}

	return write.NewPoint(measurementSensor, tags, fields, ts)
}

// maxExactFloat is the largest integer magnitude a float64 holds exactly.
const maxExactFloat = 1 << 53

// numberField keeps numbers as floats so a field's type does not change between
// writes. Integers a float cannot hold exactly become int64 or uint64.
func numberField(n json.Number) (any, bool) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		if i > maxExactFloat || i < -maxExactFloat {
			return i, true
		}
		return float64(i), true
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return u, true
	}
	f, err := n.Float64()
	if err != nil {
		return nil, false
	}
	return f, true
}

// RelayPoints returns one point per relay channel plus a device summary.
func RelayPoints(status *relay.DeviceStatus, ts time.Time) []*write.Point {
	points := make([]*write.Point, 0, len(status.Relays)+1)

	for _, r := range status.Relays {
		fields := map[string]any{"state": r.State}
		if r.OnDuration > 0 {
			fields["on_duration_ms"] = r.OnDuration
		}
		points = append(points, write.NewPoint(measurementRelay,
			map[string]string{
				"device_id": status.DeviceID,
				"relay":     strconv.Itoa(r.Index),
			},
			fields, ts))
	}

	device := map[string]any{"on_count": int64(status.OnCount())}
	if status.RSSI != 0 {
		device["rssi"] = int64(status.RSSI)
	}
	tags := map[string]string{"device_id": status.DeviceID}
	if status.DeviceType != "" {
		tags["device_type"] = status.DeviceType
	}
	points = append(points, write.NewPoint(measurementDevice, tags, device, ts))

	return points
}

// WriteRelayStatus records a decoded relay status.
func (s *Sink) WriteRelayStatus(status *relay.DeviceStatus) {
	s.write(RelayPoints(status, s.now())...)
}
