package relay

import (
	"sort"
	"sync"
	"time"

	"iot-gateway/common"
)

// Discovery accumulates device statuses seen during an observation window.
//
// The protocol has no "who is there" query; a device is discovered when its
// periodic status arrives. Devices that stay silent for the whole window are missed.
type Discovery struct {
	topics  Topics
	mu      sync.RWMutex
	devices map[string]Observed
}

// Observed is the latest status of a device and when it arrived.
type Observed struct {
	Status   DeviceStatus
	LastSeen time.Time
}

// NewDiscovery creates an empty accumulator for the given topics.
func NewDiscovery(topics Topics) *Discovery {
	return &Discovery{
		topics:  topics,
		devices: make(map[string]Observed),
	}
}

// Observe records a status, replacing any earlier one of the same device.
func (d *Discovery) Observe(status DeviceStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices[status.DeviceID] = Observed{Status: status, LastSeen: time.Now()}
}

// Handle decodes a broker message from a status topic and observes it.
// Messages on other topics are ignored.
func (d *Discovery) Handle(msg common.BrokerMessage) (*DeviceStatus, error) {
	deviceID, ok := d.topics.ParseStatus(msg.Topic)
	if !ok {
		return nil, nil
	}

	status, err := DecodeStatusFrom(deviceID, msg.Payload)
	if err != nil {
		return nil, err
	}
	d.Observe(*status)
	return status, nil
}

// Lookup returns the latest observation of a device.
func (d *Discovery) Lookup(deviceID string) (Observed, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.devices[deviceID]
	return o, ok
}

// Devices returns every observed device ordered by ID.
func (d *Discovery) Devices() []Observed {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Observed, 0, len(d.devices))
	for _, o := range d.devices {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Status.DeviceID < out[j].Status.DeviceID
	})
	return out
}

// Len returns the number of distinct devices observed.
func (d *Discovery) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.devices)
}
