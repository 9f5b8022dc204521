package relay

import (
	"fmt"
	"strings"
)

// DefaultNamespace is the topic root used by the relay firmware.
const DefaultNamespace = "mySmartHome"

const (
	segmentRelay   = "relay"
	channelStatus  = "status"
	channelControl = "control"
)

// Topics builds and parses relay topics under a namespace.
//
//	<namespace>/relay/<deviceId>/status
//	<namespace>/relay/<deviceId>/control
//
// The device ID lives in the topic so subscribers can filter per device on the broker.
type Topics struct {
	Namespace string
}

// NewTopics returns topics for namespace, falling back to DefaultNamespace.
func NewTopics(namespace string) Topics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return Topics{Namespace: namespace}
}

// Status returns the status topic of one device.
func (t Topics) Status(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.Namespace, segmentRelay, deviceID, channelStatus)
}

// Control returns the control topic of one device.
func (t Topics) Control(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.Namespace, segmentRelay, deviceID, channelControl)
}

// StatusWildcard matches the status topic of every device.
func (t Topics) StatusWildcard() string {
	return t.Status("+")
}

// ControlWildcard matches the control topic of every device.
func (t Topics) ControlWildcard() string {
	return t.Control("+")
}

// ParseStatus extracts the device ID from a status topic.
func (t Topics) ParseStatus(topic string) (string, bool) {
	return t.parse(topic, channelStatus)
}

// ParseControl extracts the device ID from a control topic.
func (t Topics) ParseControl(topic string) (string, bool) {
	return t.parse(topic, channelControl)
}

func (t Topics) parse(topic, channel string) (string, bool) {
	prefix := t.Namespace + "/" + segmentRelay + "/"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}

	parts := strings.Split(strings.TrimPrefix(topic, prefix), "/")
	if len(parts) != 2 || parts[1] != channel {
		return "", false
	}
	if parts[0] == "" || parts[0] == "+" || parts[0] == "#" {
		return "", false
	}
	return parts[0], true
}
