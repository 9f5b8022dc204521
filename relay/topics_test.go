package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopics(t *testing.T) {
	topics := NewTopics("")

	assert.Equal(t, "mySmartHome/relay/A1B2C3/status", topics.Status("A1B2C3"))
	assert.Equal(t, "mySmartHome/relay/A1B2C3/control", topics.Control("A1B2C3"))
	assert.Equal(t, "mySmartHome/relay/+/status", topics.StatusWildcard())
	assert.Equal(t, "mySmartHome/relay/+/control", topics.ControlWildcard())
}

func TestParseTopics(t *testing.T) {
	topics := NewTopics("home")

	tests := []struct {
		topic       string
		wantStatus  string
		wantControl string
	}{
		{"home/relay/AABBCC/status", "AABBCC", ""},
		{"home/relay/AABBCC/control", "", "AABBCC"},
		{"home/relay/AABBCC", "", ""},
		{"home/relay//status", "", ""},
		{"home/relay/+/status", "", ""},
		{"home/relay/AABBCC/status/extra", "", ""},
		{"other/relay/AABBCC/status", "", ""},
		{"data/pub", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, ok := topics.ParseStatus(tt.topic)
			assert.Equal(t, tt.wantStatus != "", ok)
			assert.Equal(t, tt.wantStatus, id)

			id, ok = topics.ParseControl(tt.topic)
			assert.Equal(t, tt.wantControl != "", ok)
			assert.Equal(t, tt.wantControl, id)
		})
	}
}
