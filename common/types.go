package common

import "time"

// Message type markers used on the ingest and debug topics.
const (
	TypeSerialDebug    = "serial_debug"
	TypeSerialResponse = "serial_response"
)

// BrokerMessage is one inbound message as delivered by the broker transport.
type BrokerMessage struct {
	Topic   string
	Payload []byte
}

// SerialCommand is a single line of text for the serial peripheral.
type SerialCommand struct {
	Text string
}

// SerialResponse is whatever the peripheral produced within the settle delay.
// An empty Text is a valid response.
type SerialResponse struct {
	Text       string
	CapturedAt time.Time
}

// DebugExchange pairs a command with its response. It lives only until it has been published.
type DebugExchange struct {
	Command   SerialCommand
	Response  SerialResponse
	Timestamp time.Time
}

// DebugCommand is the inbound shape that triggers a serial exchange.
type DebugCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

// DebugResponse is published on the debug response topic after an exchange.
type DebugResponse struct {
	Type      string `json:"type"`
	Command   string `json:"command"`
	Response  string `json:"response"`
	Timestamp int64  `json:"timestamp"` // Unix seconds
}

// NewDebugResponse builds the outbound payload for an exchange.
func NewDebugResponse(ex DebugExchange) DebugResponse {
	return DebugResponse{
		Type:      TypeSerialResponse,
		Command:   ex.Command.Text,
		Response:  ex.Response.Text,
		Timestamp: ex.Timestamp.Unix(),
	}
}

// Record is a stored inbound message as returned by the read API.
type Record struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
