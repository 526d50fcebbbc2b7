package types

// Event is the wire form of a ledger state transition as seen by audit sinks
// and stream subscribers.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
