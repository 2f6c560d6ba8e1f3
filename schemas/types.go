package schemas

import (
	"encoding/json"
	"strings"
)

// EventRecord is one decoded contract event as stored in a recorded events
// file. Amount arguments are decimal or 0x-hex strings, or JSON integers.
type EventRecord struct {
	BlockNumber uint64         `json:"blockNumber"`
	BlockHash   string         `json:"blockHash,omitempty"`
	Timestamp   uint64         `json:"timestamp,omitempty"`
	TxHash      string         `json:"txHash"`
	TxIndex     uint           `json:"txIndex,omitempty"`
	LogIndex    uint           `json:"logIndex"`
	From        string         `json:"from,omitempty"`
	Contract    string         `json:"contract"`
	Event       string         `json:"event"`
	Args        map[string]any `json:"args"`
}

// Validate performs basic validation on the record
func (r EventRecord) Validate() error {
	if r.TxHash == "" {
		return &ValidationError{Field: "txHash", Message: "txHash is required"}
	}
	if !strings.HasPrefix(r.TxHash, "0x") {
		return &ValidationError{Field: "txHash", Message: "txHash must be 0x-prefixed"}
	}
	if r.Contract == "" {
		return &ValidationError{Field: "contract", Message: "contract is required"}
	}
	if r.Event == "" {
		return &ValidationError{Field: "event", Message: "event is required"}
	}
	if r.Args == nil {
		return &ValidationError{Field: "args", Message: "args is required"}
	}
	return nil
}

// ToJSON serializes the record to JSON bytes
func (r EventRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}
