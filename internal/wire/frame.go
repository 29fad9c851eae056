package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoSeparator is returned when a bus frame has no topic/payload separator.
var ErrNoSeparator = errors.New("wire: bus frame has no space separator")

// SplitFrame splits a published bus frame into its topic and payload.
// The first ASCII space separates the two: the topic decodes as ASCII,
// the payload passes through untouched.
func SplitFrame(raw []byte) (topic string, payload []byte, err error) {
	i := bytes.IndexByte(raw, ' ')
	if i < 0 {
		return "", nil, ErrNoSeparator
	}
	return string(raw[:i]), raw[i+1:], nil
}

// JoinFrame produces the wire form of a bus frame, the inverse of
// SplitFrame. Used by publishers in tests and tooling.
func JoinFrame(topic string, payload []byte) []byte {
	frame := make([]byte, 0, len(topic)+1+len(payload))
	frame = append(frame, topic...)
	frame = append(frame, ' ')
	frame = append(frame, payload...)
	return frame
}

// EventRecord is one parsed entry of a module's events channel.
// Fields beyond the common pair are preserved verbatim in Extra.
type EventRecord struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Extra     json.RawMessage `json:"-"`
}

// MarshalJSON re-emits the original event body when it was preserved,
// so replayed history is byte-faithful to what the module published.
func (e EventRecord) MarshalJSON() ([]byte, error) {
	if len(e.Extra) > 0 {
		return e.Extra, nil
	}
	type record EventRecord
	return json.Marshal(record(e))
}

// ParseEvent decodes an events-channel payload as UTF-8 JSON.
func ParseEvent(payload []byte) (EventRecord, error) {
	var rec EventRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return EventRecord{}, fmt.Errorf("parse event: %w", err)
	}
	rec.Extra = append(json.RawMessage(nil), payload...)
	return rec, nil
}
