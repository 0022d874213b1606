package subscriber

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Event is the envelope workers publish on the dashboard topic.
type Event struct {
	ViewID  string          `json:"view_id"`
	Payload json.RawMessage `json:"payload"`
}

var (
	ErrMissingViewID = errors.New("missing view_id")
	ErrNotAnObject   = errors.New("envelope is not a JSON object")
)

// DecodeError reports a broker message that could not be turned into an Event.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding broker message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ConnectionError reports a lost or failed broker subscription.
type ConnectionError struct {
	Attempt int
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("broker connection (attempt %d): %v", e.Attempt, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

var null = json.RawMessage("null")

// DecodeEvent parses a raw broker message. A missing payload decodes as JSON
// null; a missing or empty view_id is an error.
func DecodeEvent(raw []byte) (Event, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, &DecodeError{Err: ErrNotAnObject}
	}

	var ev Event
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return Event{}, &DecodeError{Err: err}
	}
	if ev.ViewID == "" {
		return Event{}, &DecodeError{Err: ErrMissingViewID}
	}
	if len(ev.Payload) == 0 {
		ev.Payload = null
	}
	return ev, nil
}
