package webhooks

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload is returned for an authenticated body that is not a usable event.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// Event is a verified provider event. Object holds data.object undecoded.
type Event struct {
	ID       string
	Type     string
	Created  int64
	Livemode bool
	Object   json.RawMessage
	Raw      []byte
}

type eventEnvelope struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Created  int64  `json:"created"`
	Livemode bool   `json:"livemode"`
	Data     struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func ParseEvent(raw []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrMalformedPayload)
	}

	return &Event{
		ID:       env.ID,
		Type:     env.Type,
		Created:  env.Created,
		Livemode: env.Livemode,
		Object:   env.Data.Object,
		Raw:      raw,
	}, nil
}

// DecodeObject unmarshals data.object into v.
func (e *Event) DecodeObject(v interface{}) error {
	if len(e.Object) == 0 || string(e.Object) == "null" {
		return fmt.Errorf("event %s has no data.object", e.ID)
	}
	return json.Unmarshal(e.Object, v)
}
