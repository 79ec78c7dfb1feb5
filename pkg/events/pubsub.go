package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metadata carries the delivery attributes of one push message.
type Metadata struct {
	MessageID   string            `json:"message_id"`
	PublishTime time.Time         `json:"publish_time"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// pushEnvelope is the wire shape of a push delivery. Data is base64 on
// the wire; encoding/json decodes it into raw bytes.
type pushEnvelope struct {
	Message struct {
		Data        []byte            `json:"data"`
		MessageID   string            `json:"messageId"`
		PublishTime time.Time         `json:"publishTime"`
		Attributes  map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// ParsePush decodes a push envelope and validates the payload inside it.
func ParsePush(body []byte) (*Payload, Metadata, error) {
	if len(body) == 0 {
		return nil, Metadata{}, fmt.Errorf("empty request payload")
	}

	var envelope pushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, Metadata{}, fmt.Errorf("invalid push envelope: %w", err)
	}
	if len(envelope.Message.Data) == 0 {
		return nil, Metadata{}, fmt.Errorf("invalid push envelope: missing message data")
	}

	var payload Payload
	if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
		return nil, Metadata{}, fmt.Errorf("invalid message data: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return nil, Metadata{}, err
	}

	meta := Metadata{
		MessageID:   envelope.Message.MessageID,
		PublishTime: envelope.Message.PublishTime,
		Attributes:  envelope.Message.Attributes,
	}
	return &payload, meta, nil
}
