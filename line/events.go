package line

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	EventTypeMessage  = "message"
	EventTypeFollow   = "follow"
	EventTypeUnfollow = "unfollow"

	MessageTypeText = "text"
)

// WebhookRequest is the JSON body of one webhook delivery.
type WebhookRequest struct {
	Destination string  `json:"destination,omitempty"`
	Events      []Event `json:"events"`
}

// Source identifies where an event originated. At most one of GroupID/RoomID
// is set; UserID is present for events sent by an individual.
type Source struct {
	Type    string `json:"type,omitempty"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// EventMessage carries the message payload of a message event.
type EventMessage struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

// Event is one webhook event, decoded at the boundary into a fixed shape so
// no untyped payload travels further in.
type Event struct {
	Type       string        `json:"type"`
	Timestamp  int64         `json:"timestamp,omitempty"`
	ReplyToken string        `json:"replyToken,omitempty"`
	Source     Source        `json:"source"`
	Message    *EventMessage `json:"message,omitempty"`
}

// DecodeWebhookRequest parses a raw webhook body. Bodies that are not a JSON
// object with an events array are rejected.
func DecodeWebhookRequest(body []byte) (WebhookRequest, error) {
	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return WebhookRequest{}, fmt.Errorf("decode webhook body: %w", err)
	}
	return req, nil
}

// IsText reports whether the event is a text message event.
func (e Event) IsText() bool {
	return e.Type == EventTypeMessage && e.Message != nil && e.Message.Type == MessageTypeText
}

// RawJSON returns the serialized snapshot of the event for persistence.
func (e Event) RawJSON() string {
	b, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(b)
}

// Validate reports decoding-level problems for known event types.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Type) == "" {
		return fmt.Errorf("event type is required")
	}
	if e.Type == EventTypeMessage && e.Message == nil {
		return fmt.Errorf("message event without message payload")
	}
	return nil
}
