/*
Package message defines the chat message exchanged between clients once they are authenticated.

A Message is an immutable value: it is created when a client submits a well-formed payload,
then shared read-only by the history log and every bus subscription.
*/
package message

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Message is a single accepted chat message.
type Message struct {
	// Sender identifies the author. It is producer-supplied and not checked
	// against the authenticated username of the connection.
	Sender string `json:"sender"`

	// Content is the message text.
	Content string `json:"content"`

	// Timestamp is an epoch-like value supplied by the producer.
	Timestamp int64 `json:"timestamp"`
}

// wireMessage mirrors Message with pointer fields so that missing keys can be told
// apart from zero values during decoding.
type wireMessage struct {
	Sender    *string `json:"sender" validate:"required"`
	Content   *string `json:"content" validate:"required"`
	Timestamp *int64  `json:"timestamp" validate:"required"`
}

// Parse decodes a raw client payload into a Message.
// Every field must be present with the expected JSON type. Unknown fields are ignored.
func Parse(raw []byte) (Message, error) {
	var wm wireMessage
	if err := json.Unmarshal(raw, &wm); err != nil {
		return Message{}, fmt.Errorf("invalid message json: %w", err)
	}

	if err := validate.Struct(wm); err != nil {
		return Message{}, fmt.Errorf("incomplete message: %w", err)
	}

	return Message{
		Sender:    *wm.Sender,
		Content:   *wm.Content,
		Timestamp: *wm.Timestamp,
	}, nil
}

// Encode returns the JSON encoding sent to clients.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
