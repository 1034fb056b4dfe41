package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MessageVersion is the payload version this build writes and understands.
const MessageVersion = 1

// ErrInvalidMessage marks a payload that no worker can ever act on.
var ErrInvalidMessage = errors.New("invalid processing message")

// Message asks a worker to run the processing attempt it names.
type Message struct {
	DocumentID string    `json:"documentId"`
	Attempt    int       `json:"attempt"`
	RequestID  string    `json:"requestId,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Version    int       `json:"version"`
}

// Validate checks the fields a worker needs. Messages from a newer
// producer are rejected rather than half-understood.
func (m Message) Validate() error {
	switch {
	case strings.TrimSpace(m.DocumentID) == "":
		return fmt.Errorf("%w: documentId is empty", ErrInvalidMessage)
	case m.Attempt <= 0:
		return fmt.Errorf("%w: attempt must be positive, got %d", ErrInvalidMessage, m.Attempt)
	case m.Version > MessageVersion:
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidMessage, m.Version)
	}
	return nil
}

// DedupID identifies one attempt of one document.
func (m Message) DedupID() string {
	return fmt.Sprintf("%s-%d", m.DocumentID, m.Attempt)
}

func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
