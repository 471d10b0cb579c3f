// Package outbox relays events recorded inside business transactions to
// Kafka. Rows are written by the transaction that produces the event and
// published afterwards, so an event exists if and only if its transaction
// committed.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
)

// Message is one recorded event.
type Message struct {
	ID        int64
	Type      string
	Key       string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// NewMessage marshals payload into a message of the given type, keyed for
// partitioning by key.
func NewMessage(eventType, key string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, errors.Wrapf(err, "marshal %s payload", eventType)
	}
	return Message{Type: eventType, Key: key, Payload: data}, nil
}

// Writer appends messages as part of an ongoing transaction.
type Writer interface {
	Append(ctx context.Context, m Message) error
}

// Store reads and acknowledges pending messages.
type Store interface {
	FetchPending(ctx context.Context, limit int) ([]Message, error)
	MarkSent(ctx context.Context, ids []int64) error
}

// Publisher delivers one message to the broker.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
}
