package outbox

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
)

// HeaderEventType carries Message.Type on published Kafka records.
const HeaderEventType = "event_type"

// KafkaPublisher writes messages to a single Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the topic on the given brokers.
// Messages with the same key land on the same partition.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

// ParseBrokers splits a comma-separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	var brokers []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Publish writes m synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, m Message) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.Key),
		Value: m.Payload,
		Time:  m.CreatedAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(m.Type)},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "write message %d", m.ID)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
