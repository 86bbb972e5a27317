package forward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trackpoint/models"

	kafka "github.com/segmentio/kafka-go"
)

// Kafka writes one message per event, keyed by device so a device's events stay on
// one partition.
type Kafka struct {
	w *kafka.Writer
}

func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, errors.New("kafka: no topic configured")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireOne,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Kafka{w: w}, nil
}

func (k *Kafka) Publish(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs, err := kafkaMessages(events)
	if err != nil {
		return err
	}
	if err := k.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), k.w.Topic, err)
	}
	return nil
}

func (k *Kafka) Close() error { return k.w.Close() }

func kafkaMessages(events []models.Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for i := range events {
		b, err := json.Marshal(&events[i])
		if err != nil {
			return nil, fmt.Errorf("encode event %s: %w", events[i].EventID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(events[i].DeviceID),
			Value: b,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(events[i].EventType)},
				{Key: "app_id", Value: []byte(events[i].AppID)},
			},
		})
	}
	return msgs, nil
}
