package forward

import (
	"context"
	"fmt"
	"time"

	"trackpoint/config"
	"trackpoint/models"

	"github.com/rs/zerolog/log"
)

const publishTimeout = 2 * time.Second

// Publisher hands stored events to a downstream consumer.
type Publisher interface {
	Publish(ctx context.Context, events []models.Event) error
	Close() error
}

type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (n *Noop) Publish(context.Context, []models.Event) error { return nil }
func (n *Noop) Close() error                                  { return nil }

// New builds the Publisher selected by cfg.Type: noop (default), redis or kafka.
func New(cfg config.Forward) (Publisher, error) {
	switch cfg.Type {
	case "", "noop":
		return NewNoop(), nil
	case "redis":
		p, err := NewRedis(cfg.Redis.URL, cfg.Redis.Stream, cfg.Redis.MaxLen)
		if err != nil {
			return nil, err
		}
		log.Info().Str("stream", cfg.Redis.Stream).Int64("max_len", cfg.Redis.MaxLen).Msg("Forward: redis publisher enabled")
		return p, nil
	case "kafka":
		p, err := NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Forward: kafka publisher enabled")
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported forward type %q", cfg.Type)
	}
}
