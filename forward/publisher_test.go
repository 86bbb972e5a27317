package forward

import (
	"encoding/json"
	"testing"

	"trackpoint/config"
	"trackpoint/models"

	"github.com/stretchr/testify/require"
)

func testEvent(id, device string) models.Event {
	return models.Event{
		EventID:   id,
		EventName: "page_view",
		EventType: models.EventTypePageView,
		Timestamp: 1704067200000,
		DeviceID:  device,
		SessionID: "s1",
		Platform:  models.PlatformWeb,
		AppID:     "app-1",
	}
}

func TestNew(t *testing.T) {
	p, err := New(config.Forward{})
	require.NoError(t, err)
	require.IsType(t, &Noop{}, p)

	p, err = New(config.Forward{Type: "redis", Redis: config.RedisForward{URL: "redis://localhost:6379/0", Stream: "events"}})
	require.NoError(t, err)
	require.IsType(t, &Redis{}, p)
	require.NoError(t, p.Close())

	p, err = New(config.Forward{Type: "kafka", Kafka: config.KafkaForward{Brokers: []string{"localhost:9092"}, Topic: "events"}})
	require.NoError(t, err)
	require.IsType(t, &Kafka{}, p)
	require.NoError(t, p.Close())

	_, err = New(config.Forward{Type: "redis", Redis: config.RedisForward{URL: "not a url"}})
	require.Error(t, err)
	_, err = New(config.Forward{Type: "kafka"})
	require.Error(t, err)
	_, err = New(config.Forward{Type: "nats"})
	require.Error(t, err)
}

func TestXAddArgs(t *testing.T) {
	e := testEvent("e1", "d1")
	args, err := xaddArgs("events", 1000, &e)
	require.NoError(t, err)
	require.Equal(t, "events", args.Stream)
	require.Equal(t, int64(1000), args.MaxLen)
	require.True(t, args.Approx)

	values := args.Values.(map[string]any)
	var decoded models.Event
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &decoded))
	require.Equal(t, "e1", decoded.EventID)

	args, err = xaddArgs("events", 0, &e)
	require.NoError(t, err)
	require.Zero(t, args.MaxLen)
	require.False(t, args.Approx)
}

func TestKafkaMessagesKeyedByDevice(t *testing.T) {
	msgs, err := kafkaMessages([]models.Event{testEvent("e1", "d1"), testEvent("e2", "d2")})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "d1", string(msgs[0].Key))
	require.Equal(t, "d2", string(msgs[1].Key))

	var decoded models.Event
	require.NoError(t, json.Unmarshal(msgs[1].Value, &decoded))
	require.Equal(t, "e2", decoded.EventID)
	require.Equal(t, "page_view", string(msgs[0].Headers[0].Value))
}
