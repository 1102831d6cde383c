//go:build integration

package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	tcredpanda "github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"
)

const testTopic = "phones.change"

func TestEmitDeliversEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcredpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.1.2")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	broker, err := container.KafkaSeedBroker(ctx)
	require.NoError(t, err)

	producer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.AllowAutoTopicCreation(),
	)
	require.NoError(t, err)
	t.Cleanup(producer.Close)

	publisher := NewPublisher(producer, testTopic, slog.Default())
	require.NotNil(t, publisher)

	phoneID := uuid.New()
	entityID := uuid.New()
	at := time.Now().UTC().Truncate(time.Millisecond)

	publisher.Emit(ctx, Event{Action: ActionCreated, ID: phoneID, Entity: entityID, At: at})
	publisher.EmitAll(ctx, ActionDeleted, entityID, []uuid.UUID{phoneID}, at)
	require.NoError(t, producer.Flush(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(testTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	deadline, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var events []Event
	for len(events) < 2 {
		fetches := consumer.PollFetches(deadline)
		require.NoError(t, fetches.Err())
		fetches.EachRecord(func(rec *kgo.Record) {
			require.Equal(t, phoneID.String(), string(rec.Key))
			var ev Event
			require.NoError(t, json.Unmarshal(rec.Value, &ev))
			events = append(events, ev)
		})
	}

	require.Equal(t, ActionCreated, events[0].Action)
	require.Equal(t, ActionDeleted, events[1].Action)
	require.Equal(t, entityID, events[0].Entity)
	require.True(t, events[0].At.Equal(at))
}
