package events

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNilPublisherDropsEverything(t *testing.T) {
	var p *Publisher
	p.Emit(context.Background(), Event{Action: ActionCreated, ID: uuid.New()})
	p.EmitAll(context.Background(), ActionDeleted, uuid.Nil, []uuid.UUID{uuid.New()}, time.Now())
}

func TestNewPublisherWithoutClient(t *testing.T) {
	require.Nil(t, NewPublisher(nil, "phones.change", slog.Default()))
}
