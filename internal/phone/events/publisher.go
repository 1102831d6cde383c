// Package events publishes phone change notifications to Kafka. Emission is
// best-effort: a broker outage is logged and never fails the write that
// triggered it.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Action names what happened to a record.
type Action string

const (
	ActionCreated  Action = "created"
	ActionUpdated  Action = "updated"
	ActionDeleted  Action = "deleted"
	ActionReplaced Action = "replaced"
)

// Event is the payload published per affected record. Keyed by record id so
// per-phone ordering is preserved within a partition.
type Event struct {
	Action Action    `json:"action"`
	ID     uuid.UUID `json:"id"`
	Entity uuid.UUID `json:"entity"`
	At     time.Time `json:"at"`
}

// Publisher writes change events to a topic. A nil *Publisher is valid and
// drops everything, so wiring stays unconditional in the service.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewPublisher builds a publisher over an existing client. Returns nil when
// the client is nil (event stream not configured).
func NewPublisher(client *kgo.Client, topic string, logger *slog.Logger) *Publisher {
	if client == nil {
		return nil
	}
	return &Publisher{client: client, topic: topic, logger: logger}
}

// Emit publishes one event asynchronously.
func (p *Publisher) Emit(ctx context.Context, ev Event) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.ErrorContext(ctx, "marshal change event", "error", err, "phone_id", ev.ID)
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.ID.String()),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("publish change event",
				"error", err,
				"action", ev.Action,
				"phone_id", ev.ID,
			)
		}
	})
}

// EmitAll publishes one event per id with a shared action and instant.
func (p *Publisher) EmitAll(ctx context.Context, action Action, entity uuid.UUID, ids []uuid.UUID, at time.Time) {
	if p == nil {
		return
	}
	for _, id := range ids {
		p.Emit(ctx, Event{Action: action, ID: id, Entity: entity, At: at})
	}
}
