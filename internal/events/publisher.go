// Package events forwards booking outcomes to notification consumers through a
// Redis stream. Publishing is best effort and never affects the booking itself.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event is one booking outcome as seen by stream consumers.
type Event struct {
	Type          string         `json:"type"`
	AppointmentID *uuid.UUID     `json:"appointment_id,omitempty"`
	SlotID        *uuid.UUID     `json:"slot_id,omitempty"`
	DoctorID      *uuid.UUID     `json:"doctor_id,omitempty"`
	PatientID     *uuid.UUID     `json:"patient_id,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// streamMaxLen caps the stream so an absent consumer cannot grow it forever.
const streamMaxLen = 100_000

type RedisStreamPublisher struct {
	client *redis.Client
	stream string
}

func NewRedisStreamPublisher(client *redis.Client, stream string) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, ev Event) error {
	values, err := ev.values()
	if err != nil {
		return err
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", ev.Type, p.stream, err)
	}
	return nil
}

func (ev Event) values() (map[string]any, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.Type, err)
	}
	return map[string]any{
		"type":    ev.Type,
		"payload": string(body),
	}, nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
