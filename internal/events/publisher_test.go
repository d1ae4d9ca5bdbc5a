package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestEventValues(t *testing.T) {
	appt := uuid.New()
	ev := Event{
		Type:          "APPOINTMENT_BOOKED",
		AppointmentID: &appt,
		Data:          map[string]any{"payment_method": "OFFLINE"},
		OccurredAt:    time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}

	values, err := ev.values()
	if err != nil {
		t.Fatalf("values: %v", err)
	}
	if values["type"] != "APPOINTMENT_BOOKED" {
		t.Errorf("unexpected type field %v", values["type"])
	}

	var decoded Event
	if err := json.Unmarshal([]byte(values["payload"].(string)), &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.AppointmentID == nil || *decoded.AppointmentID != appt {
		t.Errorf("expected appointment id to round trip, got %v", decoded.AppointmentID)
	}
	if decoded.SlotID != nil {
		t.Error("expected unset slot id to be omitted")
	}
	if decoded.Data["payment_method"] != "OFFLINE" {
		t.Errorf("unexpected data %v", decoded.Data)
	}
}

func TestEventValues_DefaultsTimestamp(t *testing.T) {
	values, err := Event{Type: "SLOT_HELD"}.values()
	if err != nil {
		t.Fatalf("values: %v", err)
	}
	var decoded Event
	if err := json.Unmarshal([]byte(values["payload"].(string)), &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.OccurredAt.IsZero() {
		t.Error("expected occurred_at to be filled in")
	}
}

func TestNopPublisher(t *testing.T) {
	if err := (NopPublisher{}).Publish(context.Background(), Event{Type: "X"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRedisStreamPublisher(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	stream := "test:events:" + uuid.NewString()
	defer rdb.Del(ctx, stream)

	pub := NewRedisStreamPublisher(rdb, stream)
	if err := pub.Publish(ctx, Event{Type: "APPOINTMENT_CANCELLED"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msgs, err := rdb.XRange(ctx, stream, "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Values["type"] != "APPOINTMENT_CANCELLED" {
		t.Errorf("unexpected stream contents %+v", msgs)
	}
}
