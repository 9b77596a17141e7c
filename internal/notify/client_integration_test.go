//go:build integration

package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_Publish(t *testing.T) {
	natsURL := skipWithoutNATS(t)

	sub, err := nats.Connect(natsURL, nats.Token(os.Getenv("NATS_TOKEN")))
	if err != nil {
		t.Fatalf("failed to connect subscriber: %v", err)
	}
	defer sub.Close()

	received := make(chan Event, 1)
	if _, err := sub.Subscribe(SubjectPrefix+">", func(msg *nats.Msg) {
		var ev Event
		json.Unmarshal(msg.Data, &ev)
		received <- ev
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	sub.Flush()

	client, err := NewClient(natsURL, os.Getenv("NATS_TOKEN"), slog.Default())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Publish(ctx, Event{MeetingID: "integration", Outcome: Completed, TrackCount: 2}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case ev := <-received:
		if ev.MeetingID != "integration" || ev.TrackCount != 2 {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
