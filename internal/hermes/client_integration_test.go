//go:build integration

package hermes

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/sentinel/internal/extractor"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_PubSub(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	ctx := context.Background()
	logger := slog.Default()

	client, err := NewClient(ctx, natsURL, os.Getenv("NATS_TOKEN"), logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	received := make(chan IntelUpdated, 1)

	err = client.Subscribe("honeypot.intel.>", func(subject string, data []byte) {
		var msg IntelUpdated
		json.Unmarshal(data, &msg)
		received <- msg
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Give subscription time to propagate
	time.Sleep(100 * time.Millisecond)

	rec := extractor.Empty()
	rec.UPIIDs = []string{"fraud@ybl"}
	err = client.Publish(SubjectIntelUpdated, IntelUpdated{
		SessionID:    "integration-session",
		Turns:        3,
		Intelligence: rec,
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg.SessionID != "integration-session" || len(msg.Intelligence.UPIIDs) != 1 {
			t.Errorf("unexpected event %+v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
