package messaging

import (
	"testing"
	"time"
)

// Requires NATS running on localhost:4222. Tests are skipped if unavailable.
func setupTestNATS(t *testing.T) *NATSClient {
	t.Helper()
	cfg := DefaultNATSConfig()
	cfg.Name = "huddle-test"
	cfg.MaxReconnects = 0
	c, err := NewNATSClient(cfg)
	if err != nil {
		t.Skipf("skipping: NATS not available: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestEventsRequest_RequestReply(t *testing.T) {
	c := setupTestNATS(t)

	err := c.SubscribeEventsRequest(func(data []byte) []byte {
		return append([]byte("echo:"), data...)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	reply, err := c.Request(SubjectEventsRequest, []byte("ping"), 2*time.Second)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if string(reply) != "echo:ping" {
		t.Errorf("expected %q, got %q", "echo:ping", reply)
	}
}

func TestPlannedCreated_PubSub(t *testing.T) {
	c := setupTestNATS(t)

	got := make(chan []byte, 1)
	if err := c.SubscribePlannedCreated(func(data []byte) { got <- data }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := c.conn.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if err := c.PublishPlannedCreated("p-1", []byte(`{"id":"p-1"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case data := <-got:
		if string(data) != `{"id":"p-1"}` {
			t.Errorf("unexpected payload %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("planned.created message not received")
	}
}
