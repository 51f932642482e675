package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub, topic string) *Client {
	return &Client{
		hub:   hub,
		topic: topic,
		send:  make(chan []byte, 256),
	}
}

func runHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func TestHubRegistration(t *testing.T) {
	hub := runHub(t)
	client := mockClient(hub, "restaurant.1")

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if hub.rooms["restaurant.1"] == nil {
		t.Fatal("topic room not created")
	}
	if !hub.rooms["restaurant.1"][client] {
		t.Fatal("client not registered in topic room")
	}
}

func TestHubUnregistration(t *testing.T) {
	hub := runHub(t)
	client := mockClient(hub, "orders")

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	if n := hub.Subscribers("orders"); n != 0 {
		t.Fatalf("expected room cleaned up, got %d subscribers", n)
	}
	if _, open := <-client.send; open {
		t.Fatal("send channel should be closed after unregister")
	}
}

func TestPublishToSingleTopic(t *testing.T) {
	hub := runHub(t)

	client1 := mockClient(hub, "restaurant.1")
	client2 := mockClient(hub, "restaurant.2")
	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	payload := `{"event":"order.status.changed","order":{"id":7}}`
	if err := hub.Publish(context.Background(), "restaurant.1", []byte(payload)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-client1.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		if received.Topic != "restaurant.1" {
			t.Errorf("expected topic 'restaurant.1', got '%s'", received.Topic)
		}
		if string(received.Payload) != payload {
			t.Errorf("expected payload '%s', got '%s'", payload, received.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client1 did not receive message")
	}

	select {
	case <-client2.send:
		t.Fatal("client2 should not have received message for a different topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishToMultipleClientsOnSameTopic(t *testing.T) {
	hub := runHub(t)

	clients := []*Client{mockClient(hub, "order.9"), mockClient(hub, "order.9"), mockClient(hub, "order.9")}
	for _, c := range clients {
		hub.register <- c
	}
	time.Sleep(10 * time.Millisecond)

	if err := hub.Publish(context.Background(), "order.9", []byte(`{"status":"ready"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for i, client := range clients {
		select {
		case msg := <-client.send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("client%d: failed to unmarshal: %v", i+1, err)
			}
			if received.Topic != "order.9" {
				t.Errorf("client%d: expected topic 'order.9', got '%s'", i+1, received.Topic)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("client%d did not receive message", i+1)
		}
	}
}

func TestHubCleanupEmptyRoom(t *testing.T) {
	hub := runHub(t)

	client1 := mockClient(hub, "orders")
	client2 := mockClient(hub, "orders")
	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	if n := hub.Subscribers("orders"); n != 2 {
		t.Fatalf("expected 2 clients, got %d", n)
	}

	hub.unregister <- client1
	time.Sleep(10 * time.Millisecond)
	if n := hub.Subscribers("orders"); n != 1 {
		t.Fatalf("expected 1 client after first unregister, got %d", n)
	}

	hub.unregister <- client2
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if hub.rooms["orders"] != nil {
		t.Fatal("room should be deleted when last client unregisters")
	}
}

func TestPublishToTopicWithoutSubscribers(t *testing.T) {
	hub := runHub(t)

	client := mockClient(hub, "restaurant.1")
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	if err := hub.Publish(context.Background(), "restaurant.2", []byte(`{}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-client.send:
		t.Fatal("client should not receive message for a different topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := runHub(t)

	slow := &Client{hub: hub, topic: "orders", send: make(chan []byte)} // unbuffered, never read
	hub.register <- slow
	time.Sleep(10 * time.Millisecond)

	if err := hub.Publish(context.Background(), "orders", []byte(`{}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if n := hub.Subscribers("orders"); n != 0 {
		t.Fatalf("slow client should be dropped, %d subscribers left", n)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := mockClient(hub, "orders")
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if _, open := <-client.send; open {
		t.Fatal("client send channel should be closed on shutdown")
	}
	if err := hub.Publish(context.Background(), "orders", []byte(`{}`)); err == nil {
		t.Fatal("expected error publishing to a stopped hub")
	}
}

func TestPublishRespectsContext(t *testing.T) {
	hub := NewHub() // not running: the broadcast buffer fills up
	for i := 0; i < cap(hub.broadcast); i++ {
		hub.broadcast <- Event{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := hub.Publish(ctx, "orders", []byte(`{}`)); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestPublishAfterStopNeverQueues(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	for i := 0; i < 50; i++ {
		if err := hub.Publish(context.Background(), "orders", []byte(`{}`)); err != errHubStopped {
			t.Fatalf("publish %d: got %v, want errHubStopped", i, err)
		}
	}
	if n := len(hub.broadcast); n != 0 {
		t.Fatalf("stopped hub queued %d events", n)
	}
}
