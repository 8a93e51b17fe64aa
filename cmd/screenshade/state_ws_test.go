package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

// NOTE: These tests focus on hub behavior (fanout + slow-client disconnection)
// without standing up a real websocket server. Clients are constructed with a
// nil websocket.Conn; the hub guards conn accesses against nil.

func newTestHub(t *testing.T, sendBuf, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(slog.Default(), HubConfig{
		SendBuf:      sendBuf,
		BroadcastBuf: broadcastBuf,
	})
}

func newOfflineClient(hub *Hub, name string, sendBuf int) *Client {
	return &Client{
		hub:        hub,
		conn:       nil,
		send:       make(chan []byte, sendBuf),
		remoteAddr: name,
		logger:     slog.Default(),
	}
}

func registerAndWait(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, c.remoteAddr+" not registered in time")
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 4, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	c1 := newOfflineClient(hub, "c1", 4)
	c2 := newOfflineClient(hub, "c2", 4)
	registerAndWait(t, hub, c1)
	registerAndWait(t, hub, c2)

	msg := []byte(`{"type":"state","data":{"level":0.5}}`)

	// Feed the hub loop directly: BroadcastBytes is non-blocking by design
	// and may drop under scheduling pressure.
	hub.broadcast <- msg

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			if string(got) != string(msg) {
				t.Fatalf("%s got %q, want %q", c.remoteAddr, got, msg)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s to receive broadcast", c.remoteAddr)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for hub to stop")
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 1, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	slow := newOfflineClient(hub, "slow", 1)
	fast := newOfflineClient(hub, "fast", 8)
	registerAndWait(t, hub, slow)
	registerAndWait(t, hub, fast)

	// Pre-fill the slow client's buffer so the next broadcast can't land.
	slow.send <- []byte(`"already queued"`)

	msg := []byte(`{"type":"state","data":{"level":1}}`)
	hub.broadcast <- msg

	select {
	case got := <-fast.send:
		if string(got) != string(msg) {
			t.Fatalf("fast client got %q, want %q", got, msg)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for fast client to receive broadcast")
	}

	// Drain the pre-filled message, then the channel should get closed by
	// the eviction path.
	select {
	case <-slow.send:
	default:
	}

	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")
}

func TestStateServerPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initial := stateSnapshot{Level: 0, Monitors: []string{"DP-1"}, Backend: "test"}
	server := newStateServer(slog.Default(), initial, HubConfig{SendBuf: 4, BroadcastBuf: 8})

	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Hub().Run(ctx)
	}()

	c := newOfflineClient(server.Hub(), "observer", 4)
	registerAndWait(t, server.Hub(), c)

	next := stateSnapshot{Level: 0.4, Monitors: []string{"DP-1"}, Backend: "test"}
	server.Publish(next)

	if got := server.snapshot(); got.Level != 0.4 {
		t.Errorf("stored snapshot level = %v, want 0.4", got.Level)
	}

	select {
	case raw := <-c.send:
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("frame is not JSON: %v", err)
		}
		if env.Type != "state" {
			t.Errorf("frame type = %q, want %q", env.Type, "state")
		}
		data, ok := env.Data.(map[string]interface{})
		if !ok {
			t.Fatalf("frame data has unexpected shape: %T", env.Data)
		}
		if data["level"] != 0.4 {
			t.Errorf("frame level = %v, want 0.4", data["level"])
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for state frame")
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}
