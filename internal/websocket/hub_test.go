package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, panelistID int64, admin bool) *Client {
	return &Client{
		hub:        hub,
		send:       make(chan []byte, sendBufferSize),
		panelistID: panelistID,
		admin:      admin,
	}
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got, true
	case <-time.After(100 * time.Millisecond):
		return Message{}, false
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1, false)
	c2 := mockClient(hub, 2, false)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	// Should not panic
	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1, false)
	c2 := mockClient(hub, 2, false)
	hub.Register(c1)
	hub.Register(c2)
	defer hub.Unregister(c1)
	defer hub.Unregister(c2)

	hub.Broadcast(NewMessage("contest_leaderboard", "updated", 42, map[string]any{"participants": float64(3)}))

	for _, c := range []*Client{c1, c2} {
		got, ok := receive(t, c)
		if !ok {
			t.Fatal("timeout waiting for message")
		}
		if got.Type != "contest_leaderboard_updated" {
			t.Errorf("type = %s, want contest_leaderboard_updated", got.Type)
		}
		if got.ID != 42 {
			t.Errorf("id = %d, want 42", got.ID)
		}
	}
}

func TestNotifyTargetsPanelistAndAdmins(t *testing.T) {
	hub := NewHub(slog.Default())

	owner := mockClient(hub, 7, false)
	other := mockClient(hub, 8, false)
	admin := mockClient(hub, 0, true)
	for _, c := range []*Client{owner, other, admin} {
		hub.Register(c)
		defer hub.Unregister(c)
	}

	hub.Notify(7, NewMessage("ledger_entry", "created", 99, map[string]any{"points": float64(50)}))

	got, ok := receive(t, owner)
	if !ok {
		t.Fatal("owner did not receive event")
	}
	if got.PanelistID != 7 {
		t.Errorf("panelist_id = %d, want 7", got.PanelistID)
	}
	if _, ok := receive(t, admin); !ok {
		t.Error("admin did not receive event")
	}
	if _, ok := receive(t, other); ok {
		t.Error("other panelist must not receive event")
	}
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Broadcast(NewMessage("survey", "completed", 1, nil))
	hub.Notify(1, NewMessage("redemption", "completed", 1, nil))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, 1, false)
	hub.Register(c)
	defer hub.Unregister(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage("test", "fill", int64(i), nil))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(NewMessage("test", "dropped", 999, nil))

	count := 0
	for len(c.send) > 0 {
		<-c.send
		count++
	}
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("contest_prize", "awarded", 5, nil)
	if msg.Type != "contest_prize_awarded" {
		t.Errorf("type = %s, want contest_prize_awarded", msg.Type)
	}
	if msg.Entity != "contest_prize" {
		t.Errorf("entity = %s, want contest_prize", msg.Entity)
	}
	if msg.Action != "awarded" {
		t.Errorf("action = %s, want awarded", msg.Action)
	}
	if msg.ID != 5 {
		t.Errorf("id = %d, want 5", msg.ID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			c := mockClient(hub, id, false)
			hub.Register(c)
			hub.Broadcast(NewMessage("test", "concurrent", 0, nil))
			hub.Notify(id, NewMessage("test", "private", 0, nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}(int64(i))
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
