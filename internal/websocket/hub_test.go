package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func mockClient(hub *Hub) *Client {
	return &Client{hub: hub, send: make(chan []byte, sendBufferSize)}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func TestRegisterUnregister(t *testing.T) {
	hub := testHub()
	c := mockClient(hub)

	hub.Register(c)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("ClientCount = %d, want 1", got)
	}
	hub.Unregister(c)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("ClientCount = %d, want 0", got)
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel should be closed after Unregister")
	}

	// second unregister is a no-op
	hub.Unregister(c)
}

func TestBroadcastJobStatus(t *testing.T) {
	hub := testHub()
	c1, c2 := mockClient(hub), mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)
	defer hub.Unregister(c1)
	defer hub.Unregister(c2)

	hub.Broadcast(NewMessage("job", "idle", 0, map[string]int{"sent": 3}))

	for _, c := range []*Client{c1, c2} {
		got := receive(t, c)
		if got.Type != "job_idle" {
			t.Errorf("Type = %q, want job_idle", got.Type)
		}
		data, ok := got.Data.(map[string]any)
		if !ok || data["sent"] != float64(3) {
			t.Errorf("Data = %#v", got.Data)
		}
	}
}

func TestRetainedReplayedOnRegister(t *testing.T) {
	hub := testHub()

	hub.BroadcastRetained("job:reminders", NewMessage("job", "running", 0, nil))
	hub.BroadcastRetained("job:reminders", NewMessage("job", "idle", 0, nil))
	hub.BroadcastRetained("job:overdue", NewMessage("job", "error", 0, nil))
	hub.Broadcast(NewMessage("job", "transient", 0, nil))

	c := mockClient(hub)
	hub.Register(c)
	defer hub.Unregister(c)

	// keys replay in sorted order: job:overdue, job:reminders
	if got := receive(t, c); got.Action != "error" {
		t.Errorf("first replay action = %q, want error", got.Action)
	}
	if got := receive(t, c); got.Action != "idle" {
		t.Errorf("second replay action = %q, want idle", got.Action)
	}
	select {
	case data := <-c.send:
		t.Errorf("unexpected extra message %s", data)
	default:
	}
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := testHub()
	hub.Broadcast(NewMessage("job", "idle", 0, nil))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := testHub()
	c := mockClient(hub)
	hub.Register(c)
	defer hub.Unregister(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage("test", "fill", int64(i), nil))
	}
	hub.Broadcast(NewMessage("test", "dropped", 999, nil))

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("buffered = %d, want %d", got, sendBufferSize)
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("reminder", "failed", 5, nil)
	if msg.Type != "reminder_failed" {
		t.Errorf("Type = %q", msg.Type)
	}
	if msg.Entity != "reminder" || msg.Action != "failed" || msg.ID != 5 {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := testHub()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub)
			hub.Register(c)
			hub.BroadcastRetained("job:reminders", NewMessage("job", "running", 0, nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount = %d, want 0", got)
	}
}
