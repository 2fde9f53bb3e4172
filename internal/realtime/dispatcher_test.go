package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

type recvFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// drain returns every frame currently queued on c.
func drain(t *testing.T, c *Conn) []recvFrame {
	t.Helper()
	var out []recvFrame
	for {
		select {
		case b, ok := <-c.send:
			if !ok {
				return out
			}
			var f recvFrame
			if err := json.Unmarshal(b, &f); err != nil {
				t.Fatalf("bad frame %s: %v", b, err)
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r, nil, "test")
	a, b := testConn(1), testConn(2)
	r.Join(a, "chat_7")
	r.Join(b, "chat_7")

	d.Broadcast("chat_7", "receive_message", map[string]any{"content": "hi"}, a.ID())

	if got := drain(t, a); len(got) != 0 {
		t.Errorf("sender received %d frames", len(got))
	}
	got := drain(t, b)
	if len(got) != 1 || got[0].Event != "receive_message" {
		t.Fatalf("b received %+v", got)
	}
	var data struct{ Content string }
	json.Unmarshal(got[0].Data, &data)
	if data.Content != "hi" {
		t.Errorf("content = %q", data.Content)
	}
}

func TestBroadcastEmptyRoomIsNoop(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil, "test")
	d.Broadcast("group_404", "group_message_received", nil, "")
	d.ToRoom(context.Background(), "", "x", nil)
}

func TestToOthersUsesOrigin(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r, nil, "test")
	a, b := testConn(1), testConn(2)
	r.Join(a, "group_3")
	r.Join(b, "group_3")

	d.ToOthers(WithOrigin(context.Background(), a.ID()), "group_3", "group_message_edited", nil)
	if len(drain(t, a)) != 0 || len(drain(t, b)) != 1 {
		t.Error("ToOthers should skip only the origin connection")
	}

	// Without an origin (REST), everyone gets it.
	d.ToOthers(context.Background(), "group_3", "group_message_edited", nil)
	if len(drain(t, a)) != 1 || len(drain(t, b)) != 1 {
		t.Error("ToOthers without origin should reach every member")
	}
}

func TestBroadcastDropsWhenQueueFull(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r, nil, "test")
	slow := newConn(nil, nil, testConn(1).identity, 1)
	fast := testConn(2)
	r.Join(slow, "channel_9")
	r.Join(fast, "channel_9")

	for i := 0; i < 3; i++ {
		d.Broadcast("channel_9", "channel_content_posted", i, "")
	}
	if got := len(drain(t, slow)); got != 1 {
		t.Errorf("slow consumer got %d frames, want 1", got)
	}
	if got := len(drain(t, fast)); got != 3 {
		t.Errorf("fast consumer got %d frames, want 3", got)
	}
}

func TestBroadcastSkipsClosedConn(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r, nil, "test")
	c := testConn(1)
	r.Join(c, "chat_1")
	c.close()

	// Must not panic on the closed queue.
	d.Broadcast("chat_1", "receive_message", nil, "")
}

type memRelay struct {
	mu        sync.Mutex
	published []Envelope
	err       error
}

func (m *memRelay) Publish(_ context.Context, env Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, env)
	return m.err
}

func (m *memRelay) Subscribe(ctx context.Context, _ func(Envelope)) error {
	<-ctx.Done()
	return nil
}

func TestBroadcastPublishesToRelay(t *testing.T) {
	relay := &memRelay{}
	r := NewRegistry()
	d := NewDispatcher(r, relay, "node-a")

	d.Broadcast("group_3", "group_deleted", map[string]int{"groupId": 3}, "conn-x")

	if len(relay.published) != 1 {
		t.Fatalf("published %d envelopes", len(relay.published))
	}
	env := relay.published[0]
	if env.Instance != "node-a" || env.Room != "group_3" || env.Exclude != "conn-x" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestBroadcastSurvivesRelayFailure(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r, &memRelay{err: errors.New("redis down")}, "node-a")
	c := testConn(1)
	r.Join(c, "chat_5")

	d.Broadcast("chat_5", "message_deleted", nil, "")
	if len(drain(t, c)) != 1 {
		t.Error("local delivery must not depend on the relay")
	}
}

func TestReceiveFromRelay(t *testing.T) {
	r := NewRegistry()
	local := NewDispatcher(r, nil, "node-b")
	a, b := testConn(1), testConn(2)
	r.Join(a, "chat_7")
	r.Join(b, "chat_7")

	frame, _ := json.Marshal(Frame{Event: "receive_message", Data: "hi"})
	local.receive(Envelope{Instance: "node-a", Room: "chat_7", Event: "receive_message", Exclude: a.ID(), Frame: frame})
	if len(drain(t, a)) != 0 || len(drain(t, b)) != 1 {
		t.Error("relayed frame should honour the exclusion")
	}

	local.receive(Envelope{Instance: "node-b", Room: "chat_7", Event: "receive_message", Frame: frame})
	if len(drain(t, b)) != 0 {
		t.Error("an instance must ignore its own envelopes")
	}
}

func TestReceiveDropsMalformedRooms(t *testing.T) {
	r := NewRegistry()
	local := NewDispatcher(r, nil, "node-b")
	c := testConn(1)
	r.Join(c, "lobby")

	frame, _ := json.Marshal(Frame{Event: "receive_message", Data: "hi"})
	local.receive(Envelope{Instance: "node-a", Room: "lobby", Event: "receive_message", Frame: frame})
	if got := drain(t, c); len(got) != 0 {
		t.Errorf("frames delivered to an invalid room: %+v", got)
	}
	local.receive(Envelope{Instance: "node-a", Room: "lobby", Evict: true})
	if !r.IsMember(c, "lobby") {
		t.Error("eviction applied to an invalid room")
	}
}

func TestEvict(t *testing.T) {
	relay := &memRelay{}
	r := NewRegistry()
	d := NewDispatcher(r, relay, "node-a")
	a1, a2, b, c := testConn(1), testConn(1), testConn(2), testConn(3)
	for _, conn := range []*Conn{a1, a2, b, c} {
		r.Join(conn, "group_3")
	}
	r.Join(a1, "chat_1")

	d.Evict(context.Background(), "group_3", 1)
	if r.IsMember(a1, "group_3") || r.IsMember(a2, "group_3") {
		t.Error("both connections of user 1 should be evicted")
	}
	if !r.IsMember(a1, "chat_1") {
		t.Error("eviction must not touch other rooms")
	}
	if len(r.Members("group_3")) != 2 {
		t.Errorf("members = %d, want 2", len(r.Members("group_3")))
	}
	if len(relay.published) != 1 || !relay.published[0].Evict {
		t.Fatalf("published = %+v", relay.published)
	}

	// A relayed eviction with no users clears the room.
	other := NewDispatcher(r, nil, "node-b")
	other.receive(Envelope{Instance: "node-a", Room: "group_3", Evict: true})
	if len(r.Members("group_3")) != 0 {
		t.Error("room should be empty")
	}
}

func TestBreakerRelayOpensAfterFailures(t *testing.T) {
	inner := &memRelay{err: errors.New("redis down")}
	relay := NewBreakerRelay(inner, BreakerConfig{Failures: 2, Cooldown: time.Minute})
	r := NewRegistry()
	d := NewDispatcher(r, relay, "node-a")
	c := testConn(1)
	r.Join(c, "chat_1")

	for i := 0; i < 4; i++ {
		d.Broadcast("chat_1", "receive_message", i, "")
	}
	if got := len(inner.published); got != 2 {
		t.Errorf("relay called %d times, want 2 before the breaker opened", got)
	}
	if relay.State() != "open" {
		t.Errorf("state = %s", relay.State())
	}
	if got := len(drain(t, c)); got != 4 {
		t.Errorf("local member got %d frames, want 4", got)
	}
}

func TestSubscriberReturnsWhenSubscriptionEnds(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil, "node-a")
	s := NewSubscriber(&endedRelay{}, d)
	if err := s.Serve(context.Background()); err == nil {
		t.Error("a lost subscription should be reported so it gets restarted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewSubscriber(&memRelay{}, d).Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

type endedRelay struct{ memRelay }

func (*endedRelay) Subscribe(context.Context, func(Envelope)) error {
	return errors.New("connection reset")
}
