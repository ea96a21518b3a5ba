package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marketboard/mbsync/internal/codec"
)

type recvFrame struct {
	conn int
	data string
}

// fakeTimers records reconnect scheduling instead of sleeping.
type fakeTimers struct {
	mu        sync.Mutex
	fns       []func()
	scheduled chan time.Duration
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{scheduled: make(chan time.Duration, 16)}
}

type fakeTimer struct {
	stopped *atomic.Bool
}

func (t fakeTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

func (f *fakeTimers) afterFunc(d time.Duration, fn func()) Timer {
	stopped := &atomic.Bool{}
	f.mu.Lock()
	f.fns = append(f.fns, func() {
		if !stopped.Load() {
			fn()
		}
	})
	f.mu.Unlock()
	f.scheduled <- d
	return fakeTimer{stopped: stopped}
}

func (f *fakeTimers) fireLast() {
	f.mu.Lock()
	fn := f.fns[len(f.fns)-1]
	f.mu.Unlock()
	fn()
}

// recordingServer records every frame received, tagged by connection number.
// dropAfter closes connection 1 after that many frames; zero keeps it open.
func recordingServer(t *testing.T, dropAfter int) (url string, frames <-chan recvFrame, closeFn func()) {
	ch := make(chan recvFrame, 100)
	var conns atomic.Int32

	server := mockWSServer(t, func(conn *websocket.Conn) {
		idx := int(conns.Add(1))
		n := 0
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ch <- recvFrame{conn: idx, data: string(data)}
			n++
			if idx == 1 && dropAfter > 0 && n == dropAfter {
				return
			}
		}
	})

	return wsURL(server), ch, server.Close
}

func waitFrames(t *testing.T, frames <-chan recvFrame, n int) []recvFrame {
	t.Helper()
	var got []recvFrame
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case f := <-frames:
			got = append(got, f)
		case <-timeout:
			t.Fatalf("timeout waiting for frames, received %d of %d: %+v", len(got), n, got)
		}
	}
	return got
}

func expectNoFrames(t *testing.T, frames <-chan recvFrame) {
	t.Helper()
	select {
	case f := <-frames:
		t.Errorf("unexpected frame: %+v", f)
	case <-time.After(100 * time.Millisecond):
	}
}

func testManagerConfig(url string) ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.Client = testClientConfig(url)
	cfg.MessageBufferSize = 100
	return cfg
}

func waitState(t *testing.T, m Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", m.State(), want)
}

func subscribeFrame(itemID int) string {
	return string(codec.EncodeSubscribe(itemID))
}

func TestManager_SubscribeWhileConnected(t *testing.T) {
	url, frames, stop := recordingServer(t, 0)
	defer stop()

	m := NewManager(testManagerConfig(url), nil)
	defer m.Close(context.Background())

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !m.IsConnected() {
		t.Fatal("expected IsConnected after Connect")
	}

	if err := m.Subscribe(5333); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	// Second subscribe is idempotent and sends nothing.
	if err := m.Subscribe(5333); err != nil {
		t.Fatalf("repeat Subscribe failed: %v", err)
	}

	got := waitFrames(t, frames, 1)
	if got[0].data != subscribeFrame(5333) {
		t.Errorf("frame = %s, want %s", got[0].data, subscribeFrame(5333))
	}
	expectNoFrames(t, frames)

	if err := m.Unsubscribe(5333); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	got = waitFrames(t, frames, 1)
	if got[0].data != string(codec.EncodeUnsubscribe(5333)) {
		t.Errorf("frame = %s, want unsubscribe", got[0].data)
	}

	// Unsubscribing an unknown item is a no-op.
	if err := m.Unsubscribe(1); err != nil {
		t.Errorf("Unsubscribe of unknown item: %v", err)
	}
	expectNoFrames(t, frames)

	stats := m.Stats()
	if stats.SubscribesSent != 1 || stats.UnsubscribesSent != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.SessionID == "" {
		t.Error("expected a session id while connected")
	}
}

func TestManager_QueuedSubscriptionsReplayOnConnect(t *testing.T) {
	url, frames, stop := recordingServer(t, 0)
	defer stop()

	m := NewManager(testManagerConfig(url), nil)
	defer m.Close(context.Background())

	for _, id := range []int{7, 3, 5} {
		if err := m.Subscribe(id); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("Subscribe(%d) = %v, want ErrNotConnected", id, err)
		}
	}
	if !m.IsSubscribed(3) {
		t.Error("queued item should be in the subscription set")
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	got := waitFrames(t, frames, 3)
	for i, id := range []int{3, 5, 7} {
		if got[i].data != subscribeFrame(id) {
			t.Errorf("frame %d = %s, want %s", i, got[i].data, subscribeFrame(id))
		}
	}
	expectNoFrames(t, frames)
}

func TestManager_ReconnectReplaysExactSet(t *testing.T) {
	url, frames, stop := recordingServer(t, 2)
	defer stop()

	timers := newFakeTimers()
	m := NewManager(testManagerConfig(url), nil, WithAfterFunc(timers.afterFunc))
	defer m.Close(context.Background())

	m.Subscribe(1)
	m.Subscribe(2)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Connection 1 drops after receiving the two replayed frames.
	waitFrames(t, frames, 2)

	var delay time.Duration
	select {
	case delay = <-timers.scheduled:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect was not scheduled after drop")
	}
	if delay != time.Second {
		t.Errorf("first reconnect delay = %v, want 1s", delay)
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected while waiting", m.State())
	}

	// Remove one item while down; it must not be replayed.
	if err := m.Unsubscribe(1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe while down = %v, want ErrNotConnected", err)
	}
	m.Subscribe(9)

	timers.fireLast()
	waitState(t, m, StateConnected)

	got := waitFrames(t, frames, 2)
	for i, id := range []int{2, 9} {
		if got[i].conn != 2 {
			t.Errorf("frame %d on connection %d, want 2", i, got[i].conn)
		}
		if got[i].data != subscribeFrame(id) {
			t.Errorf("frame %d = %s, want %s", i, got[i].data, subscribeFrame(id))
		}
	}
	expectNoFrames(t, frames)

	stats := m.Stats()
	if stats.Connects != 2 || stats.Drops != 1 {
		t.Errorf("stats = %+v, want 2 connects and 1 drop", stats)
	}
	if stats.ReconnectAttempts != 0 {
		t.Errorf("attempt counter not reset after reconnect: %d", stats.ReconnectAttempts)
	}
}

func TestManager_ConnectFailureSchedulesBackoff(t *testing.T) {
	server := mockWSServer(t, drainUntilClosed)
	url := wsURL(server)
	server.Close()

	timers := newFakeTimers()
	m := NewManager(testManagerConfig(url), nil, WithAfterFunc(timers.afterFunc))
	defer m.Close(context.Background())

	if err := m.Connect(context.Background()); err == nil {
		t.Fatal("expected Connect to fail")
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, w := range want {
		select {
		case d := <-timers.scheduled:
			if d != w {
				t.Errorf("attempt %d delay = %v, want %v", i, d, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("attempt %d not scheduled", i)
		}
		if i < len(want)-1 {
			timers.fireLast()
		}
	}

	if m.Stats().ConnectFailures != 3 {
		t.Errorf("ConnectFailures = %d, want 3", m.Stats().ConnectFailures)
	}
}

func TestManager_DisconnectCancelsReconnect(t *testing.T) {
	server := mockWSServer(t, drainUntilClosed)
	url := wsURL(server)
	server.Close()

	timers := newFakeTimers()
	m := NewManager(testManagerConfig(url), nil, WithAfterFunc(timers.afterFunc))
	defer m.Close(context.Background())

	m.Subscribe(42)
	m.Connect(context.Background())
	<-timers.scheduled

	if err := m.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	// A stale timer firing after Disconnect must not dial.
	timers.fireLast()
	time.Sleep(50 * time.Millisecond)
	if m.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", m.State())
	}
	if m.Stats().ConnectFailures != 1 {
		t.Errorf("cancelled timer still dialed")
	}
	if !m.IsSubscribed(42) {
		t.Error("Disconnect should keep the subscription set")
	}
}

func TestManager_DisconnectAndReconnect(t *testing.T) {
	url, frames, stop := recordingServer(t, 0)
	defer stop()

	m := NewManager(testManagerConfig(url), nil)
	defer m.Close(context.Background())

	m.Subscribe(10)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFrames(t, frames, 1)

	if err := m.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", m.State())
	}
	// Disconnect is idempotent.
	if err := m.Disconnect(context.Background()); err != nil {
		t.Errorf("second Disconnect failed: %v", err)
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	got := waitFrames(t, frames, 1)
	if got[0].conn != 2 || got[0].data != subscribeFrame(10) {
		t.Errorf("replay = %+v", got[0])
	}
}

func TestManager_Messages(t *testing.T) {
	payload := `{"event":"listings/add","item":5333,"world":42,"listings":[]}`
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(payload))
		drainUntilClosed(conn)
	})
	defer server.Close()

	m := NewManager(testManagerConfig(wsURL(server)), nil)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case msg := <-m.Messages():
		if string(msg.Data) != payload {
			t.Errorf("data = %s", msg.Data)
		}
		if msg.SessionID != m.Stats().SessionID {
			t.Errorf("session = %q, want %q", msg.SessionID, m.Stats().SessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}

	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := <-m.Messages(); ok {
		t.Error("Messages should be closed after Close")
	}
	if err := m.Connect(context.Background()); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
	if len(m.Subscriptions()) != 0 {
		t.Error("Close should clear subscriptions")
	}
}

func TestManager_WatchStatus(t *testing.T) {
	server := mockWSServer(t, drainUntilClosed)
	defer server.Close()

	m := NewManager(testManagerConfig(wsURL(server)), nil)
	changes, cancel := m.WatchStatus()
	defer cancel()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	want := []State{StateDisconnected, StateConnecting, StateConnected}
	for i, w := range want {
		select {
		case c := <-changes:
			if c.State != w {
				t.Errorf("change %d state = %v, want %v", i, c.State, w)
			}
			if w == StateConnected && c.SessionID == "" {
				t.Error("connected status should carry the session id")
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for status %v", w)
		}
	}

	m.Close(context.Background())

	// Watchers are closed on Close after the final transitions.
	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("status channel not closed")
		}
	}
}

func TestManager_ConnectIsNoOpWhenConnected(t *testing.T) {
	var dials atomic.Int32
	server := mockWSServer(t, func(conn *websocket.Conn) {
		dials.Add(1)
		drainUntilClosed(conn)
	})
	defer server.Close()

	m := NewManager(testManagerConfig(wsURL(server)), nil)
	defer m.Close(context.Background())

	for i := 0; i < 3; i++ {
		if err := m.Connect(context.Background()); err != nil {
			t.Fatalf("Connect %d failed: %v", i, err)
		}
	}
	time.Sleep(50 * time.Millisecond)
	if n := dials.Load(); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
}

func TestStatusHub_DropsOldest(t *testing.T) {
	h := newStatusHub(2, StatusChange{State: StateDisconnected})
	ch, cancel := h.watch()
	defer cancel()

	h.publish(StatusChange{State: StateConnecting})
	h.publish(StatusChange{State: StateConnected})

	first := <-ch
	second := <-ch
	if first.State != StateConnecting || second.State != StateConnected {
		t.Errorf("got %v then %v, want connecting then connected", first.State, second.State)
	}
	late, stopLate := h.watch()
	defer stopLate()
	if got := <-late; got.State != StateConnected {
		t.Errorf("late watcher first status = %v, want connected", got.State)
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	// Cancel is idempotent.
	cancel()
}
