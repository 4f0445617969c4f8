package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ekkolabs/sentria/pkg/frames"
	"github.com/ekkolabs/sentria/pkg/pcm"
	"github.com/ekkolabs/sentria/pkg/transports"
)

// fakeBackend accepts websocket connections, records binary frames, and can
// push text messages back to the client.
type fakeBackend struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	frames   [][]byte
	accepted int32
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	fb := &fakeBackend{t: t}
	srv := httptest.NewServer(http.HandlerFunc(fb.handle))
	t.Cleanup(srv.Close)
	return fb, srv
}

func (fb *fakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := fb.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	atomic.AddInt32(&fb.accepted, 1)
	fb.mu.Lock()
	fb.conns = append(fb.conns, conn)
	fb.mu.Unlock()
	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.BinaryMessage {
			fb.mu.Lock()
			fb.frames = append(fb.frames, msg)
			fb.mu.Unlock()
		}
	}
}

func (fb *fakeBackend) connections() int32 {
	return atomic.LoadInt32(&fb.accepted)
}

func (fb *fakeBackend) send(text string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.conns) == 0 {
		fb.t.Fatalf("no connection to send on")
	}
	conn := fb.conns[len(fb.conns)-1]
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		fb.t.Fatalf("server write: %v", err)
	}
}

// trySend is for tests where the peer may already be gone.
func (fb *fakeBackend) trySend(text string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.conns) == 0 {
		return
	}
	conn := fb.conns[len(fb.conns)-1]
	_ = conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (fb *fakeBackend) receivedFrames() [][]byte {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([][]byte(nil), fb.frames...)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitForState(t *testing.T, c *Channel, want transports.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", c.State(), want)
}

func nextDataFrame(t *testing.T, c *Channel) frames.Frame {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f := <-c.Recv():
			if f.Kind() == frames.KindSystem {
				continue
			}
			return f
		case <-timeout:
			t.Fatalf("no frame received")
		}
	}
}

func TestConnectIdempotent(t *testing.T) {
	fb, srv := newFakeBackend(t)
	c := New(Config{URL: wsURL(srv)})
	defer c.Disconnect()

	for i := 0; i < 3; i++ {
		if err := c.Connect(context.Background()); err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}
	waitForState(t, c, transports.StateConnected)

	// Connecting again while connected must not open a second socket.
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect while connected: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := fb.connections(); got != 1 {
		t.Fatalf("server accepted %d connections, want 1", got)
	}
}

func TestDialFailureLandsDisconnected(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/nowhere", DialTimeoutMS: 200})

	var events []transports.StateChange
	var mu sync.Mutex
	c.AddStateListener(listenerFunc(func(ev transports.StateChange) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitForState(t, c, transports.StateDisconnected)

	mu.Lock()
	defer mu.Unlock()
	if len(events) < 2 {
		t.Fatalf("got %d state events, want connecting then disconnected", len(events))
	}
	if events[0].To != transports.StateConnecting {
		t.Fatalf("first transition to %v, want connecting", events[0].To)
	}
	if events[len(events)-1].To != transports.StateDisconnected {
		t.Fatalf("last transition to %v, want disconnected", events[len(events)-1].To)
	}
}

func TestSendForwardsAudioFrames(t *testing.T) {
	fb, srv := newFakeBackend(t)
	c := New(Config{URL: wsURL(srv)})
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitForState(t, c, transports.StateConnected)

	payload := pcm.Encode([]float32{0.5, -0.5}, 16000)
	af := frames.NewAudioFrame("s1", 1, payload, 16000, 1, nil)
	if err := c.Send(af); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := fb.receivedFrames(); len(got) == 1 {
			h, _, err := pcm.Decode(got[0])
			if err != nil {
				t.Fatalf("server-side decode: %v", err)
			}
			if h.SampleRateHz != 16000 || h.SampleCount != 2 {
				t.Fatalf("unexpected header %+v", h)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("frame never reached the server")
}

func TestSendWhileDisconnectedIsSilent(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/nowhere"})

	payload := pcm.Encode([]float32{0.1}, 16000)
	af := frames.NewAudioFrame("s1", 1, payload, 16000, 1, nil)
	if err := c.Send(af); err != nil {
		t.Fatalf("Send while disconnected = %v, want nil", err)
	}
}

func TestInboundMessagesDecoded(t *testing.T) {
	fb, srv := newFakeBackend(t)
	c := New(Config{URL: wsURL(srv)})
	defer c.Disconnect()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitForState(t, c, transports.StateConnected)

	fb.send(`{"type":"transcript","data":"hello"}`)
	f := nextDataFrame(t, c)
	tf, ok := f.(frames.TranscriptFrame)
	if !ok || tf.Text() != "hello" {
		t.Fatalf("got %T %v, want transcript hello", f, f)
	}

	fb.send(`{"type":"compliance","data":{"score":77}}`)
	f = nextDataFrame(t, c)
	cf, ok := f.(frames.ComplianceFrame)
	if !ok {
		t.Fatalf("got %T, want ComplianceFrame", f)
	}
	if p := cf.Payload(); p.Score == nil || *p.Score != 77 {
		t.Fatalf("score = %v, want 77", p.Score)
	}
}

func TestServerCloseCollapsesToDisconnected(t *testing.T) {
	fb, srv := newFakeBackend(t)
	c := New(Config{URL: wsURL(srv)})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitForState(t, c, transports.StateConnected)

	fb.mu.Lock()
	conn := fb.conns[0]
	fb.mu.Unlock()
	_ = conn.Close()

	waitForState(t, c, transports.StateDisconnected)
}

func TestDisconnectDiscardsStaleEvents(t *testing.T) {
	fb, srv := newFakeBackend(t)
	c := New(Config{URL: wsURL(srv)})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitForState(t, c, transports.StateConnected)
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	// Messages from the torn-down connection must not surface.
	fb.trySend(`{"type":"transcript","data":"stale"}`)
	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case f := <-c.Recv():
			if tf, ok := f.(frames.TranscriptFrame); ok && tf.Text() == "stale" {
				t.Fatalf("stale transcript delivered after disconnect")
			}
		default:
			return
		}
	}
}

func TestConcurrentSendAndDisconnect(t *testing.T) {
	_, srv := newFakeBackend(t)
	c := New(Config{URL: wsURL(srv)})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitForState(t, c, transports.StateConnected)

	// Senders race the teardown. Frames sent during or after Disconnect
	// must be dropped silently, never panic.
	start := make(chan struct{})
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < 200; i++ {
				payload := pcm.Encode([]float32{0.1}, 16000)
				af := frames.NewAudioFrame("s1", int64(i), payload, 16000, 1, nil)
				if err := c.Send(af); err != nil {
					t.Errorf("Send during teardown: %v", err)
					return
				}
			}
		}()
	}
	close(start)
	time.Sleep(time.Millisecond)
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	wg.Wait()
	waitForState(t, c, transports.StateDisconnected)
}

type listenerFunc func(transports.StateChange)

func (f listenerFunc) OnStateChange(ev transports.StateChange) { f(ev) }
