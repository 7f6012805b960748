package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// echoServer accepts websocket connections and passes them to handle.
type echoServer struct {
	t      *testing.T
	srv    *httptest.Server
	handle func(ctx context.Context, conn *websocket.Conn)

	mu    sync.Mutex
	conns int
}

func newEchoServer(t *testing.T, handle func(ctx context.Context, conn *websocket.Conn)) *echoServer {
	t.Helper()
	es := &echoServer{t: t, handle: handle}
	es.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		es.mu.Lock()
		es.conns++
		es.mu.Unlock()
		es.handle(r.Context(), conn)
	}))
	t.Cleanup(es.srv.Close)
	return es
}

func (es *echoServer) url() string {
	return strings.Replace(es.srv.URL, "http", "ws", 1)
}

func (es *echoServer) connCount() int {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.conns
}

func testConfig(url string) Config {
	return Config{
		URL:                  url,
		RequestTimeout:       2 * time.Second,
		ReconnectInterval:    50 * time.Millisecond,
		MaxReconnectAttempts: 3,
	}
}

func openSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func waitResult(t *testing.T, s *Session) Result {
	t.Helper()
	select {
	case res := <-s.Results():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("no result delivered")
		return Result{}
	}
}

func waitStatus(t *testing.T, s *Session, kind StatusKind) StatusEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-s.Status():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("status %v never arrived", kind)
		}
	}
}

func TestSendReceivesAudioReply(t *testing.T) {
	es := newEchoServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		reply := append([]byte("synth:"), data...)
		conn.Write(ctx, websocket.MessageBinary, reply)
	})

	s := openSession(t, testConfig(es.url()))
	waitStatus(t, s, StatusConnected)

	if err := s.Send(context.Background(), []byte("utterance")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	res := waitResult(t, s)
	if res.Err != nil {
		t.Fatalf("result error: %v", res.Err)
	}
	if string(res.Audio) != "synth:utterance" {
		t.Errorf("audio = %q", res.Audio)
	}
}

func TestSendRejectsSecondRequestInFlight(t *testing.T) {
	release := make(chan struct{})
	es := newEchoServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		<-release
		conn.Write(ctx, websocket.MessageBinary, data)
	})

	s := openSession(t, testConfig(es.url()))
	if err := s.Send(context.Background(), []byte("one")); err != nil {
		t.Fatalf("first Send: %v", err)
	}

	if err := s.Send(context.Background(), []byte("two")); !errors.Is(err, ErrRequestInFlight) {
		t.Fatalf("second Send = %v, want ErrRequestInFlight", err)
	}

	close(release)
	res := waitResult(t, s)
	if string(res.Audio) != "one" {
		t.Errorf("audio = %q, want the first utterance's reply", res.Audio)
	}

	// The slot is free again after the outcome.
	if err := s.Send(context.Background(), []byte("three")); err != nil {
		t.Errorf("Send after resolution: %v", err)
	}
}

func TestFallbackTextFrame(t *testing.T) {
	es := newEchoServer(t, func(ctx context.Context, conn *websocket.Conn) {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
		conn.Write(ctx, websocket.MessageText, []byte(`{"type":"transcription","text":"I heard you"}`))
	})

	s := openSession(t, testConfig(es.url()))
	if err := s.Send(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	res := waitResult(t, s)
	if res.FallbackText != "I heard you" {
		t.Errorf("fallback = %q", res.FallbackText)
	}
	if res.Audio != nil || res.Err != nil {
		t.Errorf("unexpected fields in %+v", res)
	}
}

func TestEmptyBinaryReplyIsTimeoutEquivalent(t *testing.T) {
	es := newEchoServer(t, func(ctx context.Context, conn *websocket.Conn) {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
		conn.Write(ctx, websocket.MessageBinary, []byte{})
	})

	s := openSession(t, testConfig(es.url()))
	if err := s.Send(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	res := waitResult(t, s)
	if !errors.Is(res.Err, ErrEmptyReply) {
		t.Errorf("err = %v, want ErrEmptyReply", res.Err)
	}
}

func TestWatchdogTimeout(t *testing.T) {
	es := newEchoServer(t, func(ctx context.Context, conn *websocket.Conn) {
		// Swallow the request and never reply.
		conn.Read(ctx)
		<-ctx.Done()
	})

	cfg := testConfig(es.url())
	cfg.RequestTimeout = 100 * time.Millisecond
	s := openSession(t, cfg)

	if err := s.Send(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	res := waitResult(t, s)
	if !errors.Is(res.Err, ErrRequestTimeout) {
		t.Fatalf("err = %v, want ErrRequestTimeout", res.Err)
	}

	// Slot must be free after expiry.
	if err := s.Send(context.Background(), []byte("y")); err != nil {
		t.Errorf("Send after timeout: %v", err)
	}
}

func TestLateReplyAfterTimeoutIsDiscarded(t *testing.T) {
	es := newEchoServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		time.Sleep(300 * time.Millisecond)
		conn.Write(ctx, websocket.MessageBinary, data)
		<-ctx.Done()
	})

	cfg := testConfig(es.url())
	cfg.RequestTimeout = 50 * time.Millisecond
	s := openSession(t, cfg)

	if err := s.Send(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	res := waitResult(t, s)
	if !errors.Is(res.Err, ErrRequestTimeout) {
		t.Fatalf("err = %v, want ErrRequestTimeout", res.Err)
	}

	// The late reply must not surface as a second Result.
	select {
	case extra := <-s.Results():
		t.Fatalf("unexpected extra result %+v", extra)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestDisconnectResolvesPendingAndReconnects(t *testing.T) {
	var first sync.Once
	es := newEchoServer(t, func(ctx context.Context, conn *websocket.Conn) {
		dropped := false
		first.Do(func() {
			// First connection: read the request, then drop the socket.
			conn.Read(ctx)
			conn.CloseNow()
			dropped = true
		})
		if dropped {
			return
		}
		// Reconnected: stay up.
		<-ctx.Done()
	})

	s := openSession(t, testConfig(es.url()))
	waitStatus(t, s, StatusConnected)

	if err := s.Send(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	res := waitResult(t, s)
	if !errors.Is(res.Err, ErrConnectionLost) {
		t.Fatalf("err = %v, want ErrConnectionLost", res.Err)
	}

	waitStatus(t, s, StatusDisconnected)
	ev := waitStatus(t, s, StatusReconnecting)
	if ev.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", ev.Attempt)
	}
	waitStatus(t, s, StatusConnected)

	if es.connCount() != 2 {
		t.Errorf("connection count = %d, want 2", es.connCount())
	}
}

func TestOpenDuringReconnectWaitSupersedesLoop(t *testing.T) {
	var first sync.Once
	es := newEchoServer(t, func(ctx context.Context, conn *websocket.Conn) {
		dropped := false
		first.Do(func() {
			// First connection: drop the socket straight away.
			conn.CloseNow()
			dropped = true
		})
		if dropped {
			return
		}
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			conn.Write(ctx, websocket.MessageBinary, data)
		}
	})

	cfg := testConfig(es.url())
	cfg.ReconnectInterval = 300 * time.Millisecond
	s := openSession(t, cfg)
	waitStatus(t, s, StatusConnected)
	waitStatus(t, s, StatusDisconnected)

	// Reopen by hand while the reconnect loop is still in its wait. The
	// loop must bow out without dialing a third connection.
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open during reconnect wait: %v", err)
	}
	waitStatus(t, s, StatusConnected)

	select {
	case ev := <-s.Status():
		if ev.Kind == StatusReconnecting {
			t.Fatalf("reconnect attempt despite live connection: %+v", ev)
		}
	case <-time.After(3 * cfg.ReconnectInterval):
	}
	if got := es.connCount(); got != 2 {
		t.Errorf("connection count = %d, want 2", got)
	}

	if err := s.Send(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Send on reopened connection: %v", err)
	}
	if res := waitResult(t, s); res.Err != nil || string(res.Audio) != "x" {
		t.Fatalf("result = %+v, want echoed audio", res)
	}
}

func TestReconnectExhaustionIsTerminal(t *testing.T) {
	es := newEchoServer(t, func(ctx context.Context, conn *websocket.Conn) {
		conn.CloseNow()
	})

	cfg := testConfig(es.url())
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Kill further dials so every reconnect attempt fails.
	es.srv.CloseClientConnections()
	es.srv.Close()

	waitStatus(t, s, StatusDisconnected)
	ev := waitStatus(t, s, StatusReconnectFailed)
	if ev.Err == nil {
		t.Error("reconnect_failed event should carry an error")
	}

	if err := s.Send(context.Background(), []byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send while down = %v, want ErrNotConnected", err)
	}
}

func TestCloseSuppressesReconnect(t *testing.T) {
	es := newEchoServer(t, func(ctx context.Context, conn *websocket.Conn) {
		<-ctx.Done()
	})

	s := openSession(t, testConfig(es.url()))
	waitStatus(t, s, StatusConnected)

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitStatus(t, s, StatusClosed)

	// No reconnect attempts after a caller-initiated close.
	select {
	case ev := <-s.Status():
		if ev.Kind == StatusReconnecting {
			t.Fatalf("unexpected reconnect after Close: %+v", ev)
		}
	case <-time.After(300 * time.Millisecond):
	}

	if err := s.Send(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestSendBeforeOpen(t *testing.T) {
	s, err := NewSession(Config{URL: "ws://localhost:1/ws"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Send(context.Background(), []byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestNewSessionRequiresURL(t *testing.T) {
	if _, err := NewSession(Config{}); err == nil {
		t.Fatal("expected error for empty URL")
	}
}
