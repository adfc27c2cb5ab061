package mockpeer

import (
	"errors"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startPeer(t *testing.T) (*Server, string) {
	t.Helper()
	s := NewServer(Config{Interval: 10 * time.Millisecond, Span: 10, Step: 10}, nil)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readInt(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		t.Fatalf("payload %q is not an integer", data)
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_PushesNumbersInWindow(t *testing.T) {
	_, url := startPeer(t)
	conn := dial(t, url)

	for i := 0; i < 5; i++ {
		if n := readInt(t, conn); n < 0 || n > 10 {
			t.Errorf("pushed %d, want value in [0, 10]", n)
		}
	}
}

func TestServer_ClientCloseSlidesWindow(t *testing.T) {
	s, url := startPeer(t)

	first := dial(t, url)
	readInt(t, first)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	if err := first.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("write close: %v", err)
	}

	waitFor(t, "window to slide", func() bool { return s.Window() == 10 })
	waitFor(t, "connection to be released", func() bool { return s.Conns() == 0 })

	second := dial(t, url)
	for i := 0; i < 3; i++ {
		if n := readInt(t, second); n < 10 || n > 20 {
			t.Errorf("pushed %d after slide, want value in [10, 20]", n)
		}
	}
}

func TestServer_CloseAll(t *testing.T) {
	s, url := startPeer(t)
	conn := dial(t, url)
	readInt(t, conn)

	s.CloseAll()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if !errors.As(err, &ce) {
			t.Fatalf("read error = %v, want close error", err)
		}
		if ce.Code != websocket.CloseNormalClosure || ce.Text != ServerCloseReason {
			t.Errorf("close = %d %q, want 1000 %q", ce.Code, ce.Text, ServerCloseReason)
		}
		break
	}
}
