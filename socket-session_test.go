package puckroom

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// setupTestSession creates a SocketSession over net.Pipe. It returns the session, the client
// side of the pipe and the messages channel, and closes everything when the test ends.
func setupTestSession[PlayerId comparable](t *testing.T, referenceID PlayerId, opts SessionOptions) (*SocketSession[PlayerId], net.Conn, chan SocketMessage[PlayerId]) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	messages := make(chan SocketMessage[PlayerId], 10)
	stop := make(chan struct{})
	session := NewSocketSession(serverConn, referenceID, messages, stop, opts)

	t.Cleanup(func() {
		session.Close()
		_ = clientConn.Close()
		close(stop)
	})

	return session, clientConn, messages
}

func readServerFrame(t *testing.T, conn net.Conn) ws.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	f, err := ws.ReadFrame(conn)
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	return f
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the session loops to exit")
	}
}

func TestNewSocketSession(t *testing.T) {
	t.Run("should fill unset options from the defaults", func(t *testing.T) {
		session, _, _ := setupTestSession(t, "player1", SessionOptions{})

		d := DefaultSessionOptions()
		if session.opts.WriteTimeout != d.WriteTimeout || session.opts.PingPeriod != d.PingPeriod {
			t.Errorf("unexpected options %+v", session.opts)
		}
		if cap(session.send) != d.QueueSize {
			t.Errorf("expected queue size %d, got %d", d.QueueSize, cap(session.send))
		}
		if session.ReferenceID() != "player1" {
			t.Errorf("expected referenceID player1, got %v", session.ReferenceID())
		}
	})
}

func TestSocketSession_ReadLoop(t *testing.T) {
	t.Run("should read a message and forward it to the messages channel", func(t *testing.T) {
		session, clientConn, messages := setupTestSession(t, "player1", SessionOptions{})

		testMessage := []byte(`{"t":"ping","p":{}}`)
		if err := wsutil.WriteClientText(clientConn, testMessage); err != nil {
			t.Fatalf("Failed to write client message: %v", err)
		}

		select {
		case msg := <-messages:
			if msg.Type != Message {
				t.Errorf("Expected message type to be Message, got %v", msg.Type)
			}
			if !bytes.Equal(msg.Message, testMessage) {
				t.Errorf("Expected message to be '%s', got '%s'", testMessage, msg.Message)
			}
			if msg.ReferenceID != "player1" {
				t.Errorf("Expected referenceID to be 'player1', got '%v'", msg.ReferenceID)
			}
			if msg.Session != SocketSessioner[string](session) {
				t.Error("Expected the message to carry its session")
			}
		case <-time.After(1 * time.Second):
			t.Fatal("Timed out waiting for message from ReadLoop")
		}
	})

	t.Run("should send a disconnect message on connection close", func(t *testing.T) {
		session, clientConn, messages := setupTestSession(t, "player2", SessionOptions{})

		_ = clientConn.Close()

		select {
		case msg := <-messages:
			if msg.Type != Disconnect {
				t.Errorf("Expected message type to be Disconnect, got %v", msg.Type)
			}
			if msg.ReferenceID != "player2" {
				t.Errorf("Expected referenceID to be 'player2', got '%v'", msg.ReferenceID)
			}
		case <-time.After(1 * time.Second):
			t.Fatal("Timed out waiting for disconnect message")
		}
		waitDone(t, session.Done())
	})

	t.Run("should not block once the owner has stopped", func(t *testing.T) {
		serverConn, clientConn := net.Pipe()
		defer clientConn.Close()
		messages := make(chan SocketMessage[string])
		stop := make(chan struct{})
		session := NewSocketSession(serverConn, "player3", messages, stop, SessionOptions{})

		close(stop)
		_ = wsutil.WriteClientText(clientConn, []byte("late"))

		waitDone(t, session.Done())
	})
}

func TestSocketSession_WriteLoop(t *testing.T) {
	t.Run("should write text frames by default", func(t *testing.T) {
		session, clientConn, _ := setupTestSession(t, "player3", SessionOptions{})

		testMessage := []byte("hello from server")
		session.Send(testMessage)

		f := readServerFrame(t, clientConn)
		if f.Header.OpCode != ws.OpText {
			t.Errorf("Expected OpCode to be OpText, got %v", f.Header.OpCode)
		}
		if !bytes.Equal(f.Payload, testMessage) {
			t.Errorf("Expected message to be '%s', got '%s'", testMessage, f.Payload)
		}
	})

	t.Run("should write binary frames for binary codecs", func(t *testing.T) {
		session, clientConn, _ := setupTestSession(t, "player3", SessionOptions{Binary: true})

		session.Send([]byte{0x82, 0xa1, 0x74})

		f := readServerFrame(t, clientConn)
		if f.Header.OpCode != ws.OpBinary {
			t.Errorf("Expected OpCode to be OpBinary, got %v", f.Header.OpCode)
		}
	})

	t.Run("should ping periodically", func(t *testing.T) {
		_, clientConn, _ := setupTestSession(t, "player3", SessionOptions{PingPeriod: 20 * time.Millisecond})

		f := readServerFrame(t, clientConn)
		if f.Header.OpCode != ws.OpPing {
			t.Errorf("Expected a ping frame, got %v", f.Header.OpCode)
		}
	})

	t.Run("should drop a client that does not read", func(t *testing.T) {
		session, _, messages := setupTestSession(t, "player3", SessionOptions{WriteTimeout: 20 * time.Millisecond})

		session.Send([]byte("nobody is listening"))

		select {
		case msg := <-messages:
			if msg.Type != Disconnect {
				t.Errorf("Expected Disconnect, got %v", msg.Type)
			}
		case <-time.After(1 * time.Second):
			t.Fatal("Timed out waiting for the write deadline")
		}
		waitDone(t, session.Done())
	})
}

func TestSocketSession_Send(t *testing.T) {
	t.Run("should drop messages instead of blocking when the queue is full", func(t *testing.T) {
		session, _, _ := setupTestSession(t, "player4", SessionOptions{QueueSize: 1})

		for range 5 {
			session.Send([]byte("x"))
		}
		if session.Dropped() < 3 {
			t.Fatalf("expected at least 3 dropped messages, got %d", session.Dropped())
		}
	})

	t.Run("should ignore sends after close", func(t *testing.T) {
		session, _, _ := setupTestSession(t, "player4", SessionOptions{})
		session.Close()
		session.Send([]byte("late"))
		if session.Dropped() != 0 {
			t.Fatalf("expected nothing counted as dropped, got %d", session.Dropped())
		}
	})
}

func TestSocketSession_Close(t *testing.T) {
	t.Run("should flush queued messages before the close frame", func(t *testing.T) {
		session, clientConn, _ := setupTestSession(t, "player5", SessionOptions{})

		session.Send([]byte("one"))
		session.Send([]byte("two"))
		session.Close()
		session.Close()

		for _, want := range []string{"one", "two"} {
			f := readServerFrame(t, clientConn)
			if f.Header.OpCode != ws.OpText || string(f.Payload) != want {
				t.Fatalf("expected text %q, got %v %q", want, f.Header.OpCode, f.Payload)
			}
		}
		f := readServerFrame(t, clientConn)
		if f.Header.OpCode != ws.OpClose {
			t.Fatalf("expected a close frame, got %v", f.Header.OpCode)
		}
		code, _ := ws.ParseCloseFrameData(f.Payload)
		if code != ws.StatusNormalClosure {
			t.Errorf("expected normal closure, got %v", code)
		}
		waitDone(t, session.Done())
	})
}

func Test_unregisterMessage(t *testing.T) {
	t.Run("should create a correct disconnect message", func(t *testing.T) {
		session := &SocketSession[string]{
			referenceID: "test-player",
		}

		msg := session.unregisterMessage()

		if msg.Type != Disconnect {
			t.Errorf("Expected message type to be Disconnect, got %v", msg.Type)
		}
		if msg.ReferenceID != "test-player" {
			t.Errorf("Expected referenceID to be 'test-player', got '%v'", msg.ReferenceID)
		}
		if msg.Message != nil {
			t.Errorf("Expected Message field to be nil, got %v", msg.Message)
		}
	})
}
