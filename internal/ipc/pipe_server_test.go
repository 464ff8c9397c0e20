package ipc

import (
	"bufio"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// startTCPServer serves handler on a loopback listener and routes Send to it.
func startTCPServer(t *testing.T, handler Handler) *Server {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer("test", handler)
	if err := srv.serve(listener); err != nil {
		t.Fatalf("serve: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })

	addr := listener.Addr().String()
	origDial := dialFn
	dialFn = func(string, time.Duration) (net.Conn, error) { return net.Dial("tcp", addr) }
	t.Cleanup(func() { dialFn = origDial })
	return srv
}

func TestServerRoundTrip(t *testing.T) {
	var calls atomic.Int32
	startTCPServer(t, HandlerFunc(func(req Request) Response {
		calls.Add(1)
		var text string
		if err := req.DecodeData(&text); err != nil {
			return Failure("no message provided")
		}
		return Success("Message displayed: "+text, map[string]string{"command": req.Command})
	}))

	resp, err := Call("test", "Message", "hi there")
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !resp.Success || resp.Message != "Message displayed: hi there" || resp.Data["command"] != "message" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.ID == "" {
		t.Fatal("response id not echoed")
	}

	resp, err = Call("test", "message", nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if resp.Success || resp.Message != "no message provided" {
		t.Fatalf("response = %+v", resp)
	}
	if calls.Load() != 2 {
		t.Fatalf("handler calls = %d, want 2", calls.Load())
	}
}

func TestServerRecoversHandlerPanic(t *testing.T) {
	startTCPServer(t, HandlerFunc(func(Request) Response { panic("handler bug") }))

	resp, err := Call("test", "status", nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if resp.Success || !strings.Contains(resp.Message, "request execution failed") {
		t.Fatalf("response = %+v", resp)
	}

	// The server keeps serving after a panic.
	if _, err := Call("test", "status", nil); err != nil {
		t.Fatalf("second Call() error = %v", err)
	}
}

func TestServerRejectsInvalidRequests(t *testing.T) {
	startTCPServer(t, HandlerFunc(func(Request) Response { return Success("ok", nil) }))

	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "status\n"},
		{name: "missing command", payload: `{"id":"x"}` + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := dialFn("", time.Second)
			if err != nil {
				t.Fatal(err)
			}
			defer conn.Close()
			if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
				t.Fatal(err)
			}
			if _, err := conn.Write([]byte(tt.payload)); err != nil {
				t.Fatal(err)
			}
			raw, err := bufio.NewReader(conn).ReadString('\n')
			if err != nil {
				t.Fatalf("read response: %v", err)
			}
			resp, err := decodeResponse([]byte(raw))
			if err != nil {
				t.Fatal(err)
			}
			if resp.Success || !strings.Contains(resp.Message, "invalid request") {
				t.Fatalf("response = %+v", resp)
			}
		})
	}
}

func TestServerLifecycle(t *testing.T) {
	srv := NewServer("test", nil)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()
	if err := srv.serve(listener); err == nil {
		t.Fatal("serve() without handler expected error")
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop() on idle server = %v", err)
	}

	srv = startTCPServer(t, HandlerFunc(func(Request) Response { return Success("ok", nil) }))
	if err := srv.serve(listener); err == nil {
		t.Fatal("second serve() expected error")
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("second Stop() = %v", err)
	}
	if _, err := Call("test", "status", nil); !IsConnectionError(err) {
		t.Fatalf("Call() after Stop error = %v, want connection error", err)
	}
}
