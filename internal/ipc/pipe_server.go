package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"shiftygrid/internal/workerutil"
)

const (
	defaultPipeConnTimeout              = 30 * time.Second
	maxPipeRequestBytes                 = 64 * 1024
	defaultPipeMaxConcurrentConnections = 16
	connSlotAcquireTimeout              = 5 * time.Second
	maxAcceptFailures                   = 10
	acceptRetryDelay                    = 500 * time.Millisecond
)

// Server answers requests from CLI clients.
type Server struct {
	pipeName string
	handler  Handler

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listener  net.Listener
	started   bool
	wg        sync.WaitGroup
	connSlots chan struct{}
}

// NewServer constructs a Server listening on pipeName once started.
func NewServer(pipeName string, handler Handler) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		pipeName:  pipeName,
		handler:   handler,
		ctx:       ctx,
		cancel:    cancel,
		connSlots: make(chan struct{}, defaultPipeMaxConcurrentConnections),
	}
}

// PipeName returns the configured pipe name.
func (s *Server) PipeName() string {
	return s.pipeName
}

// Start begins listening on the platform pipe.
func (s *Server) Start() error {
	if s.pipeName == "" {
		return errors.New("pipe server requires a pipe name")
	}
	address := pipeAddress(s.pipeName)
	listener, err := listenPipe(address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", address, err)
	}
	if err := s.serve(listener); err != nil {
		listener.Close()
		return err
	}
	slog.Info("[ipc] server listening", "address", address)
	return nil
}

func (s *Server) serve(listener net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("pipe server already started")
	}
	if s.handler == nil {
		return errors.New("pipe server requires a handler")
	}
	s.listener = listener
	s.started = true
	s.wg.Go(s.acceptLoop)
	return nil
}

// Stop closes the listener and waits for in-flight requests.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancel()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	if listener != nil {
		if err := listener.Close(); err != nil {
			slog.Warn("[ipc] failed to close pipe listener during shutdown", "error", err)
		}
	}
	s.wg.Wait()
	return nil
}

func (s *Server) acceptLoop() {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	failures := 0
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			failures++
			slog.Debug("[ipc] accept error", "error", err, "failures", failures)
			if failures > maxAcceptFailures {
				// Back off on a listener that keeps failing.
				time.Sleep(acceptRetryDelay)
			}
			continue
		}
		failures = 0

		if !s.acquireConnectionSlot() {
			s.writeResponse(conn, Failure("server busy, try again later"))
			_ = conn.Close()
			continue
		}
		s.wg.Go(func() {
			defer func() { <-s.connSlots }()
			s.handleConnection(conn)
		})
	}
}

// handleConnection serves one request on conn within defaultPipeConnTimeout.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(defaultPipeConnTimeout)); err != nil {
		slog.Warn("[ipc] failed to set connection deadline", "error", err)
		return
	}

	reader := bufio.NewReaderSize(conn, maxPipeRequestBytes+1)
	rawReq, err := readDelimitedFrame(reader, maxPipeRequestBytes)
	if errors.Is(err, io.EOF) {
		slog.Debug("[ipc] client disconnected without sending data")
		return
	}
	if err != nil {
		s.writeResponse(conn, Failure("invalid request: %v", err))
		return
	}

	req, err := decodeRequest(rawReq)
	if err != nil {
		s.writeResponse(conn, Failure("invalid request: %v", err))
		return
	}
	slog.Debug("[ipc] request received", "command", req.Command, "id", req.ID)

	var resp Response
	if !workerutil.SafeCall("ipc command "+req.Command, func() { resp = s.handler.Handle(req) }) {
		resp = Failure("request execution failed: %s", req.Command)
	}
	resp.ID = req.ID
	s.writeResponse(conn, resp)
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	raw, err := encodeResponse(resp)
	if err != nil {
		slog.Warn("[ipc] failed to encode response", "error", err)
		raw = []byte(`{"success":false,"message":"internal encode error"}`)
	}
	if _, err := conn.Write(append(raw, '\n')); err != nil {
		slog.Debug("[ipc] failed to write response", "error", err)
	}
}

// acquireConnectionSlot waits up to connSlotAcquireTimeout for a free slot.
func (s *Server) acquireConnectionSlot() bool {
	timer := time.NewTimer(connSlotAcquireTimeout)
	defer timer.Stop()
	select {
	case s.connSlots <- struct{}{}:
		return true
	case <-timer.C:
		slog.Warn("[ipc] all connection slots busy, rejecting client", "slots", cap(s.connSlots))
		return false
	case <-s.ctx.Done():
		return false
	}
}

// readDelimitedFrame reads one newline-terminated frame of at most maxBytes.
// A final frame without the delimiter is accepted at EOF.
func readDelimitedFrame(reader *bufio.Reader, maxBytes int) ([]byte, error) {
	raw, err := reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("frame exceeds %d bytes", maxBytes)
	}
	if errors.Is(err, io.EOF) {
		if len(raw) == 0 {
			return nil, io.EOF
		}
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}
