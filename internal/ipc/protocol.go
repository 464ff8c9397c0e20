// Package ipc carries commands from the CLI to the running instance over a
// per-user named pipe (a unix socket outside Windows). Each connection
// carries one newline-terminated JSON request and one JSON response.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"shiftygrid/internal/userutil"
)

// pipeNameEnv overrides the pipe name, mainly for tests and side-by-side
// instances.
const pipeNameEnv = "SHIFTYGRID_PIPE"

var pipeNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// ErrNoData is returned by DecodeData for requests without a payload.
var ErrNoData = errors.New("request has no data")

// Request is a single command sent to the running instance.
type Request struct {
	ID        string          `json:"id"`
	Command   string          `json:"command"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Response is the reply to a Request.
type Response struct {
	ID      string            `json:"id,omitempty"`
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}

// Handler executes a request and returns its response.
type Handler interface {
	Handle(req Request) Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req Request) Response

func (f HandlerFunc) Handle(req Request) Response { return f(req) }

// NewRequest builds a request with a fresh id. A non-nil data is encoded as
// the JSON payload.
func NewRequest(command string, data any) (Request, error) {
	req := Request{
		ID:        uuid.NewString(),
		Command:   command,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Request{}, fmt.Errorf("encode %s data: %w", command, err)
		}
		req.Data = raw
	}
	return req, nil
}

// DecodeData unmarshals the request payload into out.
func (r Request) DecodeData(out any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return ErrNoData
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", r.Command, err)
	}
	return nil
}

// Success builds a successful response.
func Success(message string, data map[string]string) Response {
	return Response{Success: true, Message: message, Data: data}
}

// Failure builds an error response.
func Failure(format string, args ...any) Response {
	return Response{Success: false, Message: fmt.Sprintf(format, args...)}
}

// DefaultPipeName returns the pipe name for base, suffixed with the current
// user so that instances of different users never collide. A valid
// SHIFTYGRID_PIPE environment variable takes precedence.
func DefaultPipeName(base string) string {
	if v, ok := trustedPipeNameFromEnv(); ok {
		return v
	}
	return base + "-" + userutil.Suffix()
}

func trustedPipeNameFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv(pipeNameEnv))
	if value == "" {
		return "", false
	}
	if !pipeNamePattern.MatchString(value) {
		slog.Warn("[ipc] "+pipeNameEnv+" rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

func encodeRequest(req Request) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	req.Command = strings.ToLower(strings.TrimSpace(req.Command))
	if req.Command == "" {
		return Request{}, errors.New("command is required")
	}
	return req, nil
}

func encodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
