package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"testing"
)

func TestReadDelimitedFrame(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
		errText string
	}{
		{name: "within limit", input: `{"success":true}` + "\n", want: `{"success":true}` + "\n"},
		{name: "eof without delimiter", input: `{"success":true}`, want: `{"success":true}`},
		{name: "empty input", input: "", wantErr: io.EOF},
		{name: "oversized", input: strings.Repeat("b", maxPipeResponseBytes+1) + "\n", errText: "exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := bufio.NewReaderSize(strings.NewReader(tt.input), maxPipeResponseBytes+1)
			raw, err := readDelimitedFrame(reader, maxPipeResponseBytes)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.errText != "":
				if err == nil || !strings.Contains(err.Error(), tt.errText) {
					t.Fatalf("error = %v, want %q", err, tt.errText)
				}
			default:
				if err != nil {
					t.Fatalf("error = %v", err)
				}
				if string(raw) != tt.want {
					t.Fatalf("frame = %q, want %q", raw, tt.want)
				}
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "dial op", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, want: true},
		{name: "open op", err: &net.OpError{Op: "open", Err: errors.New("no pipe")}, want: true},
		{name: "read op", err: &net.OpError{Op: "read", Err: errors.New("reset")}, want: false},
		{name: "missing pipe", err: fmt.Errorf("connect: %w", os.ErrNotExist), want: true},
		{name: "other", err: errors.New("invalid response"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConnectionError(tt.err); got != tt.want {
				t.Fatalf("IsConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
