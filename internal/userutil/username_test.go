package userutil

import (
	"errors"
	"os/user"
	"testing"
)

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "alice", want: "alice"},
		{name: "domain account", input: `CORP\alice`, want: "CORP_alice"},
		{name: "email", input: "bob@example.org", want: "bob_example.org"},
		{name: "run of invalid characters", input: "unit user!", want: "unit_user_"},
		{name: "empty", input: "", want: "unknown"},
		{name: "whitespace", input: " \t", want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeUsername(tt.input); got != tt.want {
				t.Fatalf("SanitizeUsername(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCurrentName(t *testing.T) {
	orig := currentUserFn
	t.Cleanup(func() { currentUserFn = orig })
	currentUserFn = func() (*user.User, error) { return &user.User{Username: "account"}, nil }

	tests := []struct {
		name     string
		username string
		user     string
		lookupOK bool
		want     string
	}{
		{name: "USERNAME wins", username: "win", user: "posix", lookupOK: true, want: "win"},
		{name: "USER fallback", username: " ", user: "posix", lookupOK: true, want: "posix"},
		{name: "account database", lookupOK: true, want: "account"},
		{name: "nothing available", lookupOK: false, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("USERNAME", tt.username)
			t.Setenv("USER", tt.user)
			if tt.lookupOK {
				currentUserFn = func() (*user.User, error) { return &user.User{Username: "account"}, nil }
			} else {
				currentUserFn = func() (*user.User, error) { return nil, errors.New("no account") }
			}
			if got := CurrentName(); got != tt.want {
				t.Fatalf("CurrentName() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("suffix of missing user", func(t *testing.T) {
		t.Setenv("USERNAME", "")
		t.Setenv("USER", "")
		currentUserFn = func() (*user.User, error) { return nil, errors.New("no account") }
		if got := Suffix(); got != "unknown" {
			t.Fatalf("Suffix() = %q, want unknown", got)
		}
	})
}
