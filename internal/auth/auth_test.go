package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestVerifyIssuedToken(t *testing.T) {
	v := NewVerifier("s3cret", false)
	tok, err := Issue("s3cret", "user-42", time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	got, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != "user-42" {
		t.Fatalf("Verify() = %q, want %q", got, "user-42")
	}
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier("s3cret", false)
	wrongKey, _ := Issue("other", "u1", time.Minute)
	expired, _ := Issue("s3cret", "u1", -time.Minute)
	noSubject, _ := Issue("s3cret", "", time.Minute)

	tests := map[string]string{
		"empty":      "",
		"garbage":    "not-a-jwt",
		"wrong key":  wrongKey,
		"expired":    expired,
		"no subject": noSubject,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(tok); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("Verify() error = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestInsecureModeUsesRawToken(t *testing.T) {
	v := NewVerifier("", true)
	got, err := v.Verify("dev-user")
	if err != nil || got != "dev-user" {
		t.Fatalf("Verify() = %q, %v; want dev-user", got, err)
	}

	strict := NewVerifier("", false)
	if _, err := strict.Verify("dev-user"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Verify() without secret error = %v, want ErrUnauthorized", err)
	}
}

func TestFromRequest(t *testing.T) {
	v := NewVerifier("", true)

	r := httptest.NewRequest("GET", "/v1/focus/sessions", nil)
	r.Header.Set("Authorization", "Bearer alice")
	if got, err := v.FromRequest(r); err != nil || got != "alice" {
		t.Fatalf("FromRequest(header) = %q, %v", got, err)
	}

	r = httptest.NewRequest("GET", "/v1/focus/ws?token=bob", nil)
	if got, err := v.FromRequest(r); err != nil || got != "bob" {
		t.Fatalf("FromRequest(query) = %q, %v", got, err)
	}

	r = httptest.NewRequest("GET", "/v1/focus/sessions", nil)
	r.Header.Set("Authorization", "Basic abc")
	if _, err := v.FromRequest(r); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("FromRequest(basic) error = %v, want ErrUnauthorized", err)
	}
}
