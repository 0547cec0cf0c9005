package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http/httptest"
	"testing"
	"time"
)

func sign(t *testing.T, secret, payload string) string {
	t.Helper()
	enc := base64.RawURLEncoding
	head := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body := enc.EncodeToString([]byte(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(head + "." + body))
	return head + "." + body + "." + enc.EncodeToString(mac.Sum(nil))
}

func TestDevMode(t *testing.T) {
	v := NewVerifier("", "")
	r := httptest.NewRequest("GET", "/accounts", nil)
	if u, _ := v.UserID(r); u != DefaultUser {
		t.Fatalf("want %s, got %s", DefaultUser, u)
	}
	r.Header.Set("X-User-Id", "rep-7")
	if u, _ := v.UserID(r); u != "rep-7" {
		t.Fatalf("want rep-7, got %s", u)
	}
	r.Header.Set("Authorization", "Bearer alice")
	if u, _ := v.UserID(r); u != "alice" {
		t.Fatalf("bearer should win, got %s", u)
	}
}

func TestHMACMode(t *testing.T) {
	v := NewVerifier("hmac", "s3cret")
	v.now = func() time.Time { return time.Unix(1000, 0) }

	r := httptest.NewRequest("GET", "/accounts", nil)
	r.Header.Set("X-User-Id", "spoofed")
	if _, err := v.UserID(r); err != ErrUnauthorized {
		t.Fatalf("missing token should be unauthorized, got %v", err)
	}

	r.Header.Set("Authorization", "Bearer "+sign(t, "s3cret", `{"sub":"bob","exp":2000}`))
	u, err := v.UserID(r)
	if err != nil || u != "bob" {
		t.Fatalf("want bob, got %q err=%v", u, err)
	}

	for name, tok := range map[string]string{
		"wrong secret": sign(t, "other", `{"sub":"bob"}`),
		"expired":      sign(t, "s3cret", `{"sub":"bob","exp":999}`),
		"no sub":       sign(t, "s3cret", `{"name":"bob"}`),
		"garbage":      "a.b",
	} {
		if _, err := v.Verify(tok); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
