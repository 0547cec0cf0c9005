// Package auth resolves the user that owns a request.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultUser owns requests that carry no identity in dev mode.
const DefaultUser = "demo"

var ErrUnauthorized = errors.New("unauthorized")

// Verifier maps a request to a user id.
// Supports modes: dev (bearer token or X-User-Id is the user id), hmac (HS256 JWT, user from sub).
type Verifier struct {
	Mode       string
	HMACSecret []byte
	UserClaim  string

	now func() time.Time
}

func NewVerifier(mode, secret string) *Verifier {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{Mode: mode, HMACSecret: []byte(secret), UserClaim: "sub", now: time.Now}
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// UserID returns the owning user for r.
func (v *Verifier) UserID(r *http.Request) (string, error) {
	tok := bearer(r)
	if v.Mode == "dev" {
		if tok != "" {
			return tok, nil
		}
		if u := strings.TrimSpace(r.Header.Get("X-User-Id")); u != "" {
			return u, nil
		}
		return DefaultUser, nil
	}
	if tok == "" {
		return "", ErrUnauthorized
	}
	return v.Verify(tok)
}

// Verify checks an HS256 token and returns its user claim.
func (v *Verifier) Verify(token string) (string, error) {
	if v.Mode != "hmac" {
		return "", errors.New("unsupported auth mode")
	}
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return "", errors.New("invalid JWT")
	}
	headerJSON, err := b64urlDecode(segs[0])
	if err != nil {
		return "", err
	}
	payloadJSON, err := b64urlDecode(segs[1])
	if err != nil {
		return "", err
	}
	sig, err := b64urlDecode(segs[2])
	if err != nil {
		return "", err
	}
	var hdr struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return "", err
	}
	if hdr.Alg != "HS256" {
		return "", errors.New("unsupported alg for hmac")
	}
	mac := hmac.New(sha256.New, v.HMACSecret)
	mac.Write([]byte(segs[0] + "." + segs[1]))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return "", errors.New("bad signature")
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return "", err
	}
	if exp, ok := claims["exp"].(float64); ok && v.now().Unix() >= int64(exp) {
		return "", errors.New("token expired")
	}
	user, _ := claims[v.UserClaim].(string)
	if user == "" {
		return "", errors.New("missing user claim")
	}
	return user, nil
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }
