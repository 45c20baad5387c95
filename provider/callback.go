package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
)

var (
	ErrMissingSecret     = errors.New("callback secret not configured")
	ErrInvalidSignature  = errors.New("invalid callback signature")
	ErrInvalidCallbackID = errors.New("invalid callback reference")
)

// CallbackSigner binds each payment's callback URL to a per-payment reference
// with an HMAC-SHA256 signature so the gateway's notification can be verified.
type CallbackSigner struct {
	secret []byte
}

func NewCallbackSigner(secret string) (*CallbackSigner, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &CallbackSigner{secret: []byte(secret)}, nil
}

// Sign returns the hex signature for ref
func (s *CallbackSigner) Sign(ref string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(ref))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks sig against ref in constant time
func (s *CallbackSigner) Verify(ref, sig string) error {
	if ref == "" {
		return ErrInvalidCallbackID
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(ref))
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// URL appends ref and its signature to base
func (s *CallbackSigner) URL(base, ref string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid callback base URL %q", base)
	}

	q := u.Query()
	q.Set("ref", ref)
	q.Set("sig", s.Sign(ref))
	u.RawQuery = q.Encode()

	return u.String(), nil
}
