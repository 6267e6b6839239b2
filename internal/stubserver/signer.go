package stubserver

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	errMissingSignature = errors.New("missing signature")
	errInvalidSignature = errors.New("invalid signature")
	errURLExpired       = errors.New("url expired")
)

// signer generates and validates HMAC-SHA256 signed storage URLs. The
// memory blob store uses it to emulate presigned object URLs.
type signer struct {
	secret []byte
	expiry time.Duration
}

func newSigner(secret []byte, expiry time.Duration) *signer {
	return &signer{secret: secret, expiry: expiry}
}

// signURL appends signature and expires query parameters to path.
func (s *signer) signURL(method, path string) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("signer has no secret")
	}
	expiresAt := time.Now().Add(s.expiry).Unix()
	sig := s.signature(method, path, expiresAt)
	return fmt.Sprintf("%s?signature=%s&expires=%d", path, sig, expiresAt), nil
}

// validate checks the signature and expiry of an incoming storage
// request.
func (s *signer) validate(r *http.Request) error {
	query := r.URL.Query()
	sig := query.Get("signature")
	if sig == "" {
		return errMissingSignature
	}

	expiresAt, err := strconv.ParseInt(query.Get("expires"), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expiration: %w", err)
	}
	if time.Now().Unix() > expiresAt {
		return errURLExpired
	}

	expected := s.signature(r.Method, r.URL.Path, expiresAt)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return errInvalidSignature
	}
	return nil
}

func (s *signer) signature(method, path string, expiresAt int64) string {
	h := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(h, "%s\n%s\n%d", method, path, expiresAt)
	return hex.EncodeToString(h.Sum(nil))
}
