// Package totp implements RFC 6238 time-based one-time passwords and the
// single-use recovery codes that back them up.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/base32x"
)

const (
	SecretSize       = 20
	Digits           = 6
	Period           = 30
	DefaultTolerance = 1
)

// Engine computes and validates codes. The zero value is not usable; build
// one with NewEngine.
type Engine struct {
	issuer string
	now    func() time.Time
	rand   io.Reader
}

type Option func(*Engine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRand replaces crypto/rand as the entropy source.
func WithRand(r io.Reader) Option {
	return func(e *Engine) { e.rand = r }
}

// NewEngine builds an engine whose setup URIs name issuer.
func NewEngine(issuer string, opts ...Option) *Engine {
	e := &Engine{issuer: issuer, now: time.Now, rand: rand.Reader}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Issuer() string { return e.issuer }

// GenerateSecret returns a fresh 160-bit key.
func (e *Engine) GenerateSecret() ([]byte, error) {
	b := make([]byte, SecretSize)
	if _, err := io.ReadFull(e.rand, b); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	return b, nil
}

// NewSecret returns a fresh key already base32 encoded for storage.
func (e *Engine) NewSecret() (string, error) {
	b, err := e.GenerateSecret()
	if err != nil {
		return "", err
	}
	return base32x.Encode(b), nil
}

// ValidateCode checks code against the current time step and tolerance steps
// either side of it.
func (e *Engine) ValidateCode(secret, code string, tolerance int) bool {
	return e.ValidateCodeAt(secret, code, e.now(), tolerance)
}

// ValidateCodeAt is ValidateCode against an explicit instant.
func (e *Engine) ValidateCodeAt(secret, code string, at time.Time, tolerance int) bool {
	if !isCode(code) {
		return false
	}
	key, err := base32x.Decode(secret)
	if err != nil || len(key) == 0 {
		return false
	}
	if tolerance < 0 {
		tolerance = 0
	}

	step := at.Unix() / Period
	for i := -int64(tolerance); i <= int64(tolerance); i++ {
		counter := step + i
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotp(key, uint64(counter))), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

// CodeAt returns the code for the time step containing at.
func (e *Engine) CodeAt(secret string, at time.Time) (string, error) {
	key, err := base32x.Decode(secret)
	if err != nil {
		return "", err
	}
	return hotp(key, uint64(at.Unix()/Period)), nil
}

// BuildAuthURI renders the otpauth:// URI authenticator apps scan.
func BuildAuthURI(issuer, email, secret string) string {
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&algorithm=SHA1&digits=%d&period=%d",
		escape(issuer), escape(email), secret, escape(issuer), Digits, Period)
}

// AuthURI is BuildAuthURI with the engine's issuer.
func (e *Engine) AuthURI(email, secret string) string {
	return BuildAuthURI(e.issuer, email, secret)
}

func hotp(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%0*d", Digits, bin%1_000_000)
}

func isCode(code string) bool {
	if len(code) != Digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
