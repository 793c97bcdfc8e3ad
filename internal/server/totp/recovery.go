package totp

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"
	"slices"
	"strings"
)

const (
	DefaultRecoveryCodes = 8

	// RecoveryCodeDelimiter separates codes in the stored string form.
	RecoveryCodeDelimiter = ";"
)

// GenerateRecoveryCodes returns n codes shaped DDDDDD-DDDDDD.
func (e *Engine) GenerateRecoveryCodes(n int) ([]string, error) {
	if n <= 0 {
		n = DefaultRecoveryCodes
	}
	codes := make([]string, 0, n)
	for len(codes) < n {
		a, err := sixDigits(e.rand)
		if err != nil {
			return nil, fmt.Errorf("generate recovery codes: %w", err)
		}
		b, err := sixDigits(e.rand)
		if err != nil {
			return nil, fmt.Errorf("generate recovery codes: %w", err)
		}
		code := a + "-" + b
		if slices.Contains(codes, code) {
			continue
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// ConsumeRecoveryCode reports whether candidate is in set and, if so, returns
// a copy of set without it. set is never modified.
func ConsumeRecoveryCode(set []string, candidate string) (bool, []string) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false, set
	}

	idx := -1
	for i, c := range set {
		if subtle.ConstantTimeCompare([]byte(c), []byte(candidate)) == 1 && idx < 0 {
			idx = i
		}
	}
	if idx < 0 {
		return false, set
	}

	rest := make([]string, 0, len(set)-1)
	rest = append(rest, set[:idx]...)
	rest = append(rest, set[idx+1:]...)
	return true, rest
}

// ParseRecoveryCodes splits the stored form. Empty input yields no codes.
func ParseRecoveryCodes(stored string) []string {
	if strings.TrimSpace(stored) == "" {
		return nil
	}
	parts := strings.Split(stored, RecoveryCodeDelimiter)
	codes := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			codes = append(codes, p)
		}
	}
	return codes
}

// JoinRecoveryCodes renders codes in the stored form.
func JoinRecoveryCodes(codes []string) string {
	return strings.Join(codes, RecoveryCodeDelimiter)
}

func sixDigits(r io.Reader) (string, error) {
	n, err := rand.Int(r, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
