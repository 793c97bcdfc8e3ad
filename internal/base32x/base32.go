// Package base32x encodes TOTP secrets with the RFC 4648 base32 alphabet.
//
// Encoded text never carries '=' padding, which is what authenticator apps
// expect in otpauth URIs. Decoding is forgiving about presentation: letters
// may be in either case and the spaces or dashes users add when typing a
// secret by hand are ignored.
package base32x

import (
	"encoding/base32"
	"errors"
	"strings"
)

// ErrInvalidEncoding is returned when the input contains a character outside
// the base32 alphabet or has an impossible length.
var ErrInvalidEncoding = errors.New("invalid base32 encoding")

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Encode returns b as unpadded upper-case base32.
func Encode(b []byte) string {
	return encoding.EncodeToString(b)
}

// Decode parses s after stripping spaces and dashes and upper-casing it.
func Decode(s string) ([]byte, error) {
	clean := normalize(s)
	for i := 0; i < len(clean); i++ {
		c := clean[i]
		if (c < 'A' || c > 'Z') && (c < '2' || c > '7') {
			return nil, ErrInvalidEncoding
		}
	}

	b, err := encoding.DecodeString(clean)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	return b, nil
}

func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ' ' || r == '-':
			continue
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
