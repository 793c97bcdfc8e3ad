package totp

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/base32x"
	"github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 6238 appendix B seed for SHA1.
var rfcSecret = base32x.Encode([]byte("12345678901234567890"))

func TestCodeAt_RFC6238Vectors(t *testing.T) {
	e := NewEngine("PerfectKey")

	tests := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}
	for _, tt := range tests {
		got, err := e.CodeAt(rfcSecret, time.Unix(tt.unix, 0))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "t=%d", tt.unix)
	}
}

func TestCodeAt_MatchesIndependentImplementation(t *testing.T) {
	e := NewEngine("PerfectKey")
	secret, err := e.NewSecret()
	require.NoError(t, err)

	for _, at := range []time.Time{time.Unix(0, 0), time.Unix(1700000000, 0), time.Now()} {
		want, err := pqtotp.GenerateCodeCustom(secret, at, pqtotp.ValidateOpts{
			Period:    Period,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		require.NoError(t, err)

		got, err := e.CodeAt(secret, at)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestValidateCode_Tolerance(t *testing.T) {
	e := NewEngine("PerfectKey")
	secret, err := e.NewSecret()
	require.NoError(t, err)

	base := time.Unix(1700000010, 0) // start of a step
	code, err := e.CodeAt(secret, base)
	require.NoError(t, err)

	step := time.Duration(Period) * time.Second
	assert.True(t, e.ValidateCodeAt(secret, code, base.Add(-step), DefaultTolerance), "T-1")
	assert.True(t, e.ValidateCodeAt(secret, code, base, DefaultTolerance), "T")
	assert.True(t, e.ValidateCodeAt(secret, code, base.Add(step), DefaultTolerance), "T+1")
	assert.False(t, e.ValidateCodeAt(secret, code, base.Add(2*step), DefaultTolerance), "T+2")
	assert.False(t, e.ValidateCodeAt(secret, code, base.Add(-2*step), DefaultTolerance), "T-2")
}

func TestValidateCode_UsesClock(t *testing.T) {
	now := time.Unix(1234567890, 0)
	e := NewEngine("PerfectKey", WithClock(func() time.Time { return now }))

	assert.True(t, e.ValidateCode(rfcSecret, "005924", DefaultTolerance))
	assert.False(t, e.ValidateCode(rfcSecret, "005925", DefaultTolerance))
}

func TestValidateCode_RejectsMalformedInput(t *testing.T) {
	e := NewEngine("PerfectKey")
	at := time.Unix(59, 0)

	for _, code := range []string{"", "28708", "2870822", "28708a", " 287082", "287-82"} {
		assert.False(t, e.ValidateCodeAt(rfcSecret, code, at, DefaultTolerance), "code %q", code)
	}
	assert.False(t, e.ValidateCodeAt("not base32!", "287082", at, DefaultTolerance))
	assert.False(t, e.ValidateCodeAt("", "287082", at, DefaultTolerance))
}

func TestGenerateSecret_SizeAndEntropySource(t *testing.T) {
	e := NewEngine("PerfectKey")
	a, err := e.GenerateSecret()
	require.NoError(t, err)
	b, err := e.GenerateSecret()
	require.NoError(t, err)

	assert.Len(t, a, SecretSize)
	assert.NotEqual(t, a, b)

	short := NewEngine("PerfectKey", WithRand(bytes.NewReader([]byte{1, 2, 3})))
	_, err = short.GenerateSecret()
	assert.Error(t, err)
}

func TestBuildAuthURI_Format(t *testing.T) {
	uri := BuildAuthURI("Perfect Key", "bob@example.com", "JBSWY3DPEHPK3PXP")

	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/Perfect%20Key:bob%40example.com?"))
	assert.Contains(t, uri, "secret=JBSWY3DPEHPK3PXP&issuer=Perfect%20Key&algorithm=SHA1&digits=6&period=30")

	key, err := otp.NewKeyFromURL(uri)
	require.NoError(t, err)
	assert.Equal(t, "totp", key.Type())
	assert.Equal(t, "Perfect Key", key.Issuer())
	assert.Equal(t, "bob@example.com", key.AccountName())
	assert.Equal(t, "JBSWY3DPEHPK3PXP", key.Secret())
	assert.Equal(t, uint64(30), key.Period())
	assert.Equal(t, otp.DigitsSix, key.Digits())
}
