package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr_grpc":              "www.example:9000",
		"database_driver":                 "sqlite",
		"database_dsn":                    "perfectkey.db",
		"secret_key":                      "my_secret_key",
		"jwt_issuer":                      "pk-test",
		"access_token_validity_duration":  "15m",
		"refresh_token_validity_duration": "72h",
		"gateway_base_url":                "https://gw.example",
		"gateway_timeout":                 "2s",
		"session_retention":               "240h",
		"redis_addr":                      "127.0.0.1:6379",
		"two_factor_max_attempts":         3,
		"geo_lookup_timeout":              1000000000,
		"s3_bucket":                       "bucket",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrGRPC)
		assert.Equal(t, "sqlite", cfg.DatabaseDriver)
		assert.Equal(t, "perfectkey.db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, "pk-test", cfg.JWTIssuer)
		assert.Equal(t, 15*time.Minute, cfg.AccessTokenValidityDuration)
		assert.Equal(t, 72*time.Hour, cfg.RefreshTokenValidityDuration)
		assert.Equal(t, "https://gw.example", cfg.GatewayBaseURL)
		assert.Equal(t, 2*time.Second, cfg.GatewayTimeout)
		assert.Equal(t, 240*time.Hour, cfg.SessionRetention)
		assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
		assert.Equal(t, 3, cfg.TwoFactorMaxAttempts)
		assert.Equal(t, time.Second, cfg.GeoLookupTimeout)
		assert.Equal(t, "bucket", cfg.S3Bucket)
	})

	t.Run("keys missing from the file keep defaults", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "perfectkey-clients", cfg.JWTAudience)
		assert.Equal(t, "PERFECT.KEY", cfg.DefaultHotelCode)
		assert.Equal(t, 5*time.Minute, cfg.TwoFactorLockout)
		assert.Equal(t, "us-east-1", cfg.S3Region)
	})

	t.Run("no config flag leaves config untouched", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{EndpointAddrGRPC: "defaults:1234", SecretKey: "key", SweepInterval: time.Minute}
		parseJson(cfg)

		assert.Equal(t, &Config{EndpointAddrGRPC: "defaults:1234", SecretKey: "key", SweepInterval: time.Minute}, cfg)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}
		require.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", filepath.Join(dir, "absent.json")}
		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
