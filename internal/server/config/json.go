package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/flagx"
	"github.com/dmitrijs2005/perfectkey/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDriver               string         `json:"database_driver"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	JWTIssuer                    string         `json:"jwt_issuer"`
	JWTAudience                  string         `json:"jwt_audience"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	RememberMeValidityDuration   timex.Duration `json:"remember_me_validity_duration"`
	AppName                      string         `json:"app_name"`
	GatewayBaseURL               string         `json:"gateway_base_url"`
	GatewayTimeout               timex.Duration `json:"gateway_timeout"`
	DefaultHotelCode             string         `json:"default_hotel_code"`
	ResetTokenValidityDuration   timex.Duration `json:"reset_token_validity_duration"`
	SessionRetention             timex.Duration `json:"session_retention"`
	SweepInterval                timex.Duration `json:"sweep_interval"`
	RedisAddr                    string         `json:"redis_addr"`
	TwoFactorMaxAttempts         int            `json:"two_factor_max_attempts"`
	TwoFactorLockout             timex.Duration `json:"two_factor_lockout"`
	GeoLookupURL                 string         `json:"geo_lookup_url"`
	GeoLookupTimeout             timex.Duration `json:"geo_lookup_timeout"`
	LogLevel                     string         `json:"log_level"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
}

// parseJson overlays the file named by -c/-config onto config. Keys missing
// from the file keep their current value. An unreadable file or invalid JSON
// panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDriver, c.DatabaseDriver)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.JWTIssuer, c.JWTIssuer)
	setString(&config.JWTAudience, c.JWTAudience)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.RememberMeValidityDuration, c.RememberMeValidityDuration)
	setString(&config.AppName, c.AppName)
	setString(&config.GatewayBaseURL, c.GatewayBaseURL)
	setDuration(&config.GatewayTimeout, c.GatewayTimeout)
	setString(&config.DefaultHotelCode, c.DefaultHotelCode)
	setDuration(&config.ResetTokenValidityDuration, c.ResetTokenValidityDuration)
	setDuration(&config.SessionRetention, c.SessionRetention)
	setDuration(&config.SweepInterval, c.SweepInterval)
	setString(&config.RedisAddr, c.RedisAddr)
	if c.TwoFactorMaxAttempts > 0 {
		config.TwoFactorMaxAttempts = c.TwoFactorMaxAttempts
	}
	setDuration(&config.TwoFactorLockout, c.TwoFactorLockout)
	setString(&config.GeoLookupURL, c.GeoLookupURL)
	setDuration(&config.GeoLookupTimeout, c.GeoLookupTimeout)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
