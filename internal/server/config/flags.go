package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/perfectkey/internal/flagx"
)

var knownFlags = []string{
	"-a", "-d", "-driver", "-s", "-t", "-r", "-app", "-gw", "-hotel", "-redis", "-l",
	"-u", "-p", "-b", "-g", "-e",
}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string       gRPC bind address (e.g., ":50051")
//	-d string       database DSN
//	-driver string  database driver: pgx or sqlite
//	-s string       JWT HMAC secret key
//	-t int          access token validity, minutes
//	-r int          refresh token validity, minutes
//	-app string     application name shown in authenticator apps
//	-gw string      identity gateway base URL
//	-hotel string   default hotel code
//	-redis string   redis address for two-factor attempt limiting
//	-l string       log level
//	-u / -p / -b / -g / -e   S3 user, password, bucket, region, endpoint
//
// Arguments are filtered through flagx.FilterArgs first so -c/-config and
// flags owned by other components do not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.DatabaseDriver, "driver", config.DatabaseDriver, "database driver (pgx|sqlite)")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")

	fs.StringVar(&config.AppName, "app", config.AppName, "application name for authenticator apps")
	fs.StringVar(&config.GatewayBaseURL, "gw", config.GatewayBaseURL, "identity gateway base URL")
	fs.StringVar(&config.DefaultHotelCode, "hotel", config.DefaultHotelCode, "default hotel code")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
}
