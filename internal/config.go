package internal

import (
	"fmt"
	"time"
)

const (
	StoreBadger   = "badger"
	StorePostgres = "postgres"
)

type Config struct {
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,default=50051"`
	HTTPPort             int           `env:"HTTP_PORT,default=8080"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	StoreDriver          string        `env:"STORE_DRIVER,default=badger"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,default=./data/badger"`
	DatabaseDSN          string        `env:"DATABASE_DSN"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH"`
	BufferSize           int           `env:"BUFFER_SIZE,required=true"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	BufferTimeout        time.Duration `env:"BUFFER_TIMEOUT,default=1s"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=20s"`
	PongTimeout          time.Duration `env:"PONG_TIMEOUT,default=60s"`
	MaxTextLength        int           `env:"MAX_TEXT_LENGTH,default=4000"`
	CreateChatAttempts   int           `env:"CREATE_CHAT_ATTEMPTS,default=5"`
	EnableModeration     bool          `env:"ENABLE_MODERATION,default=false"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
	IdentityTokenSecret  string        `env:"IDENTITY_TOKEN_SECRET"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=30s"`
}

// Validate checks the combinations env tags cannot express.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreBadger:
	case StorePostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required when STORE_DRIVER=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreBadger, StorePostgres, c.StoreDriver)
	}
	if c.PingInterval >= c.PongTimeout {
		return fmt.Errorf("PING_INTERVAL (%s) must be shorter than PONG_TIMEOUT (%s)", c.PingInterval, c.PongTimeout)
	}
	if c.BufferSize <= 0 || c.ConnectionBufferSize <= 0 {
		return fmt.Errorf("BUFFER_SIZE and CONNECTION_BUFFER_SIZE must be positive")
	}
	return nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
