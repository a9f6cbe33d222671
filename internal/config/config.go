package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// MaxMessageBytes caps a single WebSocket frame.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	// MessageRateLimit caps sends per connection per minute; 0 disables.
	MessageRateLimit int `mapstructure:"message_rate_limit" yaml:"message_rate_limit"`
	// HistoryPageSize is the default page size for history reads.
	HistoryPageSize int `mapstructure:"history_page_size" yaml:"history_page_size"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "vipchat.db",
		JWTSecret:         "change-me",
		JWTIssuer:         "vipchat",
		JWTAudience:       "vipchat",
		JWTTTL:            24 * time.Hour,
		LogLevel:          "info",
		MaxMessageBytes:   1 << 20,
		MessageRateLimit:  60,
		HistoryPageSize:   50,
	}
}
