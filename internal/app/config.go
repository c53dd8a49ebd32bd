package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Identity store selection: Mongo URI wins, then Postgres URL, then the
	// in-memory dev store.
	MongoURI      string
	MongoDatabase string
	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32

	// Credential lifetime embedded at issuance.
	TokenTTL time.Duration

	// If true, /readyz returns 503 unless a durable store is configured and
	// reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("CHATLINE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("CHATLINE_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("CHATLINE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("CHATLINE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("CHATLINE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("CHATLINE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("CHATLINE_HTTP_MAX_HEADER_BYTES", 1<<20),

		MongoURI:      EnvString("CHATLINE_MONGO_URI", ""),
		MongoDatabase: EnvString("CHATLINE_MONGO_DATABASE", "chatline"),
		DatabaseURL:   EnvString("CHATLINE_DATABASE_URL", ""),
		DBMaxConns:    EnvInt32("CHATLINE_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("CHATLINE_DB_MIN_CONNS", 0),

		TokenTTL: EnvDuration("CHATLINE_TOKEN_TTL", 24*time.Hour),

		ReadinessRequireDB: EnvBool("CHATLINE_READINESS_REQUIRE_DB", false),
	}
}
