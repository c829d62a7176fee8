package store

import (
	"log/slog"
	"strings"
)

// Opts holds configuration for store construction.
type Opts struct {
	// SQLiteDSN is a file path to the SQLite database.
	SQLiteDSN string
	// PostgresDSN is a PostgreSQL connection string.
	PostgresDSN string
	// RedisAddr is a Redis host:port address.
	RedisAddr string
	// RedisPassword is the optional Redis auth password.
	RedisPassword string
}

// Option configures store construction.
type Option func(*Opts)

// WithSQLiteDSN selects the SQLite backend with the given database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.SQLiteDSN = dsn }
}

// WithPostgresDSN selects the PostgreSQL backend with the given DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.PostgresDSN = dsn }
}

// WithRedisAddr selects the Redis backend with the given address.
func WithRedisAddr(addr string) Option {
	return func(o *Opts) { o.RedisAddr = addr }
}

// WithRedisPassword sets the Redis auth password.
func WithRedisPassword(password string) Option {
	return func(o *Opts) { o.RedisPassword = password }
}

// DetectDSNType classifies a DSN string as "postgres", "redis" or "sqlite".
// File paths without a recognized scheme are assumed to be SQLite databases.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	if strings.HasPrefix(dsn, "redis://") {
		return "redis"
	}
	return "sqlite"
}

// New constructs a store from the given options. Exactly one backend is
// selected; with no options an in-memory store is returned.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.PostgresDSN != "":
		slog.Debug("store.New selecting PostgreSQL backend", "dsn_set", true)
		return NewPostgresStore(opts...)
	case cfg.RedisAddr != "":
		slog.Debug("store.New selecting Redis backend", "addr", cfg.RedisAddr)
		return NewRedisStore(opts...)
	case cfg.SQLiteDSN != "":
		slog.Debug("store.New selecting SQLite backend", "path", cfg.SQLiteDSN)
		return NewSQLiteStore(opts...)
	default:
		slog.Debug("store.New selecting in-memory backend")
		return NewInMemoryStore(), nil
	}
}
