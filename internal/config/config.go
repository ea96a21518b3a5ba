package config

import "time"

// Config is the root configuration for an mbsync daemon.
type Config struct {
	Provider   ProviderConfig   `yaml:"provider"`
	Connection ConnectionConfig `yaml:"connection"`
	Store      StoreConfig      `yaml:"store"`
	Poller     PollerConfig     `yaml:"poller"`
	Archive    ArchiveConfig    `yaml:"archive"`
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Watch      []WatchEntry     `yaml:"watch"`
}

// ProviderConfig holds Universalis endpoint settings.
type ProviderConfig struct {
	RestURL       string        `yaml:"rest_url"`
	WSURL         string        `yaml:"ws_url"`
	HomeWorld     string        `yaml:"home_world"` // Scope used when a watch names no world
	ListingsLimit int           `yaml:"listings_limit"`
	EntriesLimit  int           `yaml:"entries_limit"`
	Timeout       time.Duration `yaml:"timeout"`
}

// ConnectionConfig holds push connection settings.
type ConnectionConfig struct {
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	MessageBufferSize  int           `yaml:"message_buffer_size"`
	MaxMessageSize     int64         `yaml:"max_message_size"`
}

// StoreConfig bounds the in-memory snapshot store.
type StoreConfig struct {
	MaxListings int           `yaml:"max_listings"`
	MaxHistory  int           `yaml:"max_history"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"` // Unwatched snapshots older than this are pruned
}

// PollerConfig holds periodic refresh settings. Interval 0 disables polling.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ArchiveConfig holds the sale history archive settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HTTPConfig holds the consumer API listener settings.
type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// WatchEntry is an item watched from startup.
type WatchEntry struct {
	ItemID int    `yaml:"item_id"`
	World  string `yaml:"world"` // World, data center or region; empty means home world
}
