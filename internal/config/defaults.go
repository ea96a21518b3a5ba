package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL            = "https://universalis.app"
	DefaultWSURL              = "wss://universalis.app/api/ws"
	DefaultHomeWorld          = "Zodiark"
	DefaultListingsLimit      = 30
	DefaultEntriesLimit       = 20
	DefaultProviderTimeout    = 30 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultPingTimeout        = 90 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultMessageBufferSize  = 1000
	DefaultMaxMessageSize     = 4 << 20
	DefaultMaxListings        = 100
	DefaultMaxHistory         = 100
	DefaultSnapshotTTL        = 1 * time.Hour
	DefaultPollConcurrency    = 4
	DefaultPollTimeout        = 2 * time.Minute
	DefaultBatchSize          = 500
	DefaultFlushInterval      = 5 * time.Second
	DefaultBufferSize         = 10000
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 5
	DefaultMinConns           = 1
	DefaultHTTPPort           = 8080
	DefaultShutdownTimeout    = 10 * time.Second
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// ApplyDefaults fills zero-valued optional fields.
func (c *Config) ApplyDefaults() {
	if c.Provider.RestURL == "" {
		c.Provider.RestURL = DefaultRestURL
	}
	if c.Provider.WSURL == "" {
		c.Provider.WSURL = DefaultWSURL
	}
	if c.Provider.HomeWorld == "" {
		c.Provider.HomeWorld = DefaultHomeWorld
	}
	if c.Provider.ListingsLimit == 0 {
		c.Provider.ListingsLimit = DefaultListingsLimit
	}
	if c.Provider.EntriesLimit == 0 {
		c.Provider.EntriesLimit = DefaultEntriesLimit
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultProviderTimeout
	}

	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PingTimeout == 0 {
		c.Connection.PingTimeout = DefaultPingTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.MessageBufferSize == 0 {
		c.Connection.MessageBufferSize = DefaultMessageBufferSize
	}
	if c.Connection.MaxMessageSize == 0 {
		c.Connection.MaxMessageSize = DefaultMaxMessageSize
	}

	// Negative caps mean unbounded; only zero takes the default.
	if c.Store.MaxListings == 0 {
		c.Store.MaxListings = DefaultMaxListings
	}
	if c.Store.MaxHistory == 0 {
		c.Store.MaxHistory = DefaultMaxHistory
	}
	if c.Store.SnapshotTTL == 0 {
		c.Store.SnapshotTTL = DefaultSnapshotTTL
	}

	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}

	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultBufferSize
	}
	applyDBDefaults(&c.Archive.Database)

	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
