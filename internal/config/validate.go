package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/marketboard/mbsync/internal/world"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Provider.validate(); err != nil {
		return err
	}

	if c.Connection.ReconnectBaseDelay <= 0 {
		return errors.New("connection.reconnect_base_delay must be > 0")
	}
	if c.Connection.ReconnectMaxDelay < c.Connection.ReconnectBaseDelay {
		return fmt.Errorf("connection.reconnect_max_delay (%v) cannot be less than reconnect_base_delay (%v)",
			c.Connection.ReconnectMaxDelay, c.Connection.ReconnectBaseDelay)
	}
	if c.Connection.PingTimeout <= c.Connection.PingInterval {
		return fmt.Errorf("connection.ping_timeout (%v) must exceed ping_interval (%v)",
			c.Connection.PingTimeout, c.Connection.PingInterval)
	}
	if c.Connection.MessageBufferSize < 1 {
		return errors.New("connection.message_buffer_size must be >= 1")
	}

	if c.Poller.Interval < 0 {
		return errors.New("poller.interval must be >= 0")
	}
	if c.Poller.Concurrency < 1 {
		return errors.New("poller.concurrency must be >= 1")
	}

	if c.Archive.Enabled {
		if err := c.Archive.Database.validate("archive.database"); err != nil {
			return err
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.BufferSize < 1 {
			return errors.New("archive.buffer_size must be >= 1")
		}
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	for i, w := range c.Watch {
		if w.ItemID <= 0 {
			return fmt.Errorf("watch[%d].item_id must be > 0", i)
		}
		if w.World == "" {
			continue
		}
		if _, err := world.Resolve(w.World); err != nil {
			return fmt.Errorf("watch[%d].world: %w", i, err)
		}
	}

	return nil
}

func (p *ProviderConfig) validate() error {
	if err := validateURL("provider.rest_url", p.RestURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("provider.ws_url", p.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if _, err := world.Resolve(p.HomeWorld); err != nil {
		return fmt.Errorf("provider.home_world: %w", err)
	}
	if p.ListingsLimit < 1 {
		return errors.New("provider.listings_limit must be >= 1")
	}
	if p.EntriesLimit < 1 {
		return errors.New("provider.entries_limit must be >= 1")
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s scheme must be one of %v, got %q", field, schemes, u.Scheme)
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
