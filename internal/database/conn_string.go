package database

import (
	"net/url"
	"strconv"

	"github.com/marketboard/mbsync/internal/config"
)

// applicationName is reported to PostgreSQL for connections from this daemon.
const applicationName = "mbsync"

// BuildConnString builds a PostgreSQL connection URL from config.
// User and password are percent-encoded.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", applicationName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
