package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Defaults for the provider's REST endpoint.
const (
	DefaultBaseURL       = "https://universalis.app"
	DefaultHomeWorld     = "Zodiark"
	DefaultListingsLimit = 30
	DefaultEntriesLimit  = 20
	DefaultTimeout       = 30 * time.Second
)

// Client fetches item snapshots from the provider's REST API.
type Client struct {
	baseURL   string
	homeWorld string
	listings  int
	entries   int
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger

	httpClient *http.Client
	rest       *resty.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL:   baseURL,
		homeWorld: DefaultHomeWorld,
		listings:  DefaultListingsLimit,
		entries:   DefaultEntriesLimit,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient != nil {
		c.rest = resty.NewWithClient(c.httpClient)
	} else {
		c.rest = resty.New()
	}
	c.rest.
		SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{c.logger})
	if c.userAgent != "" {
		c.rest.SetHeader("User-Agent", c.userAgent)
	}

	return c
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHomeWorld sets the scope used when a fetch names none.
func WithHomeWorld(world string) ClientOption {
	return func(c *Client) {
		if world != "" {
			c.homeWorld = world
		}
	}
}

// WithLimits sets how many listings and history entries each fetch asks for.
// Non-positive values keep the defaults.
func WithLimits(listings, entries int) ClientOption {
	return func(c *Client) {
		if listings > 0 {
			c.listings = listings
		}
		if entries > 0 {
			c.entries = entries
		}
	}
}

// HomeWorld returns the default fetch scope.
func (c *Client) HomeWorld() string {
	return c.homeWorld
}

// restyLogger routes resty's internal messages to slog.
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error("rest client", "detail", fmt.Sprintf(format, v...))
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn("rest client", "detail", fmt.Sprintf(format, v...))
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug("rest client", "detail", fmt.Sprintf(format, v...))
}
