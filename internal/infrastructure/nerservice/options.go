package nerservice

import (
	"net/http"
	"time"

	"github.com/pillchecker/medlabel/internal/infrastructure/monitoring/logging"
	"github.com/pillchecker/medlabel/internal/infrastructure/monitoring/prometheus"
)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client, e.g. one with a tuned transport.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log logging.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithMaxAttempts sets the total attempt budget, including the first call.
// Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

// WithAttemptTimeout sets the per-attempt deadline.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.attemptTimeout = d
		}
	}
}

// WithBackoff sets the base delay and the cap for the retry backoff. The cap
// is only applied when it is at least the base.
func WithBackoff(base, cap time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.backoffBase = base
			if cap >= base {
				c.backoffCap = cap
			}
		}
	}
}

// WithMetrics reports retried attempts to the pipeline metrics.
func WithMetrics(m *prometheus.PipelineMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}
