// Package nerservice implements the HTTP client for the BiomedNER
// entity-extraction service. The client owns the retry, backoff, timeout,
// and error-classification policy for the one unreliable upstream the
// pipeline depends on; callers receive either a full entity list or a typed
// error, never partial results.
package nerservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pillchecker/medlabel/internal/domain/medication"
	"github.com/pillchecker/medlabel/internal/infrastructure/monitoring/logging"
	"github.com/pillchecker/medlabel/internal/infrastructure/monitoring/prometheus"
	"github.com/pillchecker/medlabel/pkg/errors"
)

const Version = "0.1.0"

// Default policy values; override with functional options or configuration.
const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 30 * time.Second
	DefaultBackoffBase    = 2 * time.Second
	DefaultBackoffCap     = 10 * time.Second
)

// extractPath and healthPath are the service endpoints, fixed by the
// BiomedNER API contract.
const (
	extractPath = "/extract_entities"
	healthPath  = "/health"
)

// Client talks to a BiomedNER service instance. It is stateless across calls
// apart from the connection pool inside its http.Client, and is safe for
// concurrent use.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	userAgent      string
	logger         logging.Logger
	metrics        *prometheus.PipelineMetrics
	maxAttempts    int
	attemptTimeout time.Duration
	backoffBase    time.Duration
	backoffCap     time.Duration
}

// extractRequest is the wire shape of an extraction call.
type extractRequest struct {
	Text string `json:"text"`
}

// extractResponse is the flat response shape: one entry per recognized span
// with the knowledge-base linkage embedded.
type extractResponse struct {
	Entities []wireEntity `json:"entities"`
}

type wireEntity struct {
	Text          string   `json:"text"`
	Label         string   `json:"label"`
	Score         float64  `json:"score"`
	CUI           string   `json:"cui"`
	CanonicalName string   `json:"canonical_name"`
	Aliases       []string `json:"aliases"`
	Definition    string   `json:"definition"`
}

// NewClient creates a Client for the service at baseURL. The URL must be
// http or https.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.InvalidConfig("ner service base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.InvalidConfig("invalid ner service base URL").WithCause(err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.InvalidConfig("ner service base URL scheme must be http or https")
	}

	c := &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		httpClient:     &http.Client{},
		userAgent:      fmt.Sprintf("medlabel/%s", Version),
		logger:         logging.NewNopLogger(),
		maxAttempts:    DefaultMaxAttempts,
		attemptTimeout: DefaultAttemptTimeout,
		backoffBase:    DefaultBackoffBase,
		backoffCap:     DefaultBackoffCap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ExtractEntities sends text to the service and returns the recognized
// entities. Empty or whitespace-only text is a defined no-op: it returns an
// empty list immediately without touching the network.
//
// Transient failures (attempt timeout, connection failure, 5xx) are retried
// up to the configured attempt budget with exponential backoff; a 4xx
// response fails immediately. Cancelling ctx aborts the in-flight attempt
// and suppresses all further retries. On final failure the last classified
// error is returned; no partial results are ever surfaced.
func (c *Client) ExtractEntities(ctx context.Context, text string) ([]medication.RawEntity, error) {
	if strings.TrimSpace(text) == "" {
		c.logger.Debug("empty text, skipping ner call")
		return []medication.RawEntity{}, nil
	}

	body, err := json.Marshal(extractRequest{Text: text})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal ner request")
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.backoffDelay(attempt - 1)
			c.logger.Debug("retrying ner call",
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), errors.ErrCodeNERUnavailable, "ner call cancelled during backoff")
			}
			c.metrics.IncRetries(1)
		}

		entities, attemptErr := c.doExtract(ctx, body, text)
		if attemptErr == nil {
			return entities, nil
		}
		lastErr = attemptErr

		// A cancelled parent context ends the whole call regardless of
		// the error class.
		if ctx.Err() != nil {
			return nil, lastErr
		}
		if !errors.IsRetryable(errors.GetCode(attemptErr)) {
			return nil, lastErr
		}
		c.logger.Warn("ner attempt failed",
			logging.Int("attempt", attempt),
			logging.Err(attemptErr),
		)
	}
	return nil, lastErr
}

// doExtract performs a single attempt bounded by the per-attempt timeout.
func (c *Client) doExtract(ctx context.Context, body []byte, text string) ([]medication.RawEntity, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+extractPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to build ner request")
	}

	requestID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		return nil, c.classifyTransportError(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("ner response",
		logging.String("request_id", requestID),
		logging.Int("status", resp.StatusCode),
		logging.Duration("duration", duration),
	)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// Parsed below.
	case resp.StatusCode >= 500:
		drain(resp.Body)
		return nil, errors.New(errors.ErrCodeNERUnavailable, "ner service unavailable").
			WithDetail(fmt.Sprintf("status=%d request_id=%s", resp.StatusCode, requestID))
	default:
		drain(resp.Body)
		return nil, errors.New(errors.ErrCodeNERRejected, "ner service rejected request").
			WithDetail(fmt.Sprintf("status=%d request_id=%s", resp.StatusCode, requestID))
	}

	var parsed extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNERBadResponse, "failed to decode ner response")
	}

	entities := make([]medication.RawEntity, 0, len(parsed.Entities))
	for _, w := range parsed.Entities {
		entities = append(entities, medication.RawEntity{
			Text:            w.Text,
			Label:           medication.ParseLabel(w.Label),
			Score:           w.Score,
			KnowledgeBaseID: w.CUI,
			CanonicalName:   w.CanonicalName,
			Aliases:         w.Aliases,
			Definition:      w.Definition,
		})
	}
	c.logger.Info("extracted entities",
		logging.String("request_id", requestID),
		logging.Int("count", len(entities)),
		logging.Int("text_len", len(text)),
	)
	return entities, nil
}

// classifyTransportError maps a transport failure to a typed pipeline error.
// The per-attempt deadline yields a timeout; everything else is treated as
// the service being unreachable.
func (c *Client) classifyTransportError(parent, attempt context.Context, err error) error {
	if parent.Err() != nil {
		return errors.Wrap(err, errors.ErrCodeNERUnavailable, "ner call cancelled")
	}
	if attempt.Err() == context.DeadlineExceeded {
		return errors.Wrap(err, errors.ErrCodeNERTimeout, "ner request timed out").
			WithDetail(fmt.Sprintf("attempt_timeout=%s", c.attemptTimeout))
	}
	return errors.Wrap(err, errors.ErrCodeNERUnavailable, "failed to reach ner service")
}

// backoffDelay computes the wait before retry n (1-based). The base delay
// doubles per retry and is capped; jitter of up to 25% is added on top so
// the wait is never shorter than the computed base delay.
func (c *Client) backoffDelay(n int) time.Duration {
	delay := c.backoffBase * time.Duration(1<<uint(n-1))
	if delay > c.backoffCap {
		delay = c.backoffCap
	}
	if delay <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

// Health checks the service's /health endpoint. A nil return means the
// service answered 200 within the per-attempt timeout; health checks are
// never retried.
func (c *Client) Health(ctx context.Context) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to build health request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classifyTransportError(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()
	drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.ErrCodeNERUnavailable, "ner service unhealthy").
			WithDetail(fmt.Sprintf("status=%d", resp.StatusCode))
	}
	return nil
}

// FindChemicals extracts entities and keeps only chemical-class ones.
func (c *Client) FindChemicals(ctx context.Context, text string) ([]medication.RawEntity, error) {
	return c.findByLabel(ctx, text, medication.LabelChemical)
}

// FindDiseases extracts entities and keeps only disease-class ones.
func (c *Client) FindDiseases(ctx context.Context, text string) ([]medication.RawEntity, error) {
	return c.findByLabel(ctx, text, medication.LabelDisease)
}

// FindActiveIngredients returns the span texts of all chemical-class
// entities, in recognition order.
func (c *Client) FindActiveIngredients(ctx context.Context, text string) ([]string, error) {
	chemicals, err := c.FindChemicals(ctx, text)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(chemicals))
	for _, e := range chemicals {
		names = append(names, e.Text)
	}
	return names, nil
}

func (c *Client) findByLabel(ctx context.Context, text string, label medication.EntityLabel) ([]medication.RawEntity, error) {
	entities, err := c.ExtractEntities(ctx, text)
	if err != nil {
		return nil, err
	}
	filtered := make([]medication.RawEntity, 0, len(entities))
	for _, e := range entities {
		if e.Label == label {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// drain discards any unread body so the connection can be reused.
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 1<<16))
}
