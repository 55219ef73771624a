// Package summarize calls an external text-summary endpoint for documents.
package summarize

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"lawdesk.org/internal/apperr"
	"lawdesk.org/internal/obs"
)

var (
	ErrNotConfigured = apperr.Validation("summarization_disabled", "summarization not configured")
	ErrTooLarge      = apperr.Validation("document_too_large", "document is too large to summarize")
	ErrEmpty         = apperr.Validation("empty_document", "document is empty")
)

// Request is one document to summarize.
type Request struct {
	DocumentID  string
	Filename    string
	ContentType string
	Content     []byte
}

// Config holds endpoint settings. An empty Endpoint disables the client.
type Config struct {
	Endpoint     string
	APIKey       string
	Model        string
	Timeout      time.Duration
	CacheSize    int
	CacheTTL     time.Duration
	RatePerMin   int
	MaxInputSize int64
}

type payload struct {
	Model       string `json:"model,omitempty"`
	DocumentID  string `json:"document_id,omitempty"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Text        string `json:"text,omitempty"`
	Content     []byte `json:"content_base64,omitempty"`
}

type response struct {
	Summary string `json:"summary"`
	Error   string `json:"error,omitempty"`
}

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	cache   *lru.LRU[string, string]
	limiter *rate.Limiter
	log     *logrus.Entry
}

type Option func(*Client)

// WithHTTPClient replaces the transport (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.RatePerMin <= 0 {
		cfg.RatePerMin = 20
	}
	if cfg.MaxInputSize <= 0 {
		cfg.MaxInputSize = 2 << 20
	}
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		cache:   lru.NewLRU[string, string](cfg.CacheSize, nil, cfg.CacheTTL),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMin)), cfg.RatePerMin),
		log:     obs.Component("summarize"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool { return c != nil && c.cfg.Endpoint != "" }

// Summarize returns a summary of req.Content. Identical content is served
// from cache without calling the endpoint.
func (c *Client) Summarize(ctx context.Context, req Request) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	if len(req.Content) == 0 {
		return "", ErrEmpty
	}
	if int64(len(req.Content)) > c.cfg.MaxInputSize {
		return "", ErrTooLarge
	}
	key := cacheKey(c.cfg.Model, req.Content)
	if s, ok := c.cache.Get(key); ok {
		obs.SummaryRequests.WithLabelValues("hit").Inc()
		return s, nil
	}
	obs.SummaryRequests.WithLabelValues("miss").Inc()

	if err := c.limiter.Wait(ctx); err != nil {
		obs.SummaryRequests.WithLabelValues("error").Inc()
		return "", fmt.Errorf("summarize: rate limit wait: %w", err)
	}
	summary, err := c.call(ctx, req)
	if err != nil {
		obs.SummaryRequests.WithLabelValues("error").Inc()
		c.log.WithError(err).WithField("document_id", req.DocumentID).Warn("summary request failed")
		return "", err
	}
	c.cache.Add(key, summary)
	return summary, nil
}

func (c *Client) call(ctx context.Context, req Request) (string, error) {
	p := payload{
		Model:       c.cfg.Model,
		DocumentID:  req.DocumentID,
		Filename:    req.Filename,
		ContentType: req.ContentType,
	}
	if isText(req.ContentType) {
		p.Text = string(req.Content)
	} else {
		p.Content = req.Content
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("summarize: encode: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("summarize: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("summarize: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("summarize: endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("summarize: decode response: %w", err)
	}
	out.Summary = strings.TrimSpace(out.Summary)
	if out.Summary == "" {
		if out.Error != "" {
			return "", fmt.Errorf("summarize: endpoint error: %s", out.Error)
		}
		return "", fmt.Errorf("summarize: empty summary")
	}
	return out.Summary, nil
}

func cacheKey(model string, content []byte) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func isText(contentType string) bool {
	return strings.HasPrefix(contentType, "text/")
}
