// Package source reads the gateway's metrics, health and architecture
// endpoints over HTTP and submits inference requests to it.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danweinerdev/go-opsboard"
	"golang.org/x/sync/singleflight"
)

// Gateway paths.
const (
	MetricsPath = "/metrics/overview"
	HealthPath  = "/health"
	MetaPath    = "/meta/architecture"

	ClassifierPath = "/predict/classifier"
	LLMPath        = "/predict/llm"
)

const (
	defaultTimeout        = 10 * time.Second
	defaultPredictTimeout = 30 * time.Second
	maxErrorBody          = 512
)

// ErrPredict marks a failed inference request.
var ErrPredict = errors.New("inference request failed")

// Health is the gateway liveness response.
type Health struct {
	Status string `json:"status"`
}

// App describes the running gateway.
type App struct {
	Name        string `json:"name"`
	Environment string `json:"environment"`
	LogLevel    string `json:"log_level"`
	Port        int    `json:"port"`
}

// Architecture is the gateway's self-description: services, models and
// their dependencies.
type Architecture struct {
	App           App                       `json:"app"`
	Services      []map[string]any          `json:"services"`
	Models        map[string]map[string]any `json:"models"`
	Dependencies  map[string]string         `json:"dependencies"`
	FeatureSchema json.RawMessage           `json:"feature_schema,omitempty"`
}

// ClassifierResponse is the classifier's verdict for one feature set.
type ClassifierResponse struct {
	Prediction     int     `json:"prediction"`
	Proba          float64 `json:"proba"`
	ModelVersion   string  `json:"model_version"`
	LatencyMs      float64 `json:"latency_ms"`
	ArtifactSource string  `json:"artifact_source"`
	EventID        string  `json:"event_id,omitempty"`
}

// LLMResponse is the retrieval-augmented answer to one query.
type LLMResponse struct {
	Answer                string   `json:"answer"`
	Sources               []string `json:"sources"`
	LLMTier               string   `json:"llm_tier"`
	LatencyMs             float64  `json:"latency_ms"`
	ModelProvider         string   `json:"model_provider"`
	EmbeddingModel        string   `json:"embedding_model"`
	ContextTokensEstimate int      `json:"context_tokens_estimate"`
}

// Client talks to the gateway. Identical requests issued concurrently, such
// as every view polling the same overview, share one round trip.
type Client struct {
	base           *url.URL
	http           *http.Client
	timeout        time.Duration
	predictTimeout time.Duration
	userAgent      string
	logger         *slog.Logger
	group          singleflight.Group
}

// New creates a client for cfg.URL.
func New(cfg opsboard.SourceConfig, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid source url %q: must be absolute", cfg.URL)
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	predictTimeout := cfg.PredictTimeout.Duration
	if predictTimeout <= 0 {
		predictTimeout = defaultPredictTimeout
	}

	// Deadlines come from request contexts; reads and submissions differ.
	return &Client{
		base:           base,
		http:           &http.Client{},
		timeout:        timeout,
		predictTimeout: predictTimeout,
		userAgent:      cfg.UserAgent,
		logger:         logger.With("source", base.Host),
	}, nil
}

// Metrics returns the per-endpoint overview.
func (c *Client) Metrics(ctx context.Context) (map[string]opsboard.EndpointStat, error) {
	v, err := c.shared(ctx, MetricsPath, func(ctx context.Context) (any, error) {
		var stats map[string]opsboard.EndpointStat
		if err := c.getJSON(ctx, MetricsPath, &stats); err != nil {
			return nil, err
		}
		if stats == nil {
			return nil, fmt.Errorf("%w: GET %s: empty body", opsboard.ErrFetch, MetricsPath)
		}
		return stats, nil
	})
	if err != nil {
		return nil, err
	}

	shared := v.(map[string]opsboard.EndpointStat)
	out := make(map[string]opsboard.EndpointStat, len(shared))
	for k, s := range shared {
		out[k] = s
	}
	return out, nil
}

// Fetch adapts Metrics to a poller fetch function.
func (c *Client) Fetch() opsboard.FetchFunc {
	return c.Metrics
}

// Health returns the gateway liveness status.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	v, err := c.shared(ctx, HealthPath, func(ctx context.Context) (any, error) {
		var h Health
		if err := c.getJSON(ctx, HealthPath, &h); err != nil {
			return nil, err
		}
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	h := v.(Health)
	return &h, nil
}

// Meta returns the gateway architecture description.
func (c *Client) Meta(ctx context.Context) (*Architecture, error) {
	v, err := c.shared(ctx, MetaPath, func(ctx context.Context) (any, error) {
		var a Architecture
		if err := c.getJSON(ctx, MetaPath, &a); err != nil {
			return nil, err
		}
		return &a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Architecture), nil
}

// PredictClassifier submits one feature set to the classifier. Submissions
// are never shared between callers.
func (c *Client) PredictClassifier(ctx context.Context, features map[string]any) (*ClassifierResponse, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: no features", ErrPredict)
	}
	ctx, cancel := context.WithTimeout(ctx, c.predictTimeout)
	defer cancel()

	var resp ClassifierResponse
	body := map[string]any{"features": features}
	if err := c.doJSON(ctx, http.MethodPost, ClassifierPath, body, &resp, ErrPredict); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueryLLM submits one question to the retrieval-augmented LLM.
func (c *Client) QueryLLM(ctx context.Context, query string) (*LLMResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrPredict)
	}
	ctx, cancel := context.WithTimeout(ctx, c.predictTimeout)
	defer cancel()

	var resp LLMResponse
	body := map[string]string{"query": query}
	if err := c.doJSON(ctx, http.MethodPost, LLMPath, body, &resp, ErrPredict); err != nil {
		return nil, err
	}
	return &resp, nil
}

// shared runs fn once per key for all concurrent callers. The round trip is
// detached from any single caller's cancellation and bounded by the client
// timeout; each caller still stops waiting when its own ctx ends.
func (c *Client) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return fn(fctx)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: GET %s: %w", opsboard.ErrFetch, key, ctx.Err())
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("shared in-flight request", "path", key)
		}
		return res.Val, res.Err
	}
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, v, opsboard.ErrFetch)
}

// doJSON sends in (if any) as JSON and decodes the reply into out. Every
// error wraps kind.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, kind error) error {
	u := c.base.JoinPath(path)

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: %s %s: encode: %w", kind, method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", kind, method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", kind, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %s %s returned %d: %s", kind, method, path, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: decode: %w", kind, method, path, err)
	}

	c.logger.Debug("request completed", "method", method, "path", path, "duration", time.Since(start))
	return nil
}
