package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Aghostraa/OLI-Converters/internal/cache"
	"github.com/Aghostraa/OLI-Converters/internal/circuitbreaker"
	"github.com/Aghostraa/OLI-Converters/internal/explorer/ratelimit"
	"github.com/Aghostraa/OLI-Converters/internal/metrics"
	"github.com/Aghostraa/OLI-Converters/internal/pipeline/retry"
	"github.com/Aghostraa/OLI-Converters/internal/registry"
)

// ContractFetcher is the fetcher stage's view of the explorer client.
type ContractFetcher interface {
	// FetchContract performs one metadata lookup for (network, address) and
	// returns the upstream JSON body unmodified. Errors carry a retry
	// classification: not-found, transient, or terminal.
	FetchContract(ctx context.Context, network registry.NetworkEntry, address string) (json.RawMessage, error)
}

const maxResponseBytes = 4 << 20

// Config tunes the explorer client. Zero values fall back to defaults.
type Config struct {
	Timeout          time.Duration // per-request HTTP timeout
	RateLimitRPS     float64       // per-network token refill rate
	RateLimitBurst   int
	BreakerThreshold int           // consecutive failures before the circuit opens
	BreakerTimeout   time.Duration // open duration before probing again
	CacheSize        int           // cached responses across all networks
	CacheTTL         time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.RateLimitRPS <= 0 {
		c.RateLimitRPS = 5
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 5
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 4096
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 10 * time.Minute
	}
	return c
}

// Client fetches contract metadata from Blockscout-style explorer APIs.
// Each network gets its own rate limiter and circuit breaker; responses are
// cached so duplicate rows in one batch cost a single upstream call.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *slog.Logger

	mu       sync.Mutex
	limiters map[string]*ratelimit.Limiter
	breakers map[string]*circuitbreaker.Breaker

	responses *cache.TTLCache[string, json.RawMessage]
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger.With("component", "explorer"),
		limiters:   make(map[string]*ratelimit.Limiter),
		breakers:   make(map[string]*circuitbreaker.Breaker),
		responses:  cache.New[string, json.RawMessage](cfg.CacheSize, cfg.CacheTTL),
	}
}

func (c *Client) FetchContract(ctx context.Context, network registry.NetworkEntry, address string) (json.RawMessage, error) {
	cacheKey := network.OriginKey + "|" + address
	if body, ok := c.responses.Get(cacheKey); ok {
		metrics.ExplorerCacheHits.WithLabelValues(network.OriginKey).Inc()
		return body, nil
	}

	breaker := c.breakerFor(network.OriginKey)
	if err := breaker.Allow(); err != nil {
		metrics.ExplorerRequests.WithLabelValues(network.OriginKey, "breaker_open").Inc()
		return nil, retry.Transient(fmt.Errorf("%s explorer: %w", network.OriginKey, err))
	}

	if err := c.limiterFor(network.OriginKey).Wait(ctx); err != nil {
		return nil, err
	}

	url := requestURL(network.APIBaseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Terminal(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		breaker.RecordFailure()
		metrics.ExplorerRequests.WithLabelValues(network.OriginKey, "network_error").Inc()
		return nil, fmt.Errorf("explorer get %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		breaker.RecordFailure()
		metrics.ExplorerRequests.WithLabelValues(network.OriginKey, "network_error").Inc()
		return nil, fmt.Errorf("read response from %s: %w", url, err)
	}

	statusErr := &StatusError{Status: resp.StatusCode, URL: url, Body: string(body)}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		breaker.RecordSuccess()
		metrics.ExplorerRequests.WithLabelValues(network.OriginKey, "ok").Inc()
		c.responses.Put(cacheKey, json.RawMessage(body))
		return json.RawMessage(body), nil

	case resp.StatusCode == http.StatusNotFound:
		// The endpoint answered; the address just has no contract metadata.
		breaker.RecordSuccess()
		metrics.ExplorerRequests.WithLabelValues(network.OriginKey, "not_found").Inc()
		return nil, retry.NotFound(statusErr)

	case resp.StatusCode == http.StatusTooManyRequests:
		breaker.RecordFailure()
		metrics.ExplorerRequests.WithLabelValues(network.OriginKey, "rate_limited").Inc()
		return nil, retry.Transient(statusErr)

	case resp.StatusCode >= 500:
		breaker.RecordFailure()
		metrics.ExplorerRequests.WithLabelValues(network.OriginKey, "server_error").Inc()
		return nil, retry.Transient(statusErr)

	default:
		// Other 4xx: our request is at fault, the upstream is healthy.
		breaker.RecordSuccess()
		metrics.ExplorerRequests.WithLabelValues(network.OriginKey, "client_error").Inc()
		return nil, retry.Terminal(statusErr)
	}
}

func (c *Client) limiterFor(originKey string) *ratelimit.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.limiters[originKey]; ok {
		return l
	}
	l := ratelimit.NewLimiter(c.cfg.RateLimitRPS, c.cfg.RateLimitBurst, originKey)
	c.limiters[originKey] = l
	return l
}

func (c *Client) breakerFor(originKey string) *circuitbreaker.Breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[originKey]; ok {
		return b
	}
	b := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: c.cfg.BreakerThreshold,
		OpenTimeout:      c.cfg.BreakerTimeout,
		OnStateChange: func(from, to circuitbreaker.State) {
			c.logger.Warn("explorer circuit state changed",
				"origin_key", originKey,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.ExplorerBreakerState.WithLabelValues(originKey).Set(breakerStateValue(to))
		},
	})
	c.breakers[originKey] = b
	return b
}

func breakerStateValue(s circuitbreaker.State) float64 {
	switch s {
	case circuitbreaker.StateHalfOpen:
		return 1
	case circuitbreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func requestURL(baseURL, address string) string {
	if strings.HasSuffix(baseURL, "/") {
		return baseURL + address
	}
	return baseURL + "/" + address
}
