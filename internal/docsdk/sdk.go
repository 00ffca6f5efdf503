package docsdk

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/imroc/req/v3"
	"github.com/openmined/notesync/internal/version"
	"golang.org/x/time/rate"
)

const (
	HeaderUserAgent = "User-Agent"
	HeaderVersion   = "X-Notesync-Version"

	defaultRetryCount = 3
	defaultCacheSize  = 512
	defaultCacheTTL   = 30 * time.Second
	minCacheTTL       = time.Millisecond
	retryMinBackoff   = 200 * time.Millisecond
	retryMaxBackoff   = 3 * time.Second
)

type config struct {
	token      string
	rateLimit  float64
	retryCount int
	cacheSize  int
	cacheTTL   time.Duration
}

type Option func(*config)

// WithToken sets the bearer token sent with every request
func WithToken(token string) Option {
	return func(c *config) { c.token = token }
}

// WithRateLimit caps requests per second. Zero disables the limit.
func WithRateLimit(perSecond float64) Option {
	return func(c *config) { c.rateLimit = perSecond }
}

func WithRetryCount(n int) Option {
	return func(c *config) { c.retryCount = n }
}

// WithCache sizes the page metadata cache. The ttl must be at least 1ms.
func WithCache(size int, ttl time.Duration) Option {
	return func(c *config) {
		c.cacheSize = size
		c.cacheTTL = ttl
	}
}

// Client talks to the document service
type Client struct {
	client  *req.Client
	baseURL string
	Pages   *PagesAPI
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}

	cfg := &config{
		retryCount: defaultRetryCount,
		cacheSize:  defaultCacheSize,
		cacheTTL:   defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.token == "" {
		return nil, ErrNoToken
	}
	// expirable ticks every ttl/100, shorter values panic in its reaper
	if cfg.cacheTTL < minCacheTTL {
		return nil, ErrCacheTTL
	}

	limit := rate.Inf
	if cfg.rateLimit > 0 {
		limit = rate.Limit(cfg.rateLimit)
	}
	limiter := rate.NewLimiter(limit, 1)

	client := req.C().
		SetBaseURL(baseURL).
		SetUserAgent(version.UserAgent()).
		SetCommonHeader(HeaderVersion, version.Version).
		SetCommonBearerAuthToken(cfg.token).
		SetCommonErrorResult(&APIError{}).
		SetCommonRetryCount(cfg.retryCount).
		SetCommonRetryBackoffInterval(retryMinBackoff, retryMaxBackoff).
		SetCommonRetryCondition(shouldRetry).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal).
		OnBeforeRequest(func(_ *req.Client, r *req.Request) error {
			return limiter.Wait(r.Context())
		})

	cache := expirable.NewLRU[string, *Page](cfg.cacheSize, nil, cfg.cacheTTL)

	return &Client{
		client:  client,
		baseURL: baseURL,
		Pages:   newPagesAPI(client, cache),
	}, nil
}

// BaseURL is the service the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// transport failures, throttling and server errors are worth another try
func shouldRetry(resp *req.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
}
