package llm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/internal/resilience"
)

// ClaudeClient is the production Client implementation backed by the Claude
// API, with rate limiting, response caching, and a circuit breaker.
type ClaudeClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int

	rateLimiter *rate.Limiter
	breaker     *resilience.CircuitBreaker

	cache        *lruCache
	cacheEnabled bool

	metrics Metrics
	costMu  sync.Mutex
}

// Config for the Claude client
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxTokens     int
	Timeout       time.Duration
	RateLimitRPM  int
	CacheTTL      time.Duration
	CacheSize     int
	MaxRetries    int
	EnableCaching bool

	// BreakerDisabled turns the circuit breaker off (tests).
	BreakerDisabled bool
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://api.anthropic.com",
		Model:         "claude-sonnet-4-20250514",
		MaxTokens:     8192,
		Timeout:       120 * time.Second,
		RateLimitRPM:  50,
		CacheTTL:      24 * time.Hour,
		CacheSize:     1000,
		MaxRetries:    3,
		EnableCaching: true,
	}
}

// Metrics tracks API usage
type Metrics struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalTokensIn   int64
	TotalTokensOut  int64
	TotalCost       float64
	CacheHits       int64
	CacheMisses     int64
}

// NewClaudeClient creates a new Claude API client
func NewClaudeClient(cfg Config) (*ClaudeClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RateLimitRPM == 0 {
		cfg.RateLimitRPM = defaults.RateLimitRPM
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = defaults.CacheSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}

	c := &ClaudeClient{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		timeout:      cfg.Timeout,
		maxRetries:   cfg.MaxRetries,
		rateLimiter:  rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPM)/60.0), 5),
		cache:        newLRUCache(cfg.CacheSize, cfg.CacheTTL),
		cacheEnabled: cfg.EnableCaching,
	}

	if !cfg.BreakerDisabled {
		c.breaker = resilience.New(resilience.DefaultConfig("claude-api"))
	}

	return c, nil
}

// wire types for the messages API

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	System      string       `json:"system,omitempty"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature,omitempty"`
}

type apiMessage struct {
	Role    string     `json:"role"`
	Content []apiBlock `json:"content"`
}

type apiBlock struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	Source *apiImageSource `json:"source,omitempty"`
}

type apiImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type apiResponse struct {
	ID         string     `json:"id"`
	Role       string     `json:"role"`
	Content    []apiBlock `json:"content"`
	Model      string     `json:"model"`
	StopReason string     `json:"stop_reason"`
	Usage      apiUsage   `json:"usage"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Call performs a completion and returns the raw text content.
func (c *ClaudeClient) Call(ctx context.Context, req Request) (*Result, error) {
	atomic.AddInt64(&c.metrics.TotalRequests, 1)

	cacheable := c.cacheEnabled && len(req.Images) == 0 && !req.NoCache
	cacheKey := ""
	if cacheable {
		cacheKey = c.cacheKey(req)
		if cached, ok := c.cache.Get(cacheKey); ok {
			atomic.AddInt64(&c.metrics.CacheHits, 1)
			return &Result{Content: string(cached), Model: c.modelFor(req)}, nil
		}
		atomic.AddInt64(&c.metrics.CacheMisses, 1)
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		atomic.AddInt64(&c.metrics.FailedRequests, 1)
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	callCtx := ctx
	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}
	var cancel context.CancelFunc
	callCtx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	var resp *apiResponse
	var err error
	if c.breaker != nil {
		var result any
		result, err = c.breaker.Execute(callCtx, func(ctx context.Context) (any, error) {
			return c.doRequest(ctx, c.buildRequest(req))
		})
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			atomic.AddInt64(&c.metrics.FailedRequests, 1)
			return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		if result != nil {
			resp = result.(*apiResponse)
		}
	} else {
		resp, err = c.doRequest(callCtx, c.buildRequest(req))
	}

	if err != nil {
		atomic.AddInt64(&c.metrics.FailedRequests, 1)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, err
	}

	atomic.AddInt64(&c.metrics.SuccessRequests, 1)
	atomic.AddInt64(&c.metrics.TotalTokensIn, int64(resp.Usage.InputTokens))
	atomic.AddInt64(&c.metrics.TotalTokensOut, int64(resp.Usage.OutputTokens))

	usage := domain.Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}
	cost := c.calculateCost(usage)

	c.costMu.Lock()
	c.metrics.TotalCost += cost
	c.costMu.Unlock()

	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}

	text := resp.Content[0].Text
	if cacheable {
		c.cache.Set(cacheKey, []byte(text))
	}

	return &Result{
		Content: text,
		Usage:   usage,
		Cost:    cost,
		Model:   resp.Model,
	}, nil
}

// CallJSON performs a completion, extracts a JSON document from the response,
// and unmarshals it into out, retrying on malformed output.
func (c *ClaudeClient) CallJSON(ctx context.Context, req Request, out any) (*Result, error) {
	req.JSONMode = true
	req.System = req.System + "\n\nIMPORTANT: Return ONLY valid JSON. No markdown, no code blocks, no explanations outside the JSON."

	var lastErr error
	total := &Result{Model: c.modelFor(req)}

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		// A retry means the first response was unusable; don't serve it from
		// cache again.
		req.NoCache = req.NoCache || attempt > 0

		result, err := c.Call(ctx, req)
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrTimeout) {
				return total, err
			}
			select {
			case <-ctx.Done():
				return total, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
			continue
		}

		total.Usage.Add(result.Usage)
		total.Cost += result.Cost
		total.Model = result.Model

		jsonStr := extractJSON(result.Content)
		if jsonStr == "" {
			lastErr = fmt.Errorf("no JSON found in response: %s", truncate(result.Content, 200))
			continue
		}

		if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
			lastErr = fmt.Errorf("malformed JSON: %v (response: %s)", err, truncate(jsonStr, 200))
			continue
		}

		total.Content = jsonStr
		return total, nil
	}

	return total, fmt.Errorf("%w: %v", ErrInvalidResponse, lastErr)
}

func (c *ClaudeClient) buildRequest(req Request) apiRequest {
	blocks := make([]apiBlock, 0, len(req.Images)+1)
	for _, img := range req.Images {
		blocks = append(blocks, apiBlock{
			Type: "image",
			Source: &apiImageSource{
				Type:      "base64",
				MediaType: img.MediaType,
				Data:      base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}
	blocks = append(blocks, apiBlock{Type: "text", Text: req.User})

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	return apiRequest{
		Model:       c.modelFor(req),
		MaxTokens:   maxTokens,
		System:      req.System,
		Messages:    []apiMessage{{Role: "user", Content: blocks}},
		Temperature: req.Temperature,
	}
}

func (c *ClaudeClient) modelFor(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.model
}

func (c *ClaudeClient) doRequest(ctx context.Context, req apiRequest) (*apiResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return &apiResp, nil
}

// calculateCost prices a request at Claude Sonnet rates: $3 per million
// input tokens, $15 per million output tokens.
func (c *ClaudeClient) calculateCost(usage domain.Usage) float64 {
	return float64(usage.InputTokens)/1e6*3.00 + float64(usage.OutputTokens)/1e6*15.00
}

func (c *ClaudeClient) cacheKey(req Request) string {
	combined := req.System + "\x00" + req.User
	hash := sha256.Sum256([]byte(combined))
	return c.modelFor(req) + "_" + hex.EncodeToString(hash[:16])
}

// GetMetrics returns a thread-safe copy of the usage metrics.
func (c *ClaudeClient) GetMetrics() Metrics {
	c.costMu.Lock()
	cost := c.metrics.TotalCost
	c.costMu.Unlock()

	return Metrics{
		TotalRequests:   atomic.LoadInt64(&c.metrics.TotalRequests),
		SuccessRequests: atomic.LoadInt64(&c.metrics.SuccessRequests),
		FailedRequests:  atomic.LoadInt64(&c.metrics.FailedRequests),
		TotalTokensIn:   atomic.LoadInt64(&c.metrics.TotalTokensIn),
		TotalTokensOut:  atomic.LoadInt64(&c.metrics.TotalTokensOut),
		TotalCost:       cost,
		CacheHits:       atomic.LoadInt64(&c.metrics.CacheHits),
		CacheMisses:     atomic.LoadInt64(&c.metrics.CacheMisses),
	}
}

// IsHealthy reports whether the client can accept requests.
func (c *ClaudeClient) IsHealthy() bool {
	if c.breaker == nil {
		return true
	}
	return c.breaker.State() != resilience.StateOpen
}

// GetModel returns the default model.
func (c *ClaudeClient) GetModel() string {
	return c.model
}
