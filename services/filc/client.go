package filc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultTimeout is the default HTTP client timeout for regular agent calls
	DefaultTimeout = 60 * time.Second
	// DefaultDialTimeout is the timeout for establishing TCP connections
	DefaultDialTimeout = 10 * time.Second
	// DefaultTLSTimeout is the timeout for TLS handshake
	DefaultTLSTimeout = 10 * time.Second
	// DefaultHeaderTimeout is the timeout for waiting for response headers
	DefaultHeaderTimeout = 30 * time.Second
	// DefaultIdleTimeout is the timeout for idle connections
	DefaultIdleTimeout = 90 * time.Second
)

// ConnectionStatus is the last-observed reachability of the agent service.
type ConnectionStatus string

const (
	StatusConnected   ConnectionStatus = "connected"
	StatusTimeout     ConnectionStatus = "timeout"
	StatusUnreachable ConnectionStatus = "unreachable"
	StatusErrored     ConnectionStatus = "error"
	StatusUnknown     ConnectionStatus = "unknown"
)

// HistorySource loads recent conversation context for a session, newest
// last. Used when a caller passes the FetchHistory sentinel.
type HistorySource func(ctx context.Context, sessionID string, limit int) ([]HistoryEntry, error)

// Client handles all FILC agent API interactions.
type Client struct {
	apiKey          string
	baseURL         string
	httpClient      *http.Client // For regular API calls
	streamingClient *http.Client // For streaming requests (no client-level timeout)
	retryConfig     RetryConfig
	historySource   HistorySource

	mu            sync.RWMutex
	lastStatus    ConnectionStatus
	lastErr       string
	lastCheckedAt time.Time
}

// Config holds configuration for the FILC client
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RetryConfig   *RetryConfig  // Optional custom retry config
	HistorySource HistorySource // Optional; backs the FetchHistory sentinel
}

// RetryConfig holds retry configuration for failed requests
type RetryConfig struct {
	MaxRetries     int           // Total attempt budget per request (default: 3)
	InitialBackoff time.Duration // Initial backoff duration (default: 500ms)
	MaxBackoff     time.Duration // Maximum backoff duration (default: 30s)
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

// CalculateBackoff returns the backoff duration for a given retry attempt
// Uses exponential backoff: initialBackoff * 2^attempt, capped at maxBackoff
func CalculateBackoff(attempt int, config RetryConfig) time.Duration {
	backoff := config.InitialBackoff * time.Duration(1<<uint(attempt))
	if backoff > config.MaxBackoff {
		return config.MaxBackoff
	}
	return backoff
}

// NewClient creates a new FILC agent client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	retryConfig := DefaultRetryConfig()
	if config.RetryConfig != nil {
		retryConfig = *config.RetryConfig
	}

	// IMPORTANT: no http.Client.Timeout for streaming - it kills long-running
	// streams. Transport-level timeouts cover connection establishment only.
	streamingTransport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   DefaultDialTimeout,
			KeepAlive: DefaultIdleTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   DefaultTLSTimeout,
		ResponseHeaderTimeout: DefaultHeaderTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
	}

	return &Client{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		streamingClient: &http.Client{
			Transport: streamingTransport,
		},
		retryConfig:   retryConfig,
		historySource: config.HistorySource,
		lastStatus:    StatusUnknown,
	}
}

// GetRetryConfig returns the retry configuration
func (c *Client) GetRetryConfig() RetryConfig {
	return c.retryConfig
}

// ConnectionState returns the last observed status, its error text if any,
// and when it was recorded.
func (c *Client) ConnectionState() (ConnectionStatus, string, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastStatus, c.lastErr, c.lastCheckedAt
}

func (c *Client) recordStatus(status ConnectionStatus, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastStatus = status
	c.lastCheckedAt = time.Now()
	if err != nil {
		c.lastErr = err.Error()
	} else {
		c.lastErr = ""
	}
}

func (c *Client) observe(err error) {
	switch {
	case err == nil:
		c.recordStatus(StatusConnected, nil)
	case IsTimeoutError(err):
		c.recordStatus(StatusTimeout, err)
	default:
		if _, ok := asStatusError(err); ok {
			c.recordStatus(StatusErrored, err)
		} else {
			c.recordStatus(StatusUnreachable, err)
		}
	}
}

// CheckConnection probes the agent's health endpoint and updates the tracked
// connection status.
func (c *Client) CheckConnection(ctx context.Context) error {
	url := c.baseURL + "/api/v1/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := classifyTransportError(err)
		c.observe(wrapped)
		return wrapped
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		c.observe(statusErr)
		return statusErr
	}
	c.observe(nil)
	return nil
}

func asStatusError(err error) (*StatusError, bool) {
	var statusErr *StatusError
	ok := errors.As(err, &statusErr)
	return statusErr, ok
}
