package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lionkeng/mapbox-mcp-server/internal/metrics"
	"github.com/lionkeng/mapbox-mcp-server/pkg/auth"
)

// rpcPath is the canonical RPC path suffix enforced on every server URL.
const rpcPath = "/mcp"

// tokenRefreshMargin is how long before credential expiry the client mints
// a replacement, so a call never goes out with a token about to lapse.
const tokenRefreshMargin = 5 * time.Minute

// DefaultTimeout bounds a single Request call unless overridden.
const DefaultTimeout = 30 * time.Second

const userAgent = "mapbox-mcp-client/0.1.0"

// Client is a JSON-RPC 2.0 client for a Mapbox MCP server over HTTP.
//
// Each client owns one logical connection, identified to the server by a
// per-client session UUID sent on every call. Credentials are minted by
// the configured auth.Issuer and cached until they approach expiry.
// Requests are at-most-once: the client never retries on its own, since
// tool calls are not guaranteed idempotent; retry policy belongs to the
// caller.
type Client struct {
	endpoint   string
	issuer     *auth.Issuer
	httpClient *http.Client
	logger     *zap.Logger
	limiter    *rate.Limiter
	sessionID  string

	timeout      time.Duration
	tokenTTL     time.Duration
	refreshAfter time.Duration
	scopes       []string

	// credential state, guarded by mu
	mu            sync.Mutex
	token         string
	tokenIssuedAt time.Time
	closed        bool
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client. The client must not carry a
// global Timeout: that would also bound long-lived event streams. Per-call
// deadlines come from WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-call timeout for Request. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.timeout = d
		return nil
	}
}

// WithLogger sets the structured logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) error {
		c.logger = l
		return nil
	}
}

// WithRateLimit applies client-side token-bucket limiting to outbound
// calls. Useful when the server enforces a per-client quota.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) error {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// WithTokenTTL sets the validity window of minted credentials.
func WithTokenTTL(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return &ConfigError{Reason: "token TTL must be positive"}
		}
		c.tokenTTL = d
		return nil
	}
}

// WithRefreshThreshold overrides the credential refresh age. It must stay
// strictly below the token TTL; the default is TTL minus five minutes.
func WithRefreshThreshold(d time.Duration) Option {
	return func(c *Client) error {
		c.refreshAfter = d
		return nil
	}
}

// WithScopes sets the permission scopes requested on every credential.
func WithScopes(scopes []string) Option {
	return func(c *Client) error {
		c.scopes = scopes
		return nil
	}
}

// New creates a Client for the MCP server at serverURL, normalizing the
// URL to end in the canonical RPC path:
//
//	"http://host"      → "http://host/mcp"
//	"http://host/mcp/" → "http://host/mcp"
//
// It fails with a ConfigError when serverURL is empty or issuer is nil.
func New(serverURL string, issuer *auth.Issuer, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, &ConfigError{Reason: "server URL is required (set MCP_SERVER_URL)"}
	}
	if issuer == nil {
		return nil, &ConfigError{Reason: "token issuer is required"}
	}

	endpoint := strings.TrimSuffix(serverURL, "/")
	if !strings.HasSuffix(endpoint, rpcPath) {
		endpoint += rpcPath
	}

	c := &Client{
		endpoint:   endpoint,
		issuer:     issuer,
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
		sessionID:  uuid.NewString(),
		timeout:    DefaultTimeout,
		tokenTTL:   issuer.TTL(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	if c.refreshAfter == 0 {
		c.refreshAfter = c.tokenTTL - tokenRefreshMargin
		if c.refreshAfter <= 0 {
			c.refreshAfter = c.tokenTTL / 2
		}
	}
	return c, nil
}

// Endpoint returns the normalized RPC endpoint the client talks to.
func (c *Client) Endpoint() string { return c.endpoint }

// SessionID returns the session identifier attached to every call.
func (c *Client) SessionID() string { return c.sessionID }

// TokenIssuedAt returns when the cached credential was minted. Zero when
// no credential has been issued yet. Exposed for observability.
func (c *Client) TokenIssuedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokenIssuedAt
}

// Close releases the underlying connection pool. Calls made after Close
// fail with ErrClientClosed. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.httpClient.CloseIdleConnections()
	return nil
}

// freshToken returns a valid bearer token, minting a new one when none is
// cached or the cached one has aged past the refresh threshold. A spare
// issuance under concurrency is harmless; an expired token on the wire is
// not, so this blocks the call rather than refreshing in the background.
func (c *Client) freshToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Since(c.tokenIssuedAt) <= c.refreshAfter {
		return c.token, nil
	}

	token, err := c.issuer.Issue(c.scopes, c.tokenTTL)
	if err != nil {
		return "", fmt.Errorf("issue credential: %w", err)
	}
	c.logger.Info("minted new credential",
		zap.Bool("refresh", c.token != ""),
		zap.Duration("ttl", c.tokenTTL),
	)
	c.token = token
	c.tokenIssuedAt = time.Now()
	metrics.RecordTokenIssued()
	return token, nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Request sends a single JSON-RPC request and returns the decoded
// response body. The request identifier is a fresh UUID, unique for the
// client's lifetime.
//
// Failures map onto the client's error taxonomy: a TransportError for
// connection failures and non-2xx statuses, a TimeoutError when the
// per-call deadline elapses, and a RemoteError when the body carries a
// JSON-RPC error descriptor. A body with neither an error nor a
// recognizable result shape is returned verbatim; validating the shape
// is the caller's burden.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	token, err := c.freshToken()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	body, err := json.Marshal(Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req, token)

	c.logger.Debug("sending request",
		zap.String("method", method),
		zap.String("request_id", id),
		zap.String("session_id", c.sessionID),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.RecordRequest(method, "timeout", time.Since(start))
			return nil, &TimeoutError{Method: method, Timeout: c.timeout, Err: err}
		}
		metrics.RecordRequest(method, "transport_error", time.Since(start))
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.RecordRequest(method, "timeout", time.Since(start))
			return nil, &TimeoutError{Method: method, Timeout: c.timeout, Err: err}
		}
		metrics.RecordRequest(method, "transport_error", time.Since(start))
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordRequest(method, "transport_error", time.Since(start))
		return nil, &TransportError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var envelope struct {
		Error  *RemoteError    `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		metrics.RecordRequest(method, "transport_error", time.Since(start))
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		metrics.RecordRequest(method, "remote_error", time.Since(start))
		c.logger.Error("request failed",
			zap.String("method", method),
			zap.Int("code", envelope.Error.Code),
			zap.String("message", envelope.Error.Message),
		)
		return nil, envelope.Error
	}
	if len(envelope.Result) == 0 {
		c.logger.Debug("response has no result field, passing body through",
			zap.String("method", method),
		)
	}

	metrics.RecordRequest(method, "ok", time.Since(start))
	return respBody, nil
}

// Stream sends a JSON-RPC call over a persistent event-stream connection
// and returns the resulting lazy event sequence. The caller must Close
// the stream on every exit path. Nil params are sent as an empty object.
//
// Unlike Request there is no overall deadline: the stream lives until the
// server closes it, and each read is bounded only by ctx and the
// transport's own read behavior.
func (c *Client) Stream(ctx context.Context, method string, params any) (*Stream, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	token, err := c.freshToken()
	if err != nil {
		return nil, err
	}

	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(Request{
		JSONRPC: Version,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req, token)
	req.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("opening stream",
		zap.String("method", method),
		zap.String("session_id", c.sessionID),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
		return nil, &TransportError{Status: resp.StatusCode, Body: string(errBody)}
	}

	return newStream(resp.Body, c.logger), nil
}

// CallTool invokes a named remote tool via tools/call. When the response
// wraps the tool output in a result field it returns the unwrapped value;
// otherwise the payload is returned as-is. This accommodates servers that
// either wrap or flatten their tool results.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (json.RawMessage, error) {
	payload, err := c.Request(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": arguments,
	})
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(payload, &wrapper); err == nil && len(wrapper.Result) > 0 {
		return wrapper.Result, nil
	}
	return payload, nil
}

// ListTools fetches the server's tool catalog via tools/list. A response
// without a result.tools array yields an empty slice, not an error.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	payload, err := c.Request(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Result struct {
			Tools []Tool `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, nil
	}
	return envelope.Result.Tools, nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("mcp-session-id", c.sessionID)
}
