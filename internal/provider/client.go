package provider

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/google/uuid"

	"modelgate/internal/auth"
	"modelgate/internal/metrics"
)

// Version is stamped into the derived upstream User-Agent.
const Version = "0.1.0"

// Client issues calls to the one configured upstream provider. It owns
// the streaming vs non-streaming branch; translation of payloads happens
// in the adapters.
type Client struct {
	builder    RequestBuilder
	wire       WireAPI
	creds      auth.Credentials
	originator string
	metrics    *metrics.Metrics

	httpClient *http.Client
	// streamClient has no timeout; streaming responses can be
	// long-lived. The request context carries any deadline.
	streamClient *http.Client
}

// NewClient constructs a Client for the provider at baseURL speaking the
// given wire kind. The endpoint path is derived from the wire kind.
func NewClient(baseURL string, wire WireAPI, creds auth.Credentials, originator string, timeout time.Duration, m *metrics.Metrics) *Client {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	return &Client{
		builder: &bearerBuilder{
			endpoint: trimSlash(baseURL) + wire.endpointPath(),
			creds:    creds,
		},
		wire:         wire,
		creds:        creds,
		originator:   originator,
		metrics:      m,
		httpClient:   &http.Client{Timeout: timeout, Transport: transport},
		streamClient: &http.Client{Transport: transport},
	}
}

// NewClientWithBuilder injects a custom authenticated-request builder.
func NewClientWithBuilder(b RequestBuilder, wire WireAPI, creds auth.Credentials, originator string, timeout time.Duration, m *metrics.Metrics) *Client {
	c := NewClient("", wire, creds, originator, timeout, m)
	c.builder = b
	return c
}

// Wire is the wire kind the provider speaks; it never changes after
// construction.
func (c *Client) Wire() WireAPI { return c.wire }

// AuthMode is the upstream credential mode.
func (c *Client) AuthMode() auth.Mode { return c.creds.Mode }

// Do sends a non-streaming upstream call and returns the raw response.
// The caller owns the body. A *BuildError means the authenticated
// request could not be constructed; any other error is a transport
// failure.
func (c *Client) Do(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.Upstream.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	c.metrics.Upstream.WithLabelValues("ok").Inc()
	return resp, nil
}

// Stream sends a streaming upstream call with an event-stream accept
// header. On success the caller hands the body to a forwarding
// goroutine; on failure no goroutine is ever started.
func (c *Client) Stream(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		c.metrics.Upstream.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	c.metrics.Upstream.WithLabelValues("ok").Inc()
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := c.builder.Build(ctx, body)
	if err != nil {
		c.metrics.Upstream.WithLabelValues("config_error").Inc()
		return nil, &BuildError{Err: err}
	}
	c.decorate(req)
	return req, nil
}

// decorate attaches the headers the Responses backend requires: the beta
// feature marker, a fresh per-request session id, the originator tag,
// the derived User-Agent and, under ChatGPT auth with a resolved account
// id, the account header.
func (c *Client) decorate(req *http.Request) {
	if c.wire != WireResponses {
		return
	}
	req.Header.Set("OpenAI-Beta", "responses=experimental")
	req.Header.Set("session_id", uuid.NewString())
	req.Header.Set("originator", c.originator)
	req.Header.Set("User-Agent", UserAgent(c.originator))
	if c.creds.Mode == auth.ModeChatGPT && c.creds.AccountID != "" {
		req.Header.Set("chatgpt-account-id", c.creds.AccountID)
	}
}

// UserAgent derives the upstream User-Agent from the gateway version,
// platform and the configured originator tag.
func UserAgent(originator string) string {
	ua := fmt.Sprintf("modelgate/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
	if originator != "" {
		ua = ua + " " + originator
	}
	return ua
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
