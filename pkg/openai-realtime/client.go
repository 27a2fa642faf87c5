package openairealtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultWebSocketURL is the default WebSocket endpoint.
	DefaultWebSocketURL = "wss://api.openai.com/v1/realtime"

	// DefaultHandshakeTimeout bounds the WebSocket opening handshake when
	// the caller's context carries no deadline.
	DefaultHandshakeTimeout = 30 * time.Second
)

// Client is the OpenAI Realtime API client.
type Client struct {
	config *clientConfig
}

type clientConfig struct {
	apiKey           string
	organization     string
	project          string
	wsURL            string
	handshakeTimeout time.Duration
}

// Option configures the Client.
type Option func(*clientConfig)

// NewClient creates a new OpenAI Realtime client.
//
// The apiKey is required and can be obtained from:
// https://platform.openai.com/api-keys
func NewClient(apiKey string, opts ...Option) *Client {
	if apiKey == "" {
		panic("openai-realtime: API key is required")
	}

	cfg := &clientConfig{
		apiKey:           apiKey,
		wsURL:            DefaultWebSocketURL,
		handshakeTimeout: DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{config: cfg}
}

// WithOrganization sets the organization ID for API requests.
func WithOrganization(orgID string) Option {
	return func(c *clientConfig) {
		c.organization = orgID
	}
}

// WithProject sets the project ID for API requests.
func WithProject(projectID string) Option {
	return func(c *clientConfig) {
		c.project = projectID
	}
}

// WithWebSocketURL sets the WebSocket URL.
func WithWebSocketURL(url string) Option {
	return func(c *clientConfig) {
		c.wsURL = url
	}
}

// WithHandshakeTimeout sets the WebSocket handshake timeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.handshakeTimeout = d
	}
}

// Connect dials the Realtime WebSocket endpoint and starts reading frames.
func (c *Client) Connect(ctx context.Context, config *ConnectConfig) (Session, error) {
	if config == nil {
		config = &ConnectConfig{}
	}
	model := config.Model
	if model == "" {
		model = DefaultModel
	}

	u, err := url.Parse(c.config.wsURL)
	if err != nil {
		return nil, fmt.Errorf("openai-realtime: invalid url: %w", err)
	}
	q := u.Query()
	q.Set("model", model)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.config.apiKey)
	headers.Set("OpenAI-Beta", "realtime=v1")
	if c.config.organization != "" {
		headers.Set("OpenAI-Organization", c.config.organization)
	}
	if c.config.project != "" {
		headers.Set("OpenAI-Project", c.config.project)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.config.handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, &Error{
				Code:       "connection_failed",
				Message:    fmt.Sprintf("failed to connect: %v", err),
				HTTPStatus: resp.StatusCode,
			}
		}
		return nil, fmt.Errorf("openai-realtime: failed to connect: %w", err)
	}
	return newWebSocketSession(conn, model), nil
}
