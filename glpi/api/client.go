// Package api is a minimal client for the GLPI REST API (apirest.php), used
// to verify that a freshly bootstrapped instance serves authenticated requests.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/getpup/pupsourcing/es"
	"github.com/sony/gobreaker"
)

const maxBodySize = 4 << 20

// Config configures a Client.
type Config struct {
	// BaseURL is the GLPI root URL, e.g. http://localhost:8000 (required).
	BaseURL string

	// AppToken identifies the API client registered in GLPI (optional).
	AppToken string

	// UserToken is the personal API token used to open sessions.
	UserToken string

	// HTTPClient performs requests (default: client with a 30s timeout).
	HTTPClient *http.Client

	// Breaker guards every call (default: NewCircuitBreaker("glpi-api")).
	Breaker *gobreaker.CircuitBreaker

	// Logger is an optional logger for observability.
	Logger es.Logger
}

// Client talks to the GLPI REST API.
type Client struct {
	config Config
}

// NewCircuitBreaker returns a breaker that opens after 3 consecutive
// transport or server failures and probes again after 30 seconds.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

// New creates a Client, applying defaults for zero-valued fields.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewCircuitBreaker("glpi-api")
	}

	return &Client{config: cfg}, nil
}

// InitSession opens a session with the user token and returns the session token.
func (c *Client) InitSession(ctx context.Context) (string, error) {
	if c.config.UserToken == "" {
		return "", errors.New("user token is required to open a session")
	}

	var out struct {
		SessionToken string `json:"session_token"`
	}
	err := c.get(ctx, "initSession", map[string]string{
		"Authorization": "user_token " + c.config.UserToken,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("failed to init session: %w", err)
	}
	if out.SessionToken == "" {
		return "", errors.New("failed to init session: response carries no session_token")
	}

	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "GLPI API session opened")
	}
	return out.SessionToken, nil
}

// KillSession destroys the session identified by token.
func (c *Client) KillSession(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoSession
	}

	err := c.get(ctx, "killSession", map[string]string{"Session-Token": token}, nil)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusUnauthorized &&
			reqErr.Code == "ERROR_SESSION_TOKEN_INVALID" {
			return fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		return fmt.Errorf("failed to kill session: %w", err)
	}

	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "GLPI API session closed")
	}
	return nil
}

// GetGlpiConfig returns the instance's $CFG_GLPI.
func (c *Client) GetGlpiConfig(ctx context.Context, token string) (map[string]any, error) {
	var out struct {
		Config map[string]any `json:"cfg_glpi"`
	}
	if err := c.session(ctx, "getGlpiConfig", token, &out); err != nil {
		return nil, err
	}
	return out.Config, nil
}

// GetMyProfiles returns the profiles of the session's user.
func (c *Client) GetMyProfiles(ctx context.Context, token string) ([]map[string]any, error) {
	var out struct {
		Profiles []map[string]any `json:"myprofiles"`
	}
	if err := c.session(ctx, "getMyProfiles", token, &out); err != nil {
		return nil, err
	}
	return out.Profiles, nil
}

// WithSession opens a session, calls fn with its token and always kills the
// session afterwards. fn's error takes precedence over the kill error.
func (c *Client) WithSession(ctx context.Context, fn func(token string) error) (err error) {
	token, err := c.InitSession(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if kerr := c.KillSession(ctx, token); kerr != nil && err == nil {
			err = kerr
		}
	}()

	return fn(token)
}

func (c *Client) session(ctx context.Context, method, token string, out any) error {
	if token == "" {
		return ErrNoSession
	}
	if err := c.get(ctx, method, map[string]string{"Session-Token": token}, out); err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	return nil
}

type response struct {
	status int
	body   []byte
}

func (c *Client) get(ctx context.Context, method string, headers map[string]string, out any) error {
	url := c.config.BaseURL + "/apirest.php/" + method

	if c.config.Logger != nil {
		c.config.Logger.Debug(ctx, "calling GLPI API", "method", method)
	}

	// Client errors are returned outside the breaker so that a bad token
	// does not open the circuit.
	result, err := c.config.Breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.config.AppToken != "" {
			req.Header.Set("App-Token", c.config.AppToken)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.config.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, newRequestError(http.MethodGet, url, resp.StatusCode, body)
		}
		return &response{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		return err
	}

	resp := result.(*response)
	if resp.status >= http.StatusBadRequest {
		return newRequestError(http.MethodGet, url, resp.status, resp.body)
	}
	if out == nil {
		return nil
	}
	if len(strings.TrimSpace(string(resp.body))) == 0 {
		return newRequestError(http.MethodGet, url, resp.status, resp.body)
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("expected JSON from %s: %w", method, err)
	}
	return nil
}
