// Package supabase talks to a hosted Supabase project: GoTrue for auth and
// PostgREST for the users table.
package supabase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/newthinker/nextsignal/internal/auth"
	"github.com/newthinker/nextsignal/internal/config"
	"github.com/newthinker/nextsignal/internal/core"
)

// Client is a minimal Supabase REST client.
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	client     *http.Client
	now        func() time.Time
}

// New creates a client from config.
func New(cfg config.SupabaseConfig) *Client {
	return NewWithClient(cfg, &http.Client{Timeout: 15 * time.Second})
}

// NewWithClient creates a client using the given HTTP client (useful for testing).
func NewWithClient(cfg config.SupabaseConfig, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceKey,
		client:     httpClient,
		now:        time.Now,
	}
}

var _ auth.Provider = (*Client)(nil)

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    int64     `json:"expires_at"`
	User         auth.User `json:"user"`
}

// apiError covers both GoTrue and PostgREST error bodies.
type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Code             any    `json:"code"`
}

func (e apiError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// SignIn exchanges email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	body := map[string]string{"email": email, "password": password}

	var tok tokenResponse
	status, err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", c.anonKey, "", body, &tok, nil)
	if err != nil {
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return nil, core.WrapError(core.ErrAuthFailed, err)
		}
		return nil, fmt.Errorf("signing in: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, core.WrapError(core.ErrAuthFailed, fmt.Errorf("empty access token"))
	}

	return &auth.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    c.expiry(tok),
		User:         tok.User,
	}, nil
}

func (c *Client) expiry(tok tokenResponse) time.Time {
	switch {
	case tok.ExpiresAt > 0:
		return time.Unix(tok.ExpiresAt, 0)
	case tok.ExpiresIn > 0:
		return c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	default:
		return time.Time{}
	}
}

// SignOut revokes the session. A token the server no longer knows is already signed out.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	status, err := c.do(ctx, http.MethodPost, "/auth/v1/logout", c.anonKey, accessToken, nil, nil, nil)
	if err != nil {
		if status == http.StatusUnauthorized || status == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("signing out: %w", err)
	}
	return nil
}

// GetUser resolves the user behind an access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*auth.User, error) {
	var user auth.User
	status, err := c.do(ctx, http.MethodGet, "/auth/v1/user", c.anonKey, accessToken, nil, &user, nil)
	if err != nil {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return nil, core.WrapError(core.ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	if user.ID == "" {
		return nil, core.WrapError(core.ErrUnauthorized, fmt.Errorf("no user for token"))
	}
	return &user, nil
}

// do sends a JSON request and decodes a 2xx body into out. The returned status
// is 0 when no response was received.
func (c *Client) do(ctx context.Context, method, path, apiKey, bearer string, in, out any, headers map[string]string) (int, error) {
	var reader io.Reader
	if in != nil {
		data, err := sonic.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer == "" {
		bearer = apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr apiError
		_ = sonic.Unmarshal(data, &apiErr)
		if msg := apiErr.text(); msg != "" {
			return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
		}
		return resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}

	if out != nil && len(data) > 0 {
		if err := sonic.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
