// Package dataclient talks to the todogate backend over HTTP. Client.Todo is
// the model accessor the list view uses; the auth calls back the sign-in gate.
package dataclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"todogate/internal/model"
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

type Options struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
	HTTP     *http.Client
}

type Client struct {
	endpoint string
	token    string
	http     *http.Client

	Todo *TodoModel
}

func New(opts Options) *Client {
	hc := opts.HTTP
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	c := &Client{
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		token:    opts.Token,
		http:     hc,
	}
	c.Todo = &TodoModel{c: c}
	return c
}

// WithToken returns a client sharing the transport but carrying token.
func (c *Client) WithToken(token string) *Client {
	return New(Options{Endpoint: c.endpoint, Token: token, HTTP: c.http})
}

func (c *Client) Endpoint() string { return c.endpoint }

// Health pings the backend.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignInResult is what a successful sign-in returns.
type SignInResult struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (c *Client) SignUp(ctx context.Context, username, password string) error {
	return c.do(ctx, http.MethodPost, "/auth/signup", credentials{Username: username, Password: password}, nil)
}

func (c *Client) SignIn(ctx context.Context, username, password string) (SignInResult, error) {
	var out SignInResult
	err := c.do(ctx, http.MethodPost, "/auth/signin", credentials{Username: username, Password: password}, &out)
	return out, err
}

func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/signout", nil, nil)
}

// Me returns the username bound to the client's token.
func (c *Client) Me(ctx context.Context) (string, error) {
	var out struct {
		Username string `json:"username"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return "", err
	}
	return out.Username, nil
}

// TodoModel is the accessor for the Todo model.
type TodoModel struct {
	c *Client
}

// List returns the full collection in backend order.
func (m *TodoModel) List(ctx context.Context) ([]model.Item, error) {
	var out struct {
		Data      []model.Item `json:"data"`
		NextToken *string      `json:"nextToken"`
	}
	if err := m.c.do(ctx, http.MethodGet, "/models/todo", nil, &out); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	if out.Data == nil {
		out.Data = []model.Item{}
	}
	return out.Data, nil
}

func (m *TodoModel) Create(ctx context.Context, in model.CreateItemInput) (model.Item, error) {
	var out struct {
		Data model.Item `json:"data"`
	}
	if err := m.c.do(ctx, http.MethodPost, "/models/todo", in, &out); err != nil {
		return model.Item{}, fmt.Errorf("create todo: %w", err)
	}
	return out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &e) == nil {
			apiErr.Message = e.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
