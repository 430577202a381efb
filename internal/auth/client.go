package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	loginPath  = "/api/auth/login"
	logoutPath = "/api/auth/logout"
)

var (
	// ErrInvalidCredentials is returned when the backend rejects the login
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrMissingToken is returned when the backend accepts a login without issuing a token
	ErrMissingToken = errors.New("login response carried no token")
)

// Identity is the result of a successful login
type Identity struct {
	Token       string `json:"-"`
	DisplayName string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		Name string `json:"name"`
	} `json:"user"`
}

// Client logs in and out against the backend and owns the persisted credential
type Client struct {
	baseURL string
	client  *http.Client
	store   Store
}

// NewClient creates a Client for the backend at baseURL
func NewClient(baseURL string, store Store, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		store:   store,
	}
}

// Login exchanges email and password for a bearer credential and persists it
func (c *Client) Login(ctx context.Context, email, password string) (*Identity, error) {
	jsonData, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling login API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, ErrInvalidCredentials
	}

	var loginResp loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if loginResp.Token == "" {
		return nil, ErrMissingToken
	}

	if err := c.store.Set(KeyToken, loginResp.Token); err != nil {
		return nil, fmt.Errorf("saving token: %w", err)
	}
	if err := c.store.Set(KeyUserName, loginResp.User.Name); err != nil {
		return nil, fmt.Errorf("saving user name: %w", err)
	}

	slog.Info("Logged in", "user", loginResp.User.Name)
	return &Identity{Token: loginResp.Token, DisplayName: loginResp.User.Name}, nil
}

// Logout notifies the backend without waiting on its answer and wipes the store
func (c *Client) Logout(ctx context.Context) {
	token := c.Credential()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+logoutPath, nil)
	if err == nil {
		req.Header.Set("Authorization", "Bearer "+token)
		if resp, err := c.client.Do(req); err != nil {
			slog.Debug("Logout request failed", "error", err)
		} else {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	if err := c.store.Clear(); err != nil {
		slog.Error("Failed to clear credential store", "error", err)
	}
}

// Credential returns the stored bearer token, or "" when logged out
func (c *Client) Credential() string {
	token, err := c.store.Get(KeyToken)
	if err != nil {
		slog.Error("Failed to read credential", "error", err)
		return ""
	}
	return token
}

// DisplayName returns the stored user name
func (c *Client) DisplayName() string {
	name, err := c.store.Get(KeyUserName)
	if err != nil {
		slog.Error("Failed to read user name", "error", err)
		return ""
	}
	return name
}

// LoggedIn reports whether a credential is stored
func (c *Client) LoggedIn() bool {
	return c.Credential() != ""
}
