package portalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Client talks to the portal JSON API. After a successful Login or
// CompleteTwoFactor the session token is kept and sent as a Bearer token.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Token returns the current session token, if any.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the session token, e.g. one restored from storage.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*UserInfo, error) {
	var out UserInfo
	if err := c.do(ctx, http.MethodPost, "/v1/auth/register", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodGet, "/v1/auth/verify-email?token="+token, nil, nil, http.StatusOK)
}

// Bootstrap creates the first root account.
func (c *Client) Bootstrap(ctx context.Context, req BootstrapRequest) (*UserInfo, error) {
	var out UserInfo
	if err := c.do(ctx, http.MethodPost, "/v1/bootstrap", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/password/forgot", ForgotPasswordRequest{Email: email}, nil, http.StatusOK)
}

func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/password/reset", req, nil, http.StatusOK)
}

// Login returns either a session or a two-factor challenge.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/login", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	if out.Token != "" {
		c.SetToken(out.Token)
	}
	return &out, nil
}

func (c *Client) CompleteTwoFactor(ctx context.Context, challengeToken, code string) (*LoginResponse, error) {
	var out LoginResponse
	req := TwoFactorLoginRequest{ChallengeToken: challengeToken, Code: code}
	if err := c.do(ctx, http.MethodPost, "/v1/auth/login/2fa", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/v1/auth/logout", nil, nil, http.StatusNoContent); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// RenewSession extends the current session and swaps in the re-issued token.
func (c *Client) RenewSession(ctx context.Context) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/session/renew", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*UserInfo, error) {
	var out UserInfo
	if err := c.do(ctx, http.MethodGet, "/v1/me", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MyPermissions(ctx context.Context) ([]string, error) {
	var out MyPermissionsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/me/permissions", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Permissions, nil
}

func (c *Client) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	var out ListSessionsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/sessions", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *Client) RevokeSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/sessions/"+id, nil, nil, http.StatusNoContent)
}

func (c *Client) SetupTOTP(ctx context.Context) (*TOTPSetupResponse, error) {
	var out TOTPSetupResponse
	if err := c.do(ctx, http.MethodPost, "/v1/mfa/totp/setup", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ConfirmTOTP(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodPost, "/v1/mfa/totp/verify", TOTPCodeRequest{Code: code}, nil, http.StatusNoContent)
}

// ListUsers requires manage_users.
func (c *Client) ListUsers(ctx context.Context) ([]UserInfo, error) {
	var out ListUsersResponse
	if err := c.do(ctx, http.MethodGet, "/v1/users", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) GetUser(ctx context.Context, id string) (*UserInfo, error) {
	var out UserInfo
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+id, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateUser requires manage_users; only root may create root accounts.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*UserInfo, error) {
	var out UserInfo
	if err := c.do(ctx, http.MethodPost, "/v1/users", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserInfo, error) {
	var out UserInfo
	if err := c.do(ctx, http.MethodPatch, "/v1/users/"+id, req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	var out StatsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/stats", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/livez", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends body as JSON and decodes the response into out when the status
// matches expected. Any other status is returned as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any, expected int) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != expected {
		return parseErrorResponse(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
