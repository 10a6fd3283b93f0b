// Package authclient talks to the remote login endpoint that fronts the
// storefront's admin views.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RoleAdmin is the role allowed into admin endpoints.
const RoleAdmin = "admin"

var (
	// ErrRejected is returned when the endpoint answers success=false.
	ErrRejected = errors.New("authclient: login rejected")
	// ErrMalformed is returned for a success response without a token.
	ErrMalformed = errors.New("authclient: malformed login response")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authclient: login status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("authclient: login status %d", e.Code)
}

type User struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Session is a successful login.
type Session struct {
	User  User
	Token string
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    struct {
		User  User   `json:"user"`
		Token string `json:"token"`
	} `json:"data"`
}

type Client struct {
	url  string
	http *http.Client
}

// New returns a client posting to loginURL. A nil hc uses a client with a 10s timeout.
func New(loginURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{url: loginURL, http: hc}
}

func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	body, err := json.Marshal(credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("authclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authclient: login: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("authclient: read response: %w", err)
	}
	var lr loginResponse
	decErr := json.Unmarshal(raw, &lr)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{Code: res.StatusCode, Message: lr.Message}
	}
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, decErr)
	}
	if !lr.Success {
		if lr.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrRejected, lr.Message)
		}
		return nil, ErrRejected
	}
	if lr.Data.Token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}
	return &Session{User: lr.Data.User, Token: lr.Data.Token}, nil
}
