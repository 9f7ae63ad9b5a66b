package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kingrea/espace-membre/internal/member"
)

// DefaultTimeout bounds every portal request.
const DefaultTimeout = 15 * time.Second

// Client is the HTTP implementation of Portal.
type Client struct {
	baseURL string
	http    *http.Client
	members singleflight.Group
}

// ClientOption customizes the client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient targets the portal at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("portal: base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("portal: invalid base url %q: %w", baseURL, err)
	}
	c := &Client{
		baseURL: trimmed,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the portal root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Member fetches one member. Concurrent fetches of the same member share a
// single request.
func (c *Client) Member(ctx context.Context, id string) (member.Snapshot, error) {
	if strings.TrimSpace(id) == "" {
		return member.Snapshot{}, fmt.Errorf("portal: member id is required")
	}
	v, err, _ := c.members.Do(id, func() (any, error) {
		var snap member.Snapshot
		err := c.do(ctx, http.MethodGet, "/api/public/users/"+url.PathEscape(id), nil, &snap)
		return snap, err
	})
	if err != nil {
		return member.Snapshot{}, err
	}
	return v.(member.Snapshot).Clone(), nil
}

// Members lists the directory for the member picker.
func (c *Client) Members(ctx context.Context) ([]member.Summary, error) {
	var out []member.Summary
	if err := c.do(ctx, http.MethodGet, "/api/get-users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OpenChangeRequests lists the open pull requests.
func (c *Client) OpenChangeRequests(ctx context.Context) ([]ChangeRequest, error) {
	var payload struct {
		PullRequests []ChangeRequest `json:"pullRequests"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/pull-requests", nil, &payload); err != nil {
		return nil, err
	}
	return payload.PullRequests, nil
}

// SubmitEndDate posts the base-info form and returns the opened change request.
func (c *Client) SubmitEndDate(ctx context.Context, id string, change EndDateChange) (string, error) {
	var payload struct {
		Message string `json:"message"`
		PRURL   string `json:"pr_url"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/public/account/base-info/"+url.PathEscape(id), change, &payload); err != nil {
		return "", err
	}
	return payload.PRURL, nil
}

// CreateMailbox asks the portal to provision the member's mailbox.
func (c *Client) CreateMailbox(ctx context.Context, id, recoveryEmail string) error {
	body := map[string]string{"to_email": recoveryEmail}
	return c.do(ctx, http.MethodPost, "/api/users/"+url.PathEscape(id)+"/create-email", body, nil)
}

// CurrentUser returns the operator behind the session.
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	var payload struct {
		User json.RawMessage `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &payload); err != nil {
		return "", err
	}
	operator := decodeOperator(payload.User)
	if operator == "" {
		return "", ErrUnauthorized
	}
	return operator, nil
}

// RequestLoginLink sends a login link to email.
func (c *Client) RequestLoginLink(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/login", map[string]string{"emailInput": email}, nil)
}

// decodeOperator accepts either a bare identifier or a user object.
func decodeOperator(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var user struct {
		ID       string `json:"id"`
		Fullname string `json:"fullname"`
	}
	if err := json.Unmarshal(raw, &user); err != nil {
		return ""
	}
	return strings.TrimSpace(user.ID)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("portal: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("portal: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("portal: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeFailure(resp, method, path)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("portal: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeFailure(resp *http.Response, method, path string) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode == http.StatusBadRequest {
		var payload struct {
			Message string              `json:"message"`
			Errors  map[string][]string `json:"errors"`
		}
		if err := json.Unmarshal(raw, &payload); err == nil && (payload.Message != "" || len(payload.Errors) > 0) {
			return &ValidationError{Message: payload.Message, Fields: payload.Errors}
		}
	}
	return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}

// StatusError is an unexpected portal response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("portal: %s %s returned %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("portal: %s %s returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// IsTransient reports whether err is worth retrying on the next poll.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var validation *ValidationError
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) || errors.As(err, &validation) {
		return false
	}
	return true
}
