package authentik

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/smallbiznis/valora-bff/internal/domain"
)

// Client calls the Authentik admin API with a service token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, httpClient: httpClient}
}

// APIError is a non-2xx Authentik reply.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("authentik: status=%d %s", e.Status, e.Detail)
}

// ListUsers returns the raw paginated users document.
func (c *Client) ListUsers(ctx context.Context, search string, page int) ([]byte, error) {
	q := url.Values{}
	if search = strings.TrimSpace(search); search != "" {
		q.Set("search", search)
	}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	q.Set("page_size", "50")
	return c.call(ctx, http.MethodGet, "/api/v3/core/users/?"+q.Encode(), nil)
}

// ListGroups returns the raw paginated groups document.
func (c *Client) ListGroups(ctx context.Context) ([]byte, error) {
	return c.call(ctx, http.MethodGet, "/api/v3/core/groups/?page_size=100", nil)
}

// AddGroupMember adds the user with primary key userPK to groupID.
func (c *Client) AddGroupMember(ctx context.Context, groupID string, userPK int64) error {
	_, err := c.call(ctx, http.MethodPost, "/api/v3/core/groups/"+url.PathEscape(groupID)+"/add_user/", map[string]int64{"pk": userPK})
	return err
}

// Health checks the liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/-/health/live/", nil)
	if err != nil {
		return fmt.Errorf("build authentik health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("authentik health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Detail: "health"}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode authentik request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build authentik request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authentik %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read authentik response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("authentik %s: %w", path, domain.ErrNotFound)
	case resp.StatusCode >= 300:
		detail := gjson.GetBytes(raw, "detail").String()
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		return nil, &APIError{Status: resp.StatusCode, Detail: detail}
	}
	return raw, nil
}
