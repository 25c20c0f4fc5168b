package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultGatewayURL is Expo's push endpoint.
const DefaultGatewayURL = "https://exp.host/--/api/v2/push/send"

// Message is one notification addressed to one device token.
type Message struct {
	To    string         `json:"to"`
	Title string         `json:"title,omitempty"`
	Body  string         `json:"body,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	Sound string         `json:"sound,omitempty"`
}

// Sender delivers messages to a push gateway.
type Sender interface {
	// Send returns the tokens the gateway reported as no longer registered.
	Send(ctx context.Context, messages []Message) ([]string, error)
}

// ExpoClient speaks the Expo push protocol.
type ExpoClient struct {
	url        string
	token      string
	httpClient *http.Client
}

var _ Sender = (*ExpoClient)(nil)

func NewExpoClient(url, token string, httpClient *http.Client) *ExpoClient {
	if url == "" {
		url = DefaultGatewayURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &ExpoClient{url: url, token: token, httpClient: httpClient}
}

func (c *ExpoClient) Send(ctx context.Context, messages []Message) ([]string, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("encode push messages: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push gateway: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read push response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("push gateway: status=%d %s", resp.StatusCode, gjson.GetBytes(raw, "errors.0.message").String())
	}

	// Tickets come back in request order.
	var invalid []string
	gjson.GetBytes(raw, "data").ForEach(func(idx, ticket gjson.Result) bool {
		i := int(idx.Int())
		if i < len(messages) && ticket.Get("details.error").String() == "DeviceNotRegistered" {
			invalid = append(invalid, messages[i].To)
		}
		return true
	})
	return invalid, nil
}
