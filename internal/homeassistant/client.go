package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the Home Assistant REST API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Entity is a live state object as returned by /api/states
type Entity struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
}

// StateUpdate is the body accepted by POST /api/states/<entity_id>
type StateUpdate struct {
	State      string                 `json:"state"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// APIError is a failed call against either the REST or the WebSocket API
type APIError struct {
	StatusCode int    // HTTP status, 0 for websocket results
	Code       string // websocket error code
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HA websocket error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("HA API error %d: %s", e.StatusCode, e.Message)
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetBaseURL returns the Home Assistant base URL
func (c *Client) GetBaseURL() string {
	return c.baseURL
}

// GetState fetches a single entity state
func (c *Client) GetState(ctx context.Context, entityID string) (*Entity, error) {
	var entity Entity
	if err := c.do(ctx, http.MethodGet, "/api/states/"+entityID, nil, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

// GetAllStates fetches all entity states from Home Assistant
func (c *Client) GetAllStates(ctx context.Context) ([]*Entity, error) {
	var entities []*Entity
	if err := c.do(ctx, http.MethodGet, "/api/states", nil, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// SetState creates or replaces the state of an entity. HA keeps such states
// until restart; they are not backed by an integration.
func (c *Client) SetState(ctx context.Context, entityID string, update StateUpdate) (*Entity, error) {
	var entity Entity
	if err := c.do(ctx, http.MethodPost, "/api/states/"+entityID, update, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

// CallServiceWithData calls a Home Assistant service with custom JSON data
func (c *Client) CallServiceWithData(ctx context.Context, domain, service string, data map[string]interface{}) error {
	path := fmt.Sprintf("/api/services/%s/%s", domain, service)
	return c.do(ctx, http.MethodPost, path, data, nil)
}

// do sends one authenticated request. body is JSON encoded when non-nil and
// out is decoded from the response when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
