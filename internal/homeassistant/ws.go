package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed for one request/response round trip when the caller's
	// context carries no deadline
	defaultCallTimeout = 15 * time.Second
	// Largest message HA sends us (entity registry lists can be big)
	maxMessageSize = 16 << 20
)

var (
	// ErrAuthInvalid is returned when HA rejects the access token
	ErrAuthInvalid = errors.New("homeassistant: websocket auth invalid")
	// ErrUnexpectedMessage is returned when the handshake sees an unknown message
	ErrUnexpectedMessage = errors.New("homeassistant: unexpected websocket message")
)

// WSClient is a minimal client of the Home Assistant WebSocket API.
// Calls are serialized over a single connection that is dialed lazily and
// redialed after any I/O failure.
type WSClient struct {
	url    string
	token  string
	dialer *websocket.Dialer
	logger *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int
}

type wsMessage struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wsError        `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Version string          `json:"ha_version,omitempty"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WebsocketURL turns an HA base URL (http://host:8123) into its websocket
// endpoint (ws://host:8123/api/websocket).
func WebsocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("homeassistant: unsupported url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/api/websocket") + "/api/websocket"
	return u.String(), nil
}

// NewWSClient creates a websocket client. No connection is made until the
// first call.
func NewWSClient(baseURL, token string, logger *zap.Logger) (*WSClient, error) {
	wsURL, err := WebsocketURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &WSClient{
		url:    wsURL,
		token:  token,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.Named("ha_ws"),
	}, nil
}

// Call sends one command and decodes its result into out (if non-nil).
// fields are merged into the command next to "id" and "type".
func (c *WSClient) Call(ctx context.Context, msgType string, fields map[string]interface{}, out interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return err
		}
	}

	c.nextID++
	id := c.nextID
	msg := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		msg[k] = v
	}
	msg["id"] = id
	msg["type"] = msgType

	c.setDeadline(ctx)
	if err := c.conn.WriteJSON(msg); err != nil {
		c.drop()
		return fmt.Errorf("homeassistant: write %s: %w", msgType, err)
	}

	for {
		var resp wsMessage
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.drop()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("homeassistant: read %s: %w", msgType, err)
		}
		// Stray events or results of abandoned calls
		if resp.Type != "result" || resp.ID != id {
			continue
		}
		if !resp.Success {
			apiErr := &APIError{Code: "unknown_error", Message: "call failed"}
			if resp.Error != nil {
				apiErr.Code = resp.Error.Code
				apiErr.Message = resp.Error.Message
			}
			return apiErr
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		return json.Unmarshal(resp.Result, out)
	}
}

// Close closes the underlying connection, if any
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// connect dials and performs the auth handshake. Caller holds mu.
func (c *WSClient) connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("homeassistant: dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(maxMessageSize)
	c.conn = conn
	c.setDeadline(ctx)

	var hello wsMessage
	if err := conn.ReadJSON(&hello); err != nil {
		c.drop()
		return fmt.Errorf("homeassistant: read auth_required: %w", err)
	}
	if hello.Type != "auth_required" {
		c.drop()
		return fmt.Errorf("%w: %s", ErrUnexpectedMessage, hello.Type)
	}

	auth := map[string]string{"type": "auth", "access_token": c.token}
	if err := conn.WriteJSON(auth); err != nil {
		c.drop()
		return fmt.Errorf("homeassistant: write auth: %w", err)
	}

	var result wsMessage
	if err := conn.ReadJSON(&result); err != nil {
		c.drop()
		return fmt.Errorf("homeassistant: read auth result: %w", err)
	}
	switch result.Type {
	case "auth_ok":
		c.logger.Info("connected", zap.String("url", c.url), zap.String("ha_version", result.Version))
		c.nextID = 0
		return nil
	case "auth_invalid":
		c.drop()
		return fmt.Errorf("%w: %s", ErrAuthInvalid, result.Message)
	default:
		c.drop()
		return fmt.Errorf("%w: %s", ErrUnexpectedMessage, result.Type)
	}
}

func (c *WSClient) setDeadline(ctx context.Context) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultCallTimeout)
	}
	c.conn.SetReadDeadline(deadline)
	c.conn.SetWriteDeadline(deadline)
}

func (c *WSClient) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
