package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"energy_dashboard/internal/dashboard"
	"energy_dashboard/internal/energy"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"

	publishTimeout = 10 * time.Second
)

var ErrNotConnected = errors.New("mqtt: not connected")

// Command is a service call received on <base>/service/<name>
type Command struct {
	Service string
	EntryID string
	Data    map[string]interface{}
}

// CommandHandler runs a received command
type CommandHandler func(ctx context.Context, cmd Command) error

// Client publishes the derived lists and receives service commands
type Client struct {
	client    paho.Client
	baseTopic string
	logger    *zap.Logger

	mu        sync.RWMutex
	connected bool
	handler   CommandHandler
}

// Config holds MQTT connection settings
type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	ClientID  string
	BaseTopic string
}

// NewClient creates a new MQTT client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	c := &Client{
		baseTopic: cfg.BaseTopic,
		logger:    logger.Named("mqtt"),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetWill(c.BridgeStateTopic(), PayloadOffline, 1, true)

	opts.SetOnConnectHandler(func(client paho.Client) {
		c.logger.Info("connected", zap.String("broker", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)))
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		client.Publish(c.BridgeStateTopic(), 1, true, PayloadOnline)
		c.subscribeToCommands(client)
	})

	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		c.logger.Warn("connection lost", zap.Error(err))
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	})

	c.client = paho.NewClient(opts)
	return c
}

// Connect starts the MQTT connection. With connect retry enabled the token
// completes once the first attempt is queued, later attempts run in the
// background.
func (c *Client) Connect(ctx context.Context) error {
	if err := wait(ctx, c.client.Connect()); err != nil {
		return fmt.Errorf("MQTT connect failed: %w", err)
	}
	return nil
}

// SetCommandHandler sets the callback for service commands
func (c *Client) SetCommandHandler(handler CommandHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *Client) BridgeStateTopic() string {
	return c.baseTopic + "/bridge/state"
}

func (c *Client) SensorsTopic() string {
	return c.baseTopic + "/sensors"
}

func (c *Client) ChartConfigTopic() string {
	return c.baseTopic + "/chart_config"
}

func (c *Client) DashboardTopic() string {
	return c.baseTopic + "/dashboard"
}

func (c *Client) commandTopic() string {
	return c.baseTopic + "/service/+"
}

// PublishSensors publishes the sensor list, retained
func (c *Client) PublishSensors(ctx context.Context, sensors []string) error {
	return c.publishJSON(ctx, c.SensorsTopic(), sensors)
}

// PublishChart publishes the chart series, retained
func (c *Client) PublishChart(ctx context.Context, series []energy.Series) error {
	return c.publishJSON(ctx, c.ChartConfigTopic(), series)
}

// PublishDashboard publishes the registered document, retained
func (c *Client) PublishDashboard(ctx context.Context, doc dashboard.Document) error {
	return c.publishJSON(ctx, c.DashboardTopic(), doc)
}

func (c *Client) publishJSON(ctx context.Context, topic string, v interface{}) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := wait(ctx, c.client.Publish(topic, 1, true, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	c.logger.Debug("published", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	return nil
}

func (c *Client) subscribeToCommands(client paho.Client) {
	topic := c.commandTopic()
	token := client.Subscribe(topic, 1, c.handleCommandMessage)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := wait(ctx, token); err != nil {
			c.logger.Error("subscribe failed", zap.String("topic", topic), zap.Error(err))
			return
		}
		c.logger.Info("subscribed", zap.String("topic", topic))
	}()
}

func (c *Client) handleCommandMessage(_ paho.Client, msg paho.Message) {
	cmd, err := ParseCommand(c.baseTopic, msg.Topic(), msg.Payload())
	if err != nil {
		c.logger.Warn("ignoring command", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler == nil {
		return
	}

	// paho delivers messages on its own goroutine; blocking it stalls acks
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := handler(ctx, *cmd); err != nil {
			c.logger.Error("command failed", zap.String("service", cmd.Service), zap.Error(err))
		}
	}()
}

// ParseCommand turns a message on <base>/service/<name> into a Command.
// The payload is an optional JSON object; its entry_id field selects the
// target entry and is removed from the data.
func ParseCommand(baseTopic, topic string, payload []byte) (*Command, error) {
	rest, ok := strings.CutPrefix(topic, baseTopic+"/service/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return nil, fmt.Errorf("not a service topic: %s", topic)
	}

	cmd := &Command{Service: rest, Data: map[string]interface{}{}}
	if len(strings.TrimSpace(string(payload))) == 0 {
		return cmd, nil
	}
	if err := json.Unmarshal(payload, &cmd.Data); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if cmd.Data == nil {
		cmd.Data = map[string]interface{}{}
	}
	if id, ok := cmd.Data["entry_id"].(string); ok {
		cmd.EntryID = id
		delete(cmd.Data, "entry_id")
	}
	return cmd, nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Disconnect marks the bridge offline and closes the MQTT connection
func (c *Client) Disconnect() {
	if c.IsConnected() {
		token := c.client.Publish(c.BridgeStateTopic(), 1, true, PayloadOffline)
		token.WaitTimeout(time.Second)
	}
	c.client.Disconnect(250)
}

func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
