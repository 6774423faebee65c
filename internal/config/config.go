// Package config loads the server configuration from the environment, an
// optional .env file and an optional yaml file named by CONFIG_FILE.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Dashboard persistence modes
const (
	ModeWebsocket = "websocket"
	ModeStorage   = "storage"
	ModeYAML      = "yaml"
)

type Config struct {
	LogLevel zapcore.Level `mapstructure:"-"`

	Port     string `mapstructure:"port"`
	HAURL    string `mapstructure:"ha_url"`
	HAToken  string `mapstructure:"ha_token"`
	DataDir  string `mapstructure:"data_dir"`
	APIToken string `mapstructure:"api_token"`

	CORSOrigins []string `mapstructure:"cors_origins"`

	SensorRefreshInterval time.Duration `mapstructure:"sensor_refresh_interval"`

	Dashboard DashboardConfig `mapstructure:"dashboard"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
}

type DashboardConfig struct {
	Mode           string        `mapstructure:"mode"`
	HAConfigDir    string        `mapstructure:"ha_config_dir"`
	YAMLPath       string        `mapstructure:"yaml_path"`
	Inline         bool          `mapstructure:"inline"`
	OnSetup        bool          `mapstructure:"on_setup"`
	Delay          time.Duration `mapstructure:"delay"`
	RemoveOnUnload bool          `mapstructure:"remove_on_unload"`
	Resources      []string      `mapstructure:"resources"`
}

type MQTTConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	BaseTopic string `mapstructure:"base_topic"`
}

// Enabled reports whether an MQTT broker is configured
func (m MQTTConfig) Enabled() bool {
	return m.Host != ""
}

// envAliases covers the nested keys whose env name is not the key with
// dots replaced by underscores
var envAliases = map[string]string{
	"dashboard.ha_config_dir":    "HA_CONFIG_DIR",
	"dashboard.remove_on_unload": "REMOVE_DASHBOARD_ON_UNLOAD",
}

// Load reads .env (when present), then the environment and CONFIG_FILE
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()
	return load(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		_ = v.BindEnv(key, env)
	}
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("port", "8080")
	v.SetDefault("ha_url", "http://homeassistant.local:8123")
	v.SetDefault("ha_token", "")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("api_token", "")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("sensor_refresh_interval", 5*time.Minute)

	v.SetDefault("dashboard.mode", ModeWebsocket)
	v.SetDefault("dashboard.ha_config_dir", "/config")
	v.SetDefault("dashboard.yaml_path", "")
	v.SetDefault("dashboard.inline", false)
	v.SetDefault("dashboard.on_setup", true)
	v.SetDefault("dashboard.delay", 10*time.Second)
	v.SetDefault("dashboard.remove_on_unload", false)
	v.SetDefault("dashboard.resources", []string{})

	v.SetDefault("mqtt.host", "")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.base_topic", "energy_dashboard")
}

func load(v *viper.Viper) (*Config, error) {
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	level, err := ParseLevel(v.GetString("log_level"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Dashboard.Mode {
	case ModeWebsocket, ModeStorage, ModeYAML:
	default:
		return fmt.Errorf("invalid DASHBOARD_MODE %q: want websocket, storage or yaml", c.Dashboard.Mode)
	}

	baseTopic, err := CheckMQTTTopic(c.MQTT.BaseTopic)
	if err != nil {
		return err
	}
	c.MQTT.BaseTopic = baseTopic

	if c.SensorRefreshInterval < 0 {
		return errors.New("SENSOR_REFRESH_INTERVAL must not be negative")
	}
	if c.Dashboard.Delay < 0 {
		return errors.New("DASHBOARD_DELAY must not be negative")
	}
	return nil
}

// ParseLevel maps LOG_LEVEL to a zap level. trace is accepted as debug.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return zap.DebugLevel, nil
	case "", "info":
		return zap.InfoLevel, nil
	case "warn", "warning":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("invalid LOG_LEVEL %q", s)
	}
}

var topicRegexp = regexp.MustCompile("^[a-z0-9_]+$")

// CheckMQTTTopic lower-cases a base topic and rejects anything but letters,
// numbers and underscores
func CheckMQTTTopic(baseTopic string) (string, error) {
	lower := strings.ToLower(baseTopic)
	if !topicRegexp.MatchString(lower) {
		return "", errors.New("invalid MQTT_BASE_TOPIC: can only contain letters, numbers and underscores")
	}
	return lower, nil
}

// Redacted returns a copy safe to log
func (c Config) Redacted() Config {
	redact := func(s string) string {
		if s == "" {
			return ""
		}
		return "*redacted*"
	}
	c.HAToken = redact(c.HAToken)
	c.APIToken = redact(c.APIToken)
	c.MQTT.Username = redact(c.MQTT.Username)
	c.MQTT.Password = redact(c.MQTT.Password)
	return c
}

// NewLogger builds the production zap logger at the configured level
func (c Config) NewLogger() (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(c.LogLevel)
	return zapCfg.Build()
}
