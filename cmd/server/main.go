package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"energy_dashboard/internal/config"
	"energy_dashboard/internal/dashboard"
	"energy_dashboard/internal/homeassistant"
	"energy_dashboard/internal/integration"
	"energy_dashboard/internal/mqtt"
	"energy_dashboard/internal/websocket"

	"github.com/carlmjohnson/versioninfo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting energy dashboard", zap.String("version", versioninfo.Short()), zap.Any("config", cfg.Redacted()))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if cfg.HAToken == "" {
		logger.Warn("HA_TOKEN not set, Home Assistant calls will be rejected")
	}
	haClient := homeassistant.NewClient(cfg.HAURL, cfg.HAToken)

	wsClient, err := homeassistant.NewWSClient(cfg.HAURL, cfg.HAToken, logger)
	if err != nil {
		return fmt.Errorf("HA websocket client: %w", err)
	}
	defer wsClient.Close()

	registry := homeassistant.NewRegistryManager(haClient, wsClient, cfg.DataDir, logger)

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	publishers := []integration.Publisher{homeassistant.NewStatePublisher(haClient), hub}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled() {
		mqttClient = mqtt.NewClient(mqtt.Config{
			Host:      cfg.MQTT.Host,
			Port:      cfg.MQTT.Port,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			ClientID:  "energy-dashboard-" + uuid.NewString()[:8],
			BaseTopic: cfg.MQTT.BaseTopic,
		}, logger)
		publishers = append(publishers, mqttClient)
	} else {
		logger.Info("MQTT not configured (optional)")
	}

	registrar, err := newRegistrar(cfg, wsClient, logger)
	if err != nil {
		return err
	}

	entries, err := integration.NewEntryStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open entry store: %w", err)
	}

	integ := integration.New(integration.Config{
		Snapshots:  registry,
		Registrar:  registrar,
		Entries:    entries,
		Publishers: publishers,
		Options: integration.Options{
			DashboardOnSetup:        cfg.Dashboard.OnSetup,
			DashboardDelay:          cfg.Dashboard.Delay,
			RemoveDashboardOnUnload: cfg.Dashboard.RemoveOnUnload,
			InlineDashboard:         cfg.Dashboard.Inline,
		},
	}, logger)
	if err := integ.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize integration: %w", err)
	}
	defer integ.Shutdown()

	if mqttClient != nil {
		mqttClient.SetCommandHandler(func(ctx context.Context, cmd mqtt.Command) error {
			return integ.Call(ctx, integration.ServiceCall{Service: cmd.Service, EntryID: cmd.EntryID, Data: cmd.Data})
		})
		go func() {
			connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := mqttClient.Connect(connectCtx); err != nil {
				logger.Warn("MQTT connection failed", zap.Error(err))
			}
		}()
		defer mqttClient.Disconnect()
	}

	// First discovery pass so the published lists exist right away
	go func() {
		callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := integ.Call(callCtx, integration.ServiceCall{Service: integration.ServiceGetSensors}); err != nil {
			logger.Warn("initial sensor discovery failed", zap.Error(err))
		}
	}()

	registry.Start(cfg.SensorRefreshInterval, func(snapshot *homeassistant.Snapshot) {
		refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := integ.Rediscover(refreshCtx, snapshot); err != nil {
			logger.Warn("periodic sensor publish failed", zap.Error(err))
		}
	})
	defer registry.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(cfg, &app{integ: integ, flows: integration.NewFlowManager(integ), registry: registry, hub: http.HandlerFunc(hub.ServeWS), logger: logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down gracefully, press Ctrl+C again to force")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exiting")
	return nil
}

// newRegistrar picks the dashboard persistence for DASHBOARD_MODE
func newRegistrar(cfg *config.Config, ws *homeassistant.WSClient, logger *zap.Logger) (dashboard.Registrar, error) {
	reg := dashboard.DefaultRegistration()
	reg.Resources = cfg.Dashboard.Resources

	switch cfg.Dashboard.Mode {
	case config.ModeWebsocket:
		return dashboard.NewWebsocketRegistrar(ws, reg, logger), nil
	case config.ModeStorage:
		return dashboard.NewStorageRegistrar(cfg.Dashboard.HAConfigDir, reg, logger), nil
	case config.ModeYAML:
		path := cfg.Dashboard.YAMLPath
		if path == "" {
			path = filepath.Join(cfg.Dashboard.HAConfigDir, reg.ID+".yaml")
		}
		return dashboard.NewYAMLRegistrar(path, logger), nil
	default:
		return nil, fmt.Errorf("unknown dashboard mode %q", cfg.Dashboard.Mode)
	}
}
