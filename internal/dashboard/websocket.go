package dashboard

import (
	"context"
	"fmt"

	"energy_dashboard/internal/homeassistant"

	"go.uber.org/zap"
)

// LovelaceAPI is the slice of the HA websocket API the registrar needs
type LovelaceAPI interface {
	ListDashboards(ctx context.Context) ([]homeassistant.Dashboard, error)
	CreateDashboard(ctx context.Context, p homeassistant.DashboardParams) (*homeassistant.Dashboard, error)
	DeleteDashboard(ctx context.Context, dashboardID string) error
	SaveDashboardConfig(ctx context.Context, urlPath string, config interface{}) error
	ListResources(ctx context.Context) ([]homeassistant.Resource, error)
	CreateResource(ctx context.Context, resType, url string) (*homeassistant.Resource, error)
}

// WebsocketRegistrar registers the dashboard through HA's own dashboard
// calls, so the change is live without a restart
type WebsocketRegistrar struct {
	api    LovelaceAPI
	reg    Registration
	logger *zap.Logger
}

func NewWebsocketRegistrar(api LovelaceAPI, reg Registration, logger *zap.Logger) *WebsocketRegistrar {
	return &WebsocketRegistrar{api: api, reg: reg, logger: logger.Named("dashboard_ws")}
}

// Register creates the dashboard if it does not exist yet and overwrites its
// config. Missing resources are added.
func (r *WebsocketRegistrar) Register(ctx context.Context, doc Document) error {
	existing, err := r.find(ctx)
	if err != nil {
		return err
	}
	if existing == nil {
		created, err := r.api.CreateDashboard(ctx, homeassistant.DashboardParams{
			URLPath:       r.reg.URLPath,
			Title:         r.reg.Title,
			Icon:          r.reg.Icon,
			RequireAdmin:  r.reg.RequireAdmin,
			ShowInSidebar: r.reg.ShowInSidebar,
		})
		if err != nil {
			return fmt.Errorf("create dashboard %s: %w", r.reg.URLPath, err)
		}
		r.logger.Info("dashboard created", zap.String("id", created.ID), zap.String("url_path", created.URLPath))
	}

	if err := r.api.SaveDashboardConfig(ctx, r.reg.URLPath, doc); err != nil {
		return fmt.Errorf("save dashboard config %s: %w", r.reg.URLPath, err)
	}

	return r.ensureResources(ctx)
}

// Unregister deletes the dashboard. A dashboard that is already gone is not
// an error.
func (r *WebsocketRegistrar) Unregister(ctx context.Context) error {
	existing, err := r.find(ctx)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if err := r.api.DeleteDashboard(ctx, existing.ID); err != nil {
		return fmt.Errorf("delete dashboard %s: %w", existing.ID, err)
	}
	r.logger.Info("dashboard deleted", zap.String("id", existing.ID))
	return nil
}

func (r *WebsocketRegistrar) find(ctx context.Context) (*homeassistant.Dashboard, error) {
	dashboards, err := r.api.ListDashboards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dashboards: %w", err)
	}
	for i := range dashboards {
		if dashboards[i].URLPath == r.reg.URLPath {
			return &dashboards[i], nil
		}
	}
	return nil, nil
}

func (r *WebsocketRegistrar) ensureResources(ctx context.Context) error {
	if len(r.reg.Resources) == 0 {
		return nil
	}

	resources, err := r.api.ListResources(ctx)
	if err != nil {
		return fmt.Errorf("list resources: %w", err)
	}
	known := make(map[string]bool, len(resources))
	for _, res := range resources {
		known[res.URL] = true
	}

	for _, url := range r.reg.Resources {
		if known[url] {
			continue
		}
		if _, err := r.api.CreateResource(ctx, "module", url); err != nil {
			return fmt.Errorf("create resource %s: %w", url, err)
		}
		known[url] = true
		r.logger.Info("resource registered", zap.String("url", url))
	}
	return nil
}
