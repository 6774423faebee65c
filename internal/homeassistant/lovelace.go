package homeassistant

import "context"

// Dashboard is an entry of the storage-mode dashboard collection
type Dashboard struct {
	ID            string `json:"id"`
	URLPath       string `json:"url_path"`
	Title         string `json:"title"`
	Icon          string `json:"icon,omitempty"`
	Mode          string `json:"mode"`
	RequireAdmin  bool   `json:"require_admin"`
	ShowInSidebar bool   `json:"show_in_sidebar"`
}

// DashboardParams are the fields accepted by lovelace/dashboards/create
type DashboardParams struct {
	URLPath       string
	Title         string
	Icon          string
	RequireAdmin  bool
	ShowInSidebar bool
}

// Resource is a frontend module registered with Lovelace
type Resource struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ListDashboards returns all storage-mode dashboards
func (c *WSClient) ListDashboards(ctx context.Context) ([]Dashboard, error) {
	var dashboards []Dashboard
	if err := c.Call(ctx, "lovelace/dashboards/list", nil, &dashboards); err != nil {
		return nil, err
	}
	return dashboards, nil
}

// CreateDashboard registers a new storage-mode dashboard
func (c *WSClient) CreateDashboard(ctx context.Context, p DashboardParams) (*Dashboard, error) {
	fields := map[string]interface{}{
		"url_path":        p.URLPath,
		"title":           p.Title,
		"require_admin":   p.RequireAdmin,
		"show_in_sidebar": p.ShowInSidebar,
		"mode":            "storage",
	}
	if p.Icon != "" {
		fields["icon"] = p.Icon
	}
	var dashboard Dashboard
	if err := c.Call(ctx, "lovelace/dashboards/create", fields, &dashboard); err != nil {
		return nil, err
	}
	return &dashboard, nil
}

// DeleteDashboard removes a dashboard and its stored config
func (c *WSClient) DeleteDashboard(ctx context.Context, dashboardID string) error {
	return c.Call(ctx, "lovelace/dashboards/delete", map[string]interface{}{"dashboard_id": dashboardID}, nil)
}

// SaveDashboardConfig overwrites the config of a storage-mode dashboard
func (c *WSClient) SaveDashboardConfig(ctx context.Context, urlPath string, config interface{}) error {
	return c.Call(ctx, "lovelace/config/save", map[string]interface{}{
		"url_path": urlPath,
		"config":   config,
	}, nil)
}

// ListResources returns the registered Lovelace resources
func (c *WSClient) ListResources(ctx context.Context) ([]Resource, error) {
	var resources []Resource
	if err := c.Call(ctx, "lovelace/resources", nil, &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

// CreateResource registers a frontend resource (resType is usually "module")
func (c *WSClient) CreateResource(ctx context.Context, resType, url string) (*Resource, error) {
	var resource Resource
	err := c.Call(ctx, "lovelace/resources/create", map[string]interface{}{
		"res_type": resType,
		"url":      url,
	}, &resource)
	if err != nil {
		return nil, err
	}
	return &resource, nil
}
