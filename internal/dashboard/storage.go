package dashboard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	dashboardsKey = "lovelace_dashboards"
	resourcesKey  = "lovelace_resources"
)

// storageFile is the envelope HA wraps every .storage file in
type storageFile struct {
	Version      int             `json:"version"`
	MinorVersion int             `json:"minor_version"`
	Key          string          `json:"key"`
	Data         json.RawMessage `json:"data"`
}

type itemsData struct {
	Items []map[string]interface{} `json:"items"`
}

type configData struct {
	Config Document `json:"config"`
}

// StorageRegistrar writes the dashboard straight into HA's .storage
// directory: the dashboard registration, the dashboard config and the
// resource list. HA only reads these files at startup.
type StorageRegistrar struct {
	dir    string
	reg    Registration
	logger *zap.Logger
}

// NewStorageRegistrar writes below configDir/.storage
func NewStorageRegistrar(configDir string, reg Registration, logger *zap.Logger) *StorageRegistrar {
	return &StorageRegistrar{
		dir:    filepath.Join(configDir, ".storage"),
		reg:    reg,
		logger: logger.Named("dashboard_storage"),
	}
}

// DashboardsPath is the dashboard registration file
func (r *StorageRegistrar) DashboardsPath() string {
	return filepath.Join(r.dir, dashboardsKey)
}

// ConfigPath is the dashboard's own config file
func (r *StorageRegistrar) ConfigPath() string {
	return filepath.Join(r.dir, r.configKey())
}

// ResourcesPath is the Lovelace resources file
func (r *StorageRegistrar) ResourcesPath() string {
	return filepath.Join(r.dir, resourcesKey)
}

func (r *StorageRegistrar) configKey() string {
	return "lovelace." + r.reg.ID
}

// Register upserts our dashboard and resources, leaving other entries as
// they were, and overwrites the dashboard config
func (r *StorageRegistrar) Register(_ context.Context, doc Document) error {
	item := map[string]interface{}{
		"id":              r.reg.ID,
		"url_path":        r.reg.URLPath,
		"title":           r.reg.Title,
		"icon":            r.reg.Icon,
		"mode":            "storage",
		"require_admin":   r.reg.RequireAdmin,
		"show_in_sidebar": r.reg.ShowInSidebar,
	}
	err := r.updateItems(r.DashboardsPath(), dashboardsKey, func(items []map[string]interface{}) []map[string]interface{} {
		return upsert(items, "id", r.reg.ID, item)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", dashboardsKey, err)
	}

	data, err := json.Marshal(configData{Config: doc})
	if err != nil {
		return err
	}
	if err := r.writeStorage(r.ConfigPath(), storageFile{Version: 1, MinorVersion: 1, Key: r.configKey(), Data: data}); err != nil {
		return fmt.Errorf("write %s: %w", r.configKey(), err)
	}

	if len(r.reg.Resources) > 0 {
		err = r.updateItems(r.ResourcesPath(), resourcesKey, func(items []map[string]interface{}) []map[string]interface{} {
			for _, url := range r.reg.Resources {
				items = upsert(items, "url", url, map[string]interface{}{
					"id":   resourceID(url),
					"type": "module",
					"url":  url,
				})
			}
			return items
		})
		if err != nil {
			return fmt.Errorf("write %s: %w", resourcesKey, err)
		}
	}

	r.logger.Info("dashboard written, restart Home Assistant to load it", zap.String("dir", r.dir))
	return nil
}

// Unregister drops our dashboard entry and config. Resources stay, other
// dashboards may use the same cards.
func (r *StorageRegistrar) Unregister(_ context.Context) error {
	if _, err := os.Stat(r.DashboardsPath()); err == nil {
		err := r.updateItems(r.DashboardsPath(), dashboardsKey, func(items []map[string]interface{}) []map[string]interface{} {
			kept := items[:0]
			for _, item := range items {
				if item["id"] != r.reg.ID {
					kept = append(kept, item)
				}
			}
			return kept
		})
		if err != nil {
			return err
		}
	}
	return removeIfExists(r.ConfigPath())
}

// updateItems loads an items-style storage file (or starts an empty one),
// applies fn and writes it back
func (r *StorageRegistrar) updateItems(path, key string, fn func([]map[string]interface{}) []map[string]interface{}) error {
	file := storageFile{Version: 1, MinorVersion: 1, Key: key}
	var data itemsData

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &file); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if len(file.Data) > 0 {
			if err := json.Unmarshal(file.Data, &data); err != nil {
				return fmt.Errorf("parse %s data: %w", path, err)
			}
		}
	case os.IsNotExist(err):
	default:
		return err
	}

	data.Items = fn(data.Items)
	if data.Items == nil {
		data.Items = []map[string]interface{}{}
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}
	file.Data = encoded
	return r.writeStorage(path, file)
}

func (r *StorageRegistrar) writeStorage(path string, file storageFile) error {
	out, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, out)
}

// upsert replaces the first item whose field equals value, or appends
func upsert(items []map[string]interface{}, field, value string, item map[string]interface{}) []map[string]interface{} {
	for i := range items {
		if v, ok := items[i][field].(string); ok && v == value {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

// resourceID derives a stable id from the resource URL so repeated runs
// write identical files
func resourceID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:16])
}
