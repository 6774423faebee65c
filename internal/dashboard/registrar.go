package dashboard

import (
	"context"
	"os"
	"path/filepath"
)

// Registrar persists or registers the dashboard with the host. Every
// Register is a full overwrite of the previous definition.
type Registrar interface {
	Register(ctx context.Context, doc Document) error
	Unregister(ctx context.Context) error
}

// Registration identifies the dashboard inside Home Assistant
type Registration struct {
	ID            string   // storage id, also the lovelace.<id> config key
	URLPath       string   // must contain a hyphen
	Title         string   // sidebar title
	Icon          string   // sidebar icon
	RequireAdmin  bool     // hide from non-admin users
	ShowInSidebar bool     // list in the sidebar
	Resources     []string // frontend module URLs the custom cards need
}

// DefaultRegistration is the energy_dashboard dashboard
func DefaultRegistration() Registration {
	return Registration{
		ID:            "energy_dashboard",
		URLPath:       "energy-dashboard",
		Title:         DocumentTitle,
		Icon:          "mdi:lightning-bolt",
		ShowInSidebar: true,
	}
}

// writeFileAtomic writes data next to path and renames it into place so HA
// never reads a half-written file
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
