package homeassistant

import "context"

// RegistryEntry is one row of the HA entity registry
type RegistryEntry struct {
	EntityID      string `json:"entity_id"`
	Platform      string `json:"platform"`
	ConfigEntryID string `json:"config_entry_id,omitempty"`
	DeviceID      string `json:"device_id,omitempty"`
	AreaID        string `json:"area_id,omitempty"`
	DisabledBy    string `json:"disabled_by,omitempty"`
	HiddenBy      string `json:"hidden_by,omitempty"`
	Name          string `json:"name,omitempty"`
	UniqueID      string `json:"unique_id,omitempty"`
}

// EntityRegistryList returns every registered entity in registry order
func (c *WSClient) EntityRegistryList(ctx context.Context) ([]RegistryEntry, error) {
	var entries []RegistryEntry
	if err := c.Call(ctx, "config/entity_registry/list", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
