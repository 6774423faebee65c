// Package energy holds the pure transformations behind the dashboard:
// picking power/energy sensors out of an entity snapshot and shaping a
// user selection into chart series.
package energy

import "strings"

const (
	// UnitPower is the unit-of-measurement for instantaneous power sensors
	UnitPower = "W"
	// UnitEnergy is the unit-of-measurement for accumulated energy sensors
	UnitEnergy = "Wh"

	attrUnit         = "unit_of_measurement"
	attrFriendlyName = "friendly_name"
	domainSensor     = "sensor"
)

// Entity is one host-tracked entity as seen in a snapshot
type Entity struct {
	ID         string         `json:"entity_id"`
	Domain     string         `json:"domain"`
	Attributes map[string]any `json:"attributes"`
}

// DomainOf returns the part of an entity id before the first dot
// ("sensor.kitchen_power" -> "sensor"). Ids without a dot have no domain.
func DomainOf(entityID string) string {
	domain, _, ok := strings.Cut(entityID, ".")
	if !ok {
		return ""
	}
	return domain
}

// EntityDomain returns the entity's domain, deriving it from the id when the
// snapshot did not carry one.
func (e Entity) EntityDomain() string {
	if e.Domain != "" {
		return e.Domain
	}
	return DomainOf(e.ID)
}

// Unit returns the unit_of_measurement attribute. A missing or non-string
// attribute is the empty unit.
func (e Entity) Unit() string {
	unit, _ := e.Attributes[attrUnit].(string)
	return unit
}

// FriendlyName returns the display name of an entity, falling back to its id
func FriendlyName(e Entity) string {
	if name, ok := e.Attributes[attrFriendlyName].(string); ok && name != "" {
		return name
	}
	return e.ID
}
