package energy

// allowedUnits is the coarse type filter used by discovery
var allowedUnits = map[string]bool{
	UnitPower:  true,
	UnitEnergy: true,
}

// IsEnergySensor reports whether an entity is a sensor measured in W or Wh
func IsEnergySensor(e Entity) bool {
	return e.EntityDomain() == domainSensor && allowedUnits[e.Unit()]
}

// DiscoverSensors returns the ids of every sensor whose unit of measurement
// is exactly "W" or "Wh", in the order the entities were enumerated.
// The result is never nil.
func DiscoverSensors(entities []Entity) []string {
	sensors := make([]string, 0)
	for _, e := range entities {
		if IsEnergySensor(e) {
			sensors = append(sensors, e.ID)
		}
	}
	return sensors
}

// PartitionByUnit splits a discovered sensor list into power (W) and energy
// (Wh) ids. Ids not present in the snapshot land in neither list.
func PartitionByUnit(entities []Entity, ids []string) (power, energy []string) {
	index := Index(entities)
	power = make([]string, 0)
	energy = make([]string, 0)
	for _, id := range ids {
		e, ok := index[id]
		if !ok {
			continue
		}
		switch e.Unit() {
		case UnitPower:
			power = append(power, id)
		case UnitEnergy:
			energy = append(energy, id)
		}
	}
	return power, energy
}

// Index maps entity ids to entities. Later duplicates win.
func Index(entities []Entity) map[string]Entity {
	index := make(map[string]Entity, len(entities))
	for _, e := range entities {
		index[e.ID] = e
	}
	return index
}
