package energy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntities() []Entity {
	return []Entity{
		{ID: "sensor.a", Attributes: map[string]any{"unit_of_measurement": "W", "friendly_name": "A"}},
		{ID: "sensor.b", Attributes: map[string]any{"unit_of_measurement": "Wh", "friendly_name": "B"}},
		{ID: "sensor.c", Attributes: map[string]any{"friendly_name": "C"}},
	}
}

func TestDiscoverSensors_Example(t *testing.T) {
	assert.Equal(t, []string{"sensor.a", "sensor.b"}, DiscoverSensors(sampleEntities()))
}

func TestDiscoverSensors_Filter(t *testing.T) {
	tests := []struct {
		name     string
		entities []Entity
		expected []string
	}{
		{
			name:     "empty snapshot",
			entities: nil,
			expected: []string{},
		},
		{
			name: "other units are excluded",
			entities: []Entity{
				{ID: "sensor.kw", Attributes: map[string]any{"unit_of_measurement": "kW"}},
				{ID: "sensor.kwh", Attributes: map[string]any{"unit_of_measurement": "kWh"}},
				{ID: "sensor.lower", Attributes: map[string]any{"unit_of_measurement": "w"}},
				{ID: "sensor.temp", Attributes: map[string]any{"unit_of_measurement": "°C"}},
			},
			expected: []string{},
		},
		{
			name: "non sensor domains are excluded",
			entities: []Entity{
				{ID: "switch.plug", Attributes: map[string]any{"unit_of_measurement": "W"}},
				{ID: "sensor.plug_power", Attributes: map[string]any{"unit_of_measurement": "W"}},
			},
			expected: []string{"sensor.plug_power"},
		},
		{
			name: "registry domain wins over id prefix",
			entities: []Entity{
				{ID: "sensor.odd", Domain: "number", Attributes: map[string]any{"unit_of_measurement": "W"}},
			},
			expected: []string{},
		},
		{
			name: "missing attributes and non string unit",
			entities: []Entity{
				{ID: "sensor.none"},
				{ID: "sensor.num", Attributes: map[string]any{"unit_of_measurement": 5}},
			},
			expected: []string{},
		},
		{
			name: "order follows enumeration",
			entities: []Entity{
				{ID: "sensor.z", Attributes: map[string]any{"unit_of_measurement": "Wh"}},
				{ID: "sensor.m", Attributes: map[string]any{"unit_of_measurement": "W"}},
				{ID: "sensor.a", Attributes: map[string]any{"unit_of_measurement": "W"}},
			},
			expected: []string{"sensor.z", "sensor.m", "sensor.a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DiscoverSensors(tt.entities)
			require.NotNil(t, got)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDiscoverSensors_Deterministic(t *testing.T) {
	entities := sampleEntities()
	first := DiscoverSensors(entities)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DiscoverSensors(entities))
	}
}

func TestBuildChartConfig_Example(t *testing.T) {
	got := BuildChartConfig([]string{"sensor.b", "sensor.a"}, sampleEntities())

	assert.Equal(t, []Series{
		{Entity: "sensor.b", Name: "B", Type: "line"},
		{Entity: "sensor.a", Name: "A", Type: "line"},
	}, got)
}

func TestBuildChartConfig_Fallbacks(t *testing.T) {
	entities := []Entity{
		{ID: "sensor.empty_name", Attributes: map[string]any{"friendly_name": ""}},
		{ID: "sensor.no_name", Attributes: map[string]any{"unit_of_measurement": "W"}},
	}
	selected := []string{"sensor.unknown", "sensor.empty_name", "sensor.no_name", "sensor.unknown"}

	got := BuildChartConfig(selected, entities)

	require.Len(t, got, len(selected))
	for i, s := range got {
		assert.Equal(t, selected[i], s.Entity)
		assert.Equal(t, selected[i], s.Name)
		assert.Equal(t, SeriesTypeLine, s.Type)
	}
}

func TestBuildChartConfig_EmptySelection(t *testing.T) {
	got := BuildChartConfig(nil, sampleEntities())
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPartitionByUnit(t *testing.T) {
	entities := sampleEntities()
	power, energy := PartitionByUnit(entities, []string{"sensor.b", "sensor.a", "sensor.gone"})

	assert.Equal(t, []string{"sensor.a"}, power)
	assert.Equal(t, []string{"sensor.b"}, energy)
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "sensor", DomainOf("sensor.kitchen"))
	assert.Equal(t, "input_number", DomainOf("input_number.limit.x"))
	assert.Equal(t, "", DomainOf("nodot"))
}
