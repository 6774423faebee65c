package dashboard

import (
	"encoding/json"
	"strings"
	"testing"

	"energy_dashboard/internal/energy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertFixedShape(t *testing.T, doc Document) {
	t.Helper()

	assert.Equal(t, DocumentTitle, doc.Title)
	require.Len(t, doc.Views, 1)
	view := doc.Views[0]
	assert.Equal(t, ViewTitle, view.Title)
	assert.Equal(t, ViewPath, view.Path)

	require.Len(t, view.Cards, 3)
	assert.Equal(t, CardTypeChart, view.Cards[0].Type)
	assert.Equal(t, CardTypeSensors, view.Cards[1].Type)
	assert.Equal(t, CardTypeTimeframe, view.Cards[2].Type)

	assert.Equal(t, []TimeframeOption{
		{Label: "Last Hour", Value: "1h"},
		{Label: "Last 24 Hours", Value: "24h"},
		{Label: "Last Week", Value: "7d"},
		{Label: "Last Month", Value: "30d"},
	}, view.Cards[2].Options)
}

func TestBuild_Templated(t *testing.T) {
	doc := Build(Options{})
	assertFixedShape(t, doc)

	chart := doc.Views[0].Cards[0]
	assert.Equal(t, SeriesTemplate, chart.Series)
	assert.Equal(t, "24h", chart.GraphSpan)
	assert.Equal(t, 60, chart.UpdateInterval)
	require.NotNil(t, chart.Header)
	assert.True(t, chart.Header.Show)

	assert.Equal(t, EntitiesTemplate, doc.Views[0].Cards[1].Entities)
	assert.Contains(t, SeriesTemplate, "sensor.energy_dashboard_chart_config")
	assert.Contains(t, EntitiesTemplate, "sensor.energy_dashboard_sensors")
}

func TestBuild_InlineShapeIndependentOfSize(t *testing.T) {
	sizes := []int{0, 1, 50}
	for _, n := range sizes {
		sensors := make([]string, 0, n)
		chart := make([]energy.Series, 0, n)
		for i := 0; i < n; i++ {
			id := "sensor.s" + strings.Repeat("x", i)
			sensors = append(sensors, id)
			chart = append(chart, energy.Series{Entity: id, Name: id, Type: energy.SeriesTypeLine})
		}

		doc := Build(Options{Inline: true, Sensors: sensors, Chart: chart})
		assertFixedShape(t, doc)
		assert.Len(t, doc.Views[0].Cards[0].Series, n)
		assert.Len(t, doc.Views[0].Cards[1].Entities, n)
	}
}

func TestBuild_InlineEmptyIsWellFormed(t *testing.T) {
	data, err := Marshal(Build(Options{Inline: true}))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	views := decoded["views"].([]interface{})
	cards := views[0].(map[string]interface{})["cards"].([]interface{})
	chart := cards[0].(map[string]interface{})
	sensors := cards[1].(map[string]interface{})

	assert.Equal(t, []interface{}{}, chart["series"])
	assert.Equal(t, []interface{}{}, sensors["entities"])
}

func TestBuild_Idempotent(t *testing.T) {
	opts := Options{
		Inline:  true,
		Sensors: []string{"sensor.a", "sensor.b"},
		Chart:   []energy.Series{{Entity: "sensor.b", Name: "B", Type: "line"}},
	}

	first, err := Marshal(Build(opts))
	require.NoError(t, err)
	second, err := Marshal(Build(opts))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	templated1, err := Marshal(Build(Options{}))
	require.NoError(t, err)
	templated2, err := Marshal(Build(Options{}))
	require.NoError(t, err)
	assert.Equal(t, templated1, templated2)
}

func TestBuild_DoesNotAliasInputs(t *testing.T) {
	sensors := []string{"sensor.a"}
	doc := Build(Options{Inline: true, Sensors: sensors})
	sensors[0] = "sensor.changed"

	assert.Equal(t, []string{"sensor.a"}, doc.Views[0].Cards[1].Entities)

	doc.Views[0].Cards[2].Options[0].Label = "mutated"
	assert.Equal(t, "Last Hour", Timeframes[0].Label)
}

func TestMarshalYAML(t *testing.T) {
	data, err := MarshalYAML(Build(Options{}))
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "title: Energy Dashboard")
	assert.Contains(t, out, "custom:apexcharts-card")
	assert.Contains(t, out, "custom:timeframe-control")
	assert.Contains(t, out, "30d")
}
