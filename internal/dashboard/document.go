// Package dashboard assembles the Energy Dashboard Lovelace document and
// hands it to Home Assistant through one of several registrars.
package dashboard

import (
	"encoding/json"
	"fmt"

	"energy_dashboard/internal/energy"
	"energy_dashboard/internal/homeassistant"

	"github.com/goccy/go-yaml"
)

const (
	DocumentTitle = "Energy Dashboard"
	ViewTitle     = "Energy Overview"
	ViewPath      = "energy_overview"

	CardTypeChart     = "custom:apexcharts-card"
	CardTypeSensors   = "custom:sensor-list"
	CardTypeTimeframe = "custom:timeframe-control"
)

// Templated lookups of the published lists, resolved by the frontend
var (
	SeriesTemplate = fmt.Sprintf("{{ state_attr('%s', '%s') }}",
		homeassistant.ChartConfigEntityID, homeassistant.ChartConfigAttribute)
	EntitiesTemplate = fmt.Sprintf("{{ state_attr('%s', '%s') }}",
		homeassistant.SensorListEntityID, homeassistant.SensorListAttribute)
)

// Document is a Lovelace dashboard config
type Document struct {
	Title string `json:"title" yaml:"title"`
	Views []View `json:"views" yaml:"views"`
}

type View struct {
	Title string `json:"title" yaml:"title"`
	Path  string `json:"path" yaml:"path"`
	Cards []Card `json:"cards" yaml:"cards"`
}

// Card covers the three card shapes the dashboard uses. Unused fields are
// omitted on output.
type Card struct {
	Type           string            `json:"type" yaml:"type"`
	Title          string            `json:"title,omitempty" yaml:"title,omitempty"`
	Series         interface{}       `json:"series,omitempty" yaml:"series,omitempty"`
	Entities       interface{}       `json:"entities,omitempty" yaml:"entities,omitempty"`
	GraphSpan      string            `json:"graph_span,omitempty" yaml:"graph_span,omitempty"`
	UpdateInterval int               `json:"update_interval,omitempty" yaml:"update_interval,omitempty"`
	Header         *Header           `json:"header,omitempty" yaml:"header,omitempty"`
	Options        []TimeframeOption `json:"options,omitempty" yaml:"options,omitempty"`
}

type Header struct {
	Show  bool   `json:"show" yaml:"show"`
	Title string `json:"title" yaml:"title"`
}

// TimeframeOption is one preset of the timeframe selector
type TimeframeOption struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// Timeframes are the fixed presets offered by the timeframe card
var Timeframes = []TimeframeOption{
	{Label: "Last Hour", Value: "1h"},
	{Label: "Last 24 Hours", Value: "24h"},
	{Label: "Last Week", Value: "7d"},
	{Label: "Last Month", Value: "30d"},
}

// Options controls how the published lists are referenced. By default the
// cards carry templated lookups; Inline embeds Sensors and Chart directly.
type Options struct {
	Inline  bool
	Sensors []string
	Chart   []energy.Series
}

// Build assembles the dashboard document. It is pure: the same options
// always yield the same document.
func Build(opts Options) Document {
	var series, entities interface{} = SeriesTemplate, EntitiesTemplate
	if opts.Inline {
		chart := make([]energy.Series, len(opts.Chart))
		copy(chart, opts.Chart)
		sensors := make([]string, len(opts.Sensors))
		copy(sensors, opts.Sensors)
		series, entities = chart, sensors
	}

	timeframes := make([]TimeframeOption, len(Timeframes))
	copy(timeframes, Timeframes)

	return Document{
		Title: DocumentTitle,
		Views: []View{
			{
				Title: ViewTitle,
				Path:  ViewPath,
				Cards: []Card{
					{
						Type:           CardTypeChart,
						Title:          "Power Consumption",
						Series:         series,
						GraphSpan:      "24h",
						UpdateInterval: 60,
						Header: &Header{
							Show:  true,
							Title: "Power Consumption Over Time",
						},
					},
					{
						Type:     CardTypeSensors,
						Title:    "Power and Energy Sensors",
						Entities: entities,
					},
					{
						Type:    CardTypeTimeframe,
						Title:   "Select Timeframe",
						Options: timeframes,
					},
				},
			},
		},
	}
}

// Marshal renders the document as indented JSON
func Marshal(doc Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// MarshalYAML renders the document as YAML, the format of yaml-mode dashboards
func MarshalYAML(doc Document) ([]byte, error) {
	return yaml.Marshal(doc)
}
