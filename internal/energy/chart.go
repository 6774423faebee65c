package energy

// SeriesTypeLine is the only series type the chart card is fed
const SeriesTypeLine = "line"

// Series is one line of the power/energy chart
type Series struct {
	Entity string `json:"entity"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

// BuildChartConfig maps a selection of entity ids 1:1 onto chart series.
// Order and duplicates are kept. Ids unknown to the snapshot are not an
// error, their name falls back to the id itself.
func BuildChartConfig(selected []string, entities []Entity) []Series {
	index := Index(entities)
	series := make([]Series, 0, len(selected))
	for _, id := range selected {
		e, ok := index[id]
		if !ok {
			e = Entity{ID: id}
		}
		series = append(series, Series{
			Entity: id,
			Name:   FriendlyName(e),
			Type:   SeriesTypeLine,
		})
	}
	return series
}
