package api

import "github.com/zeebo/xxh3"

// Plotly's G10 qualitative sequence, which the dashboard front end also uses.
var palette = []string{
	"#3366CC", "#DC3912", "#FF9900", "#109618", "#990099",
	"#0099C6", "#DD4477", "#66AA00", "#B82E2E", "#316395",
}

// ColorFor picks a stable color for a country code so a series keeps its color
// across re-renders and across different country selections.
func ColorFor(country string) string {
	return palette[xxh3.HashString(country)%uint64(len(palette))]
}

func colorsFor(countries []string) map[string]string {
	out := make(map[string]string, len(countries))
	for _, c := range countries {
		out[c] = ColorFor(c)
	}
	return out
}
