package engine

import (
	_ "embed"
	"sync"

	"agridash/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed regions.yaml
var regionsYAML []byte

var loadRegions = sync.OnceValue(func() map[string][]string {
	var f struct {
		Regions map[string][]string `yaml:"regions"`
	}
	if err := yaml.Unmarshal(regionsYAML, &f); err != nil {
		panic("engine: invalid embedded regions.yaml: " + err.Error())
	}
	return f.Regions
})

// RegionMembers lists the member countries of an aggregate area such as EU27_2020.
// ok is false for ordinary country codes.
func RegionMembers(code string) (members []string, ok bool) {
	members, ok = loadRegions()[code]
	return members, ok
}

// distribute copies an aggregate-area record to every member country with the same
// value. Records for ordinary countries come back unchanged.
func distribute(rec models.Record) ([]models.Record, bool) {
	members, ok := RegionMembers(rec.Country)
	if !ok {
		return []models.Record{rec}, false
	}
	out := make([]models.Record, len(members))
	for i, m := range members {
		out[i] = rec
		out[i].Country = m
	}
	return out, true
}
