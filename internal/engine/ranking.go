package engine

import (
	"sort"

	"agridash/internal/models"
)

// TopCountries sums values per country for year and returns the n largest totals.
// Empty nutrient or measure leave that field unconstrained; measure matches either the
// label or the code. Ties go to the alphabetically first country. n <= 0 returns all.
func TopCountries(records []models.Record, nutrient, measure string, year, n int) []models.CountryTotal {
	index := make(map[string]int)
	out := make([]models.CountryTotal, 0)
	for _, r := range records {
		if r.Year != year {
			continue
		}
		if nutrient != "" && r.Nutrient != nutrient {
			continue
		}
		if measure != "" && r.Measure != measure && r.MeasureCode != measure {
			continue
		}
		i, ok := index[r.Country]
		if !ok {
			i = len(out)
			index[r.Country] = i
			out = append(out, models.CountryTotal{Country: r.Country})
		}
		out[i].Value += r.Value
		out[i].Records++
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Country < out[j].Country
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
