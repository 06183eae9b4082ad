package engine

import (
	"sort"
	"strings"

	"agridash/internal/models"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Keywords used against measure labels.
const (
	KeywordSurplus   = "surplus"
	KeywordInput     = "input"
	KeywordLivestock = "livestock"

	NutrientNitrogen   = "Nitrogen"
	NutrientPhosphorus = "Phosphorus"
)

// FilterByMeasure projects every record whose measure label equals measure exactly.
// Input order is preserved.
func FilterByMeasure(records []models.Record, measure string) []models.Tuple {
	out := make([]models.Tuple, 0)
	for _, r := range records {
		if r.Measure != measure {
			continue
		}
		out = append(out, models.Tuple{Country: r.Country, Year: r.Year, Value: r.Value})
	}
	return out
}

// BuildYearSeries pivots tuples into one row per year with a field per selected country.
// A later tuple for the same (year, country) overwrites an earlier one.
// The returned rows are in no particular order; see SortByYear.
func BuildYearSeries(tuples []models.Tuple, countries []string) []models.YearRow {
	selected := make(map[string]struct{}, len(countries))
	for _, c := range countries {
		selected[c] = struct{}{}
	}

	byYear := make(map[int]map[string]float64)
	for _, t := range tuples {
		if _, ok := selected[t.Country]; !ok {
			continue
		}
		row, ok := byYear[t.Year]
		if !ok {
			row = make(map[string]float64)
			byYear[t.Year] = row
		}
		row[t.Country] = t.Value
	}

	out := make([]models.YearRow, 0, len(byYear))
	for year, values := range byYear {
		out = append(out, models.YearRow{Year: year, Values: values})
	}
	return out
}

// SortByYear orders rows ascending by year in place and returns them.
func SortByYear(rows []models.YearRow) []models.YearRow {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Year < rows[j].Year })
	return rows
}

// FilterByNutrientAndKeyword keeps records of the given year and nutrient whose
// measure label contains keyword, compared case-insensitively.
func FilterByNutrientAndKeyword(records []models.Record, nutrient string, year int, keyword string) []models.Record {
	lower := cases.Lower(language.Und)
	kw := lower.String(keyword)

	out := make([]models.Record, 0)
	for _, r := range records {
		if r.Year != year || r.Nutrient != nutrient {
			continue
		}
		if !strings.Contains(lower.String(r.Measure), kw) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// filterByKeyword is FilterByNutrientAndKeyword without the nutrient constraint.
func filterByKeyword(records []models.Record, year int, keyword string) []models.Record {
	lower := cases.Lower(language.Und)
	kw := lower.String(keyword)

	out := make([]models.Record, 0)
	for _, r := range records {
		if r.Year == year && strings.Contains(lower.String(r.Measure), kw) {
			out = append(out, r)
		}
	}
	return out
}

// JoinByCountry left-joins other onto base by country code.
// Base values seed Nitrogen; values from other are summed into Livestock.
// Countries only present in other are dropped; countries only in base keep Livestock 0.
func JoinByCountry(base, other []models.Record) []models.JoinedPair {
	index := make(map[string]int, len(base))
	out := make([]models.JoinedPair, 0, len(base))

	for _, r := range base {
		if i, ok := index[r.Country]; ok {
			out[i] = models.JoinedPair{Country: r.Country, Nitrogen: r.Value}
			continue
		}
		index[r.Country] = len(out)
		out = append(out, models.JoinedPair{Country: r.Country, Nitrogen: r.Value})
	}

	for _, r := range other {
		i, ok := index[r.Country]
		if !ok {
			continue
		}
		out[i].Livestock += r.Value
	}
	return out
}

// NitrogenLivestock pairs nitrogen input with livestock measures for one year.
func NitrogenLivestock(records []models.Record, year int) []models.JoinedPair {
	inputs := FilterByNutrientAndKeyword(records, NutrientNitrogen, year, KeywordInput)
	livestock := filterByKeyword(records, year, KeywordLivestock)
	return JoinByCountry(inputs, livestock)
}

// Filter applies every non-empty criterion of c.
func Filter(records []models.Record, c models.Criteria) []models.Record {
	countries := stringSet(c.Countries)
	measures := stringSet(c.Measures)
	nutrients := stringSet(c.Nutrients)
	years := make(map[int]struct{}, len(c.Years))
	for _, y := range c.Years {
		years[y] = struct{}{}
	}

	out := make([]models.Record, 0)
	for _, r := range records {
		if len(countries) > 0 && !has(countries, r.Country) {
			continue
		}
		if len(years) > 0 {
			if _, ok := years[r.Year]; !ok {
				continue
			}
		}
		// The original data exposes both a label and a code; either selects.
		if len(measures) > 0 && !has(measures, r.Measure) && !has(measures, r.MeasureCode) {
			continue
		}
		if len(nutrients) > 0 && !has(nutrients, r.Nutrient) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func stringSet(vals []string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

func has(set map[string]struct{}, v string) bool {
	_, ok := set[v]
	return ok
}
