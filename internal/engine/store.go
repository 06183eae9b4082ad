package engine

import (
	"sort"

	"agridash/internal/models"
)

// Store holds the loaded dataset plus the distinct values of its key columns.
// It is never mutated after NewStore returns.
type Store struct {
	records []models.Record

	// Dictionaries (sorted, distinct)
	countryDict  []string
	yearDict     []int
	measureDict  []string
	nutrientDict []string
}

func NewStore(records []models.Record) *Store {
	s := &Store{records: records}

	countries := make(map[string]struct{})
	years := make(map[int]struct{})
	measures := make(map[string]struct{})
	nutrients := make(map[string]struct{})
	for _, r := range records {
		countries[r.Country] = struct{}{}
		years[r.Year] = struct{}{}
		measures[r.Measure] = struct{}{}
		nutrients[r.Nutrient] = struct{}{}
	}

	s.countryDict = sortedKeys(countries)
	s.measureDict = sortedKeys(measures)
	s.nutrientDict = sortedKeys(nutrients)
	s.yearDict = make([]int, 0, len(years))
	for y := range years {
		s.yearDict = append(s.yearDict, y)
	}
	sort.Ints(s.yearDict)
	return s
}

// Records returns the backing slice. Callers must treat it as read-only.
func (s *Store) Records() []models.Record { return s.records }

func (s *Store) Len() int { return len(s.records) }

func (s *Store) Countries() []string { return s.countryDict }

func (s *Store) Years() []int { return s.yearDict }

func (s *Store) Measures() []string { return s.measureDict }

func (s *Store) Nutrients() []string { return s.nutrientDict }

func (s *Store) Summary() models.Summary {
	return models.Summary{
		Rows:      len(s.records),
		Countries: s.countryDict,
		Years:     s.yearDict,
		Measures:  s.measureDict,
		Nutrients: s.nutrientDict,
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
