package models

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// Record is one row of the agri-environmental dataset after loading.
type Record struct {
	Country     string  `json:"country_code"`
	MeasureCode string  `json:"measure_code"`
	Measure     string  `json:"measure"`
	Nutrient    string  `json:"nutrient_type"`
	Year        int     `json:"year"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit,omitempty"`
	Frequency   string  `json:"frequency,omitempty"`
	Status      string  `json:"status,omitempty"`
}

type Tuple struct {
	Country string  `json:"country"`
	Year    int     `json:"year"`
	Value   float64 `json:"value"`
}

// YearKey is the JSON field holding the year in a flattened YearRow. It is reserved:
// a country code equal to YearKey is not emitted.
const YearKey = "year"

// YearRow is one point on the x-axis of a multi-country time chart.
// Values holds only the countries that reported for Year.
type YearRow struct {
	Year   int
	Values map[string]float64
}

// MarshalJSON flattens the row to {"year":2001,"ARG":1.1,...}.
// Keys are sorted and non-finite values become null.
func (r YearRow) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(r.Values))
	for k := range r.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString(`{"year":`)
	buf.WriteString(strconv.Itoa(r.Year))
	for _, k := range keys {
		if k == YearKey {
			continue
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		v := r.Values[k]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type JoinedPair struct {
	Country   string  `json:"country"`
	Nitrogen  float64 `json:"nitrogen"`
	Livestock float64 `json:"livestock"`
}

// Criteria selects records for the general filter. Empty fields do not constrain.
type Criteria struct {
	Countries []string
	Years     []int
	Measures  []string
	Nutrients []string
}

// YearRange is inclusive on both ends. The zero value matches every year.
type YearRange struct {
	From int
	To   int
}

func (yr YearRange) Contains(year int) bool {
	if yr.From == 0 && yr.To == 0 {
		return true
	}
	return year >= yr.From && year <= yr.To
}

type CategoryInfo struct {
	Category    string `json:"category" yaml:"category"`
	Subcategory string `json:"subcategory" yaml:"subcategory"`
}

type CategoryItem struct {
	Name  string `json:"category"`
	Color string `json:"color"`
}

type CategoryTotal struct {
	Country  string  `json:"country_code"`
	Nutrient string  `json:"nutrient_type"`
	Year     int     `json:"year"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit,omitempty"`
	Category string  `json:"category"`
}

type MatrixCell struct {
	Measure string  `json:"measure_code"`
	Label   string  `json:"label"`
	Country string  `json:"country_code"`
	Value   float64 `json:"value"`
}

type CountryTotal struct {
	Country string  `json:"country_code"`
	Value   float64 `json:"value"`
	Records int     `json:"records"`
}

type Summary struct {
	Rows      int      `json:"rows"`
	Countries []string `json:"countries"`
	Years     []int    `json:"years"`
	Measures  []string `json:"measures"`
	Nutrients []string `json:"nutrients"`
}
