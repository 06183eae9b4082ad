package engine

import (
	_ "embed"
	"sort"
	"sync"

	"agridash/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var categoriesYAML []byte

type catalogCategory struct {
	Name     string            `yaml:"name"`
	Color    string            `yaml:"color"`
	Measures map[string]string `yaml:"measures"`
}

type catalogFile struct {
	Categories []catalogCategory `yaml:"categories"`
	Other      struct {
		Name        string `yaml:"name"`
		Color       string `yaml:"color"`
		Subcategory string `yaml:"subcategory"`
	} `yaml:"other"`
	Descriptions map[string]string `yaml:"descriptions"`
}

type catalog struct {
	byCode       map[string]models.CategoryInfo
	colors       map[string]string
	descriptions map[string]string
	other        models.CategoryInfo
}

var loadCatalog = sync.OnceValue(func() *catalog {
	var f catalogFile
	if err := yaml.Unmarshal(categoriesYAML, &f); err != nil {
		panic("engine: invalid embedded categories.yaml: " + err.Error())
	}

	c := &catalog{
		byCode:       make(map[string]models.CategoryInfo),
		colors:       make(map[string]string),
		descriptions: f.Descriptions,
		other:        models.CategoryInfo{Category: f.Other.Name, Subcategory: f.Other.Subcategory},
	}
	for _, cat := range f.Categories {
		c.colors[cat.Name] = cat.Color
		for code, sub := range cat.Measures {
			c.byCode[code] = models.CategoryInfo{Category: cat.Name, Subcategory: sub}
		}
	}
	c.colors[f.Other.Name] = f.Other.Color
	return c
})

// Categorize maps a measure code to its category. Unknown codes fall into the
// catch-all "Other Indicators" category.
func Categorize(code string) models.CategoryInfo {
	c := loadCatalog()
	if info, ok := c.byCode[code]; ok {
		return info
	}
	return c.other
}

// Categories lists the mapped categories (excluding the catch-all) sorted by name.
func Categories() []models.CategoryItem {
	c := loadCatalog()
	out := make([]models.CategoryItem, 0, len(c.colors))
	for name, color := range c.colors {
		if name == c.other.Category {
			continue
		}
		out = append(out, models.CategoryItem{Name: name, Color: color})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func CategoryColor(category string) string {
	c := loadCatalog()
	if color, ok := c.colors[category]; ok {
		return color
	}
	return c.colors[c.other.Category]
}

// DescribeMeasure returns a readable description of a measure code, or the code itself.
func DescribeMeasure(code string) string {
	if d, ok := loadCatalog().descriptions[code]; ok {
		return d
	}
	return code
}

func categoryCodes(category string) map[string]struct{} {
	codes := make(map[string]struct{})
	for code, info := range loadCatalog().byCode {
		if info.Category == category {
			codes[code] = struct{}{}
		}
	}
	return codes
}

type categoryKey struct {
	country  string
	nutrient string
	year     int
}

// AggregateByCategory sums the values of every measure in category per
// (country, nutrient, year). Empty countries/nutrient and a zero YearRange do not
// constrain. Unit is taken from the first record of each group.
func AggregateByCategory(records []models.Record, category string, countries []string, nutrient string, years models.YearRange) []models.CategoryTotal {
	codes := categoryCodes(category)
	selected := stringSet(countries)

	index := make(map[categoryKey]int)
	out := make([]models.CategoryTotal, 0)
	for _, r := range records {
		if _, ok := codes[r.MeasureCode]; !ok {
			continue
		}
		if len(selected) > 0 && !has(selected, r.Country) {
			continue
		}
		if nutrient != "" && r.Nutrient != nutrient {
			continue
		}
		if !years.Contains(r.Year) {
			continue
		}

		k := categoryKey{country: r.Country, nutrient: r.Nutrient, year: r.Year}
		if i, ok := index[k]; ok {
			out[i].Value += r.Value
			continue
		}
		index[k] = len(out)
		out = append(out, models.CategoryTotal{
			Country:  r.Country,
			Nutrient: r.Nutrient,
			Year:     r.Year,
			Value:    r.Value,
			Unit:     r.Unit,
			Category: category,
		})
	}
	return out
}

// MeasureCountryMatrix builds heatmap cells (measure x country) for one category,
// nutrient and year. The last record for a (measure, country) pair wins.
// Cells are ordered by measure code then country.
func MeasureCountryMatrix(records []models.Record, category, nutrient string, year int, countries []string) []models.MatrixCell {
	codes := categoryCodes(category)
	selected := stringSet(countries)

	type cellKey struct{ measure, country string }
	cells := make(map[cellKey]float64)
	for _, r := range records {
		if _, ok := codes[r.MeasureCode]; !ok {
			continue
		}
		if r.Nutrient != nutrient || r.Year != year || !has(selected, r.Country) {
			continue
		}
		cells[cellKey{r.MeasureCode, r.Country}] = r.Value
	}

	out := make([]models.MatrixCell, 0, len(cells))
	for k, v := range cells {
		out = append(out, models.MatrixCell{
			Measure: k.measure,
			Label:   k.measure + " - " + Categorize(k.measure).Subcategory,
			Country: k.country,
			Value:   v,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Measure != out[j].Measure {
			return out[i].Measure < out[j].Measure
		}
		return out[i].Country < out[j].Country
	})
	return out
}
