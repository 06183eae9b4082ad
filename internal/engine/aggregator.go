package engine

import (
	"time"

	"agridash/internal/models"

	"go.uber.org/zap"
)

// Stat describes one finished aggregation call.
type Stat struct {
	Op      string
	In      int
	Out     int
	Elapsed time.Duration
}

// Observer receives a Stat after every Aggregator call. It must not retain the Stat's
// inputs and must not block for long; it runs on the caller's goroutine.
type Observer func(Stat)

// ZapObserver logs each Stat at debug level.
func ZapObserver(logger *zap.Logger) Observer {
	return func(s Stat) {
		logger.Debug("aggregate",
			zap.String("op", s.Op),
			zap.Int("in", s.In),
			zap.Int("out", s.Out),
			zap.Duration("elapsed", s.Elapsed),
		)
	}
}

// Aggregator runs the shaping functions over a Store's records and reports each call
// to an optional Observer. It holds no mutable state and is safe for concurrent use.
type Aggregator struct {
	store   *Store
	observe Observer
}

func NewAggregator(store *Store, observe Observer) *Aggregator {
	return &Aggregator{store: store, observe: observe}
}

func (a *Aggregator) Store() *Store { return a.store }

func (a *Aggregator) report(op string, in, out int, start time.Time) {
	if a.observe == nil {
		return
	}
	a.observe(Stat{Op: op, In: in, Out: out, Elapsed: time.Since(start)})
}

// Series returns the year-sorted chart rows for measure across countries.
func (a *Aggregator) Series(measure string, countries []string) []models.YearRow {
	t0 := time.Now()
	records := a.store.Records()
	tuples := FilterByMeasure(records, measure)
	rows := SortByYear(BuildYearSeries(tuples, countries))
	a.report("series", len(records), len(rows), t0)
	return rows
}

func (a *Aggregator) Surplus(nutrient string, year int) []models.Record {
	t0 := time.Now()
	records := a.store.Records()
	out := FilterByNutrientAndKeyword(records, nutrient, year, KeywordSurplus)
	a.report("surplus", len(records), len(out), t0)
	return out
}

func (a *Aggregator) Scatter(year int) []models.JoinedPair {
	t0 := time.Now()
	records := a.store.Records()
	out := NitrogenLivestock(records, year)
	a.report("scatter", len(records), len(out), t0)
	return out
}

func (a *Aggregator) Records(c models.Criteria) []models.Record {
	t0 := time.Now()
	records := a.store.Records()
	out := Filter(records, c)
	a.report("records", len(records), len(out), t0)
	return out
}

func (a *Aggregator) CategoryTotals(category string, countries []string, nutrient string, years models.YearRange) []models.CategoryTotal {
	t0 := time.Now()
	records := a.store.Records()
	out := AggregateByCategory(records, category, countries, nutrient, years)
	a.report("category_totals", len(records), len(out), t0)
	return out
}

func (a *Aggregator) CategoryMatrix(category, nutrient string, year int, countries []string) []models.MatrixCell {
	t0 := time.Now()
	records := a.store.Records()
	out := MeasureCountryMatrix(records, category, nutrient, year, countries)
	a.report("category_matrix", len(records), len(out), t0)
	return out
}

func (a *Aggregator) TopCountries(nutrient, measure string, year, n int) []models.CountryTotal {
	t0 := time.Now()
	records := a.store.Records()
	out := TopCountries(records, nutrient, measure, year, n)
	a.report("top_countries", len(records), len(out), t0)
	return out
}
