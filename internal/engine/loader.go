package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"agridash/internal/models"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LoadOptions tunes Load. The zero value is usable.
type LoadOptions struct {
	Sheet   string // xlsx only; defaults to the first sheet
	Workers int    // defaults to runtime.NumCPU()

	// DistributeEU replaces EU aggregate rows (EU27_2020, EU27, EU28, EU) with one
	// row per member country carrying the aggregate's value.
	DistributeEU bool
}

// LoadStats reports what the loader kept and discarded.
type LoadStats struct {
	Read       int
	Invalid    int
	Duplicates int
	// Distributed counts aggregate rows replaced by member rows.
	Distributed int
	Kept        int
	Elapsed     time.Duration
}

// rawRow is one source row after header normalization, before type conversion.
type rawRow struct {
	Country     string `csv:"country_code"`
	MeasureCode string `csv:"measure_code"`
	Measure     string `csv:"measure"`
	Nutrient    string `csv:"nutrient_type"`
	Year        string `csv:"year"`
	Value       string `csv:"value"`
	Unit        string `csv:"unit"`
	Frequency   string `csv:"frequency"`
	Status      string `csv:"status"`
}

// Source column names, raw SDMX export and cleaned export, mapped to rawRow tags.
// Lookup is case-sensitive: the raw export has both MEASURE (code) and Measure (label).
var columnAliases = map[string]string{
	"REF_AREA":      "country_code",
	"country_code":  "country_code",
	"MEASURE":       "measure_code",
	"measure_code":  "measure_code",
	"Measure":       "measure",
	"measure":       "measure",
	"NUTRIENTS":     "nutrient_type",
	"nutrient_type": "nutrient_type",
	"nutrient":      "nutrient_type",
	"TIME_PERIOD":   "year",
	"year":          "year",
	"OBS_VALUE":     "value",
	"value":         "value",
	"UNIT_MEASURE":  "unit",
	"unit":          "unit",
	"FREQ":          "frequency",
	"frequency":     "frequency",
	"OBS_STATUS":    "status",
	"status":        "status",
}

// Regional reporting areas folded into their country.
var countryCodeMap = map[string]string{
	"BE2": "BEL",
	"BE3": "BEL",
}

var nutrientNames = map[string]string{
	"NITROGEN":   NutrientNitrogen,
	"PHOSPHORUS": NutrientPhosphorus,
	"_Z":         "Not applicable",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Load reads a .csv or .xlsx dataset from path and returns the cleaned Store.
func Load(ctx context.Context, path string, opts LoadOptions) (*Store, LoadStats, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return loadXLSX(ctx, path, opts)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, LoadStats{}, eris.Wrapf(err, "loader: open %s", path)
		}
		defer f.Close()
		return ReadCSV(ctx, f, opts)
	}
}

// ReadCSV decodes a CSV stream. A leading UTF-8 byte order mark is ignored.
func ReadCSV(ctx context.Context, r io.Reader, opts LoadOptions) (*Store, LoadStats, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return decode(ctx, cr, opts)
}

func loadXLSX(ctx context.Context, path string, opts LoadOptions) (*Store, LoadStats, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, LoadStats{}, eris.Wrapf(err, "loader: open workbook %s", path)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, LoadStats{}, eris.Wrapf(err, "loader: open sheet %q", sheet)
	}
	defer rows.Close()

	return decode(ctx, &sheetReader{rows: rows}, opts)
}

// sheetReader adapts excelize's row iterator to csvutil.Reader.
type sheetReader struct {
	rows *excelize.Rows
}

func (s *sheetReader) Read() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return s.rows.Columns()
}

// fixedWidthReader pads or truncates rows to the header width; csvutil rejects ragged rows
// and spreadsheets drop trailing empty cells.
type fixedWidthReader struct {
	r     csvutil.Reader
	width int
}

func (f *fixedWidthReader) Read() ([]string, error) {
	rec, err := f.r.Read()
	if err != nil {
		return nil, err
	}
	if len(rec) > f.width {
		return rec[:f.width], nil
	}
	for len(rec) < f.width {
		rec = append(rec, "")
	}
	return rec, nil
}

func decode(ctx context.Context, r csvutil.Reader, opts LoadOptions) (*Store, LoadStats, error) {
	start := time.Now()
	stats := LoadStats{}

	header, err := r.Read()
	if err == io.EOF {
		stats.Elapsed = time.Since(start)
		return NewStore(nil), stats, nil
	}
	if err != nil {
		return nil, stats, eris.Wrap(err, "loader: read header")
	}
	header = normalizeHeader(header)

	dec, err := csvutil.NewDecoder(&fixedWidthReader{r: r, width: len(header)}, header...)
	if err != nil {
		return nil, stats, eris.Wrap(err, "loader: build decoder")
	}

	// A. Decode (sequential, the reader is a stream)
	var raws []rawRow
	for {
		if len(raws)%4096 == 0 && ctx.Err() != nil {
			return nil, stats, eris.Wrap(ctx.Err(), "loader: decode cancelled")
		}
		var row rawRow
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, stats, eris.Wrapf(err, "loader: decode row %d", len(raws)+2)
		}
		raws = append(raws, row)
	}
	stats.Read = len(raws)

	// B. Convert (parallel chunks writing into preallocated slots)
	records, keep, err := convert(ctx, raws, opts.Workers)
	if err != nil {
		return nil, stats, err
	}

	// C. Compact, distribute EU aggregates, dedupe (first occurrence kept)
	seen := make(map[uint64]struct{}, len(records))
	out := make([]models.Record, 0, len(records))
	for i, rec := range records {
		if !keep[i] {
			stats.Invalid++
			continue
		}
		expanded := []models.Record{rec}
		if opts.DistributeEU {
			var distributed bool
			if expanded, distributed = distribute(rec); distributed {
				stats.Distributed++
			}
		}
		for _, r := range expanded {
			h := fingerprint(r)
			if _, dup := seen[h]; dup {
				stats.Duplicates++
				continue
			}
			seen[h] = struct{}{}
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.MeasureCode < b.MeasureCode
	})

	stats.Kept = len(out)
	stats.Elapsed = time.Since(start)

	store := NewStore(out)
	zap.L().Info("dataset loaded",
		zap.Int("read", stats.Read),
		zap.Int("invalid", stats.Invalid),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("distributed", stats.Distributed),
		zap.Int("rows", stats.Kept),
		zap.Int("countries", len(store.Countries())),
		zap.Strings("nutrients", store.Nutrients()),
		zap.Duration("elapsed", stats.Elapsed),
	)
	return store, stats, nil
}

func convert(ctx context.Context, raws []rawRow, workers int) ([]models.Record, []bool, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	records := make([]models.Record, len(raws))
	keep := make([]bool, len(raws))
	if len(raws) == 0 {
		return records, keep, nil
	}

	chunkSize := (len(raws) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for s := 0; s < len(raws); s += chunkSize {
		e := min(s+chunkSize, len(raws))
		g.Go(func() error {
			for i := s; i < e; i++ {
				if (i-s)%4096 == 0 && gctx.Err() != nil {
					return eris.Wrap(gctx.Err(), "loader: convert cancelled")
				}
				records[i], keep[i] = cleanRow(raws[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return records, keep, nil
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.ReplaceAll(strings.TrimSpace(h), " ", "_")
		if canon, ok := columnAliases[name]; ok && !used[canon] {
			name = canon
		} else if name == "" || used[name] {
			name = "column_" + strconv.Itoa(i)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// cleanRow converts a raw row. ok is false when year or value is not usable.
func cleanRow(raw rawRow) (rec models.Record, ok bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw.Value), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return rec, false
	}
	year, ok := parseYear(raw.Year)
	if !ok {
		return rec, false
	}

	country := strings.TrimSpace(raw.Country)
	if mapped, found := countryCodeMap[country]; found {
		country = mapped
	}
	nutrient := strings.TrimSpace(raw.Nutrient)
	if mapped, found := nutrientNames[nutrient]; found {
		nutrient = mapped
	}

	code := strings.TrimSpace(raw.MeasureCode)
	label := strings.TrimSpace(raw.Measure)
	if label == "" {
		label = code
	}
	if code == "" {
		code = label
	}

	return models.Record{
		Country:     country,
		MeasureCode: code,
		Measure:     label,
		Nutrient:    nutrient,
		Year:        year,
		Value:       value,
		Unit:        strings.TrimSpace(raw.Unit),
		Frequency:   strings.TrimSpace(raw.Frequency),
		Status:      strings.TrimSpace(raw.Status),
	}, true
}

// parseYear accepts "2001" and float renderings such as "2001.0".
func parseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if y, err := strconv.Atoi(s); err == nil {
		return y, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

func fingerprint(r models.Record) uint64 {
	var b strings.Builder
	for _, s := range []string{r.Country, r.MeasureCode, r.Measure, r.Nutrient, r.Unit, r.Frequency, r.Status} {
		b.WriteString(s)
		b.WriteByte(0x1f)
	}
	b.WriteString(strconv.Itoa(r.Year))
	b.WriteByte(0x1f)
	b.WriteString(strconv.FormatFloat(r.Value, 'g', -1, 64))
	return xxh3.HashString(b.String())
}
