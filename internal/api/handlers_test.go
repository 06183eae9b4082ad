package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"agridash/internal/engine"
	"agridash/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const npc = "Producer Nominal Protection Coefficient"

func testRecords() []models.Record {
	return []models.Record{
		{Country: "ARG", MeasureCode: "NPC", Measure: npc, Year: 2001, Value: 0.9},
		{Country: "ARG", MeasureCode: "NPC", Measure: npc, Year: 2001, Value: 1.1},
		{Country: "BRA", MeasureCode: "NPC", Measure: npc, Year: 2000, Value: 0.7},
		{Country: "ARG", MeasureCode: "NPC", Measure: npc, Year: 2000, Value: 1.2},
		{Country: "ARG", MeasureCode: "B1", Measure: "Nitrogen balance surplus", Nutrient: "Nitrogen", Year: 2015, Value: 40},
		{Country: "ARG", MeasureCode: "F1", Measure: "Nitrogen input fertilisers", Nutrient: "Nitrogen", Year: 2015, Value: 10},
		{Country: "ARG", MeasureCode: "C1", Measure: "Livestock cattle", Nutrient: "Not applicable", Year: 2015, Value: 3},
		{Country: "ARG", MeasureCode: "C213", Measure: "Livestock pigs", Nutrient: "Not applicable", Year: 2015, Value: 2},
		{Country: "URY", MeasureCode: "C1", Measure: "Livestock cattle", Nutrient: "Not applicable", Year: 2015, Value: 9},
		{Country: "BRA", MeasureCode: "F11", Measure: "Inorganic fertilisers", Nutrient: "Nitrogen", Year: 2015, Value: 6},
	}
}

func setup(t *testing.T, loaded bool) *echo.Echo {
	t.Helper()
	h := NewHandler(nil, Defaults{Measure: npc, Countries: []string{"ARG"}})
	if loaded {
		h.SetData(engine.NewAggregator(engine.NewStore(testRecords()), nil))
	}
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func get(t *testing.T, e *echo.Echo, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	rec := get(t, setup(t, false), "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","ready":false}`, rec.Body.String())

	rec = get(t, setup(t, true), "/api/health")
	assert.JSONEq(t, `{"status":"ok","ready":true}`, rec.Body.String())
}

func TestHealthAfterLoadFailure(t *testing.T) {
	h := NewHandler(nil, Defaults{Measure: npc})
	e := echo.New()
	h.RegisterRoutes(e)

	h.SetLoadError(errors.New("open data.csv: no such file or directory"))

	rec := get(t, e, "/api/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"error","ready":false,"error":"open data.csv: no such file or directory"}`, rec.Body.String())

	rec = get(t, e, "/api/series")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"data load failed"}`, rec.Body.String())

	// a later successful load clears the failure
	h.SetData(engine.NewAggregator(engine.NewStore(testRecords()), nil))
	rec = get(t, e, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","ready":true}`, rec.Body.String())
}

func TestDataRoutesWhileLoading(t *testing.T) {
	e := setup(t, false)
	for _, path := range []string{"/api/summary", "/api/series", "/api/records", "/api/scatter", "/api/categories"} {
		rec := get(t, e, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.JSONEq(t, `{"error":"data loading"}`, rec.Body.String(), path)
	}
}

func TestGetSeries(t *testing.T) {
	e := setup(t, true)

	rec := get(t, e, "/api/series?countries=ARG,BRA")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Measure   string            `json:"measure"`
		Countries []string          `json:"countries"`
		Colors    map[string]string `json:"colors"`
		Rows      []json.RawMessage `json:"rows"`
	}
	decodeBody(t, rec, &body)

	assert.Equal(t, npc, body.Measure)
	assert.Equal(t, []string{"ARG", "BRA"}, body.Countries)
	assert.Equal(t, ColorFor("ARG"), body.Colors["ARG"])
	require.Len(t, body.Rows, 2)
	assert.JSONEq(t, `{"year":2000,"ARG":1.2,"BRA":0.7}`, string(body.Rows[0]))
	assert.JSONEq(t, `{"year":2001,"ARG":1.1}`, string(body.Rows[1]))
}

func TestGetSeriesDefaults(t *testing.T) {
	rec := get(t, setup(t, true), "/api/series")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Countries []string          `json:"countries"`
		Rows      []json.RawMessage `json:"rows"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, []string{"ARG"}, body.Countries)
	require.Len(t, body.Rows, 2)
	assert.JSONEq(t, `{"year":2000,"ARG":1.2}`, string(body.Rows[0]))
}

func TestGetSeriesRejectsReservedCountry(t *testing.T) {
	rec := get(t, setup(t, true), "/api/series?countries=ARG,year")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSurplus(t *testing.T) {
	e := setup(t, true)

	rec := get(t, e, "/api/surplus?nutrient=Nitrogen&year=2015")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.Record
	decodeBody(t, rec, &got)
	require.Len(t, got, 1)
	assert.Equal(t, "B1", got[0].MeasureCode)

	// year defaults to the latest year in the dataset
	rec = get(t, e, "/api/surplus")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &got)
	assert.Len(t, got, 1)

	rec = get(t, e, "/api/surplus?year=last")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetScatter(t *testing.T) {
	rec := get(t, setup(t, true), "/api/scatter?year=2015")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []models.JoinedPair
	decodeBody(t, rec, &got)
	assert.Equal(t, []models.JoinedPair{{Country: "ARG", Nitrogen: 10, Livestock: 5}}, got)
}

func TestGetRecords(t *testing.T) {
	e := setup(t, true)

	rec := get(t, e, "/api/records?countries=ARG&measures=NPC&limit=2&offset=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data   []models.Record `json:"data"`
		Total  int             `json:"total"`
		Limit  int             `json:"limit"`
		Offset int             `json:"offset"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, 2, body.Limit)
	assert.Equal(t, 1, body.Offset)
	require.Len(t, body.Data, 2)
	assert.Equal(t, 1.1, body.Data[0].Value)

	rec = get(t, e, "/api/records?countries=ARG&measures=NPC&limit=9223372036854775807&offset=1")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	assert.Equal(t, 3, body.Total)
	assert.Len(t, body.Data, 2)

	rec = get(t, e, "/api/records?countries=ARG&offset=50")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	assert.Empty(t, body.Data)

	rec = get(t, e, "/api/records?years=2015,x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSummary(t *testing.T) {
	rec := get(t, setup(t, true), "/api/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Summary
	decodeBody(t, rec, &got)
	assert.Equal(t, 10, got.Rows)
	assert.Equal(t, []string{"ARG", "BRA", "URY"}, got.Countries)
	assert.Equal(t, []int{2000, 2001, 2015}, got.Years)
}

func TestGetCategories(t *testing.T) {
	rec := get(t, setup(t, true), "/api/categories")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []models.CategoryItem
	decodeBody(t, rec, &got)
	assert.Len(t, got, 6)
}

func TestGetCategoryTotals(t *testing.T) {
	e := setup(t, true)

	rec := get(t, e, "/api/categories/aggregate?category=Nutrient%20Inputs&nutrient=Nitrogen&from=2015")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Category string                 `json:"category"`
		Color    string                 `json:"color"`
		Data     []models.CategoryTotal `json:"data"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "#8BC34A", body.Color)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "ARG", body.Data[0].Country)
	assert.Equal(t, 10.0, body.Data[0].Value)

	assert.Equal(t, http.StatusBadRequest, get(t, e, "/api/categories/aggregate").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, e, "/api/categories/aggregate?category=Land%20Use&from=x").Code)
}

func TestGetCategoryMatrix(t *testing.T) {
	rec := get(t, setup(t, true), "/api/categories/matrix?category=Livestock%20%26%20Manure&nutrient=Not%20applicable&year=2015")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []models.MatrixCell
	decodeBody(t, rec, &got)
	require.Len(t, got, 3)
	assert.Equal(t, models.MatrixCell{Measure: "C1", Label: "C1 - Other livestock", Country: "ARG", Value: 3}, got[0])
	assert.Equal(t, "URY", got[1].Country)
	assert.Equal(t, "C213", got[2].Measure)
}

func TestGetTopCountries(t *testing.T) {
	e := setup(t, true)

	rec := get(t, e, "/api/countries/top?year=2015")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.CountryTotal
	decodeBody(t, rec, &got)
	require.Len(t, got, 3)
	assert.Equal(t, models.CountryTotal{Country: "ARG", Value: 55, Records: 4}, got[0])
	assert.Equal(t, "URY", got[1].Country)
	assert.Equal(t, "BRA", got[2].Country)

	rec = get(t, e, "/api/countries/top?year=2015&nutrient=Nitrogen&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &got)
	assert.Equal(t, []models.CountryTotal{{Country: "ARG", Value: 50, Records: 2}}, got)

	rec = get(t, e, "/api/countries/top?year=2015&measure=C1")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &got)
	require.Len(t, got, 2)
	assert.Equal(t, "URY", got[0].Country)

	assert.Equal(t, http.StatusBadRequest, get(t, e, "/api/countries/top?year=x").Code)
}

func TestColorForIsStable(t *testing.T) {
	assert.Equal(t, ColorFor("ARG"), ColorFor("ARG"))
	assert.Contains(t, palette, ColorFor("BRA"))
	assert.Equal(t, map[string]string{"URY": ColorFor("URY")}, colorsFor([]string{"URY"}))
}
