package api

import (
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"agridash/internal/engine"
	"agridash/internal/models"

	"github.com/labstack/echo/v4"
)

// Defaults applied when a query leaves the selection empty.
type Defaults struct {
	Measure   string
	Countries []string
	Nutrient  string
}

type Handler struct {
	agg      atomic.Pointer[engine.Aggregator]
	loadErr  atomic.Pointer[string]
	defaults Defaults
}

// NewHandler accepts a nil aggregator; data routes answer 503 until SetData is called.
func NewHandler(agg *engine.Aggregator, defaults Defaults) *Handler {
	if defaults.Nutrient == "" {
		defaults.Nutrient = engine.NutrientNitrogen
	}
	h := &Handler{defaults: defaults}
	if agg != nil {
		h.agg.Store(agg)
	}
	return h
}

func (h *Handler) SetData(agg *engine.Aggregator) {
	h.agg.Store(agg)
	h.loadErr.Store(nil)
}

// SetLoadError records that the dataset could not be loaded, so health and data
// routes report a failure instead of "still loading".
func (h *Handler) SetLoadError(err error) {
	if err == nil {
		h.loadErr.Store(nil)
		return
	}
	msg := err.Error()
	h.loadErr.Store(&msg)
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/health", h.Health)

	data := api.Group("", h.requireData)
	data.GET("/summary", h.GetSummary)
	data.GET("/records", h.GetRecords)
	data.GET("/series", h.GetSeries)
	data.GET("/surplus", h.GetSurplus)
	data.GET("/scatter", h.GetScatter)
	data.GET("/categories", h.GetCategories)
	data.GET("/categories/aggregate", h.GetCategoryTotals)
	data.GET("/categories/matrix", h.GetCategoryMatrix)
	data.GET("/countries/top", h.GetTopCountries)
}

func (h *Handler) requireData(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.agg.Load() == nil {
			if msg := h.loadErr.Load(); msg != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "data load failed"})
			}
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "data loading"})
		}
		return next(c)
	}
}

// --- PARAMS ---

func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// listParam splits a comma separated query value, also accepting repeated keys.
func listParam(c echo.Context, name string) []string {
	var out []string
	for _, raw := range c.QueryParams()[name] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func intParam(c echo.Context, name string) (int, bool, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, echo.NewHTTPError(http.StatusBadRequest, name+" must be an integer")
	}
	return v, true, nil
}

// yearParam falls back to the latest year in the dataset.
func (h *Handler) yearParam(c echo.Context, agg *engine.Aggregator) (int, error) {
	year, ok, err := intParam(c, "year")
	if err != nil {
		return 0, err
	}
	if !ok {
		years := agg.Store().Years()
		if len(years) > 0 {
			year = years[len(years)-1]
		}
	}
	return year, nil
}

// --- HANDLERS ---

func (h *Handler) Health(c echo.Context) error {
	if msg := h.loadErr.Load(); msg != nil && h.agg.Load() == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status": "error",
			"ready":  false,
			"error":  *msg,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"ready":  h.agg.Load() != nil,
	})
}

func (h *Handler) GetSummary(c echo.Context) error {
	return c.JSON(http.StatusOK, h.agg.Load().Store().Summary())
}

func (h *Handler) GetRecords(c echo.Context) error {
	crit := models.Criteria{
		Countries: listParam(c, "countries"),
		Measures:  listParam(c, "measures"),
		Nutrients: listParam(c, "nutrients"),
	}
	for _, y := range listParam(c, "years") {
		v, err := strconv.Atoi(y)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "years must be integers")
		}
		crit.Years = append(crit.Years, v)
	}

	records := h.agg.Load().Records(crit)
	total := len(records)
	limit, offset := getPaginationParams(c, total)

	if offset >= total {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"data":   []models.Record{},
			"total":  total,
			"limit":  limit,
			"offset": offset,
		})
	}

	// limit can be as large as MaxInt; compare against the remainder instead of adding.
	end := total
	if limit < total-offset {
		end = offset + limit
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   records[offset:end],
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// time series for one measure across selected countries
func (h *Handler) GetSeries(c echo.Context) error {
	measure := c.QueryParam("measure")
	if measure == "" {
		measure = h.defaults.Measure
	}
	countries := listParam(c, "countries")
	if len(countries) == 0 {
		countries = h.defaults.Countries
	}
	for _, cc := range countries {
		if cc == models.YearKey {
			return echo.NewHTTPError(http.StatusBadRequest, `"year" is not a valid country code`)
		}
	}

	rows := h.agg.Load().Series(measure, countries)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"measure":   measure,
		"countries": countries,
		"colors":    colorsFor(countries),
		"rows":      rows,
	})
}

func (h *Handler) GetSurplus(c echo.Context) error {
	agg := h.agg.Load()
	nutrient := c.QueryParam("nutrient")
	if nutrient == "" {
		nutrient = h.defaults.Nutrient
	}
	year, err := h.yearParam(c, agg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, agg.Surplus(nutrient, year))
}

// nitrogen input vs livestock, one point per country
func (h *Handler) GetScatter(c echo.Context) error {
	agg := h.agg.Load()
	year, err := h.yearParam(c, agg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, agg.Scatter(year))
}

func (h *Handler) GetCategories(c echo.Context) error {
	return c.JSON(http.StatusOK, engine.Categories())
}

func (h *Handler) GetCategoryTotals(c echo.Context) error {
	category := c.QueryParam("category")
	if category == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "category is required")
	}
	from, _, err := intParam(c, "from")
	if err != nil {
		return err
	}
	to, _, err := intParam(c, "to")
	if err != nil {
		return err
	}
	if from != 0 && to == 0 {
		to = from
	}
	if to != 0 && from == 0 {
		from = to
	}

	out := h.agg.Load().CategoryTotals(category, listParam(c, "countries"), c.QueryParam("nutrient"), models.YearRange{From: from, To: to})
	return c.JSON(http.StatusOK, map[string]interface{}{
		"category": category,
		"color":    engine.CategoryColor(category),
		"data":     out,
	})
}

func (h *Handler) GetCategoryMatrix(c echo.Context) error {
	agg := h.agg.Load()
	category := c.QueryParam("category")
	if category == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "category is required")
	}
	nutrient := c.QueryParam("nutrient")
	if nutrient == "" {
		nutrient = h.defaults.Nutrient
	}
	year, err := h.yearParam(c, agg)
	if err != nil {
		return err
	}
	countries := listParam(c, "countries")
	if len(countries) == 0 {
		countries = agg.Store().Countries()
	}
	return c.JSON(http.StatusOK, agg.CategoryMatrix(category, nutrient, year, countries))
}

// ranks countries by summed value, top N via ?limit=
func (h *Handler) GetTopCountries(c echo.Context) error {
	agg := h.agg.Load()
	year, err := h.yearParam(c, agg)
	if err != nil {
		return err
	}
	data := agg.TopCountries(c.QueryParam("nutrient"), c.QueryParam("measure"), year, 0)
	limit, _ := getPaginationParams(c, len(data))

	if limit < len(data) {
		return c.JSON(http.StatusOK, data[:limit])
	}
	return c.JSON(http.StatusOK, data)
}
