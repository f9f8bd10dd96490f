package forecast

import (
	"math"
	"sort"
	"time"

	"github.com/lox/climatematch/internal/scoring"
)

// ModelSeries is the scored daily series of one forecast model.
type ModelSeries struct {
	Model   string                `json:"model"`
	Records []scoring.DailyRecord `json:"records"`
}

// YearStat is a yearly mean score. For the ensemble, Min and Max are the
// lowest and highest per-model means; for a single series they equal Mean.
type YearStat struct {
	Year int     `json:"year"`
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Reconciliation is the yearly view of a historical series and a forecast
// ensemble, stitched at the shared year when there is one.
type Reconciliation struct {
	Historical     []YearStat     `json:"historical"`
	Forecast       []YearStat     `json:"forecast"`
	SharedYear     int            `json:"shared_year,omitempty"`
	Stitched       bool           `json:"stitched"`
	DaysHistorical int            `json:"days_historical,omitempty"`
	DaysForecast   int            `json:"days_forecast,omitempty"`
	Reasons        []ReasonSeries `json:"reasons"`
}

// Reconcile builds the yearly means for both sources and stitches them.
// Models with no records are ignored.
func Reconcile(historical []scoring.DailyRecord, models []ModelSeries) *Reconciliation {
	models = nonEmpty(models)

	rec := &Reconciliation{
		Historical: YearlyMeans(historical),
		Forecast:   EnsembleMeans(models),
		Reasons:    ReasonCounts(historical, models),
	}

	year, ok := SharedYear(historical, models)
	if !ok {
		return rec
	}

	rec.SharedYear = year
	rec.Stitched = true
	rec.DaysHistorical = distinctDays(year, historical...)
	rec.DaysForecast = distinctDays(year, allRecords(models)...)

	hi := yearIndex(rec.Historical, year)
	fi := yearIndex(rec.Forecast, year)
	stitched := Stitch(rec.Historical[hi], rec.DaysHistorical, rec.Forecast[fi], rec.DaysForecast)
	rec.Forecast[fi] = stitched
	rec.Historical[hi] = YearStat{Year: year, Mean: stitched.Mean, Min: stitched.Mean, Max: stitched.Mean}

	stitchReasons(rec.Reasons, year)
	return rec
}

// Stitch blends a historical and an ensemble yearly value, weighting each by
// the number of days it contributes. The bounds keep the historical share
// fixed and take the ensemble's min or max for the forecast share.
func Stitch(hist YearStat, daysHist int, fc YearStat, daysForecast int) YearStat {
	total := float64(daysHist + daysForecast)
	if total == 0 {
		return fc
	}
	wh := float64(daysHist) / total
	wf := float64(daysForecast) / total
	return YearStat{
		Year: fc.Year,
		Mean: hist.Mean*wh + fc.Mean*wf,
		Min:  hist.Mean*wh + fc.Min*wf,
		Max:  hist.Mean*wh + fc.Max*wf,
	}
}

// SharedYear returns the last historical year when it is also the first
// forecast year.
func SharedYear(historical []scoring.DailyRecord, models []ModelSeries) (int, bool) {
	if len(historical) == 0 {
		return 0, false
	}
	lastHist := historical[0].Year
	for _, r := range historical {
		lastHist = max(lastHist, r.Year)
	}

	firstForecast, found := 0, false
	for _, r := range allRecords(models) {
		if !found || r.Year < firstForecast {
			firstForecast = r.Year
			found = true
		}
	}
	if !found || firstForecast != lastHist {
		return 0, false
	}
	return lastHist, true
}

// YearlyMeans averages one series per year.
func YearlyMeans(records []scoring.DailyRecord) []YearStat {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, r := range records {
		sums[r.Year] += float64(r.Score)
		counts[r.Year]++
	}

	stats := make([]YearStat, 0, len(sums))
	for _, year := range sortedYears(counts) {
		mean := sums[year] / float64(counts[year])
		stats = append(stats, YearStat{Year: year, Mean: mean, Min: mean, Max: mean})
	}
	return stats
}

// EnsembleMeans computes each model's yearly means, then the mean, min and max
// across the models that cover each year.
func EnsembleMeans(models []ModelSeries) []YearStat {
	perYear := make(map[int][]float64)
	for _, m := range models {
		for _, ys := range YearlyMeans(m.Records) {
			perYear[ys.Year] = append(perYear[ys.Year], ys.Mean)
		}
	}

	stats := make([]YearStat, 0, len(perYear))
	for _, year := range sortedYears(perYear) {
		stats = append(stats, band(year, perYear[year]))
	}
	return stats
}

func band(year int, values []float64) YearStat {
	s := YearStat{Year: year, Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(values))
	return s
}

func distinctDays(year int, records ...scoring.DailyRecord) int {
	days := make(map[time.Time]struct{})
	for _, r := range records {
		if r.Year == year {
			days[r.Date] = struct{}{}
		}
	}
	return len(days)
}

func allRecords(models []ModelSeries) []scoring.DailyRecord {
	var out []scoring.DailyRecord
	for _, m := range models {
		out = append(out, m.Records...)
	}
	return out
}

func nonEmpty(models []ModelSeries) []ModelSeries {
	out := make([]ModelSeries, 0, len(models))
	for _, m := range models {
		if len(m.Records) > 0 {
			out = append(out, m)
		}
	}
	return out
}

func yearIndex(stats []YearStat, year int) int {
	return sort.Search(len(stats), func(i int) bool { return stats[i].Year >= year })
}

func sortedYears[V any](m map[int]V) []int {
	years := make([]int, 0, len(m))
	for y := range m {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
