package summary

import (
	"sort"
	"time"

	"github.com/lox/climatematch/internal/forecast"
	"github.com/lox/climatematch/internal/models"
	"github.com/lox/climatematch/internal/scoring"
)

// RollingWindowDays is the width of the moving average over daily scores.
const RollingWindowDays = 30

// Report is everything derived for one city.
type Report struct {
	Historical        []scoring.DailyRecord    `json:"historical"`
	Models            []forecast.ModelSeries   `json:"models"`
	Yearly            *forecast.Reconciliation `json:"yearly"`
	ScoreDistribution []YearDistribution       `json:"score_distribution"`
	Monthly           MonthlyProfile           `json:"monthly"`
	Rolling           []RollingPoint           `json:"rolling"`
	ModelRolling      []ModelRolling           `json:"model_rolling"`
	AirQuality        []AirQualityYear         `json:"air_quality"`
}

// Summarize derives every presentation aggregate from the scored series.
func Summarize(historical []scoring.DailyRecord, series []forecast.ModelSeries, air []models.AirQualitySample) *Report {
	return &Report{
		Historical:        historical,
		Models:            series,
		Yearly:            forecast.Reconcile(historical, series),
		ScoreDistribution: ScoreDistribution(historical, series),
		Monthly:           Monthly(historical, series),
		Rolling:           RollingMean(historical, RollingWindowDays),
		ModelRolling:      ModelRollingMeans(series, RollingWindowDays),
		AirQuality:        AirQualityBands(air),
	}
}

// LevelPercent is the share of days at one score level.
type LevelPercent struct {
	Score   int     `json:"score"`
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
}

// YearDistribution is the score-level breakdown of one year for one source.
type YearDistribution struct {
	Year   int            `json:"year"`
	Source string         `json:"source"`
	Levels []LevelPercent `json:"levels"`
}

const (
	SourceHistorical = "historical"
	SourceForecast   = "forecast"
)

// ScoreDistribution reports, per year and source, the percentage of days at
// each score level. The denominator is the number of distinct dates present
// in either source that year, so both sources are normalized the same way
// in the shared year. Forecast percentages are averaged over every model with
// data; a model missing a year counts as 0% at each level that year.
func ScoreDistribution(historical []scoring.DailyRecord, series []forecast.ModelSeries) []YearDistribution {
	dates := make(map[int]map[time.Time]struct{})
	addDates := func(records []scoring.DailyRecord) {
		for _, r := range records {
			if dates[r.Year] == nil {
				dates[r.Year] = make(map[time.Time]struct{})
			}
			dates[r.Year][r.Date] = struct{}{}
		}
	}
	addDates(historical)
	for _, m := range series {
		addDates(m.Records)
	}

	histCounts := levelCounts(historical)
	var modelCounts []map[int]map[int]int
	forecastYears := make(map[int]bool)
	for _, m := range series {
		if len(m.Records) == 0 {
			continue
		}
		counts := levelCounts(m.Records)
		for year := range counts {
			forecastYears[year] = true
		}
		modelCounts = append(modelCounts, counts)
	}

	var out []YearDistribution
	for _, year := range sortedKeys(dates) {
		denom := float64(len(dates[year]))

		if counts, ok := histCounts[year]; ok {
			d := YearDistribution{Year: year, Source: SourceHistorical}
			for _, level := range scoring.Levels {
				d.Levels = append(d.Levels, levelPercent(level, float64(counts[level])/denom*100))
			}
			out = append(out, d)
		}

		if !forecastYears[year] {
			continue
		}
		d := YearDistribution{Year: year, Source: SourceForecast}
		for _, level := range scoring.Levels {
			var sum float64
			for _, mc := range modelCounts {
				sum += float64(mc[year][level]) / denom * 100
			}
			d.Levels = append(d.Levels, levelPercent(level, sum/float64(len(modelCounts))))
		}
		out = append(out, d)
	}
	return out
}

func levelPercent(score int, pct float64) LevelPercent {
	return LevelPercent{Score: score, Name: scoring.LevelName(score), Percent: pct}
}

func levelCounts(records []scoring.DailyRecord) map[int]map[int]int {
	counts := make(map[int]map[int]int)
	for _, r := range records {
		if counts[r.Year] == nil {
			counts[r.Year] = make(map[int]int)
		}
		counts[r.Year][r.Score]++
	}
	return counts
}

// MonthMean is the mean score of one calendar month of one year.
type MonthMean struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Mean  float64    `json:"mean"`
}

// MonthlyProfile holds the seasonal lines. The two sources are kept apart,
// including in the shared year.
type MonthlyProfile struct {
	Historical []MonthMean `json:"historical"`
	Forecast   []MonthMean `json:"forecast"`
}

type yearMonth struct {
	year  int
	month time.Month
}

func monthlyMeans(records []scoring.DailyRecord) map[yearMonth]float64 {
	sums := make(map[yearMonth]float64)
	counts := make(map[yearMonth]int)
	for _, r := range records {
		k := yearMonth{r.Year, r.Date.Month()}
		sums[k] += float64(r.Score)
		counts[k]++
	}
	for k := range sums {
		sums[k] /= float64(counts[k])
	}
	return sums
}

// Monthly computes mean score per year and month. The forecast line is the
// mean of the per-model monthly means.
func Monthly(historical []scoring.DailyRecord, series []forecast.ModelSeries) MonthlyProfile {
	var p MonthlyProfile
	for k, mean := range monthlyMeans(historical) {
		p.Historical = append(p.Historical, MonthMean{Year: k.year, Month: k.month, Mean: mean})
	}

	sums := make(map[yearMonth]float64)
	counts := make(map[yearMonth]int)
	for _, m := range series {
		for k, mean := range monthlyMeans(m.Records) {
			sums[k] += mean
			counts[k]++
		}
	}
	for k, sum := range sums {
		p.Forecast = append(p.Forecast, MonthMean{Year: k.year, Month: k.month, Mean: sum / float64(counts[k])})
	}

	sortMonths(p.Historical)
	sortMonths(p.Forecast)
	return p
}

func sortMonths(m []MonthMean) {
	sort.Slice(m, func(i, j int) bool {
		if m[i].Year != m[j].Year {
			return m[i].Year < m[j].Year
		}
		return m[i].Month < m[j].Month
	})
}

// RollingPoint is the trailing mean ending at Date.
type RollingPoint struct {
	Date time.Time `json:"date"`
	Mean float64   `json:"mean"`
}

// RollingMean is the trailing moving average over consecutive records. The
// first point is reported once a full window is available.
func RollingMean(records []scoring.DailyRecord, window int) []RollingPoint {
	if window <= 0 || len(records) < window {
		return nil
	}
	out := make([]RollingPoint, 0, len(records)-window+1)
	var sum float64
	for i, r := range records {
		sum += float64(r.Score)
		if i >= window {
			sum -= float64(records[i-window].Score)
		}
		if i >= window-1 {
			out = append(out, RollingPoint{Date: r.Date, Mean: sum / float64(window)})
		}
	}
	return out
}

// ModelRolling is the trailing mean of one forecast model's scores.
type ModelRolling struct {
	Model  string         `json:"model"`
	Points []RollingPoint `json:"points"`
}

func ModelRollingMeans(series []forecast.ModelSeries, window int) []ModelRolling {
	out := make([]ModelRolling, 0, len(series))
	for _, m := range series {
		out = append(out, ModelRolling{Model: m.Model, Points: RollingMean(m.Records, window)})
	}
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
