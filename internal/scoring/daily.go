package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/lox/climatematch/internal/models"
	"github.com/lox/climatematch/internal/preference"
)

// DailyRecord is the score of one calendar day from one source.
type DailyRecord struct {
	Date   time.Time `json:"date"`
	Year   int       `json:"year"`
	Score  int       `json:"score"`
	Reason Reason    `json:"reason"`
}

func newRecord(date time.Time, r Result) DailyRecord {
	return DailyRecord{
		Date:   date,
		Year:   date.Year(),
		Score:  r.Score,
		Reason: r.Reason,
	}
}

// CalendarDay truncates t to midnight UTC of its own wall-clock date, so
// days from different timezones compare as dates.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

// HourlyWindows groups hourly rows by calendar date and summarizes the rows
// inside the profile's time window. Dates with no in-window rows are left out.
func HourlyWindows(rows []models.HourlyObservation, p *preference.Profile) []Window {
	type acc struct {
		tmax, dewMin      float64
		windSum, cloudSum float64
		rainSum, snowSum  float64
		n                 int
	}
	byDay := make(map[time.Time]*acc)

	for _, row := range rows {
		if !p.InWindow(timeOfDay(row.Time)) {
			continue
		}
		day := CalendarDay(row.Time)
		a, ok := byDay[day]
		if !ok {
			a = &acc{tmax: math.Inf(-1), dewMin: math.Inf(1)}
			byDay[day] = a
		}
		a.tmax = math.Max(a.tmax, row.TemperatureC)
		a.dewMin = math.Min(a.dewMin, row.DewPointC)
		a.windSum += row.WindSpeedKPH
		a.cloudSum += row.CloudCoverPct
		a.rainSum += row.RainMM
		a.snowSum += row.SnowfallCM
		a.n++
	}

	windows := make([]Window, 0, len(byDay))
	for day, a := range byDay {
		n := float64(a.n)
		windows = append(windows, Window{
			Date:              day,
			Shape:             Hourly,
			TemperatureMaxC:   a.tmax,
			DewPointMinC:      a.dewMin,
			WindMeanKPH:       a.windSum / n,
			CloudCoverMeanPct: a.cloudSum / n,
			RainSumMM:         a.rainSum,
			SnowfallSumCM:     a.snowSum,
		})
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].Date.Before(windows[j].Date) })
	return windows
}

// DailyWindows wraps pre-aggregated rows, one window per row.
func DailyWindows(rows []models.DailyObservation) []Window {
	windows := make([]Window, 0, len(rows))
	for _, row := range rows {
		windows = append(windows, Window{
			Date:              CalendarDay(row.Date),
			Shape:             Daily,
			TemperatureMaxC:   row.TemperatureMaxC,
			DewPointMinC:      row.DewPointMinC,
			WindMeanKPH:       row.WindSpeedMeanKPH,
			CloudCoverMeanPct: row.CloudCoverMeanPct,
			RainSumMM:         row.RainSumMM,
			SnowfallSumCM:     row.SnowfallSumCM,
		})
	}
	sort.SliceStable(windows, func(i, j int) bool { return windows[i].Date.Before(windows[j].Date) })
	return windows
}

// ScoreWindows classifies each window in order.
func ScoreWindows(windows []Window, p *preference.Profile) []DailyRecord {
	records := make([]DailyRecord, 0, len(windows))
	for _, w := range windows {
		records = append(records, newRecord(w.Date, Classify(w, p)))
	}
	return records
}

// ScoreHourly produces one record per date that has in-window samples.
func ScoreHourly(rows []models.HourlyObservation, p *preference.Profile) []DailyRecord {
	return ScoreWindows(HourlyWindows(rows, p), p)
}

// ScoreDaily produces one record per pre-aggregated row.
func ScoreDaily(rows []models.DailyObservation, p *preference.Profile) []DailyRecord {
	return ScoreWindows(DailyWindows(rows), p)
}
