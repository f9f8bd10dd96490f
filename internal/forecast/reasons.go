package forecast

import (
	"sort"

	"github.com/lox/climatematch/internal/scoring"
)

// ReasonCount is how many days in a year carried a reason.
type ReasonCount struct {
	Year  int     `json:"year"`
	Count float64 `json:"count"`
}

// ReasonSeries tracks one reason label over time. Forecast entries hold the
// mean, min and max of the per-model yearly counts.
type ReasonSeries struct {
	Reason     scoring.Reason `json:"reason"`
	Historical []ReasonCount  `json:"historical"`
	Forecast   []YearStat     `json:"forecast"`
}

type yearCounts map[int]map[scoring.Reason]int

func countReasons(records []scoring.DailyRecord) yearCounts {
	counts := make(yearCounts)
	for _, r := range records {
		if counts[r.Year] == nil {
			counts[r.Year] = make(map[scoring.Reason]int)
		}
		counts[r.Year][r.Reason]++
	}
	return counts
}

// ReasonCounts returns one series per reason label, in scoring.Reasons order.
// Every year a source covers gets an entry, zero when the reason never
// occurred that year.
func ReasonCounts(historical []scoring.DailyRecord, models []ModelSeries) []ReasonSeries {
	hist := countReasons(historical)
	histYears := sortedYears(hist)

	perModel := make([]yearCounts, 0, len(models))
	forecastYears := make(map[int]struct{})
	for _, m := range models {
		c := countReasons(m.Records)
		perModel = append(perModel, c)
		for y := range c {
			forecastYears[y] = struct{}{}
		}
	}
	years := sortedYears(forecastYears)

	out := make([]ReasonSeries, 0, len(scoring.Reasons))
	for _, reason := range scoring.Reasons {
		s := ReasonSeries{
			Reason:     reason,
			Historical: make([]ReasonCount, 0, len(histYears)),
			Forecast:   make([]YearStat, 0, len(years)),
		}
		for _, y := range histYears {
			s.Historical = append(s.Historical, ReasonCount{Year: y, Count: float64(hist[y][reason])})
		}
		for _, y := range years {
			var values []float64
			for _, c := range perModel {
				if byReason, ok := c[y]; ok {
					values = append(values, float64(byReason[reason]))
				}
			}
			s.Forecast = append(s.Forecast, band(y, values))
		}
		out = append(out, s)
	}
	return out
}

// stitchReasons adds the historical count of the shared year onto the
// ensemble band, then sets the historical count to the combined mean.
// Counts are frequencies, so the two sources are summed, not blended.
func stitchReasons(series []ReasonSeries, year int) {
	for i := range series {
		s := &series[i]
		hi := sort.Search(len(s.Historical), func(j int) bool { return s.Historical[j].Year >= year })
		fi := yearIndex(s.Forecast, year)
		if hi == len(s.Historical) || s.Historical[hi].Year != year {
			continue
		}
		if fi == len(s.Forecast) || s.Forecast[fi].Year != year {
			continue
		}
		h := s.Historical[hi].Count
		s.Forecast[fi].Mean += h
		s.Forecast[fi].Min += h
		s.Forecast[fi].Max += h
		s.Historical[hi].Count = s.Forecast[fi].Mean
	}
}
