package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/lox/climatematch/internal/scoring"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// days builds n consecutive daily records starting at start, one per score.
func days(start time.Time, reason scoring.Reason, scores ...int) []scoring.DailyRecord {
	out := make([]scoring.DailyRecord, 0, len(scores))
	for i, s := range scores {
		d := start.AddDate(0, 0, i)
		out = append(out, scoring.DailyRecord{Date: d, Year: d.Year(), Score: s, Reason: reason})
	}
	return out
}

func repeat(score, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = score
	}
	return out
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStitch(t *testing.T) {
	hist := YearStat{Year: 2024, Mean: 60, Min: 60, Max: 60}
	fc := YearStat{Year: 2024, Mean: 80, Min: 70, Max: 90}

	got := Stitch(hist, 10, fc, 20)
	if !approx(got.Mean, 220.0/3) {
		t.Errorf("Mean = %v, want 73.33", got.Mean)
	}
	if !approx(got.Min, 20+140.0/3) {
		t.Errorf("Min = %v, want 66.67", got.Min)
	}
	if !approx(got.Max, 80) {
		t.Errorf("Max = %v, want 80", got.Max)
	}
	if got.Year != 2024 {
		t.Errorf("Year = %d, want 2024", got.Year)
	}
}

func sharedYearFixture() ([]scoring.DailyRecord, []ModelSeries) {
	var hist []scoring.DailyRecord
	hist = append(hist, days(date(2023, 6, 1), scoring.ReasonNeutral, repeat(50, 5)...)...)
	// 2024: six 50s and four 75s, mean 60 over 10 days.
	hist = append(hist, days(date(2024, 1, 1), scoring.ReasonNeutral, append(repeat(50, 6), repeat(75, 4)...)...)...)

	var a, b []scoring.DailyRecord
	// 2024 from Jan 11: model a mean 70, model b mean 90, same 20 dates.
	a = append(a, days(date(2024, 1, 11), scoring.ReasonIdealSunny, append(repeat(100, 8), repeat(50, 12)...)...)...)
	b = append(b, days(date(2024, 1, 11), scoring.ReasonIdealSunny, append(repeat(100, 12), repeat(75, 8)...)...)...)
	a = append(a, days(date(2025, 3, 1), scoring.ReasonIdealSunny, 100, 100)...)
	b = append(b, days(date(2025, 3, 1), scoring.ReasonNeutral, 50, 50)...)

	return hist, []ModelSeries{{Model: "a", Records: a}, {Model: "b", Records: b}}
}

func TestReconcileStitchesSharedYear(t *testing.T) {
	hist, models := sharedYearFixture()
	rec := Reconcile(hist, models)

	if !rec.Stitched || rec.SharedYear != 2024 {
		t.Fatalf("SharedYear = %d stitched=%v, want 2024 stitched", rec.SharedYear, rec.Stitched)
	}
	if rec.DaysHistorical != 10 || rec.DaysForecast != 20 {
		t.Errorf("days = %d/%d, want 10/20", rec.DaysHistorical, rec.DaysForecast)
	}

	if len(rec.Forecast) != 2 {
		t.Fatalf("got %d forecast years, want 2", len(rec.Forecast))
	}
	seam := rec.Forecast[0]
	if seam.Year != 2024 || !approx(seam.Mean, 220.0/3) {
		t.Errorf("forecast 2024 = %+v, want mean 73.33", seam)
	}
	if !approx(seam.Min, 20+140.0/3) || !approx(seam.Max, 80) {
		t.Errorf("forecast 2024 bounds = %v..%v, want 66.67..80", seam.Min, seam.Max)
	}

	if len(rec.Historical) != 2 {
		t.Fatalf("got %d historical years, want 2", len(rec.Historical))
	}
	if rec.Historical[0].Mean != 50 {
		t.Errorf("historical 2023 = %v, want 50 (untouched)", rec.Historical[0].Mean)
	}
	if rec.Historical[1].Mean != seam.Mean {
		t.Errorf("historical 2024 = %v, forecast 2024 = %v, want equal at the seam", rec.Historical[1].Mean, seam.Mean)
	}

	next := rec.Forecast[1]
	if next.Year != 2025 || next.Mean != 75 || next.Min != 50 || next.Max != 100 {
		t.Errorf("forecast 2025 = %+v, want 75 [50,100]", next)
	}
}

func TestReconcileWithoutSharedYear(t *testing.T) {
	tests := []struct {
		name      string
		histStart time.Time
		fcStart   time.Time
	}{
		{"gap between sources", date(2023, 1, 1), date(2025, 1, 1)},
		{"forecast starts before history ends", date(2024, 1, 1), date(2023, 6, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hist := days(tt.histStart, scoring.ReasonNeutral, 50, 50, 50)
			models := []ModelSeries{{Model: "a", Records: days(tt.fcStart, scoring.ReasonNeutral, 100, 100)}}

			rec := Reconcile(hist, models)
			if rec.Stitched || rec.SharedYear != 0 {
				t.Fatalf("stitched at %d, want no stitching", rec.SharedYear)
			}
			if rec.Historical[0].Mean != 50 || rec.Forecast[0].Mean != 100 {
				t.Errorf("series changed: hist %v forecast %v", rec.Historical[0].Mean, rec.Forecast[0].Mean)
			}
		})
	}
}

func TestReconcileIgnoresEmptyModels(t *testing.T) {
	models := []ModelSeries{
		{Model: "a", Records: days(date(2030, 1, 1), scoring.ReasonNeutral, 100)},
		{Model: "failed"},
	}
	rec := Reconcile(nil, models)
	if len(rec.Forecast) != 1 || rec.Forecast[0].Min != 100 {
		t.Errorf("Forecast = %+v, want single year with min 100", rec.Forecast)
	}
	if len(rec.Historical) != 0 || rec.Stitched {
		t.Errorf("no history should give no historical years and no stitching")
	}
}

func TestReasonCountsStitched(t *testing.T) {
	var hist []scoring.DailyRecord
	hist = append(hist, days(date(2023, 5, 1), scoring.ReasonHeavyRain, 25)...)
	hist = append(hist, days(date(2024, 1, 1), scoring.ReasonIdealSunny, 100, 100)...)
	hist = append(hist, days(date(2024, 1, 3), scoring.ReasonNeutral, 50)...)

	a := days(date(2024, 2, 1), scoring.ReasonIdealSunny, 100, 100, 100)
	a = append(a, days(date(2025, 2, 1), scoring.ReasonSnow, 50)...)
	b := days(date(2024, 2, 1), scoring.ReasonIdealSunny, 100)

	rec := Reconcile(hist, []ModelSeries{{Model: "a", Records: a}, {Model: "b", Records: b}})
	if len(rec.Reasons) != len(scoring.Reasons) {
		t.Fatalf("got %d reason series, want %d", len(rec.Reasons), len(scoring.Reasons))
	}

	byReason := make(map[scoring.Reason]ReasonSeries)
	for _, s := range rec.Reasons {
		byReason[s.Reason] = s
	}

	sunny := byReason[scoring.ReasonIdealSunny]
	// Models count 3 and 1 in 2024; history adds 2.
	if got := sunny.Forecast[0]; got.Year != 2024 || got.Mean != 4 || got.Min != 3 || got.Max != 5 {
		t.Errorf("sunny forecast 2024 = %+v, want mean 4 [3,5]", got)
	}
	if got := sunny.Historical[1]; got.Year != 2024 || got.Count != 4 {
		t.Errorf("sunny historical 2024 = %+v, want 4", got)
	}

	neutral := byReason[scoring.ReasonNeutral]
	if got := neutral.Forecast[0]; got.Mean != 1 || got.Min != 1 || got.Max != 1 {
		t.Errorf("neutral forecast 2024 = %+v, want 1", got)
	}

	snow := byReason[scoring.ReasonSnow]
	if len(snow.Historical) != 2 || snow.Historical[0].Count != 0 {
		t.Errorf("snow historical = %+v, want zero entries for 2023 and 2024", snow.Historical)
	}
	// Only model a covers 2025.
	if got := snow.Forecast[1]; got.Year != 2025 || got.Mean != 1 || got.Min != 1 {
		t.Errorf("snow forecast 2025 = %+v, want 1", got)
	}

	rain := byReason[scoring.ReasonHeavyRain]
	if rain.Historical[0].Count != 1 {
		t.Errorf("heavy rain 2023 = %v, want 1", rain.Historical[0].Count)
	}
}
