package summary

import (
	"math"

	"github.com/lox/climatematch/internal/models"
)

// Band is a PM2.5 severity range in µg/m³, inclusive of Min and exclusive
// of Max.
type Band struct {
	Name string
	Min  float64
	Max  float64
}

var Bands = []Band{
	{"Healthy", 0, 12},
	{"Moderate", 12, 35.5},
	{"Unhealthy for Sensitive Groups", 35.5, 55.5},
	{"Unhealthy", 55.5, 150.5},
	{"Hazardous", 150.5, math.Inf(1)},
}

// BandFor returns the band a concentration falls in. Negative values are
// not a concentration and return false.
func BandFor(pm25 float64) (Band, bool) {
	for _, b := range Bands {
		if pm25 >= b.Min && pm25 < b.Max {
			return b, true
		}
	}
	return Band{}, false
}

type BandPercent struct {
	Band    string  `json:"band"`
	Percent float64 `json:"percent"`
}

// AirQualityYear is the band breakdown of one year's valid hourly samples.
type AirQualityYear struct {
	Year    int           `json:"year"`
	Samples int           `json:"samples"`
	Bands   []BandPercent `json:"bands"`
}

// AirQualityBands bins hourly PM2.5 samples per year. Missing and
// out-of-range samples are excluded from the denominator.
func AirQualityBands(samples []models.AirQualitySample) []AirQualityYear {
	counts := make(map[int]map[string]int)
	totals := make(map[int]int)
	for _, s := range samples {
		if !s.PM25.Valid {
			continue
		}
		b, ok := BandFor(s.PM25.Float64)
		if !ok {
			continue
		}
		year := s.Time.Year()
		if counts[year] == nil {
			counts[year] = make(map[string]int)
		}
		counts[year][b.Name]++
		totals[year]++
	}

	out := make([]AirQualityYear, 0, len(totals))
	for _, year := range sortedKeys(totals) {
		y := AirQualityYear{Year: year, Samples: totals[year]}
		for _, b := range Bands {
			y.Bands = append(y.Bands, BandPercent{
				Band:    b.Name,
				Percent: float64(counts[year][b.Name]) / float64(totals[year]) * 100,
			})
		}
		out = append(out, y)
	}
	return out
}
