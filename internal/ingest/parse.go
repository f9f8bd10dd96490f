package ingest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/climatematch/internal/models"
)

type hourlyResponse struct {
	Timezone string `json:"timezone"`
	Hourly   struct {
		Time        []int64    `json:"time"`
		Temperature []*float64 `json:"temperature_2m"`
		DewPoint    []*float64 `json:"dew_point_2m"`
		Rain        []*float64 `json:"rain"`
		Snowfall    []*float64 `json:"snowfall"`
		CloudCover  []*float64 `json:"cloud_cover"`
		WindSpeed   []*float64 `json:"wind_speed_10m"`
		PM25        []*float64 `json:"pm2_5"`
	} `json:"hourly"`
}

type dailyResponse struct {
	Timezone string                     `json:"timezone"`
	Daily    map[string]json.RawMessage `json:"daily"`
}

type geocodingResponse struct {
	Results []struct {
		Name        string  `json:"name"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
		Timezone    string  `json:"timezone"`
		Population  *int64  `json:"population"`
		CountryCode string  `json:"country_code"`
		Admin1      string  `json:"admin1"`
	} `json:"results"`
}

func at(col []*float64, i int) (float64, bool) {
	if i >= len(col) || col[i] == nil {
		return 0, false
	}
	return *col[i], true
}

// ParseHourly decodes an archive response. Times are converted to tz. Hours
// with any missing variable are skipped; hours failing validation are
// dropped and recorded as parse errors.
func ParseHourly(body []byte, tz *time.Location, result *FetchResult) ([]models.HourlyObservation, error) {
	if result == nil {
		result = &FetchResult{}
	}
	var data hourlyResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unmarshal hourly: %w", err)
	}

	h := data.Hourly
	rows := make([]models.HourlyObservation, 0, len(h.Time))
	for i, ts := range h.Time {
		temp, ok1 := at(h.Temperature, i)
		dew, ok2 := at(h.DewPoint, i)
		rain, ok3 := at(h.Rain, i)
		snow, ok4 := at(h.Snowfall, i)
		cloud, ok5 := at(h.CloudCover, i)
		wind, ok6 := at(h.WindSpeed, i)
		if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
			result.Skipped++
			continue
		}

		obs := models.HourlyObservation{
			Time:          time.Unix(ts, 0).In(tz),
			TemperatureC:  temp,
			DewPointC:     dew,
			RainMM:        rain,
			SnowfallCM:    snow,
			CloudCoverPct: cloud,
			WindSpeedKPH:  wind,
		}
		if flags := ValidateHourly(obs); len(flags) > 0 {
			result.addParseError(fmt.Sprintf("hourly[%d]: %s", i, QualityFlagsToJSON(flags)))
			continue
		}
		rows = append(rows, obs)
	}
	result.RecordCount = len(rows)
	return rows, nil
}

// ParseAirQuality decodes an air-quality response. Missing samples are kept
// as invalid values so they can be excluded from percentages.
func ParseAirQuality(body []byte, tz *time.Location, result *FetchResult) ([]models.AirQualitySample, error) {
	if result == nil {
		result = &FetchResult{}
	}
	var data hourlyResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unmarshal air quality: %w", err)
	}

	h := data.Hourly
	samples := make([]models.AirQualitySample, 0, len(h.Time))
	for i, ts := range h.Time {
		s := models.AirQualitySample{Time: time.Unix(ts, 0).In(tz)}
		if v, ok := at(h.PM25, i); ok {
			if v < 0 {
				result.addParseError(fmt.Sprintf("pm2_5[%d]: %s", i, QualityFlagsToJSON([]string{FlagPM25Negative})))
			} else {
				s.PM25 = sql.NullFloat64{Float64: v, Valid: true}
			}
		}
		samples = append(samples, s)
	}
	result.RecordCount = len(samples)
	return samples, nil
}

// dailyColumn finds a daily variable by name. The climate API suffixes
// variables with the model name when several models are requested.
func dailyColumn(daily map[string]json.RawMessage, name, model string) ([]*float64, error) {
	raw, ok := daily[name]
	if !ok && model != "" {
		raw, ok = daily[name+"_"+model]
	}
	if !ok {
		return nil, fmt.Errorf("missing daily variable %s", name)
	}
	var col []*float64
	if err := json.Unmarshal(raw, &col); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return col, nil
}

// ParseDaily decodes one model's climate response. Days with a missing
// variable are skipped.
func ParseDaily(body []byte, model string, tz *time.Location, result *FetchResult) ([]models.DailyObservation, error) {
	if result == nil {
		result = &FetchResult{}
	}
	var data dailyResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unmarshal daily: %w", err)
	}

	var times []int64
	raw, ok := data.Daily["time"]
	if !ok {
		return nil, fmt.Errorf("daily response has no time column")
	}
	if err := json.Unmarshal(raw, &times); err != nil {
		return nil, fmt.Errorf("unmarshal time: %w", err)
	}

	cols := make(map[string][]*float64, len(DailyVariables))
	for _, name := range DailyVariables {
		col, err := dailyColumn(data.Daily, name, model)
		if err != nil {
			return nil, err
		}
		cols[name] = col
	}

	rows := make([]models.DailyObservation, 0, len(times))
	for i, ts := range times {
		tmax, ok1 := at(cols["temperature_2m_max"], i)
		wind, ok2 := at(cols["wind_speed_10m_mean"], i)
		dew, ok3 := at(cols["dew_point_2m_min"], i)
		rain, ok4 := at(cols["rain_sum"], i)
		cloud, ok5 := at(cols["cloud_cover_mean"], i)
		snow, ok6 := at(cols["snowfall_sum"], i)
		if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
			result.Skipped++
			continue
		}

		obs := models.DailyObservation{
			Date:              time.Unix(ts, 0).In(tz),
			TemperatureMaxC:   tmax,
			DewPointMinC:      dew,
			WindSpeedMeanKPH:  wind,
			CloudCoverMeanPct: cloud,
			RainSumMM:         rain,
			SnowfallSumCM:     snow,
		}
		if flags := ValidateDaily(obs); len(flags) > 0 {
			result.addParseError(fmt.Sprintf("daily[%d]: %s", i, QualityFlagsToJSON(flags)))
			continue
		}
		rows = append(rows, obs)
	}
	result.RecordCount = len(rows)
	return rows, nil
}

// ParseGeocoding picks the first US result whose state matches.
func ParseGeocoding(body []byte, city models.City) (*models.Location, error) {
	var data geocodingResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unmarshal geocoding: %w", err)
	}

	for _, r := range data.Results {
		if r.CountryCode != "US" || r.Admin1 != city.State {
			continue
		}
		loc := &models.Location{
			City:       city,
			Latitude:   r.Latitude,
			Longitude:  r.Longitude,
			Timezone:   r.Timezone,
			ResolvedAt: time.Now().UTC(),
		}
		if r.Population != nil {
			loc.Population = sql.NullInt64{Int64: *r.Population, Valid: true}
		}
		return loc, nil
	}
	return nil, &LocationNotFoundError{City: city}
}
