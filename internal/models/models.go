package models

import (
	"database/sql"
	"fmt"
	"time"
)

// City is a requested place, before geocoding.
type City struct {
	Name  string `json:"city" yaml:"city"`
	State string `json:"state" yaml:"state"`
}

func (c City) String() string {
	return fmt.Sprintf("%s, %s", c.Name, c.State)
}

// Location is a geocoded city.
type Location struct {
	City       City          `json:"city"`
	Latitude   float64       `json:"latitude"`
	Longitude  float64       `json:"longitude"`
	Timezone   string        `json:"timezone"`
	Population sql.NullInt64 `json:"-"`
	ResolvedAt time.Time     `json:"resolved_at"`
}

// ID is the key used for cached payloads and scores.
func (l Location) ID() string {
	return fmt.Sprintf("%.4f,%.4f", l.Latitude, l.Longitude)
}

// TimeLocation loads the location's IANA timezone. A location without one
// is requested in GMT, so it maps to UTC.
func (l Location) TimeLocation() (*time.Location, error) {
	if l.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q for %s: %w", l.Timezone, l.City, err)
	}
	return loc, nil
}

// HourlyObservation is one hour of historical weather in local time.
// Units: °C, °C, mm, cm, %, km/h.
type HourlyObservation struct {
	Time          time.Time
	TemperatureC  float64
	DewPointC     float64
	RainMM        float64
	SnowfallCM    float64
	CloudCoverPct float64
	WindSpeedKPH  float64
}

// DailyObservation is one pre-aggregated day from a forecast model.
type DailyObservation struct {
	Date              time.Time
	TemperatureMaxC   float64
	DewPointMinC      float64
	WindSpeedMeanKPH  float64
	CloudCoverMeanPct float64
	RainSumMM         float64
	SnowfallSumCM     float64
}

// AirQualitySample is one hour of PM2.5 concentration in µg/m³. Missing
// samples are kept with Valid=false.
type AirQualitySample struct {
	Time time.Time
	PM25 sql.NullFloat64
}
