package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lox/climatematch/internal/models"
	"github.com/lox/climatematch/internal/pipeline"
	"github.com/lox/climatematch/internal/preference"
)

const dateLayout = "2006-01-02"

// Request is a scoring request file: the cities to score, the preference
// profile to score them against, and the data spans to fetch.
type Request struct {
	Cities          []models.City       `yaml:"cities"`
	Models          []string            `yaml:"models"`
	HistoryYears    int                 `yaml:"history_years"`
	ForecastYears   int                 `yaml:"forecast_years"`
	AirQualityStart string              `yaml:"air_quality_start"`
	MaxCities       int                 `yaml:"max_cities"`
	Preferences     preference.Settings `yaml:"preferences"`
}

// Default returns a request with no cities and the default pipeline spans
// and preferences.
func Default() Request {
	def := pipeline.DefaultConfig()
	return Request{
		Models:          append([]string(nil), def.Models...),
		HistoryYears:    def.HistoryYears,
		ForecastYears:   def.ForecastYears,
		AirQualityStart: def.AirQualityStart.Format(dateLayout),
		MaxCities:       def.MaxCities,
		Preferences:     preference.DefaultSettings(),
	}
}

// Load reads a YAML request file. Fields left out keep their defaults,
// including individual preference fields.
func Load(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Request, error) {
	req := Default()
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate performs sanity checks on the request.
func (r Request) Validate() error {
	if len(r.Cities) == 0 {
		return errors.New("cities cannot be empty")
	}
	for i, c := range r.Cities {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.State) == "" {
			return fmt.Errorf("cities[%d]: city and state are required", i)
		}
	}
	if r.HistoryYears <= 0 {
		return fmt.Errorf("history_years must be > 0")
	}
	if r.ForecastYears <= 0 {
		return fmt.Errorf("forecast_years must be > 0")
	}
	if r.MaxCities <= 0 {
		return fmt.Errorf("max_cities must be > 0")
	}
	if _, err := time.Parse(dateLayout, r.AirQualityStart); err != nil {
		return fmt.Errorf("air_quality_start: %w", err)
	}
	if _, err := r.Profile(); err != nil {
		return fmt.Errorf("preferences: %w", err)
	}
	return nil
}

// Profile builds the validated preference profile.
func (r Request) Profile() (*preference.Profile, error) {
	return preference.FromSettings(r.Preferences)
}

// PipelineConfig overlays the request's spans onto base.
func (r Request) PipelineConfig(base pipeline.Config) pipeline.Config {
	cfg := base
	if len(r.Models) > 0 {
		cfg.Models = r.Models
	}
	if r.HistoryYears > 0 {
		cfg.HistoryYears = r.HistoryYears
	}
	if r.ForecastYears > 0 {
		cfg.ForecastYears = r.ForecastYears
	}
	if t, err := time.Parse(dateLayout, r.AirQualityStart); err == nil {
		cfg.AirQualityStart = t
	}
	if r.MaxCities > 0 {
		cfg.MaxCities = r.MaxCities
	}
	return cfg
}
