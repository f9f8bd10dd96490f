package preference

import (
	"encoding/json"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Settings is the flat, serializable form of a Profile. It is what the API
// accepts and the YAML request file contains.
type Settings struct {
	MinTime          string  `json:"min_time" yaml:"min_time"`
	MaxTime          string  `json:"max_time" yaml:"max_time"`
	IdealTempMin     float64 `json:"ideal_temp_min" yaml:"ideal_temp_min"`
	IdealTempMax     float64 `json:"ideal_temp_max" yaml:"ideal_temp_max"`
	SunnyDayCoef     int     `json:"sunny_day_coef" yaml:"sunny_day_coef"`
	OvercastDryCoef  int     `json:"overcast_dry_coef" yaml:"overcast_dry_coef"`
	TooColdStillMax  float64 `json:"too_cold_still_max" yaml:"too_cold_still_max"`
	TooColdStillCoef int     `json:"too_cold_still_coef" yaml:"too_cold_still_coef"`
	TooColdWindyMax  float64 `json:"too_cold_windy_max" yaml:"too_cold_windy_max"`
	TooColdWindyCoef int     `json:"too_cold_windy_coef" yaml:"too_cold_windy_coef"`
	HumidDayMax      float64 `json:"humid_day_max" yaml:"humid_day_max"`
	HumidDayCoef     int     `json:"humid_day_coef" yaml:"humid_day_coef"`
	LightRainCoef    int     `json:"light_rain_coef" yaml:"light_rain_coef"`
	HeavyRainCoef    int     `json:"heavy_rain_coef" yaml:"heavy_rain_coef"`
	SnowCoef         int     `json:"snow_coef" yaml:"snow_coef"`
	DryHeatDayMin    float64 `json:"dry_heat_day_min" yaml:"dry_heat_day_min"`
	DryHeatDayCoef   int     `json:"dry_heat_day_coef" yaml:"dry_heat_day_coef"`
}

// DefaultSettings returns the settings of a freshly constructed profile.
func DefaultSettings() Settings {
	return New().Settings()
}

// Settings returns the flat form of the profile.
func (p *Profile) Settings() Settings {
	return Settings{
		MinTime:          p.minTime,
		MaxTime:          p.maxTime,
		IdealTempMin:     p.idealTempMin,
		IdealTempMax:     p.idealTempMax,
		SunnyDayCoef:     p.sunnyDayCoef,
		OvercastDryCoef:  p.overcastDryCoef,
		TooColdStillMax:  p.tooColdStillMax,
		TooColdStillCoef: p.tooColdStillCoef,
		TooColdWindyMax:  p.tooColdWindyMax,
		TooColdWindyCoef: p.tooColdWindyCoef,
		HumidDayMax:      p.humidDayMax,
		HumidDayCoef:     p.humidDayCoef,
		LightRainCoef:    p.lightRainCoef,
		HeavyRainCoef:    p.heavyRainCoef,
		SnowCoef:         p.snowCoef,
		DryHeatDayMin:    p.dryHeatDayMin,
		DryHeatDayCoef:   p.dryHeatDayCoef,
	}
}

// Apply assigns every field of s through the validating setters. Fields are
// applied to a copy first so an invalid value leaves p unchanged.
func (p *Profile) Apply(s Settings) error {
	next := p.Clone()
	if err := next.SetTimeWindow(s.MinTime, s.MaxTime); err != nil {
		return err
	}
	if err := next.SetTemperaturePreferences(s.IdealTempMin, s.IdealTempMax, s.SunnyDayCoef); err != nil {
		return err
	}
	if err := next.SetOvercastPreference(s.OvercastDryCoef); err != nil {
		return err
	}
	if err := next.SetColdWeatherPreferences(s.TooColdStillMax, s.TooColdStillCoef, s.TooColdWindyMax, s.TooColdWindyCoef); err != nil {
		return err
	}
	if err := next.SetHumidityPreferences(s.HumidDayMax, s.HumidDayCoef); err != nil {
		return err
	}
	if err := next.SetPrecipitationPreferences(s.LightRainCoef, s.HeavyRainCoef, s.SnowCoef); err != nil {
		return err
	}
	if err := next.SetDryHeatPreferences(s.DryHeatDayMin, s.DryHeatDayCoef); err != nil {
		return err
	}
	*p = *next
	return nil
}

// FromSettings builds a validated profile from its flat form.
func FromSettings(s Settings) (*Profile, error) {
	p := New()
	if err := p.Apply(s); err != nil {
		return nil, err
	}
	return p, nil
}

// Parameter is one named entry of the flat parameter listing.
type Parameter struct {
	Name  string
	Value any
}

// Parameters returns every field, including the derived scaling factor, in
// a fixed order.
func (p *Profile) Parameters() []Parameter {
	return []Parameter{
		{"min_time", p.minTime},
		{"max_time", p.maxTime},
		{"scaling_factor", p.scalingFactor},
		{"ideal_temp_min", p.idealTempMin},
		{"ideal_temp_max", p.idealTempMax},
		{"sunny_day_coef", p.sunnyDayCoef},
		{"overcast_dry_coef", p.overcastDryCoef},
		{"too_cold_still_max", p.tooColdStillMax},
		{"too_cold_still_coef", p.tooColdStillCoef},
		{"too_cold_windy_max", p.tooColdWindyMax},
		{"too_cold_windy_coef", p.tooColdWindyCoef},
		{"humid_day_max", p.humidDayMax},
		{"humid_day_coef", p.humidDayCoef},
		{"light_rain_coef", p.lightRainCoef},
		{"heavy_rain_coef", p.heavyRainCoef},
		{"snow_coef", p.snowCoef},
		{"dry_heat_day_min", p.dryHeatDayMin},
		{"dry_heat_day_coef", p.dryHeatDayCoef},
	}
}

// ParameterMap returns Parameters keyed by name.
func (p *Profile) ParameterMap() map[string]any {
	params := p.Parameters()
	m := make(map[string]any, len(params))
	for _, param := range params {
		m[param.Name] = param.Value
	}
	return m
}

// Fingerprint identifies the profile for cache keys. It hashes the canonical
// JSON encoding of the parameter map (object keys sorted), so it depends only
// on the values and never on the order fields were set or listed in.
func (p *Profile) Fingerprint() string {
	b, err := json.Marshal(p.ParameterMap())
	if err != nil {
		// Only strings, ints and finite floats are present.
		panic(fmt.Sprintf("marshal profile parameters: %v", err))
	}
	return fmt.Sprintf("%016x", xxh3.Hash(b))
}
