package preference

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Coefficient values on the five-point Hate..Love scale.
const (
	Hate    = -2
	Dislike = -1
	Neutral = 0
	Like    = 1
	Love    = 2
)

const timeLayout = "15:04:05"

var validCoefficients = []int{Hate, Dislike, Neutral, Like, Love}

var (
	ErrInvalidCoefficient = errors.New("invalid coefficient")
	ErrInvalidTimeWindow  = errors.New("invalid time window")
	ErrInvalidThreshold   = errors.New("invalid threshold")
)

// CoefficientError names the parameter that was assigned an out-of-range coefficient.
type CoefficientError struct {
	Param string
	Value int
}

func (e *CoefficientError) Error() string {
	return fmt.Sprintf("%s must be one of %v, got %d", e.Param, validCoefficients, e.Value)
}

func (e *CoefficientError) Unwrap() error { return ErrInvalidCoefficient }

// ValidCoefficient reports whether c is on the five-point scale.
func ValidCoefficient(c int) bool {
	return c >= Hate && c <= Love
}

func checkCoefficient(param string, value int) error {
	if !ValidCoefficient(value) {
		return &CoefficientError{Param: param, Value: value}
	}
	return nil
}

func checkThreshold(param string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s must be a finite temperature, got %v", ErrInvalidThreshold, param, value)
	}
	return nil
}

// Profile holds a user's climate preferences. Temperatures are °F.
// Fields are only changed through the setters, which validate before
// assigning anything, so a failed call leaves the profile untouched.
type Profile struct {
	minTime       string
	maxTime       string
	minOffset     time.Duration
	maxOffset     time.Duration
	scalingFactor float64

	idealTempMin float64
	idealTempMax float64
	sunnyDayCoef int

	overcastDryCoef int

	tooColdStillMax  float64
	tooColdStillCoef int
	tooColdWindyMax  float64
	tooColdWindyCoef int

	humidDayMax  float64
	humidDayCoef int

	lightRainCoef int
	heavyRainCoef int
	snowCoef      int

	dryHeatDayMin  float64
	dryHeatDayCoef int
}

// New returns a profile populated with the default preferences.
func New() *Profile {
	p := &Profile{
		idealTempMin:     60,
		idealTempMax:     90,
		sunnyDayCoef:     Love,
		overcastDryCoef:  Like,
		tooColdStillMax:  30,
		tooColdStillCoef: Dislike,
		tooColdWindyMax:  35,
		tooColdWindyCoef: Hate,
		humidDayMax:      80,
		humidDayCoef:     Hate,
		lightRainCoef:    Like,
		heavyRainCoef:    Dislike,
		snowCoef:         Neutral,
		dryHeatDayMin:    95,
		dryHeatDayCoef:   Dislike,
	}
	if err := p.SetTimeWindow("08:00:00", "20:00:00"); err != nil {
		panic(err)
	}
	return p
}

// SetTimeWindow sets the hours of the day that count towards a score and
// recomputes the scaling factor.
func (p *Profile) SetTimeWindow(minTime, maxTime string) error {
	minOffset, err := parseTimeOfDay(minTime)
	if err != nil {
		return fmt.Errorf("min_time: %w", err)
	}
	maxOffset, err := parseTimeOfDay(maxTime)
	if err != nil {
		return fmt.Errorf("max_time: %w", err)
	}
	if maxOffset < minOffset {
		return fmt.Errorf("%w: max_time %s is before min_time %s", ErrInvalidTimeWindow, maxTime, minTime)
	}

	p.minTime = minTime
	p.maxTime = maxTime
	p.minOffset = minOffset
	p.maxOffset = maxOffset
	p.scalingFactor = (maxOffset - minOffset).Hours() / 24
	return nil
}

func parseTimeOfDay(s string) (time.Duration, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not HH:MM:SS", ErrInvalidTimeWindow, s)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

func (p *Profile) SetTemperaturePreferences(idealMin, idealMax float64, sunnyCoef int) error {
	if err := checkThreshold("ideal_temp_min", idealMin); err != nil {
		return err
	}
	if err := checkThreshold("ideal_temp_max", idealMax); err != nil {
		return err
	}
	if err := checkCoefficient("sunny_day_coef", sunnyCoef); err != nil {
		return err
	}
	p.idealTempMin = idealMin
	p.idealTempMax = idealMax
	p.sunnyDayCoef = sunnyCoef
	return nil
}

func (p *Profile) SetColdWeatherPreferences(stillMax float64, stillCoef int, windyMax float64, windyCoef int) error {
	if err := checkThreshold("too_cold_still_max", stillMax); err != nil {
		return err
	}
	if err := checkThreshold("too_cold_windy_max", windyMax); err != nil {
		return err
	}
	if err := checkCoefficient("too_cold_still_coef", stillCoef); err != nil {
		return err
	}
	if err := checkCoefficient("too_cold_windy_coef", windyCoef); err != nil {
		return err
	}
	p.tooColdStillMax = stillMax
	p.tooColdStillCoef = stillCoef
	p.tooColdWindyMax = windyMax
	p.tooColdWindyCoef = windyCoef
	return nil
}

func (p *Profile) SetHumidityPreferences(humidMax float64, humidCoef int) error {
	if err := checkThreshold("humid_day_max", humidMax); err != nil {
		return err
	}
	if err := checkCoefficient("humid_day_coef", humidCoef); err != nil {
		return err
	}
	p.humidDayMax = humidMax
	p.humidDayCoef = humidCoef
	return nil
}

func (p *Profile) SetPrecipitationPreferences(lightRainCoef, heavyRainCoef, snowCoef int) error {
	if err := checkCoefficient("light_rain_coef", lightRainCoef); err != nil {
		return err
	}
	if err := checkCoefficient("heavy_rain_coef", heavyRainCoef); err != nil {
		return err
	}
	if err := checkCoefficient("snow_coef", snowCoef); err != nil {
		return err
	}
	p.lightRainCoef = lightRainCoef
	p.heavyRainCoef = heavyRainCoef
	p.snowCoef = snowCoef
	return nil
}

func (p *Profile) SetOvercastPreference(coef int) error {
	if err := checkCoefficient("overcast_dry_coef", coef); err != nil {
		return err
	}
	p.overcastDryCoef = coef
	return nil
}

func (p *Profile) SetDryHeatPreferences(dryHeatMin float64, dryHeatCoef int) error {
	if err := checkThreshold("dry_heat_day_min", dryHeatMin); err != nil {
		return err
	}
	if err := checkCoefficient("dry_heat_day_coef", dryHeatCoef); err != nil {
		return err
	}
	p.dryHeatDayMin = dryHeatMin
	p.dryHeatDayCoef = dryHeatCoef
	return nil
}

// Clone returns an independent copy, so a caller can keep tuning one
// profile while another is being scored.
func (p *Profile) Clone() *Profile {
	c := *p
	return &c
}

func (p *Profile) MinTime() string        { return p.minTime }
func (p *Profile) MaxTime() string        { return p.maxTime }
func (p *Profile) ScalingFactor() float64 { return p.scalingFactor }

// InWindow reports whether a time of day (offset from local midnight) falls
// inside [min_time, max_time].
func (p *Profile) InWindow(offset time.Duration) bool {
	return offset >= p.minOffset && offset <= p.maxOffset
}

func (p *Profile) IdealTempMin() float64 { return p.idealTempMin }
func (p *Profile) IdealTempMax() float64 { return p.idealTempMax }
func (p *Profile) SunnyDayCoef() int     { return p.sunnyDayCoef }
func (p *Profile) OvercastDryCoef() int  { return p.overcastDryCoef }

func (p *Profile) TooColdStillMax() float64 { return p.tooColdStillMax }
func (p *Profile) TooColdStillCoef() int    { return p.tooColdStillCoef }
func (p *Profile) TooColdWindyMax() float64 { return p.tooColdWindyMax }
func (p *Profile) TooColdWindyCoef() int    { return p.tooColdWindyCoef }

func (p *Profile) HumidDayMax() float64 { return p.humidDayMax }
func (p *Profile) HumidDayCoef() int    { return p.humidDayCoef }

func (p *Profile) LightRainCoef() int { return p.lightRainCoef }
func (p *Profile) HeavyRainCoef() int { return p.heavyRainCoef }
func (p *Profile) SnowCoef() int      { return p.snowCoef }

func (p *Profile) DryHeatDayMin() float64 { return p.dryHeatDayMin }
func (p *Profile) DryHeatDayCoef() int    { return p.dryHeatDayCoef }
