package scoring

import (
	"fmt"
	"time"

	"github.com/lox/climatematch/internal/preference"
)

type Reason string

const (
	ReasonNeutral       Reason = "neutral"
	ReasonHumid         Reason = "too hot, humid"
	ReasonDryHeat       Reason = "too hot, dry"
	ReasonColdWindy     Reason = "too cold, windy"
	ReasonColdStill     Reason = "too cold, still"
	ReasonIdealSunny    Reason = "ideal sunny"
	ReasonIdealOvercast Reason = "ideal overcast"
	ReasonLightRain     Reason = "light rain"
	ReasonHeavyRain     Reason = "heavy rain"
	ReasonSnow          Reason = "snow"
)

// Reasons lists every label in display order.
var Reasons = []Reason{
	ReasonNeutral,
	ReasonHumid,
	ReasonDryHeat,
	ReasonColdWindy,
	ReasonColdStill,
	ReasonIdealSunny,
	ReasonIdealOvercast,
	ReasonLightRain,
	ReasonHeavyRain,
	ReasonSnow,
}

// Score levels, one per coefficient.
var Levels = []int{0, 25, 50, 75, 100}

var levelNames = map[int]string{
	0:   "Hate",
	25:  "Dislike",
	50:  "Neutral",
	75:  "Like",
	100: "Love",
}

// LevelName returns the Hate..Love label for a score level.
func LevelName(score int) string {
	if name, ok := levelNames[score]; ok {
		return name
	}
	return fmt.Sprintf("score %d", score)
}

const (
	freshBreezeKPH      = 30.0
	overcastCloudPct    = 60.0
	lightRainMM         = 2.0
	heavyRainMM         = 10.0
	snowCM              = 1.0
	muggyDewPointF      = 60.0
	fahrenheitFreezing  = 32.0
	fahrenheitPerDegree = 9.0 / 5.0
)

// FahrenheitToCelsius converts a °F threshold to °C.
func FahrenheitToCelsius(f float64) float64 {
	return (f - fahrenheitFreezing) / fahrenheitPerDegree
}

// Shape says whether a window was built from hourly samples or from a
// provider's full-day aggregate.
type Shape int

const (
	Hourly Shape = iota
	Daily
)

func (s Shape) String() string {
	if s == Daily {
		return "daily"
	}
	return "hourly"
}

// Window is one day's weather summary for one data source. For hourly
// sources the statistics only cover samples inside the profile's time window.
type Window struct {
	Date              time.Time
	Shape             Shape
	TemperatureMaxC   float64
	DewPointMinC      float64
	WindMeanKPH       float64
	CloudCoverMeanPct float64
	RainSumMM         float64
	SnowfallSumCM     float64
}

// EffectiveRain is the rain that fell inside the scored hours. Full-day sums
// are scaled down by the fraction of the day the profile covers.
func (w Window) EffectiveRain(p *preference.Profile) float64 {
	if w.Shape == Daily {
		return p.ScalingFactor() * w.RainSumMM
	}
	return w.RainSumMM
}

// Result is the classification of one window.
type Result struct {
	Coefficient int
	Score       int
	Reason      Reason
}

// ScoreFromCoefficient maps the five-point scale onto 0..100.
func ScoreFromCoefficient(c int) int {
	return (c + 2) * 25
}

// CoefficientFromScore is the inverse of ScoreFromCoefficient.
func CoefficientFromScore(score int) (int, error) {
	if score%25 != 0 || score < 0 || score > 100 {
		return 0, fmt.Errorf("score %d is not one of %v", score, Levels)
	}
	return score/25 - 2, nil
}

// Classify scores one window against a profile. The primary rules are
// checked in a fixed order and the first match wins; precipitation then
// overrides the primary result.
func Classify(w Window, p *preference.Profile) Result {
	coef, reason := classifyPrimary(w, p)
	coef, reason = applyPrecipitation(w, p, coef, reason)
	return Result{
		Coefficient: coef,
		Score:       ScoreFromCoefficient(coef),
		Reason:      reason,
	}
}

func classifyPrimary(w Window, p *preference.Profile) (int, Reason) {
	tmax := w.TemperatureMaxC
	dew := w.DewPointMinC
	muggy := FahrenheitToCelsius(muggyDewPointF)
	rain := w.EffectiveRain(p)

	switch {
	case tmax > FahrenheitToCelsius(p.HumidDayMax()) && dew > muggy:
		return p.HumidDayCoef(), ReasonHumid
	case tmax > FahrenheitToCelsius(p.DryHeatDayMin()) && dew <= muggy:
		return p.DryHeatDayCoef(), ReasonDryHeat
	case tmax < FahrenheitToCelsius(p.TooColdWindyMax()) && w.WindMeanKPH > freshBreezeKPH:
		return p.TooColdWindyCoef(), ReasonColdWindy
	case tmax < FahrenheitToCelsius(p.TooColdStillMax()) && w.WindMeanKPH < freshBreezeKPH:
		return p.TooColdStillCoef(), ReasonColdStill
	case tmax > FahrenheitToCelsius(p.IdealTempMin()) && tmax < FahrenheitToCelsius(p.IdealTempMax()):
		if rain < lightRainMM {
			if w.CloudCoverMeanPct < overcastCloudPct {
				return p.SunnyDayCoef(), ReasonIdealSunny
			}
			return p.OvercastDryCoef(), ReasonIdealOvercast
		}
	}
	return 0, ReasonNeutral
}

func applyPrecipitation(w Window, p *preference.Profile, coef int, reason Reason) (int, Reason) {
	rain := w.EffectiveRain(p)
	switch {
	case rain >= lightRainMM && rain < heavyRainMM:
		return override(coef, reason, p.LightRainCoef(), ReasonLightRain)
	case rain >= heavyRainMM:
		return override(coef, reason, p.HeavyRainCoef(), ReasonHeavyRain)
	case w.SnowfallSumCM > snowCM:
		return override(coef, reason, p.SnowCoef(), ReasonSnow)
	}
	return coef, reason
}

// override takes the worse of the primary and precipitation coefficients. A
// neutral day simply becomes the precipitation day. The label moves to the
// precipitation reason when its coefficient was chosen, including ties.
func override(coef int, reason Reason, precipCoef int, precipReason Reason) (int, Reason) {
	if reason == ReasonNeutral {
		return precipCoef, precipReason
	}
	next := min(coef, precipCoef)
	if next == precipCoef || next < coef {
		return next, precipReason
	}
	return next, reason
}
