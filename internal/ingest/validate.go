package ingest

import (
	"encoding/json"

	"github.com/lox/climatematch/internal/models"
)

const (
	FlagTempOutOfRange     = "temp_out_of_range"
	FlagDewPointOutOfRange = "dew_point_out_of_range"
	FlagCloudCoverInvalid  = "cloud_cover_invalid"
	FlagWindSpeedUnlikely  = "wind_speed_unlikely"
	FlagPrecipNegative     = "precip_negative"
	FlagSnowNegative       = "snow_negative"
	FlagPM25Negative       = "pm25_negative"
)

func tempOutOfRange(c float64) bool {
	return c < -90 || c > 60
}

func ValidateHourly(obs models.HourlyObservation) []string {
	return validate(obs.TemperatureC, obs.DewPointC, obs.CloudCoverPct, obs.WindSpeedKPH, obs.RainMM, obs.SnowfallCM)
}

func ValidateDaily(obs models.DailyObservation) []string {
	return validate(obs.TemperatureMaxC, obs.DewPointMinC, obs.CloudCoverMeanPct, obs.WindSpeedMeanKPH, obs.RainSumMM, obs.SnowfallSumCM)
}

func validate(temp, dew, cloud, wind, rain, snow float64) []string {
	var flags []string

	if tempOutOfRange(temp) {
		flags = append(flags, FlagTempOutOfRange)
	}
	if tempOutOfRange(dew) {
		flags = append(flags, FlagDewPointOutOfRange)
	}
	if cloud < 0 || cloud > 100 {
		flags = append(flags, FlagCloudCoverInvalid)
	}
	if wind < 0 || wind > 250 {
		flags = append(flags, FlagWindSpeedUnlikely)
	}
	if rain < 0 {
		flags = append(flags, FlagPrecipNegative)
	}
	if snow < 0 {
		flags = append(flags, FlagSnowNegative)
	}

	return flags
}

func QualityFlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	b, _ := json.Marshal(flags)
	return string(b)
}
