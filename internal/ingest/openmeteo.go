package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lox/climatematch/internal/httputil"
	"github.com/lox/climatematch/internal/metrics"
	"github.com/lox/climatematch/internal/models"
)

const Source = "openmeteo"

const (
	EndpointGeocoding  = "geocoding"
	EndpointArchive    = "archive"
	EndpointAirQuality = "air-quality"
	EndpointClimate    = "climate"
)

var (
	HourlyVariables     = []string{"temperature_2m", "dew_point_2m", "rain", "snowfall", "cloud_cover", "wind_speed_10m"}
	DailyVariables      = []string{"temperature_2m_max", "wind_speed_10m_mean", "dew_point_2m_min", "rain_sum", "cloud_cover_mean", "snowfall_sum"}
	AirQualityVariables = []string{"pm2_5"}
)

// Endpoints holds the base URL of each Open-Meteo API.
type Endpoints struct {
	Geocoding  string
	Archive    string
	AirQuality string
	Climate    string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Geocoding:  "https://geocoding-api.open-meteo.com/v1/search",
		Archive:    "https://archive-api.open-meteo.com/v1/archive",
		AirQuality: "https://air-quality-api.open-meteo.com/v1/air-quality",
		Climate:    "https://climate-api.open-meteo.com/v1/climate",
	}
}

func (e Endpoints) url(endpoint string) (string, error) {
	switch endpoint {
	case EndpointGeocoding:
		return e.Geocoding, nil
	case EndpointArchive:
		return e.Archive, nil
	case EndpointAirQuality:
		return e.AirQuality, nil
	case EndpointClimate:
		return e.Climate, nil
	}
	return "", fmt.Errorf("unknown endpoint %q", endpoint)
}

// FetchResult describes one API call for the ingest run audit.
type FetchResult struct {
	HTTPStatus   int
	ResponseSize int
	RecordCount  int
	Skipped      int
	ParseErrors  int
	ParseError   string
	Cached       bool
	Error        error
}

const maxParseErrorMessages = 5

func (r *FetchResult) addParseError(msg string) {
	r.ParseErrors++
	if r.ParseErrors > maxParseErrorMessages {
		return
	}
	if r.ParseError != "" {
		r.ParseError += "; "
	}
	r.ParseError += msg
}

// Request is one data fetch for a location.
type Request struct {
	Endpoint string
	Location models.Location
	Model    string
	Params   url.Values
}

// Key names the request for caching and audit: the endpoint, plus the model
// for climate requests.
func (r Request) Key() string {
	if r.Model != "" {
		return r.Endpoint + "/" + r.Model
	}
	return r.Endpoint
}

const dateLayout = "2006-01-02"

func baseParams(loc models.Location, start, end time.Time) url.Values {
	tz := loc.Timezone
	if tz == "" {
		tz = "GMT"
	}
	return url.Values{
		"latitude":   {strconv.FormatFloat(loc.Latitude, 'f', 4, 64)},
		"longitude":  {strconv.FormatFloat(loc.Longitude, 'f', 4, 64)},
		"start_date": {start.Format(dateLayout)},
		"end_date":   {end.Format(dateLayout)},
		"timezone":   {tz},
		"timeformat": {"unixtime"},
	}
}

// HistoricalRequest asks the archive API for hourly weather between two dates.
func HistoricalRequest(loc models.Location, start, end time.Time) Request {
	params := baseParams(loc, start, end)
	params.Set("hourly", strings.Join(HourlyVariables, ","))
	return Request{Endpoint: EndpointArchive, Location: loc, Params: params}
}

// AirQualityRequest asks for hourly PM2.5 between two dates.
func AirQualityRequest(loc models.Location, start, end time.Time) Request {
	params := baseParams(loc, start, end)
	params.Set("hourly", strings.Join(AirQualityVariables, ","))
	return Request{Endpoint: EndpointAirQuality, Location: loc, Params: params}
}

// ClimateHorizonEnd is the last day the climate API serves projections for.
var ClimateHorizonEnd = time.Date(2050, 12, 31, 0, 0, 0, 0, time.UTC)

// ClimateRequest asks the climate API for one model's daily projection. An
// end date past ClimateHorizonEnd is clamped to it.
func ClimateRequest(loc models.Location, model string, start, end time.Time) Request {
	if end.Format(dateLayout) > ClimateHorizonEnd.Format(dateLayout) {
		end = ClimateHorizonEnd
	}
	params := baseParams(loc, start, end)
	params.Set("daily", strings.Join(DailyVariables, ","))
	params.Set("models", model)
	return Request{Endpoint: EndpointClimate, Location: loc, Model: model, Params: params}
}

// OpenMeteo fetches from the Open-Meteo APIs.
type OpenMeteo struct {
	client     *http.Client
	endpoints  Endpoints
	newBackOff func() backoff.BackOff
}

func NewOpenMeteo(endpoints Endpoints) *OpenMeteo {
	return &OpenMeteo{
		client:    httputil.NewClient(),
		endpoints: endpoints,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 2 * time.Minute
			return bo
		},
	}
}

type apiError struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

func errorReason(body []byte) string {
	var e apiError
	if json.Unmarshal(body, &e) == nil && e.Reason != "" {
		return e.Reason
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Fetch performs a request and returns the raw body. Rate limiting and
// server errors are retried with exponential backoff.
func (o *OpenMeteo) Fetch(ctx context.Context, req Request) ([]byte, *FetchResult, error) {
	result := &FetchResult{}

	base, err := o.endpoints.url(req.Endpoint)
	if err != nil {
		result.Error = err
		return nil, result, err
	}
	u := base + "?" + req.Params.Encode()

	var body []byte
	operation := func() error {
		start := time.Now()
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		resp, err := o.client.Do(httpReq)
		metrics.OpenMeteoLatency.WithLabelValues(req.Endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.OpenMeteoCallsTotal.WithLabelValues(req.Endpoint, "error").Inc()
			return backoff.Permanent(fmt.Errorf("fetch %s: %w", req.Endpoint, err))
		}
		defer resp.Body.Close()

		result.HTTPStatus = resp.StatusCode
		metrics.OpenMeteoCallsTotal.WithLabelValues(req.Endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		result.ResponseSize = len(b)

		if retryable(resp.StatusCode) {
			return fmt.Errorf("fetch %s: status %d: %s", req.Endpoint, resp.StatusCode, errorReason(b))
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", req.Endpoint, resp.StatusCode, errorReason(b)))
		}
		body = b
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(o.newBackOff(), ctx)); err != nil {
		result.Error = err
		return nil, result, err
	}
	return body, result, nil
}

// ErrLocationNotFound is returned when geocoding has no match for a city.
var ErrLocationNotFound = errors.New("location not found")

type LocationNotFoundError struct {
	City models.City
}

func (e *LocationNotFoundError) Error() string {
	return fmt.Sprintf("No results found for %s, %s", e.City.Name, e.City.State)
}

func (e *LocationNotFoundError) Unwrap() error { return ErrLocationNotFound }

// Geocode resolves a US city and state to coordinates and timezone.
func (o *OpenMeteo) Geocode(ctx context.Context, city models.City) (*models.Location, error) {
	req := Request{
		Endpoint: EndpointGeocoding,
		Params: url.Values{
			"name":   {city.Name},
			"count":  {"100"},
			"format": {"json"},
		},
	}
	body, _, err := o.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("geocode %s: %w", city, err)
	}
	return ParseGeocoding(body, city)
}
