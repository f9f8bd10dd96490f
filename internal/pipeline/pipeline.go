package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/climatematch/internal/forecast"
	"github.com/lox/climatematch/internal/ingest"
	"github.com/lox/climatematch/internal/metrics"
	"github.com/lox/climatematch/internal/models"
	"github.com/lox/climatematch/internal/preference"
	"github.com/lox/climatematch/internal/scoring"
	"github.com/lox/climatematch/internal/store"
	"github.com/lox/climatematch/internal/summary"
)

// Fetcher resolves cities and retrieves raw weather payloads.
type Fetcher interface {
	Geocode(ctx context.Context, city models.City) (*models.Location, error)
	Fetch(ctx context.Context, req ingest.Request) ([]byte, *ingest.FetchResult, error)
}

var DefaultModels = []string{"EC_Earth3P_HR", "MRI_AGCM3_2_S", "NICAM16_8S"}

type Config struct {
	Models          []string
	HistoryYears    int
	ForecastYears   int
	AirQualityStart time.Time
	Workers         int
	CacheMaxAge     time.Duration // zero disables the raw payload cache
	MaxCities       int
	Now             func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Models:          DefaultModels,
		HistoryYears:    10,
		ForecastYears:   25,
		AirQualityStart: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		Workers:         3,
		CacheMaxAge:     7 * 24 * time.Hour,
		MaxCities:       3,
		Now:             time.Now,
	}
}

// CityResult is the outcome for one requested city. Err is set when the
// city failed; Status is the human-readable line either way.
type CityResult struct {
	City     models.City      `json:"city"`
	Location *models.Location `json:"location,omitempty"`
	Status   string           `json:"status"`
	Error    string           `json:"error,omitempty"`
	Err      error            `json:"-"`
	Report   *summary.Report  `json:"report,omitempty"`
}

type Runner struct {
	store   *store.Store
	fetcher Fetcher
	cfg     Config
}

func NewRunner(store *store.Store, fetcher Fetcher, cfg Config) *Runner {
	def := DefaultConfig()
	if len(cfg.Models) == 0 {
		cfg.Models = def.Models
	}
	if cfg.HistoryYears <= 0 {
		cfg.HistoryYears = def.HistoryYears
	}
	if cfg.ForecastYears <= 0 {
		cfg.ForecastYears = def.ForecastYears
	}
	if cfg.AirQualityStart.IsZero() {
		cfg.AirQualityStart = def.AirQualityStart
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxCities <= 0 {
		cfg.MaxCities = def.MaxCities
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{store: store, fetcher: fetcher, cfg: cfg}
}

// Run scores every city against profile. A failing city never affects the
// others; results are returned in request order.
func (r *Runner) Run(ctx context.Context, cities []models.City, profile *preference.Profile) []CityResult {
	if len(cities) > r.cfg.MaxCities {
		log.Printf("pipeline: %d cities requested, only the first %d will be processed", len(cities), r.cfg.MaxCities)
		cities = cities[:r.cfg.MaxCities]
	}

	fingerprint := profile.Fingerprint()
	results := make([]CityResult, len(cities))

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i, city := range cities {
		g.Go(func() error {
			results[i] = r.processCity(ctx, city, profile, fingerprint)
			return nil
		})
	}
	g.Wait()

	return results
}

func (r *Runner) processCity(ctx context.Context, city models.City, profile *preference.Profile, fingerprint string) CityResult {
	res := CityResult{City: city}

	loc, report, err := r.scoreCity(ctx, city, profile, fingerprint)
	res.Location = loc
	if err != nil {
		log.Printf("pipeline: %s: %v", city, err)
		metrics.CitiesProcessed.WithLabelValues("error").Inc()
		res.Err = err
		res.Error = err.Error()
		res.Status = fmt.Sprintf("%s: Error - %v", city, err)
		return res
	}

	metrics.CitiesProcessed.WithLabelValues("success").Inc()
	res.Report = report
	res.Status = fmt.Sprintf("%s: Data retrieved successfully", city)
	return res
}

func (r *Runner) scoreCity(ctx context.Context, city models.City, profile *preference.Profile, fingerprint string) (*models.Location, *summary.Report, error) {
	loc, err := r.resolve(ctx, city)
	if err != nil {
		return nil, nil, err
	}

	tz, err := loc.TimeLocation()
	if err != nil {
		return loc, nil, err
	}
	now := r.cfg.Now().In(tz)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, tz)

	historical, err := r.historical(ctx, *loc, tz, today, profile, fingerprint)
	if err != nil {
		return loc, nil, err
	}

	air, err := r.airQuality(ctx, *loc, tz, today)
	if err != nil {
		return loc, nil, err
	}

	series := make([]forecast.ModelSeries, 0, len(r.cfg.Models))
	for _, model := range r.cfg.Models {
		records, err := r.projection(ctx, *loc, model, tz, today, profile, fingerprint)
		if err != nil {
			return loc, nil, err
		}
		series = append(series, forecast.ModelSeries{Model: model, Records: records})
	}

	log.Printf("pipeline: %s: scored %d historical days across %d models", city, len(historical), len(series))
	return loc, summary.Summarize(historical, series, air), nil
}

// resolve returns the cached location for city, geocoding it on a miss.
func (r *Runner) resolve(ctx context.Context, city models.City) (*models.Location, error) {
	loc, err := r.store.GetLocation(city)
	if err != nil {
		log.Printf("pipeline: location lookup %s: %v", city, err)
	}
	if loc != nil {
		return loc, nil
	}

	loc, err = r.fetcher.Geocode(ctx, city)
	if err != nil {
		return nil, err
	}
	if err := r.store.UpsertLocation(*loc); err != nil {
		log.Printf("pipeline: cache location %s: %v", city, err)
	}
	return loc, nil
}

func (r *Runner) historical(ctx context.Context, loc models.Location, tz *time.Location, today time.Time, profile *preference.Profile, fingerprint string) ([]scoring.DailyRecord, error) {
	req := ingest.HistoricalRequest(loc, today.AddDate(-r.cfg.HistoryYears, 0, 0), today)
	p, err := r.load(ctx, req)
	if err != nil {
		return nil, err
	}

	key := store.ScoreKey{
		LocationID:  loc.ID(),
		Source:      summary.SourceHistorical,
		ProfileHash: fingerprint,
		PayloadHash: p.hash,
	}
	if records, ok := r.cachedScores(key); ok {
		r.finish(p, nil)
		return records, nil
	}

	rows, err := ingest.ParseHourly(p.body, tz, p.result)
	r.finish(p, err)
	if err != nil {
		return nil, fmt.Errorf("parse historical weather: %w", err)
	}
	return r.saveScores(key, scoring.ScoreHourly(rows, profile)), nil
}

func (r *Runner) airQuality(ctx context.Context, loc models.Location, tz *time.Location, today time.Time) ([]models.AirQualitySample, error) {
	start := r.cfg.AirQualityStart
	if start.After(today) {
		start = today
	}
	req := ingest.AirQualityRequest(loc, start, today)
	p, err := r.load(ctx, req)
	if err != nil {
		return nil, err
	}

	samples, err := ingest.ParseAirQuality(p.body, tz, p.result)
	r.finish(p, err)
	if err != nil {
		return nil, fmt.Errorf("parse air quality: %w", err)
	}
	return samples, nil
}

func (r *Runner) projection(ctx context.Context, loc models.Location, model string, tz *time.Location, today time.Time, profile *preference.Profile, fingerprint string) ([]scoring.DailyRecord, error) {
	req := ingest.ClimateRequest(loc, model, today, today.AddDate(r.cfg.ForecastYears, 0, 0))
	p, err := r.load(ctx, req)
	if err != nil {
		return nil, err
	}

	key := store.ScoreKey{
		LocationID:  loc.ID(),
		Source:      summary.SourceForecast,
		Model:       model,
		ProfileHash: fingerprint,
		PayloadHash: p.hash,
	}
	if records, ok := r.cachedScores(key); ok {
		r.finish(p, nil)
		return records, nil
	}

	rows, err := ingest.ParseDaily(p.body, model, tz, p.result)
	r.finish(p, err)
	if err != nil {
		return nil, fmt.Errorf("parse %s projection: %w", model, err)
	}
	return r.saveScores(key, scoring.ScoreDaily(rows, profile)), nil
}

func (r *Runner) cachedScores(key store.ScoreKey) ([]scoring.DailyRecord, bool) {
	records, ok, err := r.store.GetScores(key)
	if err != nil {
		log.Printf("pipeline: score cache lookup %s/%s: %v", key.LocationID, key.Source, err)
	}
	if !ok {
		metrics.ScoreCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.ScoreCacheLookups.WithLabelValues("hit").Inc()
	return records, true
}

func (r *Runner) saveScores(key store.ScoreKey, records []scoring.DailyRecord) []scoring.DailyRecord {
	metrics.DaysScored.WithLabelValues(key.Source).Add(float64(len(records)))
	if err := r.store.SaveScores(key, records); err != nil {
		log.Printf("pipeline: save scores %s/%s: %v", key.LocationID, key.Source, err)
	}
	return records
}

// payload is a raw API body together with the audit run that fetched it.
// run is nil when the body came from the cache.
type payload struct {
	body   []byte
	hash   string
	run    *store.FetchRun
	result *ingest.FetchResult
}

// load returns the body for req, from the raw payload cache when a fresh
// copy exists, otherwise from the API.
func (r *Runner) load(ctx context.Context, req ingest.Request) (*payload, error) {
	locationID := req.Location.ID()
	endpoint := req.Key()
	now := r.cfg.Now()

	if r.cfg.CacheMaxAge > 0 {
		cached, err := r.store.GetLatestRawPayload(ingest.Source, endpoint, locationID, now, r.cfg.CacheMaxAge)
		if err != nil {
			log.Printf("pipeline: payload cache lookup %s: %v", endpoint, err)
		}
		if cached != nil {
			body, err := cached.Payload()
			if err == nil {
				metrics.PayloadCacheLookups.WithLabelValues(req.Endpoint, "hit").Inc()
				if err := r.store.RecordCacheHit(ingest.Source, endpoint, locationID); err != nil {
					log.Printf("pipeline: audit cache hit %s: %v", endpoint, err)
				}
				return &payload{body: body, hash: cached.PayloadHash, result: &ingest.FetchResult{Cached: true}}, nil
			}
			log.Printf("pipeline: decompress cached %s: %v", endpoint, err)
		}
		metrics.PayloadCacheLookups.WithLabelValues(req.Endpoint, "miss").Inc()
	}

	run, err := r.store.StartFetchRun(ingest.Source, endpoint, locationID)
	if err != nil {
		log.Printf("pipeline: start fetch run %s: %v", endpoint, err)
	}

	body, result, err := r.fetcher.Fetch(ctx, req)
	if result == nil {
		result = &ingest.FetchResult{}
	}
	p := &payload{body: body, run: run, result: result}

	if run != nil {
		run.HTTPStatus = sql.NullInt64{Int64: int64(result.HTTPStatus), Valid: result.HTTPStatus > 0}
		run.ResponseSizeBytes = sql.NullInt64{Int64: int64(result.ResponseSize), Valid: result.ResponseSize > 0}
	}

	if err != nil {
		r.finish(p, err)
		return nil, err
	}

	var runID *int64
	if run != nil {
		runID = &run.ID
	}
	p.hash, err = r.store.StoreRawPayload(runID, ingest.Source, endpoint, &locationID, body, now)
	if err != nil {
		log.Printf("pipeline: store raw payload %s: %v", endpoint, err)
		p.hash = store.PayloadHash(body)
	}
	return p, nil
}

// finish completes the audit run for a fetched payload with the parse
// outcome. It is a no-op for cached payloads.
func (r *Runner) finish(p *payload, err error) {
	run := p.run
	if run == nil {
		return
	}
	res := p.result

	run.Success = err == nil
	run.RecordsParsed = sql.NullInt64{Int64: int64(res.RecordCount), Valid: err == nil}
	run.RecordsStored = sql.NullInt64{Int64: int64(res.RecordCount), Valid: err == nil}
	if res.ParseErrors > 0 {
		run.ParseErrors = sql.NullInt64{Int64: int64(res.ParseErrors), Valid: true}
		run.ErrorMessage = sql.NullString{String: res.ParseError, Valid: true}
		log.Printf("pipeline: %s parse errors: %s", run.Endpoint, res.ParseError)
	}
	if err != nil {
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	}

	if err := r.store.CompleteFetchRun(run); err != nil {
		log.Printf("pipeline: complete fetch run %s: %v", run.Endpoint, err)
	}
	p.run = nil
}
