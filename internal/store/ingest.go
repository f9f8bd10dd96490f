package store

import (
	"database/sql"
	"strings"
	"time"
)

// FetchRun is one audited request for an Open-Meteo payload. Requests served
// from the raw payload cache are recorded too, with CacheHit set, so the
// audit shows how much of the traffic the cache absorbs.
type FetchRun struct {
	ID                int64
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	Source            string
	Endpoint          string // request key: "archive", "air-quality", "climate/<model>"
	LocationID        sql.NullString
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	RecordsParsed     sql.NullInt64
	RecordsStored     sql.NullInt64
	ParseErrors       sql.NullInt64
	Success           bool
	CacheHit          bool
	ErrorMessage      sql.NullString
}

// Model returns the climate model named by the run's endpoint, if any.
func (r FetchRun) Model() string {
	_, model := SplitEndpoint(r.Endpoint)
	return model
}

// SplitEndpoint separates a request key into the API endpoint and the
// climate model it was made for.
func SplitEndpoint(key string) (endpoint, model string) {
	endpoint, model, _ = strings.Cut(key, "/")
	return endpoint, model
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// StartFetchRun records the start of an API fetch for a location.
func (s *Store) StartFetchRun(source, endpoint, locationID string) (*FetchRun, error) {
	run := &FetchRun{
		StartedAt:  time.Now().UTC(),
		Source:     source,
		Endpoint:   endpoint,
		LocationID: nullString(locationID),
	}

	result, err := s.db.Exec(`
		INSERT INTO ingest_runs (started_at, source, endpoint, location_id, success, cache_hit)
		VALUES (?, ?, ?, ?, FALSE, FALSE)
	`, run.StartedAt, run.Source, run.Endpoint, run.LocationID)
	if err != nil {
		return nil, err
	}
	if run.ID, err = result.LastInsertId(); err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteFetchRun stores the outcome of a run started with StartFetchRun.
func (s *Store) CompleteFetchRun(run *FetchRun) error {
	if run == nil {
		return nil
	}
	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE ingest_runs SET
			finished_at = ?,
			http_status = ?,
			response_size_bytes = ?,
			records_parsed = ?,
			records_stored = ?,
			parse_errors = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.ResponseSizeBytes, run.RecordsParsed,
		run.RecordsStored, run.ParseErrors, run.Success, run.ErrorMessage, run.ID)
	return err
}

// RecordCacheHit audits a request answered from the raw payload cache.
func (s *Store) RecordCacheHit(source, endpoint, locationID string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO ingest_runs (started_at, finished_at, source, endpoint, location_id, success, cache_hit)
		VALUES (?, ?, ?, ?, ?, TRUE, TRUE)
	`, now, now, source, endpoint, nullString(locationID))
	return err
}

// EndpointHealth summarises the requests made to one endpoint, per climate
// model, since a cutoff.
type EndpointHealth struct {
	Endpoint      string  `json:"endpoint"`
	Model         string  `json:"model,omitempty"`
	Fetches       int     `json:"fetches"`
	Failures      int     `json:"failures"`
	CacheHits     int     `json:"cache_hits"`
	CacheHitRatio float64 `json:"cache_hit_ratio"`
	Records       int64   `json:"records"`
	ParseErrors   int64   `json:"parse_errors"`
	LastError     string  `json:"last_error,omitempty"`
}

// EndpointHealthSince aggregates the audit log by endpoint and model.
func (s *Store) EndpointHealthSince(since time.Time) ([]EndpointHealth, error) {
	rows, err := s.db.Query(`
		SELECT
			r.endpoint,
			SUM(CASE WHEN r.cache_hit THEN 0 ELSE 1 END),
			SUM(CASE WHEN NOT r.cache_hit AND NOT r.success THEN 1 ELSE 0 END),
			SUM(CASE WHEN r.cache_hit THEN 1 ELSE 0 END),
			COALESCE(SUM(r.records_stored), 0),
			COALESCE(SUM(r.parse_errors), 0),
			COALESCE((
				SELECT f.error_message FROM ingest_runs f
				WHERE f.endpoint = r.endpoint AND NOT f.success AND f.started_at >= ?
				ORDER BY f.started_at DESC, f.id DESC LIMIT 1
			), '')
		FROM ingest_runs r
		WHERE r.started_at >= ?
		GROUP BY r.endpoint
		ORDER BY r.endpoint
	`, since.UTC(), since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EndpointHealth
	for rows.Next() {
		var h EndpointHealth
		var key string
		if err := rows.Scan(&key, &h.Fetches, &h.Failures, &h.CacheHits,
			&h.Records, &h.ParseErrors, &h.LastError); err != nil {
			return nil, err
		}
		h.Endpoint, h.Model = SplitEndpoint(key)
		if lookups := h.Fetches + h.CacheHits; lookups > 0 {
			h.CacheHitRatio = float64(h.CacheHits) / float64(lookups)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// LocationActivity counts the requests made for one location since a cutoff.
type LocationActivity struct {
	LocationID string
	Fetches    int
	Failures   int
	CacheHits  int
}

func (s *Store) LocationActivitySince(since time.Time) (map[string]LocationActivity, error) {
	rows, err := s.db.Query(`
		SELECT
			location_id,
			SUM(CASE WHEN cache_hit THEN 0 ELSE 1 END),
			SUM(CASE WHEN NOT cache_hit AND NOT success THEN 1 ELSE 0 END),
			SUM(CASE WHEN cache_hit THEN 1 ELSE 0 END)
		FROM ingest_runs
		WHERE started_at >= ? AND location_id IS NOT NULL
		GROUP BY location_id
	`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]LocationActivity)
	for rows.Next() {
		var a LocationActivity
		if err := rows.Scan(&a.LocationID, &a.Fetches, &a.Failures, &a.CacheHits); err != nil {
			return nil, err
		}
		out[a.LocationID] = a
	}
	return out, rows.Err()
}

const fetchRunColumns = `id, started_at, finished_at, source, endpoint, location_id,
		       http_status, response_size_bytes, records_parsed, records_stored,
		       parse_errors, success, cache_hit, error_message`

// RecentFailures returns the latest failed fetches, newest first.
func (s *Store) RecentFailures(limit int) ([]FetchRun, error) {
	rows, err := s.db.Query(`
		SELECT `+fetchRunColumns+`
		FROM ingest_runs
		WHERE NOT success
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FetchRun
	for rows.Next() {
		var r FetchRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.Endpoint,
			&r.LocationID, &r.HTTPStatus, &r.ResponseSizeBytes, &r.RecordsParsed,
			&r.RecordsStored, &r.ParseErrors, &r.Success, &r.CacheHit, &r.ErrorMessage); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
