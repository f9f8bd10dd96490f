package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/lox/climatematch/internal/models"
	"github.com/lox/climatematch/internal/pipeline"
	"github.com/lox/climatematch/internal/preference"
	"github.com/lox/climatematch/internal/store"
)

type HealthStatus struct {
	Status        string `json:"status"`
	SchemaVersion int    `json:"schema_version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.MigrationVersion()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthStatus{Status: "ok", SchemaVersion: version})
}

type PreferencesResponse struct {
	Preferences   preference.Settings `json:"preferences"`
	ScalingFactor float64             `json:"scaling_factor"`
	Fingerprint   string              `json:"fingerprint"`
}

func newPreferencesResponse(p *preference.Profile) PreferencesResponse {
	return PreferencesResponse{
		Preferences:   p.Settings(),
		ScalingFactor: p.ScalingFactor(),
		Fingerprint:   p.Fingerprint(),
	}
}

func (s *Server) handlePreferenceDefaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newPreferencesResponse(preference.New()))
}

// ScoreRequest is the body of POST /api/scores. Preference fields that are
// left out keep their defaults.
type ScoreRequest struct {
	Cities      []models.City       `json:"cities"`
	Preferences preference.Settings `json:"preferences"`
}

type ScoreResponse struct {
	Profile PreferencesResponse   `json:"profile"`
	Results []pipeline.CityResult `json:"results"`
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	req := ScoreRequest{Preferences: preference.DefaultSettings()}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Cities) == 0 {
		writeError(w, http.StatusBadRequest, "at least one city is required")
		return
	}
	for _, c := range req.Cities {
		if c.Name == "" || c.State == "" {
			writeError(w, http.StatusBadRequest, "each city needs a city and state")
			return
		}
	}

	profile, err := preference.FromSettings(req.Preferences)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results := s.scorer.Run(r.Context(), req.Cities, profile)
	for _, res := range results {
		log.Printf("api: %s", res.Status)
	}
	writeJSON(w, http.StatusOK, ScoreResponse{
		Profile: newPreferencesResponse(profile),
		Results: results,
	})
}

type IngestError struct {
	StartedAt  time.Time `json:"started_at"`
	Endpoint   string    `json:"endpoint"`
	Model      string    `json:"model,omitempty"`
	LocationID string    `json:"location_id,omitempty"`
	HTTPStatus int64     `json:"http_status,omitempty"`
	Error      string    `json:"error"`
}

// LocationStatus is a geocoded city with its recent API activity.
type LocationStatus struct {
	models.Location
	ID        string `json:"id"`
	Fetches   int    `json:"fetches"`
	Failures  int    `json:"failures"`
	CacheHits int    `json:"cache_hits"`
}

type IngestStatus struct {
	Endpoints    []store.EndpointHealth `json:"endpoints"`
	Locations    []LocationStatus       `json:"locations"`
	RecentErrors []IngestError          `json:"recent_errors"`
	Payloads     *store.RawPayloadStats `json:"payloads"`
}

const ingestWindow = 7 * 24 * time.Hour

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-ingestWindow)
	var status IngestStatus

	endpoints, err := s.store.EndpointHealthSince(since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status.Endpoints = endpoints

	locs, err := s.store.ListLocations()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	activity, err := s.store.LocationActivitySince(since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status.Locations = make([]LocationStatus, 0, len(locs))
	for _, loc := range locs {
		a := activity[loc.ID()]
		status.Locations = append(status.Locations, LocationStatus{
			Location:  loc,
			ID:        loc.ID(),
			Fetches:   a.Fetches,
			Failures:  a.Failures,
			CacheHits: a.CacheHits,
		})
	}

	runs, err := s.store.RecentFailures(10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status.RecentErrors = make([]IngestError, 0, len(runs))
	for _, run := range runs {
		endpoint, model := store.SplitEndpoint(run.Endpoint)
		status.RecentErrors = append(status.RecentErrors, IngestError{
			StartedAt:  run.StartedAt,
			Endpoint:   endpoint,
			Model:      model,
			LocationID: run.LocationID.String,
			HTTPStatus: run.HTTPStatus.Int64,
			Error:      run.ErrorMessage.String,
		})
	}

	if stats, err := s.store.GetRawPayloadStats(); err != nil {
		log.Printf("api: raw payload stats: %v", err)
	} else {
		status.Payloads = stats
	}

	writeJSON(w, http.StatusOK, status)
}
