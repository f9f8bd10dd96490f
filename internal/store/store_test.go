package store

import (
	"database/sql"
	"math"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/climatematch/internal/models"
	"github.com/lox/climatematch/internal/scoring"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func testLocation() models.Location {
	return models.Location{
		City:       models.City{Name: "Boulder", State: "Colorado"},
		Latitude:   40.015,
		Longitude:  -105.2705,
		Timezone:   "America/Denver",
		Population: sql.NullInt64{Int64: 108250, Valid: true},
		ResolvedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestUpsertAndGetLocation(t *testing.T) {
	store := setupTestStore(t)

	if err := store.UpsertLocation(testLocation()); err != nil {
		t.Fatalf("UpsertLocation: %v", err)
	}

	loc, err := store.GetLocation(models.City{Name: "Boulder", State: "Colorado"})
	if err != nil {
		t.Fatalf("GetLocation: %v", err)
	}
	if loc == nil {
		t.Fatal("GetLocation returned nil")
	}
	if loc.Latitude != 40.015 || loc.Longitude != -105.2705 {
		t.Errorf("coords = %v,%v, want 40.015,-105.2705", loc.Latitude, loc.Longitude)
	}
	if loc.Timezone != "America/Denver" {
		t.Errorf("Timezone = %q, want America/Denver", loc.Timezone)
	}
	if !loc.Population.Valid || loc.Population.Int64 != 108250 {
		t.Errorf("Population = %v, want 108250", loc.Population)
	}
	if loc.ID() != "40.0150,-105.2705" {
		t.Errorf("ID = %q", loc.ID())
	}
}

func TestUpsertLocation_Update(t *testing.T) {
	store := setupTestStore(t)

	loc := testLocation()
	if err := store.UpsertLocation(loc); err != nil {
		t.Fatal(err)
	}
	loc.Timezone = "America/Chicago"
	loc.Population = sql.NullInt64{}
	if err := store.UpsertLocation(loc); err != nil {
		t.Fatal(err)
	}

	locs, err := store.ListLocations()
	if err != nil {
		t.Fatalf("ListLocations: %v", err)
	}
	if len(locs) != 1 {
		t.Fatalf("len(locs) = %d, want 1", len(locs))
	}
	if locs[0].Timezone != "America/Chicago" {
		t.Errorf("Timezone = %q, want America/Chicago", locs[0].Timezone)
	}
	if locs[0].Population.Valid {
		t.Errorf("Population should be NULL after update")
	}
}

func TestGetLocation_Missing(t *testing.T) {
	store := setupTestStore(t)

	loc, err := store.GetLocation(models.City{Name: "Nowhere", State: "Nevada"})
	if err != nil {
		t.Fatalf("GetLocation: %v", err)
	}
	if loc != nil {
		t.Errorf("expected nil, got %+v", loc)
	}
}

var fetchedAt = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func TestRawPayload_StoreAndDedup(t *testing.T) {
	store := setupTestStore(t)

	locationID := "40.0150,-105.2705"
	payload := []byte(`{"hourly":{"time":[1704067200]}}`)

	hash1, err := store.StoreRawPayload(nil, "openmeteo", "archive", &locationID, payload, fetchedAt)
	if err != nil {
		t.Fatalf("StoreRawPayload: %v", err)
	}
	hash2, err := store.StoreRawPayload(nil, "openmeteo", "archive", &locationID, payload, fetchedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("StoreRawPayload (dup): %v", err)
	}
	if hash1 != hash2 {
		t.Errorf("hashes differ: %s vs %s", hash1, hash2)
	}
	if hash1 != PayloadHash(payload) {
		t.Errorf("hash = %s, want %s", hash1, PayloadHash(payload))
	}

	stats, err := store.GetRawPayloadStats()
	if err != nil {
		t.Fatalf("GetRawPayloadStats: %v", err)
	}
	if stats.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1", stats.TotalCount)
	}
	if stats.CountByEndpoint["archive"] != 1 {
		t.Errorf("CountByEndpoint[archive] = %d, want 1", stats.CountByEndpoint["archive"])
	}

	p, err := store.GetLatestRawPayload("openmeteo", "archive", locationID, fetchedAt.Add(time.Hour), time.Minute)
	if err != nil {
		t.Fatalf("GetLatestRawPayload: %v", err)
	}
	if p == nil {
		t.Fatal("duplicate store should refresh fetched_at")
	}
	body, err := p.Payload()
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	if string(body) != string(payload) {
		t.Errorf("payload = %s, want %s", body, payload)
	}
}

func TestGetLatestRawPayload(t *testing.T) {
	store := setupTestStore(t)

	locationID := "40.0150,-105.2705"
	other := "30.2672,-97.7431"

	if _, err := store.StoreRawPayload(nil, "openmeteo", "archive", &locationID, []byte(`{"a":1}`), fetchedAt); err != nil {
		t.Fatal(err)
	}
	if _, err := store.StoreRawPayload(nil, "openmeteo", "archive", &locationID, []byte(`{"a":2}`), fetchedAt.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.StoreRawPayload(nil, "openmeteo", "archive", &other, []byte(`{"a":3}`), fetchedAt.Add(2*time.Minute)); err != nil {
		t.Fatal(err)
	}

	p, err := store.GetLatestRawPayload("openmeteo", "archive", locationID, fetchedAt, time.Hour)
	if err != nil {
		t.Fatalf("GetLatestRawPayload: %v", err)
	}
	if p == nil {
		t.Fatal("expected a payload")
	}
	body, _ := p.Payload()
	if string(body) != `{"a":2}` {
		t.Errorf("latest payload = %s, want {\"a\":2}", body)
	}

	p, err = store.GetLatestRawPayload("openmeteo", "air-quality", locationID, fetchedAt, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Error("expected nil for endpoint with no payloads")
	}
}

func TestGetLatestRawPayload_ExpiresAtGivenTime(t *testing.T) {
	store := setupTestStore(t)

	locationID := "40.0150,-105.2705"
	if _, err := store.StoreRawPayload(nil, "openmeteo", "archive", &locationID, []byte(`{}`), fetchedAt); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		now       time.Time
		wantFresh bool
	}{
		{"same instant", fetchedAt, true},
		{"at max age", fetchedAt.Add(7 * 24 * time.Hour), true},
		{"past max age", fetchedAt.Add(7*24*time.Hour + time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := store.GetLatestRawPayload("openmeteo", "archive", locationID, tt.now, 7*24*time.Hour)
			if err != nil {
				t.Fatal(err)
			}
			if (p != nil) != tt.wantFresh {
				t.Errorf("fresh = %v, want %v", p != nil, tt.wantFresh)
			}
		})
	}
}

func TestCleanupOldRawPayloads(t *testing.T) {
	store := setupTestStore(t)

	locationID := "40.0150,-105.2705"
	if _, err := store.StoreRawPayload(nil, "openmeteo", "archive", &locationID, []byte(`{"old":true}`), time.Now().AddDate(0, 0, -10)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.StoreRawPayload(nil, "openmeteo", "archive", &locationID, []byte(`{"old":false}`), time.Now()); err != nil {
		t.Fatal(err)
	}

	deleted, err := store.CleanupOldRawPayloads(7)
	if err != nil {
		t.Fatalf("CleanupOldRawPayloads: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		key, endpoint, model string
	}{
		{"archive", "archive", ""},
		{"air-quality", "air-quality", ""},
		{"climate/EC_Earth3P_HR", "climate", "EC_Earth3P_HR"},
	}
	for _, tt := range tests {
		endpoint, model := SplitEndpoint(tt.key)
		if endpoint != tt.endpoint || model != tt.model {
			t.Errorf("SplitEndpoint(%q) = %q, %q; want %q, %q", tt.key, endpoint, model, tt.endpoint, tt.model)
		}
	}
}

func completeRun(t *testing.T, store *Store, endpoint, locationID string, status int64, records int64, parseErrors int64, errMsg string) {
	t.Helper()
	run, err := store.StartFetchRun("openmeteo", endpoint, locationID)
	if err != nil {
		t.Fatalf("StartFetchRun: %v", err)
	}
	if run.ID == 0 {
		t.Fatal("run.ID should be set")
	}
	run.HTTPStatus = sql.NullInt64{Int64: status, Valid: true}
	run.RecordsStored = sql.NullInt64{Int64: records, Valid: records > 0}
	run.ParseErrors = sql.NullInt64{Int64: parseErrors, Valid: parseErrors > 0}
	run.Success = errMsg == ""
	run.ErrorMessage = sql.NullString{String: errMsg, Valid: errMsg != ""}
	if err := store.CompleteFetchRun(run); err != nil {
		t.Fatalf("CompleteFetchRun: %v", err)
	}
}

func TestEndpointHealthSince(t *testing.T) {
	store := setupTestStore(t)
	boulder := "40.0150,-105.2705"

	completeRun(t, store, "archive", boulder, 200, 87672, 3, "")
	if err := store.RecordCacheHit("openmeteo", "archive", boulder); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordCacheHit("openmeteo", "archive", boulder); err != nil {
		t.Fatal(err)
	}
	completeRun(t, store, "climate/EC_Earth3P_HR", boulder, 200, 9131, 0, "")
	completeRun(t, store, "climate/EC_Earth3P_HR", boulder, 429, 0, 0, "rate limited")
	completeRun(t, store, "climate/NICAM16_8S", boulder, 200, 9131, 0, "")

	health, err := store.EndpointHealthSince(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("EndpointHealthSince: %v", err)
	}
	if len(health) != 3 {
		t.Fatalf("rows = %d, want 3 (archive and two models)", len(health))
	}

	archive := health[0]
	if archive.Endpoint != "archive" || archive.Model != "" {
		t.Fatalf("first row = %+v, want archive", archive)
	}
	if archive.Fetches != 1 || archive.CacheHits != 2 || archive.Failures != 0 {
		t.Errorf("archive = %+v, want 1 fetch and 2 cache hits", archive)
	}
	if math.Abs(archive.CacheHitRatio-2.0/3.0) > 1e-9 {
		t.Errorf("archive hit ratio = %v, want 2/3", archive.CacheHitRatio)
	}
	if archive.Records != 87672 || archive.ParseErrors != 3 {
		t.Errorf("archive records/parse errors = %d/%d, want 87672/3", archive.Records, archive.ParseErrors)
	}

	ec := health[1]
	if ec.Endpoint != "climate" || ec.Model != "EC_Earth3P_HR" {
		t.Fatalf("second row = %+v, want climate/EC_Earth3P_HR", ec)
	}
	if ec.Fetches != 2 || ec.Failures != 1 || ec.CacheHitRatio != 0 || ec.LastError != "rate limited" {
		t.Errorf("EC_Earth3P_HR = %+v", ec)
	}
	if health[2].Model != "NICAM16_8S" || health[2].LastError != "" {
		t.Errorf("third row = %+v, want NICAM16_8S without errors", health[2])
	}

	recent, err := store.EndpointHealthSince(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Errorf("rows after cutoff = %d, want 0", len(recent))
	}
}

func TestLocationActivitySince(t *testing.T) {
	store := setupTestStore(t)
	boulder := "40.0150,-105.2705"
	austin := "30.2672,-97.7431"

	completeRun(t, store, "archive", boulder, 200, 10, 0, "")
	completeRun(t, store, "air-quality", boulder, 500, 0, 0, "server error")
	if err := store.RecordCacheHit("openmeteo", "archive", austin); err != nil {
		t.Fatal(err)
	}
	completeRun(t, store, "archive", "", 200, 10, 0, "")

	activity, err := store.LocationActivitySince(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("LocationActivitySince: %v", err)
	}
	if len(activity) != 2 {
		t.Fatalf("locations = %d, want 2", len(activity))
	}
	if a := activity[boulder]; a.Fetches != 2 || a.Failures != 1 || a.CacheHits != 0 {
		t.Errorf("boulder = %+v", a)
	}
	if a := activity[austin]; a.Fetches != 0 || a.CacheHits != 1 {
		t.Errorf("austin = %+v", a)
	}
}

func TestRecentFailures(t *testing.T) {
	store := setupTestStore(t)
	boulder := "40.0150,-105.2705"

	completeRun(t, store, "archive", boulder, 200, 10, 0, "")
	if err := store.RecordCacheHit("openmeteo", "archive", boulder); err != nil {
		t.Fatal(err)
	}
	completeRun(t, store, "climate/EC_Earth3P_HR", boulder, 500, 0, 0, "server error")
	completeRun(t, store, "air-quality", boulder, 429, 0, 0, "rate limited")

	failures, err := store.RecentFailures(10)
	if err != nil {
		t.Fatalf("RecentFailures: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("len(failures) = %d, want 2", len(failures))
	}
	if failures[0].Endpoint != "air-quality" || failures[0].ErrorMessage.String != "rate limited" {
		t.Errorf("newest failure = %+v", failures[0])
	}
	if failures[1].Model() != "EC_Earth3P_HR" || failures[1].HTTPStatus.Int64 != 500 {
		t.Errorf("older failure = %+v", failures[1])
	}
	if failures[1].LocationID.String != boulder || failures[1].CacheHit {
		t.Errorf("older failure location/cache = %q/%v", failures[1].LocationID.String, failures[1].CacheHit)
	}

	limited, err := store.RecentFailures(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d", len(limited))
	}
}

func TestMigrationVersion(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("MigrationVersion = %d, want %d", version, len(migrations))
	}

	// Migrating again is a no-op.
	if err := store.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestScores_SaveAndGet(t *testing.T) {
	store := setupTestStore(t)

	key := ScoreKey{
		LocationID:  "40.0150,-105.2705",
		Source:      "historical",
		ProfileHash: "aaaa",
		PayloadHash: "p1",
	}
	records := []scoring.DailyRecord{
		{Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Year: 2020, Score: 2, Reason: scoring.ReasonIdealSunny},
		{Date: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), Year: 2020, Score: -1, Reason: scoring.ReasonColdStill},
	}

	if _, ok, err := store.GetScores(key); err != nil || ok {
		t.Fatalf("GetScores before save: ok=%v err=%v", ok, err)
	}

	if err := store.SaveScores(key, records); err != nil {
		t.Fatalf("SaveScores: %v", err)
	}

	got, ok, err := store.GetScores(key)
	if err != nil {
		t.Fatalf("GetScores: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != len(records) {
		t.Fatalf("len = %d, want %d", len(got), len(records))
	}
	for i := range records {
		if !got[i].Date.Equal(records[i].Date) || got[i].Score != records[i].Score || got[i].Reason != records[i].Reason {
			t.Errorf("record %d = %+v, want %+v", i, got[i], records[i])
		}
	}
}

func TestScores_KeyIsolation(t *testing.T) {
	store := setupTestStore(t)

	base := ScoreKey{LocationID: "x", Source: "forecast", Model: "EC_Earth3P_HR", ProfileHash: "aaaa", PayloadHash: "p1"}
	if err := store.SaveScores(base, []scoring.DailyRecord{{Year: 2030, Score: 1}}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		key  ScoreKey
	}{
		{"different profile", ScoreKey{LocationID: "x", Source: "forecast", Model: "EC_Earth3P_HR", ProfileHash: "bbbb", PayloadHash: "p1"}},
		{"different payload", ScoreKey{LocationID: "x", Source: "forecast", Model: "EC_Earth3P_HR", ProfileHash: "aaaa", PayloadHash: "p2"}},
		{"different model", ScoreKey{LocationID: "x", Source: "forecast", Model: "NICAM16_8S", ProfileHash: "aaaa", PayloadHash: "p1"}},
		{"different location", ScoreKey{LocationID: "y", Source: "forecast", Model: "EC_Earth3P_HR", ProfileHash: "aaaa", PayloadHash: "p1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := store.GetScores(tt.key)
			if err != nil {
				t.Fatal(err)
			}
			if ok {
				t.Error("expected cache miss")
			}
		})
	}
}

func TestCleanupOldScores(t *testing.T) {
	store := setupTestStore(t)

	fresh := ScoreKey{LocationID: "x", Source: "historical", ProfileHash: "a", PayloadHash: "fresh"}
	stale := ScoreKey{LocationID: "x", Source: "historical", ProfileHash: "a", PayloadHash: "stale"}
	for _, k := range []ScoreKey{fresh, stale} {
		if err := store.SaveScores(k, nil); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().UTC().AddDate(0, 0, -40)
	if _, err := store.db.Exec(`UPDATE daily_scores SET created_at = ? WHERE payload_hash = 'stale'`, old); err != nil {
		t.Fatal(err)
	}

	deleted, err := store.CleanupOldScores(30)
	if err != nil {
		t.Fatalf("CleanupOldScores: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	n, err := store.CountScores()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountScores = %d, want 1", n)
	}
}
