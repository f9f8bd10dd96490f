package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// RawPayload represents a stored API response payload.
type RawPayload struct {
	ID                int64
	IngestRunID       sql.NullInt64
	FetchedAt         time.Time
	Source            string
	Endpoint          string
	LocationID        sql.NullString
	PayloadCompressed []byte
	PayloadHash       string
	SchemaVersion     int
}

// Payload decompresses the stored body.
func (p *RawPayload) Payload() ([]byte, error) {
	return decompress(p.PayloadCompressed)
}

func compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(compressed []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// PayloadHash is the content hash used to deduplicate payloads.
func PayloadHash(payload []byte) string {
	hash := sha256.Sum256(payload)
	return hex.EncodeToString(hash[:])
}

// StoreRawPayload stores a compressed API response payload fetched at
// fetchedAt and returns its hash. Storing an identical payload again
// refreshes its fetch time.
func (s *Store) StoreRawPayload(runID *int64, source, endpoint string, locationID *string, payload []byte, fetchedAt time.Time) (string, error) {
	compressed, err := compress(payload)
	if err != nil {
		return "", err
	}
	hashHex := PayloadHash(payload)

	var ingestRunID sql.NullInt64
	if runID != nil {
		ingestRunID = sql.NullInt64{Int64: *runID, Valid: true}
	}

	var locationIDNull sql.NullString
	if locationID != nil {
		locationIDNull = sql.NullString{String: *locationID, Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO raw_payloads
		(ingest_run_id, fetched_at, source, endpoint, location_id,
		 payload_compressed, payload_hash, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(payload_hash) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			ingest_run_id = excluded.ingest_run_id
	`, ingestRunID, fetchedAt.UTC(), source, endpoint, locationIDNull,
		compressed, hashHex)
	if err != nil {
		return "", fmt.Errorf("insert raw payload: %w", err)
	}

	return hashHex, nil
}

const rawPayloadColumns = `id, ingest_run_id, fetched_at, source, endpoint, location_id,
		       payload_compressed, payload_hash, schema_version`

func scanRawPayload(row *sql.Row) (*RawPayload, error) {
	var p RawPayload
	err := row.Scan(&p.ID, &p.IngestRunID, &p.FetchedAt, &p.Source, &p.Endpoint,
		&p.LocationID, &p.PayloadCompressed, &p.PayloadHash, &p.SchemaVersion)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetLatestRawPayload returns the most recently fetched payload for a
// source, endpoint and location if it is younger than maxAge at now, or nil.
func (s *Store) GetLatestRawPayload(source, endpoint, locationID string, now time.Time, maxAge time.Duration) (*RawPayload, error) {
	p, err := scanRawPayload(s.db.QueryRow(`
		SELECT `+rawPayloadColumns+`
		FROM raw_payloads
		WHERE source = ? AND endpoint = ? AND location_id = ?
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1
	`, source, endpoint, locationID))
	if err != nil || p == nil {
		return nil, err
	}
	if now.Sub(p.FetchedAt) > maxAge {
		return nil, nil
	}
	return p, nil
}

// RawPayloadStats contains storage statistics for raw payloads.
type RawPayloadStats struct {
	TotalCount      int
	TotalSizeBytes  int64
	OldestFetchedAt time.Time
	NewestFetchedAt time.Time
	CountByEndpoint map[string]int
	SizeByEndpoint  map[string]int64
}

// GetRawPayloadStats returns storage statistics for raw payloads.
func (s *Store) GetRawPayloadStats() (*RawPayloadStats, error) {
	stats := &RawPayloadStats{
		CountByEndpoint: make(map[string]int),
		SizeByEndpoint:  make(map[string]int64),
	}

	row := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(LENGTH(payload_compressed)), 0)
		FROM raw_payloads
	`)
	if err := row.Scan(&stats.TotalCount, &stats.TotalSizeBytes); err != nil {
		return nil, err
	}

	if stats.TotalCount > 0 {
		if err := s.db.QueryRow(`SELECT fetched_at FROM raw_payloads ORDER BY fetched_at ASC LIMIT 1`).Scan(&stats.OldestFetchedAt); err != nil {
			return nil, err
		}
		if err := s.db.QueryRow(`SELECT fetched_at FROM raw_payloads ORDER BY fetched_at DESC LIMIT 1`).Scan(&stats.NewestFetchedAt); err != nil {
			return nil, err
		}
	}

	rows, err := s.db.Query(`
		SELECT endpoint, COUNT(*), SUM(LENGTH(payload_compressed))
		FROM raw_payloads
		GROUP BY endpoint
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var endpoint string
		var count int
		var size int64
		if err := rows.Scan(&endpoint, &count, &size); err != nil {
			return nil, err
		}
		stats.CountByEndpoint[endpoint] = count
		stats.SizeByEndpoint[endpoint] = size
	}

	return stats, rows.Err()
}

// CleanupOldRawPayloads deletes raw payloads older than the specified number of days.
// Returns the number of deleted records.
func (s *Store) CleanupOldRawPayloads(retentionDays int) (int64, error) {
	result, err := s.db.Exec(`
		DELETE FROM raw_payloads
		WHERE fetched_at < ?
	`, time.Now().UTC().AddDate(0, 0, -retentionDays))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
