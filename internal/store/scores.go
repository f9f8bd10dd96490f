package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/climatematch/internal/scoring"
)

// ScoreKey identifies a scored series. A change to the preference profile
// or to the underlying payload produces a different key, so stale scores
// are never served.
type ScoreKey struct {
	LocationID  string
	Source      string
	Model       string
	ProfileHash string
	PayloadHash string
}

// SaveScores stores a scored daily series under key, replacing any
// previous entry.
func (s *Store) SaveScores(key ScoreKey, records []scoring.DailyRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	compressed, err := compress(data)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO daily_scores
		(location_id, source, model, profile_hash, payload_hash, record_count, records_compressed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, key.LocationID, key.Source, key.Model, key.ProfileHash, key.PayloadHash,
		len(records), compressed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert scores: %w", err)
	}
	return nil
}

// GetScores returns the cached series for key. The bool is false on a miss.
func (s *Store) GetScores(key ScoreKey) ([]scoring.DailyRecord, bool, error) {
	var compressed []byte
	err := s.db.QueryRow(`
		SELECT records_compressed FROM daily_scores
		WHERE location_id = ? AND source = ? AND model = ? AND profile_hash = ? AND payload_hash = ?
	`, key.LocationID, key.Source, key.Model, key.ProfileHash, key.PayloadHash).Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	data, err := decompress(compressed)
	if err != nil {
		return nil, false, err
	}
	var records []scoring.DailyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false, fmt.Errorf("unmarshal scores: %w", err)
	}
	return records, true, nil
}

// CountScores returns the number of cached series.
func (s *Store) CountScores() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM daily_scores`).Scan(&n)
	return n, err
}

// CleanupOldScores deletes cached series older than retentionDays.
func (s *Store) CleanupOldScores(retentionDays int) (int64, error) {
	result, err := s.db.Exec(`
		DELETE FROM daily_scores
		WHERE created_at < ?
	`, time.Now().UTC().AddDate(0, 0, -retentionDays))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
