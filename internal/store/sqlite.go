package store

import (
	"database/sql"
	"fmt"

	"github.com/lox/climatematch/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens a SQLite database with WAL and a busy timeout, so concurrent
// city pipelines can write without "database is locked" errors.
func Open(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func (s *Store) UpsertLocation(loc models.Location) error {
	_, err := s.db.Exec(`
		INSERT INTO locations (city, state, latitude, longitude, timezone, population, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(city, state) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			timezone = excluded.timezone,
			population = excluded.population,
			resolved_at = excluded.resolved_at
	`, loc.City.Name, loc.City.State, loc.Latitude, loc.Longitude, loc.Timezone, loc.Population, loc.ResolvedAt.UTC())
	return err
}

// GetLocation returns the cached geocoding result for a city, or nil.
func (s *Store) GetLocation(city models.City) (*models.Location, error) {
	loc := models.Location{City: city}
	var tz sql.NullString
	err := s.db.QueryRow(`
		SELECT latitude, longitude, timezone, population, resolved_at
		FROM locations WHERE city = ? AND state = ?
	`, city.Name, city.State).Scan(&loc.Latitude, &loc.Longitude, &tz, &loc.Population, &loc.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	loc.Timezone = tz.String
	return &loc, nil
}

func (s *Store) ListLocations() ([]models.Location, error) {
	rows, err := s.db.Query(`
		SELECT city, state, latitude, longitude, timezone, population, resolved_at
		FROM locations ORDER BY state, city
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locs []models.Location
	for rows.Next() {
		var loc models.Location
		var tz sql.NullString
		if err := rows.Scan(&loc.City.Name, &loc.City.State, &loc.Latitude, &loc.Longitude, &tz, &loc.Population, &loc.ResolvedAt); err != nil {
			return nil, err
		}
		loc.Timezone = tz.String
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}
