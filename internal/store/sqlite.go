// Package store caches the fetched dataset bundle in sqlite: the raw archive
// as a compressed deduplicated blob, plus parsed occurrences for cheap
// species queries without re-reading the archive.
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

	"github.com/lox/specdist/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveBundle replaces the cached bundle: the raw archive is stored gzipped
// and hash-deduplicated, and the occurrence and coverage tables are rebuilt
// from the parsed bundle.
func (s *Store) SaveBundle(raw []byte, b *models.Bundle) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(raw)
	hashHex := hex.EncodeToString(hash[:])

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO bundle_payloads (fetched_at, payload_compressed, payload_hash, schema_version)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(payload_hash) DO UPDATE SET fetched_at = excluded.fetched_at
	`, time.Now().UTC(), buf.Bytes(), hashHex); err != nil {
		return fmt.Errorf("insert payload: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM occurrences`); err != nil {
		return fmt.Errorf("clear occurrences: %w", err)
	}
	for _, r := range b.Records {
		if _, err := tx.Exec(`
			INSERT INTO occurrences (species, latitude, longitude) VALUES (?, ?, ?)
		`, r.Species, r.Latitude, r.Longitude); err != nil {
			return fmt.Errorf("insert occurrence: %w", err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM coverages`); err != nil {
		return fmt.Errorf("clear coverages: %w", err)
	}
	for _, c := range b.Coverages {
		if _, err := tx.Exec(`
			INSERT INTO coverages (name, ncols, nrows, cell_size) VALUES (?, ?, ?, ?)
		`, c.Name, c.Geometry.NCols, c.Geometry.NRows, c.Geometry.CellSize); err != nil {
			return fmt.Errorf("insert coverage %s: %w", c.Name, err)
		}
	}

	return tx.Commit()
}

// LoadRawBundle returns the most recently fetched raw archive, decompressed,
// or nil if no bundle has been cached yet.
func (s *Store) LoadRawBundle() ([]byte, time.Time, error) {
	var compressed []byte
	var fetchedAt time.Time
	err := s.db.QueryRow(`
		SELECT payload_compressed, fetched_at FROM bundle_payloads
		ORDER BY fetched_at DESC LIMIT 1
	`).Scan(&compressed, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("decompress payload: %w", err)
	}
	return raw, fetchedAt, nil
}

// SpeciesCounts returns record counts per species, sorted by label.
func (s *Store) SpeciesCounts() ([]models.SpeciesCount, error) {
	rows, err := s.db.Query(`
		SELECT species, COUNT(*) FROM occurrences GROUP BY species ORDER BY species
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []models.SpeciesCount
	for rows.Next() {
		var c models.SpeciesCount
		if err := rows.Scan(&c.Species, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// OccurrenceCount returns the total cached record count.
func (s *Store) OccurrenceCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM occurrences`).Scan(&n)
	return n, err
}
