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

// HashPayload returns the hex SHA-256 used to deduplicate snapshots.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// StoreSnapshot stores a gzip-compressed copy of an input file. Returns the
// payload hash; identical inputs are stored once.
func (s *Store) StoreSnapshot(location string, payload []byte) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return "", fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("close gzip: %w", err)
	}

	hash := HashPayload(payload)
	_, err := s.db.Exec(`
		INSERT INTO source_snapshots (fetched_at, location, payload_compressed, payload_hash, size_bytes)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, time.Now().UTC(), location, buf.Bytes(), hash, len(payload))
	if err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}
	return hash, nil
}

// GetSnapshot returns the decompressed payload for hash, or nil if absent.
func (s *Store) GetSnapshot(hash string) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow(`SELECT payload_compressed FROM source_snapshots WHERE payload_hash = ?`, hash).
		Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// CleanupSnapshots deletes snapshots older than retentionDays that no run
// references. Returns the number of deleted snapshots.
func (s *Store) CleanupSnapshots(retentionDays int) (int64, error) {
	result, err := s.db.Exec(`
		DELETE FROM source_snapshots
		WHERE fetched_at < ?
		  AND payload_hash NOT IN (SELECT source_hash FROM forecast_runs WHERE source_hash IS NOT NULL)
	`, time.Now().UTC().AddDate(0, 0, -retentionDays))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
