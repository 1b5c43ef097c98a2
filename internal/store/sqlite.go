package store

import (
	"database/sql"
	"fmt"

	"github.com/lox/aqicast/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertRun records a completed run and its calendar in one transaction.
func (s *Store) InsertRun(run models.Run, records []models.CalendarRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO forecast_runs (id, started_at, completed_at, source, source_hash, target, first_date, last_observed, horizon_end, horizon_days, observed_days, forecast_days, readings_loaded, rmse)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt.UTC(), run.CompletedAt.UTC(), run.Source, nullString(run.SourceHash), run.Target,
		run.FirstDate, run.LastObserved, run.HorizonEnd, run.HorizonDays, run.ObservedDays, run.ForecastDays,
		run.ReadingsLoaded, run.RMSE)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO calendar_records (run_id, date, actual, predicted) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var actual sql.NullFloat64
		if r.Actual != nil {
			actual = sql.NullFloat64{Float64: *r.Actual, Valid: true}
		}
		if _, err := stmt.Exec(run.ID, r.Date, actual, r.Predicted); err != nil {
			return fmt.Errorf("insert record %s: %w", r.Date, err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, started_at, completed_at, source, source_hash, target, first_date, last_observed, horizon_end, horizon_days, observed_days, forecast_days, readings_loaded, rmse`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (models.Run, error) {
	var run models.Run
	var hash sql.NullString
	err := row.Scan(&run.ID, &run.StartedAt, &run.CompletedAt, &run.Source, &hash, &run.Target,
		&run.FirstDate, &run.LastObserved, &run.HorizonEnd, &run.HorizonDays, &run.ObservedDays,
		&run.ForecastDays, &run.ReadingsLoaded, &run.RMSE)
	run.SourceHash = hash.String
	return run, err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]models.Run, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM forecast_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns nil when no run has the given id.
func (s *Store) GetRun(id string) (*models.Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM forecast_runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) GetRunRecords(runID string) ([]models.CalendarRecord, error) {
	rows, err := s.db.Query(`
		SELECT date, actual, predicted
		FROM calendar_records
		WHERE run_id = ?
		ORDER BY date ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.CalendarRecord
	for rows.Next() {
		var r models.CalendarRecord
		var actual sql.NullFloat64
		if err := rows.Scan(&r.Date, &actual, &r.Predicted); err != nil {
			return nil, err
		}
		if actual.Valid {
			v := actual.Float64
			r.Actual = &v
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
