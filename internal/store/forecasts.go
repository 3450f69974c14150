package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/amadeling/kp-forecasting-bma/internal/models"
)

// StoreForecast persists a completed forecast as one run plus its result
// rows. The run is keyed by job id; a redelivered completion for the same
// job finds the existing run and inserts nothing. Returns the run id and
// whether this call created it.
func (s *Store) StoreForecast(ctx context.Context, jobID, productID string, rows []models.ForecastPoint) (int64, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	var runID int64
	err = tx.GetContext(ctx, &runID,
		"INSERT INTO forecast_runs (job_id, product_id) VALUES ($1, $2) ON CONFLICT (job_id) DO NOTHING RETURNING id",
		jobID, productID)
	if err == sql.ErrNoRows {
		// Run already exists: duplicate delivery, keep the original rows.
		if err := tx.GetContext(ctx, &runID,
			"SELECT id FROM forecast_runs WHERE job_id = $1", jobID); err != nil {
			return 0, false, fmt.Errorf("failed to look up existing forecast run: %w", err)
		}
		return runID, false, tx.Commit()
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to create forecast run: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx,
		"INSERT INTO forecast_results (run_id, product_id, date, forecast_quantity) VALUES ($1, $2, $3, $4)")
	if err != nil {
		return 0, false, fmt.Errorf("failed to prepare forecast insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		date, err := time.Parse(models.DateOnly, row.Date)
		if err != nil {
			return 0, false, fmt.Errorf("invalid forecast date %q: %w", row.Date, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, productID, date, row.Quantity); err != nil {
			return 0, false, fmt.Errorf("failed to insert forecast row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return runID, true, nil
}

type forecastRow struct {
	ID        int64     `db:"id"`
	RunID     int64     `db:"run_id"`
	ProductID string    `db:"product_id"`
	Date      time.Time `db:"date"`
	Quantity  float64   `db:"forecast_quantity"`
}

// GetForecastHistory retrieves every persisted forecast row
func (s *Store) GetForecastHistory(ctx context.Context) ([]models.ForecastEntry, error) {
	var rows []forecastRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, run_id, product_id, date, forecast_quantity FROM forecast_results ORDER BY run_id, date")
	if err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

// GetForecastRun retrieves the result rows of one forecast run
func (s *Store) GetForecastRun(ctx context.Context, runID int64) ([]models.ForecastEntry, error) {
	var rows []forecastRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, run_id, product_id, date, forecast_quantity FROM forecast_results WHERE run_id = $1 ORDER BY date",
		runID)
	if err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

// GetForecastsByProduct retrieves all forecast rows for a product
func (s *Store) GetForecastsByProduct(ctx context.Context, productID string) ([]models.ForecastEntry, error) {
	var rows []forecastRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, run_id, product_id, date, forecast_quantity FROM forecast_results WHERE product_id = $1 ORDER BY run_id, date",
		productID)
	if err != nil {
		return nil, err
	}
	return toEntries(rows), nil
}

func toEntries(rows []forecastRow) []models.ForecastEntry {
	entries := make([]models.ForecastEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, models.ForecastEntry{
			ID:               r.ID,
			RunID:            r.RunID,
			ProductID:        r.ProductID,
			Date:             r.Date.Format(models.DateOnly),
			ForecastQuantity: r.Quantity,
		})
	}
	return entries
}
