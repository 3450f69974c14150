package store

import (
	"context"
	"fmt"
	"time"

	"github.com/amadeling/kp-forecasting-bma/internal/models"
)

// AppendTrainingRecords inserts a batch of training rows. Inserts are plain
// appends: re-uploading the same file produces duplicate rows, which callers
// surface rather than hide.
func (s *Store) AppendTrainingRecords(ctx context.Context, records []models.TrainingRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		"INSERT INTO train_data (product_id, date, quantity) VALUES ($1, $2, $3)")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare training insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ProductID, r.Date, r.Quantity); err != nil {
			return 0, fmt.Errorf("failed to insert training row (%s, %s): %w",
				r.ProductID, r.Date.Format(models.DateOnly), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(records), nil
}

// GetTrainingData retrieves training rows for a product, optionally bounded
// by an inclusive date range, ordered by date.
func (s *Store) GetTrainingData(ctx context.Context, productID string, start, end *time.Time) ([]models.TrainingRecord, error) {
	query := "SELECT * FROM train_data WHERE product_id = $1"
	args := []interface{}{productID}

	if start != nil {
		args = append(args, *start)
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	query += " ORDER BY date"

	var records []models.TrainingRecord
	err := s.db.SelectContext(ctx, &records, query, args...)
	return records, err
}

// GetTrainingDataUpTo retrieves training rows for a product with date at or
// before the cutoff. A nil cutoff returns all rows for the product.
func (s *Store) GetTrainingDataUpTo(ctx context.Context, productID string, cutoff *time.Time) ([]models.TrainingRecord, error) {
	if cutoff == nil {
		return s.GetTrainingData(ctx, productID, nil, nil)
	}

	var records []models.TrainingRecord
	err := s.db.SelectContext(ctx, &records,
		"SELECT * FROM train_data WHERE product_id = $1 AND date <= $2 ORDER BY date",
		productID, *cutoff)
	return records, err
}

// GetAllTrainingData retrieves every training row, ordered by product and date
func (s *Store) GetAllTrainingData(ctx context.Context) ([]models.TrainingRecord, error) {
	var records []models.TrainingRecord
	err := s.db.SelectContext(ctx, &records,
		"SELECT * FROM train_data ORDER BY product_id, date")
	return records, err
}
