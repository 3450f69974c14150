package models

import "time"

// TrainingRecord is one historical sales observation. Rows are append-only:
// nothing in this service mutates or deletes them after ingestion.
type TrainingRecord struct {
	ID        int64     `db:"id" json:"id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Date      time.Time `db:"date" json:"date"`
	Quantity  float64   `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TrainingEntry is the API-facing shape of a training row, with the date
// rendered as YYYY-MM-DD.
type TrainingEntry struct {
	ProductID string  `json:"product_id"`
	Date      string  `json:"date"`
	Quantity  float64 `json:"quantity"`
}

// ForecastRun groups the result rows delivered for one completed job.
// JobID is the dedup key: a retried callback delivery for the same job
// must not create a second run.
type ForecastRun struct {
	ID        int64     `db:"id" json:"id"`
	JobID     string    `db:"job_id" json:"job_id"`
	ProductID string    `db:"product_id" json:"product_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ForecastResult is one predicted (date, quantity) row. Written only by the
// store-forecast callback path, immutable thereafter.
type ForecastResult struct {
	ID        int64     `db:"id" json:"id"`
	RunID     int64     `db:"run_id" json:"run_id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Date      time.Time `db:"date" json:"date"`
	Quantity  float64   `db:"quantity" json:"forecast_quantity"`
}

// ForecastEntry is the API-facing shape of a forecast row.
type ForecastEntry struct {
	ID               int64   `json:"id"`
	RunID            int64   `json:"forecast_id"`
	ProductID        string  `json:"product_id"`
	Date             string  `json:"date"`
	ForecastQuantity float64 `json:"forecast_quantity"`
}

// ForecastPoint is the wire shape of one forecast row as produced by the
// engine and carried through the callback payload. The column names match
// the engine's output schema.
type ForecastPoint struct {
	Date     string  `json:"TANGGAL"`
	Quantity float64 `json:"TOTAL_JUMLAH"`
}

// Job states. SUCCESS and FAILURE are terminal; the worker is the only
// writer of transitions after submission.
const (
	JobStatePending = "PENDING"
	JobStateRunning = "RUNNING"
	JobStateSuccess = "SUCCESS"
	JobStateFailure = "FAILURE"
)

// DateOnly is the canonical textual date form used in staging CSVs,
// callback payloads and query responses.
const DateOnly = "2006-01-02"
