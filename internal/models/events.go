package models

import "time"

// ForecastJobMessage is the unit of work placed on the job queue. The
// referenced file must already be durable when the message is published;
// NotBefore keeps the worker from opening it before the submission has
// fully settled.
type ForecastJobMessage struct {
	JobID       string    `json:"job_id"`
	FilePath    string    `json:"file_path"`
	ProductID   string    `json:"product_id"`
	FutureStep  int       `json:"future_step"`
	StartDate   string    `json:"start_date,omitempty"`
	EndDate     string    `json:"end_date,omitempty"`
	NotBefore   time.Time `json:"not_before"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// StoreForecastRequest is the body of the internal store-forecast callback.
// JobID lets the handler deduplicate a redelivered completion.
type StoreForecastRequest struct {
	JobID     string          `json:"job_id"`
	ProductID string          `json:"product_id" binding:"required"`
	Results   []ForecastPoint `json:"results" binding:"required,min=1"`
}
