package jobstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amadeling/kp-forecasting-bma/internal/models"

	"github.com/go-redis/redis/v8"
)

// Record is the status of one forecast job as seen by status queries.
// The dispatcher writes the PENDING record at submit time; every later
// transition is written by the worker, which is the sole writer of a
// given job's state after that. The API only reads.
type Record struct {
	JobID       string                 `json:"job_id"`
	State       string                 `json:"state"`
	Status      string                 `json:"status,omitempty"`
	Result      []models.ForecastPoint `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	SubmittedAt time.Time              `json:"submitted_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
}

// Terminal reports whether the record is in a terminal state
func (r Record) Terminal() bool {
	return r.State == models.JobStateSuccess || r.State == models.JobStateFailure
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore creates a Redis-backed job state store
func NewStore(addr, password string, db int, ttl time.Duration) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Store{rdb: rdb, ttl: ttl}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.rdb.Close()
}

func key(jobID string) string {
	return fmt.Sprintf("forecast-job:%s", jobID)
}

// Put writes a job status record, refreshing its TTL
func (s *Store) Put(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal job record: %w", err)
	}

	if err := s.rdb.Set(ctx, key(rec.JobID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write job record %s: %w", rec.JobID, err)
	}
	return nil
}

// Get retrieves a job status record. Returns (nil, nil) for an unknown id.
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	payload, err := s.rdb.Get(ctx, key(jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job record %s: %w", jobID, err)
	}

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job record %s: %w", jobID, err)
	}
	return &rec, nil
}
