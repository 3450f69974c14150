package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amadeling/kp-forecasting-bma/internal/broker"
	"github.com/amadeling/kp-forecasting-bma/internal/engine"
	"github.com/amadeling/kp-forecasting-bma/internal/jobstate"
	"github.com/amadeling/kp-forecasting-bma/internal/models"
	"github.com/amadeling/kp-forecasting-bma/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// StatusStore records job state transitions. The worker is the sole writer
// of a job's state after submission.
type StatusStore interface {
	Put(ctx context.Context, rec jobstate.Record) error
}

// Config holds delivery options for completed results
type Config struct {
	CallbackBaseURL  string
	RetryEnabled     bool
	RetryMaxAttempts int
	RetryBackoff     time.Duration
}

// ForecastWorker consumes job messages and runs the forecast pipeline:
// engine invocation, result shaping, and delivery back to the API's
// internal store-forecast endpoint. Each job gets a single attempt; every
// outcome lands in a terminal state visible to status queries.
type ForecastWorker struct {
	consumer   *broker.Consumer
	states     StatusStore
	engine     engine.Engine
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
	sleep      func(time.Duration)
}

// NewForecastWorker creates a forecast worker
func NewForecastWorker(consumer *broker.Consumer, states StatusStore, eng engine.Engine, cfg Config) *ForecastWorker {
	if cfg.RetryMaxAttempts < 1 {
		cfg.RetryMaxAttempts = 1
	}
	return &ForecastWorker{
		consumer:   consumer,
		states:     states,
		engine:     eng,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     util.GetLogger(),
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// Start starts the worker
func (w *ForecastWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting forecast worker...")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker
func (w *ForecastWorker) Stop() error {
	w.logger.Info("Stopping forecast worker...")
	return w.consumer.Close()
}

func (w *ForecastWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var job models.ForecastJobMessage
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		w.logger.Error("Dropping unparseable job message", zap.Error(err))
		return nil
	}

	// Failures are encoded into job state, never returned to the consumer
	// loop: there is no queue-level retry for forecast jobs.
	w.runJob(ctx, job)
	return nil
}

// runJob executes one forecast job to a terminal state
func (w *ForecastWorker) runJob(ctx context.Context, job models.ForecastJobMessage) {
	// The not-before stamp lets the staging file write settle before the
	// worker opens it.
	if wait := job.NotBefore.Sub(w.now()); wait > 0 {
		w.sleep(wait)
	}

	startedAt := w.now()
	w.putState(ctx, jobstate.Record{
		JobID:       job.JobID,
		State:       models.JobStateRunning,
		Status:      "in progress",
		SubmittedAt: job.SubmittedAt,
		StartedAt:   &startedAt,
	})

	rows, err := w.engine.Run(ctx, job.FilePath, job.ProductID, job.FutureStep)
	if err != nil {
		w.fail(ctx, job, startedAt, fmt.Errorf("forecast engine failed: %w", err), "engine_error")
		return
	}
	if len(rows) == 0 {
		w.fail(ctx, job, startedAt, errors.New("forecast engine returned no result"), "empty_result")
		return
	}

	rows, err = normalizeDates(rows)
	if err != nil {
		w.fail(ctx, job, startedAt, err, "bad_dates")
		return
	}
	rows = clipDateRange(rows, job.StartDate, job.EndDate)

	if err := w.deliver(ctx, job, rows); err != nil {
		w.fail(ctx, job, startedAt, fmt.Errorf("result delivery failed: %w", err), "callback_failed")
		return
	}

	finishedAt := w.now()
	w.putState(ctx, jobstate.Record{
		JobID:       job.JobID,
		State:       models.JobStateSuccess,
		Result:      rows,
		SubmittedAt: job.SubmittedAt,
		StartedAt:   &startedAt,
		FinishedAt:  &finishedAt,
	})

	util.JobsSucceededTotal.Inc()
	w.logger.Info("Forecast job completed",
		zap.String("job_id", job.JobID),
		zap.String("product_id", job.ProductID),
		zap.Int("rows", len(rows)))
}

// deliver posts the completed forecast to the internal store-forecast
// endpoint. Retries are off by default; when enabled, attempts are bounded
// with exponential backoff.
func (w *ForecastWorker) deliver(ctx context.Context, job models.ForecastJobMessage, rows []models.ForecastPoint) error {
	payload, err := json.Marshal(models.StoreForecastRequest{
		JobID:     job.JobID,
		ProductID: job.ProductID,
		Results:   rows,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal callback payload: %w", err)
	}

	attempts := 1
	if w.cfg.RetryEnabled {
		attempts = w.cfg.RetryMaxAttempts
	}

	start := time.Now()
	defer func() {
		util.CallbackLatency.Observe(time.Since(start).Seconds())
	}()

	url := w.cfg.CallbackBaseURL + "/internal/store-forecast"
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			w.sleep(w.cfg.RetryBackoff * (1 << (attempt - 1)))
		}

		lastErr = w.post(ctx, url, payload)
		if lastErr == nil {
			return nil
		}
		w.logger.Warn("Callback delivery attempt failed",
			zap.String("job_id", job.JobID),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}
	return lastErr
}

func (w *ForecastWorker) post(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("callback returned status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

func (w *ForecastWorker) fail(ctx context.Context, job models.ForecastJobMessage, startedAt time.Time, cause error, reason string) {
	finishedAt := w.now()
	w.putState(ctx, jobstate.Record{
		JobID:       job.JobID,
		State:       models.JobStateFailure,
		Error:       cause.Error(),
		SubmittedAt: job.SubmittedAt,
		StartedAt:   &startedAt,
		FinishedAt:  &finishedAt,
	})

	util.JobsFailedTotal.WithLabelValues(reason).Inc()
	w.logger.Warn("Forecast job failed",
		zap.String("job_id", job.JobID),
		zap.String("reason", reason),
		zap.Error(cause))
}

func (w *ForecastWorker) putState(ctx context.Context, rec jobstate.Record) {
	if err := w.states.Put(ctx, rec); err != nil {
		w.logger.Error("Failed to write job state",
			zap.String("job_id", rec.JobID),
			zap.String("state", rec.State),
			zap.Error(err))
	}
}

// engineDateLayouts are the date forms the engine is known to emit
var engineDateLayouts = []string{
	models.DateOnly,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// normalizeDates rewrites every row date to YYYY-MM-DD
func normalizeDates(rows []models.ForecastPoint) ([]models.ForecastPoint, error) {
	out := make([]models.ForecastPoint, len(rows))
	for i, row := range rows {
		var parsed time.Time
		var err error
		for _, layout := range engineDateLayouts {
			parsed, err = time.Parse(layout, row.Date)
			if err == nil {
				break
			}
		}
		if err != nil {
			return nil, fmt.Errorf("engine returned unparseable date %q", row.Date)
		}
		out[i] = models.ForecastPoint{Date: parsed.Format(models.DateOnly), Quantity: row.Quantity}
	}
	return out, nil
}

// clipDateRange keeps rows with start <= date <= end, preserving order.
// Both bounds must be present; otherwise the rows pass through untouched.
// Dates are already normalized to YYYY-MM-DD, so lexicographic comparison
// is chronological.
func clipDateRange(rows []models.ForecastPoint, start, end string) []models.ForecastPoint {
	if start == "" || end == "" {
		return rows
	}

	out := make([]models.ForecastPoint, 0, len(rows))
	for _, row := range rows {
		if row.Date >= start && row.Date <= end {
			out = append(out, row)
		}
	}
	return out
}
