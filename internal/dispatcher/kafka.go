package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/amadeling/kp-forecasting-bma/internal/jobstate"
	"github.com/amadeling/kp-forecasting-bma/internal/models"
	"github.com/amadeling/kp-forecasting-bma/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// jobPublisher abstracts the Kafka producer for testability
type jobPublisher interface {
	PublishJob(ctx context.Context, msg models.ForecastJobMessage) error
}

// stateStore abstracts the job state store for testability
type stateStore interface {
	Put(ctx context.Context, rec jobstate.Record) error
	Get(ctx context.Context, jobID string) (*jobstate.Record, error)
}

// KafkaDispatcher submits jobs onto the durable queue and answers status
// queries from the job state store.
type KafkaDispatcher struct {
	producer   jobPublisher
	states     stateStore
	startDelay time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewKafkaDispatcher creates a dispatcher backed by the Kafka job topic.
// startDelay is stamped into each message as a not-before time so the
// worker never opens a staging file before the submission has settled.
func NewKafkaDispatcher(producer jobPublisher, states stateStore, startDelay time.Duration) *KafkaDispatcher {
	return &KafkaDispatcher{
		producer:   producer,
		states:     states,
		startDelay: startDelay,
		logger:     util.GetLogger(),
		now:        time.Now,
	}
}

// Submit enqueues a forecast job and records it as PENDING.
// The returned job id is the handle for status queries and result dedup.
func (d *KafkaDispatcher) Submit(ctx context.Context, req JobRequest) (string, error) {
	ctx, span := util.StartSpan(ctx, "KafkaDispatcher.Submit")
	defer span.End()

	now := d.now()
	msg := models.ForecastJobMessage{
		JobID:       uuid.New().String(),
		FilePath:    req.FilePath,
		ProductID:   req.ProductID,
		FutureStep:  normalizeFutureStep(req.FutureStep),
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		NotBefore:   now.Add(d.startDelay),
		SubmittedAt: now,
	}

	if err := d.producer.PublishJob(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to enqueue forecast job: %w", err)
	}

	rec := jobstate.Record{
		JobID:       msg.JobID,
		State:       models.JobStatePending,
		Status:      "queued",
		SubmittedAt: now,
	}
	if err := d.states.Put(ctx, rec); err != nil {
		// The job is already on the queue; the worker will overwrite this
		// record when it picks the message up.
		d.logger.Warn("Failed to record pending job state",
			zap.String("job_id", msg.JobID),
			zap.Error(err))
	}

	util.JobsSubmittedTotal.Inc()
	d.logger.Info("Forecast job submitted",
		zap.String("job_id", msg.JobID),
		zap.String("product_id", req.ProductID),
		zap.Int("future_step", msg.FutureStep))

	return msg.JobID, nil
}

// Status reads the job state store. An id with no record is reported as
// PENDING with an explanatory note, matching how the queue backend treats
// ids it has never seen.
func (d *KafkaDispatcher) Status(ctx context.Context, jobID string) (JobStatus, error) {
	rec, err := d.states.Get(ctx, jobID)
	if err != nil {
		return JobStatus{}, err
	}
	if rec == nil {
		return JobStatus{
			State:  models.JobStatePending,
			Status: "task not yet started or unknown",
		}, nil
	}

	return JobStatus{
		State:  rec.State,
		Status: rec.Status,
		Result: rec.Result,
		Error:  rec.Error,
	}, nil
}
