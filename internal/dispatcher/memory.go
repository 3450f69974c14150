package dispatcher

import (
	"context"
	"sync"

	"github.com/amadeling/kp-forecasting-bma/internal/models"

	"github.com/google/uuid"
)

// Memory is an in-process Dispatcher used in tests and single-process
// deployments. Jobs are recorded but not executed; callers drive them to a
// terminal state with Complete and Fail.
type Memory struct {
	mu       sync.Mutex
	jobs     map[string]JobRequest
	statuses map[string]JobStatus
}

// NewMemory creates an in-memory dispatcher
func NewMemory() *Memory {
	return &Memory{
		jobs:     make(map[string]JobRequest),
		statuses: make(map[string]JobStatus),
	}
}

// Submit records the job as PENDING and returns its id
func (m *Memory) Submit(_ context.Context, req JobRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req.FutureStep = normalizeFutureStep(req.FutureStep)
	jobID := uuid.New().String()
	m.jobs[jobID] = req
	m.statuses[jobID] = JobStatus{State: models.JobStatePending, Status: "queued"}
	return jobID, nil
}

// Status returns the recorded status; unknown ids report as PENDING
func (m *Memory) Status(_ context.Context, jobID string) (JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.statuses[jobID]
	if !ok {
		return JobStatus{State: models.JobStatePending, Status: "task not yet started or unknown"}, nil
	}
	return st, nil
}

// Job returns the submitted request for a job id
func (m *Memory) Job(jobID string) (JobRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.jobs[jobID]
	return req, ok
}

// Complete marks a job SUCCESS with its result rows
func (m *Memory) Complete(jobID string, result []models.ForecastPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[jobID] = JobStatus{State: models.JobStateSuccess, Result: result}
}

// Fail marks a job FAILURE with an error description
func (m *Memory) Fail(jobID string, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[jobID] = JobStatus{State: models.JobStateFailure, Error: errMsg}
}
