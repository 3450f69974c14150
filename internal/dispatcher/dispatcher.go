package dispatcher

import (
	"context"

	"github.com/amadeling/kp-forecasting-bma/internal/models"
)

// JobRequest describes one forecast computation to run off the request path.
// FilePath must reference a CSV already materialized on durable storage;
// the dispatcher does not open it.
type JobRequest struct {
	FilePath   string
	ProductID  string
	FutureStep int
	StartDate  string
	EndDate    string
}

// JobStatus is the lifecycle view returned to status queries
type JobStatus struct {
	State  string                 `json:"state"`
	Status string                 `json:"status,omitempty"`
	Result []models.ForecastPoint `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// Dispatcher submits forecast jobs for asynchronous execution and reports
// their lifecycle state. Submission returns immediately; the computation
// runs in a worker decoupled in time and process from the caller.
type Dispatcher interface {
	Submit(ctx context.Context, req JobRequest) (string, error)
	Status(ctx context.Context, jobID string) (JobStatus, error)
}

// defaultFutureStep is the horizon used when the caller supplies none:
// a full-year forecast.
const defaultFutureStep = 365

// normalizeFutureStep guarantees the engine always receives a usable horizon
func normalizeFutureStep(step int) int {
	if step <= 0 {
		return defaultFutureStep
	}
	return step
}
