package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/amadeling/kp-forecasting-bma/internal/dispatcher"
	"github.com/amadeling/kp-forecasting-bma/internal/models"
	"github.com/amadeling/kp-forecasting-bma/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TrainingStore is the training-data slice of the data store
type TrainingStore interface {
	AppendTrainingRecords(ctx context.Context, records []models.TrainingRecord) (int, error)
	GetTrainingData(ctx context.Context, productID string, start, end *time.Time) ([]models.TrainingRecord, error)
	GetTrainingDataUpTo(ctx context.Context, productID string, cutoff *time.Time) ([]models.TrainingRecord, error)
	GetAllTrainingData(ctx context.Context) ([]models.TrainingRecord, error)
}

// ForecastStore is the forecast-result slice of the data store
type ForecastStore interface {
	StoreForecast(ctx context.Context, jobID, productID string, rows []models.ForecastPoint) (int64, bool, error)
	GetForecastHistory(ctx context.Context) ([]models.ForecastEntry, error)
	GetForecastRun(ctx context.Context, runID int64) ([]models.ForecastEntry, error)
	GetForecastsByProduct(ctx context.Context, productID string) ([]models.ForecastEntry, error)
}

// Preprocessor normalizes an uploaded file into training records
type Preprocessor interface {
	Normalize(filename string, r io.Reader) ([]models.TrainingRecord, error)
}

// ForecastService orchestrates the upload, enqueue, persist and query
// workflow. It never writes job state; that belongs to the dispatcher and
// the worker.
type ForecastService struct {
	training   TrainingStore
	forecasts  ForecastStore
	dispatcher dispatcher.Dispatcher
	pre        Preprocessor
	uploadDir  string
	stagingDir string
	logger     *zap.Logger
}

// NewForecastService creates a forecast service
func NewForecastService(
	training TrainingStore,
	forecasts ForecastStore,
	disp dispatcher.Dispatcher,
	pre Preprocessor,
	uploadDir, stagingDir string,
) *ForecastService {
	return &ForecastService{
		training:   training,
		forecasts:  forecasts,
		dispatcher: disp,
		pre:        pre,
		uploadDir:  uploadDir,
		stagingDir: stagingDir,
		logger:     util.GetLogger(),
	}
}

// Upload saves the file verbatim to the upload area, normalizes it and
// appends the rows to the training store. Returns the number of rows
// ingested. Preprocessing and validation failures are client errors.
func (s *ForecastService) Upload(ctx context.Context, filename string, src io.Reader) (int, error) {
	ctx, span := util.StartSpan(ctx, "ForecastService.Upload")
	defer span.End()

	dest := filepath.Join(s.uploadDir, filepath.Base(filename))
	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to save upload: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return 0, fmt.Errorf("failed to save upload: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("failed to save upload: %w", err)
	}

	in, err := os.Open(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to reopen upload: %w", err)
	}
	defer in.Close()

	records, err := s.pre.Normalize(filename, in)
	if err != nil {
		util.UploadsRejectedTotal.WithLabelValues("preprocess").Inc()
		return 0, clientErrorf("invalid upload: %v", err)
	}

	n, err := s.training.AppendTrainingRecords(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("failed to store training data: %w", err)
	}

	util.UploadsIngestedTotal.Inc()
	util.TrainingRowsIngestedTotal.Add(float64(n))
	s.logger.Info("Upload ingested",
		zap.String("file", filename),
		zap.Int("rows", n))
	return n, nil
}

// ProcessCSV prepares a forecast job for a product: slices the training
// history at start date, stages it as a per-job CSV, derives the horizon
// from end date, and submits the job. Returns the job id immediately; the
// computation runs asynchronously.
func (s *ForecastService) ProcessCSV(ctx context.Context, productID string, startDate, endDate *time.Time) (string, error) {
	ctx, span := util.StartSpan(ctx, "ForecastService.ProcessCSV")
	defer span.End()

	rows, err := s.training.GetTrainingDataUpTo(ctx, productID, startDate)
	if err != nil {
		return "", fmt.Errorf("failed to load training data: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("no training data for product %s: %w", productID, ErrNotFound)
	}

	// Unique per request so concurrent submissions cannot clobber each
	// other's staging file.
	stagingPath := filepath.Join(s.stagingDir, fmt.Sprintf("train_%s.csv", uuid.New().String()))
	if err := writeTrainingCSV(stagingPath, rows); err != nil {
		return "", fmt.Errorf("failed to write staging file: %w", err)
	}

	// Horizon covers exactly the requested window: the day gap between the
	// end date and the last known training day, plus one.
	futureStep := 0
	if endDate != nil {
		latest := rows[len(rows)-1].Date
		futureStep = int(endDate.Sub(latest).Hours()/24) + 1
	}

	req := dispatcher.JobRequest{
		FilePath:   stagingPath,
		ProductID:  productID,
		FutureStep: futureStep,
	}
	if startDate != nil {
		req.StartDate = startDate.Format(models.DateOnly)
	}
	if endDate != nil {
		req.EndDate = endDate.Format(models.DateOnly)
	}

	jobID, err := s.dispatcher.Submit(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to submit forecast job: %w", err)
	}

	s.logger.Info("Forecast job dispatched",
		zap.String("job_id", jobID),
		zap.String("product_id", productID),
		zap.Int("future_step", futureStep),
		zap.Int("training_rows", len(rows)))
	return jobID, nil
}

// TaskStatus is a read-through to the dispatcher
func (s *ForecastService) TaskStatus(ctx context.Context, jobID string) (dispatcher.JobStatus, error) {
	return s.dispatcher.Status(ctx, jobID)
}

// StoreForecast is the single write path for forecast results, called by
// the worker's completion delivery. Duplicate deliveries for the same job
// id are absorbed without writing a second batch.
func (s *ForecastService) StoreForecast(ctx context.Context, req models.StoreForecastRequest) error {
	ctx, span := util.StartSpan(ctx, "ForecastService.StoreForecast")
	defer span.End()

	if req.JobID == "" {
		// No dedup key supplied; the batch is stored under a fresh run.
		req.JobID = uuid.New().String()
	}

	runID, created, err := s.forecasts.StoreForecast(ctx, req.JobID, req.ProductID, req.Results)
	if err != nil {
		return fmt.Errorf("failed to persist forecast: %w", err)
	}

	if !created {
		s.logger.Info("Duplicate forecast delivery ignored",
			zap.String("job_id", req.JobID),
			zap.Int64("run_id", runID))
		return nil
	}

	util.ForecastRowsStoredTotal.Add(float64(len(req.Results)))
	s.logger.Info("Forecast stored",
		zap.String("job_id", req.JobID),
		zap.Int64("run_id", runID),
		zap.String("product_id", req.ProductID),
		zap.Int("rows", len(req.Results)))
	return nil
}

// ForecastHistory returns every persisted forecast row
func (s *ForecastService) ForecastHistory(ctx context.Context) ([]models.ForecastEntry, error) {
	return s.forecasts.GetForecastHistory(ctx)
}

// ForecastRunByID returns the rows of one forecast run
func (s *ForecastService) ForecastRunByID(ctx context.Context, runID int64) ([]models.ForecastEntry, error) {
	entries, err := s.forecasts.GetForecastRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no forecast data for id %d: %w", runID, ErrNotFound)
	}
	return entries, nil
}

// ForecastsByProduct returns all forecast rows for a product
func (s *ForecastService) ForecastsByProduct(ctx context.Context, productID string) ([]models.ForecastEntry, error) {
	entries, err := s.forecasts.GetForecastsByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no forecast data for product %s: %w", productID, ErrNotFound)
	}
	return entries, nil
}

// TrainData returns training rows for a product within an optional
// inclusive date range
func (s *ForecastService) TrainData(ctx context.Context, productID string, start, end *time.Time) ([]models.TrainingEntry, error) {
	rows, err := s.training.GetTrainingData(ctx, productID, start, end)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no train data for product %s: %w", productID, ErrNotFound)
	}

	entries := make([]models.TrainingEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, models.TrainingEntry{
			ProductID: r.ProductID,
			Date:      r.Date.Format(models.DateOnly),
			Quantity:  r.Quantity,
		})
	}
	return entries, nil
}

// WriteAllTrainingCSV streams the whole training dataset as CSV. One
// conversion pass; nothing is buffered beyond the csv writer.
func (s *ForecastService) WriteAllTrainingCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.training.GetAllTrainingData(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"product_id", "date", "quantity"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.ProductID,
			r.Date.Format(models.DateOnly),
			strconv.FormatFloat(r.Quantity, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeTrainingCSV materializes the staging file a forecast job reads
func writeTrainingCSV(path string, rows []models.TrainingRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"product_id", "date", "quantity"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.ProductID,
			r.Date.Format(models.DateOnly),
			strconv.FormatFloat(r.Quantity, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return f.Sync()
}
