package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amadeling/kp-forecasting-bma/internal/dispatcher"
	"github.com/amadeling/kp-forecasting-bma/internal/models"
	"github.com/amadeling/kp-forecasting-bma/internal/preprocess"
	"github.com/amadeling/kp-forecasting-bma/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrainingStore struct {
	records []models.TrainingRecord
}

func (f *fakeTrainingStore) AppendTrainingRecords(_ context.Context, records []models.TrainingRecord) (int, error) {
	f.records = append(f.records, records...)
	return len(records), nil
}

func (f *fakeTrainingStore) GetTrainingData(_ context.Context, productID string, start, end *time.Time) ([]models.TrainingRecord, error) {
	var out []models.TrainingRecord
	for _, r := range f.records {
		if r.ProductID != productID {
			continue
		}
		if start != nil && r.Date.Before(*start) {
			continue
		}
		if end != nil && r.Date.After(*end) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeTrainingStore) GetTrainingDataUpTo(ctx context.Context, productID string, cutoff *time.Time) ([]models.TrainingRecord, error) {
	return f.GetTrainingData(ctx, productID, nil, cutoff)
}

func (f *fakeTrainingStore) GetAllTrainingData(_ context.Context) ([]models.TrainingRecord, error) {
	return f.records, nil
}

type fakeForecastStore struct {
	runs    map[string]int64
	entries []models.ForecastEntry
	nextRun int64
}

func (f *fakeForecastStore) StoreForecast(_ context.Context, jobID, productID string, rows []models.ForecastPoint) (int64, bool, error) {
	if runID, ok := f.runs[jobID]; ok {
		return runID, false, nil
	}
	f.nextRun++
	f.runs[jobID] = f.nextRun
	for _, row := range rows {
		f.entries = append(f.entries, models.ForecastEntry{
			ID:               int64(len(f.entries) + 1),
			RunID:            f.nextRun,
			ProductID:        productID,
			Date:             row.Date,
			ForecastQuantity: row.Quantity,
		})
	}
	return f.nextRun, true, nil
}

func (f *fakeForecastStore) GetForecastHistory(_ context.Context) ([]models.ForecastEntry, error) {
	return f.entries, nil
}

func (f *fakeForecastStore) GetForecastRun(_ context.Context, runID int64) ([]models.ForecastEntry, error) {
	var out []models.ForecastEntry
	for _, e := range f.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeForecastStore) GetForecastsByProduct(_ context.Context, productID string) ([]models.ForecastEntry, error) {
	var out []models.ForecastEntry
	for _, e := range f.entries {
		if e.ProductID == productID {
			out = append(out, e)
		}
	}
	return out, nil
}

type testEnv struct {
	router    *gin.Engine
	training  *fakeTrainingStore
	disp      *dispatcher.Memory
	outputDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	training := &fakeTrainingStore{}
	forecasts := &fakeForecastStore{runs: make(map[string]int64)}
	disp := dispatcher.NewMemory()
	outputDir := t.TempDir()

	svc := service.NewForecastService(training, forecasts, disp, preprocess.New(), t.TempDir(), t.TempDir())

	router := gin.New()
	NewHandler(svc, outputDir).SetupRoutes(router)

	return &testEnv{router: router, training: training, disp: disp, outputDir: outputDir}
}

func (e *testEnv) do(t *testing.T, method, url string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, url, body)
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func trainDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(models.DateOnly, s)
	require.NoError(t, err)
	return d
}

func TestUploadEndpoint(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "sales.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("product_id,date,quantity\nP001,2024-01-01,3\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := env.do(t, http.MethodPost, "/upload/", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env.training.records, 1)
}

func TestUploadEndpointBadFile(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "sales.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("garbage,columns\n1,2\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := env.do(t, http.MethodPost, "/upload/", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, w.Code, "validation failure is a client error")
}

func TestProcessCSVEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.training.records = []models.TrainingRecord{
		{ProductID: "P001", Date: trainDay(t, "2023-12-31"), Quantity: 7},
	}

	w := env.do(t, http.MethodPost,
		"/process-csv/?target_product_id=P001&start_date=2024-01-01&end_date=2024-01-10", nil, "")
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Message string `json:"message"`
		TaskID  string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.TaskID)

	req, ok := env.disp.Job(resp.TaskID)
	require.True(t, ok)
	assert.Equal(t, 11, req.FutureStep)
}

func TestProcessCSVEndpointValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/process-csv/", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "target_product_id is required")

	w = env.do(t, http.MethodPost, "/process-csv/?target_product_id=P001&start_date=junk", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/process-csv/?target_product_id=P404", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code, "no training data for the product")
}

func TestTaskStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.training.records = []models.TrainingRecord{
		{ProductID: "P001", Date: trainDay(t, "2023-12-31"), Quantity: 7},
	}

	w := env.do(t, http.MethodPost, "/process-csv/?target_product_id=P001", nil, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	var submitted struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))

	w = env.do(t, http.MethodGet, "/task-status/"+submitted.TaskID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.JobStatePending, status["state"])

	env.disp.Fail(submitted.TaskID, "forecast engine returned no result")
	w = env.do(t, http.MethodGet, "/task-status/"+submitted.TaskID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.JobStateFailure, status["state"])
	assert.NotEmpty(t, status["error"], "a failed job must surface its error description")
}

func TestStoreForecastThenQueryEndpoints(t *testing.T) {
	env := newTestEnv(t)

	payload := bytes.NewBufferString(`{
		"job_id": "job-1",
		"product_id": "P001",
		"results": [
			{"TANGGAL": "2024-01-01", "TOTAL_JUMLAH": 10},
			{"TANGGAL": "2024-01-02", "TOTAL_JUMLAH": 12}
		]
	}`)
	w := env.do(t, http.MethodPost, "/internal/store-forecast", payload, "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/forecast/P001", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []models.ForecastEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "2024-01-01", entries[0].Date)
	assert.Equal(t, float64(10), entries[0].ForecastQuantity)

	w = env.do(t, http.MethodGet, "/forecast-history/1", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestForecastByProductNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/forecast/P404", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code, "empty result is 404, not an empty 200 list")
}

func TestTrainDataEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.training.records = []models.TrainingRecord{
		{ProductID: "P001", Date: trainDay(t, "2024-01-05"), Quantity: 7},
	}

	w := env.do(t, http.MethodGet, "/train-data/P001?start_date=2024-01-01&end_date=2024-01-31", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []models.TrainingEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "2024-01-05", entries[0].Date)

	// A range with no rows is a not-found, not an empty list.
	w = env.do(t, http.MethodGet, "/train-data/P001?start_date=2024-06-01&end_date=2024-06-30", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAllTrainDataEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.training.records = []models.TrainingRecord{
		{ProductID: "P001", Date: trainDay(t, "2024-01-05"), Quantity: 7},
	}

	w := env.do(t, http.MethodGet, "/all-train-data", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, strings.HasPrefix(w.Body.String(), "product_id,date,quantity\n"))
	assert.Contains(t, w.Body.String(), "P001,2024-01-05,7")
}

func TestDownloadEndpoint(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.outputDir, "report.csv"), []byte("a,b\n"), 0o644))

	w := env.do(t, http.MethodGet, "/download/report.csv", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "report.csv")

	w = env.do(t, http.MethodGet, "/download/missing.csv", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
