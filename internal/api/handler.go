package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/amadeling/kp-forecasting-bma/internal/models"
	"github.com/amadeling/kp-forecasting-bma/internal/service"
	"github.com/amadeling/kp-forecasting-bma/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	svc       *service.ForecastService
	outputDir string
}

// NewHandler creates a new HTTP handler
func NewHandler(svc *service.ForecastService, outputDir string) *Handler {
	return &Handler{
		svc:       svc,
		outputDir: outputDir,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/upload/", h.upload)
	router.POST("/process-csv/", h.processCSV)
	router.GET("/task-status/:task_id", h.taskStatus)
	router.POST("/internal/store-forecast", h.storeForecast)

	// Registered without the trailing slash so the :id route can share the
	// prefix; gin redirects /forecast-history/ here.
	router.GET("/forecast-history", h.forecastHistory)
	router.GET("/forecast-history/:id", h.forecastByID)
	router.GET("/forecast/:product_id", h.forecastByProduct)
	router.GET("/train-data/:product_id", h.trainData)
	router.GET("/all-train-data", h.allTrainData)
	router.GET("/download/:filename", h.download)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// upload handles training data file uploads
func (h *Handler) upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Missing file",
			"details": err.Error(),
		})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to read upload",
			"details": err.Error(),
		})
		return
	}
	defer src.Close()

	n, err := h.svc.Upload(c.Request.Context(), fileHeader.Filename, src)
	if err != nil {
		if service.IsClientError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to ingest upload",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "File uploaded and processed successfully",
		"rows":    n,
	})
}

// processCSV triggers an asynchronous forecast job
func (h *Handler) processCSV(c *gin.Context) {
	productID := c.Query("target_product_id")
	if productID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_product_id is required"})
		return
	}

	startDate, ok := dateQuery(c, "start_date")
	if !ok {
		return
	}
	endDate, ok := dateQuery(c, "end_date")
	if !ok {
		return
	}

	jobID, err := h.svc.ProcessCSV(c.Request.Context(), productID, startDate, endDate)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to submit forecast job",
			"details": err.Error(),
		})
		return
	}

	// Accepted, not completed: the computation runs in the worker.
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Forecast task submitted",
		"task_id": jobID,
	})
}

// taskStatus reads job lifecycle state; no side effects
func (h *Handler) taskStatus(c *gin.Context) {
	status, err := h.svc.TaskStatus(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to read task status",
			"details": err.Error(),
		})
		return
	}

	resp := gin.H{"state": status.State}
	switch status.State {
	case models.JobStateSuccess:
		resp["result"] = status.Result
	case models.JobStateFailure:
		resp["error"] = status.Error
	default:
		resp["status"] = status.Status
	}
	c.JSON(http.StatusOK, resp)
}

// storeForecast is the internal write path used by the worker
func (h *Handler) storeForecast(c *gin.Context) {
	var req models.StoreForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.svc.StoreForecast(c.Request.Context(), req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to store forecast",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// forecastHistory returns every persisted forecast row
func (h *Handler) forecastHistory(c *gin.Context) {
	entries, err := h.svc.ForecastHistory(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load forecast history",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// forecastByID returns the rows of one forecast run
func (h *Handler) forecastByID(c *gin.Context) {
	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid forecast id"})
		return
	}

	entries, err := h.svc.ForecastRunByID(c.Request.Context(), runID)
	if err != nil {
		h.queryError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// forecastByProduct returns all forecast rows for a product
func (h *Handler) forecastByProduct(c *gin.Context) {
	entries, err := h.svc.ForecastsByProduct(c.Request.Context(), c.Param("product_id"))
	if err != nil {
		h.queryError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// trainData returns training rows for a product within an optional range
func (h *Handler) trainData(c *gin.Context) {
	start, ok := dateQuery(c, "start_date")
	if !ok {
		return
	}
	end, ok := dateQuery(c, "end_date")
	if !ok {
		return
	}

	entries, err := h.svc.TrainData(c.Request.Context(), c.Param("product_id"), start, end)
	if err != nil {
		h.queryError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// allTrainData streams the full training dataset as CSV
func (h *Handler) allTrainData(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename=train_data.csv`)
	c.Status(http.StatusOK)

	if err := h.svc.WriteAllTrainingCSV(c.Request.Context(), c.Writer); err != nil {
		// Headers are already out; nothing left but to drop the connection.
		_ = c.Error(err)
	}
}

// download streams a generated file from the output directory
func (h *Handler) download(c *gin.Context) {
	filename := c.Param("filename")
	if filename != filepath.Base(filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filename"})
		return
	}

	path := filepath.Join(h.outputDir, filename)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	c.FileAttachment(path, filename)
}

// queryError maps service errors on read paths to HTTP status codes
func (h *Handler) queryError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Query failed",
		"details": err.Error(),
	})
}

// dateQuery parses an optional YYYY-MM-DD query parameter. On a malformed
// value it writes a 400 response and reports false.
func dateQuery(c *gin.Context, name string) (*time.Time, bool) {
	value := c.Query(name)
	if value == "" {
		return nil, true
	}

	d, err := time.Parse(models.DateOnly, value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be YYYY-MM-DD"})
		return nil, false
	}
	return &d, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
