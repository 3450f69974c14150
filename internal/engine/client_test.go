package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDecodesForecast(t *testing.T) {
	var gotBody runRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/run", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"future_forecast":[
			{"TANGGAL":"2024-01-01","TOTAL_JUMLAH":12.5},
			{"TANGGAL":"2024-01-02","TOTAL_JUMLAH":9}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	rows, err := client.Run(context.Background(), "/data/train_abc.csv", "P001", 11)
	require.NoError(t, err)

	assert.Equal(t, "/data/train_abc.csv", gotBody.FilePath)
	assert.Equal(t, "P001", gotBody.ProductID)
	assert.Equal(t, 11, gotBody.FutureStep)

	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01-01", rows[0].Date)
	assert.Equal(t, 12.5, rows[0].Quantity)
}

func TestRunEmptyForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"future_forecast":[]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	rows, err := client.Run(context.Background(), "f.csv", "P001", 365)
	require.NoError(t, err)
	assert.Empty(t, rows, "empty result is returned as-is; the worker decides it is a failure")
}

func TestRunEngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "pipeline blew up", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	_, err := client.Run(context.Background(), "f.csv", "P001", 365)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline blew up")
}
