package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otapush/acquisition/internal/metrics"
	"github.com/otapush/acquisition/internal/models"
	"github.com/otapush/acquisition/internal/storage"
)

func seedRelease(store *storage.MemoryStorage) {
	store.AddRelease("D1", models.Release{
		Label:       "v1",
		AppVersion:  "1.0.0",
		PackageHash: "H1",
		BlobURL:     "https://cdn.example.com/bundles/H1",
		Size:        1024,
		UploadTime:  time.Now().UnixMilli(),
	})
}

func TestUpdateCheckRoute_Legacy(t *testing.T) {
	srv, store, _ := newTestServer(t)
	seedRelease(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/updateCheck?deploymentKey=D1&appVersion=1.0.0", nil)
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp models.LegacyUpdateCheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.UpdateInfo.IsAvailable)
	assert.Equal(t, "v1", resp.UpdateInfo.Label)
	assert.Contains(t, w.Body.String(), `"updateInfo"`)
	assert.Contains(t, w.Body.String(), `"downloadURL"`)
}

func TestUpdateCheckRoute_NewShape(t *testing.T) {
	srv, store, _ := newTestServer(t)
	seedRelease(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v0.1/public/codepush/update_check?deployment_key=D1&app_version=1.0.0", nil)
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp models.UpdateCheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.UpdateInfo.IsAvailable)
	assert.Equal(t, "v1", resp.UpdateInfo.Label)
	assert.Contains(t, w.Body.String(), `"update_info"`)
	assert.Contains(t, w.Body.String(), `"download_url"`)
}

func TestUpdateCheckRoute_MissingDeploymentKey(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/updateCheck?appVersion=1.0.0", nil)
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "deployment key")
}

func TestReportDownloadRoute(t *testing.T) {
	srv, _, mr := newTestServer(t)

	body := strings.NewReader(`{"deploymentKey":"D1","label":"v1"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reportStatus/download", body)
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.handler.Drain(ctx))

	assert.Equal(t, "1", mr.DB(1).HGet(metrics.LabelsKey("D1"), "v1:Downloaded"))
}

func TestReportDeployRoute_NewMetricsPath(t *testing.T) {
	srv, _, mr := newTestServer(t)

	body := strings.NewReader(`{"deployment_key":"D1","app_version":"1.0.0","label":"v2","status":"DeploymentSucceeded"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v0.1/public/codepush/report_status/deploy", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CodePush-SDK-Version", "2.0.0")
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.handler.Drain(ctx))

	assert.Equal(t, "1", mr.DB(1).HGet(metrics.LabelsKey("D1"), "v2:DeploymentSucceeded"))
	assert.Equal(t, "1", mr.DB(1).HGet(metrics.LabelsKey("D1"), "v2:Active"))
}

func TestUnknownRoute(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
