package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shockstudy/internal/config"
	"shockstudy/internal/infrastructure"
	"shockstudy/internal/operations"
	"shockstudy/internal/shared/testutil"
)

const testDate = "2021-03-23"

func newTestRouter(t *testing.T) (http.Handler, *config.Paths) {
	t.Helper()
	paths, err := config.NewPaths(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirectories())

	require.NoError(t, testutil.WriteCSVFile(paths.TablePath(config.TableDiD, testDate),
		[]string{"term", "coef", "std_err", "pval"},
		[][]string{{"TreatedFlag:Post", "-0.0123", "0.004", "0.002"}}))
	require.NoError(t, os.WriteFile(paths.TablePath(config.TableTreatedNote, testDate),
		[]byte("Treated CAR(5) mean -0.021\nDefensive CAR(5) mean 0.003\n"), 0644))

	m := operations.NewManifest("run-abc", testDate)
	m.RecordStageStart(config.StageDiD, "Difference-in-differences")
	m.RecordStageCompletion(config.StageDiD, operations.StageOutput{Processed: 40})
	m.Finish()
	require.NoError(t, m.SaveToFile(paths.ManifestPath(testDate)))

	providers, err := infrastructure.InitializeOTel(config.TelemetryConfig{EnableMetrics: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = providers.Shutdown(context.Background()) })

	logger, _ := testutil.NewTestLogger(t)
	return NewRouter(RouterConfig{Paths: paths, Providers: providers, Logger: logger, Version: "test"}), paths
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestRouterStatusCodes(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "health", path: "/api/health", status: http.StatusOK},
		{name: "ready", path: "/api/health/ready", status: http.StatusOK},
		{name: "version", path: "/api/version", status: http.StatusOK},
		{name: "metrics", path: "/metrics", status: http.StatusOK},
		{name: "runs", path: "/api/runs", status: http.StatusOK},
		{name: "manifest", path: "/api/runs/" + testDate + "/manifest", status: http.StatusOK},
		{name: "unknown run", path: "/api/runs/2020-01-01/manifest", status: http.StatusNotFound},
		{name: "bad date", path: "/api/runs/yesterday/tables", status: http.StatusBadRequest},
		{name: "bad table name", path: "/api/runs/" + testDate + "/tables/bad.name", status: http.StatusBadRequest},
		{name: "missing report", path: "/api/runs/" + testDate + "/report", status: http.StatusNotFound},
		{name: "unknown route", path: "/nope", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, router, tt.path)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestGetTable(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := get(t, router, "/api/runs/"+testDate+"/tables/"+config.TableDiD)
	require.Equal(t, http.StatusOK, rec.Code)
	var table TableResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	assert.Equal(t, []string{"term", "coef", "std_err", "pval"}, table.Headers)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "TreatedFlag:Post", table.Rows[0][0])

	rec = get(t, router, "/api/runs/"+testDate+"/tables/treated_vs_defensive")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	assert.Equal(t, []string{"note"}, table.Headers)
	assert.Len(t, table.Rows, 2)
}

func TestMissingTableNamesProducer(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := get(t, router, "/api/runs/"+testDate+"/tables/"+config.TableVolSummary)
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "TABLE_NOT_FOUND", body["error_code"])
	details, ok := body["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, config.StageVolatility, details["produced_by"])
}

func TestListRunsAndTables(t *testing.T) {
	router, _ := newTestRouter(t)

	runs := decode(t, get(t, router, "/api/runs"))
	assert.EqualValues(t, 1, runs["count"])
	first := runs["runs"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, testDate, first["event_date"])
	assert.Equal(t, []interface{}{config.StageDiD}, first["completed_stages"])

	tables := decode(t, get(t, router, "/api/runs/"+testDate+"/tables"))
	assert.EqualValues(t, 2, tables["count"])
}

func TestReadinessFailsWithoutResultsTree(t *testing.T) {
	paths, err := config.NewPaths(t.TempDir())
	require.NoError(t, err)
	router := NewRouter(RouterConfig{Paths: paths})

	rec := get(t, router, "/api/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", decode(t, rec)["status"])
}

func TestReportDownload(t *testing.T) {
	router, paths := newTestRouter(t)
	require.NoError(t, os.WriteFile(paths.ReportPath(testDate), []byte("xlsx"), 0644))

	rec := get(t, router, "/api/runs/"+testDate+"/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "report_"+testDate+".xlsx")
}
