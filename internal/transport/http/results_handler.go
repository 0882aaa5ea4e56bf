package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"shockstudy/internal/config"
	apierrors "shockstudy/internal/errors"
	"shockstudy/internal/operations"
)

type ctxKey string

const eventDateKey ctxKey = "event_date"

// xlsxContentType is the media type of the report workbook
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ResultsHandler serves the artifacts of completed runs
type ResultsHandler struct {
	paths        *config.Paths
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewResultsHandler creates a results handler over the given results tree
func NewResultsHandler(paths *config.Paths, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ResultsHandler {
	return &ResultsHandler{
		paths:        paths,
		logger:       logger.With(slog.String("component", "results_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the run routes
func (h *ResultsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListRuns)
	r.Route("/{date}", func(r chi.Router) {
		r.Use(h.EventDateCtx)
		r.Get("/manifest", h.GetManifest)
		r.Get("/tables", h.ListTables)
		r.Get("/tables/{table}", h.GetTable)
		r.Get("/report", h.DownloadReport)
	})
	return r
}

// EventDateCtx validates the {date} parameter
func (h *ResultsHandler) EventDateCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		date := chi.URLParam(r, "date")
		if _, err := time.Parse(config.DateLayout, date); err != nil {
			h.errorHandler.HandleError(w, r, apierrors.InvalidParameterError("date", err))
			return
		}
		ctx := context.WithValue(r.Context(), eventDateKey, date)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func eventDate(r *http.Request) string {
	date, _ := r.Context().Value(eventDateKey).(string)
	return date
}

// RunSummary is one entry of the run listing
type RunSummary struct {
	EventDate string    `json:"event_date"`
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"start_time"`
	Stages    []string  `json:"completed_stages"`
}

// ListRuns handles GET /api/runs, newest event date first
func (h *ResultsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	matches, err := filepath.Glob(filepath.Join(h.paths.ReportsDir, "manifest_*.json"))
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.FileSystemError("list manifests", err))
		return
	}

	runs := make([]RunSummary, 0, len(matches))
	for _, path := range matches {
		m, err := operations.LoadManifest(path)
		if err != nil {
			h.logger.WarnContext(r.Context(), "skipping unreadable manifest",
				slog.String("path", path),
				slog.String("error", err.Error()),
				slog.String("request_id", middleware.GetReqID(r.Context())))
			continue
		}
		run := RunSummary{EventDate: m.EventDate, RunID: m.RunID, Status: m.Status, StartTime: m.StartTime}
		for _, s := range m.Stages {
			if s.Status == string(operations.StageStatusCompleted) {
				run.Stages = append(run.Stages, s.StageID)
			}
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].EventDate > runs[j].EventDate })

	render.JSON(w, r, map[string]interface{}{"runs": runs, "count": len(runs)})
}

// GetManifest handles GET /api/runs/{date}/manifest
func (h *ResultsHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	date := eventDate(r)
	path := h.paths.ManifestPath(date)
	if !config.FileExists(path) {
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(http.StatusNotFound, "RUN_NOT_FOUND",
			fmt.Sprintf("no run recorded for event %s", date), map[string]string{"event_date": date}))
		return
	}
	m, err := operations.LoadManifest(path)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.FileSystemError("read manifest", err))
		return
	}
	render.JSON(w, r, m)
}

// TableInfo describes one result file of a run
type TableInfo struct {
	Name       string `json:"name"`
	File       string `json:"file"`
	ProducedBy string `json:"produced_by,omitempty"`
	Size       int64  `json:"size"`
}

// ListTables handles GET /api/runs/{date}/tables
func (h *ResultsHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	date := eventDate(r)
	suffix := "_" + date

	entries, err := os.ReadDir(h.paths.TablesDir)
	if err != nil && !os.IsNotExist(err) {
		h.errorHandler.HandleError(w, r, apierrors.FileSystemError("list tables", err))
		return
	}

	tables := make([]TableInfo, 0)
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		base := strings.TrimSuffix(e.Name(), ext)
		if e.IsDir() || (ext != ".csv" && ext != ".txt") || !strings.HasSuffix(base, suffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(base, suffix)
		tables = append(tables, TableInfo{
			Name:       name,
			File:       e.Name(),
			ProducedBy: config.ProducedBy(name),
			Size:       info.Size(),
		})
	}

	render.JSON(w, r, map[string]interface{}{"event_date": date, "tables": tables, "count": len(tables)})
}

// TableResponse is a result table rendered as JSON
type TableResponse struct {
	Name      string     `json:"name"`
	EventDate string     `json:"event_date"`
	Headers   []string   `json:"headers"`
	Rows      [][]string `json:"rows"`
}

// GetTable handles GET /api/runs/{date}/tables/{table}
func (h *ResultsHandler) GetTable(w http.ResponseWriter, r *http.Request) {
	date := eventDate(r)
	name := chi.URLParam(r, "table")
	if name == "" || strings.ContainsAny(name, `/\.`) {
		h.errorHandler.HandleError(w, r, apierrors.InvalidParameterError("table",
			fmt.Errorf("table name %q is not valid", name)))
		return
	}

	path := h.tableFile(name, date)
	if path == "" {
		err := apierrors.TableNotFoundError(name, date)
		if stage := config.ProducedBy(name); stage != "" {
			err.Details = map[string]string{"table": name, "event_date": date, "produced_by": stage}
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}

	table, err := operations.ReadTable(path, name)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, TableResponse{Name: name, EventDate: date, Headers: table.Headers, Rows: table.Rows})
}

// tableFile returns the existing .csv or .txt file of a table, or ""
func (h *ResultsHandler) tableFile(name, date string) string {
	for _, candidate := range []string{name, name + ".txt"} {
		path := h.paths.TablePath(candidate, date)
		if config.IsSubPath(h.paths.TablesDir, path) && config.FileExists(path) {
			return path
		}
	}
	return ""
}

// DownloadReport handles GET /api/runs/{date}/report
func (h *ResultsHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	date := eventDate(r)
	path := h.paths.ReportPath(date)
	if !config.FileExists(path) {
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(http.StatusNotFound, "REPORT_NOT_FOUND",
			fmt.Sprintf("no report for event %s", date),
			map[string]string{"event_date": date, "produced_by": config.StageReport}))
		return
	}

	h.logger.InfoContext(r.Context(), "serving report",
		slog.String("path", path),
		slog.String("request_id", middleware.GetReqID(r.Context())))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}
