// Package server exposes imports, analytics, export and verification over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/analytics"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/export"
	"github.com/Veraticus/tally/internal/ingest"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/reconcile"
	"github.com/Veraticus/tally/internal/telemetry"
	"github.com/go-chi/chi/v5"
)

// UserHeader names the importing user.
const UserHeader = "X-User-ID"

// DefaultMaxUploadBytes bounds a multipart upload.
const DefaultMaxUploadBytes = 32 << 20

// Store is the batch surface the API reads and deletes through.
type Store interface {
	GetImportBatch(ctx context.Context, id string) (*model.ImportBatch, error)
	ListImportBatches(ctx context.Context, filter model.BatchFilter) ([]model.ImportBatch, error)
	DeleteImportBatch(ctx context.Context, id string) error
}

// Config wires the server's collaborators. Fetcher and Metrics are optional.
type Config struct {
	Store          Store
	Ingest         *ingest.Service
	Analyzer       *analytics.Analyzer
	Checker        *reconcile.Checker
	Fetcher        ingest.Fetcher
	Metrics        *telemetry.Metrics
	Logger         *slog.Logger
	DefaultUser    string
	MaxUploadBytes int64
}

// Server is the HTTP API.
type Server struct {
	store       Store
	ingest      *ingest.Service
	analyzer    *analytics.Analyzer
	checker     *reconcile.Checker
	fetcher     ingest.Fetcher
	metrics     *telemetry.Metrics
	logger      *slog.Logger
	router      chi.Router
	defaultUser string
	maxUpload   int64
}

// New builds the server and its routes.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	s := &Server{
		store:       cfg.Store,
		ingest:      cfg.Ingest,
		analyzer:    cfg.Analyzer,
		checker:     cfg.Checker,
		fetcher:     cfg.Fetcher,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.With("component", "server"),
		defaultUser: cfg.DefaultUser,
		maxUpload:   cfg.MaxUploadBytes,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	mux := chi.NewRouter()
	mux.Use(RequestID)
	mux.Use(Logger(s.logger, s.metrics))

	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		mux.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	mux.Route("/api", func(r chi.Router) {
		r.Post("/imports", s.handleCreateImport)
		r.Get("/imports", s.handleListImports)
		r.Post("/sync/ga4", s.handleSync)

		r.Route("/imports/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetImport)
			r.Delete("/", s.handleDeleteImport)
			r.Get("/analytics", s.handleAnalytics)
			r.Get("/export", s.handleExport)
			r.Get("/verify", s.handleVerify)
		})
	})
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) user(r *http.Request) string {
	if u := strings.TrimSpace(r.Header.Get(UserHeader)); u != "" {
		return u
	}
	return s.defaultUser
}

type importRequest struct {
	Files  map[string]string `json:"files"`
	DryRun bool              `json:"dryRun"`
}

func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, err = s.readMultipart(r)
	} else {
		err = decodeJSON(r, &req, s.maxUpload)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Files) == 0 {
		s.writeError(w, r, common.NewUserError("no files in request", common.ErrEmptyImport))
		return
	}

	result, err := s.ingest.Import(r.Context(), ingest.Request{
		Files:  req.Files,
		UserID: s.user(r),
		DryRun: req.DryRun,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if req.DryRun {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (s *Server) readMultipart(r *http.Request) (importRequest, error) {
	req := importRequest{Files: make(map[string]string)}
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return req, badRequest(fmt.Sprintf("invalid multipart body: %v", err))
	}
	req.DryRun, _ = strconv.ParseBool(r.FormValue("dryRun"))

	for _, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			if _, dup := req.Files[fh.Filename]; dup {
				return req, common.NewUserError(fmt.Sprintf("two uploads share the name %q", fh.Filename), common.ErrDuplicateEntry)
			}
			f, err := fh.Open()
			if err != nil {
				return req, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
			}
			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				return req, fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
			}
			req.Files[fh.Filename] = string(data)
		}
	}
	return req, nil
}

type syncRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.fetcher == nil {
		s.writeError(w, r, fmt.Errorf("ga4 sync is not configured: %w", common.ErrMissingConfig))
		return
	}
	var req syncRequest
	if err := decodeJSON(r, &req, 1<<16); err != nil {
		s.writeError(w, r, err)
		return
	}
	start, err := time.Parse(model.DateLayout, req.Start)
	if err != nil {
		s.writeError(w, r, badRequest("start must be YYYY-MM-DD"))
		return
	}
	end, err := time.Parse(model.DateLayout, req.End)
	if err != nil {
		s.writeError(w, r, badRequest("end must be YYYY-MM-DD"))
		return
	}

	result, err := s.ingest.Sync(r.Context(), s.user(r), s.fetcher, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	filter := model.BatchFilter{Limit: 50}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, badRequest("limit must be a positive integer"))
			return
		}
		filter.Limit = n
	}
	if v := q.Get("status"); v != "" {
		status := model.ImportStatus(strings.ToUpper(v))
		if !status.IsValid() {
			s.writeError(w, r, badRequest(fmt.Sprintf("unknown status %q", v)))
			return
		}
		filter.Status = status
	}

	batches, err := s.store.ListImportBatches(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if batches == nil {
		batches = []model.ImportBatch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"imports": batches})
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	batch, err := s.store.GetImportBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleDeleteImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteImportBatch(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	common.LogInfo(r.Context(), "import deleted", common.Fields{"import_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) report(r *http.Request) (*model.AnalyticsReport, error) {
	analyzer := s.analyzer
	if v := r.URL.Query().Get("window"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			return nil, badRequest("window must be a positive number of days")
		}
		analyzer = analyzer.WithWindow(days)
	}
	return analyzer.Analyze(r.Context(), chi.URLParam(r, "id"))
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	report, err := s.report(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil || format == export.FormatSheets {
		s.writeError(w, r, badRequest("format must be json or csv"))
		return
	}
	report, err := s.report(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch format {
	case export.FormatCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="import-%s.csv"`, report.ImportID))
		err = export.WriteCSV(w, report)
	default:
		w.Header().Set("Content-Type", "application/json")
		err = export.WriteJSON(w, report)
	}
	if err != nil {
		common.LogError(r.Context(), err, "export failed mid-stream", common.Fields{"import_id": report.ImportID})
	}
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	batch, err := s.store.GetImportBatch(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.checker.Verify(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"import":       batch,
		"verification": v,
	})
}
