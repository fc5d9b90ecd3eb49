package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zombar/analyzer"
	"github.com/zombar/analyzer/db"
	"github.com/zombar/analyzer/fetch"
	"github.com/zombar/analyzer/keywords"
	"github.com/zombar/analyzer/metrics"
	"github.com/zombar/analyzer/models"
	"github.com/zombar/analyzer/ocr"
	"github.com/zombar/analyzer/sentiment"
	"github.com/zombar/analyzer/ssrf"
)

// maxUploadBytes bounds multipart image uploads.
const maxUploadBytes = 10 << 20

// Server represents the API server
type Server struct {
	db       *db.DB
	analyzer *analyzer.Analyzer
	selector *sentiment.Selector
	addr     string
	server   *http.Server
	mux      *http.ServeMux

	corsEnabled bool
}

// Config contains server configuration
type Config struct {
	Addr        string
	DBConfig    db.Config
	FetchConfig fetch.Config
	OCRConfig   ocr.Config
	HugotConfig sentiment.HugotConfig

	// EnableSmartTier loads the transformer model at first use. When false
	// smart requests silently use the lexicon tier.
	EnableSmartTier bool

	// AllowPrivateNetworks disables the private address guard on URL
	// fetches. Local development only.
	AllowPrivateNetworks bool

	CORSEnabled bool
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		DBConfig:    db.Config{Driver: "postgres"},
		FetchConfig: fetch.DefaultConfig(),
		OCRConfig:   ocr.DefaultConfig(),
		HugotConfig: sentiment.DefaultHugotConfig(),
		CORSEnabled: true,
	}
}

// NewServer creates a new API server
func NewServer(config Config) (*Server, error) {
	database, err := db.New(config.DBConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	metrics.RegisterDB(database.DB(), "analyzer")

	guard := ssrf.NewGuard(ssrf.Config{AllowPrivate: config.AllowPrivateNetworks})
	fetcher := fetch.New(config.FetchConfig, guard)
	recognizer := ocr.NewClient(config.OCRConfig)

	var classifier sentiment.ModelClassifier
	if config.EnableSmartTier {
		classifier = sentiment.NewHugotClassifier(config.HugotConfig)
	}
	selector := sentiment.NewSelector(classifier)

	pipeline := analyzer.New(fetcher, recognizer, selector, keywords.NewExtractor(0, 0), database)

	s := &Server{
		db:          database,
		analyzer:    pipeline,
		selector:    selector,
		addr:        config.Addr,
		mux:         http.NewServeMux(),
		corsEnabled: config.CORSEnabled,
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.middleware(s.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.Handler().ServeHTTP(w, r)
	})
	s.mux.HandleFunc("/api/analyze/text", s.handleAnalyzeText)
	s.mux.HandleFunc("/api/analyze/url", s.handleAnalyzeURL)
	s.mux.HandleFunc("/api/analyze/image", s.handleAnalyzeImage)
	s.mux.HandleFunc("/api/analyses/", s.handleGetAnalysis) // Handles /api/analyses/{id}
	s.mux.HandleFunc("/api/analyses", s.handleListAnalyses)
}

// Start starts the API server
func (s *Server) Start() error {
	slog.Info("starting API server", slog.String("addr", s.addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down API server")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.db.Close()
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			slog.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("elapsed", time.Since(start)))
			metrics.ObserveHTTP(routeLabel(r.URL.Path), r.Method, rec.status, time.Since(start))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// routeLabel collapses id-bearing paths to keep metric cardinality bounded.
func routeLabel(path string) string {
	if strings.HasPrefix(path, "/api/analyses/") {
		return "/api/analyses/{id}"
	}
	return path
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.db.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  "database unreachable",
		})
		return
	}

	count, err := s.db.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get count")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"count":      count,
		"smart_tier": s.selector.SmartAvailable(),
		"time":       time.Now().UTC(),
	})
}

// AnalyzeTextRequest represents a text analysis request
type AnalyzeTextRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

// AnalyzeURLRequest represents a URL analysis request
type AnalyzeURLRequest struct {
	URL  string `json:"url"`
	Mode string `json:"mode"`
}

// handleAnalyzeText analyzes raw text submitted in the request body
func (s *Server) handleAnalyzeText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req AnalyzeTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.runAnalysis(w, r, analyzer.Request{
		SourceType: models.SourceText,
		Mode:       models.AnalysisMode(req.Mode),
		Text:       req.Text,
	})
}

// handleAnalyzeURL fetches a URL and analyzes its article text
func (s *Server) handleAnalyzeURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req AnalyzeURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()
	r = r.WithContext(ctx)

	s.runAnalysis(w, r, analyzer.Request{
		SourceType: models.SourceURL,
		Mode:       models.AnalysisMode(req.Mode),
		URL:        req.URL,
	})
}

// handleAnalyzeImage accepts a multipart upload and analyzes the OCR text
func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	blob, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if len(blob) > maxUploadBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	s.runAnalysis(w, r, analyzer.Request{
		SourceType: models.SourceImage,
		Mode:       models.AnalysisMode(r.FormValue("mode")),
		Blob:       blob,
		Filename:   header.Filename,
	})
}

// runAnalysis executes the pipeline and maps pipeline errors onto HTTP
// status codes.
func (s *Server) runAnalysis(w http.ResponseWriter, r *http.Request, req analyzer.Request) {
	record, err := s.analyzer.Analyze(r.Context(), req)
	if err == nil {
		respondJSON(w, http.StatusCreated, record)
		return
	}

	var (
		vErr *analyzer.ValidationError
		nErr *analyzer.NormalizationError
		sErr *ssrf.Error
		fErr *fetch.Error
		pErr *analyzer.PersistenceError
	)

	switch {
	case errors.As(err, &vErr):
		respondErrorCode(w, http.StatusBadRequest, vErr.Code, vErr.Msg)
	case errors.As(err, &sErr):
		respondErrorCode(w, http.StatusBadRequest, string(sErr.Reason), sErr.Error())
	case errors.As(err, &nErr):
		respondErrorCode(w, http.StatusBadRequest, nErr.Code, nErr.Msg)
	case errors.As(err, &fErr):
		respondErrorCode(w, http.StatusBadGateway, string(fErr.Code), fErr.Error())
	case errors.As(err, &pErr):
		// Analysis succeeded; only the write failed. Return the computed
		// result so the caller does not lose the work.
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":  "failed to persist analysis",
			"result": record,
		})
	default:
		respondError(w, http.StatusInternalServerError, "analysis failed")
	}
}

// handleGetAnalysis retrieves a single record by ID
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/analyses/")
	if id == "" || strings.Contains(id, "/") {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	record, err := s.db.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, "analysis not found")
		return
	}

	respondJSON(w, http.StatusOK, record)
}

// handleListAnalyses lists records with pagination, newest first
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &limit)
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		fmt.Sscanf(offsetStr, "%d", &offset)
	}

	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	filter := db.Filter{Limit: limit, Offset: offset}
	if st := r.URL.Query().Get("source_type"); st != "" {
		sourceType := models.SourceType(st)
		if !sourceType.Valid() {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown source type %q", st))
			return
		}
		filter.SourceType = sourceType
	}

	records, total, err := s.db.List(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	if records == nil {
		records = []*models.AnalysisRecord{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":   records,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondErrorCode sends an error response with a machine-readable code
func respondErrorCode(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
