// Package httpapi serves the upload form, the analysis endpoint, and the
// small ops surface.
package httpapi

import (
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"pumpadvisor/internal/archive"
	"pumpadvisor/internal/config"
	"pumpadvisor/internal/llm"
	"pumpadvisor/internal/metrics"
	"pumpadvisor/internal/pipeline"
	"pumpadvisor/internal/settings"
	"pumpadvisor/internal/tabular"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Uploads are small CSV bundles; anything beyond this is rejected early.
const maxUploadBytes = 32 << 20

// Router builds the HTTP handlers.
type Router struct {
	cfg      config.Config
	analyzer *pipeline.Analyzer
	metrics  *metrics.Metrics
}

func NewRouter(cfg config.Config, analyzer *pipeline.Analyzer, m *metrics.Metrics) *Router {
	return &Router{cfg: cfg, analyzer: analyzer, metrics: m}
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", r.index)
	mux.HandleFunc("/analyze", r.analyze)
	mux.HandleFunc("/ops/health", r.health)
	mux.HandleFunc("/ops/metrics", r.metricsSnapshot)
}

type hourRow struct {
	Hour             int
	TimeRange        string
	BasalRate        float64
	CorrectionFactor string
	CarbRatio        string
	TargetBG         float64
}

func (r *Router) index(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		http.NotFound(w, req)
		return
	}
	rows := make([]hourRow, 0, settings.Hours)
	for hour, s := range settings.Defaults(r.cfg.Advisor) {
		rows = append(rows, hourRow{
			Hour:             hour,
			TimeRange:        s.TimeRange,
			BasalRate:        s.BasalRate,
			CorrectionFactor: s.CorrectionFactor,
			CarbRatio:        s.CarbRatio,
			TargetBG:         s.TargetBG,
		})
	}
	renderPage(w, "index.html.tmpl", map[string]any{"Hours": rows})
}

func (r *Router) analyze(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	// Validate settings before touching the archive so a bad form never
	// reaches the completion service.
	hourly, err := settings.Collect(url.Values(req.MultipartForm.Value), r.cfg.Advisor)
	if err != nil {
		respondError(w, err)
		return
	}

	file, header, err := req.FormFile("file")
	if err != nil {
		http.Error(w, "archive upload is required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := r.analyzer.Analyze(req.Context(), data, header.Filename, hourly)
	if err != nil {
		respondError(w, err)
		return
	}

	payload := map[string]any{"Recommendation": result.Recommendation}
	if len(result.ChartPNG) > 0 {
		payload["ChartData"] = base64.StdEncoding.EncodeToString(result.ChartPNG)
	}
	renderPage(w, "result.html.tmpl", payload)
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) metricsSnapshot(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, r.metrics.Snapshot())
}

// respondError maps the pipeline error taxonomy to user-visible messages.
// Each request is isolated; no error here is fatal to the service.
func respondError(w http.ResponseWriter, err error) {
	var status int
	var message string
	switch {
	case errors.Is(err, archive.ErrInvalidArchive):
		status, message = http.StatusBadRequest, "The uploaded file is not a valid zip archive."
	case errors.Is(err, tabular.ErrMissingDataFile):
		status, message = http.StatusBadRequest, "The archive is missing one of the expected data files."
	case errors.Is(err, tabular.ErrMalformedTable), errors.Is(err, tabular.ErrUnexpectedSchema):
		status, message = http.StatusBadRequest, "One of the data files does not match the expected format."
	case errors.Is(err, settings.ErrInvalidSetting):
		status, message = http.StatusBadRequest, "One of the pump settings is not a valid number."
	case errors.Is(err, llm.ErrCompletion):
		status, message = http.StatusBadGateway, "The recommendation service is unavailable. Please try again later."
	default:
		status, message = http.StatusInternalServerError, "Unexpected error while processing the upload."
	}
	http.Error(w, fmt.Sprintf("%s (%v)", message, err), status)
}

func renderPage(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("render page")
	}
}

func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("write json")
	}
}
