package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spherical/scan2docx/internal/domain"
	"github.com/spherical/scan2docx/internal/observability"
)

const (
	multipartMemory  = 32 << 20
	defaultJobsLimit = 50
)

type handler struct {
	logger *observability.Logger
	conv   Converter
	jobs   JobManager
	cfg    Config
}

// OptionsResponse lists what a client may request.
type OptionsResponse struct {
	Languages         []string        `json:"languages"`
	DefaultLanguage   string          `json:"default_language"`
	SegmentationModes []SegModeOption `json:"segmentation_modes"`
	DefaultSegMode    int             `json:"default_psm"`
	DPI               DPIRange        `json:"dpi"`
}

// SegModeOption is one selectable page segmentation mode.
type SegModeOption struct {
	Value int    `json:"value"`
	Name  string `json:"name"`
}

// DPIRange describes the accepted rasterization resolutions.
type DPIRange struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Default int `json:"default"`
}

// Options handles GET /api/v1/options.
func (h *handler) Options(w http.ResponseWriter, r *http.Request) {
	resp := OptionsResponse{
		DefaultLanguage: string(h.cfg.DefaultLanguage),
		DefaultSegMode:  int(h.cfg.DefaultSegMode),
		DPI:             DPIRange{Min: domain.MinDPI, Max: domain.MaxDPI, Default: h.cfg.DefaultDPI},
	}
	for _, l := range h.conv.Languages() {
		resp.Languages = append(resp.Languages, string(l))
	}
	for _, m := range domain.SupportedSegmentationModes {
		resp.SegmentationModes = append(resp.SegmentationModes, SegModeOption{Value: int(m), Name: m.String()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Convert handles POST /api/v1/convert. The document is returned in the
// response body once every page has been processed.
func (h *handler) Convert(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.conv.Convert(r.Context(), req, nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeDocument(w, result)
}

// SubmitJob handles POST /api/v1/jobs.
func (h *handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	job, err := h.jobs.Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID.String())
	writeJSON(w, http.StatusAccepted, job)
}

// ListJobs handles GET /api/v1/jobs.
func (h *handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultJobsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, r, domain.ValidationError("limit must be a positive integer", nil))
			return
		}
		limit = n
	}

	jobs, err := h.jobs.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if jobs == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetJob handles GET /api/v1/jobs/{jobID}.
func (h *handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelJob handles DELETE /api/v1/jobs/{jobID}.
func (h *handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.jobs.Cancel(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// JobDocument handles GET /api/v1/jobs/{jobID}/document.
func (h *handler) JobDocument(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.jobs.Document(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeDocument(w, result)
}

func jobID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		return uuid.Nil, domain.ValidationError("invalid job id", err)
	}
	return id, nil
}

// parseRequest reads the multipart form fields file, dpi, lang and psm.
// Missing optional fields take the configured defaults.
func (h *handler) parseRequest(w http.ResponseWriter, r *http.Request) (domain.ConversionRequest, error) {
	var req domain.ConversionRequest

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return req, err
		}
		if strings.Contains(err.Error(), "request body too large") {
			return req, &http.MaxBytesError{Limit: h.cfg.MaxUploadBytes}
		}
		return req, domain.ValidationError("expected a multipart form upload", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return req, domain.ValidationError("no document uploaded", err)
	}
	defer file.Close()

	source, err := io.ReadAll(file)
	if err != nil {
		return req, domain.IOError("failed to read upload", err)
	}

	req.Source = source
	req.SourceName = header.Filename
	req.DPI = h.cfg.DefaultDPI
	req.Language = h.cfg.DefaultLanguage
	req.SegMode = h.cfg.DefaultSegMode

	if v := strings.TrimSpace(r.FormValue("dpi")); v != "" {
		dpi, err := strconv.Atoi(v)
		if err != nil {
			return req, domain.ValidationError(fmt.Sprintf("invalid dpi %q", v), nil)
		}
		req.DPI = domain.ClampDPI(dpi)
	}
	if v := strings.TrimSpace(r.FormValue("lang")); v != "" {
		req.Language = domain.Language(v)
	}
	if v := strings.TrimSpace(r.FormValue("psm")); v != "" {
		mode, err := domain.ParseSegmentationMode(v)
		if err != nil {
			return req, err
		}
		req.SegMode = mode
	}
	return req, nil
}

func writeDocument(w http.ResponseWriter, result *domain.ConversionResult) {
	contentType := result.ContentType
	if contentType == "" {
		contentType = domain.DOCXContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Document)))
	w.WriteHeader(http.StatusOK)
	w.Write(result.Document)
}
