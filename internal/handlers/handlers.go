package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/Brownie44l1/xray-api/internal/chat"
	"github.com/Brownie44l1/xray-api/internal/pipeline"
	"github.com/Brownie44l1/xray-api/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	// multipartOverhead is body allowance for boundaries and part headers
	// on top of the file size limit.
	multipartOverhead = 1 << 20
)

type Handler struct {
	pipeline      *pipeline.Pipeline
	reports       repository.ReportRepository
	bot           *chat.Bot
	maxUploadSize int64
	log           *zap.Logger
}

func NewHandler(p *pipeline.Pipeline, reports repository.ReportRepository, bot *chat.Bot, maxUploadSize int64, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		pipeline:      p,
		reports:       reports,
		bot:           bot,
		maxUploadSize: maxUploadSize,
		log:           log,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type reportSummary struct {
	repository.Report
	DownloadURL string `json:"report_download_url"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Detect classifies the image in the multipart field "file".
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "File too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: pipeline.ErrNoFile.Error()})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: pipeline.ErrNoFile.Error()})
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "File too large"})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.log.Error("failed to read upload", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	h.log.Debug("received file", zap.String("filename", header.Filename), zap.Int64("size", header.Size))

	outcome, err := h.pipeline.Run(r.Context(), pipeline.Upload{Filename: header.Filename, Data: data})
	if err != nil {
		status := http.StatusInternalServerError
		if pipeline.KindOf(err) == pipeline.KindValidation {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// GetReport serves a stored HTML report by id.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, err := h.reports.GetByID(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		h.log.Error("failed to look up report", zap.String("report_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	f, err := os.Open(rec.ReportPath)
	if errors.Is(err, os.ErrNotExist) {
		h.log.Warn("report file missing", zap.String("report_id", id), zap.String("path", rec.ReportPath))
		writeJSON(w, http.StatusNotFound, errorResponse{Error: repository.ErrNotFound.Error()})
		return
	}
	if err != nil {
		h.log.Error("failed to open report", zap.String("report_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="`+rec.ID+`.html"`)
	http.ServeContent(w, r, rec.ID+".html", rec.CreatedAt, f)
}

// ListReports returns the newest reports, ?limit= capped at maxListLimit.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	recs, err := h.reports.List(r.Context(), limit)
	if err != nil {
		h.log.Error("failed to list reports", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	out := make([]reportSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, reportSummary{Report: rec, DownloadURL: h.pipeline.DownloadURL(rec.ID)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON"})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: h.bot.Reply(req.Message)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
