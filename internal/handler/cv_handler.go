package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"cvperfect-server/internal/config"
	"cvperfect-server/internal/domain"
)

// CVHandler handles CV parsing and optimization
type CVHandler struct {
	container *config.Container
	logger    domain.Logger
}

// NewCVHandler creates a new CV handler
func NewCVHandler(container *config.Container, logger domain.Logger) *CVHandler {
	return &CVHandler{
		container: container,
		logger:    logger,
	}
}

// ParseCV extracts text from an uploaded PDF (multipart field "file")
func (h *CVHandler) ParseCV(w http.ResponseWriter, r *http.Request) {
	maxSize := h.container.Config.GetMaxUploadSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("File too large or invalid form (max %d bytes)", maxSize))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "Only PDF files are allowed")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read uploaded CV", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}

	parsed, err := h.container.CVTextExtractor.ExtractPDF(data)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	h.logger.Info("CV parsed", "filename", header.Filename, "pages", parsed.PageCount, "chars", len(parsed.Text))
	writeJSON(w, http.StatusOK, parsed)
}

// Optimize runs a metered CV optimization
func (h *CVHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	if h.container.OptimizeService == nil {
		writeError(w, http.StatusServiceUnavailable, "Optimization is not configured")
		return
	}

	var req domain.OptimizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	result, err := h.container.OptimizeService.Optimize(r.Context(), req)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
