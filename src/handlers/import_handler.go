// backend/src/handlers/import_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/username/fliegerkasse/backend/src/config"
	"github.com/username/fliegerkasse/backend/src/logger"
	"github.com/username/fliegerkasse/backend/src/models"
	"github.com/username/fliegerkasse/backend/src/parsers/sparkasse"
	"github.com/username/fliegerkasse/backend/src/security/validation"
	"github.com/username/fliegerkasse/backend/src/services"
	"github.com/username/fliegerkasse/backend/src/utils"
)

type ImportHandler struct {
	importService services.ImportService
}

func NewImportHandler(service services.ImportService) *ImportHandler {
	return &ImportHandler{importService: service}
}

// HandleImport accepts a multipart statement upload ("source" + "file"),
// validates the file, and runs it through the parser and the batch importer.
func (h *ImportHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		ctxLogger.Warn("Failed to parse multipart form or request too large", "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("failed to process upload or file too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	source := r.FormValue("source")
	if source == "" {
		utils.SendJSONError(w, "statement source is required", http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		ctxLogger.Warn("Failed to retrieve file from request", "error", err)
		utils.SendJSONError(w, "failed to retrieve file from request; ensure the 'file' field is used", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		utils.SendJSONError(w, fmt.Sprintf("file too large, max %d MB", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	if err := validation.ValidateClientContentType(fileHeader.Header.Get("Content-Type")); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := validation.ValidateFileContentByMagicBytes(file); err != nil {
		ctxLogger.Warn("File content validation failed", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctxLogger.Info("Processing statement import", "source", source, "filename", fileHeader.Filename, "size", fileHeader.Size)

	result, err := h.importService.ImportStatement(file, source, fileHeader.Filename, fileHeader.Size)
	if err != nil {
		writeImportError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		ctxLogger.Error("Error encoding import result", "error", err)
	}
}

// HandleCheckDuplicate answers the single-candidate duplicate probe.
func (h *ImportHandler) HandleCheckDuplicate(w http.ResponseWriter, r *http.Request) {
	var entry models.StatementEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	duplicate, err := h.importService.IsDuplicate(entry)
	if err != nil {
		logger.FromContext(r.Context()).Error("Duplicate check failed", "error", err)
		utils.SendJSONError(w, "duplicate check failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"duplicate": duplicate})
}

// writeImportError maps parser failures onto diagnosable JSON payloads. The
// detected header list travels with format errors so the operator can see
// what the bank export actually contained.
func writeImportError(w http.ResponseWriter, r *http.Request, err error) {
	ctxLogger := logger.FromContext(r.Context())

	var formatErr *sparkasse.FormatError
	if errors.As(err, &formatErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   formatErr.Error(),
			"headers": formatErr.Headers,
		})
		return
	}

	var noDataErr *sparkasse.NoDataError
	if errors.As(err, &noDataErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   noDataErr.Error(),
			"headers": noDataErr.Headers,
		})
		return
	}

	if errors.Is(err, services.ErrParsingFailed) {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctxLogger.Error("Statement import failed", "error", err)
	sendInternalError(w, r, "statement import failed")
}

// sendInternalError writes a 500 payload carrying the request ID, so an
// operator can find the matching log lines.
func sendInternalError(w http.ResponseWriter, r *http.Request, message string) {
	payload := map[string]string{"error": message}
	if requestID, ok := RequestIDFromContext(r.Context()); ok {
		payload["request_id"] = requestID
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(payload)
}
