package importer

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/joaoarmando-ctrl/pretorian-nfse1/internal/nfse"
)

// maxUploadSize bounds a multipart submission
const maxUploadSize = int64(50 << 20)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.service.Running(),
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Jobs())
}

// handleSubmitJobs accepts one or more documents in the "files" (or "file") form field
func (s *Server) handleSubmitJobs(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload is too large. Maximum size is 50MB.")
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose at least one document to upload.")
		return
	}

	uploads := make([]Upload, 0, len(headers))
	for _, h := range headers {
		data, err := readPart(h)
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", h.Filename)
			writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
			return
		}
		uploads = append(uploads, Upload{Filename: h.Filename, Data: data})
	}

	jobs, err := s.service.Submit(uploads)
	var limitErr *LimitError
	switch {
	case errors.As(err, &limitErr):
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
			"error":    err.Error(),
			"rejected": limitErr.Rejected,
			"jobs":     jobs,
		})
	case err != nil:
		slog.Error("Error submitting documents", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusCreated, jobs)
	}
}

func readPart(h *multipart.FileHeader) ([]byte, error) {
	f, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleResetJobs(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Reset(); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Error clearing jobs")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"running": s.service.Running(),
		"last":    s.service.LastRun(),
	})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if err := s.service.StartRun(r.Context()); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"running": true})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": s.service.CancelRun()})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Records())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsResponse(s.service.Settings()))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	settings, err := s.service.UpdateSettings(req)
	if err != nil {
		slog.Error("Error updating settings", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse(settings))
}

// settingsResponse adds the canonical field catalogue to the active settings
func settingsResponse(s Settings) map[string]any {
	fields := make([]map[string]string, 0, len(nfse.Fields()))
	for _, f := range nfse.Fields() {
		fields = append(fields, map[string]string{"name": f.Name, "kind": f.Kind.String()})
	}
	return map[string]any{
		"schema":  s.Schema,
		"decimal": s.Decimal,
		"fields":  fields,
	}
}

func (s *Server) handleExportTXT(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, func(e *Export) Artifact { return e.TXT })
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, func(e *Export) Artifact { return e.XLSX })
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, pick func(*Export) Artifact) {
	export, err := s.service.Export(r.Context())
	if err != nil {
		if errors.Is(err, ErrNoRecords) {
			writeError(w, http.StatusConflict, "Nenhum registro para exportar")
			return
		}
		slog.Error("Error exporting records", "error", err)
		writeError(w, http.StatusInternalServerError, "Error exporting records")
		return
	}
	a := pick(export)
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+a.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.Write(a.Data)
}
