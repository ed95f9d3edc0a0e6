package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		SandboxRoot:   s.guard.Root(),
	}
	if s.registry != nil {
		resp.KindsRegistered = s.registry.Len()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleRun handles POST /run. The task text comes from the "task" query
// parameter, or from the raw body when the parameter is absent.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("task")
	if !r.URL.Query().Has("task") {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("task text exceeds %d bytes", tooLarge.Limit))
				return
			}
			s.writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		text = string(body)
	}

	outcome := s.exec.Execute(r.Context(), text)
	status, body := s.translateOutcome(outcome)
	respondJSON(w, status, body)
}

// handleRead handles GET /read?path=. The path is guarded like any task path.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	path, ok := s.guardedParam(w, r)
	if !ok {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		s.writeFileError(w, path, err)
		return
	}
	if info.IsDir() {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("%s is a directory", path))
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		s.writeFileError(w, path, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleFilterCSV handles GET /filter-csv?path=&column=&value= and returns the
// rows whose column equals value, as objects keyed by header.
func (s *Server) handleFilterCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	column := q.Get("column")
	if column == "" || !q.Has("value") {
		s.writeError(w, http.StatusBadRequest, "column and value are required")
		return
	}
	value := q.Get("value")

	path, ok := s.guardedParam(w, r)
	if !ok {
		return
	}

	file, err := os.Open(path)
	if err != nil {
		s.writeFileError(w, path, err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusInternalServerError, "CSV file has no header row")
			return
		}
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("malformed CSV: %v", err))
		return
	}

	idx := -1
	for i, name := range header {
		if name == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown column %q", column))
		return
	}

	rows := []map[string]string{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("malformed CSV: %v", err))
			return
		}
		if record[idx] != value {
			continue
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			row[name] = record[i]
		}
		rows = append(rows, row)
	}
	respondJSON(w, http.StatusOK, rows)
}

// guardedParam validates the "path" query parameter and writes 400 or 403 on
// failure.
func (s *Server) guardedParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		s.writeError(w, http.StatusBadRequest, "path is required")
		return "", false
	}
	v := s.guard.ValidatePath(raw)
	if !v.OK() {
		s.logger.Warn("path rejected", "path", raw, "reason", v.Reason)
		s.writeError(w, http.StatusForbidden, v.Reason)
		return "", false
	}
	return v.Canonical, true
}

func (s *Server) writeFileError(w http.ResponseWriter, path string, err error) {
	if errors.Is(err, os.ErrNotExist) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("file not found: %s", path))
		return
	}
	s.logger.Error("file access failed", "path", path, "error", err)
	s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read %s", path))
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
