package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ppiankov/probeplane/internal/access"
	"github.com/ppiankov/probeplane/internal/model"
)

type errorBody struct {
	Error  string             `json:"error"`
	Fields []model.FieldError `json:"fields,omitempty"`
}

// writeJSON encodes into a buffer before the status line is written.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		s.logger.ErrorContext(r.Context(), "encode response", "method", r.Method, "path", r.URL.Path, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"internal error"}`+"\n")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.DebugContext(r.Context(), "write response", "path", r.URL.Path, "error", err)
	}
}

// statusFor maps the typed errors of the control plane onto HTTP statuses.
func statusFor(err error) int {
	var (
		v *model.ValidationError
		n *model.NotFoundError
		c *model.ConflictError
	)
	switch {
	case errors.As(err, &v):
		return http.StatusBadRequest
	case errors.As(err, &n):
		return http.StatusNotFound
	case errors.As(err, &c):
		return http.StatusConflict
	case errors.Is(err, access.ErrDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var v *model.ValidationError
	if errors.As(err, &v) {
		body.Fields = v.Fields
	}
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body.Error = "internal error"
	}
	s.writeJSON(w, r, status, body)
}
