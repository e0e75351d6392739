package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ppiankov/probeplane/internal/deploy"
	"github.com/ppiankov/probeplane/internal/health"
	"github.com/ppiankov/probeplane/internal/model"
	"github.com/ppiankov/probeplane/internal/registry"
	"github.com/ppiankov/probeplane/internal/schedule"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return model.Invalid("body", "invalid JSON: %v", err)
	}
	return nil
}

// queryInt parses an optional integer parameter into v.
func queryInt(r *http.Request, name string, v *model.ValidationError) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		v.Add(name, "must be an integer")
		return 0
	}
	return n
}

// queryList accepts repeated parameters as well as comma-separated values.
func queryList(r *http.Request, name string) []string {
	var out []string
	for _, raw := range r.URL.Query()[name] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (s *Server) listProbes(w http.ResponseWriter, r *http.Request, _ model.Actor) {
	v := &model.ValidationError{}
	page := model.Page{
		Limit:  queryInt(r, "limit", v),
		Offset: queryInt(r, "offset", v),
	}
	if err := v.OrNil(); err != nil {
		s.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	res, err := s.registry.List(r.Context(), registry.ListFilter{
		Status:       model.ProbeStatus(q.Get("status")),
		FrameworkIDs: queryList(r, "framework"),
		Owner:        q.Get("owner"),
		Search:       q.Get("search"),
	}, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) registerProbe(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	var in registry.RegisterInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.registry.Register(r.Context(), in, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, p)
}

func (s *Server) getProbe(w http.ResponseWriter, r *http.Request, _ model.Actor) {
	p, err := s.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, p)
}

func (s *Server) probeEvents(w http.ResponseWriter, r *http.Request, _ model.Actor) {
	v := &model.ValidationError{}
	limit := queryInt(r, "limit", v)
	if err := v.OrNil(); err != nil {
		s.writeError(w, r, err)
		return
	}
	evs, err := s.registry.Events(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"data": evs})
}

func (s *Server) probeMetrics(w http.ResponseWriter, r *http.Request, _ model.Actor) {
	m, err := s.health.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, m)
}

func (s *Server) recordHeartbeat(w http.ResponseWriter, r *http.Request, _ model.Actor) {
	var in health.HeartbeatInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.ProbeID = chi.URLParam(r, "id")
	m, err := s.health.RecordHeartbeat(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, m)
}

func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	var in schedule.TriggerInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	receipt, err := s.scheduler.TriggerRun(r.Context(), chi.URLParam(r, "id"), in, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusAccepted, receipt)
}

func (s *Server) listDeployments(w http.ResponseWriter, r *http.Request, _ model.Actor) {
	out, err := s.deploy.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) launchDeployment(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	var in deploy.LaunchInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.deploy.Launch(r.Context(), chi.URLParam(r, "id"), in, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, d)
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request, _ model.Actor) {
	out, err := s.scheduler.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	var in schedule.CreateInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	sc, err := s.scheduler.Create(r.Context(), chi.URLParam(r, "id"), in, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, sc)
}
