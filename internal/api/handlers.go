package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"github.com/ignite/survey-collector/internal/survey"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	manager  *survey.Manager
	frontend string
	log      zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(manager *survey.Manager, frontend string, log zerolog.Logger) *Handlers {
	return &Handlers{manager: manager, frontend: frontend, log: log}
}

// statusBySentinel maps engine errors onto HTTP status codes. The
// sentinel messages double as the response detail.
var statusBySentinel = []struct {
	err    error
	status int
}{
	{survey.ErrInvalidConfiguration, http.StatusBadRequest},
	{survey.ErrAlreadyExists, http.StatusBadRequest},
	{survey.ErrInvalidSubmission, http.StatusBadRequest},
	{survey.ErrNotOpenYet, http.StatusBadRequest},
	{survey.ErrClosed, http.StatusBadRequest},
	{survey.ErrNotYetClosed, http.StatusBadRequest},
	{survey.ErrWrongMode, http.StatusBadRequest},
	{survey.ErrInvalidToken, http.StatusUnauthorized},
	{survey.ErrNotFound, http.StatusNotFound},
	{survey.ErrDeliveryFailure, http.StatusInternalServerError},
	{survey.ErrStoreFailure, http.StatusInternalServerError},
	{survey.ErrNotImplemented, http.StatusNotImplemented},
}

// respondDetail writes the uniform {"detail": ...} error and status
// envelope every route shares.
func respondDetail(w http.ResponseWriter, r *http.Request, status int, detail string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"detail": detail})
}

func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range statusBySentinel {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				h.log.Error().Err(err).Str("path", r.URL.Path).Msg("api: request failed")
			}
			respondDetail(w, r, m.status, m.err.Error())
			return
		}
	}
	h.log.Error().Err(err).Str("path", r.URL.Path).Msg("api: request failed")
	respondDetail(w, r, http.StatusInternalServerError, "internal error")
}

// pathIdentity validates the owner and survey name path segments.
// Anything that does not match the identifier grammar is rejected
// before it can reach the store.
func pathIdentity(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	owner := chi.URLParam(r, "username")
	name := chi.URLParam(r, "surveyName")
	if !survey.ValidName(owner) || !survey.ValidName(name) {
		respondDetail(w, r, http.StatusBadRequest, "invalid syntax")
		return "", "", false
	}
	return owner, name, true
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "healthy"})
}

// GetSurvey returns the public view of a survey: its configuration,
// with the field list omitted while the survey is not accepting
// submissions. Drafts are invisible here.
func (h *Handlers) GetSurvey(w http.ResponseWriter, r *http.Request) {
	owner, name, ok := pathIdentity(w, r)
	if !ok {
		return
	}

	s, err := h.manager.Fetch(r.Context(), owner, name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if s.Configuration.Draft {
		respondDetail(w, r, http.StatusNotFound, survey.ErrNotFound.Error())
		return
	}

	view, err := publicView(s)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	render.JSON(w, r, view)
}

func publicView(s *survey.Survey) (map[string]any, error) {
	raw, err := json.Marshal(s.Configuration)
	if err != nil {
		return nil, err
	}
	var view map[string]any
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, err
	}
	if !s.OpenNow() {
		delete(view, "fields")
	}
	return view, nil
}

// CreateSurvey stores a new survey configuration.
func (h *Handlers) CreateSurvey(w http.ResponseWriter, r *http.Request) {
	owner, name, ok := pathIdentity(w, r)
	if !ok {
		return
	}

	var cfg survey.Configuration
	if err := render.DecodeJSON(r.Body, &cfg); err != nil {
		respondDetail(w, r, http.StatusBadRequest, survey.ErrInvalidConfiguration.Error())
		return
	}

	if err := h.manager.Create(r.Context(), owner, name, &cfg); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondDetail(w, r, http.StatusCreated, "survey created")
}

// UpdateSurvey replaces an existing survey configuration.
func (h *Handlers) UpdateSurvey(w http.ResponseWriter, r *http.Request) {
	owner, name, ok := pathIdentity(w, r)
	if !ok {
		return
	}

	var cfg survey.Configuration
	if err := render.DecodeJSON(r.Body, &cfg); err != nil {
		respondDetail(w, r, http.StatusBadRequest, survey.ErrInvalidConfiguration.Error())
		return
	}

	if err := h.manager.Update(r.Context(), owner, name, &cfg); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondDetail(w, r, http.StatusOK, "survey updated")
}

// DeleteSurvey removes a survey and everything submitted to it.
func (h *Handlers) DeleteSurvey(w http.ResponseWriter, r *http.Request) {
	owner, name, ok := pathIdentity(w, r)
	if !ok {
		return
	}

	if err := h.manager.Delete(r.Context(), owner, name); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondDetail(w, r, http.StatusOK, "survey deleted")
}

// Submit accepts one submission payload.
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	owner, name, ok := pathIdentity(w, r)
	if !ok {
		return
	}

	var payload map[string]any
	if err := render.DecodeJSON(r.Body, &payload); err != nil {
		respondDetail(w, r, http.StatusBadRequest, survey.ErrInvalidSubmission.Error())
		return
	}

	s, err := h.manager.Fetch(r.Context(), owner, name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if s.Configuration.Draft {
		respondDetail(w, r, http.StatusNotFound, survey.ErrNotFound.Error())
		return
	}

	if err := s.Submit(r.Context(), payload); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondDetail(w, r, http.StatusCreated, "submission accepted")
}

// Reset drops all submissions of a survey but keeps its configuration.
func (h *Handlers) Reset(w http.ResponseWriter, r *http.Request) {
	owner, name, ok := pathIdentity(w, r)
	if !ok {
		return
	}

	if err := h.manager.Reset(r.Context(), owner, name); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondDetail(w, r, http.StatusOK, "survey reset")
}

// Verify consumes a verification token and sends the browser to the
// frontend's success page.
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	owner, name, ok := pathIdentity(w, r)
	if !ok {
		return
	}
	token := chi.URLParam(r, "token")
	if !survey.ValidToken(token) {
		respondDetail(w, r, http.StatusUnauthorized, survey.ErrInvalidToken.Error())
		return
	}

	s, err := h.manager.Fetch(r.Context(), owner, name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if s.Configuration.Draft {
		respondDetail(w, r, http.StatusNotFound, survey.ErrNotFound.Error())
		return
	}

	if err := s.Verify(r.Context(), token); err != nil {
		h.respondError(w, r, err)
		return
	}

	target := fmt.Sprintf("%s/%s/%s/success", strings.TrimRight(h.frontend, "/"), owner, name)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Results returns the aggregated results of a closed survey. Drafts
// are not hidden here.
func (h *Handlers) Results(w http.ResponseWriter, r *http.Request) {
	owner, name, ok := pathIdentity(w, r)
	if !ok {
		return
	}

	s, err := h.manager.Fetch(r.Context(), owner, name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	result, err := s.Aggregate(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}
