package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/survey-collector/internal/config"
	"github.com/ignite/survey-collector/internal/document"
	"github.com/ignite/survey-collector/internal/survey"
)

type captureMailer struct {
	status int
	err    error
	sent   []survey.Verification
}

func (m *captureMailer) SendVerification(_ context.Context, v survey.Verification) (int, error) {
	m.sent = append(m.sent, v)
	return m.status, m.err
}

type apiHarness struct {
	store  document.Store
	mailer *captureMailer
	router *chi.Mux
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	store, err := document.NewBadgerStore("", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mailer := &captureMailer{status: http.StatusOK}
	manager, err := survey.NewManager(store, mailer, config.SurveyConfig{CacheSize: 16, TokenRetryLimit: 5})
	require.NoError(t, err)

	handlers := NewHandlers(manager, "https://surveys.example.com", zerolog.Nop())
	router := SetupRoutes(handlers, config.ServerConfig{AllowedOrigins: []string{"*"}})

	return &apiHarness{store: store, mailer: mailer, router: router}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["detail"]
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func surveyPath(owner, name string) string {
	return fmt.Sprintf("/users/%s/surveys/%s", owner, name)
}

func intp(v int) *int       { return &v }
func int64p(v int64) *int64 { return &v }

// textConfiguration is permanently open: both window bounds are unset.
func textConfiguration(name string) *survey.Configuration {
	return &survey.Configuration{
		Name:           name,
		Title:          "Customer pulse",
		Authentication: survey.AuthenticationOpen,
		Fields: []survey.Field{
			{Type: survey.FieldOption, Title: "May we follow up?"},
			{Type: survey.FieldText, Title: "Feedback", MinChars: intp(0), MaxChars: intp(400)},
		},
	}
}

func emailConfiguration(name string) *survey.Configuration {
	return &survey.Configuration{
		Name:           name,
		Title:          "Customer pulse",
		Authentication: survey.AuthenticationEmail,
		Fields: []survey.Field{
			{Type: survey.FieldEmail, Title: "Work email", Verify: true},
			{Type: survey.FieldText, Title: "Feedback", MinChars: intp(0), MaxChars: intp(400)},
		},
	}
}

func textPayload() map[string]any {
	return map[string]any{"1": true, "2": "works well"}
}

func (h *apiHarness) create(t *testing.T, owner string, cfg *survey.Configuration) {
	t.Helper()

	rec := h.do(t, http.MethodPost, surveyPath(owner, cfg.Name), cfg)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestCreateAndGetSurvey(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, surveyPath("acme", "pulse"), textConfiguration("pulse"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "survey created", decodeDetail(t, rec))

	rec = h.do(t, http.MethodGet, surveyPath("acme", "pulse"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	view := decodeBody(t, rec)
	assert.Equal(t, "pulse", view["survey_name"])
	assert.Equal(t, "Customer pulse", view["title"])
	assert.Contains(t, view, "fields")
}

func TestGetSurveyHidesFieldsOutsideWindow(t *testing.T) {
	h := newAPIHarness(t)

	cfg := textConfiguration("pulse")
	cfg.End = int64p(1000)
	h.create(t, "acme", cfg)

	rec := h.do(t, http.MethodGet, surveyPath("acme", "pulse"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	view := decodeBody(t, rec)
	assert.Equal(t, "Customer pulse", view["title"])
	assert.NotContains(t, view, "fields")
}

func TestGetSurveyMissing(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodGet, surveyPath("acme", "pulse"), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "survey not found", decodeDetail(t, rec))
}

func TestGetSurveyDraft(t *testing.T) {
	h := newAPIHarness(t)

	cfg := textConfiguration("pulse")
	cfg.Draft = true
	h.create(t, "acme", cfg)

	rec := h.do(t, http.MethodGet, surveyPath("acme", "pulse"), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "survey not found", decodeDetail(t, rec))
}

func TestPathIdentifierSyntax(t *testing.T) {
	h := newAPIHarness(t)

	for _, path := range []string{
		surveyPath("Acme", "pulse"),
		surveyPath("acme", "pulse!"),
		surveyPath("acme.corp", "pulse"),
	} {
		rec := h.do(t, http.MethodGet, path, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "invalid syntax", decodeDetail(t, rec), path)
	}
}

func TestCreateSurveyNameMismatch(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, surveyPath("acme", "pulse"), textConfiguration("other"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid configuration", decodeDetail(t, rec))
}

func TestCreateSurveyDuplicate(t *testing.T) {
	h := newAPIHarness(t)
	h.create(t, "acme", textConfiguration("pulse"))

	rec := h.do(t, http.MethodPost, surveyPath("acme", "pulse"), textConfiguration("pulse"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "survey exists", decodeDetail(t, rec))
}

func TestCreateSurveyMalformedBody(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest(http.MethodPost, surveyPath("acme", "pulse"), bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid configuration", decodeDetail(t, rec))
}

func TestUpdateSurvey(t *testing.T) {
	h := newAPIHarness(t)
	h.create(t, "acme", textConfiguration("pulse"))

	cfg := textConfiguration("pulse")
	cfg.Title = "Quarterly pulse"
	rec := h.do(t, http.MethodPut, surveyPath("acme", "pulse"), cfg)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "survey updated", decodeDetail(t, rec))

	rec = h.do(t, http.MethodGet, surveyPath("acme", "pulse"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Quarterly pulse", decodeBody(t, rec)["title"])
}

func TestUpdateSurveyMissing(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPut, surveyPath("acme", "pulse"), textConfiguration("pulse"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "survey not found", decodeDetail(t, rec))
}

func TestSubmit(t *testing.T) {
	h := newAPIHarness(t)
	h.create(t, "acme", textConfiguration("pulse"))

	rec := h.do(t, http.MethodPost, surveyPath("acme", "pulse")+"/submissions", textPayload())

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "submission accepted", decodeDetail(t, rec))
}

func TestSubmitInvalidPayload(t *testing.T) {
	h := newAPIHarness(t)
	h.create(t, "acme", textConfiguration("pulse"))

	rec := h.do(t, http.MethodPost, surveyPath("acme", "pulse")+"/submissions", map[string]any{"1": true})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid submission", decodeDetail(t, rec))
}

func TestSubmitClosedSurvey(t *testing.T) {
	h := newAPIHarness(t)

	cfg := textConfiguration("pulse")
	cfg.End = int64p(1000)
	h.create(t, "acme", cfg)

	rec := h.do(t, http.MethodPost, surveyPath("acme", "pulse")+"/submissions", textPayload())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "survey is closed", decodeDetail(t, rec))
}

func TestSubmitDraftSurvey(t *testing.T) {
	h := newAPIHarness(t)

	cfg := textConfiguration("pulse")
	cfg.Draft = true
	h.create(t, "acme", cfg)

	rec := h.do(t, http.MethodPost, surveyPath("acme", "pulse")+"/submissions", textPayload())

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "survey not found", decodeDetail(t, rec))
}

func TestVerifyFlow(t *testing.T) {
	h := newAPIHarness(t)
	h.create(t, "acme", emailConfiguration("pulse"))

	payload := map[string]any{"1": "jordan@example.com", "2": "works well"}
	rec := h.do(t, http.MethodPost, surveyPath("acme", "pulse")+"/submissions", payload)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, h.mailer.sent, 1)

	token := h.mailer.sent[0].Token
	rec = h.do(t, http.MethodGet, surveyPath("acme", "pulse")+"/verification/"+token, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://surveys.example.com/acme/pulse/success", rec.Header().Get("Location"))

	// Tokens are single use.
	rec = h.do(t, http.MethodGet, surveyPath("acme", "pulse")+"/verification/"+token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid verification token", decodeDetail(t, rec))
}

func TestVerifyTokenSyntax(t *testing.T) {
	h := newAPIHarness(t)
	h.create(t, "acme", emailConfiguration("pulse"))

	rec := h.do(t, http.MethodGet, surveyPath("acme", "pulse")+"/verification/abc123", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid verification token", decodeDetail(t, rec))
}

func TestVerifyWrongMode(t *testing.T) {
	h := newAPIHarness(t)
	h.create(t, "acme", textConfiguration("pulse"))

	token := bytes.Repeat([]byte("a"), 64)
	rec := h.do(t, http.MethodGet, surveyPath("acme", "pulse")+"/verification/"+string(token), nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "survey does not verify email addresses", decodeDetail(t, rec))
}

func TestResultsLifecycle(t *testing.T) {
	h := newAPIHarness(t)
	h.create(t, "acme", textConfiguration("pulse"))

	rec := h.do(t, http.MethodPost, surveyPath("acme", "pulse")+"/submissions", textPayload())
	require.Equal(t, http.StatusCreated, rec.Code)

	// The window has no end yet, so there is nothing to aggregate.
	rec = h.do(t, http.MethodGet, surveyPath("acme", "pulse")+"/results", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "survey is not yet closed", decodeDetail(t, rec))

	// Closing the window makes the results available.
	cfg := textConfiguration("pulse")
	cfg.End = int64p(1000)
	rec = h.do(t, http.MethodPut, surveyPath("acme", "pulse"), cfg)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, surveyPath("acme", "pulse")+"/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	results := decodeBody(t, rec)
	assert.Equal(t, float64(1), results["count"])
	assert.Equal(t, float64(1), results["1"])
}

func TestResetDropsSubmissions(t *testing.T) {
	h := newAPIHarness(t)
	h.create(t, "acme", textConfiguration("pulse"))

	rec := h.do(t, http.MethodPost, surveyPath("acme", "pulse")+"/submissions", textPayload())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(t, http.MethodDelete, surveyPath("acme", "pulse")+"/submissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "survey reset", decodeDetail(t, rec))

	cfg := textConfiguration("pulse")
	cfg.End = int64p(1000)
	rec = h.do(t, http.MethodPut, surveyPath("acme", "pulse"), cfg)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, surveyPath("acme", "pulse")+"/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])
}

func TestDeleteSurvey(t *testing.T) {
	h := newAPIHarness(t)
	h.create(t, "acme", textConfiguration("pulse"))

	rec := h.do(t, http.MethodDelete, surveyPath("acme", "pulse"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "survey deleted", decodeDetail(t, rec))

	rec = h.do(t, http.MethodGet, surveyPath("acme", "pulse"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Deleting twice is fine.
	rec = h.do(t, http.MethodDelete, surveyPath("acme", "pulse"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
