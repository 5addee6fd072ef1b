package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/SAP-F-2025/quiz-service/internal/cache"
	"github.com/SAP-F-2025/quiz-service/internal/embed"
	"github.com/SAP-F-2025/quiz-service/internal/events"
	"github.com/SAP-F-2025/quiz-service/internal/services"
	"github.com/SAP-F-2025/quiz-service/internal/utils"
	"github.com/SAP-F-2025/quiz-service/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quizJSON = `{"questions":[{"type":"ShortAnswer","prompt":{"prompt":"What is 1 + 1?"},"answer":{"answer":"2"}}]}`

type testServer struct {
	router    *gin.Engine
	telemetry *events.MockTelemetry
	sessions  *services.SessionManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	telemetry := events.NewMockTelemetry()
	sessions := services.NewSessionManager(services.ManagerDeps{
		Store:     cache.NewMemoryStore(),
		Telemetry: telemetry,
		Logger:    slogger,
	})
	t.Cleanup(sessions.Close)

	quizValidator, err := validator.NewQuizValidator(validator.Options{Lightweight: true, Logger: slogger})
	require.NoError(t, err)

	router := gin.New()
	NewHandlerManager(HandlerDeps{
		Sessions:  sessions,
		Exporter:  services.NewExportService(slogger),
		Telemetry: telemetry,
		Validator: quizValidator,
		Logger:    utils.NewSlogLogger(slogger),
	}).SetupRoutes(router)

	return &testServer{router: router, telemetry: telemetry, sessions: sessions}
}

func (s *testServer) do(method, path, learner, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if learner != "" {
		req.Header.Set(LearnerHeader, learner)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) doJSON(method, path, learner string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	return s.do(method, path, learner, "application/json", reader)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) createSession(t *testing.T, learner string) string {
	t.Helper()
	w := s.doJSON(http.MethodPost, "/api/v1/sessions", learner, map[string]interface{}{
		"name":            "intro",
		"quiz":            json.RawMessage(quizJSON),
		"allowRetry":      true,
		"showBugReporter": true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[SessionResponse](t, w).ID
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"quiz-service"}`, w.Body.String())
}

func TestSessionHandler_QuizFlow(t *testing.T) {
	s := newTestServer(t)
	id := s.createSession(t, "alice")
	base := "/api/v1/sessions/" + id

	w := s.do(http.MethodGet, base, "alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[SessionResponse](t, w).View
	assert.Equal(t, services.PhaseNotStarted, view.Phase)
	assert.Equal(t, services.DefaultInitialText, view.InitialText)

	w = s.doJSON(http.MethodPost, base+"/start", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, services.PhaseInProgress, decode[SessionResponse](t, w).View.Phase)

	w = s.doJSON(http.MethodGet, base+"/review", "alice", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.doJSON(http.MethodPost, base+"/submit", "alice", map[string]string{"answer": "3"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	submitted := decode[SubmitResponse](t, w)
	require.NotNil(t, submitted.Outcome.Answer)
	assert.False(t, submitted.Outcome.Answer.Correct)
	assert.True(t, submitted.Outcome.Ended)
	assert.Equal(t, services.PhaseEnded, submitted.View.Phase)

	w = s.do(http.MethodGet, base+"/review", "alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	review := decode[services.ReviewView](t, w)
	assert.Equal(t, 0, review.NCorrect)
	assert.Equal(t, 1, review.Total)
	assert.True(t, review.CanRetry)

	w = s.doJSON(http.MethodPost, base+"/retry", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, services.PhaseInProgress, decode[SessionResponse](t, w).View.Phase)

	form := url.Values{"answer": {"2"}}
	w = s.do(http.MethodPost, base+"/submit", "alice", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[SubmitResponse](t, w).Outcome.Answer.Correct)

	w = s.doJSON(http.MethodPost, base+"/retry", "alice", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.doJSON(http.MethodPost, base+"/give-up", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.doJSON(http.MethodPost, base+"/exit", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, services.PhaseNotStarted, decode[SessionResponse](t, w).View.Phase)
}

func TestSessionHandler_OtherLearnersSessionIsHidden(t *testing.T) {
	s := newTestServer(t)
	id := s.createSession(t, "alice")

	w := s.do(http.MethodGet, "/api/v1/sessions/"+id, "bob", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(http.MethodDelete, "/api/v1/sessions/"+id, "", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1, s.sessions.Len())
}

func TestSessionHandler_CreateErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"name":`, http.StatusBadRequest},
		{"bad name", `{"name":"has space","quiz":` + quizJSON + `}`, http.StatusBadRequest},
		{"missing quiz", `{"name":"intro"}`, http.StatusBadRequest},
		{"empty quiz", `{"name":"intro","quiz":{"questions":[]}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/v1/sessions", "alice", "application/json", strings.NewReader(tt.body))
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, w).Message)
		})
	}
	assert.Equal(t, 0, s.sessions.Len())
}

func TestSessionHandler_Mount(t *testing.T) {
	s := newTestServer(t)

	w := s.doJSON(http.MethodPost, "/api/v1/sessions/mount", "alice", MountRequest{Attributes: map[string]string{
		embed.AttrName:        `"intro"`,
		embed.AttrQuestions:   quizJSON,
		embed.AttrFullscreen:  "true",
		embed.AttrInitialText: `"Check your understanding"`,
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	view := decode[SessionResponse](t, w).View
	assert.Equal(t, "intro", view.Name)
	assert.True(t, view.Fullscreen)
	assert.Equal(t, "Check your understanding", view.InitialText)

	w = s.doJSON(http.MethodPost, "/api/v1/sessions/mount", "alice", MountRequest{Attributes: map[string]string{
		embed.AttrName: `"intro"`,
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandler_BugReport(t *testing.T) {
	s := newTestServer(t)
	id := s.createSession(t, "alice")
	path := "/api/v1/sessions/" + id + "/bug-report"

	w := s.doJSON(http.MethodPost, path, "alice", map[string]interface{}{"question": 0, "feedback": "typo"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var bugs []events.BugEvent
	for _, e := range s.telemetry.GetLoggedEvents() {
		if e.Type == events.EventBug {
			bugs = append(bugs, e.Payload.(events.BugEvent))
		}
	}
	assert.Equal(t, []events.BugEvent{{QuizName: "intro", Question: 0, Feedback: "typo"}}, bugs)

	tests := []struct {
		name string
		body map[string]interface{}
		code int
	}{
		{"missing question", map[string]interface{}{"feedback": "typo"}, http.StatusBadRequest},
		{"out of range", map[string]interface{}{"question": 4, "feedback": "typo"}, http.StatusNotFound},
		{"blank feedback", map[string]interface{}{"question": 0, "feedback": " "}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.doJSON(http.MethodPost, path, "alice", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestSessionHandler_Export(t *testing.T) {
	s := newTestServer(t)
	id := s.createSession(t, "alice")
	base := "/api/v1/sessions/" + id

	require.Equal(t, http.StatusOK, s.doJSON(http.MethodPost, base+"/start", "alice", nil).Code)
	require.Equal(t, http.StatusOK, s.doJSON(http.MethodPost, base+"/submit", "alice", map[string]string{"answer": "2"}).Code)

	w := s.do(http.MethodGet, base+"/export?format=csv", "alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="intro-answers.csv"`)
	assert.Contains(t, w.Body.String(), "ShortAnswer")

	w = s.do(http.MethodGet, base+"/export", "alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "spreadsheetml")
	assert.NotZero(t, w.Body.Len())

	w = s.do(http.MethodGet, base+"/export?format=pdf", "alice", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandler_Delete(t *testing.T) {
	s := newTestServer(t)
	id := s.createSession(t, "alice")

	w := s.do(http.MethodDelete, "/api/v1/sessions/"+id, "alice", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(http.MethodGet, "/api/v1/sessions/"+id, "alice", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTelemetryHandler_IngestEvent(t *testing.T) {
	tests := []struct {
		name  string
		event string
		body  string
		code  int
	}{
		{"answers", "answers", `{"quizName":"intro","quizHash":"abc","answers":[],"attempt":0}`, http.StatusAccepted},
		{"bug", "bug", `{"quizName":"intro","question":1,"feedback":"typo"}`, http.StatusAccepted},
		{"runtime error", "runtime_error", `{"error":"boom"}`, http.StatusAccepted},
		{"unknown event", "clicks", `{}`, http.StatusNotFound},
		{"missing field", "bug", `{"quizName":"intro"}`, http.StatusBadRequest},
		{"negative attempt", "answers", `{"quizName":"intro","quizHash":"abc","answers":[],"attempt":-1}`, http.StatusBadRequest},
		{"malformed", "runtime_error", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			w := s.do(http.MethodPost, "/api/v1/telemetry/"+tt.event, "", "application/json", strings.NewReader(tt.body))
			assert.Equal(t, tt.code, w.Code, w.Body.String())

			logged := s.telemetry.GetLoggedEvents()
			if tt.code != http.StatusAccepted {
				assert.Empty(t, logged)
				return
			}
			require.Len(t, logged, 1)
			assert.Equal(t, events.EventType(tt.event), logged[0].Type)
		})
	}
}

func TestValidateHandler(t *testing.T) {
	s := newTestServer(t)
	valid := "[[questions]]\nid = \"one\"\ntype = \"ShortAnswer\"\nprompt.prompt = \"Q\"\nanswer.answer = \"A\"\n"

	// The same quiz validates twice: ids are only unique per request.
	for i := 0; i < 2; i++ {
		w := s.do(http.MethodPost, "/api/v1/validate", "", "application/toml", strings.NewReader(valid))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		report := decode[validator.Report](t, w)
		assert.Equal(t, "quiz.toml", report.Path)
		assert.Empty(t, report.Diagnostics)
	}

	w := s.do(http.MethodPost, "/api/v1/validate?name=broken.toml", "", "application/toml", strings.NewReader("questions = []\n"))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	report := decode[validator.Report](t, w)
	assert.Equal(t, "broken.toml", report.Path)
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, "Quiz must have at least one question", report.Diagnostics[0].Message)

	w = s.do(http.MethodPost, "/api/v1/validate", "", "application/toml", strings.NewReader(strings.Repeat("#", maxQuizSize+1)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRecovery(t *testing.T) {
	s := newTestServer(t)
	s.router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := s.do(http.MethodGet, "/panic", "", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, RuntimeErrorMessage, resp.Message)

	logged := s.telemetry.GetLoggedEvents()
	require.Len(t, logged, 1)
	assert.Equal(t, events.EventRuntimeError, logged[0].Type)
	assert.True(t, strings.HasPrefix(logged[0].Payload.(events.RuntimeErrorEvent).Error, "boom\n"))

	// Later requests are unaffected.
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "", "", nil).Code)
}

func TestBindForm_JSONLists(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"answer":["a","b"],"done":true,"n":2,"skip":null}`))
	c.Request.Header.Set("Content-Type", "application/json")

	form, err := bindForm(c)
	require.NoError(t, err)
	assert.Equal(t, url.Values{"answer": {"a", "b"}, "done": {"true"}, "n": {"2"}}, form)
}
