package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/cache"
	"github.com/SAP-F-2025/quiz-service/internal/events"
	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/questions"
	"github.com/SAP-F-2025/quiz-service/internal/validator"
	"github.com/google/uuid"
)

// CreateSessionRequest mirrors the attributes of an embedded quiz
// placeholder.
type CreateSessionRequest struct {
	Name            string       `json:"name" validate:"required,quiz_name"`
	Quiz            *models.Quiz `json:"quiz" validate:"-"`
	Fullscreen      bool         `json:"fullscreen"`
	CacheAnswers    bool         `json:"cacheAnswers"`
	AllowRetry      bool         `json:"allowRetry"`
	ShowBugReporter bool         `json:"showBugReporter"`
	AutoStart       bool         `json:"autoStart"`
	InitialText     string       `json:"initialText"`
}

// ManagedSession is a session owned by the manager.
type ManagedSession struct {
	ID        string
	LearnerID string
	CreatedAt time.Time
	Session   *Session
	Host      *FlagHost
}

type ManagerDeps struct {
	Registry  *questions.Registry
	Store     cache.Store
	Telemetry events.Telemetry
	Validator *validator.Validator
	Logger    *slog.Logger
}

// SessionManager keeps the live sessions of the HTTP API. Each learner's
// progress is stored under its own key prefix.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*ManagedSession

	registry  *questions.Registry
	scoring   ScoringService
	store     cache.Store
	telemetry events.Telemetry
	validator *validator.Validator
	logger    *slog.Logger
	ops       *ServiceLogger
}

func NewSessionManager(deps ManagerDeps) *SessionManager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = questions.NewRegistry(nil)
	}
	if deps.Store == nil {
		deps.Store = cache.NewMemoryStore()
	}
	if deps.Telemetry == nil {
		deps.Telemetry = events.NoopTelemetry{}
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}

	return &SessionManager{
		sessions:  make(map[string]*ManagedSession),
		registry:  deps.Registry,
		scoring:   NewScoringService(deps.Registry, deps.Logger),
		store:     deps.Store,
		telemetry: deps.Telemetry,
		validator: deps.Validator,
		logger:    deps.Logger,
		ops:       NewServiceLogger(deps.Logger, LogConfig{Service: "quiz-service", Component: "sessions"}),
	}
}

// LearnerPrefix namespaces a learner's progress keys.
func LearnerPrefix(learnerID string) string {
	if learnerID == "" {
		return ""
	}
	return "learner:" + learnerID + ":"
}

func (m *SessionManager) Create(ctx context.Context, learnerID string, req *CreateSessionRequest) (*ManagedSession, error) {
	if req == nil {
		return nil, ErrBadRequest
	}
	op := m.ops.WithOperation(ctx, "create_session", "")
	managed, err := m.create(ctx, learnerID, req)
	op.sessionID = managedID(managed)
	op.LogResult(req.Name, err)
	return managed, err
}

func (m *SessionManager) create(ctx context.Context, learnerID string, req *CreateSessionRequest) (*ManagedSession, error) {
	if err := m.validator.Validate(req); err != nil {
		return nil, err
	}

	host := &FlagHost{}
	session, err := NewSession(ctx, SessionConfig{
		Name:            req.Name,
		Quiz:            req.Quiz,
		Fullscreen:      req.Fullscreen,
		CacheAnswers:    req.CacheAnswers,
		AllowRetry:      req.AllowRetry,
		ShowBugReporter: req.ShowBugReporter,
		AutoStart:       req.AutoStart,
		InitialText:     req.InitialText,
	}, SessionDeps{
		Registry:  m.registry,
		Scoring:   m.scoring,
		Storage:   cache.WithPrefix(m.store, LearnerPrefix(learnerID)),
		Telemetry: m.telemetry,
		Host:      host,
		Logger:    m.logger,
	})
	if err != nil {
		return nil, err
	}

	managed := &ManagedSession{
		ID:        uuid.NewString(),
		LearnerID: learnerID,
		CreatedAt: time.Now(),
		Session:   session,
		Host:      host,
	}

	m.mu.Lock()
	m.sessions[managed.ID] = managed
	m.mu.Unlock()
	return managed, nil
}

func (m *SessionManager) Get(id string) (*ManagedSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	managed, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return managed, nil
}

// Do runs one named session operation with operation logging.
func (m *SessionManager) Do(ctx context.Context, id, operation string, fn func(*Session) error) error {
	op := m.ops.WithOperation(ctx, operation, id)
	managed, err := m.Get(id)
	if err != nil {
		op.LogResult("", err)
		return err
	}
	err = fn(managed.Session)
	op.LogResult(managed.Session.Name(), err)
	return err
}

func (m *SessionManager) Start(ctx context.Context, id string) error {
	return m.Do(ctx, id, "start", func(s *Session) error { return s.Start(ctx) })
}

func (m *SessionManager) Submit(ctx context.Context, id string, form url.Values) (*SubmitOutcome, error) {
	var outcome *SubmitOutcome
	err := m.Do(ctx, id, "submit", func(s *Session) error {
		var err error
		outcome, err = s.Submit(ctx, form)
		return err
	})
	return outcome, err
}

func (m *SessionManager) Retry(ctx context.Context, id string) error {
	return m.Do(ctx, id, "retry", func(s *Session) error { return s.Retry(ctx) })
}

func (m *SessionManager) GiveUp(ctx context.Context, id string) error {
	return m.Do(ctx, id, "give_up", func(s *Session) error { return s.GiveUp(ctx) })
}

func (m *SessionManager) Exit(ctx context.Context, id string) error {
	return m.Do(ctx, id, "exit", func(s *Session) error { return s.Exit(ctx) })
}

func (m *SessionManager) ReportBug(ctx context.Context, id string, index int, feedback string) error {
	return m.Do(ctx, id, "report_bug", func(s *Session) error { return s.ReportBug(ctx, index, feedback) })
}

// Delete closes a session and forgets it. Stored progress is kept.
func (m *SessionManager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	managed, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	managed.Session.Close()
	m.logger.InfoContext(ctx, "Session deleted", "session_id", id, "quiz_name", managed.Session.Name())
	return nil
}

func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes every session.
func (m *SessionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, managed := range m.sessions {
		managed.Session.Close()
		delete(m.sessions, id)
	}
}

func managedID(managed *ManagedSession) string {
	if managed == nil {
		return ""
	}
	return managed.ID
}
