package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/cache"
	apperrors "github.com/SAP-F-2025/quiz-service/internal/errors"
	"github.com/SAP-F-2025/quiz-service/internal/events"
	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/SAP-F-2025/quiz-service/internal/questions"
)

// ExplanationField is the form field holding the learner's rationale.
const ExplanationField = "explanation"

const explanationLabel = "In 1-2 sentences, please explain why you picked this answer."

type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseInProgress Phase = "in_progress"
	PhaseEnded      Phase = "ended"
)

type SubmitStage string

const (
	// SubmitExplanationRequired means the response was accepted but the
	// answer is only scored once an explanation is submitted.
	SubmitExplanationRequired SubmitStage = "explanation_required"
	SubmitScored              SubmitStage = "scored"
)

type SessionConfig struct {
	Name            string
	Quiz            *models.Quiz
	Fullscreen      bool
	CacheAnswers    bool
	AllowRetry      bool
	ShowBugReporter bool
	AutoStart       bool

	// InitialText labels the start screen. Empty means DefaultInitialText.
	InitialText string

	// OnFinish receives a copy of the answers whenever a pass ends. It is
	// called without the session lock held.
	OnFinish func(answers []models.TaggedAnswer)
}

// SessionDeps are the collaborators of a session. Nil fields get defaults.
type SessionDeps struct {
	Registry  *questions.Registry
	Scoring   ScoringService
	Storage   cache.Store
	Telemetry events.Telemetry
	Host      PageHost
	Clock     func() time.Time
	Rand      *rand.Rand
	Logger    *slog.Logger
}

// ===== VIEWS =====

type SubmitOutcome struct {
	Stage         SubmitStage          `json:"stage"`
	Answer        *models.TaggedAnswer `json:"answer,omitempty"`
	Ended         bool                 `json:"ended"`
	ConfirmedDone bool                 `json:"confirmedDone"`
}

type HeaderView struct {
	Title   string `json:"title"`
	Counter string `json:"counter,omitempty"`
}

// MultipartView is the shared context of a question group. Only the first
// member carries the content; later members link back to it.
type MultipartView struct {
	Anchor  string `json:"anchor"`
	Heading string `json:"heading,omitempty"`
	HTML    string `json:"html,omitempty"`
}

type QuestionView struct {
	Index       int                    `json:"index"`
	Title       string                 `json:"title"`
	Type        models.QuestionType    `json:"type"`
	Attempt     int                    `json:"attempt"`
	Multipart   *MultipartView         `json:"multipart,omitempty"`
	Prompt      questions.PromptView   `json:"prompt"`
	Form        questions.ResponseForm `json:"form"`
	Explanation *questions.Field       `json:"explanation,omitempty"`
	Submittable bool                   `json:"submittable"`
	BugReporter bool                   `json:"bugReporter"`
}

type ReviewItem struct {
	Index         int                   `json:"index"`
	Title         string                `json:"title"`
	Multipart     *MultipartView        `json:"multipart,omitempty"`
	Prompt        questions.PromptView  `json:"prompt"`
	Answer        questions.AnswerView  `json:"answer"`
	Correct       bool                  `json:"correct"`
	CorrectAnswer *questions.AnswerView `json:"correctAnswer,omitempty"`
	Context       string                `json:"context,omitempty"`
}

type ReviewView struct {
	Summary  string       `json:"summary"`
	NCorrect int          `json:"nCorrect"`
	Total    int          `json:"total"`
	CanRetry bool         `json:"canRetry"`
	Items    []ReviewItem `json:"items"`
}

type SessionView struct {
	Name        string           `json:"name"`
	Phase       Phase            `json:"phase"`
	Fullscreen  bool             `json:"fullscreen"`
	InitialText string           `json:"initialText,omitempty"`
	Header      HeaderView       `json:"header"`
	Question    *QuestionView    `json:"question,omitempty"`
	Review      *ReviewView      `json:"review,omitempty"`
	State       models.QuizState `json:"state"`
}

const DefaultInitialText = "Quiz"

// ===== SESSION =====

// appearance is one showing of a question. It lives until the question is
// answered or the session moves elsewhere.
type appearance struct {
	index   int
	start   time.Time
	pending url.Values
}

// Session runs one quiz for one learner. All methods are safe for
// concurrent use; calls are applied one at a time.
type Session struct {
	mu sync.Mutex

	config    SessionConfig
	quizHash  string
	titles    []string
	registry  *questions.Registry
	scoring   ScoringService
	storage   *AnswerStorage
	telemetry events.Telemetry
	host      PageHost
	clock     func() time.Time
	rng       *rand.Rand
	logger    *slog.Logger

	state    models.QuizState
	states   map[int]*questions.State
	current  *appearance
	captured bool
	closed   bool
}

func NewSession(ctx context.Context, config SessionConfig, deps SessionDeps) (*Session, error) {
	if config.Quiz == nil || len(config.Quiz.Questions) == 0 {
		return nil, fmt.Errorf("%w: quiz must have at least one question", ErrInvalidQuiz)
	}
	if strings.TrimSpace(config.Name) == "" {
		return nil, apperrors.RequiredFields([]string{"name"})
	}

	quizHash, err := config.Quiz.Hash()
	if err != nil {
		return nil, err
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = questions.NewRegistry(nil)
	}
	if deps.Scoring == nil {
		deps.Scoring = NewScoringService(deps.Registry, deps.Logger)
	}
	if deps.Storage == nil {
		deps.Storage = cache.NewMemoryStore()
	}
	if deps.Telemetry == nil {
		deps.Telemetry = events.NoopTelemetry{}
	}
	if deps.Host == nil {
		deps.Host = NoopHost{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	logger := deps.Logger.With("quiz_name", config.Name)
	s := &Session{
		config:    config,
		quizHash:  quizHash,
		titles:    models.GenerateQuestionTitles(config.Quiz),
		registry:  deps.Registry,
		scoring:   deps.Scoring,
		storage:   NewAnswerStorage(deps.Storage, config.Name, quizHash, deps.Logger),
		telemetry: deps.Telemetry,
		host:      deps.Host,
		clock:     deps.Clock,
		rng:       deps.Rand,
		logger:    logger,
		states:    make(map[int]*questions.State),
	}

	s.state = s.loadState(ctx)
	s.syncCaptureLocked()
	return s, nil
}

func (s *Session) loadState(ctx context.Context) models.QuizState {
	n := len(s.config.Quiz.Questions)
	fresh := models.QuizState{Started: s.config.AutoStart, Answers: []models.TaggedAnswer{}}
	if !s.config.CacheAnswers {
		return fresh
	}

	stored := s.storage.Load(ctx)
	if stored == nil {
		return fresh
	}
	if len(stored.Answers) > n {
		s.logger.Warn("Discarding stored answers longer than the quiz", "answers", len(stored.Answers))
		return fresh
	}

	state := models.QuizState{
		Started:       true,
		Index:         n,
		Attempt:       stored.Attempt,
		ConfirmedDone: stored.ConfirmedDone,
		Answers:       stored.Answers,
		WrongAnswers:  stored.WrongAnswers,
	}
	if state.Answers == nil {
		state.Answers = []models.TaggedAnswer{}
	}
	// A pass that was interrupted resumes at the first unanswered question.
	if len(state.Answers) < n {
		state.Index = len(state.Answers)
	}
	// Progress is saved after every retry submission, so the stored retry
	// set can be older than the answers it refers to.
	if state.Attempt > 0 && !state.ConfirmedDone && len(state.Answers) == n {
		state.WrongAnswers = wrongAnswerIndices(state.Answers)
		if len(state.WrongAnswers) == 0 {
			state.ConfirmedDone = true
		}
	}
	if state.WrongAnswers == nil && state.Attempt > 0 {
		state.WrongAnswers = make([]int, n)
		for i := range state.WrongAnswers {
			state.WrongAnswers[i] = i
		}
	}

	s.logger.Info("Restored quiz progress",
		"index", state.Index,
		"attempt", state.Attempt,
		"confirmed_done", state.ConfirmedDone)
	return state
}

// ===== ACCESSORS =====

func (s *Session) Name() string {
	return s.config.Name
}

func (s *Session) QuizHash() string {
	return s.quizHash
}

func (s *Session) Quiz() *models.Quiz {
	return s.config.Quiz
}

func (s *Session) Titles() []string {
	return slices.Clone(s.titles)
}

// State returns a copy of the current progress.
func (s *Session) State() models.QuizState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseLocked()
}

func (s *Session) phaseLocked() Phase {
	switch {
	case !s.state.Started:
		return PhaseNotStarted
	case s.state.Index >= len(s.config.Quiz.Questions):
		return PhaseEnded
	default:
		return PhaseInProgress
	}
}

// firstPassLocked reports whether answers are still being appended rather
// than overwritten.
func (s *Session) firstPassLocked() bool {
	return len(s.state.Answers) < len(s.config.Quiz.Questions)
}

// ===== TRANSITIONS =====

// Start moves a session that has not started to the first question.
// Starting a started session does nothing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.state.Started {
		return nil
	}

	s.state.Started = true
	s.current = nil
	s.syncCaptureLocked()
	s.logger.InfoContext(ctx, "Quiz started", "attempt", s.state.Attempt)
	return nil
}

// Current describes the question in progress.
func (s *Session) Current() (*QuestionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requirePhaseLocked(PhaseInProgress); err != nil {
		return nil, err
	}
	return s.questionViewLocked(), nil
}

// Submit answers the question in progress. For questions that ask for an
// explanation on the first attempt, the first call only stages the response
// and the second call, carrying the explanation, scores it.
func (s *Session) Submit(ctx context.Context, form url.Values) (*SubmitOutcome, error) {
	s.mu.Lock()
	outcome, finished, err := s.submitLocked(ctx, form)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if finished != nil && s.config.OnFinish != nil {
		s.config.OnFinish(finished)
	}
	return outcome, nil
}

func (s *Session) submitLocked(ctx context.Context, form url.Values) (*SubmitOutcome, []models.TaggedAnswer, error) {
	if err := s.requirePhaseLocked(PhaseInProgress); err != nil {
		return nil, nil, err
	}

	index := s.state.Index
	q := &s.config.Quiz.Questions[index]
	methods, err := s.registry.For(q)
	if err != nil {
		return nil, nil, fmt.Errorf("question %d: %w", index, err)
	}

	app := s.appearanceLocked()
	response := form
	var explanation *string
	if q.PromptExplanation && s.state.Attempt == 0 {
		if app.pending == nil {
			if missing := methods.MissingFields(q, form); len(missing) > 0 {
				return nil, nil, apperrors.RequiredFields(missing)
			}
			app.pending = cloneValues(form)
			return &SubmitOutcome{Stage: SubmitExplanationRequired}, nil, nil
		}

		text := form.Get(ExplanationField)
		if strings.TrimSpace(text) == "" {
			return nil, nil, apperrors.RequiredFields([]string{ExplanationField})
		}
		explanation = &text
		response = app.pending
	}

	answer, err := s.scoring.Score(q, response, app.start, s.clock(), explanation)
	if err != nil {
		return nil, nil, err
	}

	finished := s.recordLocked(ctx, *answer)
	return &SubmitOutcome{
		Stage:         SubmitScored,
		Answer:        answer,
		Ended:         finished != nil,
		ConfirmedDone: s.state.ConfirmedDone,
	}, finished, nil
}

// recordLocked applies a scored answer and returns the answers when the
// pass ended.
func (s *Session) recordLocked(ctx context.Context, answer models.TaggedAnswer) []models.TaggedAnswer {
	n := len(s.config.Quiz.Questions)
	index := s.state.Index

	if s.firstPassLocked() {
		s.state.Answers = append(s.state.Answers, answer)
		s.state.Index++
	} else {
		s.state.Answers[index] = answer
		s.state.Index = nextWrongAnswer(s.state.WrongAnswers, index, n)
	}
	s.current = nil

	s.telemetry.Log(ctx, events.EventAnswers, events.AnswersEvent{
		QuizName: s.config.Name,
		QuizHash: s.quizHash,
		Answers:  models.CloneAnswers(s.state.Answers),
		Attempt:  s.state.Attempt,
	})

	ended := s.state.Index == n
	if ended {
		wrong := wrongAnswerIndices(s.state.Answers)
		if len(wrong) == 0 || !s.config.AllowRetry {
			s.state.ConfirmedDone = true
		} else {
			s.state.WrongAnswers = wrong
		}
		s.logger.InfoContext(ctx, "Quiz pass finished",
			"attempt", s.state.Attempt,
			"wrong", len(wrong),
			"confirmed_done", s.state.ConfirmedDone)
	}

	s.saveLocked(ctx)
	s.syncCaptureLocked()

	if !ended {
		return nil
	}
	return models.CloneAnswers(s.state.Answers)
}

// Retry starts another pass over the questions answered wrongly.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requirePhaseLocked(PhaseEnded); err != nil {
		return err
	}
	if s.state.ConfirmedDone || len(s.state.WrongAnswers) == 0 {
		return s.ruleErrorLocked(ErrRetryNotAvailable, "retry_available")
	}

	s.state.Index = s.state.WrongAnswers[0]
	s.state.Attempt++
	s.current = nil
	s.syncCaptureLocked()
	s.logger.InfoContext(ctx, "Quiz retry started",
		"attempt", s.state.Attempt,
		"questions", len(s.state.WrongAnswers))
	return nil
}

// GiveUp ends the quiz without further retries and reveals the answers.
func (s *Session) GiveUp(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requirePhaseLocked(PhaseEnded); err != nil {
		return err
	}
	if s.state.ConfirmedDone {
		return nil
	}

	s.state.ConfirmedDone = true
	s.saveLocked(ctx)
	s.logger.InfoContext(ctx, "Quiz given up", "attempt", s.state.Attempt)
	return nil
}

// Exit returns to the start screen. The attempt counter and any stored
// progress are kept.
func (s *Session) Exit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	s.state.Started = false
	s.state.Index = 0
	s.state.Answers = []models.TaggedAnswer{}
	s.current = nil
	s.syncCaptureLocked()
	s.logger.InfoContext(ctx, "Quiz exited", "attempt", s.state.Attempt)
	return nil
}

// ReportBug sends the learner's feedback about one question.
func (s *Session) ReportBug(ctx context.Context, index int, feedback string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if !s.config.ShowBugReporter {
		return s.ruleErrorLocked(ErrBadRequest, "bug_reporter_enabled")
	}
	if index < 0 || index >= len(s.config.Quiz.Questions) {
		return fmt.Errorf("%w: %d", ErrQuestionOutOfRange, index)
	}
	if strings.TrimSpace(feedback) == "" {
		return apperrors.RequiredFields([]string{"feedback"})
	}

	s.telemetry.Log(ctx, events.EventBug, events.BugEvent{
		QuizName: s.config.Name,
		Question: index,
		Feedback: feedback,
	})
	return nil
}

// Close releases the page capture. Later transitions fail with
// ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.syncCaptureLocked()
}

// ===== VIEWS =====

func (s *Session) Header() HeaderView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headerLocked()
}

func (s *Session) headerLocked() HeaderView {
	n := len(s.config.Quiz.Questions)
	header := HeaderView{Title: "Quiz"}

	switch s.phaseLocked() {
	case PhaseNotStarted:
		header.Counter = fmt.Sprintf("%d question", n)
		if n > 1 {
			header.Counter += "s"
		}
	case PhaseInProgress:
		position, total := s.state.Index, n
		if !s.firstPassLocked() {
			if i := slices.Index(s.state.WrongAnswers, s.state.Index); i >= 0 {
				position, total = i, len(s.state.WrongAnswers)
			}
		}
		header.Counter = fmt.Sprintf("Question %d / %d", position+1, total)
	}
	return header
}

// Review describes the answer review shown once a pass ended.
func (s *Session) Review() (*ReviewView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requirePhaseLocked(PhaseEnded); err != nil {
		return nil, err
	}
	return s.reviewLocked(), nil
}

func (s *Session) reviewLocked() *ReviewView {
	renderer := s.registry.Renderer()
	showCorrect := s.state.ConfirmedDone
	review := &ReviewView{
		Total:    len(s.config.Quiz.Questions),
		CanRetry: !s.state.ConfirmedDone,
	}

	for i := range s.config.Quiz.Questions {
		q := &s.config.Quiz.Questions[i]
		item := ReviewItem{
			Index:     i,
			Title:     s.titles[i],
			Multipart: s.multipartLocked(q, i),
		}
		if i < len(s.state.Answers) {
			item.Correct = s.state.Answers[i].Correct
		}
		if item.Correct {
			review.NCorrect++
		}

		methods, err := s.registry.For(q)
		if err != nil {
			item.Prompt = s.registry.UnknownTypeView(q)
			review.Items = append(review.Items, item)
			continue
		}
		item.Prompt = methods.PromptView(q)
		if i < len(s.state.Answers) {
			item.Answer = methods.AnswerView(q, s.state.Answers[i].Answer)
		}
		if showCorrect && !item.Correct {
			if reference, err := questions.ReferenceAnswer(q); err == nil {
				view := methods.AnswerView(q, reference)
				item.CorrectAnswer = &view
			}
		}
		if showCorrect && q.Context != nil {
			item.Context = renderer.Markdown("**Context**:\n" + *q.Context)
		}
		review.Items = append(review.Items, item)
	}

	review.Summary = fmt.Sprintf("You answered %d/%d questions correctly.", review.NCorrect, review.Total)
	return review
}

// View is a full snapshot for rendering the quiz.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	phase := s.phaseLocked()
	view := SessionView{
		Name:       s.config.Name,
		Phase:      phase,
		Fullscreen: s.config.Fullscreen && phase == PhaseInProgress,
		Header:     s.headerLocked(),
		State:      s.state.Clone(),
	}
	switch phase {
	case PhaseNotStarted:
		view.InitialText = s.config.InitialText
		if view.InitialText == "" {
			view.InitialText = DefaultInitialText
		}
	case PhaseInProgress:
		view.Question = s.questionViewLocked()
	case PhaseEnded:
		view.Review = s.reviewLocked()
	}
	return view
}

func (s *Session) questionViewLocked() *QuestionView {
	index := s.state.Index
	q := &s.config.Quiz.Questions[index]
	view := &QuestionView{
		Index:       index,
		Title:       s.titles[index],
		Type:        q.Type,
		Attempt:     s.state.Attempt,
		Multipart:   s.multipartLocked(q, index),
		BugReporter: s.config.ShowBugReporter,
	}

	methods, err := s.registry.For(q)
	if err != nil {
		view.Prompt = s.registry.UnknownTypeView(q)
		return view
	}

	app := s.appearanceLocked()
	view.Prompt = methods.PromptView(q)
	view.Form = methods.ResponseForm(q, s.questionStateLocked(index, q, methods))
	view.Submittable = true
	if app.pending != nil {
		view.Form.Disabled = true
		view.Explanation = &questions.Field{
			Name:     ExplanationField,
			Kind:     questions.FieldTextarea,
			Label:    explanationLabel,
			Required: true,
		}
	}
	return view
}

func (s *Session) multipartLocked(q *models.Question, index int) *MultipartView {
	key := q.MultipartKey()
	if key == "" {
		return nil
	}

	title := s.titles[index]
	view := &MultipartView{Anchor: s.config.Name + "-" + key}
	if strings.HasSuffix(title, "a") {
		group := strings.TrimSuffix(title, "a")
		view.Heading = fmt.Sprintf("Question %s has multiple parts. The box below contains the shared context for each part.", group)
		view.HTML = s.registry.Renderer().Markdown(s.config.Quiz.Multipart[key])
	}
	return view
}

// ===== HELPERS =====

func (s *Session) requirePhaseLocked(want Phase) error {
	if s.closed {
		return ErrSessionClosed
	}
	got := s.phaseLocked()
	if got == want {
		return nil
	}

	var cause error
	switch got {
	case PhaseNotStarted:
		cause = ErrQuizNotStarted
	case PhaseInProgress:
		cause = ErrQuizNotEnded
	default:
		cause = ErrQuizEnded
	}
	return s.ruleErrorLocked(cause, "phase_"+string(want))
}

func (s *Session) ruleErrorLocked(cause error, rule string) error {
	return NewBusinessRuleError(cause, rule, map[string]interface{}{
		"quiz_name": s.config.Name,
		"index":     s.state.Index,
		"attempt":   s.state.Attempt,
	})
}

func (s *Session) appearanceLocked() *appearance {
	if s.current == nil || s.current.index != s.state.Index {
		s.current = &appearance{index: s.state.Index, start: s.clock()}
	}
	return s.current
}

// questionStateLocked derives a question's presentation state once per
// session so re-renders and retries show the same choices.
func (s *Session) questionStateLocked(index int, q *models.Question, methods questions.Methods) *questions.State {
	if state, ok := s.states[index]; ok {
		return state
	}
	state := methods.QuestionState(q, s.rng)
	s.states[index] = state
	return state
}

func (s *Session) saveLocked(ctx context.Context) {
	if !s.config.CacheAnswers {
		return
	}
	if err := s.storage.Save(ctx, s.state); err != nil {
		s.logger.ErrorContext(ctx, "Failed to save quiz progress", "error", err)
	}
}

// syncCaptureLocked holds the page capture exactly while a fullscreen quiz
// has a question in progress.
func (s *Session) syncCaptureLocked() {
	want := !s.closed && s.config.Fullscreen && s.phaseLocked() == PhaseInProgress
	switch {
	case want && !s.captured:
		s.host.CaptureInput()
		s.captured = true
	case !want && s.captured:
		s.host.ReleaseInput()
		s.captured = false
	}
}

func wrongAnswerIndices(answers []models.TaggedAnswer) []int {
	var wrong []int
	for i, a := range answers {
		if !a.Correct {
			wrong = append(wrong, i)
		}
	}
	return wrong
}

// nextWrongAnswer returns the first wrong answer after index, or n.
func nextWrongAnswer(wrong []int, index, n int) int {
	for _, i := range wrong {
		if i > index {
			return i
		}
	}
	return n
}

func cloneValues(form url.Values) url.Values {
	out := make(url.Values, len(form))
	for k, v := range form {
		out[k] = slices.Clone(v)
	}
	return out
}
