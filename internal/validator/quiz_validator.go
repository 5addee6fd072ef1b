package validator

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/pelletier/go-toml/v2"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/errgroup"
)

//go:embed quiz.schema.json
var quizSchema string

// Validated remembers the files and question ids one validator has seen,
// so a book with several quizzes gets unique ids across all of them.
type Validated struct {
	mu    sync.Mutex
	paths map[string]struct{}
	ids   map[string]struct{}
}

func NewValidated() *Validated {
	return &Validated{
		paths: make(map[string]struct{}),
		ids:   make(map[string]struct{}),
	}
}

// markPath records path and reports whether it was new.
func (v *Validated) markPath(path string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.paths[path]; ok {
		return false
	}
	v.paths[path] = struct{}{}
	return true
}

// claimID records id and reports whether no earlier question used it.
func (v *Validated) claimID(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.ids[id]; ok {
		return false
	}
	v.ids[id] = struct{}{}
	return true
}

type Options struct {
	// Lightweight skips compiling and running Tracing programs.
	Lightweight bool
	Toolchain   Toolchain
	Logger      *slog.Logger
}

// QuizValidator checks quiz TOML files. Passes run in order and a failing
// structural pass stops the later ones: parse, schema, unknown fields,
// struct tags, semantic checks.
type QuizValidator struct {
	structs     *Validator
	schema      *gojsonschema.Schema
	toolchain   Toolchain
	lightweight bool
	validated   *Validated
	logger      *slog.Logger
}

func NewQuizValidator(opts Options) (*QuizValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(quizSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz schema: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	toolchain := opts.Toolchain
	if toolchain == nil && !opts.Lightweight {
		toolchain = NewRustToolchain(DefaultCompiler, DefaultRunTimeout, logger)
	}

	return &QuizValidator{
		structs:     New(),
		schema:      schema,
		toolchain:   toolchain,
		lightweight: opts.Lightweight,
		validated:   NewValidated(),
		logger:      logger,
	}, nil
}

// Fresh returns a validator sharing this one's configuration with an empty
// set of validated files and ids.
func (v *QuizValidator) Fresh() *QuizValidator {
	clone := *v
	clone.validated = NewValidated()
	return &clone
}

// Validate checks one quiz file. The returned error is reserved for failures
// of the validator itself, such as a missing compiler; problems with the
// quiz are diagnostics in the report.
func (v *QuizValidator) Validate(ctx context.Context, path, contents string) (*Report, error) {
	report := newReport(path, contents)
	if path != "" && !v.validated.markPath(path) {
		report.Skipped = true
		return report, nil
	}

	locate := newSourceLocator(contents)

	var doc map[string]interface{}
	if err := toml.Unmarshal([]byte(contents), &doc); err != nil {
		report.add(parseDiagnostic(err))
		return report, nil
	}

	if !v.checkSchema(report, locate, doc) {
		return report, nil
	}
	v.checkUnknownFields(report, locate, doc)

	quiz, err := decodeQuiz(doc)
	if err != nil {
		report.add(Diagnostic{Severity: SeverityError, Question: -1, Message: err.Error(), Line: 1, Column: 1})
		return report, nil
	}

	if !v.checkStructs(report, locate, quiz) {
		return report, nil
	}

	if err := v.checkSemantics(ctx, report, locate, quiz); err != nil {
		return nil, err
	}

	v.logger.DebugContext(ctx, "Validated quiz",
		"path", path,
		"questions", len(quiz.Questions),
		"errors", len(report.Errors()),
		"warnings", len(report.Warnings()))
	return report, nil
}

func parseDiagnostic(err error) Diagnostic {
	d := Diagnostic{
		Severity: SeverityError,
		Question: -1,
		Message:  "TOML parse error: " + err.Error(),
	}
	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		d.Line, d.Column = decodeErr.Position()
	}
	return d
}

func decodeQuiz(doc map[string]interface{}) (*models.Quiz, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode quiz: %w", err)
	}
	quiz, err := models.ParseQuizJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode quiz: %w", err)
	}
	return quiz, nil
}

// ===== SCHEMA =====

// Errors gojsonschema adds on top of the failure that caused them.
var wrapperSchemaErrors = map[string]bool{
	"condition_then": true,
	"condition_else": true,
	"number_all_of":  true,
}

func (v *QuizValidator) checkSchema(report *Report, locate *sourceLocator, doc map[string]interface{}) bool {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		report.add(Diagnostic{Severity: SeverityError, Question: -1, Message: "schema check failed: " + err.Error()})
		return false
	}
	if result.Valid() {
		return true
	}

	for _, re := range result.Errors() {
		if wrapperSchemaErrors[re.Type()] {
			continue
		}

		path := re.Field()
		if path == "(root)" {
			path = ""
		}
		if re.Type() == "required" {
			path = joinPath(path, fmt.Sprint(re.Details()["property"]))
		}

		question, field := splitQuestionPath(path)
		d := Diagnostic{Severity: SeverityError, Question: question, Field: field}
		if re.Type() == "required" {
			d.Message = "Missing required field: " + field
			d.Line, d.Column = locate.field(question, parentPath(field))
		} else {
			d.Message = fmt.Sprintf("%s: %s", field, re.Description())
			d.Line, d.Column = locate.field(question, field)
		}
		if question < 0 {
			d.Line, d.Column = 1, 1
		}
		report.add(d)
	}
	return false
}

// splitQuestionPath turns "questions.2.prompt.distractors" into
// (2, "prompt.distractors"). Paths outside a question get index -1.
func splitQuestionPath(path string) (int, string) {
	rest, ok := strings.CutPrefix(path, "questions.")
	if !ok {
		return -1, path
	}
	indexText, field, _ := strings.Cut(rest, ".")
	index, err := strconv.Atoi(indexText)
	if err != nil {
		return -1, path
	}
	return index, field
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

func parentPath(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[:i]
	}
	return ""
}

// ===== UNKNOWN FIELDS =====

var (
	quizFields     = fieldSet("questions", "multipart")
	questionFields = fieldSet("id", "type", "multipart", "context", "promptExplanation", "prompt", "answer")

	promptFields = map[models.QuestionType]map[string]bool{
		models.ShortAnswer:    fieldSet("prompt", "response"),
		models.MultipleChoice: fieldSet("prompt", "distractors", "answerIndex", "sortAnswers"),
		models.Tracing:        fieldSet("program"),
	}
	answerFields = map[models.QuestionType]map[string]bool{
		models.ShortAnswer:    fieldSet("answer", "alternatives"),
		models.MultipleChoice: fieldSet("answer"),
		models.Tracing:        fieldSet("doesCompile", "stdout", "lineNumber"),
	}
)

func fieldSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

// checkUnknownFields warns about keys the quiz engine ignores. They are
// usually typos of optional fields.
func (v *QuizValidator) checkUnknownFields(report *Report, locate *sourceLocator, doc map[string]interface{}) {
	warn := func(question int, field string) {
		line, column := 1, 1
		if question >= 0 {
			line, column = locate.field(question, field)
		}
		report.add(Diagnostic{
			Severity: SeverityWarning,
			Question: question,
			Field:    field,
			Message:  "Unknown field: " + field,
			Line:     line,
			Column:   column,
		})
	}

	for _, key := range unknownKeys(doc, quizFields) {
		warn(-1, key)
	}

	items, _ := doc["questions"].([]interface{})
	for i, item := range items {
		question, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		for _, key := range unknownKeys(question, questionFields) {
			warn(i, key)
		}

		typ, _ := question["type"].(string)
		for part, known := range map[string]map[models.QuestionType]map[string]bool{"prompt": promptFields, "answer": answerFields} {
			fields, ok := known[models.QuestionType(typ)]
			if !ok {
				continue
			}
			table, _ := question[part].(map[string]interface{})
			for _, key := range unknownKeys(table, fields) {
				warn(i, part+"."+key)
			}
		}
	}
	sortDiagnostics(report.Diagnostics)
}

func unknownKeys(table map[string]interface{}, known map[string]bool) []string {
	var keys []string
	for key := range table {
		if !known[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func sortDiagnostics(diagnostics []Diagnostic) {
	sort.SliceStable(diagnostics, func(i, j int) bool {
		if diagnostics[i].Question != diagnostics[j].Question {
			return diagnostics[i].Question < diagnostics[j].Question
		}
		return diagnostics[i].Line < diagnostics[j].Line
	})
}

// ===== STRUCT TAGS =====

func (v *QuizValidator) checkStructs(report *Report, locate *sourceLocator, quiz *models.Quiz) bool {
	err := v.structs.ValidateStruct(quiz)
	if err == nil {
		return true
	}

	errs := ToValidationErrors(err)
	if len(errs) == 0 {
		report.add(Diagnostic{Severity: SeverityError, Question: -1, Message: err.Error()})
		return false
	}
	for _, e := range errs {
		path := strings.NewReplacer("[", ".", "]", "").Replace(e.Field)
		question, field := splitQuestionPath(path)
		line, column := locate.field(question, field)
		report.add(Diagnostic{
			Severity: SeverityError,
			Question: question,
			Field:    field,
			Message:  fmt.Sprintf("%s %s", field, e.Message),
			Line:     line,
			Column:   column,
		})
	}
	return false
}

// ===== SEMANTICS =====

func (v *QuizValidator) checkSemantics(ctx context.Context, report *Report, locate *sourceLocator, quiz *models.Quiz) error {
	if len(quiz.Questions) == 0 {
		report.add(Diagnostic{Severity: SeverityError, Question: -1, Field: "questions", Message: "Quiz must have at least one question", Line: 1, Column: 1})
		return nil
	}

	fail := func(question int, field, message string) {
		line, column := locate.field(question, field)
		report.add(Diagnostic{
			Severity: SeverityError,
			Question: question,
			Field:    field,
			Message:  message,
			Line:     line,
			Column:   column,
		})
	}

	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		if q.ID != nil && !v.validated.claimID(*q.ID) {
			fail(i, "id", "Duplicate ID: "+*q.ID)
		}
		if key := q.MultipartKey(); key != "" {
			if _, ok := quiz.Multipart[key]; !ok {
				fail(i, "multipart", "Quiz does not have multipart: "+key)
			}
		}

		if mc, ok := q.Body.(*models.MultipleChoiceQuestion); ok {
			if mc.Prompt.AnswerIndex != nil && *mc.Prompt.AnswerIndex > len(mc.Prompt.Distractors) {
				fail(i, "prompt.answerIndex", "Answer index is too large")
			}
			if mc.Prompt.AnswerIndex != nil && mc.Prompt.SortAnswers != nil {
				fail(i, "prompt.sortAnswers", "Cannot use both answerIndex and sortAnswers")
			}
			if mc.Answer.Answer.Multi && len(mc.Answer.Answer.Choices) == 0 {
				fail(i, "answer.answer", "Must be at least one correct answer")
			}
		}
	}

	if v.lightweight || v.toolchain == nil {
		return nil
	}
	return v.checkPrograms(ctx, report, locate, quiz)
}

type programFinding struct {
	field   string
	message string
}

// checkPrograms builds every Tracing program concurrently and adds the
// findings in question order.
func (v *QuizValidator) checkPrograms(ctx context.Context, report *Report, locate *sourceLocator, quiz *models.Quiz) error {
	findings := make([]*programFinding, len(quiz.Questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range quiz.Questions {
		tracing, ok := quiz.Questions[i].Body.(*models.TracingQuestion)
		if !ok {
			continue
		}
		g.Go(func() error {
			finding, err := v.checkProgram(gctx, tracing)
			if err != nil {
				return fmt.Errorf("question %d: %w", i+1, err)
			}
			findings[i] = finding
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, finding := range findings {
		if finding == nil {
			continue
		}
		line, column := locate.field(i, finding.field)
		report.add(Diagnostic{
			Severity: SeverityError,
			Question: i,
			Field:    finding.field,
			Message:  finding.message,
			Line:     line,
			Column:   column,
		})
	}
	return nil
}

func (v *QuizValidator) checkProgram(ctx context.Context, q *models.TracingQuestion) (*programFinding, error) {
	result, err := v.toolchain.Run(ctx, q.Prompt.Program)
	if errors.Is(err, ErrToolchainTimeout) {
		return &programFinding{field: "prompt.program", message: err.Error()}, nil
	}
	if err != nil {
		return nil, err
	}

	answer := q.Answer
	if !result.Compiled {
		switch {
		case answer.DoesCompile:
			return &programFinding{
				field:   "answer.doesCompile",
				message: "program does not compile but doesCompile = true. rustc stderr:\n" + indent(result.CompileStderr),
			}, nil
		case answer.Stdout != nil:
			return &programFinding{field: "answer.stdout", message: "program does not compile but contains a stdout key"}, nil
		}
		return nil, nil
	}

	switch {
	case !answer.DoesCompile:
		return &programFinding{field: "answer.doesCompile", message: "program compiles but doesCompile = false"}, nil
	case answer.Stdout == nil:
		return &programFinding{field: "answer.doesCompile", message: "program compiles but stdout is missing"}, nil
	case !result.RunSucceeded:
		return &programFinding{
			field:   "prompt.program",
			message: "program fails when executed. stderr:\n" + indent(result.Stderr),
		}, nil
	}

	expected := strings.TrimSpace(*answer.Stdout)
	actual := strings.TrimSpace(result.Stdout)
	if expected != actual {
		return &programFinding{
			field:   "answer.stdout",
			message: fmt.Sprintf("expected stdout:\n%s\ndid not match actual stdout:\n%s", indent(expected), indent(actual)),
		}, nil
	}
	return nil, nil
}

func indent(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
