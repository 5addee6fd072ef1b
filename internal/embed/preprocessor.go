package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/SAP-F-2025/quiz-service/internal/validator"
	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

var (
	ErrInvalidQuiz   = errors.New("quiz file is invalid")
	ErrQuizTables    = errors.New("questions must be written as [[questions]] tables")
	directivePattern = regexp.MustCompile(`\{\{#quiz ([^}]+)\}\}`)
)

// Config holds the book-level options copied onto every placeholder.
type Config struct {
	Fullscreen      bool
	CacheAnswers    bool
	ShowBugReporter bool
	InitialText     string
	DefaultLanguage string

	// DevMode drops answer caching so authors always see a fresh quiz.
	DevMode bool
}

// Preprocessor expands {{#quiz path}} directives in chapter markdown into
// placeholder elements that mount one quiz session each.
type Preprocessor struct {
	config    Config
	validator *validator.QuizValidator
	logger    *slog.Logger
	newID     func() string
}

func NewPreprocessor(config Config, v *validator.QuizValidator, logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preprocessor{
		config:    config,
		validator: v,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// Process replaces every quiz directive in content. Quiz paths are relative
// to chapterDir. Questions without an id get one, and the quiz file is
// rewritten in place.
func (p *Preprocessor) Process(ctx context.Context, chapterDir, content string) (string, error) {
	matches := directivePattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content, nil
	}

	var out strings.Builder
	last := 0
	for _, m := range matches {
		quizPath := strings.TrimSpace(content[m[2]:m[3]])
		placeholder, err := p.processQuiz(ctx, chapterDir, quizPath)
		if err != nil {
			return "", err
		}
		out.WriteString(content[last:m[0]])
		out.WriteString(placeholder)
		last = m[1]
	}
	out.WriteString(content[last:])

	// Keep the markdown after the last placeholder a separate block.
	out.WriteString("\n\n")
	return out.String(), nil
}

func (p *Preprocessor) processQuiz(ctx context.Context, chapterDir, quizPath string) (string, error) {
	path := filepath.Join(chapterDir, quizPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read quiz file: %s: %w", path, err)
	}
	contents := string(data)

	if p.validator != nil {
		report, err := p.validator.Validate(ctx, path, contents)
		if err != nil {
			return "", fmt.Errorf("failed to validate %s: %w", path, err)
		}
		if report.HasErrors() {
			var rendered bytes.Buffer
			report.Render(&rendered)
			return "", fmt.Errorf("%w: %s\n%s", ErrInvalidQuiz, path, rendered.String())
		}
	}

	contents, changed, err := p.insertIDs(contents)
	if err != nil {
		return "", fmt.Errorf("failed to add question ids to %s: %w", path, err)
	}
	if changed {
		if err := writeKeepingMode(path, contents); err != nil {
			return "", err
		}
		p.logger.InfoContext(ctx, "Added question ids to quiz", "path", path)
	}

	var doc map[string]interface{}
	if err := toml.Unmarshal([]byte(contents), &doc); err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(quizPath), filepath.Ext(quizPath))
	return p.placeholder(name, doc)
}

// insertIDs adds `id = "<uuid>"` below every [[questions]] header whose
// table has no id. Everything else in the file is left byte for byte.
func (p *Preprocessor) insertIDs(contents string) (string, bool, error) {
	var doc struct {
		Questions []map[string]interface{} `toml:"questions"`
	}
	if err := toml.Unmarshal([]byte(contents), &doc); err != nil {
		return "", false, err
	}

	lines := strings.Split(contents, "\n")
	var headers []int
	for i, line := range lines {
		if strings.ReplaceAll(strings.TrimSpace(stripComment(line)), " ", "") == "[[questions]]" {
			headers = append(headers, i)
		}
	}
	if len(headers) != len(doc.Questions) {
		return "", false, ErrQuizTables
	}

	changed := false
	for i := len(headers) - 1; i >= 0; i-- {
		if _, ok := doc.Questions[i]["id"]; ok {
			continue
		}
		line := fmt.Sprintf("id = %q", p.newID())
		at := headers[i] + 1
		lines = append(lines[:at], append([]string{line}, lines[at:]...)...)
		changed = true
	}
	return strings.Join(lines, "\n"), changed, nil
}

func stripComment(line string) string {
	if i := strings.Index(line, "#"); i >= 0 {
		return line[:i]
	}
	return line
}

func writeKeepingMode(path, contents string) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(contents), mode); err != nil {
		return fmt.Errorf("failed to write quiz file: %s: %w", path, err)
	}
	return nil
}

// placeholder renders the mount element. Every data attribute holds a JSON
// value, escaped for a double-quoted attribute.
func (p *Preprocessor) placeholder(name string, quiz map[string]interface{}) (string, error) {
	var b strings.Builder
	b.WriteString(`<div class="quiz-placeholder"`)

	attr := func(key string, value interface{}) error {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		fmt.Fprintf(&b, ` %s="%s"`, key, html.EscapeString(string(data)))
		return nil
	}

	if err := attr(AttrName, name); err != nil {
		return "", err
	}
	if err := attr(AttrQuestions, quiz); err != nil {
		return "", err
	}
	if p.config.Fullscreen {
		attr(AttrFullscreen, true)
	}
	if p.config.CacheAnswers && !p.config.DevMode {
		attr(AttrCacheAnswers, true)
	}
	if p.config.DefaultLanguage != "" {
		attr(AttrDefaultLanguage, p.config.DefaultLanguage)
	}
	if p.config.ShowBugReporter {
		attr(AttrShowBugReporter, true)
	}
	if p.config.InitialText != "" {
		attr(AttrInitialText, p.config.InitialText)
	}

	b.WriteString("></div>")
	return b.String(), nil
}
