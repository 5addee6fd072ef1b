package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodQuiz = `[[questions]]
id = "one"
type = "ShortAnswer"
prompt.prompt = "What is 1 + 1?"
answer.answer = "2"
`

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func runValidate(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("QUIZ_LIGHTWEIGHT_VALIDATE", "")
	var stdout, stderr bytes.Buffer
	code := Run(args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_ValidFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "quiz.toml", goodQuiz)

	code, stdout, stderr := runValidate(t, "", "-lightweight", path)
	assert.Equal(t, ExitOK, code, stderr)
	assert.Equal(t, path+": OK\n", stdout)
	assert.Empty(t, stderr)
}

func TestRun_Stdin(t *testing.T) {
	code, stdout, stderr := runValidate(t, "questions = []\n", "-lightweight")
	assert.Equal(t, ExitError, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "error: Quiz must have at least one question")
	assert.Contains(t, stderr, "--> <stdin>:1:1")
	assert.Contains(t, stderr, "<stdin>: 1 error(s), 0 warning(s)")

	code, stdout, _ = runValidate(t, goodQuiz, "-lightweight", "-")
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, "<stdin>: OK\n", stdout)
}

func TestRun_WarningsOnly(t *testing.T) {
	path := writeFile(t, t.TempDir(), "quiz.toml", goodQuiz+"hint = \"typo\"\n")

	code, stdout, stderr := runValidate(t, "", "-lightweight", path)
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, path+": OK with 1 warning(s)\n", stdout)
	assert.Contains(t, stderr, "warning: Unknown field: hint")
}

func TestRun_DuplicateIDsAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "a.toml", goodQuiz)
	second := writeFile(t, dir, "b.toml", goodQuiz)

	code, stdout, stderr := runValidate(t, "", "-lightweight", first, second, first)
	assert.Equal(t, ExitError, code)
	assert.Equal(t, first+": OK\n", stdout)
	assert.Contains(t, stderr, "error: Duplicate ID: one")
	assert.Contains(t, stderr, second+":2:1")
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"help", []string{"-h"}, ExitOK},
		{"unknown flag", []string{"-nope"}, ExitUsage},
		{"bad timeout", []string{"-timeout", "0s", "quiz.toml"}, ExitUsage},
		{"missing file", []string{"-lightweight", filepath.Join(t.TempDir(), "missing.toml")}, ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runValidate(t, "", tt.args...)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestRun_LightweightFromEnvironment(t *testing.T) {
	path := writeFile(t, t.TempDir(), "quiz.toml", `[[questions]]
type = "Tracing"
prompt.program = "fn main() {}"
answer.doesCompile = true
answer.stdout = ""
`)
	var stdout, stderr bytes.Buffer
	t.Setenv("QUIZ_LIGHTWEIGHT_VALIDATE", "true")
	t.Setenv("QUIZ_COMPILER", filepath.Join(t.TempDir(), "no-such-rustc"))

	code := Run([]string{path}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, ExitOK, code, stderr.String())
}

func TestRun_CompilerMissing(t *testing.T) {
	path := writeFile(t, t.TempDir(), "quiz.toml", `[[questions]]
type = "Tracing"
prompt.program = "fn main() {}"
answer.doesCompile = true
answer.stdout = ""
`)
	code, _, stderr := runValidate(t, "", "-compiler", filepath.Join(t.TempDir(), "no-such-rustc"), path)
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "quiz-validate: "+path)
}

func TestRunEmbed(t *testing.T) {
	t.Setenv("QUIZ_LIGHTWEIGHT_VALIDATE", "true")
	dir := t.TempDir()
	writeFile(t, dir, "quiz.toml", goodQuiz)
	chapter := writeFile(t, dir, "chapter.md", "# One\n\n{{#quiz quiz.toml}}\n")

	var stdout, stderr bytes.Buffer
	code := RunEmbed([]string{"-fullscreen", chapter}, &stdout, &stderr)
	require.Equal(t, ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), `<div class="quiz-placeholder" data-quiz-name="&#34;quiz&#34;"`)
	assert.Contains(t, stdout.String(), `data-quiz-fullscreen="true"`)

	stdout.Reset()
	assert.Equal(t, ExitUsage, RunEmbed(nil, &stdout, &stderr))
	assert.Equal(t, ExitError, RunEmbed([]string{filepath.Join(dir, "missing.md")}, &stdout, &stderr))
}
