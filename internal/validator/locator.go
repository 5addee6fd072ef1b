package validator

import (
	"strings"
)

// sourceLocator maps question indices and field paths back to positions in
// the TOML source. It works on lines, so inline tables resolve to the
// question header.
type sourceLocator struct {
	lines     []string
	questions []int // 0-based line of each [[questions]] header
	multipart int   // 0-based line of the [multipart] header, -1 if absent
}

func newSourceLocator(contents string) *sourceLocator {
	l := &sourceLocator{
		lines:     strings.Split(contents, "\n"),
		multipart: -1,
	}
	for i, line := range l.lines {
		switch tableHeader(line) {
		case "[[questions]]":
			l.questions = append(l.questions, i)
		case "[multipart]":
			l.multipart = i
		}
	}
	return l
}

func tableHeader(line string) string {
	line = strings.TrimSpace(line)
	if i := strings.Index(line, "#"); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	return strings.ReplaceAll(line, " ", "")
}

// question returns the 1-based line of the question header, or 0.
func (l *sourceLocator) question(index int) int {
	if index < 0 || index >= len(l.questions) {
		return 0
	}
	return l.questions[index] + 1
}

// field returns the position of a dotted field path inside a question. It
// matches both `prompt.distractors = ...` and `distractors = ...` below a
// [questions.prompt] header, falling back to the question header.
func (l *sourceLocator) field(index int, path string) (line, column int) {
	if index < 0 || index >= len(l.questions) {
		return 0, 0
	}
	if path == "" {
		return l.question(index), 1
	}

	from := l.questions[index] + 1
	to := len(l.lines)
	if index+1 < len(l.questions) {
		to = l.questions[index+1]
	}
	if l.multipart > l.questions[index] && l.multipart < to {
		to = l.multipart
	}

	segments := strings.Split(path, ".")
	table := ""
	for i := from; i < to; i++ {
		text := l.lines[i]
		header := tableHeader(text)
		if strings.HasPrefix(header, "[questions.") && strings.HasSuffix(header, "]") {
			table = strings.TrimSuffix(strings.TrimPrefix(header, "[questions."), "]")
			continue
		}

		key := path
		if table != "" {
			if segments[0] != table {
				continue
			}
			key = strings.Join(segments[1:], ".")
		}
		if col, ok := keyColumn(text, key); ok {
			return i + 1, col
		}
	}
	return l.question(index), 1
}

// multipartKey returns the position of key inside the [multipart] table.
func (l *sourceLocator) multipartKey(key string) (line, column int) {
	if l.multipart < 0 {
		return 0, 0
	}
	for i := l.multipart + 1; i < len(l.lines); i++ {
		if strings.HasPrefix(tableHeader(l.lines[i]), "[") {
			break
		}
		if col, ok := keyColumn(l.lines[i], key); ok {
			return i + 1, col
		}
	}
	return l.multipart + 1, 1
}

// keyColumn reports whether line assigns key, and the 1-based column of it.
func keyColumn(line, key string) (int, bool) {
	if key == "" {
		return 0, false
	}
	trimmed := strings.TrimLeft(line, " \t")
	for _, candidate := range []string{key, `"` + key + `"`} {
		rest, ok := strings.CutPrefix(trimmed, candidate)
		if !ok {
			continue
		}
		if strings.HasPrefix(strings.TrimLeft(rest, " \t"), "=") {
			return len(line) - len(trimmed) + 1, true
		}
	}
	return 0, false
}
