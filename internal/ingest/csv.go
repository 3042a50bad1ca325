// Package ingest turns operator-entered delimited text into validated
// question drafts. It is pure: no I/O, same input always yields the
// same output.
package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"quizbank-service/internal/domain"
)

// expectedHeader is the fixed header row, matched case-insensitively
// field by field.
var expectedHeader = []string{
	"subject", "difficulty", "question",
	"option1", "option2", "option3", "option4",
	"correctAnswerIndex",
}

const fieldsPerRow = 8

// Result carries everything Parse found: the header verdict, the drafts
// that passed every rule, and one message per rejected line. Row errors
// accumulate; a bad header suppresses row processing entirely.
type Result struct {
	HeaderValid bool
	Rows        []domain.QuestionDraft
	Errors      []string
}

// Parse validates raw CSV text against the upload grammar.
func Parse(text string) Result {
	res := Result{Rows: []domain.QuestionDraft{}, Errors: []string{}}

	lines := splitLines(text)
	if len(lines) == 0 {
		res.Errors = append(res.Errors, "Input is empty.")
		return res
	}

	header := splitFields(lines[0])
	if !headerMatches(header) {
		res.Errors = append(res.Errors, "Header row does not match the expected format.")
		return res
	}
	res.HeaderValid = true

	for i, line := range lines[1:] {
		lineNo := i + 2 // header is line 1
		fields := splitFields(line)
		if len(fields) != fieldsPerRow {
			res.Errors = append(res.Errors, fmt.Sprintf("Line %d: expected %d fields, got %d.", lineNo, fieldsPerRow, len(fields)))
			continue
		}
		subject, difficulty, question := fields[0], fields[1], fields[2]
		if subject == "" || difficulty == "" || question == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("Line %d: subject, difficulty and question are required.", lineNo))
			continue
		}
		idx, err := strconv.Atoi(fields[7])
		if err != nil || idx < 0 || idx > domain.OptionCount-1 {
			res.Errors = append(res.Errors, fmt.Sprintf("Line %d: correctAnswerIndex must be an integer between 0 and 3.", lineNo))
			continue
		}
		res.Rows = append(res.Rows, domain.QuestionDraft{
			Subject:            subject,
			Difficulty:         difficulty,
			Question:           question,
			Options:            []string{fields[3], fields[4], fields[5], fields[6]},
			CorrectAnswerIndex: idx,
		})
	}
	return res
}

// splitLines normalizes line endings and drops blank lines.
func splitLines(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	var lines []string
	for _, line := range strings.Split(normalized, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// splitFields scans one line left to right. Inside a quoted span a
// doubled quote is a literal quote; an unquoted comma ends the field.
// Each field is trimmed of surrounding whitespace.
func splitFields(line string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				cur.WriteRune('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	fields = append(fields, strings.TrimSpace(cur.String()))
	return fields
}

func headerMatches(fields []string) bool {
	if len(fields) != len(expectedHeader) {
		return false
	}
	for i, want := range expectedHeader {
		if !strings.EqualFold(fields[i], want) {
			return false
		}
	}
	return true
}
