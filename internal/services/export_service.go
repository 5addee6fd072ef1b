package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/models"
	"github.com/xuri/excelize/v2"
)

// ExportService writes a session's answers for instructors.
type ExportService interface {
	ExportAnswersToExcel(ctx context.Context, session *Session) ([]byte, error)
	ExportAnswersToCSV(ctx context.Context, session *Session) ([]byte, error)
}

type exportService struct {
	logger *slog.Logger
}

func NewExportService(logger *slog.Logger) ExportService {
	return &exportService{logger: logger}
}

const (
	answersSheet = "Answers"
	summarySheet = "Summary"
	timeLayout   = "2006-01-02 15:04:05"
)

var answerHeaders = []string{
	"Question", "Type", "Correct", "Answer", "Explanation",
	"Started At", "Submitted At", "Time Spent (seconds)",
}

func (s *exportService) ExportAnswersToExcel(ctx context.Context, session *Session) ([]byte, error) {
	state := session.State()
	rows := answerRows(session, state)

	f := excelize.NewFile()
	defer f.Close()

	// NewFile always starts with Sheet1.
	if err := f.SetSheetName("Sheet1", answersSheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}

	// Write headers
	for i, header := range answerHeaders {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(answersSheet, cell, header)
	}

	// Write answer data
	for rowIndex, row := range rows {
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+2)
			f.SetCellValue(answersSheet, cell, value)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	for rowIndex, pair := range summaryRows(session, state) {
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", rowIndex+1), pair[0])
		f.SetCellValue(summarySheet, fmt.Sprintf("B%d", rowIndex+1), pair[1])
	}

	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}

	s.logger.InfoContext(ctx, "Exported answers to Excel",
		"quiz_name", session.Name(),
		"answers", len(rows))
	return buf.Bytes(), nil
}

func (s *exportService) ExportAnswersToCSV(ctx context.Context, session *Session) ([]byte, error) {
	state := session.State()
	rows := answerRows(session, state)

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(answerHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range rows {
		record := make([]string, len(row))
		for i, value := range row {
			record[i] = fmt.Sprint(value)
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to write CSV: %w", err)
	}

	s.logger.InfoContext(ctx, "Exported answers to CSV",
		"quiz_name", session.Name(),
		"answers", len(rows))
	return buf.Bytes(), nil
}

func answerRows(session *Session, state models.QuizState) [][]interface{} {
	quiz := session.Quiz()
	titles := session.Titles()

	rows := make([][]interface{}, 0, len(state.Answers))
	for i, answer := range state.Answers {
		explanation := ""
		if answer.Explanation != nil {
			explanation = *answer.Explanation
		}
		rows = append(rows, []interface{}{
			titles[i],
			string(quiz.Questions[i].Type),
			answer.Correct,
			string(answer.Answer),
			explanation,
			time.UnixMilli(answer.Start).UTC().Format(timeLayout),
			time.UnixMilli(answer.End).UTC().Format(timeLayout),
			answer.Duration().Seconds(),
		})
	}
	return rows
}

func summaryRows(session *Session, state models.QuizState) [][2]string {
	correct := 0
	for _, answer := range state.Answers {
		if answer.Correct {
			correct++
		}
	}
	return [][2]string{
		{"Quiz", session.Name()},
		{"Quiz Hash", session.QuizHash()},
		{"Attempt", strconv.Itoa(state.Attempt)},
		{"Correct", fmt.Sprintf("%d/%d", correct, len(session.Quiz().Questions))},
		{"Confirmed Done", strconv.FormatBool(state.ConfirmedDone)},
	}
}
