package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/exam-shuffler/internal/exam"
)

const (
	answerKeySheet = "Answer Key"
	questionsSheet = "Questions"
)

// XLSX writes a workbook with an answer key sheet and a question sheet.
type XLSX struct {
	opts Options
}

func (x *XLSX) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (x *XLSX) Extension() string { return string(FormatXLSX) }

func (x *XLSX) Export(w io.Writer, questions []exam.ProcessedQuestion) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", answerKeySheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(questionsSheet); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}

	keyRows := [][]any{{"No.", "Answer", "Correct option"}}
	for _, q := range questions {
		row := []any{q.OriginalNumber.String(), correctLabel(q), ""}
		if opt, ok := q.CorrectOption(); ok {
			row[2] = opt.Text
		}
		keyRows = append(keyRows, row)
	}
	if err := writeRows(f, answerKeySheet, keyRows); err != nil {
		return err
	}

	maxOptions := 0
	for _, q := range questions {
		maxOptions = max(maxOptions, len(q.Options))
	}
	header := []any{"No.", "Question"}
	for i := range maxOptions {
		header = append(header, exam.Label(i))
	}
	header = append(header, "Image")
	questionRows := [][]any{header}
	for _, q := range questions {
		row := make([]any, 0, len(header))
		row = append(row, q.OriginalNumber.String(), q.Text)
		for i := range maxOptions {
			if i < len(q.Options) {
				row = append(row, q.Options[i].Text)
			} else {
				row = append(row, "")
			}
		}
		if q.Image != nil {
			row = append(row, "yes")
		} else {
			row = append(row, "")
		}
		questionRows = append(questionRows, row)
	}
	if err := writeRows(f, questionsSheet, questionRows); err != nil {
		return err
	}

	for _, sheet := range []string{answerKeySheet, questionsSheet} {
		if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
			return fmt.Errorf("styling %s: %w", sheet, err)
		}
	}
	if err := f.SetColWidth(answerKeySheet, "C", "C", 60); err != nil {
		return fmt.Errorf("sizing %s: %w", answerKeySheet, err)
	}
	if err := f.SetColWidth(questionsSheet, "B", "B", 70); err != nil {
		return fmt.Errorf("sizing %s: %w", questionsSheet, err)
	}
	if len(questions) > 0 {
		last, err := excelize.CoordinatesToCellName(len(header), len(questions)+1)
		if err != nil {
			return fmt.Errorf("styling %s: %w", questionsSheet, err)
		}
		if err := f.SetCellStyle(questionsSheet, "A2", last, wrap); err != nil {
			return fmt.Errorf("styling %s: %w", questionsSheet, err)
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing xlsx: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("writing %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}
