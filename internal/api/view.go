package api

import (
	"encoding/base64"
	"time"

	"github.com/p-n-ai/exam-shuffler/internal/exam"
	"github.com/p-n-ai/exam-shuffler/internal/export"
	"github.com/p-n-ai/exam-shuffler/internal/session"
)

// SessionView is the JSON shape of a session. The uploaded bytes are never
// echoed, and correctness is hidden while an exam is being taken.
type SessionView struct {
	ID            string           `json:"id"`
	State         session.State    `json:"state"`
	Source        *SourceView      `json:"source,omitempty"`
	Options       session.Options  `json:"options"`
	Progress      session.Progress `json:"progress"`
	Questions     []QuestionView   `json:"questions,omitempty"`
	AnswerKey     []exam.KeyEntry  `json:"answer_key,omitempty"`
	Answers       exam.Answers     `json:"answers,omitempty"`
	Result        *exam.Result     `json:"result,omitempty"`
	LastError     *ErrorPayload    `json:"last_error,omitempty"`
	ExportFormats []export.Format  `json:"export_formats,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type SourceView struct {
	Name      string `json:"name"`
	PageCount int    `json:"page_count"`
}

type QuestionView struct {
	ID             string              `json:"id"`
	OriginalNumber exam.QuestionNumber `json:"original_number"`
	Text           string              `json:"text"`
	Options        []OptionView        `json:"options"`
	Image          *ImageView          `json:"image,omitempty"`
}

type OptionView struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Text      string `json:"text"`
	IsCorrect *bool  `json:"is_correct,omitempty"`
}

type ImageView struct {
	URL    string `json:"url"` // data URL
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func newSessionView(s *session.Session) SessionView {
	v := SessionView{
		ID:        s.ID,
		State:     s.State,
		Options:   s.Options,
		Progress:  s.Progress,
		Answers:   s.Answers,
		Result:    s.Result,
		UpdatedAt: s.UpdatedAt,
	}
	if s.Source != nil {
		v.Source = &SourceView{Name: s.Source.Name, PageCount: s.Source.PageCount}
	}
	if s.LastError != nil {
		v.LastError = &ErrorPayload{Code: string(s.LastError.Kind), Message: s.LastError.Message}
	}

	hide := s.State == session.StateTakingExam
	for _, q := range s.Questions {
		v.Questions = append(v.Questions, newQuestionView(q, hide))
	}
	if s.State == session.StateReview {
		v.AnswerKey = exam.AnswerKey(s.Questions)
		v.ExportFormats = export.Formats()
	}
	return v
}

func newQuestionView(q exam.ProcessedQuestion, hideCorrect bool) QuestionView {
	qv := QuestionView{
		ID:             q.ID,
		OriginalNumber: q.OriginalNumber,
		Text:           q.Text,
		Options:        make([]OptionView, len(q.Options)),
	}
	for i, o := range q.Options {
		qv.Options[i] = OptionView{ID: o.ID, Label: o.Label, Text: o.Text}
		if !hideCorrect {
			correct := o.IsCorrect
			qv.Options[i].IsCorrect = &correct
		}
	}
	if q.Image != nil && len(q.Image.Data) > 0 {
		qv.Image = &ImageView{
			URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(q.Image.Data),
			Width:  q.Image.Width,
			Height: q.Image.Height,
		}
	}
	return qv
}
