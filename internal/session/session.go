// Package session implements the exam session state machine: upload,
// configuration, page-by-page extraction, review, export and exam taking.
package session

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/p-n-ai/exam-shuffler/internal/exam"
	"github.com/p-n-ai/exam-shuffler/internal/pdfdoc"
)

// State is a step of the session lifecycle.
type State string

const (
	StateIdle        State = "idle"
	StateConfiguring State = "configuring"
	StateProcessing  State = "processing"
	StateReview      State = "review"
	StateExporting   State = "exporting"
	StateTakingExam  State = "taking_exam"
	StateGraded      State = "graded"
)

// Source is the uploaded PDF.
type Source struct {
	Name      string `json:"name"`
	Data      []byte `json:"data"`
	PageCount int    `json:"page_count"`
}

// Options are the processing settings chosen while configuring.
type Options struct {
	StartPage     int  `json:"start_page"`
	EndPage       int  `json:"end_page"`
	IncludeImages bool `json:"include_images"`
}

// Settings is a configure request. A nil IncludeImages keeps the current
// toggle.
type Settings struct {
	StartPage     int
	EndPage       int
	IncludeImages *bool
}

func (in Settings) merge(current Options) Options {
	opts := Options{StartPage: in.StartPage, EndPage: in.EndPage, IncludeImages: current.IncludeImages}
	if in.IncludeImages != nil {
		opts.IncludeImages = *in.IncludeImages
	}
	return opts
}

// Progress tracks the page loop while processing.
type Progress struct {
	CurrentPage int   `json:"current_page"`
	DonePages   int   `json:"done_pages"`
	TotalPages  int   `json:"total_pages"`
	Questions   int   `json:"questions"`
	FailedPages []int `json:"failed_pages,omitempty"`
}

// Session is the in-memory record of one upload and everything derived from it.
type Session struct {
	ID        string                   `json:"id"`
	State     State                    `json:"state"`
	Source    *Source                  `json:"source,omitempty"`
	Options   Options                  `json:"options"`
	Progress  Progress                 `json:"progress"`
	Questions []exam.ProcessedQuestion `json:"questions,omitempty"`
	Answers   exam.Answers             `json:"answers,omitempty"`
	Result    *exam.Result             `json:"result,omitempty"`
	LastError *Error                   `json:"last_error,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// New returns an idle session.
func New(id string) *Session {
	now := time.Now()
	return &Session{ID: id, State: StateIdle, CreatedAt: now, UpdatedAt: now}
}

// Clone returns a copy that shares no mutable state with s. Question slices
// are replaced, never edited in place, so they are shared.
func (s *Session) Clone() *Session {
	c := *s
	if s.Source != nil {
		src := *s.Source
		c.Source = &src
	}
	c.Progress.FailedPages = slices.Clone(s.Progress.FailedPages)
	c.Answers = maps.Clone(s.Answers)
	if s.Result != nil {
		res := *s.Result
		c.Result = &res
	}
	if s.LastError != nil {
		e := *s.LastError
		c.LastError = &e
	}
	return &c
}

// Load attaches an uploaded PDF and moves to Configuring with the whole
// document selected. Loading again while configuring replaces the file.
func (s *Session) Load(name string, data []byte, pageCount int, includeImages bool) error {
	if s.State != StateIdle && s.State != StateConfiguring {
		return stateError("upload a file", s.State)
	}
	if !pdfdoc.IsPDF(data) {
		return inputError("Please upload a PDF file.", pdfdoc.ErrNotPDF)
	}
	if pageCount < 1 {
		return inputError("The PDF has no pages.", pdfdoc.ErrNoPages)
	}

	s.State = StateConfiguring
	s.Source = &Source{Name: name, Data: data, PageCount: pageCount}
	s.Options = Options{StartPage: 1, EndPage: pageCount, IncludeImages: includeImages}
	s.Progress = Progress{}
	s.Questions = nil
	s.Answers = nil
	s.Result = nil
	s.LastError = nil
	return nil
}

// Configure sets the page range and image toggle. An invalid range leaves
// the previous options in place.
func (s *Session) Configure(opts Options) error {
	if s.State != StateConfiguring {
		return stateError("change the settings", s.State)
	}
	if err := s.validRange(opts); err != nil {
		return err
	}
	s.Options = opts
	return nil
}

func (s *Session) validRange(opts Options) error {
	pages := 0
	if s.Source != nil {
		pages = s.Source.PageCount
	}
	if opts.StartPage < 1 || opts.StartPage > opts.EndPage || opts.EndPage > pages {
		return inputError(
			fmt.Sprintf("Choose pages between 1 and %d, with the start page not after the end page.", pages),
			fmt.Errorf("%w: %d-%d of %d", pdfdoc.ErrPageRange, opts.StartPage, opts.EndPage, pages),
		)
	}
	return nil
}

// BeginProcessing moves a configured session into Processing.
func (s *Session) BeginProcessing() error {
	if s.State != StateConfiguring {
		return stateError("start processing", s.State)
	}
	if err := s.validRange(s.Options); err != nil {
		return err
	}
	s.State = StateProcessing
	s.Progress = Progress{TotalPages: s.Options.EndPage - s.Options.StartPage + 1}
	s.LastError = nil
	return nil
}

// CompleteProcessing stores the processed questions and opens the review.
func (s *Session) CompleteProcessing(questions []exam.ProcessedQuestion) error {
	if s.State != StateProcessing {
		return stateError("finish processing", s.State)
	}
	if len(questions) == 0 {
		return s.FailProcessing(emptyResult(nil))
	}
	s.State = StateReview
	s.Questions = questions
	s.Answers = nil
	s.Result = nil
	return nil
}

// FailProcessing drops the upload and returns to Idle with the error kept
// for display.
func (s *Session) FailProcessing(cause error) error {
	if s.State != StateProcessing {
		return stateError("fail processing", s.State)
	}
	var se *Error
	if !errors.As(cause, &se) {
		se = &Error{Kind: KindExtraction, Message: "Processing failed. Please try again.", Err: cause}
	}
	s.clear()
	s.LastError = se
	return nil
}

// Reshuffle draws a new option order for every question.
func (s *Session) Reshuffle(engine *exam.Engine) error {
	if s.State != StateReview {
		return stateError("reshuffle", s.State)
	}
	s.Questions = engine.Reshuffle(s.Questions)
	return nil
}

// BeginExport marks an export in flight.
func (s *Session) BeginExport() error {
	if s.State != StateReview {
		return stateError("export", s.State)
	}
	s.State = StateExporting
	s.LastError = nil
	return nil
}

// EndExport returns to Review. A failed export is recorded; the questions
// are kept.
func (s *Session) EndExport(cause error) error {
	if s.State != StateExporting {
		return stateError("finish an export", s.State)
	}
	s.State = StateReview
	if cause != nil {
		s.LastError = &Error{Kind: KindExport, Message: "The document could not be created.", Err: cause}
	}
	return nil
}

// StartExam opens exam mode with no answers.
func (s *Session) StartExam() error {
	if s.State != StateReview {
		return stateError("start the exam", s.State)
	}
	s.State = StateTakingExam
	s.Answers = exam.Answers{}
	s.Result = nil
	return nil
}

// SelectOption records or replaces the answer to one question.
func (s *Session) SelectOption(questionID, optionID string) error {
	if s.State != StateTakingExam {
		return stateError("answer", s.State)
	}
	idx := slices.IndexFunc(s.Questions, func(q exam.ProcessedQuestion) bool { return q.ID == questionID })
	if idx < 0 {
		return inputError("Unknown question.", fmt.Errorf("question %q not in session", questionID))
	}
	if _, ok := s.Questions[idx].Option(optionID); !ok {
		return inputError("Unknown option.", fmt.Errorf("option %q not in question %q", optionID, questionID))
	}
	if s.Answers == nil {
		s.Answers = exam.Answers{}
	}
	s.Answers[questionID] = optionID
	return nil
}

// Finish grades the answers. At least one question must be answered.
func (s *Session) Finish() error {
	if s.State != StateTakingExam {
		return stateError("finish the exam", s.State)
	}
	if len(s.Answers) == 0 {
		return inputError("Answer at least one question before finishing.", errors.New("no answers recorded"))
	}
	res := exam.Grade(s.Questions, s.Answers)
	s.State = StateGraded
	s.Result = &res
	return nil
}

// Retry clears the answers and restarts the exam on the same questions.
func (s *Session) Retry() error {
	if s.State != StateGraded {
		return stateError("retry", s.State)
	}
	s.State = StateTakingExam
	s.Answers = exam.Answers{}
	s.Result = nil
	return nil
}

// BackToMenu leaves exam mode for the review.
func (s *Session) BackToMenu() error {
	if s.State != StateGraded && s.State != StateTakingExam {
		return stateError("leave the exam", s.State)
	}
	s.State = StateReview
	s.Answers = nil
	s.Result = nil
	return nil
}

// Reset discards everything and returns to Idle.
func (s *Session) Reset() {
	s.clear()
	s.LastError = nil
}

func (s *Session) clear() {
	s.State = StateIdle
	s.Source = nil
	s.Options = Options{}
	s.Progress = Progress{}
	s.Questions = nil
	s.Answers = nil
	s.Result = nil
}

func emptyResult(err error) *Error {
	return &Error{
		Kind:    KindEmptyResult,
		Message: "No questions could be found on the selected pages.",
		Err:     err,
	}
}
