package session

import (
	"errors"
	"testing"

	"github.com/p-n-ai/exam-shuffler/internal/exam"
)

var fakePDF = []byte("%PDF-1.4\n%fake")

func processedQuestions(t *testing.T) []exam.ProcessedQuestion {
	t.Helper()
	qs, err := exam.NewSeededEngine(3).Process([]exam.RawQuestion{
		{Number: "1", Text: "Capital of Turkey?", Options: []string{"Ankara", "Istanbul", "Izmir"}},
		{Number: "2", Text: "2 + 2 = ?", Options: []string{"4", "3"}},
		{Number: "3", Text: "Pick one", Options: []string{"yes", "no", "maybe", "never"}},
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	return qs
}

// inReview returns a session that has been processed and is under review.
func inReview(t *testing.T) *Session {
	t.Helper()
	s := New("s1")
	if err := s.Load("exam.pdf", fakePDF, 5, true); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := s.BeginProcessing(); err != nil {
		t.Fatalf("BeginProcessing() error = %v", err)
	}
	if err := s.CompleteProcessing(processedQuestions(t)); err != nil {
		t.Fatalf("CompleteProcessing() error = %v", err)
	}
	return s
}

func wrong(q exam.ProcessedQuestion) string {
	for _, o := range q.Options {
		if !o.IsCorrect {
			return o.ID
		}
	}
	return ""
}

func right(q exam.ProcessedQuestion) string {
	o, _ := q.CorrectOption()
	return o.ID
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		pages    int
		wantKind Kind
	}{
		{"pdf", fakePDF, 4, ""},
		{"not a pdf", []byte("GIF89a"), 4, KindInput},
		{"no pages", fakePDF, 0, KindInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("s1")
			err := s.Load("f", tt.data, tt.pages, false)
			if KindOf(err) != tt.wantKind {
				t.Fatalf("Load() error = %v, want kind %q", err, tt.wantKind)
			}
			if tt.wantKind != "" {
				if s.State != StateIdle {
					t.Errorf("State = %s, want idle", s.State)
				}
				return
			}
			if s.State != StateConfiguring {
				t.Errorf("State = %s, want configuring", s.State)
			}
			want := Options{StartPage: 1, EndPage: tt.pages, IncludeImages: false}
			if s.Options != want {
				t.Errorf("Options = %+v, want %+v", s.Options, want)
			}
		})
	}
}

func TestConfigure_Range(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
		wantErr    bool
	}{
		{"whole document", 1, 5, false},
		{"single page", 3, 3, false},
		{"start zero", 0, 2, true},
		{"start after end", 4, 2, true},
		{"end past document", 2, 6, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("s1")
			if err := s.Load("f", fakePDF, 5, true); err != nil {
				t.Fatal(err)
			}
			before := s.Options

			err := s.Configure(Options{StartPage: tt.start, EndPage: tt.end, IncludeImages: false})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Configure() error = %v, wantErr %v", err, tt.wantErr)
			}
			if s.State != StateConfiguring {
				t.Errorf("State = %s, want configuring", s.State)
			}
			if tt.wantErr {
				if KindOf(err) != KindInput {
					t.Errorf("kind = %q, want input", KindOf(err))
				}
				if s.Options != before {
					t.Errorf("Options changed on invalid range: %+v", s.Options)
				}
			}
		})
	}
}

func TestProcessing_Transitions(t *testing.T) {
	s := New("s1")
	if err := s.BeginProcessing(); KindOf(err) != KindState {
		t.Fatalf("BeginProcessing() from idle error = %v, want state error", err)
	}

	if err := s.Load("f", fakePDF, 3, true); err != nil {
		t.Fatal(err)
	}
	if err := s.BeginProcessing(); err != nil {
		t.Fatalf("BeginProcessing() error = %v", err)
	}
	if s.Progress.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", s.Progress.TotalPages)
	}

	if err := s.FailProcessing(emptyResult(nil)); err != nil {
		t.Fatalf("FailProcessing() error = %v", err)
	}
	if s.State != StateIdle || s.Source != nil {
		t.Errorf("after failure State = %s, Source = %v; want idle without source", s.State, s.Source)
	}
	if s.LastError == nil || s.LastError.Kind != KindEmptyResult {
		t.Errorf("LastError = %v, want empty_result", s.LastError)
	}
}

func TestCompleteProcessing_EmptyFails(t *testing.T) {
	s := New("s1")
	_ = s.Load("f", fakePDF, 1, true)
	_ = s.BeginProcessing()

	if err := s.CompleteProcessing(nil); err != nil {
		t.Fatalf("CompleteProcessing() error = %v", err)
	}
	if s.State != StateIdle {
		t.Errorf("State = %s, want idle", s.State)
	}
	if s.LastError == nil || s.LastError.Kind != KindEmptyResult {
		t.Errorf("LastError = %v, want empty_result", s.LastError)
	}
}

func TestFailProcessing_WrapsPlainErrors(t *testing.T) {
	s := New("s1")
	_ = s.Load("f", fakePDF, 1, true)
	_ = s.BeginProcessing()

	cause := errors.New("boom")
	_ = s.FailProcessing(cause)
	if s.LastError.Kind != KindExtraction {
		t.Errorf("Kind = %q, want extraction", s.LastError.Kind)
	}
	if !errors.Is(s.LastError, cause) {
		t.Error("LastError does not wrap the cause")
	}
}

func TestReshuffle_KeepsContent(t *testing.T) {
	s := inReview(t)
	before := s.Questions

	if err := s.Reshuffle(exam.NewSeededEngine(99)); err != nil {
		t.Fatalf("Reshuffle() error = %v", err)
	}
	for i, q := range s.Questions {
		if len(q.Options) != len(before[i].Options) {
			t.Fatalf("question %d option count changed", i)
		}
		if right(q) != right(before[i]) {
			t.Errorf("question %d correct id changed", i)
		}
	}
}

func TestExport_Transitions(t *testing.T) {
	s := inReview(t)
	questions := s.Questions

	if err := s.BeginExport(); err != nil {
		t.Fatalf("BeginExport() error = %v", err)
	}
	if s.State != StateExporting {
		t.Errorf("State = %s, want exporting", s.State)
	}
	if err := s.BeginExport(); KindOf(err) != KindState {
		t.Errorf("second BeginExport() error = %v, want state error", err)
	}

	if err := s.EndExport(errors.New("disk full")); err != nil {
		t.Fatalf("EndExport() error = %v", err)
	}
	if s.State != StateReview {
		t.Errorf("State = %s, want review", s.State)
	}
	if s.LastError == nil || s.LastError.Kind != KindExport {
		t.Errorf("LastError = %v, want export", s.LastError)
	}
	if len(s.Questions) != len(questions) {
		t.Error("questions lost after failed export")
	}
}

func TestExamFlow(t *testing.T) {
	s := inReview(t)
	q := s.Questions

	if err := s.StartExam(); err != nil {
		t.Fatalf("StartExam() error = %v", err)
	}
	if err := s.Finish(); KindOf(err) != KindInput {
		t.Fatalf("Finish() with no answers error = %v, want input error", err)
	}
	if s.State != StateTakingExam {
		t.Fatalf("State = %s, want taking_exam", s.State)
	}

	// Overwrite: first wrong, then right.
	if err := s.SelectOption(q[0].ID, wrong(q[0])); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectOption(q[0].ID, right(q[0])); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectOption(q[1].ID, wrong(q[1])); err != nil {
		t.Fatal(err)
	}

	if err := s.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if s.State != StateGraded {
		t.Fatalf("State = %s, want graded", s.State)
	}
	r := s.Result
	if r.Correct != 1 || r.Incorrect != 1 || r.Unanswered != 1 || r.Score != 33 {
		t.Errorf("Result = %+v, want 1/1/1 score 33", r)
	}

	if err := s.Retry(); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if s.State != StateTakingExam || len(s.Answers) != 0 || s.Result != nil {
		t.Errorf("after Retry State = %s, answers = %d, result = %v", s.State, len(s.Answers), s.Result)
	}
	if len(s.Questions) != len(q) || s.Questions[0].ID != q[0].ID {
		t.Error("Retry changed the question set")
	}

	if err := s.BackToMenu(); err != nil {
		t.Fatalf("BackToMenu() error = %v", err)
	}
	if s.State != StateReview {
		t.Errorf("State = %s, want review", s.State)
	}
}

func TestSelectOption_Unknown(t *testing.T) {
	s := inReview(t)
	_ = s.StartExam()
	q := s.Questions[0]

	tests := []struct {
		name       string
		qid, oid   string
	}{
		{"unknown question", "q-42", "q42-opt0"},
		{"option of another question", q.ID, s.Questions[1].Options[0].ID},
		{"empty option", q.ID, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.SelectOption(tt.qid, tt.oid); KindOf(err) != KindInput {
				t.Errorf("SelectOption() error = %v, want input error", err)
			}
			if len(s.Answers) != 0 {
				t.Errorf("answers recorded: %v", s.Answers)
			}
		})
	}
}

func TestInvalidTransitions_LeaveSessionUnchanged(t *testing.T) {
	tests := []struct {
		name string
		op   func(*Session) error
	}{
		{"finish in review", (*Session).Finish},
		{"retry in review", (*Session).Retry},
		{"back to menu in review", (*Session).BackToMenu},
		{"end export in review", func(s *Session) error { return s.EndExport(nil) }},
		{"select in review", func(s *Session) error { return s.SelectOption("q-0", "q0-opt0") }},
		{"configure in review", func(s *Session) error { return s.Configure(Options{StartPage: 1, EndPage: 1}) }},
		{"load in review", func(s *Session) error { return s.Load("f", fakePDF, 1, true) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := inReview(t)
			before := s.Clone()

			err := tt.op(s)
			if KindOf(err) != KindState {
				t.Fatalf("error = %v, want state error", err)
			}
			if s.State != before.State || len(s.Questions) != len(before.Questions) || s.Options != before.Options {
				t.Errorf("session changed: %+v", s)
			}
		})
	}
}

func TestReset(t *testing.T) {
	s := inReview(t)
	_ = s.StartExam()
	s.Reset()

	if s.State != StateIdle || s.Source != nil || s.Questions != nil || s.Answers != nil {
		t.Errorf("Reset() left state: %+v", s)
	}
	if s.ID != "s1" {
		t.Errorf("ID = %q, want s1", s.ID)
	}
}

func TestClone_Independent(t *testing.T) {
	s := inReview(t)
	_ = s.StartExam()
	_ = s.SelectOption(s.Questions[0].ID, right(s.Questions[0]))

	c := s.Clone()
	c.Answers[s.Questions[1].ID] = right(s.Questions[1])
	c.Source.Name = "other.pdf"

	if len(s.Answers) != 1 {
		t.Errorf("clone shares answers with original")
	}
	if s.Source.Name != "exam.pdf" {
		t.Errorf("clone shares source with original")
	}
}
