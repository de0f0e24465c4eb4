package exam

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func threeQuestions(t *testing.T) []ProcessedQuestion {
	t.Helper()
	qs, err := NewSeededEngine(17).Process(sampleRaw())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	return qs
}

func wrongOption(q ProcessedQuestion) ProcessedOption {
	for _, o := range q.Options {
		if !o.IsCorrect {
			return o
		}
	}
	return ProcessedOption{}
}

func TestGrade_CorrectWrongEmpty(t *testing.T) {
	qs := threeQuestions(t)
	right, _ := qs[0].CorrectOption()
	wrong := wrongOption(qs[1])

	res := Grade(qs, Answers{
		qs[0].ID: right.ID,
		qs[1].ID: wrong.ID,
	})

	if res.Correct != 1 || res.Incorrect != 1 || res.Unanswered != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", res.Correct, res.Incorrect, res.Unanswered)
	}
	if res.Score != 33 {
		t.Errorf("Score = %d, want 33", res.Score)
	}
	if res.Total != 3 {
		t.Errorf("Total = %d, want 3", res.Total)
	}

	wantOutcomes := []Outcome{OutcomeCorrect, OutcomeIncorrect, OutcomeUnanswered}
	for i, qr := range res.Questions {
		if qr.Outcome != wantOutcomes[i] {
			t.Errorf("question %d outcome = %s, want %s", i, qr.Outcome, wantOutcomes[i])
		}
		correct, _ := qs[i].CorrectOption()
		if qr.CorrectOptionID != correct.ID || qr.CorrectLabel != correct.Label {
			t.Errorf("question %d correct = %s/%s, want %s/%s", i, qr.CorrectOptionID, qr.CorrectLabel, correct.ID, correct.Label)
		}
	}
	if res.Questions[1].SelectedOptionID != wrong.ID || res.Questions[1].SelectedLabel != wrong.Label {
		t.Errorf("selected = %s/%s, want %s/%s", res.Questions[1].SelectedOptionID, res.Questions[1].SelectedLabel, wrong.ID, wrong.Label)
	}
	if res.Questions[2].SelectedOptionID != "" {
		t.Errorf("unanswered question has selection %q", res.Questions[2].SelectedOptionID)
	}
}

func TestGrade_EmptyAndUnknownSelections(t *testing.T) {
	qs := threeQuestions(t)
	res := Grade(qs, Answers{
		qs[0].ID: "",
		qs[1].ID: "q9-opt0",
	})
	if res.Unanswered != 2 {
		t.Errorf("Unanswered = %d, want 2", res.Unanswered)
	}
	if res.Incorrect != 1 {
		t.Errorf("Incorrect = %d, want 1 (unknown option id)", res.Incorrect)
	}
	if res.Questions[1].SelectedLabel != "" {
		t.Errorf("unknown option got label %q", res.Questions[1].SelectedLabel)
	}
}

func TestGrade_InsensitiveToOptionOrder(t *testing.T) {
	e := NewSeededEngine(23)
	qs, _ := e.Process(sampleRaw())
	answers := Answers{}
	for _, q := range qs {
		c, _ := q.CorrectOption()
		answers[q.ID] = c.ID
	}
	answers[qs[2].ID] = wrongOption(qs[2]).ID

	want := Grade(qs, answers)
	for i := 0; i < 20; i++ {
		qs = e.Reshuffle(qs)
		got := Grade(qs, answers)
		if got.Correct != want.Correct || got.Incorrect != want.Incorrect || got.Score != want.Score {
			t.Fatalf("reshuffle changed grading: %+v → %+v", want, got)
		}
	}
}

func TestGrade_NoQuestions(t *testing.T) {
	res := Grade(nil, Answers{})
	if res.Score != 0 || res.Total != 0 {
		t.Errorf("empty grade = %+v, want zero score", res)
	}
}

func TestScore_Rounding(t *testing.T) {
	tests := []struct {
		name           string
		correct, total int
		want           int
	}{
		{"one third", 1, 3, 33},
		{"two thirds", 2, 3, 67},
		{"half boundary rounds up", 1, 8, 13},
		{"half boundary 62.5", 5, 8, 63},
		{"exact", 1, 2, 50},
		{"perfect", 7, 7, 100},
		{"zero", 0, 5, 0},
		{"no questions", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.correct, tt.total); got != tt.want {
				t.Errorf("Score(%d, %d) = %d, want %d", tt.correct, tt.total, got, tt.want)
			}
		})
	}
}

func TestAnswerKey(t *testing.T) {
	qs := threeQuestions(t)
	key := AnswerKey(qs)
	if len(key) != len(qs) {
		t.Fatalf("len(key) = %d, want %d", len(key), len(qs))
	}
	for i, entry := range key {
		c, _ := qs[i].CorrectOption()
		if entry.Number != qs[i].OriginalNumber || entry.Label != c.Label {
			t.Errorf("key[%d] = %+v, want %s → %s", i, entry, qs[i].OriginalNumber, c.Label)
		}
	}
}

func TestQuestionNumber_Unmarshal(t *testing.T) {
	var fromJSON []QuestionNumber
	if err := json.Unmarshal([]byte(`["12", 13, " 14 "]`), &fromJSON); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	want := []QuestionNumber{"12", "13", "14"}
	for i := range want {
		if fromJSON[i] != want[i] {
			t.Errorf("json[%d] = %q, want %q", i, fromJSON[i], want[i])
		}
	}

	var fromYAML []QuestionNumber
	if err := yaml.Unmarshal([]byte("- 5\n- \"6a\"\n"), &fromYAML); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if fromYAML[0] != "5" || fromYAML[1] != "6a" {
		t.Errorf("yaml = %v, want [5 6a]", fromYAML)
	}

	if err := json.Unmarshal([]byte(`{"a":1}`), new(QuestionNumber)); err == nil {
		t.Error("expected error for object question number")
	}
}
