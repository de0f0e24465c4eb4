package exam

// Outcome classifies one graded question.
type Outcome string

const (
	OutcomeCorrect    Outcome = "correct"
	OutcomeIncorrect  Outcome = "incorrect"
	OutcomeUnanswered Outcome = "unanswered"
)

// QuestionResult is the grading detail for one question. It carries both the
// selected and the correct option so a UI can render them without lookups.
type QuestionResult struct {
	QuestionID       string         `json:"question_id"`
	OriginalNumber   QuestionNumber `json:"original_number"`
	Outcome          Outcome        `json:"outcome"`
	SelectedOptionID string         `json:"selected_option_id,omitempty"`
	SelectedLabel    string         `json:"selected_label,omitempty"`
	CorrectOptionID  string         `json:"correct_option_id"`
	CorrectLabel     string         `json:"correct_label"`
}

// Result is the outcome of grading a set of answers.
type Result struct {
	Correct    int              `json:"correct"`
	Incorrect  int              `json:"incorrect"`
	Unanswered int              `json:"unanswered"`
	Total      int              `json:"total"`
	Score      int              `json:"score"`
	Questions  []QuestionResult `json:"questions"`
}

// Grade scores answers against the questions. Correctness is bound to option
// ids, so labels and option order play no part. An answer naming an option
// the question does not have counts as incorrect.
func Grade(questions []ProcessedQuestion, answers Answers) Result {
	res := Result{
		Total:     len(questions),
		Questions: make([]QuestionResult, 0, len(questions)),
	}

	for _, q := range questions {
		qr := QuestionResult{
			QuestionID:     q.ID,
			OriginalNumber: q.OriginalNumber,
		}
		if correct, ok := q.CorrectOption(); ok {
			qr.CorrectOptionID = correct.ID
			qr.CorrectLabel = correct.Label
		}

		selectedID := answers[q.ID]
		switch {
		case selectedID == "":
			qr.Outcome = OutcomeUnanswered
			res.Unanswered++
		default:
			qr.SelectedOptionID = selectedID
			selected, found := q.Option(selectedID)
			if found {
				qr.SelectedLabel = selected.Label
			}
			if found && selected.IsCorrect {
				qr.Outcome = OutcomeCorrect
				res.Correct++
			} else {
				qr.Outcome = OutcomeIncorrect
				res.Incorrect++
			}
		}
		res.Questions = append(res.Questions, qr)
	}

	res.Score = Score(res.Correct, res.Total)
	return res
}

// Score returns round(100 * correct / total) with halves rounded up,
// computed in integer arithmetic. An empty exam scores 0.
func Score(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*correct + total) / (2 * total)
}
