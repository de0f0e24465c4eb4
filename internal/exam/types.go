// Package exam holds the question model, the option shuffle engine and grading.
package exam

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// QuestionNumber is the question number as printed on the source page.
// Extraction returns it either as a string or as an integer.
type QuestionNumber string

// UnmarshalJSON accepts both JSON strings and numbers.
func (n *QuestionNumber) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*n = QuestionNumber(strings.TrimSpace(s))
		return nil
	}
	var f json.Number
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("question number must be a string or number: %s", string(b))
	}
	*n = QuestionNumber(f.String())
	return nil
}

// UnmarshalYAML accepts any scalar.
func (n *QuestionNumber) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("question number must be a scalar (line %d)", value.Line)
	}
	*n = QuestionNumber(strings.TrimSpace(value.Value))
	return nil
}

// MarshalYAML writes integers unquoted so dumped files read naturally.
func (n QuestionNumber) MarshalYAML() (any, error) {
	if i, err := strconv.Atoi(string(n)); err == nil {
		return i, nil
	}
	return string(n), nil
}

func (n QuestionNumber) String() string {
	return string(n)
}

// Image is a cropped diagram attached to a question.
type Image struct {
	Data   []byte `json:"data" yaml:"data"` // JPEG
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
}

// RawQuestion is a question as returned by extraction.
// Options[0] is always the historically correct choice.
type RawQuestion struct {
	Number  QuestionNumber `json:"number" yaml:"number"`
	Text    string         `json:"text" yaml:"text"`
	Options []string       `json:"options" yaml:"options"`
	Image   *Image         `json:"image,omitempty" yaml:"image,omitempty"`
}

// ProcessedOption is one answer choice after shuffling.
type ProcessedOption struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// ProcessedQuestion is a question ready for review, export and exam use.
type ProcessedQuestion struct {
	ID             string            `json:"id"`
	OriginalNumber QuestionNumber    `json:"original_number"`
	Text           string            `json:"text"`
	Options        []ProcessedOption `json:"options"`
	Image          *Image            `json:"image,omitempty"`
}

// CorrectOption returns the option flagged as correct.
func (q ProcessedQuestion) CorrectOption() (ProcessedOption, bool) {
	for _, o := range q.Options {
		if o.IsCorrect {
			return o, true
		}
	}
	return ProcessedOption{}, false
}

// Option looks up an option by its id.
func (q ProcessedQuestion) Option(id string) (ProcessedOption, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return ProcessedOption{}, false
}

// Answers maps question id to the chosen option id.
type Answers map[string]string

// KeyEntry is one line of an answer key.
type KeyEntry struct {
	Number QuestionNumber `json:"number"`
	Label  string         `json:"label"`
}

// AnswerKey lists originalNumber → correct label in question order.
func AnswerKey(questions []ProcessedQuestion) []KeyEntry {
	key := make([]KeyEntry, 0, len(questions))
	for _, q := range questions {
		entry := KeyEntry{Number: q.OriginalNumber}
		if opt, ok := q.CorrectOption(); ok {
			entry.Label = opt.Label
		}
		key = append(key, entry)
	}
	return key
}
