package exam

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
)

// MaxOptions is the number of single-letter labels available.
const MaxOptions = 26

var (
	// ErrNoOptions is returned for a raw question without options.
	ErrNoOptions = errors.New("question has no options")
	// ErrTooManyOptions is returned when options cannot be labeled with a single letter.
	ErrTooManyOptions = errors.New("question has more options than labels")
)

// Engine turns raw questions into shuffled, relabeled questions.
// It is safe for concurrent use.
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates an engine drawing from src. A nil src gives a
// non-deterministic generator.
func NewEngine(src rand.Source) *Engine {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Engine{rng: rand.New(src)}
}

// NewSeededEngine creates a deterministic engine, for tests and reproducible CLI runs.
func NewSeededEngine(seed uint64) *Engine {
	return NewEngine(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Label returns the letter for a zero-based position: 0 → "A", 1 → "B", ...
func Label(pos int) string {
	return string(rune('A' + pos))
}

// Process assigns ids, tags option 0 as correct, shuffles and relabels every question.
func (e *Engine) Process(raw []RawQuestion) ([]ProcessedQuestion, error) {
	out := make([]ProcessedQuestion, 0, len(raw))
	for qi, rq := range raw {
		switch {
		case len(rq.Options) == 0:
			return nil, fmt.Errorf("question %d (%s): %w", qi, rq.Number, ErrNoOptions)
		case len(rq.Options) > MaxOptions:
			return nil, fmt.Errorf("question %d (%s) has %d options: %w", qi, rq.Number, len(rq.Options), ErrTooManyOptions)
		}

		// Option records stay in extraction order; only the index order moves.
		arena := make([]ProcessedOption, len(rq.Options))
		for oi, text := range rq.Options {
			arena[oi] = ProcessedOption{
				ID:        fmt.Sprintf("q%d-opt%d", qi, oi),
				Text:      text,
				IsCorrect: oi == 0,
			}
		}

		out = append(out, ProcessedQuestion{
			ID:             fmt.Sprintf("q-%d", qi),
			OriginalNumber: rq.Number,
			Text:           rq.Text,
			Options:        e.arrange(arena),
			Image:          rq.Image,
		})
	}
	return out, nil
}

// Reshuffle draws a fresh permutation for every question. Ids, texts and
// correctness are kept; labels follow the new order. The input is not modified.
func (e *Engine) Reshuffle(questions []ProcessedQuestion) []ProcessedQuestion {
	out := make([]ProcessedQuestion, len(questions))
	for i, q := range questions {
		q.Options = e.arrange(q.Options)
		out[i] = q
	}
	return out
}

// arrange returns a new slice holding options in a uniformly random order,
// labeled by position.
func (e *Engine) arrange(options []ProcessedOption) []ProcessedOption {
	order := e.permutation(len(options))
	arranged := make([]ProcessedOption, len(options))
	for pos, idx := range order {
		opt := options[idx]
		opt.Label = Label(pos)
		arranged[pos] = opt
	}
	return arranged
}

// permutation runs Fisher–Yates over an index array.
func (e *Engine) permutation(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := n - 1; i > 0; i-- {
		j := e.rng.IntN(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order
}
