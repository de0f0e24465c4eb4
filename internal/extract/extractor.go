// Package extract turns a rendered exam page into raw questions using a
// vision-capable AI model.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // page decoder
	"log/slog"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/exam-shuffler/internal/ai"
	"github.com/p-n-ai/exam-shuffler/internal/exam"
	"github.com/p-n-ai/exam-shuffler/internal/imagecrop"
)

// DefaultTimeout bounds a single page extraction.
const DefaultTimeout = 2 * time.Minute

// ErrMalformedResponse is returned when the model output is not the expected JSON.
var ErrMalformedResponse = errors.New("malformed extraction response")

// Completer is the subset of the AI gateway the extractor needs.
type Completer interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (ai.CompletionResponse, error)
}

// Usage reports tokens spent on one page.
type Usage struct {
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Provider     string `json:"provider,omitempty"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Result is the outcome of one page.
type Result struct {
	Questions []exam.RawQuestion
	Skipped   int
	Usage     Usage
}

// Extractor calls the AI gateway and post-processes its answer.
type Extractor struct {
	ai        Completer
	timeout   time.Duration
	model     string
	maxTokens int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTimeout sets the per-page timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithModel pins the model name sent with every request.
func WithModel(model string) Option {
	return func(e *Extractor) {
		e.model = model
	}
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) Option {
	return func(e *Extractor) {
		e.maxTokens = n
	}
}

// New creates an Extractor.
func New(c Completer, opts ...Option) *Extractor {
	e := &Extractor{
		ai:        c,
		timeout:   DefaultTimeout,
		maxTokens: 16384,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractPage extracts the questions on one JPEG page image. Items that do
// not validate are logged and skipped; a diagram that cannot be cropped
// leaves its question without an image.
func (e *Extractor) ExtractPage(ctx context.Context, pageJPEG []byte, includeImages bool) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.ai.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: systemPrompt(includeImages)},
			{
				Role:    "user",
				Content: userInstruction,
				Images:  []ai.Image{{MIMEType: "image/jpeg", Data: pageJPEG}},
			},
		},
		Model:          e.model,
		MaxTokens:      e.maxTokens,
		JSON:           true,
		ResponseSchema: responseSchema(includeImages),
	})
	if err != nil {
		return Result{}, fmt.Errorf("extracting page: %w", err)
	}

	items, err := decodeItems(resp.Content)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Usage: Usage{
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			Provider:     resp.Provider,
		},
	}

	var page image.Image
	for i, raw := range items {
		item, err := parseItem(raw)
		if err != nil {
			slog.Warn("skipping invalid extracted question", "index", i, "error", err)
			result.Skipped++
			continue
		}

		q := exam.RawQuestion{
			Number:  item.Number,
			Text:    FormatText(item.Text),
			Options: make([]string, len(item.Options)),
		}
		for j, opt := range item.Options {
			q.Options[j] = FormatOption(opt)
		}

		if includeImages && len(item.BBox) > 0 {
			if page == nil {
				page, _, err = image.Decode(bytes.NewReader(pageJPEG))
				if err != nil {
					slog.Warn("cannot decode page for cropping", "error", err)
					includeImages = false
				}
			}
			if page != nil {
				q.Image = cropDiagram(page, item)
			}
		}

		result.Questions = append(result.Questions, q)
	}

	slog.Debug("page extracted",
		"questions", len(result.Questions),
		"skipped", result.Skipped,
		"provider", resp.Provider,
		"tokens", resp.TotalTokens(),
	)
	return result, nil
}

func cropDiagram(page image.Image, item extractedItem) *exam.Image {
	if err := validateBBox(item.BBox); err != nil {
		slog.Warn("ignoring diagram box", "question", item.Number, "error", err)
		return nil
	}
	box, err := imagecrop.BoxFromSlice(item.BBox)
	if err != nil {
		slog.Warn("ignoring diagram box", "question", item.Number, "error", err)
		return nil
	}
	img, err := imagecrop.Crop(page, box)
	if err != nil {
		slog.Warn("failed to crop diagram", "question", item.Number, "error", err)
		return nil
	}
	return img
}

// extractedItem is one question as returned by the model.
type extractedItem struct {
	Number  exam.QuestionNumber `json:"number"`
	Text    string              `json:"text"`
	Options []string            `json:"options"`
	BBox    []float64           `json:"pure_graphic_bbox,omitempty"`
}

// decodeItems accepts {"questions": [...]} or a bare array, optionally
// wrapped in a markdown code fence.
func decodeItems(content string) ([]json.RawMessage, error) {
	body := []byte(stripFences(content))
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}

	if body[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return items, nil
	}

	var wrapper struct {
		Questions []json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return wrapper.Questions, nil
}

func parseItem(raw json.RawMessage) (extractedItem, error) {
	res, err := itemSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return extractedItem{}, fmt.Errorf("validating item: %w", err)
	}
	if !res.Valid() {
		return extractedItem{}, schemaError(res)
	}

	var item extractedItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return extractedItem{}, fmt.Errorf("decoding item: %w", err)
	}
	return item, nil
}

func validateBBox(bbox []float64) error {
	res, err := bboxSchema.Validate(gojsonschema.NewGoLoader(bbox))
	if err != nil {
		return err
	}
	if !res.Valid() {
		return schemaError(res)
	}
	return nil
}

func schemaError(res *gojsonschema.Result) error {
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}

// stripFences removes a surrounding ``` or ```json fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
