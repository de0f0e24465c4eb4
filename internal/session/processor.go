package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/exam-shuffler/internal/ai"
	"github.com/p-n-ai/exam-shuffler/internal/exam"
	"github.com/p-n-ai/exam-shuffler/internal/extract"
	"github.com/p-n-ai/exam-shuffler/internal/pdfdoc"
)

// ErrBudgetExceeded is returned for pages skipped because the session ran
// out of extraction tokens.
var ErrBudgetExceeded = errors.New("token budget exceeded")

// PageRenderer rasterizes 1-based pages to JPEG. *pdfdoc.Document implements it.
type PageRenderer interface {
	RenderPage(page int, dpi float64) ([]byte, error)
}

// PageExtractor turns one page image into raw questions. *extract.Extractor
// implements it.
type PageExtractor interface {
	ExtractPage(ctx context.Context, pageJPEG []byte, includeImages bool) (extract.Result, error)
}

// Job is one processing run.
type Job struct {
	SessionID string
	Pages     PageRenderer
	Options   Options
}

// Outcome is the result of a processing run.
type Outcome struct {
	Raw         []exam.RawQuestion
	Questions   []exam.ProcessedQuestion
	FailedPages []int
	Usage       extract.Usage
}

// ProgressFunc observes the page loop. It is called after every page.
type ProgressFunc func(Progress)

// Processor runs the sequential page loop: render, extract, accumulate.
type Processor struct {
	extractor PageExtractor
	engine    *exam.Engine
	budget    ai.BudgetChecker
	events    EventLogger
	dpi       float64
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithBudget checks and records token usage per session.
func WithBudget(b ai.BudgetChecker) ProcessorOption {
	return func(p *Processor) {
		p.budget = b
	}
}

// WithEvents publishes progress events.
func WithEvents(l EventLogger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.events = l
		}
	}
}

// WithRenderDPI sets the resolution pages are rendered at for extraction.
func WithRenderDPI(dpi float64) ProcessorOption {
	return func(p *Processor) {
		if dpi > 0 {
			p.dpi = dpi
		}
	}
}

// NewProcessor creates a Processor.
func NewProcessor(extractor PageExtractor, engine *exam.Engine, opts ...ProcessorOption) *Processor {
	p := &Processor{
		extractor: extractor,
		engine:    engine,
		events:    NopEventLogger{},
		dpi:       pdfdoc.ProcessDPI,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes job.Options.StartPage..EndPage strictly in order. A failing
// page is logged, reported and skipped. The run fails only when cancelled or
// when no page produced a question.
func (p *Processor) Run(ctx context.Context, job Job, progress ProgressFunc) (Outcome, error) {
	start, end := job.Options.StartPage, job.Options.EndPage
	prog := Progress{TotalPages: end - start + 1}
	var out Outcome

	p.emit(job.SessionID, EventProcessingStarted, map[string]any{
		"start_page":     start,
		"end_page":       end,
		"include_images": job.Options.IncludeImages,
	})

	for page := start; page <= end; page++ {
		if err := ctx.Err(); err != nil {
			slog.Info("processing cancelled", "session_id", job.SessionID, "page", page)
			return out, err
		}

		prog.CurrentPage = page
		p.emit(job.SessionID, EventPageStarted, map[string]any{"page": page})

		res, err := p.page(ctx, job, page)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			slog.Warn("page extraction failed, skipping",
				"session_id", job.SessionID,
				"page", page,
				"error", err,
			)
			out.FailedPages = append(out.FailedPages, page)
			prog.FailedPages = append(prog.FailedPages, page)
			p.emit(job.SessionID, EventPageFailed, map[string]any{
				"page":  page,
				"error": pageFailure(err),
			})
		} else {
			out.Raw = append(out.Raw, res.Questions...)
			out.Usage.InputTokens += res.Usage.InputTokens
			out.Usage.OutputTokens += res.Usage.OutputTokens
			if res.Usage.Provider != "" {
				out.Usage.Provider = res.Usage.Provider
			}
			p.emit(job.SessionID, EventPageDone, map[string]any{
				"page":      page,
				"questions": len(res.Questions),
				"skipped":   res.Skipped,
			})
		}

		prog.DonePages++
		prog.Questions = len(out.Raw)
		if progress != nil {
			progress(prog)
		}
	}

	if len(out.Raw) == 0 {
		err := emptyResult(fmt.Errorf("pages %d-%d yielded no questions", start, end))
		p.emit(job.SessionID, EventProcessingFailed, map[string]any{"kind": string(err.Kind)})
		return out, err
	}

	questions, err := p.engine.Process(out.Raw)
	if err != nil {
		se := &Error{Kind: KindExtraction, Message: "The extracted questions could not be shuffled.", Err: err}
		p.emit(job.SessionID, EventProcessingFailed, map[string]any{"kind": string(se.Kind)})
		return out, se
	}
	out.Questions = questions

	slog.Info("processing finished",
		"session_id", job.SessionID,
		"questions", len(questions),
		"failed_pages", len(out.FailedPages),
		"tokens", out.Usage.Total(),
	)
	p.emit(job.SessionID, EventProcessingDone, map[string]any{
		"questions":    len(questions),
		"failed_pages": out.FailedPages,
	})
	return out, nil
}

// page renders and extracts a single page. Questions with more options than
// there are labels are dropped here so one bad item cannot sink the batch.
func (p *Processor) page(ctx context.Context, job Job, page int) (extract.Result, error) {
	if p.budget != nil {
		ok, err := p.budget.Check(job.SessionID)
		if err != nil {
			return extract.Result{}, fmt.Errorf("checking budget: %w", err)
		}
		if !ok {
			return extract.Result{}, ErrBudgetExceeded
		}
	}

	img, err := job.Pages.RenderPage(page, p.dpi)
	if err != nil {
		return extract.Result{}, fmt.Errorf("rendering page %d: %w", page, err)
	}

	began := time.Now()
	res, err := p.extractor.ExtractPage(ctx, img, job.Options.IncludeImages)
	if err != nil {
		return extract.Result{}, err
	}

	if p.budget != nil {
		if err := p.budget.Record(job.SessionID, res.Usage.Total()); err != nil {
			slog.Warn("recording token usage failed", "session_id", job.SessionID, "error", err)
		}
	}

	kept := res.Questions[:0]
	for _, q := range res.Questions {
		if len(q.Options) > exam.MaxOptions {
			slog.Warn("dropping question with too many options",
				"session_id", job.SessionID,
				"page", page,
				"number", q.Number,
				"options", len(q.Options),
			)
			res.Skipped++
			continue
		}
		kept = append(kept, q)
	}
	res.Questions = kept

	slog.Debug("page processed",
		"session_id", job.SessionID,
		"page", page,
		"questions", len(res.Questions),
		"duration_ms", time.Since(began).Milliseconds(),
	)
	return res, nil
}

func (p *Processor) emit(sessionID, typ string, data map[string]any) {
	if err := p.events.LogEvent(Event{SessionID: sessionID, Type: typ, Data: data}); err != nil {
		slog.Warn("logging session event failed", "type", typ, "error", err)
	}
}

// pageFailure turns a page error into a short message for the UI.
func pageFailure(err error) string {
	switch {
	case errors.Is(err, ErrBudgetExceeded):
		return "token budget exceeded"
	case errors.Is(err, extract.ErrMalformedResponse):
		return "unreadable model response"
	case errors.Is(err, context.DeadlineExceeded):
		return "model timed out"
	case errors.Is(err, ai.ErrNoProvider):
		return "no AI provider available"
	default:
		return "extraction failed"
	}
}
