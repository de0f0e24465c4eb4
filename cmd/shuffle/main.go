// Command shuffle extracts questions from an exam PDF, or loads a saved
// question set, shuffles the options and writes the export documents.
//
//	shuffle -pdf exam.pdf -start 2 -end 5 -out ./out -dump-raw raw.yaml
//	shuffle -questions raw.yaml -seed 7 -formats pdf,xlsx
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/exam-shuffler/internal/ai"
	"github.com/p-n-ai/exam-shuffler/internal/exam"
	"github.com/p-n-ai/exam-shuffler/internal/export"
	"github.com/p-n-ai/exam-shuffler/internal/extract"
	"github.com/p-n-ai/exam-shuffler/internal/pdfdoc"
	"github.com/p-n-ai/exam-shuffler/internal/platform/config"
	"github.com/p-n-ai/exam-shuffler/internal/platform/logging"
	"github.com/p-n-ai/exam-shuffler/internal/questionset"
	"github.com/p-n-ai/exam-shuffler/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "shuffle:", err)
		}
		os.Exit(1)
	}
}

type options struct {
	pdf       string
	questions string
	start     int
	end       int
	images    bool
	out       string
	formats   []export.Format
	seed      uint64
	dumpRaw   string
	logLevel  string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var (
		o       options
		formats string
	)
	fs := flag.NewFlagSet("shuffle", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.pdf, "pdf", "", "exam PDF to extract questions from")
	fs.StringVar(&o.questions, "questions", "", "saved question file or directory (skips extraction)")
	fs.IntVar(&o.start, "start", 1, "first page to process")
	fs.IntVar(&o.end, "end", 0, "last page to process (default: last page)")
	fs.BoolVar(&o.images, "images", true, "crop diagrams into questions")
	fs.StringVar(&o.out, "out", ".", "output directory")
	fs.StringVar(&formats, "formats", "docx,pdf,xlsx", "comma-separated export formats")
	fs.Uint64Var(&o.seed, "seed", 0, "shuffle seed (default: random)")
	fs.StringVar(&o.dumpRaw, "dump-raw", "", "write extracted questions to this .yaml or .json file")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level")

	if err := fs.Parse(args); err != nil {
		return o, err
	}

	if (o.pdf == "") == (o.questions == "") {
		return o, errors.New("exactly one of -pdf or -questions is required")
	}
	if o.start < 1 {
		return o, fmt.Errorf("-start must be at least 1, got %d", o.start)
	}
	if o.end != 0 && o.end < o.start {
		return o, fmt.Errorf("-end %d is before -start %d", o.end, o.start)
	}
	for _, name := range strings.Split(formats, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		f, err := export.ParseFormat(name)
		if err != nil {
			return o, err
		}
		o.formats = append(o.formats, f)
	}
	if len(o.formats) == 0 {
		return o, errors.New("-formats is empty")
	}
	return o, nil
}

// run executes one command. A nil completer means providers come from the
// SHUFFLE_AI_* environment.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, completer extract.Completer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Log.Level = o.logLevel
	cfg.Log.Format = "text"
	slog.SetDefault(logging.New(stderr, cfg.Log))

	engine := exam.NewEngine(nil)
	if o.seed != 0 {
		engine = exam.NewSeededEngine(o.seed)
	}

	var questions []exam.ProcessedQuestion
	if o.questions != "" {
		raw, err := loadQuestions(o.questions)
		if err != nil {
			return err
		}
		if questions, err = engine.Process(raw); err != nil {
			return err
		}
	} else {
		if completer == nil {
			router, err := ai.NewRouterFromConfig(cfg.AI)
			if err != nil {
				return fmt.Errorf("configure an AI provider with SHUFFLE_AI_* variables: %w", err)
			}
			completer = router
		}
		extractor := extract.New(completer, extract.WithTimeout(cfg.AI.Timeout()))
		if questions, err = extractPDF(ctx, o, extractor, engine, cfg.Processing.RenderDPI, stderr); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(o.out, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	exportOpts := export.Options{
		Title:          cfg.Export.Title,
		AnswerKeyTitle: cfg.Export.AnswerKeyTitle,
		PDFFont:        cfg.Export.PDFFont,
	}
	now := time.Now()
	for _, f := range o.formats {
		path, err := writeDocument(o.out, f, exportOpts, questions, now)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, "wrote", path)
	}

	fmt.Fprintln(stdout, cfg.Export.AnswerKeyTitle)
	for _, k := range exam.AnswerKey(questions) {
		fmt.Fprintf(stdout, "%s. %s\n", k.Number, k.Label)
	}
	return nil
}

func loadQuestions(path string) ([]exam.RawQuestion, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return questionset.LoadDir(path)
	}
	return questionset.Load(path)
}

func extractPDF(ctx context.Context, o options, extractor *extract.Extractor, engine *exam.Engine, dpi int, stderr io.Writer) ([]exam.ProcessedQuestion, error) {
	data, err := os.ReadFile(o.pdf)
	if err != nil {
		return nil, err
	}
	doc, err := pdfdoc.Open(data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	end := o.end
	if end == 0 || end > doc.PageCount() {
		end = doc.PageCount()
	}
	if o.start > end {
		return nil, fmt.Errorf("-start %d is past the last page %d", o.start, doc.PageCount())
	}

	if blank := pagesWithoutText(doc, o.start, end); len(blank) > 0 {
		slog.Warn("pages have no text layer, extraction relies on the rendered image", "pages", blank)
	}

	processor := session.NewProcessor(extractor, engine, session.WithRenderDPI(float64(dpi)))
	out, err := processor.Run(ctx, session.Job{
		SessionID: filepath.Base(o.pdf),
		Pages:     doc,
		Options:   session.Options{StartPage: o.start, EndPage: end, IncludeImages: o.images},
	}, func(p session.Progress) {
		fmt.Fprintf(stderr, "page %d (%d/%d) questions=%d\n", p.CurrentPage, p.DonePages, p.TotalPages, p.Questions)
	})
	if err != nil {
		return nil, err
	}
	if len(out.FailedPages) > 0 {
		fmt.Fprintf(stderr, "skipped pages: %v\n", out.FailedPages)
	}

	if o.dumpRaw != "" {
		if err := questionset.Save(o.dumpRaw, out.Raw); err != nil {
			return nil, err
		}
	}
	return out.Questions, nil
}

// pagesWithoutText lists the pages in start..end with an empty text layer,
// usually scans.
func pagesWithoutText(doc *pdfdoc.Document, start, end int) []int {
	var blank []int
	for p := start; p <= end; p++ {
		text, err := doc.PageText(p)
		if err != nil {
			slog.Debug("reading text layer", "page", p, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			blank = append(blank, p)
		}
	}
	return blank
}

func writeDocument(dir string, format export.Format, opts export.Options, questions []exam.ProcessedQuestion, now time.Time) (path string, err error) {
	exporter, err := export.For(format, opts)
	if err != nil {
		return "", err
	}
	path = filepath.Join(dir, export.Filename(format, now))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := exporter.Export(f, questions); err != nil {
		return "", fmt.Errorf("exporting %s: %w", format, err)
	}
	return path, nil
}
