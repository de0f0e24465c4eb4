// Package export renders shuffled questions as DOCX, PDF and XLSX documents.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/p-n-ai/exam-shuffler/internal/exam"
)

// Format identifies an output document type.
type Format string

const (
	FormatDOCX Format = "docx"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

// ErrUnknownFormat is returned for unsupported format names.
var ErrUnknownFormat = errors.New("unknown export format")

// Formats lists the supported formats in menu order.
func Formats() []Format {
	return []Format{FormatDOCX, FormatPDF, FormatXLSX}
}

// ParseFormat maps a case-insensitive name such as "DOCX" or ".pdf" to a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
	for _, known := range Formats() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Options controls document text and fonts.
type Options struct {
	Title          string
	AnswerKeyTitle string
	// PDFFont is an optional TrueType font file used for PDF output. Without
	// it the PDF uses the core Helvetica font.
	PDFFont string
}

// DefaultOptions returns the standard headings.
func DefaultOptions() Options {
	return Options{
		Title:          "Exam Questions",
		AnswerKeyTitle: "Answer Key",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Title == "" {
		o.Title = d.Title
	}
	if o.AnswerKeyTitle == "" {
		o.AnswerKeyTitle = d.AnswerKeyTitle
	}
	return o
}

// Exporter writes questions to w in one document format.
type Exporter interface {
	Export(w io.Writer, questions []exam.ProcessedQuestion) error
	ContentType() string
	Extension() string
}

// For returns the exporter for format.
func For(format Format, opts Options) (Exporter, error) {
	opts = opts.withDefaults()
	switch format {
	case FormatDOCX:
		return &DOCX{opts: opts}, nil
	case FormatPDF:
		return &PDF{opts: opts}, nil
	case FormatXLSX:
		return &XLSX{opts: opts}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Filename returns the download name for a document created at now,
// e.g. exam-shuffled-2024-05-01.docx.
func Filename(format Format, now time.Time) string {
	return fmt.Sprintf("exam-shuffled-%s.%s", now.Format("2006-01-02"), format)
}

// fitWithin scales w×h down to fit maxW×maxH keeping the aspect ratio.
// Width is capped first, then height.
func fitWithin(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if w > maxW {
		h *= maxW / w
		w = maxW
	}
	if h > maxH {
		w *= maxH / h
		h = maxH
	}
	return w, h
}

func correctLabel(q exam.ProcessedQuestion) string {
	if opt, ok := q.CorrectOption(); ok {
		return opt.Label
	}
	return ""
}
