package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/p-n-ai/exam-shuffler/internal/exam"
)

const (
	pdfMargin      = 40.0 // pt
	pdfMaxImageW   = 300.0
	pdfMaxImageH   = 250.0
	pdfKeyColumns  = 8
	pdfOptionInset = 15.0
	pdfFontFamily  = "exam"
)

// turkishFold maps letters missing from the core fonts' cp1252 encoding.
var turkishFold = strings.NewReplacer(
	"ğ", "g", "Ğ", "G",
	"ş", "s", "Ş", "S",
	"ı", "i", "İ", "I",
)

// PDF writes an A4 printable layout: the questions, then an answer key grid.
type PDF struct {
	opts Options
}

func (p *PDF) ContentType() string { return "application/pdf" }

func (p *PDF) Extension() string { return string(FormatPDF) }

func (p *PDF) Export(w io.Writer, questions []exam.ProcessedQuestion) error {
	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	doc.SetAutoPageBreak(true, pdfMargin)
	doc.SetTitle(p.opts.Title, true)
	doc.SetCreator("exam-shuffler", true)

	family, tr := "Helvetica", p.coreTranslator(doc)
	if p.opts.PDFFont != "" {
		doc.AddUTF8Font(pdfFontFamily, "", p.opts.PDFFont)
		doc.AddUTF8Font(pdfFontFamily, "B", p.opts.PDFFont)
		family, tr = pdfFontFamily, func(s string) string { return s }
	}
	l := &pdfLayout{doc: doc, family: family, tr: tr}

	doc.AddPage()
	l.title(p.opts.Title)

	for i, q := range questions {
		l.question(i, q)
	}

	doc.AddPage()
	l.title(p.opts.AnswerKeyTitle)
	l.answerKey(exam.AnswerKey(questions))

	if err := doc.Error(); err != nil {
		return fmt.Errorf("rendering pdf: %w", err)
	}
	if err := doc.Output(w); err != nil {
		return fmt.Errorf("writing pdf: %w", err)
	}
	return nil
}

func (p *PDF) coreTranslator(doc *fpdf.Fpdf) func(string) string {
	cp := doc.UnicodeTranslatorFromDescriptor("")
	return func(s string) string {
		return cp(turkishFold.Replace(s))
	}
}

type pdfLayout struct {
	doc    *fpdf.Fpdf
	family string
	tr     func(string) string
}

func (l *pdfLayout) contentWidth() float64 {
	w, _ := l.doc.GetPageSize()
	left, _, right, _ := l.doc.GetMargins()
	return w - left - right
}

func (l *pdfLayout) remaining() float64 {
	_, h := l.doc.GetPageSize()
	_, _, _, bottom := l.doc.GetMargins()
	return h - bottom - l.doc.GetY()
}

func (l *pdfLayout) title(text string) {
	l.doc.SetFont(l.family, "B", 20)
	l.doc.CellFormat(0, 28, l.tr(text), "", 1, "C", false, 0, "")
	l.doc.Ln(16)
}

// question renders one question, moving it to a new page when it would
// otherwise be split.
func (l *pdfLayout) question(index int, q exam.ProcessedQuestion) {
	width := l.contentWidth()
	prefix := q.OriginalNumber.String() + ". "

	var imgW, imgH float64
	var imgName string
	if q.Image != nil && len(q.Image.Data) > 0 {
		imgName = fmt.Sprintf("q%d", index)
		opts := fpdf.ImageOptions{ImageType: "JPG", ReadDpi: false}
		if info := l.doc.RegisterImageOptionsReader(imgName, opts, bytes.NewReader(q.Image.Data)); info != nil {
			imgW, imgH = fitWithin(float64(q.Image.Width), float64(q.Image.Height), pdfMaxImageW, pdfMaxImageH)
		}
	}

	height := l.measure(q, prefix, width, imgH)
	_, pageH := l.doc.GetPageSize()
	if height > l.remaining() && height < pageH-2*pdfMargin {
		l.doc.AddPage()
	}

	l.doc.SetFont(l.family, "B", 12)
	l.doc.Write(16, l.tr(prefix))
	l.doc.SetFont(l.family, "", 12)
	l.doc.Write(16, l.tr(q.Text))
	l.doc.Ln(22)

	if imgW > 0 {
		left, _, _, _ := l.doc.GetMargins()
		x := left + (width-imgW)/2
		l.doc.ImageOptions(imgName, x, l.doc.GetY(), imgW, imgH, true, fpdf.ImageOptions{ImageType: "JPG"}, 0, "")
		l.doc.Ln(10)
	}

	left, _, _, _ := l.doc.GetMargins()
	for _, opt := range q.Options {
		l.doc.SetX(left + pdfOptionInset)
		l.doc.SetFont(l.family, "B", 11)
		l.doc.CellFormat(22, 15, l.tr(opt.Label+")"), "", 0, "L", false, 0, "")
		l.doc.SetFont(l.family, "", 11)
		l.doc.MultiCell(width-pdfOptionInset-22, 15, l.tr(opt.Text), "", "L", false)
		l.doc.Ln(3)
	}
	l.doc.Ln(16)
}

func (l *pdfLayout) measure(q exam.ProcessedQuestion, prefix string, width, imgH float64) float64 {
	l.doc.SetFont(l.family, "", 12)
	h := float64(len(l.doc.SplitText(l.tr(prefix+q.Text), width)))*16 + 22
	if imgH > 0 {
		h += imgH + 10
	}
	l.doc.SetFont(l.family, "", 11)
	for _, opt := range q.Options {
		h += float64(len(l.doc.SplitText(l.tr(opt.Text), width-pdfOptionInset-22)))*15 + 3
	}
	return h + 16
}

func (l *pdfLayout) answerKey(key []exam.KeyEntry) {
	cell := l.contentWidth() / pdfKeyColumns
	for i, entry := range key {
		ln := 0
		if (i+1)%pdfKeyColumns == 0 || i == len(key)-1 {
			ln = 1
		}
		l.doc.SetFont(l.family, "B", 12)
		text := l.tr(entry.Number.String() + ". " + entry.Label)
		l.doc.CellFormat(cell, 20, text, "", ln, "L", false, 0, "")
	}
}
