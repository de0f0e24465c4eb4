package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/common/units"
	"github.com/gomutex/godocx/dml/dmlct"
	"github.com/gomutex/godocx/docx"
	"github.com/gomutex/godocx/wml/ctypes"
	"github.com/gomutex/godocx/wml/stypes"

	"github.com/p-n-ai/exam-shuffler/internal/exam"
)

const (
	docxMaxImagePx = 500
	emuPerPixel    = 9525
	pixelsPerInch  = 96
	optionIndent   = 720 // twips
)

// DOCX writes a WordprocessingML document: the questions, a page break and
// the answer key.
type DOCX struct {
	opts Options
}

func (d *DOCX) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}

func (d *DOCX) Extension() string { return string(FormatDOCX) }

func (d *DOCX) Export(w io.Writer, questions []exam.ProcessedQuestion) error {
	doc, err := godocx.NewDocument()
	if err != nil {
		return fmt.Errorf("creating docx: %w", err)
	}
	defer doc.Close()

	// godocx embeds pictures from files only.
	media, err := os.MkdirTemp("", "exam-docx-")
	if err != nil {
		return fmt.Errorf("creating media dir: %w", err)
	}
	defer os.RemoveAll(media)

	heading(doc, d.opts.Title, false)

	for i, q := range questions {
		p := doc.AddEmptyParagraph()
		paraFormat{keepNext: true, keepLines: true, before: 400, after: 200}.apply(p)
		p.AddText(q.OriginalNumber.String() + ". ").Bold(true).Size(12)
		lines(p, q.Text, 12)

		if q.Image != nil && len(q.Image.Data) > 0 {
			if err := addImage(doc, filepath.Join(media, fmt.Sprintf("q%d.jpeg", i)), q.Image); err != nil {
				return fmt.Errorf("question %s: %w", q.OriginalNumber, err)
			}
		}

		for j, opt := range q.Options {
			p := doc.AddEmptyParagraph()
			paraFormat{keepNext: j < len(q.Options)-1, keepLines: true, after: 100, indent: optionIndent}.apply(p)
			p.AddText(opt.Label + ") ").Bold(true).Size(11)
			lines(p, opt.Text, 11)
		}
	}

	heading(doc, d.opts.AnswerKeyTitle, true)
	for _, entry := range exam.AnswerKey(questions) {
		p := doc.AddEmptyParagraph()
		paraFormat{after: 100}.apply(p)
		p.AddText(entry.Number.String() + ". " + entry.Label).Bold(true).Size(12)
	}

	if err := doc.Write(w); err != nil {
		return fmt.Errorf("writing docx: %w", err)
	}
	return nil
}

// paraFormat holds the paragraph properties the exporter uses. Spacing is in
// twips.
type paraFormat struct {
	keepNext  bool
	keepLines bool
	pageBreak bool
	center    bool
	before    uint64
	after     uint64
	indent    int
}

func (f paraFormat) apply(p *docx.Paragraph) {
	ct := p.GetCT()
	if ct.Property == nil {
		ct.Property = ctypes.DefaultParaProperty()
	}
	pp := ct.Property
	if f.keepNext {
		pp.KeepNext = &ctypes.OnOff{}
	}
	if f.keepLines {
		pp.KeepLines = &ctypes.OnOff{}
	}
	if f.pageBreak {
		pp.PageBreakBefore = &ctypes.OnOff{}
	}
	if f.before > 0 || f.after > 0 {
		pp.Spacing = &ctypes.Spacing{Before: &f.before, After: &f.after}
	}
	if f.indent > 0 {
		pp.Indent = &ctypes.Indent{Left: &f.indent}
	}
	if f.center {
		p.Justification(stypes.JustificationCenter)
	}
}

func heading(doc *docx.RootDoc, text string, pageBreak bool) {
	p := doc.AddEmptyParagraph()
	p.Style("Heading1")
	paraFormat{pageBreak: pageBreak, center: true, after: 400}.apply(p)
	p.AddText(text).Bold(true).Size(16)
}

// lines writes text with each newline as a soft line break. size is in points.
func lines(p *docx.Paragraph, text string, size uint64) {
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			p.AddRun().Size(size).AddBreak(nil)
		}
		p.AddText(line).Size(size)
	}
}

// addImage embeds img centred in its own paragraph, capped to
// docxMaxImagePx on each side.
func addImage(doc *docx.RootDoc, path string, img *exam.Image) error {
	if err := os.WriteFile(path, img.Data, 0o600); err != nil {
		return fmt.Errorf("staging image: %w", err)
	}
	pw, ph := fitWithin(float64(img.Width), float64(img.Height), docxMaxImagePx, docxMaxImagePx)

	p := doc.AddEmptyParagraph()
	paraFormat{keepNext: true, center: true, before: 100, after: 200}.apply(p)
	pic, err := p.AddPicture(path, units.Inch(pw/pixelsPerInch), units.Inch(ph/pixelsPerInch))
	if err != nil {
		return fmt.Errorf("embedding image: %w", err)
	}
	// Inch to EMU conversion rounds down; pin the frame to whole pixels.
	pic.Inline.Extent = dmlct.PSize2D{Width: uint64(pw * emuPerPixel), Height: uint64(ph * emuPerPixel)}
	return nil
}
