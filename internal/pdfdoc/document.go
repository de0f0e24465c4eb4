// Package pdfdoc renders pages of an uploaded PDF to JPEG.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/gen2brain/go-fitz"
)

const (
	// ProcessDPI renders pages for extraction (twice the 72 DPI base scale).
	ProcessDPI = 144
	// PreviewDPI renders thumbnails for the range picker.
	PreviewDPI = 72
	// JPEGQuality is the encoder quality for rendered pages.
	JPEGQuality = 80
)

var (
	// ErrNotPDF is returned when the data lacks the PDF header.
	ErrNotPDF = errors.New("file is not a PDF")
	// ErrNoPages is returned for documents without pages.
	ErrNoPages = errors.New("PDF has no pages")
	// ErrPageRange is returned for page numbers outside the document.
	ErrPageRange = errors.New("page out of range")
)

var pdfMagic = []byte("%PDF-")

// IsPDF reports whether data starts with the PDF header, allowing leading
// whitespace or a byte order mark.
func IsPDF(data []byte) bool {
	trimmed := bytes.TrimLeft(data, "\xef\xbb\xbf \t\r\n")
	return bytes.HasPrefix(trimmed, pdfMagic)
}

// Document is an opened PDF. Page numbers are 1-based.
type Document struct {
	mu    sync.Mutex
	doc   *fitz.Document
	pages int
}

// Open parses a PDF held in memory.
func Open(data []byte) (*Document, error) {
	if !IsPDF(data) {
		return nil, ErrNotPDF
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}

	pages := doc.NumPage()
	if pages <= 0 {
		doc.Close()
		return nil, ErrNoPages
	}
	return &Document{doc: doc, pages: pages}, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.pages
}

// RenderImage rasterizes a page at the given resolution.
func (d *Document) RenderImage(page int, dpi float64) (image.Image, error) {
	if page < 1 || page > d.pages {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageRange, page, d.pages)
	}
	if dpi <= 0 {
		dpi = ProcessDPI
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	img, err := d.doc.ImageDPI(page-1, dpi)
	if err != nil {
		return nil, fmt.Errorf("rendering page %d: %w", page, err)
	}
	return img, nil
}

// RenderPage rasterizes a page and encodes it as JPEG.
func (d *Document) RenderPage(page int, dpi float64) ([]byte, error) {
	img, err := d.RenderImage(page, dpi)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding page %d: %w", page, err)
	}
	return buf.Bytes(), nil
}

// Close releases the underlying document.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Close()
}

// PageCount opens data just long enough to count its pages.
func PageCount(data []byte) (int, error) {
	doc, err := Open(data)
	if err != nil {
		return 0, err
	}
	defer doc.Close()
	return doc.PageCount(), nil
}

// PageText returns the text layer of a page.
func (d *Document) PageText(page int) (string, error) {
	if page < 1 || page > d.pages {
		return "", fmt.Errorf("%w: %d of %d", ErrPageRange, page, d.pages)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	text, err := d.doc.Text(page - 1)
	if err != nil {
		return "", fmt.Errorf("reading text of page %d: %w", page, err)
	}
	return text, nil
}
