package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"

	"github.com/p-n-ai/exam-shuffler/internal/ai"
	"github.com/p-n-ai/exam-shuffler/internal/pdfdoc"
	"github.com/p-n-ai/exam-shuffler/internal/questionset"
)

const questionSet = `
questions:
  - number: 1
    text: Two plus two?
    options: ["4", "5", "6"]
  - number: 2
    text: Capital of France?
    options: [Paris, Lyon]
`

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no input", nil, "exactly one of"},
		{"both inputs", []string{"-pdf", "a.pdf", "-questions", "q.yaml"}, "exactly one of"},
		{"bad start", []string{"-pdf", "a.pdf", "-start", "0"}, "-start"},
		{"end before start", []string{"-pdf", "a.pdf", "-start", "3", "-end", "2"}, "before"},
		{"bad format", []string{"-questions", "q.yaml", "-formats", "odt"}, "unknown export format"},
		{"empty formats", []string{"-questions", "q.yaml", "-formats", ","}, "empty"},
		{"valid", []string{"-questions", "q.yaml", "-formats", "PDF, .xlsx"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseFlags(tt.args, &bytes.Buffer{})
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("parseFlags() error = %v", err)
				}
				if len(o.formats) != 2 {
					t.Errorf("formats = %v, want 2", o.formats)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("parseFlags() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRun_QuestionFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "set.yaml")
	if err := os.WriteFile(in, []byte(questionSet), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")

	var stdout bytes.Buffer
	err := run(t.Context(), []string{"-questions", in, "-out", out, "-seed", "3", "-formats", "docx,xlsx"}, &stdout, &bytes.Buffer{}, nil)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	for _, ext := range []string{"*.docx", "*.xlsx"} {
		matches, _ := filepath.Glob(filepath.Join(out, ext))
		if len(matches) != 1 {
			t.Errorf("%s files = %v, want 1", ext, matches)
		}
	}
	got := stdout.String()
	if !strings.Contains(got, "Answer Key") || !strings.Contains(got, "1. ") || !strings.Contains(got, "2. ") {
		t.Errorf("stdout missing answer key:\n%s", got)
	}
}

func TestRun_QuestionFileMissing(t *testing.T) {
	err := run(t.Context(), []string{"-questions", filepath.Join(t.TempDir(), "none.yaml")}, &bytes.Buffer{}, &bytes.Buffer{}, nil)
	if err == nil {
		t.Fatal("run() with missing file should fail")
	}
}

func TestRun_PDFExtraction(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "exam.pdf")
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", 14)
	for i := 1; i <= 2; i++ {
		doc.AddPage()
		doc.Cell(40, 10, fmt.Sprintf("%d. Pick one", i))
	}
	if err := doc.OutputFileAndClose(pdfPath); err != nil {
		t.Fatalf("building PDF: %v", err)
	}

	mock := ai.NewMockProvider(`{"questions":[{"number":1,"text":"Pick one","options":["right","wrong"]}]}`)
	router := ai.NewRouter()
	router.Register("mock", mock)

	raw := filepath.Join(dir, "raw.json")
	var stderr bytes.Buffer
	err := run(t.Context(), []string{
		"-pdf", pdfPath, "-images=false", "-out", dir, "-formats", "pdf", "-dump-raw", raw,
	}, &bytes.Buffer{}, &stderr, router)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if mock.Calls() != 2 {
		t.Errorf("provider calls = %d, want 2", mock.Calls())
	}
	saved, err := questionset.Load(raw)
	if err != nil {
		t.Fatalf("loading dumped questions: %v", err)
	}
	if len(saved) != 2 || saved[0].Options[0] != "right" {
		t.Errorf("dumped questions = %+v", saved)
	}
	if !strings.Contains(stderr.String(), "(2/2)") {
		t.Errorf("progress output = %q", stderr.String())
	}
	if matches, _ := filepath.Glob(filepath.Join(dir, "*.pdf")); len(matches) != 2 {
		t.Errorf("pdf files = %v, want source and export", matches)
	}
}

func TestPagesWithoutText(t *testing.T) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", 14)
	doc.AddPage()
	doc.Cell(40, 10, "1. Typed question")
	doc.AddPage()
	doc.Rect(20, 20, 80, 60, "F")
	doc.AddPage()
	doc.Cell(40, 10, "2. Another question")
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("building PDF: %v", err)
	}

	pdf, err := pdfdoc.Open(buf.Bytes())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer pdf.Close()

	tests := []struct {
		name       string
		start, end int
		want       []int
	}{
		{"whole document", 1, 3, []int{2}},
		{"text pages only", 3, 3, nil},
		{"range past the end", 2, 5, []int{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pagesWithoutText(pdf, tt.start, tt.end); !slices.Equal(got, tt.want) {
				t.Errorf("pagesWithoutText(%d, %d) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
}
