package extract

import "strings"

const baseRules = `You are an OCR and exam digitization system. The image is one page of a printed multiple-choice exam.

RULES:
1. Extract every multiple-choice question on the page.
2. The correct answer is always the first option printed (option A).
3. Ignore headers, footers, page numbers, watermarks and stray marks.
4. For each question return its printed number, the question text (stem) and its options.
5. Option texts must not include their labels: drop leading "A)", "B.", "(c)" and similar.
6. The first item of "options" must be the text of option A, followed by the others in printed order.
7. Keep premise lists in the question text. Roman numeral premises (I., II., III.) and numbered statements (1., 2.) must each be present.
`

const imageRules = `8. DIAGRAMS: when a question has a picture, X-ray, chart or diagram, return "pure_graphic_bbox" as [ymin, xmin, ymax, xmax] normalized to 0-1000.
   - The box covers the graphic only: no question text, no caption, no option letters.
   - The bottom edge stops exactly at the last row of the graphic, without the gap to the text below.
`

const noImageRules = `8. DIAGRAMS: do not return bounding boxes. Ignore pictures and diagrams.
`

const outputRules = `
Respond with a single JSON object of the form {"questions": [{"number": "1", "text": "...", "options": ["...", "..."]}]} and nothing else.`

// userInstruction accompanies the page image.
const userInstruction = "Extract the questions on this exam page."

// systemPrompt returns the extraction rules for one page.
func systemPrompt(includeImages bool) string {
	var b strings.Builder
	b.WriteString(baseRules)
	if includeImages {
		b.WriteString(imageRules)
	} else {
		b.WriteString(noImageRules)
	}
	b.WriteString(outputRules)
	return b.String()
}

// responseSchema is the Gemini structured-output schema for a page.
func responseSchema(includeImages bool) map[string]any {
	item := map[string]any{
		"number": map[string]any{
			"type":        "STRING",
			"description": "The printed question number, e.g. '1', '2'",
		},
		"text": map[string]any{
			"type":        "STRING",
			"description": "The question stem",
		},
		"options": map[string]any{
			"type":        "ARRAY",
			"items":       map[string]any{"type": "STRING"},
			"description": "Answer choices without labels. Index 0 is option A.",
		},
	}
	if includeImages {
		item["pure_graphic_bbox"] = map[string]any{
			"type":        "ARRAY",
			"items":       map[string]any{"type": "NUMBER"},
			"description": "Bounding box [ymin, xmin, ymax, xmax] (0-1000) of the graphic only, without captions or text.",
		}
	}

	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"questions": map[string]any{
				"type": "ARRAY",
				"items": map[string]any{
					"type":       "OBJECT",
					"properties": item,
					"required":   []string{"number", "text", "options"},
				},
			},
		},
		"required": []string{"questions"},
	}
}
