package extract

import "github.com/xeipuuv/gojsonschema"

const itemSchemaJSON = `{
  "type": "object",
  "required": ["number", "text", "options"],
  "properties": {
    "number": {"type": ["string", "number"]},
    "text": {"type": "string"},
    "options": {
      "type": "array",
      "minItems": 2,
      "items": {"type": "string"}
    },
    "pure_graphic_bbox": {"type": ["array", "null"]}
  }
}`

const bboxSchemaJSON = `{
  "type": "array",
  "minItems": 4,
  "maxItems": 4,
  "items": {"type": "number", "minimum": 0, "maximum": 1000}
}`

var (
	itemSchema = mustSchema(itemSchemaJSON)
	bboxSchema = mustSchema(bboxSchemaJSON)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic("extract: invalid schema: " + err.Error())
	}
	return s
}
