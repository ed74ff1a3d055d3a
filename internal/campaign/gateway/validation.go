package gateway

import "campaign-client/internal/common/validation"

var (
	fileProcessSchema = validation.MustCompile("file-process", `{
  "type": "object",
  "required": ["target_audience"],
  "properties": {
    "feature_summary": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "target_audience": {
      "type": "object",
      "required": ["segments"],
      "properties": {
        "segments": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`)

	logoProcessSchema = validation.MustCompile("logo-process", `{
  "type": "object",
  "required": ["accepted"],
  "properties": {
    "accepted": {"type": "array", "items": {"type": "string"}},
    "rejected": {"type": ["array", "null"], "items": {"type": "string"}}
  }
}`)

	generateEmailSchema = validation.MustCompile("generate-email", `{
  "type": "object",
  "required": ["mail_subject", "mail_content"],
  "properties": {
    "mail_subject": {"type": "string"},
    "mail_content": {"type": "string"}
  }
}`)
)
