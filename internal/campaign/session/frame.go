// internal/campaign/session/frame.go
package session

import (
	"encoding/json"

	"campaign-client/internal/common/validation"
	"campaign-client/internal/models"
)

// Frame is an inbound stream message classified at the channel boundary.
type Frame interface {
	Kind() string
	isFrame()
}

// ErrorFrame reports a failure of the current generation attempt.
type ErrorFrame struct {
	Payload string
}

// ProgressFrame carries a human readable status line.
type ProgressFrame struct {
	Message string
}

// ResultFrame is the terminal frame with the per-segment images.
type ResultFrame struct {
	Images models.PerTargetImages
}

// UnknownFrame is anything else. Invalid is set when the frame looked like a
// result but failed validation.
type UnknownFrame struct {
	Raw     []byte
	Reason  string
	Invalid bool
}

func (ErrorFrame) Kind() string { return "error" }
func (ProgressFrame) Kind() string { return "progress" }
func (ResultFrame) Kind() string { return "result" }
func (UnknownFrame) Kind() string { return "unknown" }

func (ErrorFrame) isFrame() {}
func (ProgressFrame) isFrame() {}
func (ResultFrame) isFrame() {}
func (UnknownFrame) isFrame() {}

var resultFrameSchema = validation.MustCompile("images_per_target", `{
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "properties": {
      "accepted": {"type": ["array", "null"], "items": {"type": "string"}},
      "rejected": {"type": ["array", "null"], "items": {"type": "string"}}
    }
  }
}`)

// Classify decodes a raw text frame. Keys are checked in priority order:
// error, then a string response, then an images_per_target object.
func Classify(raw []byte) Frame {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return UnknownFrame{Raw: raw, Reason: "not a JSON object"}
	}

	if v, ok := probe["error"]; ok {
		return ErrorFrame{Payload: payloadString(v)}
	}

	if v, ok := probe["response"]; ok {
		var msg string
		if err := json.Unmarshal(v, &msg); err == nil {
			return ProgressFrame{Message: msg}
		}
	}

	if v, ok := probe["images_per_target"]; ok {
		if result := resultFrameSchema.Validate(v); !result.Valid {
			return UnknownFrame{Raw: raw, Reason: result.Summary(), Invalid: true}
		}
		var images models.PerTargetImages
		if err := json.Unmarshal(v, &images); err != nil {
			return UnknownFrame{Raw: raw, Reason: err.Error(), Invalid: true}
		}
		for k, imgs := range images {
			images[k] = imgs.Clone()
		}
		return ResultFrame{Images: images}
	}

	return UnknownFrame{Raw: raw, Reason: "no recognized key"}
}

func payloadString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(v)
}
