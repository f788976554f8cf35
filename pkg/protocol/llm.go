package protocol

import (
	"fmt"
	"strings"
)

// ImageAttachment is a screenshot supplied alongside a project description.
// Data holds either a data URL ("data:image/png;base64,...") or bare base64.
type ImageAttachment struct {
	Data        string `json:"base64"`
	Description string `json:"description,omitempty"`
	Filename    string `json:"filename,omitempty"`
}

// CompletionRequest holds parameters for a single-shot generation call.
// Text is the user content; Images follow it in their original order.
type CompletionRequest struct {
	Model     string            `json:"model,omitempty"`
	System    string            `json:"system"`
	Text      string            `json:"text"`
	Images    []ImageAttachment `json:"images,omitempty"`
	JSONMode  bool              `json:"json_mode,omitempty"`
	MaxTokens int               `json:"max_tokens,omitempty"`
}

// CompletionResponse is the parsed response from a generation provider.
type CompletionResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption for a single generation call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// TotalTokens returns the sum of prompt and completion tokens.
func (u Usage) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}

// ImageCaptions renders the textual caption block for a list of images:
// one "Image i (filename): description" line per image, each preceded by a
// blank line. Returns "" for an empty list. Both the planner and the
// expander append this to the user text so captioned and attached forms of
// the same screenshot stay aligned.
func ImageCaptions(images []ImageAttachment) string {
	if len(images) == 0 {
		return ""
	}
	var b strings.Builder
	for i, img := range images {
		name := img.Filename
		if name == "" {
			name = "image"
		}
		if img.Description != "" {
			fmt.Fprintf(&b, "\n\nImage %d (%s): %s", i+1, name, img.Description)
		} else {
			fmt.Fprintf(&b, "\n\nImage %d (%s)", i+1, name)
		}
	}
	return b.String()
}
