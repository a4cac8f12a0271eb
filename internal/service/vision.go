package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"openai-relay-go/internal/model"
)

// DefaultVisionModel is used when the caller omits the model field.
const DefaultVisionModel = "gpt-5-thinking"

// visionTemperature biases the model toward deterministic output.
const visionTemperature = 0.2

const defaultImageMime = "image/jpeg"

// contentBlock is one unit of a Responses-API multimodal input turn.
type contentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type inputTurn struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type visionPayload struct {
	Model       string      `json:"model"`
	Input       []inputTurn `json:"input"`
	Temperature float64     `json:"temperature"`
}

// BuildVisionPayload constructs the Responses-API payload for a vision
// request: one text block from the prompt followed by one image block per
// image carrying base64 data, wrapped in a single user turn. Images without
// base64 data are skipped silently.
func BuildVisionPayload(req model.VisionRequest) ([]byte, error) {
	m := req.Model
	if m == "" {
		m = DefaultVisionModel
	}

	content := []contentBlock{
		{Type: "input_text", Text: req.Prompt},
	}

	for _, img := range req.Images {
		if img.B64 == "" {
			continue
		}
		mime := img.Mime
		if mime == "" {
			mime = defaultImageMime
		}
		content = append(content, contentBlock{
			Type:     "input_image",
			ImageURL: fmt.Sprintf("data:%s;base64,%s", mime, img.B64),
		})
	}

	payload := visionPayload{
		Model:       m,
		Input:       []inputTurn{{Role: "user", Content: content}},
		Temperature: visionTemperature,
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal vision payload: %w", err)
	}
	return out, nil
}

// responsesBody is the subset of a Responses-API reply the relay cares about.
type responsesBody struct {
	Output []struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	OutputText string `json:"output_text"`
}

// ExtractOutputText pulls the assistant text out of a raw Responses-API reply.
// It concatenates every output_text block across the output array, joined with
// newlines and trimmed. When no such block exists it falls back to a top-level
// output_text field, and when the body is not JSON at all the raw text itself
// is returned.
func ExtractOutputText(raw []byte) string {
	var body responsesBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return string(raw)
	}

	var parts []string
	for _, item := range body.Output {
		for _, blk := range item.Content {
			if blk.Type == "output_text" {
				parts = append(parts, blk.Text)
			}
		}
	}

	if len(parts) == 0 {
		return body.OutputText
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
