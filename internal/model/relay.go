// Package model defines shared types for the relay.
package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// UpstreamResult holds a fully-read upstream response. The body is kept as raw
// text because the upstream is not trusted to return well-formed JSON.
type UpstreamResult struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the upstream status code indicates success.
func (r *UpstreamResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ImageInput is one caller-supplied image for the vision endpoint.
type ImageInput struct {
	Name string `json:"name"`
	Mime string `json:"mime"`
	B64  string `json:"b64"`
}

// VisionRequest is the inbound body of the vision endpoint. Decoding is
// deliberately lenient: a non-string prompt is coerced to its textual form and
// a non-array images field is treated as empty rather than rejected.
type VisionRequest struct {
	Model  string
	Prompt string
	Images []ImageInput
}

// UnmarshalJSON implements the lenient decoding rules for VisionRequest.
func (v *VisionRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Model  json.RawMessage `json:"model"`
		Prompt json.RawMessage `json:"prompt"`
		Images json.RawMessage `json:"images"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	v.Model = coerceString(raw.Model)
	v.Prompt = coerceString(raw.Prompt)

	v.Images = nil
	if len(raw.Images) > 0 {
		var images []ImageInput
		if err := json.Unmarshal(raw.Images, &images); err == nil {
			v.Images = images
		}
	}

	return nil
}

// coerceString turns a raw JSON value into a string: JSON strings are
// unquoted, null and absent values become empty, and anything else keeps its
// raw JSON text (a numeric prompt becomes "42", not an error).
func coerceString(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		if s, err := strconv.Unquote(string(raw)); err == nil {
			return s
		}
	}
	return string(raw)
}
