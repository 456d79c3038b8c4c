package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Content part types.
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// Content is a message body: either a plain string or a list of parts
// (text and images). The form it was decoded from is kept when encoding.
type Content struct {
	// Text is the body of a plain string message.
	Text string

	// Parts is the body of a multipart message.
	Parts []ContentPart

	multipart bool
}

// TextContent returns string content.
func TextContent(text string) Content {
	return Content{Text: text}
}

// PartsContent returns multipart content.
func PartsContent(parts ...ContentPart) Content {
	if parts == nil {
		parts = []ContentPart{}
	}
	return Content{Parts: parts, multipart: true}
}

// IsMultipart reports whether the content is a list of parts.
func (c Content) IsMultipart() bool {
	return c.multipart
}

// TextParts returns the text of every text part of multipart content, or
// the single string of plain content.
func (c Content) TextParts() []string {
	if !c.multipart {
		return []string{c.Text}
	}
	var texts []string
	for _, p := range c.Parts {
		if p.Type == PartTypeText {
			texts = append(texts, p.Text)
		}
	}
	return texts
}

// PlainText returns the content as one string, text parts joined by spaces.
func (c Content) PlainText() string {
	return strings.Join(c.TextParts(), " ")
}

// MarshalJSON encodes plain content as a string and multipart content as
// an array.
func (c Content) MarshalJSON() ([]byte, error) {
	if !c.multipart {
		return json.Marshal(c.Text)
	}
	parts := c.Parts
	if parts == nil {
		parts = []ContentPart{}
	}
	return json.Marshal(parts)
}

// UnmarshalJSON accepts a string, an array of parts or null (empty text).
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case data[0] == '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*c = TextContent(text)
		return nil
	case data[0] == '[':
		var parts []ContentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*c = PartsContent(parts...)
		return nil
	default:
		return fmt.Errorf("message content must be a string or an array of parts")
	}
}

// ContentPart is one element of multipart content. Parts of types other
// than text and image_url are passed through unchanged.
type ContentPart struct {
	Type     string
	Text     string
	ImageURL *ImageURL

	raw json.RawMessage
}

// TextPart returns a text part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

// ImagePart returns an image_url part.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartTypeImageURL, ImageURL: &ImageURL{URL: url}}
}

// MarshalJSON always writes the text field of text parts, even when empty.
func (p ContentPart) MarshalJSON() ([]byte, error) {
	switch p.Type {
	case PartTypeText:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{p.Type, p.Text})
	case PartTypeImageURL:
		return json.Marshal(struct {
			Type     string    `json:"type"`
			ImageURL *ImageURL `json:"image_url,omitempty"`
		}{p.Type, p.ImageURL})
	}
	if p.raw != nil {
		return p.raw, nil
	}
	return json.Marshal(struct {
		Type string `json:"type"`
	}{p.Type})
}

// UnmarshalJSON decodes a part, keeping the raw form of unknown types.
func (p *ContentPart) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type     string    `json:"type"`
		Text     string    `json:"text"`
		ImageURL *ImageURL `json:"image_url"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*p = ContentPart{Type: wire.Type, Text: wire.Text, ImageURL: wire.ImageURL}
	if wire.Type != PartTypeText && wire.Type != PartTypeImageURL {
		p.raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

// ImageURL references an image by URL or data URI.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// UnmarshalJSON accepts both {"url": "..."} and a bare string.
func (u *ImageURL) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var url string
		if err := json.Unmarshal(data, &url); err != nil {
			return err
		}
		*u = ImageURL{URL: url}
		return nil
	}

	type plain ImageURL
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*u = ImageURL(v)
	return nil
}
