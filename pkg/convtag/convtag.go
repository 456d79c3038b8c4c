// Package convtag carries the conversation handle inside message text so
// that clients which replay the whole transcript continue the same
// upstream conversation without knowing about it.
//
// The marker is [CONVERSATION_ID:<handle>]. Responses get the marker
// appended; requests have every marker stripped before they reach the
// upstream, and the first one found selects the session.
package convtag

import (
	"regexp"
	"strings"

	"kiira-hq/gateway/pkg/proxy/types"
)

const (
	tagPrefix = "[CONVERSATION_ID:"
	tagSuffix = "]"

	// separator goes between the response text and the appended marker.
	separator = "\n\n"
)

var tagPattern = regexp.MustCompile(`(?is)\[CONVERSATION_ID:([^\]]+)\]`)

// Tag returns the marker for handle.
func Tag(handle string) string {
	return tagPrefix + handle + tagSuffix
}

// ExtractText removes every marker with a non-empty id from text. It
// returns the first id, the text with markers removed and surrounding
// space trimmed, and whether anything was removed. Text without a usable
// marker is returned unchanged.
func ExtractText(text string) (handle, cleaned string, found bool) {
	matches := tagPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return "", text, false
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		id := strings.TrimSpace(text[m[2]:m[3]])
		if id == "" {
			continue
		}
		if handle == "" {
			handle = id
		}
		b.WriteString(text[last:m[0]])
		last = m[1]
		found = true
	}
	if !found {
		return "", text, false
	}

	b.WriteString(text[last:])
	return handle, strings.TrimSpace(b.String()), true
}

// Extract scans messages in order (string content and the text parts of
// multipart content) and returns the first handle found together with a
// cleaned copy of messages. Emptied content stays as an empty string or
// empty text part. The input slice is not modified.
func Extract(messages []types.Message) (string, []types.Message) {
	var handle string
	cleaned := make([]types.Message, len(messages))

	for i, msg := range messages {
		cleaned[i] = msg

		if !msg.Content.IsMultipart() {
			id, text, ok := ExtractText(msg.Content.Text)
			if !ok {
				continue
			}
			if handle == "" {
				handle = id
			}
			cleaned[i].Content = types.TextContent(text)
			continue
		}

		var parts []types.ContentPart
		for j, part := range msg.Content.Parts {
			if part.Type != types.PartTypeText {
				continue
			}
			id, text, ok := ExtractText(part.Text)
			if !ok {
				continue
			}
			if handle == "" {
				handle = id
			}
			if parts == nil {
				parts = append([]types.ContentPart(nil), msg.Content.Parts...)
			}
			parts[j].Text = text
		}
		if parts != nil {
			cleaned[i].Content = types.PartsContent(parts...)
		}
	}

	return handle, cleaned
}

// InjectText appends the marker for handle to text.
func InjectText(text, handle string) string {
	return text + separator + Tag(handle)
}

// Inject appends the marker for handle to content: to the text of string
// content, or as a new text part of multipart content. An empty handle
// leaves content unchanged.
func Inject(content types.Content, handle string) types.Content {
	if handle == "" {
		return content
	}
	if !content.IsMultipart() {
		return types.TextContent(InjectText(content.Text, handle))
	}

	parts := make([]types.ContentPart, 0, len(content.Parts)+1)
	parts = append(parts, content.Parts...)
	parts = append(parts, types.TextPart(Tag(handle)))
	return types.PartsContent(parts...)
}
