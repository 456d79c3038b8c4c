package gateway

import (
	"strings"

	"kiira-hq/gateway/pkg/proxy/types"
)

// livenessPrompt is the probe clients send to check the gateway is up.
const livenessPrompt = "hi"

// turnMessages returns the messages that make up this turn. A new session
// gets the whole conversation; a continued one only what the caller added
// after the last assistant reply, since the upstream group already holds
// the rest.
func turnMessages(messages []types.Message, isNew bool) []types.Message {
	if isNew {
		return messages
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleAssistant {
			return messages[i+1:]
		}
	}
	return messages
}

// isImageRef reports whether a whole string message is an image reference
// rather than prose.
func isImageRef(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "data:image/")
}

// buildPrompt joins the text of the user messages with newlines. String
// messages that are image references and empty texts are left out;
// multipart text parts are joined by spaces.
func buildPrompt(messages []types.Message) string {
	var lines []string
	for _, msg := range messages {
		if msg.Role != types.RoleUser {
			continue
		}

		var text string
		if msg.Content.IsMultipart() {
			var parts []string
			for _, t := range msg.Content.TextParts() {
				if t = strings.TrimSpace(t); t != "" {
					parts = append(parts, t)
				}
			}
			text = strings.Join(parts, " ")
		} else if !isImageRef(msg.Content.Text) {
			text = strings.TrimSpace(msg.Content.Text)
		}

		if text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n")
}

// imageRefs returns the image references of the user messages in order:
// string messages that are a bare URL or data URI, and image_url parts.
func imageRefs(messages []types.Message) []string {
	var refs []string
	for _, msg := range messages {
		if msg.Role != types.RoleUser {
			continue
		}
		if !msg.Content.IsMultipart() {
			if isImageRef(msg.Content.Text) {
				refs = append(refs, strings.TrimSpace(msg.Content.Text))
			}
			continue
		}
		for _, p := range msg.Content.Parts {
			if p.Type == types.PartTypeImageURL && p.ImageURL != nil && p.ImageURL.URL != "" {
				refs = append(refs, p.ImageURL.URL)
			}
		}
	}
	return refs
}

// isLiveness reports whether the last message is exactly the liveness
// probe. Only tag removal trims content; untagged padding does not match.
func isLiveness(messages []types.Message) bool {
	if len(messages) == 0 {
		return false
	}
	last := messages[len(messages)-1].Content
	return !last.IsMultipart() && last.Text == livenessPrompt
}
