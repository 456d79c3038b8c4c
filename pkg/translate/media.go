package translate

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Media types recognised in upstream resources.
const (
	MediaImage = "image"
	MediaVideo = "video"
)

// Media is a generated image or video.
type Media struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// resourcePaths are where upstream payloads carry sa_resources.
var resourcePaths = []string{
	"choices.0.sa_resources",
	"choices.0.delta.sa_resources",
}

// extractResources returns the media references and the raw resource
// objects of a data payload.
func extractResources(payload gjson.Result) ([]Media, []json.RawMessage) {
	var media []Media
	var raw []json.RawMessage

	for _, path := range resourcePaths {
		resources := payload.Get(path)
		if !resources.IsArray() {
			continue
		}
		resources.ForEach(func(_, res gjson.Result) bool {
			raw = append(raw, json.RawMessage(res.Raw))

			typ := res.Get("type").String()
			url := res.Get("url").String()
			if (typ == MediaImage || typ == MediaVideo) && url != "" {
				media = append(media, Media{Type: typ, URL: url})
			}
			return true
		})
	}
	return media, raw
}

// extractText returns the delta content, falling back to the full
// message content.
func extractText(payload gjson.Result) string {
	if text := payload.Get("choices.0.delta.content").String(); text != "" {
		return text
	}
	return payload.Get("choices.0.message.content").String()
}

// MediaMarkdown renders media references as markdown, in order, skipping
// repeated URLs.
func MediaMarkdown(media []Media) string {
	var b strings.Builder
	seen := make(map[string]struct{}, len(media))

	for _, m := range media {
		if _, dup := seen[m.URL]; dup {
			continue
		}
		seen[m.URL] = struct{}{}

		switch m.Type {
		case MediaImage:
			b.WriteString("\n\n![Generated Image](" + m.URL + ")\n\n")
		case MediaVideo:
			b.WriteString("\n\nVideo generation complete.\n[Download video](" + m.URL + ")\n\n")
		default:
			b.WriteString("\n\n" + m.URL + "\n\n")
		}
	}
	return b.String()
}
