// Package translate converts the upstream Kiira event stream into
// OpenAI-style incremental chunks.
//
// Upstream lines look like OpenAI server-sent events, but generated images
// and videos arrive as sa_resources objects next to the text. The
// Translator extracts both, and MediaMarkdown renders the media as
// markdown links for clients that only display text.
package translate
