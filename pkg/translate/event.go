package translate

import (
	"strings"

	"github.com/tidwall/gjson"
)

// EventKind classifies one line of the upstream event stream.
type EventKind int

const (
	// EventBlank is an empty line (event separator).
	EventBlank EventKind = iota

	// EventComment is a line starting with ':' (keep-alive).
	EventComment

	// EventData is a data line carrying a JSON payload.
	EventData

	// EventDone is the data: [DONE] terminator.
	EventDone

	// EventMalformed is anything else, including data lines with
	// invalid JSON.
	EventMalformed
)

// String returns the kind's name.
func (k EventKind) String() string {
	switch k {
	case EventBlank:
		return "blank"
	case EventComment:
		return "comment"
	case EventData:
		return "data"
	case EventDone:
		return "done"
	default:
		return "malformed"
	}
}

// Event is one parsed line.
type Event struct {
	Kind EventKind

	// Payload is the parsed JSON of a data event.
	Payload gjson.Result

	// Raw is the line as received.
	Raw string
}

const doneMarker = "[DONE]"

// ParseLine classifies a single line of the upstream stream.
func ParseLine(line string) Event {
	ev := Event{Raw: line}

	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		ev.Kind = EventBlank
		return ev
	case strings.HasPrefix(trimmed, ":"):
		ev.Kind = EventComment
		return ev
	}

	data, ok := strings.CutPrefix(trimmed, "data:")
	if !ok {
		ev.Kind = EventMalformed
		return ev
	}

	data = strings.TrimSpace(data)
	switch {
	case data == doneMarker:
		ev.Kind = EventDone
	case data != "" && gjson.Valid(data):
		ev.Kind = EventData
		ev.Payload = gjson.Parse(data)
	default:
		ev.Kind = EventMalformed
	}
	return ev
}
