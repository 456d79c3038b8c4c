package usage

import (
	"log/slog"
	"strings"
	"unicode"

	"kiira-hq/gateway/pkg/proxy/types"

	"github.com/pkoukk/tiktoken-go"
)

// EncodingWords selects whitespace counting instead of a BPE encoding.
const EncodingWords = "words"

// Per-message framing overhead, as counted for chat models.
const (
	tokensPerMessage      = 3
	tokensPerRole         = 1
	tokensPerConversation = 3
)

// Counter counts the tokens of a text.
type Counter interface {
	Count(text string) int
}

// Estimator fills the usage block of aggregated completions. The upstream
// reports no token counts, so prompt and completion are counted locally.
type Estimator struct {
	counter Counter
}

// New creates an estimator for a tiktoken encoding name. "words", an empty
// name, or an encoding that cannot be loaded selects WordCounter.
func New(encoding string, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	if encoding == "" || encoding == EncodingWords {
		return &Estimator{counter: WordCounter{}}
	}

	counter, err := NewTiktokenCounter(encoding)
	if err != nil {
		logger.Warn("token encoding unavailable, counting words instead",
			"encoding", encoding,
			"error", err,
		)
		return &Estimator{counter: WordCounter{}}
	}
	return &Estimator{counter: counter}
}

// NewWithCounter creates an estimator around an explicit counter.
func NewWithCounter(c Counter) *Estimator {
	return &Estimator{counter: c}
}

// PromptTokens counts messages including per-message framing.
func (e *Estimator) PromptTokens(messages []types.Message) int {
	if len(messages) == 0 {
		return 0
	}
	total := tokensPerConversation
	for _, msg := range messages {
		total += tokensPerMessage + tokensPerRole
		total += e.counter.Count(msg.Content.PlainText())
		if msg.Name != "" {
			total += e.counter.Count(msg.Name)
		}
	}
	return total
}

// CompletionTokens counts the generated text.
func (e *Estimator) CompletionTokens(text string) int {
	return e.counter.Count(text)
}

// Usage builds the usage block for a completion.
func (e *Estimator) Usage(messages []types.Message, completion string) *types.Usage {
	prompt := e.PromptTokens(messages)
	completionTokens := e.CompletionTokens(completion)
	return &types.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completionTokens,
		TotalTokens:      prompt + completionTokens,
	}
}

// TiktokenCounter counts BPE tokens.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads a tiktoken encoding such as "cl100k_base".
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count implements Counter.
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// WordCounter counts whitespace separated words, with every CJK ideograph
// counted on its own.
type WordCounter struct{}

// Count implements Counter.
func (WordCounter) Count(text string) int {
	n := 0
	for _, field := range strings.Fields(text) {
		latin := false
		for _, r := range field {
			if unicode.Is(unicode.Han, r) {
				n++
				if latin {
					n++
					latin = false
				}
				continue
			}
			latin = true
		}
		if latin {
			n++
		}
	}
	return n
}
