package llm

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is used for models tiktoken does not know.
const fallbackEncoding = "cl100k_base"

// Tokenizer counts tokens with tiktoken encodings, cached per model. When no
// encoding can be loaded it estimates one token per four characters.
type Tokenizer struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
	forModel  func(model string) (*tiktoken.Tiktoken, error)
	byName    func(name string) (*tiktoken.Tiktoken, error)
	logger    *slog.Logger
	warned    bool
}

// NewTokenizer creates a Tokenizer.
func NewTokenizer(logger *slog.Logger) *Tokenizer {
	return &Tokenizer{
		encodings: make(map[string]*tiktoken.Tiktoken),
		forModel:  tiktoken.EncodingForModel,
		byName:    tiktoken.GetEncoding,
		logger:    logger,
	}
}

// Count returns the number of tokens text encodes to for model.
func (t *Tokenizer) Count(model, text string) int {
	if text == "" {
		return 0
	}
	enc := t.encoding(model)
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

func (t *Tokenizer) encoding(model string) *tiktoken.Tiktoken {
	t.mu.Lock()
	defer t.mu.Unlock()

	if enc, ok := t.encodings[model]; ok {
		return enc
	}

	enc, err := t.forModel(model)
	if err != nil {
		enc, err = t.byName(fallbackEncoding)
	}
	if err != nil {
		if !t.warned {
			t.logger.Warn("tokenizer unavailable, estimating tokens from length", "model", model, "error", err)
			t.warned = true
		}
		enc = nil
	}
	t.encodings[model] = enc
	return enc
}
