package domain

import (
	"context"
	"fmt"
	"strings"
)

// CompletionRequest is a single-prompt completion call.
type CompletionRequest struct {
	Prompt string
	Config ModelConfig
}

// Usage reports the tokens a provider billed for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Completion is a provider's answer.
type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// CompletionProvider is the external LLM collaborator.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	Name() string
}

// ErrorKind is the structured failure class an adapter attaches to provider errors.
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindRateLimit
	ErrorKindTokenLimit
	ErrorKindModel
	ErrorKindAPI
	ErrorKindAuth
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindRateLimit:
		return "rate_limit"
	case ErrorKindTokenLimit:
		return "token_limit"
	case ErrorKindModel:
		return "model"
	case ErrorKindAPI:
		return "api"
	case ErrorKindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Sentinel returns the taxonomy sentinel for the kind, or nil for ErrorKindUnknown.
func (k ErrorKind) Sentinel() error {
	switch k {
	case ErrorKindRateLimit:
		return ErrRateLimit
	case ErrorKindTokenLimit:
		return ErrTokenLimit
	case ErrorKindModel:
		return ErrModel
	case ErrorKindAPI:
		return ErrAPI
	case ErrorKindAuth:
		return ErrAuthInvalid
	default:
		return nil
	}
}

// CompletionError is a provider failure with a structured kind.
type CompletionError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Err        error
}

func (e *CompletionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *CompletionError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.Sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Cache stores completion texts. Implementations report failures as misses.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

// contextOverflowKeywords mark a 400 response as a prompt-size problem.
var contextOverflowKeywords = []string{"context", "token", "too long", "maximum"}

// KindForStatus maps an HTTP status (and response body) to an error kind.
func KindForStatus(code int, body string) ErrorKind {
	switch {
	case code == 429:
		return ErrorKindRateLimit
	case code == 401 || code == 403:
		return ErrorKindAuth
	case code == 413:
		return ErrorKindTokenLimit
	case code == 404:
		return ErrorKindModel
	case code == 400:
		lower := strings.ToLower(body)
		for _, kw := range contextOverflowKeywords {
			if strings.Contains(lower, kw) {
				return ErrorKindTokenLimit
			}
		}
		return ErrorKindModel
	default:
		return ErrorKindAPI
	}
}
