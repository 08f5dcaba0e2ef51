package gateway

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Travbz/doc-smith/internal/domain"
)

// Classification is the outcome of classifying a provider failure.
type Classification struct {
	Original   error
	Kind       domain.ErrorKind
	Retryable  bool
	StatusCode int
	// Degraded is set when the kind was guessed from the error text.
	Degraded bool
	Keyword  string
}

// Err returns the original error wrapped with the taxonomy sentinel for Kind.
func (c Classification) Err() error {
	if c.Original == nil {
		return nil
	}
	sentinel := c.Kind.Sentinel()
	if sentinel == nil {
		sentinel = domain.ErrAPI
	}
	if errors.Is(c.Original, sentinel) {
		return c.Original
	}
	return fmt.Errorf("%w: %w", sentinel, c.Original)
}

// Classifier maps provider errors to completion error kinds. Structured
// domain.CompletionError values and wrapped sentinels are trusted first;
// status codes and message keywords are fallbacks for adapters that cannot
// attach a kind.
type Classifier struct{}

// apiErrorPattern matches the "API error <status>:" detail produced by HTTP adapters.
var apiErrorPattern = regexp.MustCompile(`API error (\d+):`)

var keywordKinds = []struct {
	keyword string
	kind    domain.ErrorKind
}{
	{"rate limit", domain.ErrorKindRateLimit},
	{"too many requests", domain.ErrorKindRateLimit},
	{"token limit", domain.ErrorKindTokenLimit},
	{"context length", domain.ErrorKindTokenLimit},
	{"maximum context", domain.ErrorKindTokenLimit},
	{"model", domain.ErrorKindModel},
	{"connection refused", domain.ErrorKindAPI},
	{"connection reset", domain.ErrorKindAPI},
	{"no such host", domain.ErrorKindAPI},
	{"timeout", domain.ErrorKindAPI},
	{"deadline exceeded", domain.ErrorKindAPI},
}

// Classify inspects err and reports its kind and whether retrying can help.
func (Classifier) Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	var ce *domain.CompletionError
	if errors.As(err, &ce) && ce.Kind != domain.ErrorKindUnknown {
		return classified(err, ce.Kind, ce.StatusCode)
	}

	for _, kind := range []domain.ErrorKind{
		domain.ErrorKindTokenLimit,
		domain.ErrorKindRateLimit,
		domain.ErrorKindAuth,
		domain.ErrorKindModel,
		domain.ErrorKindAPI,
	} {
		if errors.Is(err, kind.Sentinel()) {
			return classified(err, kind, 0)
		}
	}

	if errors.Is(err, context.Canceled) {
		return Classification{Original: err, Kind: domain.ErrorKindAPI}
	}

	errStr := err.Error()
	if m := apiErrorPattern.FindStringSubmatch(errStr); len(m) == 2 {
		code, _ := strconv.Atoi(m[1])
		return classified(err, domain.KindForStatus(code, errStr), code)
	}

	lower := strings.ToLower(errStr)
	for _, kk := range keywordKinds {
		if strings.Contains(lower, kk.keyword) {
			c := classified(err, kk.kind, 0)
			c.Degraded = true
			c.Keyword = kk.keyword
			return c
		}
	}

	c := classified(err, domain.ErrorKindAPI, 0)
	c.Degraded = true
	return c
}

func classified(err error, kind domain.ErrorKind, status int) Classification {
	return Classification{
		Original:   err,
		Kind:       kind,
		Retryable:  kind == domain.ErrorKindRateLimit || kind == domain.ErrorKindAPI,
		StatusCode: status,
	}
}
