package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Travbz/doc-smith/internal/domain"
)

// maxResponseBody is the maximum response body size we read from LLM APIs.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// doJSONRequest performs a JSON POST and returns the response body. Non-200
// responses and transport failures come back as *domain.CompletionError.
func doJSONRequest(ctx context.Context, client *http.Client, provider, url string, body []byte, headers map[string]string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.CompletionError{Kind: domain.ErrorKindAPI, Provider: provider, Err: fmt.Errorf("http request: %w", err)}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, &domain.CompletionError{Kind: domain.ErrorKindAPI, Provider: provider, Err: fmt.Errorf("read response: %w", err)}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(provider, httpResp.StatusCode, respBody)
	}

	return respBody, nil
}

// mapHTTPError maps an HTTP status code and response body to a structured
// completion error so the gateway never has to parse message text.
func mapHTTPError(provider string, statusCode int, body []byte) error {
	bodyStr := string(body)
	return &domain.CompletionError{
		Kind:       domain.KindForStatus(statusCode, bodyStr),
		Provider:   provider,
		StatusCode: statusCode,
		Err:        fmt.Errorf("API error %d: %s", statusCode, bodyStr),
	}
}
