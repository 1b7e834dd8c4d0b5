package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/openai/openai-go"
)

var (
	// ErrTransport marks failures to get a successful HTTP response:
	// connection errors, timeouts and non-2xx statuses.
	ErrTransport = errors.New("embedding transport failure")

	// ErrPayload marks responses that arrived but do not carry the expected vectors.
	ErrPayload = errors.New("embedding payload failure")

	ErrInvalidConfig = errors.New("invalid embedding config")
)

// maxFragment bounds how much of a response body is copied into an error.
const maxFragment = 512

type TransportError struct {
	Endpoint   string
	StatusCode int // 0 when no response was received
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s returned status %d: %s", ErrTransport, e.Endpoint, e.StatusCode, e.Body)
	}

	return fmt.Sprintf("%s: %s: %v", ErrTransport, e.Endpoint, e.Err)
}

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func (e *TransportError) Unwrap() error { return e.Err }

type PayloadError struct {
	Endpoint string
	Reason   string
	Fragment string
	Err      error
}

func (e *PayloadError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", ErrPayload, e.Endpoint, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Fragment != "" {
		msg += " (payload: " + e.Fragment + ")"
	}

	return msg
}

func (e *PayloadError) Is(target error) bool { return target == ErrPayload }

func (e *PayloadError) Unwrap() error { return e.Err }

func truncate(s string) string {
	if len(s) <= maxFragment {
		return s
	}

	return s[:maxFragment] + "…"
}

// classifyOpenAIError sorts an openai-go failure into the two error kinds.
func classifyOpenAIError(endpoint string, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &TransportError{
			Endpoint:   endpoint,
			StatusCode: apiErr.StatusCode,
			Body:       truncate(apiErr.Error()),
			Err:        err,
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransportError{Endpoint: endpoint, Err: err}
	}

	// Anything else came out of decoding the response body.
	return &PayloadError{Endpoint: endpoint, Reason: "cannot decode response", Err: err}
}
