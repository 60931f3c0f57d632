package model

import (
	"context"
	"fmt"

	"github.com/stupiduntilnot/magnus/internal/conversation"
)

// SamplingParameters are the generation controls sent with every request.
// Nil factors are omitted so the provider applies its own default.
type SamplingParameters struct {
	MaxTokens        int
	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
}

// Request is one completion call: the ordered conversation plus the model
// (or deployment) it is addressed to.
type Request struct {
	Model    string
	Messages []conversation.Message
	Params   SamplingParameters
}

// CompletionResponse is the common response model for model providers.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the completion gateway abstraction used by the chat session.
type Provider interface {
	ChatCompletion(ctx context.Context, req Request) (CompletionResponse, error)
}

// GatewayError reports a failed completion call: transport, auth, or a
// provider-side error. StatusCode is zero when no HTTP response was received.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Body != "" {
		msg += " body=" + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Class buckets the error for logs and the turn journal.
func (e *GatewayError) Class() string {
	switch {
	case e.StatusCode == 401 || e.StatusCode == 403:
		return "auth"
	case e.StatusCode == 429:
		return "rate_limited"
	case e.StatusCode >= 500:
		return "provider_unavailable"
	case e.StatusCode != 0:
		return "provider_rejected"
	case e.Err != nil:
		return "transport"
	default:
		return "provider_api"
	}
}
