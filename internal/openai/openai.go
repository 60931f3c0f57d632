package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stupiduntilnot/magnus/internal/conversation"
	modelpkg "github.com/stupiduntilnot/magnus/internal/model"
)

// Style selects how the endpoint URL and credential are applied.
type Style string

const (
	// StyleAzure addresses an Azure OpenAI deployment and sends an api-key header.
	StyleAzure Style = "azure"
	// StyleOpenAI posts to an OpenAI-compatible chat completions URL with a bearer token.
	StyleOpenAI Style = "openai"
)

// DefaultAPIVersion is the Azure OpenAI api-version query value.
const DefaultAPIVersion = "2023-05-15"

// Client is a minimal chat completions client.
type Client struct {
	apiKey     string
	url        string
	style      Style
	httpClient *http.Client
}

// NewClient creates a client. For StyleAzure, endpoint is the resource URL and
// deployment selects the model; for StyleOpenAI, endpoint is the API base or
// the full chat completions URL.
func NewClient(style Style, endpoint, apiKey, deployment, apiVersion string, timeout time.Duration) (*Client, error) {
	u, err := completionsURL(style, endpoint, deployment, apiVersion)
	if err != nil {
		return nil, err
	}
	return &Client{
		apiKey: apiKey,
		url:    u,
		style:  style,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// URL returns the resolved chat completions URL.
func (c *Client) URL() string {
	return c.url
}

func completionsURL(style Style, endpoint, deployment, apiVersion string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if base == "" {
		return "", errors.New("openai endpoint is empty")
	}
	if _, err := url.Parse(base); err != nil {
		return "", fmt.Errorf("invalid openai endpoint %q: %w", endpoint, err)
	}
	switch style {
	case StyleAzure, "":
		if deployment == "" {
			return "", errors.New("azure deployment is empty")
		}
		if apiVersion == "" {
			apiVersion = DefaultAPIVersion
		}
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			base, url.PathEscape(deployment), url.QueryEscape(apiVersion)), nil
	case StyleOpenAI:
		if strings.HasSuffix(base, "/chat/completions") {
			return base, nil
		}
		return base + "/chat/completions", nil
	default:
		return "", fmt.Errorf("unsupported openai api style: %s", style)
	}
}

type chatRequest struct {
	Model            string                 `json:"model,omitempty"`
	Messages         []conversation.Message `json:"messages"`
	MaxTokens        int                    `json:"max_tokens,omitempty"`
	N                int                    `json:"n"`
	Temperature      *float64               `json:"temperature,omitempty"`
	TopP             *float64               `json:"top_p,omitempty"`
	FrequencyPenalty *float64               `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64               `json:"presence_penalty,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ChatCompletion sends a chat completion request and returns the first choice.
// Every failure is a *model.GatewayError.
func (c *Client) ChatCompletion(ctx context.Context, req modelpkg.Request) (modelpkg.CompletionResponse, error) {
	reqBody := chatRequest{
		Messages:         req.Messages,
		MaxTokens:        req.Params.MaxTokens,
		N:                1,
		Temperature:      req.Params.Temperature,
		TopP:             req.Params.TopP,
		FrequencyPenalty: req.Params.FrequencyPenalty,
		PresencePenalty:  req.Params.PresencePenalty,
	}
	if c.style == StyleOpenAI {
		reqBody.Model = req.Model
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return modelpkg.CompletionResponse{}, &modelpkg.GatewayError{Op: "marshal openai request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return modelpkg.CompletionResponse{}, &modelpkg.GatewayError{Op: "create openai request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.style == StyleOpenAI {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	} else {
		httpReq.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return modelpkg.CompletionResponse{}, &modelpkg.GatewayError{Op: "openai request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return modelpkg.CompletionResponse{}, &modelpkg.GatewayError{Op: "read openai response", StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return modelpkg.CompletionResponse{}, &modelpkg.GatewayError{
			Op:         "openai request",
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 400),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return modelpkg.CompletionResponse{}, &modelpkg.GatewayError{
			Op:   "parse openai response",
			Body: truncate(string(body), 400),
			Err:  err,
		}
	}

	result := modelpkg.CompletionResponse{}

	// Extract token usage.
	if parsed.Usage != nil {
		result.InputTokens = parsed.Usage.PromptTokens
		result.OutputTokens = parsed.Usage.CompletionTokens
	}

	if len(parsed.Choices) == 0 {
		return result, &modelpkg.GatewayError{
			Op:   "openai response",
			Body: truncate(string(body), 400),
			Err:  errors.New("no choices returned"),
		}
	}
	result.Content = parsed.Choices[0].Message.Content
	return result, nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
