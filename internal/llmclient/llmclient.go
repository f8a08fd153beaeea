// Package llmclient implements the LLM Client (C5): a vendor-neutral
// chat-completion HTTP client with timeout/retry handling and JSON-shape
// validation + repair, grounded on the teacher's HTTP-summarizer client
// shape in internal/extraction/llm.go generalized to the spec's messages
// plus options wire protocol.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/brianjwalters/lexorch/internal/config"
	"github.com/brianjwalters/lexorch/internal/extractionerr"
	"github.com/brianjwalters/lexorch/internal/logging"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Message is one chat-completion message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries the messages and generation options for one
// chat-completion call, per spec §4.5/§6.3.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	// JSONSchema, when non-empty, is passed through as a guided-decoding
	// hint; the wire shape for it is server-specific and opaque here.
	JSONSchema string
	// ExpectJSON requests JSON-shape validation (and repair on failure) of
	// the response content.
	ExpectJSON bool
}

// Response is the result of one chat-completion call.
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	// Malformed is true when ExpectJSON was set and the content could not
	// be parsed as JSON even after the repair pass; Content still carries
	// the best-effort (possibly repaired) text, per spec §4.5.
	Malformed bool
}

// wireRequest/wireResponse are the HTTP JSON shapes posted to/read from the
// LLM server's chat-completion endpoint.
type wireRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	JSONSchema  string    `json:"json_schema,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Client issues chat-completion requests against an LLM server's HTTP
// endpoint. It has no concept of concurrency limits, rate limits, or
// circuit breaking — that is C6 (throttle)'s job; Client is the thing C6
// wraps.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     config.Secret
	maxRetries int
	logger     *logging.Logger
}

// New constructs a Client from the LLM section of Config.
func New(cfg config.LLMConfig, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewTestLogger().Logger
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout.Duration()},
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// GenerateChatCompletion issues one chat-completion request, retrying
// retryable failures up to maxRetries times with exponential backoff via
// backoff.Retry, and repairing malformed JSON content when req.ExpectJSON
// is set.
func (c *Client) GenerateChatCompletion(ctx context.Context, req Request) (Response, error) {
	op := func() (Response, error) {
		resp, err := c.doRequest(ctx, req)
		if err != nil {
			var classified *extractionerr.Error
			if errors.As(err, &classified) && !extractionerr.Retryable(classified.Kind) {
				return Response{}, backoff.Permanent(err)
			}
			return Response{}, err
		}
		return resp, nil
	}

	b := backoff.NewExponentialBackOff()
	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
	)
	if err != nil {
		return Response{}, err
	}

	if req.ExpectJSON {
		resp = c.validateJSON(ctx, resp)
	}
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, req Request) (Response, error) {
	wire := wireRequest{
		Model:       c.model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		JSONSchema:  req.JSONSchema,
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return Response{}, extractionerr.New(extractionerr.KindInvalidInput, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, extractionerr.New(extractionerr.KindInvalidInput, fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey.IsSet() {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey.Value())
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, classifyTransportError(err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, extractionerr.New(extractionerr.KindTransport, fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode == http.StatusServiceUnavailable {
		return Response{}, extractionerr.New(extractionerr.KindModelNotReady, fmt.Errorf("model not ready (503): %s", string(respBody)))
	}
	if httpResp.StatusCode >= 500 {
		return Response{}, extractionerr.New(extractionerr.KindServerError, fmt.Errorf("server error (%d): %s", httpResp.StatusCode, string(respBody)))
	}
	if httpResp.StatusCode == http.StatusTooManyRequests {
		return Response{}, extractionerr.New(extractionerr.KindServerError, fmt.Errorf("rate limited (429)"))
	}
	if httpResp.StatusCode >= 400 {
		return Response{}, extractionerr.New(extractionerr.KindInvalidInput, fmt.Errorf("client error (%d): %s", httpResp.StatusCode, string(respBody)))
	}

	var wireResp wireResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return Response{}, extractionerr.New(extractionerr.KindTransport, fmt.Errorf("decode response envelope: %w", err))
	}
	if wireResp.Error != nil {
		return Response{}, extractionerr.New(extractionerr.KindServerError, fmt.Errorf("llm error: %s", wireResp.Error.Message))
	}
	if len(wireResp.Choices) == 0 {
		return Response{}, extractionerr.New(extractionerr.KindServerError, fmt.Errorf("llm response contained no choices"))
	}

	return Response{
		Content:          wireResp.Choices[0].Message.Content,
		PromptTokens:     wireResp.Usage.PromptTokens,
		CompletionTokens: wireResp.Usage.CompletionTokens,
	}, nil
}

// classifyTransportError distinguishes timeout from other transport
// failures so callers can surface the right extractionerr.Kind.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return extractionerr.New(extractionerr.KindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return extractionerr.New(extractionerr.KindTimeout, err)
	}
	return extractionerr.New(extractionerr.KindTransport, err)
}

// validateJSON parses resp.Content as JSON; on failure it runs the repair
// pass from repair.go and retries the parse once. If repair still fails,
// the response is returned with Malformed set and the best-effort content,
// per spec §4.5 ("let the caller decide").
func (c *Client) validateJSON(ctx context.Context, resp Response) Response {
	if json.Valid([]byte(resp.Content)) {
		return resp
	}

	repaired, ok := Repair(resp.Content)
	if ok && json.Valid([]byte(repaired)) {
		c.logger.Debug(ctx, "llmclient: repaired malformed JSON response")
		resp.Content = repaired
		return resp
	}

	c.logger.Warn(ctx, "llmclient: could not repair malformed JSON response", zap.Int("content_length", len(resp.Content)))
	resp.Content = repaired
	resp.Malformed = true
	return resp
}
