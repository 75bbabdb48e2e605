// Package backend provides the HTTP client for the backend model endpoint.
// It is the only component that performs network I/O toward the models.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/modelmux/modelmux/internal/domain/session"
	"github.com/modelmux/modelmux/internal/resilience"
)

// ChatMessage is one message in a chat-completion conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a function the model may call.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the schema of a callable function.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a structured directive embedded in a model reply.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the called function name and its raw JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a successful model reply. A nil *Message is the absence signal:
// all attempts were exhausted without a usable response.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ChatRequest is one chat-completion call.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	Tools       []Tool        `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client calls the backend chat-completions endpoint with bounded retries
// and linear backoff.
type Client struct {
	endpoint   string
	token      string
	maxRetries int
	baseDelay  time.Duration
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a backend client. timeout bounds each individual attempt.
func NewClient(endpoint, token string, timeout time.Duration, maxRetries int, baseDelay time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		token:      token,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing attempts.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Chat issues one chat-completion call with up to maxRetries attempts.
// Attempt k (k > 1) is preceded by a baseDelay × (k-1) wait; the wait is a
// goroutine suspension, never a process stall. Transient failures (non-2xx,
// timeout, transport error) are logged to sink and retried; when all attempts
// fail, Chat returns nil rather than an error. sink may be nil.
func (c *Client) Chat(ctx context.Context, req ChatRequest, sink session.Sink) *Message {
	req.Stream = false

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			if !c.wait(ctx, time.Duration(attempt-1)*c.baseDelay) {
				logf(sink, fmt.Sprintf("Cancelled call to %s", req.Model), ctx.Err().Error(), session.LevelError)
				return nil
			}
		}

		logf(sink, fmt.Sprintf("Calling %s (Attempt %d)", req.Model, attempt),
			map[string]any{"input": req.Messages}, session.LevelInfo)

		msg, err := c.attempt(ctx, req)
		if err == nil {
			logf(sink, fmt.Sprintf("Response from %s", req.Model), msg, session.LevelInfo)
			return msg
		}

		level := session.LevelError
		if errors.Is(err, context.DeadlineExceeded) {
			level = session.LevelWarning
		}
		logf(sink, fmt.Sprintf("Error with %s", req.Model), err.Error(), level)
	}

	logf(sink, fmt.Sprintf("Failed all %d attempts with %s", c.maxRetries, req.Model), "", session.LevelError)
	return nil
}

// wait suspends for d or until ctx is done. Returns false on cancellation.
func (c *Client) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) attempt(ctx context.Context, req ChatRequest) (*Message, error) {
	var msg *Message
	call := func() error {
		body, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
		}

		var parsed chatResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return errors.New("response has no choices")
		}

		msg = &parsed.Choices[0].Message
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return msg, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return msg, nil
}

func logf(sink session.Sink, step string, payload any, level session.Level) {
	if sink == nil {
		return
	}
	sink.Log(step, payload, level)
}
