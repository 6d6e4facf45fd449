// Package anthropic wraps the Anthropic Messages API for one-shot and
// token-streaming completions.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"

	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-5-20250929"

	// DefaultMaxTokens bounds answer length when the caller does not specify one.
	DefaultMaxTokens = 2048
)

var (
	// ErrNoAPIKey is returned at construction time when the API key is missing.
	ErrNoAPIKey = errors.New("anthropic API key is required")
)

// Message is one conversation message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompleteInput describes a completion request.
type CompleteInput struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
}

// Fragment is one incremental span of streamed answer text. Done marks the end
// of a successful stream; Err marks a mid-stream failure. Either way no further
// fragments follow.
type Fragment struct {
	Text string
	Done bool
	Err  error
}

// Client calls the Anthropic Messages API.
type Client struct {
	apiKey  string
	model   string
	baseURL string

	// Separate clients: completions get a hard timeout, streams are bounded
	// by the request context so long generations are not cut off mid-answer.
	client       *http.Client
	streamClient *http.Client
}

// ClientConfig holds construction options for Client.
type ClientConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewClient creates a Client, failing fast when no API key is configured.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		client:       &http.Client{Timeout: 60 * time.Second},
		streamClient: &http.Client{Timeout: 0},
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
}

func (c *Client) newRequest(ctx context.Context, input CompleteInput, stream bool) (*http.Request, error) {
	maxTokens := input.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	body := messagesRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      input.System,
		Messages:    input.Messages,
		Temperature: input.Temperature,
		Stream:      stream,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	return req, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// Complete issues a non-streaming completion and returns the full answer text.
func (c *Client) Complete(ctx context.Context, input CompleteInput) (string, error) {
	req, err := c.newRequest(ctx, input, false)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := sb.String()
	if text == "" {
		return "", errors.New("anthropic returned no text content")
	}
	return text, nil
}

// streamEvent covers the server-sent event payloads we care about:
// content_block_delta (text), message_stop (end), error.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// StreamComplete issues a streaming completion. The returned channel yields
// text fragments in generation order and is closed after a single terminal
// fragment (Done or Err). The underlying connection is released on every exit
// path; cancelling ctx stops the producer at the next fragment boundary.
func (c *Client) StreamComplete(ctx context.Context, input CompleteInput) (<-chan Fragment, error) {
	req, err := c.newRequest(ctx, input, true)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling anthropic: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := apiError(resp)
		resp.Body.Close()
		return nil, err
	}

	ch := make(chan Fragment, 32)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		send := func(f Fragment) bool {
			select {
			case ch <- f:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}

			var event streamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				continue
			}

			switch event.Type {
			case "content_block_delta":
				if event.Delta.Text != "" {
					if !send(Fragment{Text: event.Delta.Text}) {
						return
					}
				}
			case "message_stop":
				send(Fragment{Done: true})
				return
			case "error":
				send(Fragment{Err: fmt.Errorf("anthropic stream error: %s", event.Error.Message)})
				return
			}
		}

		if err := scanner.Err(); err != nil {
			send(Fragment{Err: fmt.Errorf("reading stream: %w", err)})
			return
		}
		// Connection ended without message_stop: surface as an error rather
		// than silently truncating.
		send(Fragment{Err: errors.New("anthropic stream ended unexpectedly")})
	}()

	return ch, nil
}
