package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds a single collaborator call.
	DefaultTimeout = 120 * time.Second

	maxErrorBody = 512
)

// Config configures Client.
type Config struct {
	BaseURL           string // e.g. https://api.groq.com/openai/v1
	Model             string
	APIKey            string // empty sends no Authorization header
	Temperature       float64
	MaxTokens         int
	Timeout           time.Duration // per call; 0 = DefaultTimeout
	RequestsPerMinute int           // 0 = unlimited
	HTTPClient        *http.Client
	Logger            *zap.SugaredLogger
}

// Client calls an OpenAI-compatible chat completions endpoint.
// Calls are never retried; a failed call is the caller's per-file failure.
type Client struct {
	config     Config
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.SugaredLogger
}

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("collaborator returned status %d: %s", e.StatusCode, e.Body)
}

// NewClient creates a client. It does no I/O.
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	var limiter *rate.Limiter
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1)
	}

	return &Client{
		config:     config,
		endpoint:   strings.TrimRight(config.BaseURL, "/") + "/chat/completions",
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate sends the prompt and returns the first choice's content.
func (c *Client) Generate(ctx context.Context, p Prompt) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", errors.Wrap(err, "rate limit wait")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	messages := make([]chatMessage, 0, 2)
	if p.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: p.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: p.User})

	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := string(respBody)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return "", &StatusError{StatusCode: resp.StatusCode, Body: text}
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal response")
	}
	if len(chat.Choices) == 0 {
		return "", errors.New("no response choices from collaborator")
	}

	c.logger.Debugw("collaborator response",
		"purpose", p.Purpose,
		"model", c.config.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", chat.Usage.PromptTokens,
		"completion_tokens", chat.Usage.CompletionTokens,
		"finish_reason", chat.Choices[0].FinishReason,
	)

	return chat.Choices[0].Message.Content, nil
}
