package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/valis-ai/valis/internal/config"
	"github.com/valis-ai/valis/internal/pkg/apperr"
)

// LLMClient talks to an OpenAI-compatible completion API.
type LLMClient struct {
	BaseURL    string
	APIKey     string
	Model      string
	ImageModel string
	MaxTokens  int
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func NewLLMClient(cfg *config.Config, log *zap.Logger) *LLMClient {
	timeout := time.Duration(cfg.LLM.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLMClient{
		BaseURL:    strings.TrimRight(cfg.LLM.BaseURL, "/"),
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		ImageModel: cfg.LLM.ImageModel,
		MaxTokens:  cfg.LLM.MaxTokens,
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     log,
	}
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionParams struct {
	MaxTokens   int
	Temperature float64
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Complete returns the first choice of a chat completion.
func (c *LLMClient) Complete(ctx context.Context, messages []Message, p CompletionParams) (string, error) {
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.MaxTokens
	}
	req := chatRequest{
		Model:       c.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: p.Temperature,
	}

	var resp chatResponse
	if err := c.post(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return "", apperr.Collaborator("llm.complete", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.Collaborator("llm.complete", errors.New("no choices in response"))
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateImage returns the URL of one generated image.
func (c *LLMClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	req := imageRequest{Model: c.ImageModel, Prompt: prompt, N: 1, Size: "1024x1024"}

	var resp imageResponse
	if err := c.post(ctx, "/v1/images/generations", req, &resp); err != nil {
		return "", apperr.Collaborator("llm.image", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", apperr.Collaborator("llm.image", errors.New("no image in response"))
	}
	return resp.Data[0].URL, nil
}

func (c *LLMClient) post(ctx context.Context, path string, in, out any) error {
	body, err := sonic.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("do request: %w: %w", apperr.ErrTimeout, err)
		}
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.Logger.Error("llm request failed",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", string(raw)))
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
