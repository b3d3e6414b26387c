package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"chartflow/internal/logging"
)

// GeminiClient implements ContentModel using Google's GenAI SDK.
type GeminiClient struct {
	client          *genai.Client
	model           string
	timeout         time.Duration
	maxOutputTokens int32
	mu              sync.Mutex
	lastRequest     time.Time
}

// DefaultGeminiConfig returns sensible defaults.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:          apiKey,
		Model:           "gemini-2.5-flash",
		Timeout:         2 * time.Minute,
		MaxOutputTokens: 8192,
	}
}

// NewGeminiClient creates a new Gemini client with default config.
func NewGeminiClient(apiKey string) (*GeminiClient, error) {
	return NewGeminiClientWithConfig(DefaultGeminiConfig(apiKey))
}

// NewGeminiClientWithConfig creates a new Gemini client with custom config.
func NewGeminiClientWithConfig(config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	model := strings.TrimSpace(config.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}

	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens <= 0 {
		maxOutputTokens = 8192
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{
		client:          client,
		model:           model,
		timeout:         timeout,
		maxOutputTokens: maxOutputTokens,
	}, nil
}

// Name returns the model identifier.
func (c *GeminiClient) Name() string {
	return c.model
}

// Complete sends a prompt and returns the completion.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	return c.complete(ctx, parts)
}

// CompleteWithArtifact sends a prompt plus an artifact. SVG markup is
// inlined as a text part; raster images go as inline byte parts.
func (c *GeminiClient) CompleteWithArtifact(ctx context.Context, prompt, mimeType string, payload []byte) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if mimeType == mimeSVG {
		parts = append(parts, genai.NewPartFromText(
			"Artifact under review (SVG source):\n```svg\n"+string(payload)+"\n```"))
	} else {
		parts = append(parts, genai.NewPartFromBytes(payload, mimeType))
	}
	return c.complete(ctx, parts)
}

func (c *GeminiClient) complete(ctx context.Context, parts []*genai.Part) (string, error) {
	// Auto-apply timeout if context has no deadline (centralized timeout handling)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.APIDebug("[Gemini] complete: model=%s parts=%d", c.model, len(parts))

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < minRequestGap {
		time.Sleep(minRequestGap - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(defaultSystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.4),
		MaxOutputTokens:   c.maxOutputTokens,
	}

	// Retry loop for transient errors
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * time.Second)
		}

		result, err := c.client.Models.GenerateContent(ctx, c.model, contents, genConfig)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("request failed: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("GenAI call failed: %w", err)
			continue
		}

		response := strings.TrimSpace(result.Text())
		if response == "" {
			return "", fmt.Errorf("no completion returned")
		}

		logging.API("[Gemini] complete: completed in %v response_len=%d", time.Since(startTime), len(response))
		return response, nil
	}

	logging.APIError("[Gemini] complete: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}
