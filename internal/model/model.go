// Package model provides the ContentModel capability interface and its
// backing provider implementations (Gemini, OpenAI, Anthropic).
package model

import (
	"context"
	"time"
)

// ContentModel defines the minimal interface workflow stages use to
// call a generative model.
type ContentModel interface {
	// Complete sends a text prompt and returns the completion.
	Complete(ctx context.Context, prompt string) (string, error)
	// CompleteWithArtifact sends a prompt together with a previously
	// generated artifact so the model can inspect it. SVG payloads are
	// passed as inline markup; raster payloads as base64 image parts.
	CompleteWithArtifact(ctx context.Context, prompt, mimeType string, payload []byte) (string, error)
	// Name returns the model identifier, for logging and attribution.
	Name() string
}

// Provider represents an LLM provider.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// SVG source is textual; providers inline it rather than attaching an
// image part, which not all vision endpoints accept for svg.
const mimeSVG = "image/svg+xml"

// minRequestGap is the minimum spacing between consecutive requests on
// one client.
const minRequestGap = 100 * time.Millisecond

// maxRetries bounds the transport-level retry loop in each client.
const maxRetries = 3

const defaultSystemPrompt = "You are a data visualization assistant. Ground every chart only in the dataset context provided. Follow the requested output format exactly."
