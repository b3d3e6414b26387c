package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenAIClient(serverURL string) *OpenAIClient {
	return NewOpenAIClientWithConfig(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: serverURL,
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	})
}

func openAICompletion(text string) OpenAIResponse {
	var resp OpenAIResponse
	resp.ID = "chatcmpl-test"
	resp.Model = "gpt-4o-mini"
	resp.Choices = make([]struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	}, 1)
	resp.Choices[0].Message.Role = "assistant"
	resp.Choices[0].Message.Content = text
	return resp
}

func TestOpenAIComplete(t *testing.T) {
	var captured OpenAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(openAICompletion("  hello  "))
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL)
	result, err := client.Complete(context.Background(), "draw a chart")
	require.NoError(t, err)
	assert.Equal(t, "hello", result)

	assert.Equal(t, "gpt-4o-mini", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
	require.Len(t, captured.Messages[1].Content, 1)
	assert.Equal(t, "draw a chart", captured.Messages[1].Content[0].Text)
	assert.Equal(t, 8192, captured.MaxTokens)
}

func TestOpenAICompleteWithSVGArtifact(t *testing.T) {
	var captured OpenAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(openAICompletion("ok"))
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL)
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><text>v1</text></svg>`)
	_, err := client.CompleteWithArtifact(context.Background(), "critique this", "image/svg+xml", svg)
	require.NoError(t, err)

	// SVG source travels as an inline text part, not as an image part.
	parts := captured.Messages[1].Content
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[1].Type)
	assert.Contains(t, parts[1].Text, "```svg")
	assert.Contains(t, parts[1].Text, string(svg))
	assert.Nil(t, parts[1].ImageURL)
}

func TestOpenAICompleteWithRasterArtifact(t *testing.T) {
	var captured OpenAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(openAICompletion("ok"))
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL)
	_, err := client.CompleteWithArtifact(context.Background(), "critique this", "image/png", []byte{0x89, 0x50})
	require.NoError(t, err)

	parts := captured.Messages[1].Content
	require.Len(t, parts, 2)
	assert.Equal(t, "image_url", parts[1].Type)
	require.NotNil(t, parts[1].ImageURL)
	assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,"))
}

func TestOpenAIRetryOnRateLimit(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(openAICompletion("recovered"))
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL)
	result, err := client.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, int64(2), calls.Load())
}

func TestOpenAINonRetryableStatus(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "bad request"}}`))
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL)
	_, err := client.Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	// Client errors do not retry.
	assert.Equal(t, int64(1), calls.Load())
}

func TestOpenAIAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openAICompletion("")
		resp.Choices = nil
		resp.Error = &struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		}{Message: "model overloaded", Type: "server_error"}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL)
	_, err := client.Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestOpenAIMissingAPIKey(t *testing.T) {
	client := NewOpenAIClientWithConfig(OpenAIConfig{Model: "gpt-4o-mini", Timeout: time.Second})
	_, err := client.Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not configured")
}

func TestOpenAIEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openAICompletion("")
		resp.Choices = nil
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL)
	_, err := client.Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no completion returned")
}
