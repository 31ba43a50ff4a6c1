package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("unknown provider is rejected", func(t *testing.T) {
		_, err := NewClient("anthropic", Config{})
		assert.Error(t, err)
	})

	t.Run("ollama needs no api key", func(t *testing.T) {
		client, err := NewClient("ollama", Config{})
		require.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("openai requires an api key", func(t *testing.T) {
		_, err := NewClient("openai", Config{})
		assert.Error(t, err)

		client, err := NewClient("openai", Config{APIKey: "sk-test"})
		require.NoError(t, err)
		assert.NotNil(t, client)
	})
}

func TestOllamaGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("sends a non-streaming request and returns the completion", func(t *testing.T) {
		var got ollamaRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/generate", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			json.NewEncoder(w).Encode(ollamaResponse{Response: "hello there", Done: true})
		}))
		defer server.Close()

		client, err := NewClient("ollama", Config{Model: "phi3", BaseURL: server.URL})
		require.NoError(t, err)

		response, err := client.Generate(ctx, "say hello", GenerateOptions{Temperature: 0.3, MaxTokens: 50})
		require.NoError(t, err)
		assert.Equal(t, "hello there", response)
		assert.Equal(t, "phi3", got.Model)
		assert.False(t, got.Stream)
		assert.Equal(t, 50, got.Options.NumPredict)
		assert.InDelta(t, 0.3, got.Options.Temperature, 0.001)
	})

	t.Run("surfaces API errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(ollamaResponse{Error: "model not found"})
		}))
		defer server.Close()

		client, err := NewClient("ollama", Config{BaseURL: server.URL})
		require.NoError(t, err)

		_, err = client.Generate(ctx, "hi", GenerateOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model not found")
	})

	t.Run("empty prompt is rejected before any request", func(t *testing.T) {
		client, err := NewClient("ollama", Config{BaseURL: "http://localhost:1"})
		require.NoError(t, err)

		_, err = client.Generate(ctx, "", GenerateOptions{})
		assert.ErrorIs(t, err, ErrEmptyPrompt)
	})

	t.Run("empty completion is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(ollamaResponse{Response: "", Done: true})
		}))
		defer server.Close()

		client, err := NewClient("ollama", Config{BaseURL: server.URL})
		require.NoError(t, err)

		_, err = client.Generate(ctx, "hi", GenerateOptions{})
		assert.Error(t, err)
	})
}

func TestOpenAIGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("sends chat messages with auth and returns the first choice", func(t *testing.T) {
		var got openAIRequest
		var auth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/chat/completions", r.URL.Path)
			auth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

			w.Write([]byte(`{"id": "x", "choices": [{"index": 0, "message": {"role": "assistant", "content": "hi from the model"}, "finish_reason": "stop"}]}`))
		}))
		defer server.Close()

		client, err := NewClient("openai", Config{APIKey: "sk-test", BaseURL: server.URL})
		require.NoError(t, err)

		response, err := client.Generate(ctx, "say hi", GenerateOptions{System: "be brief"})
		require.NoError(t, err)
		assert.Equal(t, "hi from the model", response)
		assert.Equal(t, "Bearer sk-test", auth)

		require.Len(t, got.Messages, 2)
		assert.Equal(t, "system", got.Messages[0].Role)
		assert.Equal(t, "be brief", got.Messages[0].Content)
		assert.Equal(t, "user", got.Messages[1].Role)
	})

	t.Run("surfaces API errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": {"message": "invalid key", "type": "auth"}}`))
		}))
		defer server.Close()

		client, err := NewClient("openai", Config{APIKey: "sk-bad", BaseURL: server.URL})
		require.NoError(t, err)

		_, err = client.Generate(ctx, "hi", GenerateOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid key")
	})

	t.Run("empty choices is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id": "x", "choices": []}`))
		}))
		defer server.Close()

		client, err := NewClient("openai", Config{APIKey: "sk-test", BaseURL: server.URL})
		require.NoError(t, err)

		_, err = client.Generate(ctx, "hi", GenerateOptions{})
		assert.Error(t, err)
	})
}
