package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])
		assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])
		msgs := req["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": `{"directions":[]}`},
				"finish_reason": "stop",
			}},
		})
	}))
	defer server.Close()

	c, err := NewClient(Config{APIKey: "test-key", Model: "test-model", BaseURL: server.URL})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "sys", "stage scene 1", 200)
	require.NoError(t, err)
	assert.Equal(t, `{"directions":[]}`, out)
}

func TestComplete_ErrorStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"message": "nope", "type": "test_error"},
				})
			}))
			defer server.Close()

			c, err := NewClient(Config{APIKey: "k", BaseURL: server.URL})
			require.NoError(t, err)

			_, err = c.Complete(context.Background(), "", "hi", 10)
			var provErr *Error
			require.True(t, errors.As(err, &provErr), "expected *Error, got %v", err)
			assert.Equal(t, tt.status, provErr.StatusCode)
			assert.Equal(t, tt.retryable, provErr.Retryable())
		})
	}
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}
