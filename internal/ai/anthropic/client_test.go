package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, defaultMaxTokens, req.MaxTokens)
		assert.Equal(t, "You are Claude", req.System)
		require.Len(t, req.Messages, 1)

		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant",
			"content":[{"type":"text","text":"Hi "},{"type":"text","text":"there"}],
			"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":2}}`)
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-model").WithBaseURL(srv.URL)
	assert.Equal(t, "test-model", client.Model())
	resp, err := client.SendMessage(context.Background(), &Request{
		System:   "You are Claude",
		Messages: []Message{{Role: "user", Content: "Hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", resp.Text())
	assert.Equal(t, 2, resp.Usage.OutputTokens)
}

func TestSendMessageErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		overloaded bool
	}{
		{"overloaded", statusOverloaded, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, true},
		{"rate limited", http.StatusTooManyRequests, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`, true},
		{"bad request", http.StatusBadRequest, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`, false},
		{"unparseable overload", statusOverloaded, `upstream busy`, true},
		{"unparseable server error", http.StatusInternalServerError, `oops`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			client := NewClient("k", "m").WithBaseURL(srv.URL)
			_, err := client.SendMessage(context.Background(), &Request{
				Messages: []Message{{Role: "user", Content: "Hello"}},
			})
			require.Error(t, err)
			assert.Equal(t, tt.overloaded, IsOverloaded(err))
			assert.Equal(t, tt.overloaded, IsOverloaded(fmt.Errorf("wrapped: %w", err)))
		})
	}
}
