package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(url string) Config {
	return Config{APIKey: "test-key", BaseURL: url, Model: "test-model", TimeoutSeconds: 5}
}

func TestCompleteJSONReturnsContentAndUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("wrong auth header: %q", got)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"name\":\"Eve\"}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	result, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.Content != `{"name":"Eve"}` {
		t.Fatalf("wrong content: %q", result.Content)
	}
	if result.Usage.TotalTokens != 15 {
		t.Fatalf("wrong usage: %+v", result.Usage)
	}
}

func TestCompleteJSONRetriesOnServerError(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{}"}}]}`)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL),
		WithRetryMaxAttempts(3),
		WithSleeper(func(time.Duration) {}))
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestCompleteJSONDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL),
		WithRetryMaxAttempts(3),
		WithSleeper(func(time.Duration) {}))
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("401 must not be retried, got %d calls", calls.Load())
	}
}

func TestCompleteJSONRequiresPrompts(t *testing.T) {
	client := NewClient(Config{APIKey: "k", Model: "m"})
	if _, err := client.CompleteJSON(context.Background(), "", "user"); err == nil {
		t.Fatal("expected error for empty system prompt")
	}
	if _, err := client.CompleteJSON(context.Background(), "system", ""); err == nil {
		t.Fatal("expected error for empty user prompt")
	}
}

func sseBody(fragments []string, usage string) string {
	var b strings.Builder
	for _, fragment := range fragments {
		fmt.Fprintf(&b, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", fragment)
	}
	if usage != "" {
		fmt.Fprintf(&b, "data: {\"choices\":[],\"usage\":%s}\n\n", usage)
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func TestStreamJSONDeliversFragmentsInOrder(t *testing.T) {
	fragments := []string{"{\"name\":", "\"Eve\",", "\"personality\":\"curious\"}"}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(fragments, `{"prompt_tokens":7,"completion_tokens":9,"total_tokens":16}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	var got []string
	result, err := client.StreamJSON(context.Background(), "system", "user", func(fragment string) {
		got = append(got, fragment)
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(got) != len(fragments) {
		t.Fatalf("expected %d fragments, got %d", len(fragments), len(got))
	}
	for i := range fragments {
		if got[i] != fragments[i] {
			t.Fatalf("fragment %d: got %q want %q", i, got[i], fragments[i])
		}
	}
	if result.Content != strings.Join(fragments, "") {
		t.Fatalf("wrong concatenated content: %q", result.Content)
	}
	if result.Usage.TotalTokens != 16 {
		t.Fatalf("wrong usage: %+v", result.Usage)
	}
}

func TestStreamJSONRetriesBeforeFirstFragment(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "try later", http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody([]string{"{}"}, ""))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL),
		WithRetryMaxAttempts(3),
		WithSleeper(func(time.Duration) {}))
	result, err := client.StreamJSON(context.Background(), "system", "user", nil)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if result.Content != "{}" {
		t.Fatalf("wrong content: %q", result.Content)
	}
}

func TestStreamJSONSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"error\":{\"message\":\"model melted\"}}\n\n")
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), WithSleeper(func(time.Duration) {}))
	if _, err := client.StreamJSON(context.Background(), "system", "user", nil); err == nil || !strings.Contains(err.Error(), "model melted") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestDecodeModelJSON(t *testing.T) {
	type card struct {
		Name string `json:"name"`
	}
	cases := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{name: "clean", payload: `{"name":"Eve"}`, want: "Eve"},
		{name: "fenced", payload: "```json\n{\"name\":\"Eve\"}\n```", want: "Eve"},
		{name: "bare fence", payload: "```\n{\"name\":\"Eve\"}\n```", want: "Eve"},
		{name: "prose wrapped", payload: `Here is the card: {"name":"Eve"} hope it helps`, want: "Eve"},
		{name: "empty", payload: "   ", wantErr: true},
		{name: "no json", payload: "I cannot produce that", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var parsed card
			err := DecodeModelJSON(tc.payload, &parsed)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if parsed.Name != tc.want {
				t.Fatalf("got %q want %q", parsed.Name, tc.want)
			}
		})
	}
}
