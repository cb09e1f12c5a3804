package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aktagon/llmkit/anthropic/types"

	"github.com/docutag/enhancer/apperr"
	"github.com/docutag/enhancer/models"
	"github.com/docutag/enhancer/prompt"
)

func TestNewSelectsProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"anthropic", "Anthropic"},
		{"Anthropic", "Anthropic"},
		{"openai", "OpenAI"},
		{"", "OpenAI"},
		{"something-else", "OpenAI"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			config := DefaultConfig()
			config.Provider = tt.provider
			if got := New(config, nil).Name(); got != tt.want {
				t.Errorf("New(%q).Name() = %q, want %q", tt.provider, got, tt.want)
			}
		})
	}
}

func TestOpenAIEnhance(t *testing.T) {
	var gotReq chatRequest
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"  # Enhanced\n\nBody  \n"}}],"usage":{"total_tokens":42}}`))
	}))
	defer server.Close()

	config := DefaultConfig()
	config.OpenAIAPIKey = "sk-test"
	config.OpenAIBaseURL = server.URL
	p := NewOpenAI(config, nil)

	got, err := p.Enhance(context.Background(), "the prompt")
	if err != nil {
		t.Fatalf("Enhance() error = %v", err)
	}
	if got != "# Enhanced\n\nBody" {
		t.Errorf("Enhance() = %q", got)
	}

	if gotPath != "/chat/completions" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4-turbo-preview" || gotReq.Temperature != 0.7 || gotReq.MaxTokens != 4000 {
		t.Errorf("request settings = %+v", gotReq)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[0].Content != SystemPrompt {
		t.Fatalf("messages = %+v", gotReq.Messages)
	}
	if gotReq.Messages[1].Role != "user" || gotReq.Messages[1].Content != "the prompt" {
		t.Errorf("user message = %+v", gotReq.Messages[1])
	}
}

func TestOpenAIEnhanceErrors(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		status  int
		body    string
		wantMsg string
	}{
		{"missing key", "", http.StatusOK, `{}`, "API key not configured"},
		{"server error", "k", http.StatusInternalServerError, `{"error":"boom"}`, "returned 500"},
		{"no choices", "k", http.StatusOK, `{"choices":[]}`, "no content"},
		{"empty content", "k", http.StatusOK, `{"choices":[{"message":{"content":""}}]}`, "no content"},
		{"bad json", "k", http.StatusOK, `{`, "decoding response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			config := DefaultConfig()
			config.OpenAIAPIKey = tt.apiKey
			config.OpenAIBaseURL = server.URL

			_, err := NewOpenAI(config, nil).Enhance(context.Background(), "p")
			if err == nil {
				t.Fatal("expected error")
			}
			if !apperr.IsExternal(err) {
				t.Errorf("expected external service error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func newTestAnthropic(fn promptFunc) *Anthropic {
	config := DefaultConfig()
	config.AnthropicAPIKey = "ak-test"
	a := NewAnthropic(config, nil)
	a.prompt = fn
	return a
}

func TestAnthropicEnhance(t *testing.T) {
	var gotSystem, gotUser string
	var gotSettings types.RequestSettings
	a := newTestAnthropic(func(system, user string, settings types.RequestSettings) (string, error) {
		gotSystem, gotUser, gotSettings = system, user, settings
		return "\n  enhanced text \n", nil
	})

	got, err := a.Enhance(context.Background(), "the prompt")
	if err != nil {
		t.Fatalf("Enhance() error = %v", err)
	}
	if got != "enhanced text" {
		t.Errorf("Enhance() = %q", got)
	}
	if gotSystem != SystemPrompt || gotUser != "the prompt" {
		t.Errorf("system=%q user=%q", gotSystem, gotUser)
	}
	if gotSettings.Model != "claude-3-sonnet-20240229" || gotSettings.MaxTokens != 4000 {
		t.Errorf("settings = %+v", gotSettings)
	}
}

func TestAnthropicEnhanceErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   promptFunc
	}{
		{"provider error", func(string, string, types.RequestSettings) (string, error) {
			return "", errors.New("overloaded")
		}},
		{"empty text", func(string, string, types.RequestSettings) (string, error) {
			return "   ", nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestAnthropic(tt.fn).Enhance(context.Background(), "p")
			if !apperr.IsExternal(err) {
				t.Errorf("expected external service error, got %v", err)
			}
		})
	}

	t.Run("missing key", func(t *testing.T) {
		a := NewAnthropic(DefaultConfig(), nil)
		a.prompt = func(string, string, types.RequestSettings) (string, error) {
			t.Error("prompt should not be sent without a key")
			return "", nil
		}
		if _, err := a.Enhance(context.Background(), "p"); !apperr.IsExternal(err) {
			t.Errorf("expected external service error, got %v", err)
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		a := newTestAnthropic(func(string, string, types.RequestSettings) (string, error) {
			<-release
			return "late", nil
		})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := a.Enhance(ctx, "p")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

type stubProvider struct {
	output     string
	err        error
	lastPrompt string
}

func (s *stubProvider) Enhance(_ context.Context, p string) (string, error) {
	s.lastPrompt = p
	return s.output, s.err
}

func (s *stubProvider) Name() string { return "stub" }

func TestServiceEnhanceArticle(t *testing.T) {
	params := prompt.Params{
		OriginalTitle:     "Title",
		OriginalContent:   "Content",
		Reference1Title:   "R1",
		Reference1Content: "r1",
		Reference2Title:   "R2",
		Reference2Content: "r2",
	}

	t.Run("accepts long output", func(t *testing.T) {
		stub := &stubProvider{output: strings.Repeat("x", MinEnhancedLength)}
		got, err := NewService(stub, nil).EnhanceArticle(context.Background(), params)
		if err != nil {
			t.Fatalf("EnhanceArticle() error = %v", err)
		}
		if got != stub.output {
			t.Errorf("EnhanceArticle() returned %d chars", len(got))
		}
		if stub.lastPrompt != prompt.BuildEnhancePrompt(params) {
			t.Error("provider did not receive the rendered prompt")
		}
	})

	t.Run("rejects short output", func(t *testing.T) {
		stub := &stubProvider{output: strings.Repeat("x", MinEnhancedLength-1)}
		_, err := NewService(stub, nil).EnhanceArticle(context.Background(), params)
		if !apperr.IsValidation(err) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if err.Error() != "Enhanced content is too short or empty" {
			t.Errorf("error = %q", err.Error())
		}
	})

	t.Run("propagates provider error", func(t *testing.T) {
		stub := &stubProvider{err: apperr.External("llm", "down", errors.New("503"))}
		_, err := NewService(stub, nil).EnhanceArticle(context.Background(), params)
		if !apperr.IsExternal(err) {
			t.Errorf("expected external service error, got %v", err)
		}
	})
}

func TestAddReferences(t *testing.T) {
	got := AddReferences("body", []models.Reference{{Title: "A", URL: "http://a"}})
	want := "body\n\n---\n\n## References\n\nThis article was enhanced using insights from the following top-ranking articles:\n\n1. [A](http://a)\n"
	if got != want {
		t.Errorf("AddReferences() =\n%q\nwant\n%q", got, want)
	}

	two := AddReferences("body", []models.Reference{
		{Title: "A", URL: "http://a"},
		{Title: "B", URL: "http://b"},
	})
	if !strings.HasSuffix(two, "1. [A](http://a)\n2. [B](http://b)\n") {
		t.Errorf("references not numbered in order: %q", two)
	}
}
