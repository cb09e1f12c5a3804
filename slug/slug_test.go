package slug

import (
	"testing"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "basic ascii",
			input:    "Hello World",
			expected: "hello-world",
		},
		{
			name:     "with punctuation",
			input:    "Hello, World!",
			expected: "hello-world",
		},
		{
			name:     "with multiple spaces",
			input:    "Hello   World   Test",
			expected: "hello-world-test",
		},
		{
			name:     "with unicode characters",
			input:    "Café München",
			expected: "cafe-munchen",
		},
		{
			name:     "with special characters",
			input:    "Hello@#$%World",
			expected: "helloworld",
		},
		{
			name:     "with leading/trailing spaces",
			input:    "  Hello World  ",
			expected: "hello-world",
		},
		{
			name:     "with hyphens",
			input:    "Hello-World-Test",
			expected: "hello-world-test",
		},
		{
			name:     "with underscores",
			input:    "Hello_World_Test",
			expected: "hello-world-test",
		},
		{
			name:     "very long string",
			input:    "This is a very long title that should be truncated to one hundred characters maximum for SEO purposes and URL readability",
			expected: "this-is-a-very-long-title-that-should-be-truncated-to-one-hundred-characters-maximum-for-seo-purpose",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "only special characters",
			input:    "@#$%^&*()",
			expected: "",
		},
		{
			name:     "cyrillic characters",
			input:    "Привет Мир",
			expected: "", // Cyrillic chars are removed, not transliterated
		},
		{
			name:     "blog title with numbers",
			input:    "10 Ways AI Chatbots Cut Support Costs",
			expected: "10-ways-ai-chatbots-cut-support-costs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Generate(tt.input)
			if result != tt.expected {
				t.Errorf("Generate(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFromURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{
			name:     "blog path with trailing slash",
			url:      "https://beyondchats.com/blogs/chatbots-for-support/",
			expected: "chatbots-for-support",
		},
		{
			name:     "file extension removed",
			url:      "https://example.com/posts/hello.html",
			expected: "hello",
		},
		{
			name:     "root path uses host",
			url:      "https://example.com/",
			expected: "examplecom",
		},
		{
			name:     "unparseable url",
			url:      "::bad",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FromURL(tt.url)
			if result != tt.expected {
				t.Errorf("FromURL(%q) = %q, want %q", tt.url, result, tt.expected)
			}
		})
	}
}

func TestForArticle(t *testing.T) {
	tests := []struct {
		name      string
		title     string
		sourceURL string
		id        string
		expected  string
	}{
		{
			name:     "title with short id",
			title:    "How Chatbots Help Support Teams",
			id:       "3f2a9c1e-1234-4abc-9def-000000000000",
			expected: "how-chatbots-help-support-teams-3f2a9c1e",
		},
		{
			name:      "falls back to url",
			title:     "",
			sourceURL: "https://example.com/blog/my-post",
			id:        "abc",
			expected:  "my-post-abc",
		},
		{
			name:     "nothing usable",
			title:    "!!!",
			expected: "article",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ForArticle(tt.title, tt.sourceURL, tt.id)
			if result != tt.expected {
				t.Errorf("ForArticle(%q, %q, %q) = %q, want %q", tt.title, tt.sourceURL, tt.id, result, tt.expected)
			}
		})
	}
}

func TestSlugUniqueness(t *testing.T) {
	// Test that similar inputs produce different slugs when needed
	inputs := []string{
		"Chatbots in Retail",
		"Chatbots in Retail 2024",
		"Chatbots in Retail, Part 2",
	}

	slugs := make(map[string]bool)
	for _, input := range inputs {
		slug := Generate(input)
		if slugs[slug] {
			t.Errorf("Duplicate slug generated: %q for input %q", slug, input)
		}
		slugs[slug] = true
	}
}

func TestSlugLength(t *testing.T) {
	// Test that slugs are never longer than 100 characters
	longInput := "This is an extremely long title that goes on and on and should definitely be truncated because it exceeds the maximum allowed length for a URL slug which is one hundred characters"

	result := Generate(longInput)
	if len(result) > 100 {
		t.Errorf("Slug length %d exceeds maximum of 100 characters", len(result))
	}
}
