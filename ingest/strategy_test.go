package ingest

import (
	"testing"
	"time"
)

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry(
		NewBeyondChats("", nil),
		NewFeed(nil),
		NewGeneric(false, nil),
	)

	tests := []struct {
		url  string
		want string
	}{
		{"https://beyondchats.com/blogs", "beyondchats"},
		{"https://beyondchats.com/blogs/page/4", "beyondchats"},
		{"https://example.com/feed", "feed"},
		{"https://example.com/blog/rss.xml", "feed"},
		{"https://example.com/atom/", "feed"},
		{"https://example.com/posts/hello", "generic"},
		{"https://example.com/feedback", "generic"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			s, err := registry.Resolve(tt.url)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if s.Name() != tt.want {
				t.Errorf("Resolve(%q) = %s, want %s", tt.url, s.Name(), tt.want)
			}
		})
	}

	t.Run("no catch-all", func(t *testing.T) {
		if _, err := NewRegistry(NewFeed(nil)).Resolve("https://example.com/page"); err == nil {
			t.Error("expected error without a matching strategy")
		}
	})
}

func TestParseLeadingInt(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"12", 12, true},
		{"  7 ", 7, true},
		{"3 of 9", 3, true},
		{"Next »", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseLeadingInt(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("parseLeadingInt(%q) = %d, %v, want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want *time.Time
	}{
		{"2023-01-15", &want},
		{"2023-01-15T00:00:00Z", &want},
		{"January 15, 2023", &want},
		{"Jan 15, 2023", &want},
		{"sometime last week", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseDate(tt.in)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("parseDate(%q) = %v, want nil", tt.in, got)
			case tt.want != nil && (got == nil || !got.Equal(*tt.want)):
				t.Errorf("parseDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	got := normalizeText("  First   line \n\n\n\t second\tline  \n   ")
	if got != "First line\n\nsecond line" {
		t.Errorf("normalizeText() = %q", got)
	}
}
