package prompt

import (
	"strings"
	"testing"
)

func TestBuildEnhancePromptLayout(t *testing.T) {
	got := BuildEnhancePrompt(Params{
		OriginalTitle:     "Why Chatbots Matter",
		OriginalContent:   "Original body.",
		Reference1Title:   "Ref One",
		Reference1Content: "First reference body.",
		Reference2Title:   "Ref Two",
		Reference2Content: "Second reference body.",
	})

	wantInOrder := []string{
		"You are an expert content editor and SEO specialist.",
		"## ORIGINAL ARTICLE TO ENHANCE\n\n**Title:** Why Chatbots Matter\n\n**Content:**\nOriginal body.\n\n---",
		"## TOP-RANKING REFERENCE ARTICLES\n\n### Reference Article 1: \"Ref One\"\nFirst reference body.\n\n### Reference Article 2: \"Ref Two\"\nSecond reference body.\n\n---",
		"## YOUR TASK",
		"### 1. STRUCTURE & FORMATTING",
		"### 2. CONTENT DEPTH",
		"### 3. TONE & STYLE",
		"### 4. PRESERVE ORIGINAL INTENT",
		"### 5. SEO OPTIMIZATION",
		"## OUTPUT REQUIREMENTS",
	}

	pos := 0
	for _, want := range wantInOrder {
		idx := strings.Index(got[pos:], want)
		if idx < 0 {
			t.Fatalf("prompt missing (or out of order) %q", want)
		}
		pos += idx + len(want)
	}

	if !strings.HasSuffix(got, "## ENHANCED ARTICLE:") {
		t.Errorf("prompt should end with the enhanced article marker, ends with %q", got[len(got)-40:])
	}
}

func TestBuildEnhancePromptDeterministic(t *testing.T) {
	p := Params{OriginalTitle: "T", OriginalContent: "C", Reference1Title: "A", Reference1Content: "a", Reference2Title: "B", Reference2Content: "b"}
	if BuildEnhancePrompt(p) != BuildEnhancePrompt(p) {
		t.Error("same params should render the same prompt")
	}
}

func TestBuildEnhancePromptTruncatesReferences(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "over limit",
			content: strings.Repeat("a", 3500),
			want:    strings.Repeat("a", 3000) + "...",
		},
		{
			name:    "exactly at limit",
			content: strings.Repeat("b", 3000),
			want:    strings.Repeat("b", 3000),
		},
		{
			name:    "short",
			content: "short reference",
			want:    "short reference",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildEnhancePrompt(Params{
				OriginalTitle:     "T",
				OriginalContent:   "C",
				Reference1Title:   "R1",
				Reference1Content: tt.content,
				Reference2Title:   "R2",
				Reference2Content: "other",
			})

			block := "### Reference Article 1: \"R1\"\n" + tt.want + "\n\n### Reference Article 2"
			if !strings.Contains(got, block) {
				t.Errorf("reference 1 not rendered as expected (len %d)", len(tt.content))
			}
		})
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"héllo wörld", 5, "héllo..."},
		{"日本語テキスト", 3, "日本語..."},
		{"日本語", 3, "日本語"},
		{"", 3, ""},
	}

	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
