package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/docutag/enhancer/apperr"
	"github.com/docutag/enhancer/models"
	"github.com/docutag/enhancer/prompt"
)

// MinEnhancedLength is the shortest accepted model output, in characters
const MinEnhancedLength = 100

// Service builds prompts and validates provider output
type Service struct {
	provider Provider
	logger   *slog.Logger
}

// NewService wraps a provider
func NewService(provider Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: provider, logger: logger}
}

// ProviderName returns the name of the wrapped provider
func (s *Service) ProviderName() string { return s.provider.Name() }

// EnhanceArticle renders the enhancement prompt for p and returns the model's markdown
func (s *Service) EnhanceArticle(ctx context.Context, p prompt.Params) (string, error) {
	s.logger.Info("enhancing article", "title", p.OriginalTitle)

	enhanced, err := s.provider.Enhance(ctx, prompt.BuildEnhancePrompt(p))
	if err != nil {
		s.logger.Error("article enhancement failed", "error", err)
		return "", err
	}

	if utf8.RuneCountInString(enhanced) < MinEnhancedLength {
		s.logger.Error("article enhancement failed", "characters", len(enhanced))
		return "", apperr.Validation("llm", "Enhanced content is too short or empty")
	}

	s.logger.Info("article enhanced", "characters", len(enhanced))
	return enhanced, nil
}

// AddReferences appends a numbered markdown references section to content
func AddReferences(content string, refs []models.Reference) string {
	lines := make([]string, len(refs))
	for i, ref := range refs {
		lines[i] = fmt.Sprintf("%d. [%s](%s)", i+1, ref.Title, ref.URL)
	}

	return content + "\n\n---\n\n## References\n\n" +
		"This article was enhanced using insights from the following top-ranking articles:\n\n" +
		strings.Join(lines, "\n") + "\n"
}
