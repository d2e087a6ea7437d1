package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Mask replaces redacted text.
const Mask = "***"

// DefaultPIIPatterns catch e-mail addresses and common API key shapes.
var DefaultPIIPatterns = []string{
	`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
	`\bsk-[A-Za-z0-9_-]{16,}\b`,
	`\b(?:ghp|gho|ghs)_[A-Za-z0-9]{20,}\b`,
}

type piiMiddleware struct {
	next     ports.ConversationStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks message text matching any of the patterns before it is stored.
// The in-memory history handed to Save is left untouched.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PII pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.ConversationStore) ports.ConversationStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, workflowID string, h *domain.ConversationHistory) error {
	cloned := h.Clone()
	for i := range cloned.Messages {
		for _, p := range m.patterns {
			cloned.Messages[i].Content = p.ReplaceAllString(cloned.Messages[i].Content, Mask)
		}
	}
	return m.next.Save(ctx, workflowID, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, workflowID string) (*domain.ConversationHistory, error) {
	return m.next.Load(ctx, workflowID)
}

func (m *piiMiddleware) Delete(ctx context.Context, workflowID string) error {
	return m.next.Delete(ctx, workflowID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
