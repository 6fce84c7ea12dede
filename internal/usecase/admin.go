package usecase

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"support-agent/internal/domain"
	"support-agent/internal/kbcache"
	"support-agent/internal/retrieval"
	"support-agent/internal/suggest"
)

const genericGreeting = "Hi! How can I help you today?"

// Stats summarizes process state for the debug and admin surfaces.
type Stats struct {
	ActiveSessions   int    `json:"activeSessions"`
	CachedBusinesses int    `json:"cachedBusinesses"`
	CompletionReady  bool   `json:"completionAvailable"`
	Model            string `json:"model"`
	MaxTokens        int    `json:"maxTokens"`
}

func (s *ChatService) Stats() Stats {
	return Stats{
		ActiveSessions:   s.sessions.Len(),
		CachedBusinesses: s.cache.Len(),
		CompletionReady:  s.completer != nil,
		Model:            s.settings.Sampling.Model,
		MaxTokens:        s.settings.Sampling.MaxTokens,
	}
}

// ClearBusiness drops one business from the knowledge cache.
func (s *ChatService) ClearBusiness(businessID string) error {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return newError(ErrorInvalidInput, "missing_business_id", nil)
	}
	s.cache.Clear(businessID)
	return nil
}

// ClearAll drops every cached business and every session.
func (s *ChatService) ClearAll() {
	s.cache.ClearAll()
	s.sessions.ClearAll()
	s.log.Info("all caches cleared")
}

// Greeting is what a visitor sees before sending a first message.
type Greeting struct {
	InitialMessage string   `json:"initialMessage"`
	BusinessName   string   `json:"businessName,omitempty"`
	BusinessLogo   string   `json:"businessLogo,omitempty"`
	Suggestions    []string `json:"suggestions"`
}

// Greeting returns the business's opening message and suggestions. Unknown
// or empty business ids get a generic greeting.
func (s *ChatService) Greeting(ctx context.Context, businessID string) Greeting {
	biz, err := s.lookup(ctx, businessID)
	if err != nil {
		return Greeting{InitialMessage: genericGreeting, Suggestions: suggest.Generic()}
	}
	return Greeting{
		InitialMessage: biz.InitialMessage,
		BusinessName:   biz.Business.Name,
		BusinessLogo:   biz.Business.Logo,
		Suggestions:    s.suggester.Suggest(ctx, biz, nil),
	}
}

// BusinessInfo is the public view of a business configuration.
type BusinessInfo struct {
	ID             string                  `json:"id"`
	Business       domain.BusinessIdentity `json:"business"`
	Contact        domain.ContactInfo      `json:"contact"`
	InitialMessage string                  `json:"initialMessage"`
	EntryCount     int                     `json:"knowledgeBaseEntries"`
	Categories     []string                `json:"categories"`
}

func (s *ChatService) BusinessInfo(ctx context.Context, businessID string) (BusinessInfo, error) {
	biz, err := s.lookup(ctx, businessID)
	if err != nil {
		return BusinessInfo{}, err
	}
	return BusinessInfo{
		ID:             biz.ID,
		Business:       biz.Business,
		Contact:        biz.Contact,
		InitialMessage: biz.InitialMessage,
		EntryCount:     len(biz.KnowledgeBase),
		Categories:     biz.Categories(),
	}, nil
}

// Diagnosis exposes raw retrieval scores for one query.
type Diagnosis struct {
	BusinessID  string                 `json:"businessId"`
	Query       string                 `json:"query"`
	Scores      []domain.ScoredEntry   `json:"scores"`
	Selected    domain.RetrievalResult `json:"selected"`
	Context     string                 `json:"context,omitempty"`
	TopK        int                    `json:"topK"`
	Threshold   float64                `json:"threshold"`
	Translation domain.TranslationInfo `json:"translation"`
}

func (s *ChatService) Diagnose(ctx context.Context, businessID, query string) (Diagnosis, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Diagnosis{}, newError(ErrorInvalidInput, "empty_query", nil)
	}
	biz, err := s.lookup(ctx, businessID)
	if err != nil {
		return Diagnosis{}, err
	}

	scores, info := s.retriever.Diagnose(ctx, query, biz.KnowledgeBase)
	selected := retrieval.Select(scores, info, s.settings.TopK, s.settings.SimilarityThreshold)
	d := Diagnosis{
		BusinessID:  biz.ID,
		Query:       query,
		Scores:      scores,
		Selected:    selected,
		TopK:        s.settings.TopK,
		Threshold:   s.settings.SimilarityThreshold,
		Translation: info,
	}
	if block := retrieval.Assemble(selected.Entries, s.settings.MaxContextLength, selected.Translation, biz.Contact); block != nil {
		d.Context = block.Text
	}
	s.log.Debug("retrieval diagnosed",
		zap.String("business_id", biz.ID),
		zap.Int("entries", len(scores)),
		zap.Float64("max_score", selected.MaxScore))
	return d, nil
}

func (s *ChatService) lookup(ctx context.Context, businessID string) (*domain.BusinessContext, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, newError(ErrorInvalidInput, "missing_business_id", nil)
	}
	biz, err := s.cache.Get(ctx, businessID)
	if err != nil {
		if errors.Is(err, kbcache.ErrNotFound) {
			return nil, newError(ErrorNotFound, "business_not_found", err)
		}
		return nil, newError(ErrorInternal, "business_load_error", err)
	}
	return biz, nil
}
