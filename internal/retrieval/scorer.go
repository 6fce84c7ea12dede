// Package retrieval scores knowledge entries against a query and assembles
// the winners into a length-bounded grounding context.
package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"support-agent/internal/domain"
	"support-agent/internal/logger"
)

const (
	// answerWeight scales the answer signal relative to the question signal.
	answerWeight    = 0.35
	// partialCeiling caps non-exact matches so an exact question always ranks
	// first, even when concept folding gives another question the same tokens.
	partialCeiling  = 1 - 1e-6
	primaryLanguage = "en"
	unknownLanguage = "unknown"
)

// Translator detects the query language and translates it into English.
type Translator interface {
	DetectAndTranslate(ctx context.Context, text string) (domain.TranslationInfo, error)
}

// Scorer ranks knowledge entries by lexical similarity to a query.
type Scorer struct {
	translator Translator
	log        *zap.Logger
}

// NewScorer creates a Scorer. translator may be nil, in which case queries
// are always scored as written.
func NewScorer(translator Translator, log *zap.Logger) *Scorer {
	return &Scorer{translator: translator, log: logger.OrNop(log)}
}

// Score returns at most topK entries scoring at least threshold, ordered by
// score, then priority, then knowledge base order. Entries scoring zero are
// never returned.
func (s *Scorer) Score(ctx context.Context, query string, entries []domain.KnowledgeEntry, topK int, threshold float64) domain.RetrievalResult {
	scored, info := s.scoreAll(ctx, query, entries)
	return Select(scored, info, topK, threshold)
}

// Select applies threshold and topK to already scored entries, so callers
// holding a full Diagnose result need not score or translate again.
func Select(scored []domain.ScoredEntry, info domain.TranslationInfo, topK int, threshold float64) domain.RetrievalResult {
	result := domain.RetrievalResult{Entries: []domain.ScoredEntry{}, Translation: info}
	for _, se := range scored {
		result.MaxScore = math.Max(result.MaxScore, se.Score)
		if se.Score > 0 && se.Score >= threshold {
			result.Entries = append(result.Entries, se)
		}
	}
	sortScored(result.Entries)
	if topK > 0 && len(result.Entries) > topK {
		result.Entries = result.Entries[:topK]
	}
	return result
}

// Diagnose scores every entry without thresholding or truncation, in rank
// order, for the debug surface.
func (s *Scorer) Diagnose(ctx context.Context, query string, entries []domain.KnowledgeEntry) ([]domain.ScoredEntry, domain.TranslationInfo) {
	scored, info := s.scoreAll(ctx, query, entries)
	sortScored(scored)
	return scored, info
}

func (s *Scorer) scoreAll(ctx context.Context, query string, entries []domain.KnowledgeEntry) ([]domain.ScoredEntry, domain.TranslationInfo) {
	if len(entries) == 0 || utf8.RuneCountInString(Normalize(query)) < minQueryRunes {
		return []domain.ScoredEntry{}, untranslated(query)
	}
	info := s.translate(ctx, query)
	normalized := Normalize(info.Translated)
	if utf8.RuneCountInString(normalized) < minQueryRunes {
		return []domain.ScoredEntry{}, info
	}
	q := tokensOf(normalized)

	out := make([]domain.ScoredEntry, len(entries))
	for i, e := range entries {
		out[i] = domain.ScoredEntry{
			Entry:    e,
			Index:    i,
			Score:    entryScore(normalized, q, e),
			Category: e.Category,
		}
	}
	return out, info
}

// entryScore combines question and answer similarity as q + w·a·(1−q), which
// stays in [0,1] and only lets the answer lift the score within the remaining
// headroom. Only an exact normalized question scores 1.
func entryScore(normalizedQuery string, q []string, e domain.KnowledgeEntry) float64 {
	normalizedQuestion := Normalize(e.Question)
	if normalizedQuestion != "" && normalizedQuestion == normalizedQuery {
		return 1
	}
	qs := cosine(q, tokensOf(normalizedQuestion))
	as := cosine(q, Tokens(e.Answer))
	return math.Min(qs+answerWeight*as*(1-qs), partialCeiling)
}

// cosine is the cosine similarity of two binary token vectors.
func cosine(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[t] = struct{}{}
	}
	shared := 0
	for _, t := range a {
		if _, ok := set[t]; ok {
			shared++
		}
	}
	return float64(shared) / math.Sqrt(float64(len(a))*float64(len(b)))
}

func sortScored(entries []domain.ScoredEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].Entry.Priority != entries[j].Entry.Priority {
			return entries[i].Entry.Priority > entries[j].Entry.Priority
		}
		return entries[i].Index < entries[j].Index
	})
}

func (s *Scorer) translate(ctx context.Context, query string) domain.TranslationInfo {
	info := untranslated(query)
	query = info.Original
	if s.translator == nil || !looksForeign(query) {
		return info
	}

	got, err := s.translator.DetectAndTranslate(ctx, query)
	if err != nil {
		s.log.Warn("query translation failed", zap.Error(err), zap.String("query", logger.Truncate(query, 80)))
		info.SourceLanguage = unknownLanguage
		return info
	}
	if !got.WasTranslated || strings.TrimSpace(got.Translated) == "" {
		if got.SourceLanguage != "" {
			info.SourceLanguage = got.SourceLanguage
		}
		return info
	}
	info.WasTranslated = true
	info.SourceLanguage = got.SourceLanguage
	info.Translated = strings.TrimSpace(got.Translated)
	s.log.Debug("query translated",
		zap.String("source_language", info.SourceLanguage),
		zap.String("original", logger.Truncate(info.Original, 80)),
		zap.String("translated", logger.Truncate(info.Translated, 80)))
	return info
}

func untranslated(query string) domain.TranslationInfo {
	query = strings.TrimSpace(query)
	return domain.TranslationInfo{
		SourceLanguage: primaryLanguage,
		Original:       query,
		Translated:     query,
	}
}
