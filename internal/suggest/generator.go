// Package suggest proposes short follow-up questions a visitor can tap.
package suggest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"support-agent/internal/domain"
	"support-agent/internal/logger"
)

const (
	suggestionCount       = 3
	promptCategories      = 5
	fallbackCategories    = 3
	maxKBQuestionRunes    = 79
	suggestionMaxTokens   = 150
	suggestionTemperature = 0.7
	suggestionTopP        = 0.9
)

const suggestionSystemPrompt = "You are an expert at generating helpful, relevant suggestion questions for customer service chatbots. " +
	"Generate exactly 3 short, natural questions that customers would actually ask about the business services. " +
	"Each suggestion must be no more than 6 words."

// Completer produces one chat completion.
type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage, cfg domain.SamplingConfig) (string, error)
}

// Generator produces up to three suggestions for a business.
type Generator struct {
	completer Completer
	model     string
	log       *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Generator)

// WithCompleter enables completion-backed suggestions.
func WithCompleter(c Completer, model string) Option {
	return func(g *Generator) {
		g.completer = c
		g.model = strings.TrimSpace(model)
	}
}

// WithRand fixes the source used to pick and shuffle fallback suggestions.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) {
		g.rng = r
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(g *Generator) {
		g.log = log
	}
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{}
	for _, opt := range opts {
		opt(g)
	}
	g.log = logger.OrNop(g.log)
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return g
}

// Suggest returns between zero and three suggestions. It never fails: every
// error degrades to a deterministic list.
func (g *Generator) Suggest(ctx context.Context, biz *domain.BusinessContext, history []domain.ConversationTurn) []string {
	if biz == nil {
		return Generic()
	}
	if g.completer != nil {
		suggestions, err := g.fromCompletion(ctx, biz, len(history) > 0)
		if err == nil && len(suggestions) >= suggestionCount {
			return suggestions[:suggestionCount]
		}
		if err != nil {
			g.log.Warn("suggestion completion failed", zap.String("business_id", biz.ID), zap.Error(err))
		} else {
			g.log.Debug("too few completion suggestions", zap.String("business_id", biz.ID), zap.Int("parsed", len(suggestions)))
		}
	}
	return g.fromKnowledgeBase(biz)
}

func (g *Generator) fromCompletion(ctx context.Context, biz *domain.BusinessContext, ongoing bool) ([]string, error) {
	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: suggestionSystemPrompt},
		{Role: domain.RoleUser, Content: buildSuggestionPrompt(biz, ongoing)},
	}
	text, err := g.completer.Complete(ctx, messages, domain.SamplingConfig{
		Model:       g.model,
		MaxTokens:   suggestionMaxTokens,
		Temperature: suggestionTemperature,
		TopP:        suggestionTopP,
	})
	if err != nil {
		return nil, fmt.Errorf("suggest: complete: %w", err)
	}
	return ParseSuggestions(text, suggestionCount), nil
}

func buildSuggestionPrompt(biz *domain.BusinessContext, ongoing bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate 3 helpful customer service suggestion questions for a %s business called %q.",
		biz.Business.Type, biz.Business.Name)
	if s := strings.TrimSpace(biz.Business.Specialization); s != "" {
		fmt.Fprintf(&b, " They specialize in %s.", s)
	}
	if cats := topCategories(biz.KnowledgeBase, promptCategories); len(cats) > 0 {
		fmt.Fprintf(&b, " Common customer topics include: %s.", strings.Join(cats, ", "))
	}
	if ongoing {
		b.WriteString(" The customer is already in a conversation, so avoid greetings.")
	}
	b.WriteString("\n\nGenerate 3 short, natural questions that customers would likely ask. ")
	b.WriteString("Make them specific to this type of business. Format each question on a new line starting with \"- \".")
	return b.String()
}

// fromKnowledgeBase mixes the business-type list with one question from each
// of the most common categories. Businesses without knowledge entries get
// the generic triad.
func (g *Generator) fromKnowledgeBase(biz *domain.BusinessContext) []string {
	if len(biz.KnowledgeBase) == 0 {
		return Generic()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	candidates := append([]string(nil), forBusinessType(biz.Business.Type)...)
	for _, category := range topCategories(biz.KnowledgeBase, fallbackCategories) {
		questions := make([]string, 0)
		for _, e := range biz.KnowledgeBase {
			q := strings.TrimSpace(e.Question)
			if strings.TrimSpace(e.Category) == category && q != "" && utf8.RuneCountInString(q) <= maxKBQuestionRunes {
				questions = append(questions, q)
			}
		}
		if len(questions) > 0 {
			candidates = append(candidates, questions[g.rng.IntN(len(questions))])
		}
	}

	unique := dedupe(candidates)
	g.rng.Shuffle(len(unique), func(i, j int) { unique[i], unique[j] = unique[j], unique[i] })
	if len(unique) > suggestionCount {
		unique = unique[:suggestionCount]
	}
	return unique
}

// topCategories orders categories by entry count, most frequent first, with
// ties kept in first-seen order.
func topCategories(entries []domain.KnowledgeEntry, limit int) []string {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, e := range entries {
		c := strings.TrimSpace(e.Category)
		if c == "" {
			continue
		}
		if counts[c] == 0 {
			order = append(order, c)
		}
		counts[c]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > limit {
		order = order[:limit]
	}
	return order
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
