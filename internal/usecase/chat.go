// Package usecase runs the chat pipeline: history, retrieval, reply and
// suggestions.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"support-agent/internal/domain"
	"support-agent/internal/logger"
	"support-agent/internal/retrieval"
	"support-agent/internal/session"
	"support-agent/internal/suggest"
)

const (
	defaultMaxMessageLength   = 1000
	defaultHistoryPromptTurns = 6
	defaultCompletionTimeout  = 15 * time.Second
	logMessageRunes           = 80
)

// Reply texts.
const (
	unavailableReply      = "I apologize, but I'm currently unable to provide a response. Could you please try again?"
	technicalIssuesReply  = "I'm currently experiencing technical issues. Please try again shortly."
	emptyCompletionReply  = "I'm sorry, I couldn't understand that. Could you clarify?"
	calculationErrorReply = "I couldn't process the calculation. Please ensure the format is correct."
	pipelineFailureReply  = "Sorry, something went wrong. Please try again."
)

// Reply paths reported in Debug.Path.
const (
	PathMath       = "math"
	PathCompletion = "completion"
	PathFallback   = "fallback"
	PathFailure    = "failure"
)

type KnowledgeCache interface {
	Get(ctx context.Context, businessID string) (*domain.BusinessContext, error)
	Clear(businessID string)
	ClearAll()
	Len() int
}

type Retriever interface {
	Score(ctx context.Context, query string, entries []domain.KnowledgeEntry, topK int, threshold float64) domain.RetrievalResult
	Diagnose(ctx context.Context, query string, entries []domain.KnowledgeEntry) ([]domain.ScoredEntry, domain.TranslationInfo)
}

type SessionStore interface {
	Append(sessionKey string, turn domain.ConversationTurn)
	Get(sessionKey string) []domain.ConversationTurn
	ClearAll()
	Len() int
}

type Suggester interface {
	Suggest(ctx context.Context, biz *domain.BusinessContext, history []domain.ConversationTurn) []string
}

type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage, cfg domain.SamplingConfig) (string, error)
}

// Settings tunes retrieval, history and completion.
type Settings struct {
	TopK                int
	SimilarityThreshold float64
	MaxContextLength    int
	HistoryPromptTurns  int
	MaxMessageLength    int
	CompletionTimeout   time.Duration
	Sampling            domain.SamplingConfig
}

type ChatService struct {
	cache     KnowledgeCache
	retriever Retriever
	sessions  SessionStore
	suggester Suggester
	completer Completer
	settings  Settings
	log       *zap.Logger
}

type ChatInput struct {
	Message    string
	BusinessID string
	SessionID  string
}

// Debug records how a reply was produced.
type Debug struct {
	ContextFound   int     `json:"contextFound"`
	MaxScore       float64 `json:"maxScore"`
	HasAI          bool    `json:"hasAI"`
	WasTranslated  bool    `json:"wasTranslated"`
	SourceLanguage string  `json:"sourceLanguage"`
	Path           string  `json:"path"`
}

type ChatOutput struct {
	Response          string
	Suggestions       []string
	IsNewConversation bool
	InitialMessage    string
	BusinessID        string
	SessionID         string
	Debug             Debug
	// Detail carries the internal failure for development-mode callers.
	Detail string
}

// NewChatService wires the pipeline. completer may be nil, in which case
// every non-arithmetic message gets the fixed unavailable reply.
func NewChatService(cache KnowledgeCache, retriever Retriever, sessions SessionStore, suggester Suggester, completer Completer, settings Settings, log *zap.Logger) (*ChatService, error) {
	if cache == nil {
		return nil, errors.New("usecase: knowledge cache must not be nil")
	}
	if retriever == nil {
		return nil, errors.New("usecase: retriever must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if suggester == nil {
		return nil, errors.New("usecase: suggester must not be nil")
	}
	if completer != nil && strings.TrimSpace(settings.Sampling.Model) == "" {
		return nil, errors.New("usecase: completion model must not be empty")
	}
	if settings.MaxMessageLength <= 0 {
		settings.MaxMessageLength = defaultMaxMessageLength
	}
	if settings.HistoryPromptTurns <= 0 {
		settings.HistoryPromptTurns = defaultHistoryPromptTurns
	}
	if settings.CompletionTimeout <= 0 {
		settings.CompletionTimeout = defaultCompletionTimeout
	}
	return &ChatService{
		cache:     cache,
		retriever: retriever,
		sessions:  sessions,
		suggester: suggester,
		completer: completer,
		settings:  settings,
		log:       logger.OrNop(log),
	}, nil
}

// Respond answers one chat message. Validation and unknown businesses are
// returned as *Error; every later failure becomes an apology reply.
func (s *ChatService) Respond(ctx context.Context, in ChatInput) (ChatOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(message) > s.settings.MaxMessageLength {
		return ChatOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	biz, err := s.lookup(ctx, in.BusinessID)
	if err != nil {
		return ChatOutput{}, err
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = newUUID()
	}

	return s.run(ctx, biz, sessionID, message), nil
}

func (s *ChatService) run(ctx context.Context, biz *domain.BusinessContext, sessionID, message string) (out ChatOutput) {
	key := session.Key(biz.ID, sessionID)
	log := s.log.With(
		zap.String("business_id", biz.ID),
		zap.String("session_id", sessionID),
		zap.String("message", logger.Truncate(message, logMessageRunes)))

	isNew, userTurnStored, replyStored := false, false, false
	defer func() {
		if r := recover(); r != nil {
			out = s.failure(biz, sessionID, key, isNew, userTurnStored && !replyStored, fmt.Errorf("panic: %v", r), log)
		}
	}()

	isNew = len(s.sessions.Get(key)) == 0
	s.sessions.Append(key, domain.ConversationTurn{Role: domain.RoleUser, Content: message})
	userTurnStored = true

	result := s.retriever.Score(ctx, message, biz.KnowledgeBase, s.settings.TopK, s.settings.SimilarityThreshold)
	block := retrieval.Assemble(result.Entries, s.settings.MaxContextLength, result.Translation, biz.Contact)

	var reply, path string
	if expr, ok := parseArithmetic(message); ok {
		reply, path = s.answerArithmetic(expr, log), PathMath
	} else if s.completer != nil {
		reply, path = s.answerWithCompletion(ctx, biz, block, key, log), PathCompletion
	} else {
		reply, path = unavailableReply, PathFallback
	}

	suggestions := s.suggestions(ctx, biz, key)

	s.sessions.Append(key, domain.ConversationTurn{Role: domain.RoleAssistant, Content: reply})
	replyStored = true

	out = ChatOutput{
		Response:          reply,
		Suggestions:       suggestions,
		IsNewConversation: isNew,
		BusinessID:        biz.ID,
		SessionID:         sessionID,
		Debug: Debug{
			ContextFound:   contextCount(block),
			MaxScore:       result.MaxScore,
			HasAI:          s.completer != nil,
			WasTranslated:  result.Translation.WasTranslated,
			SourceLanguage: result.Translation.SourceLanguage,
			Path:           path,
		},
	}
	if isNew {
		out.InitialMessage = biz.InitialMessage
	}
	log.Info("chat reply",
		zap.String("path", path),
		zap.Int("context_entries", out.Debug.ContextFound),
		zap.Float64("max_score", result.MaxScore),
		zap.Bool("new_conversation", isNew))
	return out
}

func (s *ChatService) answerArithmetic(expr arithmetic, log *zap.Logger) string {
	result, err := expr.eval()
	if err != nil {
		log.Info("arithmetic shortcut failed", zap.Error(err))
		return calculationErrorReply
	}
	return expr.String() + " = " + result
}

func (s *ChatService) answerWithCompletion(ctx context.Context, biz *domain.BusinessContext, block *retrieval.ContextBlock, key string, log *zap.Logger) string {
	messages := buildPromptMessages(promptInput{
		business: biz,
		context:  block,
		history:  s.sessions.Get(key),
		turns:    s.settings.HistoryPromptTurns,
	})

	callCtx, cancel := context.WithTimeout(ctx, s.settings.CompletionTimeout)
	defer cancel()

	text, err := s.completer.Complete(callCtx, messages, s.settings.Sampling)
	switch {
	case err == nil && strings.TrimSpace(text) == "":
		log.Warn("empty completion")
		return emptyCompletionReply
	case err == nil:
		return strings.TrimSpace(text)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		log.Warn("completion timed out", zap.Duration("timeout", s.settings.CompletionTimeout))
		return unavailableReply
	default:
		fields := []zap.Field{zap.Error(err)}
		if status, ok := upstreamStatusCode(err); ok {
			fields = append(fields, zap.Int("upstream_status", status))
		}
		log.Error("completion failed", fields...)
		return technicalIssuesReply
	}
}

func (s *ChatService) suggestions(ctx context.Context, biz *domain.BusinessContext, key string) []string {
	callCtx, cancel := context.WithTimeout(ctx, s.settings.CompletionTimeout)
	defer cancel()
	return s.suggester.Suggest(callCtx, biz, s.sessions.Get(key))
}

// failure builds the apology result and records it as the assistant turn so
// history matches what the caller saw.
func (s *ChatService) failure(biz *domain.BusinessContext, sessionID, key string, isNew, awaitingReply bool, err error, log *zap.Logger) ChatOutput {
	log.Error("chat pipeline failed", zap.Error(err))
	if awaitingReply {
		s.sessions.Append(key, domain.ConversationTurn{Role: domain.RoleAssistant, Content: pipelineFailureReply})
	}
	out := ChatOutput{
		Response:          pipelineFailureReply,
		Suggestions:       suggest.Retry(),
		IsNewConversation: isNew,
		BusinessID:        biz.ID,
		SessionID:         sessionID,
		Debug:             Debug{HasAI: s.completer != nil, Path: PathFailure},
		Detail:            err.Error(),
	}
	if isNew {
		out.InitialMessage = biz.InitialMessage
	}
	return out
}

func contextCount(block *retrieval.ContextBlock) int {
	if block == nil {
		return 0
	}
	return len(block.Included)
}

var newUUID = func() string {
	return uuid.NewString()
}
