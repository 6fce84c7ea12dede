package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"support-agent/internal/domain"
	"support-agent/internal/integrations/openai"
	"support-agent/internal/kbcache"
	"support-agent/internal/retrieval"
	"support-agent/internal/session"
	"support-agent/internal/suggest"
)

type fakeCache struct {
	businesses map[string]*domain.BusinessContext
	err        error
	calls      int
	cleared    []string
	clearedAll bool
}

func (f *fakeCache) Get(_ context.Context, id string) (*domain.BusinessContext, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	biz, ok := f.businesses[id]
	if !ok {
		return nil, kbcache.ErrNotFound
	}
	return biz, nil
}

func (f *fakeCache) Clear(id string) { f.cleared = append(f.cleared, id) }
func (f *fakeCache) ClearAll()       { f.clearedAll = true }
func (f *fakeCache) Len() int        { return len(f.businesses) }

type fakeSuggester struct {
	out     []string
	panics  bool
	history []domain.ConversationTurn
}

func (f *fakeSuggester) Suggest(_ context.Context, _ *domain.BusinessContext, history []domain.ConversationTurn) []string {
	if f.panics {
		panic("suggester exploded")
	}
	f.history = history
	return f.out
}

type fakeCompleter struct {
	answer   string
	err      error
	block    bool
	calls    int
	messages []domain.ChatMessage
	cfg      domain.SamplingConfig
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []domain.ChatMessage, cfg domain.SamplingConfig) (string, error) {
	f.calls++
	f.messages = messages
	f.cfg = cfg
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.answer, f.err
}

func acme() *domain.BusinessContext {
	biz := &domain.BusinessContext{
		ID:             "acme",
		Business:       domain.BusinessIdentity{Name: "Acme", Type: "retail"},
		Contact:        domain.ContactInfo{Phone: "555-0100"},
		InitialMessage: "Welcome to Acme!",
		KnowledgeBase: []domain.KnowledgeEntry{
			{Question: "What are your hours?", Answer: "9-5 Mon-Fri", Category: "hours"},
		},
	}
	biz.ApplyDefaults()
	return biz
}

type fixture struct {
	cache     *fakeCache
	sessions  *session.Store
	suggester *fakeSuggester
	svc       *ChatService
}

func testSettings() Settings {
	return Settings{
		TopK:                5,
		SimilarityThreshold: 0.2,
		MaxContextLength:    2000,
		HistoryPromptTurns:  6,
		MaxMessageLength:    1000,
		CompletionTimeout:   time.Second,
		Sampling:            domain.SamplingConfig{Model: "llama", MaxTokens: 200, Temperature: 0.8, TopP: 0.9},
	}
}

// newFixture passes a nil Completer interface when completer is nil.
func newFixture(t *testing.T, completer *fakeCompleter, settings Settings) *fixture {
	t.Helper()
	f := &fixture{
		cache:     &fakeCache{businesses: map[string]*domain.BusinessContext{"acme": acme()}},
		sessions:  session.NewStore(20, nil),
		suggester: &fakeSuggester{out: []string{"a", "b", "c"}},
	}
	var c Completer
	if completer != nil {
		c = completer
	}
	svc, err := NewChatService(f.cache, retrieval.NewScorer(nil, nil), f.sessions, f.suggester, c, settings, nil)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func expectError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

func TestNewChatService_ValidatesDependencies(t *testing.T) {
	scorer := retrieval.NewScorer(nil, nil)
	store := session.NewStore(20, nil)
	sg := &fakeSuggester{}

	_, err := NewChatService(nil, scorer, store, sg, nil, Settings{}, nil)
	require.Error(t, err)
	_, err = NewChatService(&fakeCache{}, nil, store, sg, nil, Settings{}, nil)
	require.Error(t, err)
	_, err = NewChatService(&fakeCache{}, scorer, nil, sg, nil, Settings{}, nil)
	require.Error(t, err)
	_, err = NewChatService(&fakeCache{}, scorer, store, nil, nil, Settings{}, nil)
	require.Error(t, err)
	_, err = NewChatService(&fakeCache{}, scorer, store, sg, &fakeCompleter{}, Settings{}, nil)
	require.ErrorContains(t, err, "model")
}

func TestRespond_ValidationHappensBeforeRetrieval(t *testing.T) {
	f := newFixture(t, &fakeCompleter{answer: "x"}, testSettings())

	_, err := f.svc.Respond(context.Background(), ChatInput{Message: "   ", BusinessID: "acme", SessionID: "s"})
	expectError(t, err, ErrorInvalidInput, "empty_message")

	_, err = f.svc.Respond(context.Background(), ChatInput{Message: strings.Repeat("é", 1001), BusinessID: "acme", SessionID: "s"})
	expectError(t, err, ErrorInvalidInput, "message_too_long")

	require.Zero(t, f.cache.calls)
	require.Zero(t, f.sessions.Len())

	_, err = f.svc.Respond(context.Background(), ChatInput{Message: "hi", BusinessID: " "})
	expectError(t, err, ErrorInvalidInput, "missing_business_id")
}

func TestRespond_UnknownBusiness(t *testing.T) {
	f := newFixture(t, nil, testSettings())
	_, err := f.svc.Respond(context.Background(), ChatInput{Message: "hi", BusinessID: "nope", SessionID: "s"})
	expectError(t, err, ErrorNotFound, "business_not_found")
	require.ErrorIs(t, err, kbcache.ErrNotFound)
	require.Zero(t, f.sessions.Len())
}

func TestRespond_GroundedCompletion(t *testing.T) {
	completer := &fakeCompleter{answer: "  We're open 9-5 Mon-Fri.  "}
	f := newFixture(t, completer, testSettings())

	out, err := f.svc.Respond(context.Background(), ChatInput{Message: "what time do you open", BusinessID: "acme", SessionID: "s1"})
	require.NoError(t, err)
	require.Equal(t, "We're open 9-5 Mon-Fri.", out.Response)
	require.True(t, out.IsNewConversation)
	require.Equal(t, "Welcome to Acme!", out.InitialMessage)
	require.Equal(t, []string{"a", "b", "c"}, out.Suggestions)
	require.Equal(t, "s1", out.SessionID)
	require.Equal(t, Debug{ContextFound: 1, MaxScore: 1, HasAI: true, SourceLanguage: "en", Path: PathCompletion}, out.Debug)

	require.Equal(t, testSettings().Sampling, completer.cfg)
	require.Len(t, completer.messages, 3)
	require.Equal(t, domain.RoleSystem, completer.messages[0].Role)
	require.Contains(t, completer.messages[0].Content, "Acme")
	require.Contains(t, completer.messages[0].Content, "Phone: 555-0100")
	require.Contains(t, completer.messages[1].Content, "9-5 Mon-Fri")
	require.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: "what time do you open"}, completer.messages[2])

	require.Equal(t, []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "what time do you open"},
		{Role: domain.RoleAssistant, Content: "We're open 9-5 Mon-Fri."},
	}, f.sessions.Get(session.Key("acme", "s1")))

	out, err = f.svc.Respond(context.Background(), ChatInput{Message: "thanks", BusinessID: "acme", SessionID: "s1"})
	require.NoError(t, err)
	require.False(t, out.IsNewConversation)
	require.Empty(t, out.InitialMessage)
	require.Zero(t, out.Debug.ContextFound)
	require.Len(t, f.sessions.Get(session.Key("acme", "s1")), 4)
}

func TestRespond_GeneratesSessionID(t *testing.T) {
	orig := newUUID
	newUUID = func() string { return "generated" }
	defer func() { newUUID = orig }()

	f := newFixture(t, nil, testSettings())
	out, err := f.svc.Respond(context.Background(), ChatInput{Message: "hello", BusinessID: "acme"})
	require.NoError(t, err)
	require.Equal(t, "generated", out.SessionID)
	require.Len(t, f.sessions.Get(session.Key("acme", "generated")), 2)
}

func TestRespond_PromptUsesRecentTurnsOnly(t *testing.T) {
	completer := &fakeCompleter{answer: "ok"}
	settings := testSettings()
	settings.HistoryPromptTurns = 3
	f := newFixture(t, completer, settings)

	for _, msg := range []string{"one", "two", "three"} {
		_, err := f.svc.Respond(context.Background(), ChatInput{Message: msg, BusinessID: "acme", SessionID: "s"})
		require.NoError(t, err)
	}

	turns := completer.messages[1:]
	require.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "two"},
		{Role: domain.RoleAssistant, Content: "ok"},
		{Role: domain.RoleUser, Content: "three"},
	}, turns)
}

func TestRespond_SystemMessageOverride(t *testing.T) {
	completer := &fakeCompleter{answer: "ok"}
	f := newFixture(t, completer, testSettings())
	f.cache.businesses["acme"].SystemMessage = "You are Acme's robot."

	_, err := f.svc.Respond(context.Background(), ChatInput{Message: "hello", BusinessID: "acme", SessionID: "s"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(completer.messages[0].Content, "You are Acme's robot."))
	require.Contains(t, completer.messages[0].Content, "555-0100")
	require.NotContains(t, completer.messages[0].Content, "Response length:")
}

func TestRespond_ArithmeticShortcut(t *testing.T) {
	completer := &fakeCompleter{answer: "should not be used"}
	f := newFixture(t, completer, testSettings())

	out, err := f.svc.Respond(context.Background(), ChatInput{Message: "12 + 5", BusinessID: "acme", SessionID: "s"})
	require.NoError(t, err)
	require.Contains(t, out.Response, "17")
	require.Equal(t, PathMath, out.Debug.Path)

	out, err = f.svc.Respond(context.Background(), ChatInput{Message: "9 / 0", BusinessID: "acme", SessionID: "s"})
	require.NoError(t, err)
	require.Equal(t, calculationErrorReply, out.Response)
	require.Zero(t, completer.calls)
}

func TestRespond_NoCompleterFallback(t *testing.T) {
	f := newFixture(t, nil, testSettings())
	out, err := f.svc.Respond(context.Background(), ChatInput{Message: "what time do you open", BusinessID: "acme", SessionID: "s"})
	require.NoError(t, err)
	require.Equal(t, unavailableReply, out.Response)
	require.False(t, out.Debug.HasAI)
	require.Equal(t, PathFallback, out.Debug.Path)
	require.Equal(t, 1, out.Debug.ContextFound)
}

func TestRespond_CompletionFailures(t *testing.T) {
	cases := []struct {
		name      string
		completer *fakeCompleter
		want      string
	}{
		{"timeout", &fakeCompleter{block: true}, unavailableReply},
		{"upstream 500", &fakeCompleter{err: &openai.HTTPStatusError{StatusCode: http.StatusInternalServerError}}, technicalIssuesReply},
		{"rate limited", &fakeCompleter{err: &openai.HTTPStatusError{StatusCode: http.StatusTooManyRequests}}, technicalIssuesReply},
		{"network", &fakeCompleter{err: errors.New("connection reset")}, technicalIssuesReply},
		{"empty text", &fakeCompleter{answer: "   "}, emptyCompletionReply},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			settings := testSettings()
			settings.CompletionTimeout = 20 * time.Millisecond
			f := newFixture(t, tc.completer, settings)

			out, err := f.svc.Respond(context.Background(), ChatInput{Message: "hello", BusinessID: "acme", SessionID: "s"})
			require.NoError(t, err)
			require.Equal(t, tc.want, out.Response)

			history := f.sessions.Get(session.Key("acme", "s"))
			require.Len(t, history, 2)
			require.Equal(t, tc.want, history[1].Content)
		})
	}
}

func TestRespond_PipelinePanicBecomesApology(t *testing.T) {
	f := newFixture(t, &fakeCompleter{answer: "fine"}, testSettings())
	f.suggester.panics = true

	out, err := f.svc.Respond(context.Background(), ChatInput{Message: "hello", BusinessID: "acme", SessionID: "s"})
	require.NoError(t, err)
	require.Equal(t, pipelineFailureReply, out.Response)
	require.Equal(t, suggest.Retry(), out.Suggestions)
	require.Equal(t, PathFailure, out.Debug.Path)
	require.Contains(t, out.Detail, "suggester exploded")
	require.True(t, out.IsNewConversation)
	require.Equal(t, "Welcome to Acme!", out.InitialMessage)

	require.Equal(t, []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "hello"},
		{Role: domain.RoleAssistant, Content: pipelineFailureReply},
	}, f.sessions.Get(session.Key("acme", "s")))

	out, err = f.svc.Respond(context.Background(), ChatInput{Message: "hello again", BusinessID: "acme", SessionID: "s"})
	require.NoError(t, err)
	require.Equal(t, pipelineFailureReply, out.Response)
	require.False(t, out.IsNewConversation)
	require.Empty(t, out.InitialMessage)
}

func TestRespond_SuggesterSeesUserTurn(t *testing.T) {
	f := newFixture(t, nil, testSettings())
	_, err := f.svc.Respond(context.Background(), ChatInput{Message: "hello", BusinessID: "acme", SessionID: "s"})
	require.NoError(t, err)
	require.Equal(t, []domain.ConversationTurn{{Role: domain.RoleUser, Content: "hello"}}, f.suggester.history)
}
