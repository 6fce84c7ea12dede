// Package app wires configuration into a ready-to-serve handler.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"support-agent/handler"
	"support-agent/internal/config"
	"support-agent/internal/domain"
	"support-agent/internal/integrations/openai"
	"support-agent/internal/integrations/paramstore"
	"support-agent/internal/kbcache"
	"support-agent/internal/logger"
	"support-agent/internal/repository"
	"support-agent/internal/retrieval"
	"support-agent/internal/session"
	"support-agent/internal/suggest"
	"support-agent/internal/usecase"
)

// App holds the wired handler plus the pieces callers may need to manage.
type App struct {
	Handler *handler.Handler
	Cache   *kbcache.Cache
	// Files is set when businesses are served from a local directory.
	Files *repository.FileStore
}

// New builds every dependency from cfg. AWS configuration is loaded only
// when a DynamoDB table or a parameter store credential is actually used.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	log = logger.OrNop(log)

	var (
		awsCfg    aws.Config
		awsLoaded bool
	)
	loadAWS := func() (aws.Config, error) {
		if awsLoaded {
			return awsCfg, nil
		}
		c, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("app: load AWS config: %w", err)
		}
		awsCfg, awsLoaded = c, true
		return awsCfg, nil
	}

	a := &App{}
	var store kbcache.Datastore
	switch {
	case cfg.KnowledgeDir != "":
		files, err := repository.NewFileStore(cfg.KnowledgeDir)
		if err != nil {
			return nil, err
		}
		a.Files = files
		store = files
		log.Info("serving businesses from directory", zap.String("dir", cfg.KnowledgeDir))
	case cfg.BusinessTable != "":
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		table, err := repository.NewBusinessTable(awsdynamodb.NewFromConfig(c), cfg.BusinessTable)
		if err != nil {
			return nil, err
		}
		store = table
		log.Info("serving businesses from DynamoDB", zap.String("table", cfg.BusinessTable))
	default:
		return nil, errors.New("app: BUSINESS_TABLE or KNOWLEDGE_DIR must be set")
	}

	cache, err := kbcache.New(store, cfg.Cache.TTL, cfg.Cache.MaxSize, log)
	if err != nil {
		return nil, err
	}
	a.Cache = cache

	var (
		completer  usecase.Completer
		translator retrieval.Translator
		suggestOpt = []suggest.Option{suggest.WithLogger(log)}
	)
	if cfg.CompletionConfigured() {
		client, err := newCompletionClient(cfg, loadAWS)
		if err != nil {
			return nil, err
		}
		completer = client
		suggestOpt = append(suggestOpt, suggest.WithCompleter(client, cfg.Completion.Model))
		if cfg.Completion.TranslationEnabled {
			t, err := openai.NewTranslator(client, cfg.Completion.Model)
			if err != nil {
				return nil, err
			}
			translator = t
		}
		log.Info("completion enabled",
			zap.String("model", cfg.Completion.Model),
			zap.Bool("translation", translator != nil))
	} else {
		log.Warn("no completion credential configured, replies fall back to fixed text")
	}

	svc, err := usecase.NewChatService(
		cache,
		retrieval.NewScorer(translator, log),
		session.NewStore(cfg.Chat.HistoryMaxTurns, log),
		suggest.NewGenerator(suggestOpt...),
		completer,
		usecase.Settings{
			TopK:                cfg.RAG.TopK,
			SimilarityThreshold: cfg.RAG.SimilarityThreshold,
			MaxContextLength:    cfg.RAG.MaxContextLength,
			HistoryPromptTurns:  cfg.Chat.HistoryPromptTurns,
			MaxMessageLength:    cfg.Chat.MaxMessageLength,
			CompletionTimeout:   cfg.Completion.Timeout,
			Sampling: domain.SamplingConfig{
				Model:       cfg.Completion.Model,
				MaxTokens:   cfg.Completion.MaxTokens,
				Temperature: cfg.Completion.Temperature,
				TopP:        cfg.Completion.TopP,
			},
		},
		log,
	)
	if err != nil {
		return nil, err
	}

	h, err := handler.NewHandler(svc,
		handler.WithLogger(log),
		handler.WithDevelopmentMode(cfg.IsDevelopment()))
	if err != nil {
		return nil, err
	}
	a.Handler = h
	return a, nil
}

func newCompletionClient(cfg *config.Config, loadAWS func() (aws.Config, error)) (*openai.Client, error) {
	opts := []openai.Option{
		openai.WithBaseURL(cfg.Completion.BaseURL),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Completion.Timeout}),
	}
	if cfg.Completion.APIKey != "" {
		opts = append(opts, openai.WithAPIKey(cfg.Completion.APIKey))
	} else {
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		params, err := paramstore.New(awsssm.NewFromConfig(c))
		if err != nil {
			return nil, err
		}
		opts = append(opts, openai.WithParamStore(params, cfg.Completion.ParamPrefix))
	}
	return openai.NewClient(opts...)
}
