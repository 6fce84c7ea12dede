package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"support-agent/internal/domain"
)

const (
	translationMaxTokens   = 200
	translationTemperature = 0.0
)

type translationResponse struct {
	WasTranslated  bool   `json:"was_translated"`
	SourceLanguage string `json:"source_language"`
	Translated     string `json:"translated"`
}

// Translator detects the language of customer messages and translates them
// into English over the chat endpoint.
type Translator struct {
	client *Client
	model  string
}

func NewTranslator(c *Client, model string) (*Translator, error) {
	if c == nil {
		return nil, errors.New("openai: client must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	return &Translator{client: c, model: model}, nil
}

// DetectAndTranslate returns the English rendering of text. English input
// comes back untouched with WasTranslated false.
func (t *Translator) DetectAndTranslate(ctx context.Context, text string) (domain.TranslationInfo, error) {
	temperature := translationTemperature
	raw, err := t.client.chat(ctx, chatRequest{
		Model: t.model,
		Messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: translationPrompt()},
			{Role: domain.RoleUser, Content: text},
		},
		MaxTokens:      translationMaxTokens,
		Temperature:    &temperature,
		ResponseFormat: translationResponseFormat(),
	})
	if err != nil {
		return domain.TranslationInfo{}, err
	}

	out, err := parseTranslation(raw)
	if err != nil {
		return domain.TranslationInfo{}, err
	}
	info := domain.TranslationInfo{
		WasTranslated:  out.WasTranslated,
		SourceLanguage: strings.ToLower(strings.TrimSpace(out.SourceLanguage)),
		Original:       text,
		Translated:     strings.TrimSpace(out.Translated),
	}
	if !info.WasTranslated || info.Translated == "" {
		info.WasTranslated = false
		info.Translated = text
	}
	return info, nil
}

func translationPrompt() string {
	return strings.Join([]string{
		"Detect the language of the user's message.",
		"If it is English, return was_translated=false, source_language=\"en\" and the message unchanged in translated.",
		"Otherwise return was_translated=true, the ISO 639-1 code in source_language and a faithful English translation in translated.",
		"Translate only. Do not answer the message.",
	}, "\n")
}

func translationResponseFormat() *responseFormat {
	return &responseFormat{
		Type: "json_schema",
		JSONSchema: jsonSchemaConfig{
			Name:   "translation",
			Strict: true,
			Schema: json.RawMessage(`{
				"type":"object",
				"additionalProperties":false,
				"properties":{
					"was_translated":{"type":"boolean"},
					"source_language":{"type":"string"},
					"translated":{"type":"string"}
				},
				"required":["was_translated","source_language","translated"]
			}`),
		},
	}
}

func parseTranslation(raw string) (translationResponse, error) {
	var out translationResponse
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return translationResponse{}, fmt.Errorf("openai: decode translation: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return translationResponse{}, errors.New("openai: decode translation: multiple JSON values")
		}
		return translationResponse{}, fmt.Errorf("openai: decode translation trailing data: %w", err)
	}
	if strings.TrimSpace(out.SourceLanguage) == "" {
		return translationResponse{}, errors.New("openai: translation missing source_language")
	}
	return out, nil
}
