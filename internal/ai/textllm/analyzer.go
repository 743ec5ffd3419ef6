// Package textllm implements the text-only fallback analyzer on an
// OpenAI-compatible chat API. It sees title, caption and transcript only;
// any media reference is ignored.
package textllm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/eliasantony/recallr-api/internal/ai"
)

const providerName = "textllm"

type Analyzer struct {
	client llms.Model
	logger *slog.Logger
}

type Config struct {
	BaseURL string
	Token   string
	Model   string
}

func NewAnalyzer(cfg Config) (*Analyzer, error) {
	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	token := cfg.Token
	if token == "" {
		// Local OpenAI-compatible services don't require authentication.
		token = "none"
	}
	opts = append(opts, openai.WithToken(token))

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("textllm: create client: %w", err)
	}

	return &Analyzer{
		client: client,
		logger: slog.Default().With("component", "textllm-analyzer"),
	}, nil
}

func (a *Analyzer) AnalyzeGeneral(ctx context.Context, media *ai.MediaRef, meta ai.Meta) (*ai.Analysis, error) {
	text, err := a.generateJSON(ctx, generalSystemPrompt, userContent(meta))
	if err != nil {
		return nil, &ai.AnalysisError{Provider: providerName, Err: err}
	}

	var analysis ai.Analysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return nil, &ai.AnalysisError{Provider: providerName, Err: fmt.Errorf("decode analysis: %w", err)}
	}
	if err := analysis.Validate(); err != nil {
		return nil, &ai.AnalysisError{Provider: providerName, Err: err}
	}
	return &analysis, nil
}

func (a *Analyzer) AnalyzeRecipe(ctx context.Context, media *ai.MediaRef, meta ai.Meta, allowInference bool) (*ai.Recipe, error) {
	text, err := a.generateJSON(ctx, recipeSystemPrompt(allowInference), userContent(meta))
	if err != nil {
		return nil, &ai.AnalysisError{Provider: providerName, Err: err}
	}

	var recipe ai.Recipe
	if err := json.Unmarshal([]byte(text), &recipe); err != nil {
		return nil, &ai.AnalysisError{Provider: providerName, Err: fmt.Errorf("decode recipe: %w", err)}
	}
	if err := recipe.Validate(); err != nil {
		return nil, &ai.AnalysisError{Provider: providerName, Err: err}
	}
	recipe.ApplyInferencePolicy(allowInference)
	return &recipe, nil
}

func (a *Analyzer) generateJSON(ctx context.Context, systemPrompt, user string) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(user)},
		},
	}

	response, err := a.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
	if err != nil {
		a.logger.Error("failed to generate content", "err", err)
		return "", err
	}
	if len(response.Choices) < 1 {
		return "", fmt.Errorf("no choices returned from model")
	}

	return cleanJSONBlock(response.Choices[0].Content), nil
}

const generalSystemPrompt = `You classify short-form video posts from their text alone.
Respond with one JSON object with the keys: content_type, topics, summary,
key_points, entities, screen_text, links. content_type is a single lowercase
category such as "recipe", "travel", "fitness" or "other".`

func recipeSystemPrompt(allowInference bool) string {
	inference := "Only report values stated in the text. Leave unknown fields null."
	if allowInference {
		inference = `You may infer strongly implied values; mark those with provenance
"inferred" and an honest confidence. Stated values get provenance "explicit".`
	}
	return fmt.Sprintf(`You extract recipes from short-form video post text.
Respond with one JSON object with the keys: title, ingredients, steps, tags,
servings, prep_time, cook_time. Each ingredient and each of
servings/prep_time/cook_time is {"value": string, "provenance":
"explicit"|"inferred", "confidence": number}. %s`, inference)
}

func userContent(meta ai.Meta) string {
	var b strings.Builder
	if meta.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", meta.Title)
	}
	if meta.Caption != "" {
		fmt.Fprintf(&b, "Caption: %s\n", meta.Caption)
	}
	if meta.Transcript != "" {
		fmt.Fprintf(&b, "Transcript: %s\n", meta.Transcript)
	}
	if b.Len() == 0 {
		b.WriteString("(no text available)")
	}
	return b.String()
}

// cleanJSONBlock removes markdown code block wrappers from JSON
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
