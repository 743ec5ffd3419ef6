// Package gemini implements the primary, video-capable analyzer on Google's
// Gemini API. Downloaded media is sent inline alongside the textual context;
// responses are requested as JSON and validated before use.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/eliasantony/recallr-api/internal/ai"
)

const providerName = "gemini"

type Analyzer struct {
	client *genai.Client
	model  string
}

// NewAnalyzer creates a Gemini-backed analyzer.
func NewAnalyzer(ctx context.Context, apiKey string, model string) (*Analyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Analyzer{client: client, model: model}, nil
}

// Close releases resources held by the underlying client.
func (a *Analyzer) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

func (a *Analyzer) AnalyzeGeneral(ctx context.Context, media *ai.MediaRef, meta ai.Meta) (*ai.Analysis, error) {
	prompt := generalPrompt(meta)

	text, err := a.generateJSON(ctx, media, prompt)
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
	prompt := recipePrompt(meta, allowInference)

	text, err := a.generateJSON(ctx, media, prompt)
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

func (a *Analyzer) generateJSON(ctx context.Context, media *ai.MediaRef, prompt string) (string, error) {
	model := a.client.GenerativeModel(a.model)
	model.SetTemperature(0.1) // Low temperature for consistent output
	model.ResponseMIMEType = "application/json"

	parts := []genai.Part{}
	if media != nil && strings.TrimSpace(media.Path) != "" {
		data, err := os.ReadFile(media.Path)
		if err != nil {
			return "", fmt.Errorf("read media: %w", err)
		}
		parts = append(parts, genai.Blob{MIMEType: mimeTypeFor(media.Path), Data: data})
	}
	parts = append(parts, genai.Text(prompt))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", err
	}
	return cleanJSONBlock(text), nil
}

func mimeTypeFor(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "video/mp4"
}

// extractTextFromResponse extracts text from a Gemini API response.
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}

// cleanJSONBlock removes markdown code block wrappers from JSON
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
