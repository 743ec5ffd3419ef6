package gemini

import (
	"fmt"
	"strings"

	"github.com/eliasantony/recallr-api/internal/ai"
)

func contextBlock(meta ai.Meta) string {
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
	return b.String()
}

func generalPrompt(meta ai.Meta) string {
	return fmt.Sprintf(`Analyze this short-form video post and respond with a single JSON object
with the keys: content_type, topics, summary, key_points, entities, screen_text, links.
content_type is a single lowercase category such as "recipe", "travel", "fitness" or "other".

%s`, contextBlock(meta))
}

func recipePrompt(meta ai.Meta, allowInference bool) string {
	inference := "Only report values stated in the content. Leave unknown fields null."
	if allowInference {
		inference = `You may infer values that are strongly implied but not stated; mark those
with provenance "inferred" and an honest confidence. Values read from the content get
provenance "explicit".`
	}

	return fmt.Sprintf(`Extract the recipe shown in this video as a single JSON object with the keys:
title, ingredients, steps, tags, servings, prep_time, cook_time.
Each ingredient and each of servings/prep_time/cook_time is an object
{"value": string, "provenance": "explicit"|"inferred", "confidence": number}.
%s

%s`, inference, contextBlock(meta))
}
