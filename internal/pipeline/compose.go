package pipeline

import (
	"strings"

	"github.com/eliasantony/recallr-api/internal/ai"
	"github.com/eliasantony/recallr-api/internal/extract"
)

// ComposeEmbeddingText builds the single text blob the embedder sees. The
// field order is fixed so that re-embedding the same stored artifacts always
// produces the same input.
func ComposeEmbeddingText(meta *extract.Result, analysis *ai.Analysis, recipe *ai.Recipe) string {
	var b strings.Builder

	writeLine := func(label, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\n")
	}

	writeLine("Title", meta.Title)
	writeLine("Caption", meta.Caption)
	if meta.Transcript != nil {
		writeLine("Transcript", *meta.Transcript)
	}

	if analysis != nil {
		writeLine("Summary", analysis.Summary)
		writeLine("Key points", strings.Join(analysis.KeyPoints, "; "))
		writeLine("Topics", strings.Join(analysis.Topics, ", "))
		writeLine("Entities", strings.Join(analysis.Entities, ", "))
		writeLine("Screen text", strings.Join(analysis.ScreenText, "; "))
	}

	if recipe != nil {
		writeLine("Recipe", recipe.Title)
		ingredients := make([]string, 0, len(recipe.Ingredients))
		for _, ing := range recipe.Ingredients {
			if v := strings.TrimSpace(ing.Value); v != "" {
				ingredients = append(ingredients, v)
			}
		}
		writeLine("Ingredients", strings.Join(ingredients, "; "))
		writeLine("Steps", strings.Join(recipe.Steps, " "))
		writeLine("Tags", strings.Join(recipe.Tags, ", "))
	}

	return strings.TrimSpace(b.String())
}
