package ai

import (
	"fmt"
	"strings"
)

// ContentTypeRecipe is the one specialized category the second analysis pass
// currently recognizes.
const ContentTypeRecipe = "recipe"

// MaxInferredConfidence caps the confidence an analyzer may assign to a value
// it inferred rather than read from the content.
const MaxInferredConfidence = 0.8

// Analysis is the general-understanding result for one post. Every field
// besides ContentType may be empty; the shape is validated on receipt.
type Analysis struct {
	ContentType string   `json:"content_type"`
	Topics      []string `json:"topics"`
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	Entities    []string `json:"entities"`
	ScreenText  []string `json:"screen_text"`
	Links       []string `json:"links"`
}

func (a *Analysis) Validate() error {
	if strings.TrimSpace(a.ContentType) == "" {
		return fmt.Errorf("analysis missing content_type")
	}
	return nil
}

// IsRecipe reports whether the general pass classified the post as a recipe,
// which triggers the specialized extraction pass.
func (a *Analysis) IsRecipe() bool {
	return strings.EqualFold(strings.TrimSpace(a.ContentType), ContentTypeRecipe)
}

type Provenance string

const (
	ProvenanceExplicit Provenance = "explicit"
	ProvenanceInferred Provenance = "inferred"
)

// Field is a recipe value with its provenance marker: whether the analyzer
// read it from the content or inferred it, and with what confidence.
type Field struct {
	Value      string     `json:"value"`
	Provenance Provenance `json:"provenance"`
	Confidence float64    `json:"confidence"`
}

// Recipe is the specialized extraction result.
type Recipe struct {
	Title            string   `json:"title"`
	Ingredients      []Field  `json:"ingredients"`
	Steps            []string `json:"steps"`
	Tags             []string `json:"tags"`
	Servings         *Field   `json:"servings"`
	PrepTime         *Field   `json:"prep_time"`
	CookTime         *Field   `json:"cook_time"`
	NoInferredValues bool     `json:"no_inferred_values"`
}

func (r *Recipe) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("recipe missing title")
	}
	for i := range r.Ingredients {
		if err := validateField(&r.Ingredients[i]); err != nil {
			return fmt.Errorf("ingredient %d: %w", i, err)
		}
	}
	for _, f := range []*Field{r.Servings, r.PrepTime, r.CookTime} {
		if f == nil {
			continue
		}
		if err := validateField(f); err != nil {
			return err
		}
	}
	return nil
}

func validateField(f *Field) error {
	switch f.Provenance {
	case ProvenanceExplicit, ProvenanceInferred:
	default:
		return fmt.Errorf("invalid provenance %q", f.Provenance)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", f.Confidence)
	}
	return nil
}

// ApplyInferencePolicy enforces the allow_inference flag on a decoded recipe.
// When inference is disallowed, inferred fields are dropped (left null) and
// the no-inferred-values flag is set. When allowed, inferred confidences are
// capped at MaxInferredConfidence.
func (r *Recipe) ApplyInferencePolicy(allowInference bool) {
	if !allowInference {
		kept := r.Ingredients[:0]
		for _, ing := range r.Ingredients {
			if ing.Provenance != ProvenanceInferred {
				kept = append(kept, ing)
			}
		}
		r.Ingredients = kept
		r.Servings = dropIfInferred(r.Servings)
		r.PrepTime = dropIfInferred(r.PrepTime)
		r.CookTime = dropIfInferred(r.CookTime)
		r.NoInferredValues = true
		return
	}

	for i := range r.Ingredients {
		capConfidence(&r.Ingredients[i])
	}
	for _, f := range []*Field{r.Servings, r.PrepTime, r.CookTime} {
		if f != nil {
			capConfidence(f)
		}
	}
}

func dropIfInferred(f *Field) *Field {
	if f != nil && f.Provenance == ProvenanceInferred {
		return nil
	}
	return f
}

func capConfidence(f *Field) {
	if f.Provenance == ProvenanceInferred && f.Confidence > MaxInferredConfidence {
		f.Confidence = MaxInferredConfidence
	}
}
