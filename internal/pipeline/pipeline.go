// Package pipeline sequences a single ingestion run: cache lookup, yt-dlp
// extraction, transcript fallback, two-pass analysis and embedding, with the
// per-stage failure policy that keeps partial results useful.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/eliasantony/recallr-api/internal/ai"
	"github.com/eliasantony/recallr-api/internal/contentcache"
	"github.com/eliasantony/recallr-api/internal/extract"
	"github.com/eliasantony/recallr-api/internal/transcribe"
	"github.com/eliasantony/recallr-api/pkg/filename"
)

// DurationExceededError rejects media longer than the configured ceiling
// before any analysis runs. It is fatal to the run.
type DurationExceededError struct {
	DurationSeconds float64
	MaxSeconds      float64
}

func (e *DurationExceededError) Error() string {
	return fmt.Sprintf("media duration %.0fs exceeds the %.0fs ceiling", e.DurationSeconds, e.MaxSeconds)
}

// Extractor is the slice of the extraction adapter the orchestrator drives.
type Extractor interface {
	Extract(ctx context.Context, url string, opts extract.Options) (*extract.Result, error)
}

// Options control one run.
type Options struct {
	AllowInference bool
	Refresh        bool
}

// Result is the full output of one run. Analysis, Recipe and Embedding are
// all nullable; Meta never is.
type Result struct {
	Meta       *extract.Result `json:"meta"`
	Analysis   *ai.Analysis    `json:"analysis"`
	Recipe     *ai.Recipe      `json:"recipe"`
	Embedding  []float32       `json:"embedding,omitempty"`
	StorageDir string          `json:"storage_dir"`

	FromCache bool `json:"-"`
}

type Orchestrator struct {
	cache       *contentcache.Cache
	extractor   Extractor
	transcriber transcribe.Transcriber
	primary     ai.Analyzer
	fallback    ai.Analyzer
	embedder    ai.Embedder
	storageDir  string
	maxDuration float64
	logger      *slog.Logger
}

type OrchestratorConfig struct {
	Cache       *contentcache.Cache
	Extractor   Extractor
	Transcriber transcribe.Transcriber

	// Primary is the video-capable analyzer; nil means text-only operation.
	Primary ai.Analyzer

	// Fallback is the text-only analyzer. Required.
	Fallback ai.Analyzer

	// Embedder may be nil; items then stay out of similarity search.
	Embedder ai.Embedder

	StorageDir string

	// MaxDurationSeconds rejects longer media before analysis. Zero disables
	// the check.
	MaxDurationSeconds float64
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		cache:       cfg.Cache,
		extractor:   cfg.Extractor,
		transcriber: cfg.Transcriber,
		primary:     cfg.Primary,
		fallback:    cfg.Fallback,
		embedder:    cfg.Embedder,
		storageDir:  cfg.StorageDir,
		maxDuration: cfg.MaxDurationSeconds,
		logger:      slog.Default().With("component", "pipeline"),
	}
}

// ItemDir is the stable per-post artifact directory. Re-execution of the same
// post overwrites in place.
func ItemDir(storageDir, platform, postID string) string {
	return filepath.Join(storageDir, "items", filename.Sanitize(platform+"_"+postID, 0))
}

// Run executes the stage sequence for one URL. Extraction failures and
// over-length media are fatal; transcript, analysis and embedding failures
// degrade the result instead of aborting it.
func (o *Orchestrator) Run(ctx context.Context, url string, opts Options) (*Result, error) {
	if !opts.Refresh && o.cache != nil {
		if payload, ok := o.cache.Read(url); ok {
			var cached Result
			if err := json.Unmarshal(payload, &cached); err == nil && cached.Meta != nil {
				o.logger.Info("cache hit, skipping pipeline", "url", url)
				cached.FromCache = true
				return &cached, nil
			}
			o.logger.Warn("cache entry unusable, running full pipeline", "url", url)
		}
	}

	meta, err := o.extractor.Extract(ctx, url, extract.Options{
		DownloadVideo:  true,
		WantTranscript: true,
		Refresh:        opts.Refresh,
	})
	if err != nil {
		return nil, err
	}

	if o.maxDuration > 0 && meta.DurationSeconds > o.maxDuration {
		return nil, &DurationExceededError{DurationSeconds: meta.DurationSeconds, MaxSeconds: o.maxDuration}
	}

	o.runTranscriptFallback(ctx, meta)
	if meta.Transcript != nil {
		cleaned := CleanTranscript(*meta.Transcript)
		if cleaned == "" {
			meta.Transcript = nil
		} else {
			meta.Transcript = &cleaned
		}
	}

	analysis, recipe := o.runAnalysis(ctx, meta, opts.AllowInference)

	res := &Result{
		Meta:       meta,
		Analysis:   analysis,
		Recipe:     recipe,
		StorageDir: ItemDir(o.storageDir, meta.Platform, meta.PostID),
	}

	res.Embedding = o.runEmbedding(ctx, meta, analysis, recipe)

	if err := o.writeArtifacts(res); err != nil {
		return nil, fmt.Errorf("write artifacts: %w", err)
	}

	if o.cache != nil {
		if err := o.cache.Write(url, res); err != nil {
			o.logger.Warn("cache write failed", "url", url, "error", err)
		}
	}

	return res, nil
}

// runTranscriptFallback fills meta.Transcript via speech-to-text when
// extraction produced media but no native captions. Never fatal.
func (o *Orchestrator) runTranscriptFallback(ctx context.Context, meta *extract.Result) {
	if meta.Transcript != nil || meta.MediaPath == nil || o.transcriber == nil {
		return
	}

	text, err := o.transcriber.Transcribe(ctx, *meta.MediaPath)
	if err != nil {
		o.logger.Warn("transcription failed, continuing without transcript",
			"platform", meta.Platform, "post_id", meta.PostID, "error", err)
		return
	}
	if text != "" {
		meta.Transcript = &text
	}
}

// runAnalysis executes the two passes. The video-capable analyzer leads when
// media exists; any failure of that path drops the whole run down to the
// text-only analyzer. Total failure yields nil results, not an error.
func (o *Orchestrator) runAnalysis(ctx context.Context, meta *extract.Result, allowInference bool) (*ai.Analysis, *ai.Recipe) {
	aiMeta := ai.Meta{
		Platform: meta.Platform,
		Title:    meta.Title,
		Caption:  meta.Caption,
	}
	if meta.Transcript != nil {
		aiMeta.Transcript = *meta.Transcript
	}

	var media *ai.MediaRef
	if meta.MediaPath != nil {
		media = &ai.MediaRef{Path: *meta.MediaPath}
	}

	analyzer := o.fallback
	var analysis *ai.Analysis

	if o.primary != nil && media != nil {
		a, err := o.primary.AnalyzeGeneral(ctx, media, aiMeta)
		if err != nil {
			o.logger.Warn("primary analyzer failed, falling back to text analyzer",
				"post_id", meta.PostID, "error", err)
		} else {
			analyzer = o.primary
			analysis = a
		}
	}

	if analysis == nil {
		if o.fallback == nil {
			return nil, nil
		}
		a, err := o.fallback.AnalyzeGeneral(ctx, nil, aiMeta)
		if err != nil {
			o.logger.Warn("all analysis providers failed, continuing without analysis",
				"post_id", meta.PostID, "error", err)
			return nil, nil
		}
		analyzer = o.fallback
		analysis = a
	}

	if !analysis.IsRecipe() {
		return analysis, nil
	}

	recipe, err := analyzer.AnalyzeRecipe(ctx, media, aiMeta, allowInference)
	if err != nil && analyzer != o.fallback && o.fallback != nil {
		o.logger.Warn("primary recipe extraction failed, retrying with text analyzer",
			"post_id", meta.PostID, "error", err)
		recipe, err = o.fallback.AnalyzeRecipe(ctx, nil, aiMeta, allowInference)
	}
	if err != nil {
		o.logger.Warn("recipe extraction failed, continuing without recipe",
			"post_id", meta.PostID, "error", err)
		return analysis, nil
	}

	return analysis, recipe
}

// runEmbedding composes the search blob and embeds it. Never fatal.
func (o *Orchestrator) runEmbedding(ctx context.Context, meta *extract.Result, analysis *ai.Analysis, recipe *ai.Recipe) []float32 {
	if o.embedder == nil {
		return nil
	}

	text := ComposeEmbeddingText(meta, analysis, recipe)
	if text == "" {
		return nil
	}

	vec, err := o.embedder.EmbedText(ctx, text)
	if err != nil {
		o.logger.Warn("embedding failed, item will be excluded from similarity search",
			"post_id", meta.PostID, "error", err)
		return nil
	}
	return vec
}

type embeddingArtifact struct {
	Dim    int       `json:"dim"`
	Vector []float32 `json:"vector"`
}

func (o *Orchestrator) writeArtifacts(res *Result) error {
	if err := os.MkdirAll(res.StorageDir, 0o755); err != nil {
		return err
	}

	if err := writeJSONFile(filepath.Join(res.StorageDir, "meta.json"), res.Meta); err != nil {
		return err
	}
	if res.Analysis != nil {
		if err := writeJSONFile(filepath.Join(res.StorageDir, "analysis.json"), res.Analysis); err != nil {
			return err
		}
	}
	if res.Recipe != nil {
		if err := writeJSONFile(filepath.Join(res.StorageDir, "recipe.json"), res.Recipe); err != nil {
			return err
		}
	}
	if len(res.Embedding) > 0 {
		art := embeddingArtifact{Dim: len(res.Embedding), Vector: res.Embedding}
		if err := writeJSONFile(filepath.Join(res.StorageDir, "embedding.json"), art); err != nil {
			return err
		}
	}
	return nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
