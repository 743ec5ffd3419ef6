// Package extract turns a short-form video URL into canonical metadata,
// optionally downloaded media and any platform-native captions, by driving
// yt-dlp. All tool failures surface as *ExtractionError; the pipeline treats
// those as fatal for the run.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eliasantony/recallr-api/internal/postid"
	"github.com/eliasantony/recallr-api/pkg/ytdlp"
)

// ExtractionError wraps any failure of the extraction tool chain.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Options control one extraction run.
type Options struct {
	DownloadVideo  bool
	WantTranscript bool
	Refresh        bool
}

// Result is the canonical output of one extraction run.
type Result struct {
	Platform        string          `json:"platform"`
	PostID          string          `json:"post_id"`
	Title           string          `json:"title"`
	Caption         string          `json:"caption"`
	Author          string          `json:"author"`
	PublishedAt     *time.Time      `json:"published_at"`
	DurationSeconds float64         `json:"duration_seconds"`
	ThumbURL        *string         `json:"thumb_url"`
	Transcript      *string         `json:"transcript"`
	MediaPath       *string         `json:"media_path"`
	RawMetadata     json.RawMessage `json:"raw_metadata"`
}

// Tool is the slice of the yt-dlp client the adapter needs. *ytdlp.Client
// satisfies it; tests substitute a fake.
type Tool interface {
	GetInfo(ctx context.Context, url string, extraArgs ...string) (*ytdlp.Info, error)
	Download(ctx context.Context, url string, destDir string, extraArgs ...string) error
	WriteSubtitles(ctx context.Context, url string, destDir string, extraArgs ...string) error
}

// Adapter drives yt-dlp and materializes downloads under a spool directory.
type Adapter struct {
	Client   Tool
	SpoolDir string
}

func NewAdapter(client Tool, spoolDir string) *Adapter {
	return &Adapter{Client: client, SpoolDir: spoolDir}
}

// Extract fetches metadata for url, and media plus native captions when
// requested. The download lands under <spool>/<url fingerprint>/ so a
// re-execution of the same job overwrites rather than duplicates.
func (a *Adapter) Extract(ctx context.Context, url string, opts Options) (*Result, error) {
	var info *ytdlp.Info
	var destDir string

	if opts.DownloadVideo {
		destDir = filepath.Join(a.SpoolDir, postid.Fingerprint(url))
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return nil, &ExtractionError{URL: url, Err: err}
		}
		if err := a.Client.Download(ctx, url, destDir); err != nil {
			return nil, &ExtractionError{URL: url, Err: err}
		}

		var err error
		info, err = readInfoJSON(destDir)
		if err != nil {
			return nil, &ExtractionError{URL: url, Err: err}
		}
	} else {
		var err error
		info, err = a.Client.GetInfo(ctx, url)
		if err != nil {
			return nil, &ExtractionError{URL: url, Err: err}
		}

		if opts.WantTranscript {
			destDir = filepath.Join(a.SpoolDir, postid.Fingerprint(url))
			if err := os.MkdirAll(destDir, 0o755); err != nil {
				return nil, &ExtractionError{URL: url, Err: err}
			}
			// Captions without media. Many sources have none, so a tool
			// failure here does not fail the extraction.
			if err := a.Client.WriteSubtitles(ctx, url, destDir); err != nil {
				destDir = ""
			}
		}
	}

	if strings.TrimSpace(info.ID) == "" {
		return nil, &ExtractionError{URL: url, Err: fmt.Errorf("extractor returned no post id")}
	}

	res := &Result{
		Platform:        postid.NormalizePlatform(info.ExtractorKey),
		PostID:          info.ID,
		Title:           strings.TrimSpace(info.Title),
		Caption:         strings.TrimSpace(info.Description),
		Author:          strings.TrimSpace(info.Uploader),
		DurationSeconds: info.Duration,
		RawMetadata:     info.Raw,
	}

	if info.Timestamp > 0 {
		t := time.Unix(info.Timestamp, 0).UTC()
		res.PublishedAt = &t
	}

	if thumb := BestThumbnail(info); thumb != "" {
		res.ThumbURL = &thumb
	}

	if opts.DownloadVideo {
		if media := findMediaFile(destDir); media != "" {
			res.MediaPath = &media
		}
	}
	if opts.WantTranscript && destDir != "" {
		if subs := readNativeSubtitles(destDir); subs != "" {
			res.Transcript = &subs
		}
	}

	return res, nil
}

// BestThumbnail picks the highest-resolution thumbnail, breaking ties with
// format and keyword heuristics: jpg/webp over obscure formats, and skipping
// variants whose URL suggests a degraded rendition.
func BestThumbnail(info *ytdlp.Info) string {
	best := ""
	bestScore := -1

	for _, t := range info.Thumbnails {
		if strings.TrimSpace(t.URL) == "" {
			continue
		}
		score := t.Width * t.Height
		if score == 0 {
			score = 1
		}
		lower := strings.ToLower(t.URL)
		if strings.Contains(lower, "blur") || strings.Contains(lower, "preview") {
			score /= 4
		}
		if strings.Contains(lower, ".jpg") || strings.Contains(lower, ".jpeg") || strings.Contains(lower, ".webp") {
			score *= 2
		}
		if score > bestScore {
			bestScore = score
			best = t.URL
		}
	}

	if best == "" {
		return strings.TrimSpace(info.Thumbnail)
	}
	return best
}

func readInfoJSON(destDir string) (*ytdlp.Info, error) {
	matches, err := filepath.Glob(filepath.Join(destDir, "*.info.json"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("yt-dlp did not produce .info.json")
	}

	raw, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, err
	}

	info := &ytdlp.Info{Raw: raw}
	if err := json.Unmarshal(raw, info); err != nil {
		return nil, fmt.Errorf("parse info.json: %w", err)
	}
	return info, nil
}

var mediaExtensions = []string{".mp4", ".webm", ".mkv", ".mov", ".m4a", ".mp3"}

func findMediaFile(destDir string) string {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		for _, me := range mediaExtensions {
			if ext == me {
				return filepath.Join(destDir, name)
			}
		}
	}
	return ""
}

// readNativeSubtitles returns the raw text of the first subtitle file yt-dlp
// wrote, if any. Cleaning (cue timestamps, markup) happens downstream.
func readNativeSubtitles(destDir string) string {
	for _, pattern := range []string{"*.vtt", "*.srt"} {
		matches, err := filepath.Glob(filepath.Join(destDir, pattern))
		if err != nil || len(matches) == 0 {
			continue
		}
		raw, err := os.ReadFile(matches[0])
		if err != nil {
			continue
		}
		if text := strings.TrimSpace(string(raw)); text != "" {
			return text
		}
	}
	return ""
}
