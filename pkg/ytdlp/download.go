package ytdlp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Download downloads the media and writes a matching .info.json into destDir.
// It uses a stable output template so ingest can discover pairs:
//
//	<destDir>/<extractor>_<id>.<ext>
//	<destDir>/<extractor>_<id>.info.json
//
// Short-form posts are single videos, so playlists are always disabled. The
// thumbnail and any native subtitles/captions come along when available.
func (c *Client) Download(ctx context.Context, url string, destDir string, extraArgs ...string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("ytdlp: url is required")
	}
	if strings.TrimSpace(destDir) == "" {
		return fmt.Errorf("ytdlp: destDir is required")
	}

	tmpl := filepath.Join(destDir, "%(extractor)s_%(id)s.%(ext)s")

	args := []string{
		"-o", tmpl,
		"--no-playlist",
		"--remux-video", "mp4",
		"--fixup", "force",
		"--write-info-json",
		"--write-thumbnail",
		"--write-subs",
		"--write-auto-subs",
		"--sub-lang", "en",
		"--no-colors",
		"--format", "mp4/best",
	}
	args = append(args, extraArgs...)
	args = append(args, url)

	stdout, stderr, err := c.exec(ctx, args...)
	if err != nil {
		return wrapExecError(c.PathOrDefault(), args, stdout, stderr, err)
	}
	return nil
}

// WriteSubtitles asks yt-dlp to download subtitles/auto-captions into destDir.
// This is best-effort; many sources may not have captions.
func (c *Client) WriteSubtitles(ctx context.Context, url string, destDir string, extraArgs ...string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("ytdlp: url is required")
	}
	if strings.TrimSpace(destDir) == "" {
		return fmt.Errorf("ytdlp: destDir is required")
	}

	tmpl := filepath.Join(destDir, "%(extractor)s_%(id)s.%(ext)s")

	args := []string{
		"--skip-download",
		"--no-playlist",
		"--write-subs",
		"--write-auto-subs",
		"--sub-lang", "en",
		"-o", tmpl,
	}
	args = append(args, extraArgs...)
	args = append(args, url)

	stdout, stderr, err := c.exec(ctx, args...)
	if err != nil {
		return wrapExecError(c.PathOrDefault(), args, stdout, stderr, err)
	}
	return nil
}
