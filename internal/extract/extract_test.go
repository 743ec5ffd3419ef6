package extract

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eliasantony/recallr-api/pkg/ytdlp"
)

type fakeTool struct {
	info        *ytdlp.Info
	infoErr     error
	downloadErr error
	subsErr     error
	onDownload  func(destDir string)
	onSubs      func(destDir string)
}

func (f *fakeTool) GetInfo(ctx context.Context, url string, extraArgs ...string) (*ytdlp.Info, error) {
	return f.info, f.infoErr
}

func (f *fakeTool) Download(ctx context.Context, url string, destDir string, extraArgs ...string) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	if f.onDownload != nil {
		f.onDownload(destDir)
	}
	return nil
}

func (f *fakeTool) WriteSubtitles(ctx context.Context, url string, destDir string, extraArgs ...string) error {
	if f.subsErr != nil {
		return f.subsErr
	}
	if f.onSubs != nil {
		f.onSubs(destDir)
	}
	return nil
}

func TestExtract_MetadataOnly(t *testing.T) {
	tool := &fakeTool{info: &ytdlp.Info{
		ID:           "7312",
		Title:        "pasta hack",
		Description:  "easy weeknight dinner #pasta",
		ExtractorKey: "TikTok",
		Uploader:     "cook",
		Timestamp:    1700000000,
		Duration:     42,
		Thumbnails:   []ytdlp.Thumbnail{{URL: "https://t/hd.jpg", Width: 720, Height: 1280}},
		Raw:          json.RawMessage(`{"id":"7312"}`),
	}}
	a := NewAdapter(tool, t.TempDir())

	res, err := a.Extract(context.Background(), "https://tiktok.com/@cook/video/7312", Options{})
	require.NoError(t, err)
	require.Equal(t, "tiktok", res.Platform)
	require.Equal(t, "7312", res.PostID)
	require.Equal(t, "pasta hack", res.Title)
	require.Equal(t, "easy weeknight dinner #pasta", res.Caption)
	require.Equal(t, "cook", res.Author)
	require.NotNil(t, res.PublishedAt)
	require.Equal(t, float64(42), res.DurationSeconds)
	require.NotNil(t, res.ThumbURL)
	require.Equal(t, "https://t/hd.jpg", *res.ThumbURL)
	require.Nil(t, res.MediaPath)
	require.Nil(t, res.Transcript)
	require.NotEmpty(t, res.RawMetadata)
}

func TestExtract_ToolFailureIsExtractionError(t *testing.T) {
	execErr := &ytdlp.ExecError{Cmd: "yt-dlp", Stderr: "ERROR: Unsupported URL", Cause: errors.New("exit status 1")}
	a := NewAdapter(&fakeTool{infoErr: execErr}, t.TempDir())

	_, err := a.Extract(context.Background(), "https://example.com/nope", Options{})
	require.Error(t, err)
	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	var exec *ytdlp.ExecError
	require.ErrorAs(t, err, &exec)
}

func TestExtract_MissingPostID(t *testing.T) {
	a := NewAdapter(&fakeTool{info: &ytdlp.Info{Title: "x"}}, t.TempDir())

	_, err := a.Extract(context.Background(), "https://tiktok.com/@cook/video/7312", Options{})
	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
}

func TestExtract_MetadataOnly_FetchesCaptions(t *testing.T) {
	tool := &fakeTool{
		info: &ytdlp.Info{ID: "7312", Title: "pasta hack", ExtractorKey: "TikTok"},
		onSubs: func(destDir string) {
			_ = os.WriteFile(filepath.Join(destDir, "tiktok_7312.en.vtt"), []byte("WEBVTT\n\n00:00.000 --> 00:02.000\nboil the water"), 0o644)
		},
	}
	a := NewAdapter(tool, t.TempDir())

	res, err := a.Extract(context.Background(), "https://tiktok.com/@cook/video/7312", Options{WantTranscript: true})
	require.NoError(t, err)
	require.Nil(t, res.MediaPath)
	require.NotNil(t, res.Transcript)
	require.Contains(t, *res.Transcript, "boil the water")
}

func TestExtract_MetadataOnly_CaptionFailureNotFatal(t *testing.T) {
	tool := &fakeTool{
		info:    &ytdlp.Info{ID: "7312", Title: "pasta hack", ExtractorKey: "TikTok"},
		subsErr: errors.New("no captions for this source"),
	}
	a := NewAdapter(tool, t.TempDir())

	res, err := a.Extract(context.Background(), "https://tiktok.com/@cook/video/7312", Options{WantTranscript: true})
	require.NoError(t, err)
	require.Nil(t, res.Transcript)
}

func TestExtract_Download_DiscoversMediaAndSubtitles(t *testing.T) {
	// Simulate the download by materializing the files yt-dlp would write.
	tool := &fakeTool{
		onDownload: func(destDir string) {
			info := map[string]any{
				"id": "7312", "title": "pasta hack", "extractor_key": "TikTok", "duration": 42,
			}
			raw, _ := json.Marshal(info)
			_ = os.WriteFile(filepath.Join(destDir, "tiktok_7312.info.json"), raw, 0o644)
			_ = os.WriteFile(filepath.Join(destDir, "tiktok_7312.mp4"), []byte("media"), 0o644)
			_ = os.WriteFile(filepath.Join(destDir, "tiktok_7312.en.vtt"), []byte("WEBVTT\n\n00:00.000 --> 00:02.000\nboil the water"), 0o644)
		},
	}
	a := NewAdapter(tool, t.TempDir())

	res, err := a.Extract(context.Background(), "https://tiktok.com/@cook/video/7312", Options{DownloadVideo: true, WantTranscript: true})
	require.NoError(t, err)
	require.Equal(t, "tiktok", res.Platform)
	require.NotNil(t, res.MediaPath)
	require.FileExists(t, *res.MediaPath)
	require.NotNil(t, res.Transcript)
	require.Contains(t, *res.Transcript, "boil the water")
}

func TestExtract_DownloadFailure(t *testing.T) {
	a := NewAdapter(&fakeTool{downloadErr: errors.New("network down")}, t.TempDir())

	_, err := a.Extract(context.Background(), "https://tiktok.com/@cook/video/7312", Options{DownloadVideo: true})
	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
}

func TestBestThumbnail_PrefersResolutionAndFormat(t *testing.T) {
	info := &ytdlp.Info{
		Thumbnail: "https://t/fallback.png",
		Thumbnails: []ytdlp.Thumbnail{
			{URL: "https://t/small.jpg", Width: 100, Height: 100},
			{URL: "https://t/large-blur.jpg", Width: 1000, Height: 1000},
			{URL: "https://t/large.jpg", Width: 720, Height: 1280},
		},
	}
	require.Equal(t, "https://t/large.jpg", BestThumbnail(info))
}

func TestBestThumbnail_FallsBackToSingleField(t *testing.T) {
	info := &ytdlp.Info{Thumbnail: "https://t/only.jpg"}
	require.Equal(t, "https://t/only.jpg", BestThumbnail(info))
}
