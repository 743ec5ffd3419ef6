package whisper

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranscribe_ReturnsTrimmedText(t *testing.T) {
	c := New()
	c.ModelPath = "/models/ggml-base.bin"
	var gotArgs []string
	c.execFn = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		gotArgs = args
		return []byte(" add the pasta to boiling water \n"), nil, nil
	}

	text, err := c.Transcribe(context.Background(), "/spool/a.wav")
	require.NoError(t, err)
	require.Equal(t, "add the pasta to boiling water", text)

	joined := strings.Join(gotArgs, " ")
	require.Contains(t, joined, "--model /models/ggml-base.bin")
	require.Contains(t, joined, "--file /spool/a.wav")
	require.Contains(t, joined, "--no-timestamps")
}

func TestTranscribe_NoSpeechIsNotAnError(t *testing.T) {
	c := New()
	c.execFn = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte("   \n"), nil, nil
	}

	text, err := c.Transcribe(context.Background(), "/spool/silent.wav")
	require.NoError(t, err)
	require.Empty(t, text)
}

func TestTranscribe_WrapsExecError(t *testing.T) {
	c := New()
	c.execFn = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("failed to load model"), errors.New("boom")
	}

	_, err := c.Transcribe(context.Background(), "/spool/a.wav")
	require.Error(t, err)
	var ee *ExecError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, "failed to load model", ee.Stderr)
}

func TestTranscribe_EmptyPath(t *testing.T) {
	c := New()
	_, err := c.Transcribe(context.Background(), "")
	require.Error(t, err)
}
