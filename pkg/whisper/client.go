// Package whisper shells out to whisper.cpp's whisper-cli for speech-to-text.
package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

type ExecError struct {
	Cmd      string
	Args     []string
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *ExecError) Error() string {
	cmdline := strings.TrimSpace(e.Cmd + " " + strings.Join(e.Args, " "))
	if e.ExitCode != 0 {
		return fmt.Sprintf("whisper: command failed (exit %d): %s", e.ExitCode, cmdline)
	}
	return fmt.Sprintf("whisper: command failed: %s", cmdline)
}

func (e *ExecError) Unwrap() error { return e.Cause }

type Client struct {
	// Path to the whisper-cli executable. Defaults to "whisper-cli" (PATH lookup).
	Path string

	// ModelPath points at the ggml model file. Required for real runs.
	ModelPath string

	execFn func(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)
}

func New() *Client {
	return &Client{Path: "whisper-cli"}
}

// PathOrDefault returns the configured path or "whisper-cli" if unset.
func (c *Client) PathOrDefault() string {
	if strings.TrimSpace(c.Path) == "" {
		return "whisper-cli"
	}
	return c.Path
}

// Transcribe runs speech-to-text over a 16 kHz mono wav file and returns the
// raw transcript text. An empty transcript ("no speech detected") is not an
// error; only transport/tool failures are.
func (c *Client) Transcribe(ctx context.Context, wavPath string) (string, error) {
	if strings.TrimSpace(wavPath) == "" {
		return "", fmt.Errorf("whisper: wavPath is required")
	}

	args := []string{
		"--no-prints",
		"--no-timestamps",
		"--language", "auto",
	}
	if strings.TrimSpace(c.ModelPath) != "" {
		args = append(args, "--model", c.ModelPath)
	}
	args = append(args, "--file", wavPath)

	stdout, stderr, err := c.exec(ctx, args...)
	if err != nil {
		return "", wrapExecError(c.PathOrDefault(), args, stderr, err)
	}

	text := strings.TrimSpace(string(stdout))
	if text == "" {
		slog.Debug("whisper: no speech detected", "wav", wavPath)
	}
	return text, nil
}

func (c *Client) exec(ctx context.Context, args ...string) (stdout []byte, stderr []byte, err error) {
	name := c.PathOrDefault()

	if c.execFn != nil {
		return c.execFn(ctx, name, args...)
	}

	slog.Debug("whisper: executing command", "cmd", name, "args", args)
	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

func wrapExecError(cmd string, args []string, stderr []byte, cause error) error {
	exitCode := 0
	var ee *exec.ExitError
	if errors.As(cause, &ee) {
		exitCode = ee.ExitCode()
	}

	return &ExecError{
		Cmd:      cmd,
		Args:     args,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(string(stderr)),
		Cause:    cause,
	}
}
