package pipeline

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// transcriptMaxLen bounds how much transcript text flows into analysis and
// embedding. Short-form videos rarely come close; auto-generated captions with
// heavy duplication can.
const transcriptMaxLen = 8000

var (
	cueTimestampRe = regexp.MustCompile(`^\s*(\d{1,2}:)?\d{2}:\d{2}[.,]\d{3}\s+-->\s+(\d{1,2}:)?\d{2}:\d{2}[.,]\d{3}`)
	inlineTagRe    = regexp.MustCompile(`<[^>]*>|\{[^}]*\}`)
	srtIndexRe     = regexp.MustCompile(`^\s*\d+\s*$`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// CleanTranscript normalizes raw subtitle or speech-to-text output into plain
// prose: drops WEBVTT/SRT cue machinery and inline markup, collapses
// whitespace, deduplicates consecutive identical lines (auto-captions repeat
// the same line across overlapping cues) and truncates to a bounded length.
func CleanTranscript(raw string) string {
	text := norm.NFC.String(raw)

	var lines []string
	prev := ""
	for _, line := range strings.Split(text, "\n") {
		line = inlineTagRe.ReplaceAllString(line, "")
		line = whitespaceRe.ReplaceAllString(line, " ")
		line = strings.TrimSpace(line)

		if line == "" || srtIndexRe.MatchString(line) || cueTimestampRe.MatchString(line) {
			continue
		}
		if line == "WEBVTT" || strings.HasPrefix(line, "Kind:") || strings.HasPrefix(line, "Language:") || strings.HasPrefix(line, "NOTE ") || line == "NOTE" || strings.HasPrefix(line, "STYLE") {
			continue
		}
		if line == prev {
			continue
		}

		lines = append(lines, line)
		prev = line
	}

	out := strings.Join(lines, "\n")
	if len(out) > transcriptMaxLen {
		// Cut on a rune boundary so the bounded text stays valid UTF-8.
		cut := transcriptMaxLen
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
	}
	return out
}
