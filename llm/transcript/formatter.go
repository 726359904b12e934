// Package transcript flattens a multi-turn conversation into the single text
// block that line-oriented CLIs read from stdin.
package transcript

import (
	"strings"

	"github.com/BaSui01/localroute/llm"
)

// Transcript is the flattened conversation. It is produced once by Format.
type Transcript string

func (t Transcript) String() string { return string(t) }

// Role markers.
const (
	SystemMarker    = "System:"
	HumanMarker     = "Human:"
	AssistantMarker = "Assistant:"

	blockSeparator = "\n\n"
)

// Format renders system (optional) and turns as labeled blocks separated by
// a blank line, in input order, ending with an open "Assistant:" marker.
//
// An assistant turn with empty content at the end is treated as the open
// marker itself, so callers that pre-seed the reply slot do not get two.
func Format(turns []llm.Turn, system string) Transcript {
	blocks := make([]string, 0, len(turns)+2)

	if s := Sanitize(system); strings.TrimSpace(s) != "" {
		blocks = append(blocks, block(SystemMarker, s))
	}

	for i, turn := range turns {
		content := Sanitize(turn.Content)
		if i == len(turns)-1 && turn.Role == llm.RoleAssistant && strings.TrimSpace(content) == "" {
			break
		}
		blocks = append(blocks, block(markerFor(turn.Role), content))
	}

	blocks = append(blocks, AssistantMarker)
	return Transcript(strings.Join(blocks, blockSeparator))
}

// Prompt normalises a legacy completion prompt so it ends with the open
// assistant marker.
func Prompt(prompt string) Transcript {
	p := strings.TrimRight(Sanitize(prompt), " \t\r\n")
	if strings.HasSuffix(p, AssistantMarker) {
		return Transcript(p)
	}
	if p == "" {
		return Transcript(AssistantMarker)
	}
	return Transcript(p + blockSeparator + AssistantMarker)
}

// Sanitize strips NUL bytes and trailing newlines. Leading whitespace is
// content (indented code) and is kept.
func Sanitize(s string) string {
	if strings.IndexByte(s, 0) >= 0 {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	return strings.TrimRight(s, "\r\n")
}

func markerFor(role llm.Role) string {
	switch role {
	case llm.RoleAssistant:
		return AssistantMarker
	case llm.RoleSystem:
		return SystemMarker
	default:
		return HumanMarker
	}
}

func block(marker, content string) string {
	if content == "" {
		return marker
	}
	return marker + " " + content
}
