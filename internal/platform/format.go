package platform

import (
	"regexp"
	"strings"
)

// MrkdwnFormatter converts common markdown constructs to Slack mrkdwn.
// Code fences and inline code pass through untouched.
type MrkdwnFormatter struct{}

var (
	boldRe    = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	linkRe    = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	headingRe = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
)

func (MrkdwnFormatter) Format(text string) string {
	if text == "" {
		return text
	}
	var out strings.Builder
	inFence := false
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			out.WriteString(line)
		} else if inFence {
			out.WriteString(line)
		} else {
			out.WriteString(formatLine(line))
		}
		if i < len(lines)-1 {
			out.WriteByte('\n')
		}
	}
	return out.String()
}

func formatLine(line string) string {
	line = headingRe.ReplaceAllString(line, "*$2*")
	line = boldRe.ReplaceAllString(line, "*$1*")
	line = linkRe.ReplaceAllString(line, "<$2|$1>")
	return line
}

// PassthroughFormatter leaves text untouched. Used in tests and for
// platforms that accept plain markdown.
type PassthroughFormatter struct{}

func (PassthroughFormatter) Format(text string) string { return text }
