// Package breaker locates safe split points in streamed markdown content.
//
// All functions are pure. The rest of the renderer relies on one invariant:
// a returned breakpoint never lands inside an open code fence.
package breaker

import "strings"

// Kind classifies a breakpoint by the construct it falls on.
type Kind int

const (
	// BreakNone means no acceptable breakpoint was found.
	BreakNone Kind = iota
	// BreakToolMarker is the position after a tool-completion marker line.
	BreakToolMarker
	// BreakHeading is the position before a markdown heading line.
	BreakHeading
	// BreakFenceClose is the position after a closing code-fence line.
	BreakFenceClose
	// BreakParagraph is the position after a blank line.
	BreakParagraph
	// BreakNewline is the position after an arbitrary line end.
	BreakNewline
)

func (k Kind) String() string {
	switch k {
	case BreakToolMarker:
		return "tool_marker"
	case BreakHeading:
		return "heading"
	case BreakFenceClose:
		return "fence_close"
	case BreakParagraph:
		return "paragraph"
	case BreakNewline:
		return "newline"
	default:
		return "none"
	}
}

// Fence describes the code-fence state at a position in a text.
type Fence struct {
	Open       bool
	Lang       string
	OpenOffset int // byte offset of the start of the opening fence line
}

// Tool-completion marker glyphs emitted by the transformer.
const (
	ToolMarkerOK  = "✓"
	ToolMarkerErr = "✗"
)

func isFenceLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

func fenceLang(line string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "```"))
}

func isToolMarkerLine(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, ToolMarkerOK) || strings.HasPrefix(t, ToolMarkerErr)
}

func isHeadingLine(line string) bool {
	t := strings.TrimLeft(line, "#")
	return len(t) < len(line) && (t == "" || strings.HasPrefix(t, " "))
}

func isBlankLine(line string) bool {
	return strings.TrimSpace(line) == ""
}

// FenceState reports whether pos lies inside an open code fence, scanning
// fence markers from the start of text.
func FenceState(text string, pos int) Fence {
	if pos > len(text) {
		pos = len(text)
	}
	var st Fence
	off := 0
	for off < pos {
		nl := strings.IndexByte(text[off:], '\n')
		lineEnd := len(text)
		if nl >= 0 {
			lineEnd = off + nl
		}
		line := text[off:lineEnd]
		if isFenceLine(line) {
			if st.Open {
				st = Fence{}
			} else {
				st = Fence{Open: true, Lang: fenceLang(line), OpenOffset: off}
			}
		}
		if nl < 0 {
			break
		}
		off = lineEnd + 1
	}
	// A position on the opening fence line itself is not yet inside the fence.
	if st.Open && pos <= st.OpenOffset {
		st = Fence{}
	}
	return st
}

// FindBreakpoint returns the best split position in text[from:from+lookahead]
// and its kind. The returned position p splits text into text[:p] and
// text[p:]. If from is inside an open fence, only that fence's closing
// marker is acceptable; when none exists in the window, (0, BreakNone) is
// returned and the caller must widen the window or break before the fence
// opens (see Fence.OpenOffset).
func FindBreakpoint(text string, from, lookahead int) (int, Kind) {
	if from < 0 {
		from = 0
	}
	if from >= len(text) {
		return 0, BreakNone
	}
	end := from + lookahead
	if end > len(text) {
		end = len(text)
	}

	if st := FenceState(text, from); st.Open {
		return findFenceClose(text, from, end, st.OpenOffset)
	}

	// Track fence state while walking the window so every candidate is
	// validated against the fence-safety invariant. Within each priority
	// class the last candidate in the window wins (closest to the limit).
	var (
		toolMarker, heading, fenceClose, paragraph, newline int
	)
	inFence := false
	off := lineStart(text, from)
	for off < end {
		nl := strings.IndexByte(text[off:], '\n')
		lineEnd := len(text)
		if nl >= 0 {
			lineEnd = off + nl
		}
		line := text[off:lineEnd]
		after := lineEnd
		if nl >= 0 {
			after = lineEnd + 1
		}
		switch {
		case isFenceLine(line):
			if inFence {
				inFence = false
				if after > from && after <= end {
					fenceClose = after
				}
			} else {
				inFence = true
			}
		case inFence:
			// No candidates inside a fence.
		case isToolMarkerLine(line):
			if after > from && after <= end {
				toolMarker = after
			}
		case isHeadingLine(line):
			if off > from && off <= end {
				heading = off
			}
		case isBlankLine(line):
			if after > from && after <= end {
				paragraph = after
			}
		}
		if !inFence && nl >= 0 && after > from && after <= end {
			newline = after
		}
		if nl < 0 {
			break
		}
		off = after
	}

	switch {
	case toolMarker > 0:
		return toolMarker, BreakToolMarker
	case heading > 0:
		return heading, BreakHeading
	case fenceClose > 0:
		return fenceClose, BreakFenceClose
	case paragraph > 0:
		return paragraph, BreakParagraph
	case newline > 0:
		return newline, BreakNewline
	}
	return 0, BreakNone
}

func findFenceClose(text string, from, end, openOffset int) (int, Kind) {
	off := lineStart(text, from)
	// When from lands on the opening fence line itself, that marker must not
	// be mistaken for the close.
	if off == openOffset {
		nl := strings.IndexByte(text[off:], '\n')
		if nl < 0 {
			return 0, BreakNone
		}
		off += nl + 1
	}
	for off < end {
		nl := strings.IndexByte(text[off:], '\n')
		lineEnd := len(text)
		if nl >= 0 {
			lineEnd = off + nl
		}
		if isFenceLine(text[off:lineEnd]) {
			after := lineEnd
			if nl >= 0 {
				after = lineEnd + 1
			}
			if after > from && after <= end {
				return after, BreakFenceClose
			}
			return 0, BreakNone
		}
		if nl < 0 {
			break
		}
		off = lineEnd + 1
	}
	return 0, BreakNone
}

func lineStart(text string, pos int) int {
	if pos <= 0 {
		return 0
	}
	if i := strings.LastIndexByte(text[:pos], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}

// ShouldBreakEarly reports whether accumulated content is long or tall
// enough to pre-empt the platform's "show more" collapsing before the hard
// length limit is reached.
func ShouldBreakEarly(text string, softChars, softLines int) bool {
	if softChars > 0 && len(text) > softChars {
		return true
	}
	if softLines > 0 && strings.Count(text, "\n")+1 > softLines {
		return true
	}
	return false
}

// BreakpointAtEnd classifies the breakpoint kind the text already ends on.
func BreakpointAtEnd(text string) Kind {
	trimmed := strings.TrimRight(text, "\n")
	if trimmed == "" {
		return BreakNone
	}
	if FenceState(text, len(text)).Open {
		return BreakNone
	}
	last := trimmed[lineStart(trimmed, len(trimmed)):]
	hadNewline := len(text) > len(trimmed)
	switch {
	case isToolMarkerLine(last):
		return BreakToolMarker
	case isFenceLine(last):
		return BreakFenceClose
	case len(text) >= len(trimmed)+2:
		return BreakParagraph
	case hadNewline:
		return BreakNewline
	}
	return BreakNone
}
