package breaker

import (
	"strings"
	"testing"
)

func TestFenceStateOutside(t *testing.T) {
	text := "hello\n```go\ncode\n```\nworld\n"
	if st := FenceState(text, 3); st.Open {
		t.Fatal("position before fence should not be open")
	}
	if st := FenceState(text, len(text)); st.Open {
		t.Fatal("position after closed fence should not be open")
	}
}

func TestFenceStateInside(t *testing.T) {
	text := "hello\n```go\ncode line\nmore\n"
	st := FenceState(text, len(text))
	if !st.Open {
		t.Fatal("expected open fence")
	}
	if st.Lang != "go" {
		t.Fatalf("lang = %q, want go", st.Lang)
	}
	if st.OpenOffset != 6 {
		t.Fatalf("open offset = %d, want 6", st.OpenOffset)
	}
}

func TestFenceStateOnOpeningLine(t *testing.T) {
	text := "```go\ncode\n"
	if st := FenceState(text, 0); st.Open {
		t.Fatal("position at fence opening line is not inside the fence")
	}
}

func TestFindBreakpointPrefersToolMarker(t *testing.T) {
	text := "some output\n✓ Read finished\nmore text\n\nnext paragraph\n"
	pos, kind := FindBreakpoint(text, 0, len(text))
	if kind != BreakToolMarker {
		t.Fatalf("kind = %v, want tool marker", kind)
	}
	if !strings.HasSuffix(text[:pos], "✓ Read finished\n") {
		t.Fatalf("unexpected head %q", text[:pos])
	}
}

func TestFindBreakpointPrefersHeadingOverParagraph(t *testing.T) {
	text := "intro text\n\nmiddle\n## Section\nbody\n"
	pos, kind := FindBreakpoint(text, 0, len(text))
	if kind != BreakHeading {
		t.Fatalf("kind = %v, want heading", kind)
	}
	if !strings.HasPrefix(text[pos:], "## Section") {
		t.Fatalf("tail should start at heading, got %q", text[pos:])
	}
}

func TestFindBreakpointNeverInsideFence(t *testing.T) {
	text := "para one\n\n```go\nline1\nline2\nline3\n```\ntrailing\n"
	for from := 0; from < len(text); from++ {
		pos, kind := FindBreakpoint(text, from, len(text))
		if kind == BreakNone {
			continue
		}
		if st := FenceState(text, pos); st.Open {
			t.Fatalf("from=%d: breakpoint %d (%v) inside open fence", from, pos, kind)
		}
	}
}

func TestFindBreakpointFromOpeningFenceLine(t *testing.T) {
	text := "para one\n\n```go\nline1\nline2\n```\ntail\n"
	open := strings.Index(text, "```go")
	// Every position on the opening marker line past its start is inside
	// the fence; the only acceptable break is after the real close.
	for from := open + 1; from < open+len("```go\n"); from++ {
		pos, kind := FindBreakpoint(text, from, len(text))
		if kind != BreakFenceClose {
			t.Fatalf("from=%d: kind = %v, want fence close", from, kind)
		}
		if !strings.HasPrefix(text[pos:], "tail") {
			t.Fatalf("from=%d: tail = %q", from, text[pos:])
		}
	}
}

func TestFindBreakpointInsideFenceClosesIt(t *testing.T) {
	text := "```py\na = 1\nb = 2\n```\nafter\n"
	from := strings.Index(text, "b = 2")
	pos, kind := FindBreakpoint(text, from, len(text))
	if kind != BreakFenceClose {
		t.Fatalf("kind = %v, want fence close", kind)
	}
	if !strings.HasPrefix(text[pos:], "after") {
		t.Fatalf("tail = %q", text[pos:])
	}
}

func TestFindBreakpointInsideFenceNoClose(t *testing.T) {
	text := "```py\na = 1\nb = 2\nstill code\n"
	pos, kind := FindBreakpoint(text, 10, len(text))
	if kind != BreakNone || pos != 0 {
		t.Fatalf("got (%d, %v), want no safe break", pos, kind)
	}
}

func TestFindBreakpointRoundTrip(t *testing.T) {
	texts := []string{
		"alpha\nbeta\n\ngamma\ndelta\n",
		"# Title\nbody text\n```sh\nls -la\n```\ntail\n",
		"✓ Bash done\nfollow up\n",
	}
	for _, text := range texts {
		pos, kind := FindBreakpoint(text, 0, len(text))
		if kind == BreakNone {
			t.Fatalf("no breakpoint for %q", text)
		}
		if text[:pos]+text[pos:] != text {
			t.Fatalf("split at %d does not reconstruct input", pos)
		}
	}
}

func TestShouldBreakEarly(t *testing.T) {
	if ShouldBreakEarly("short", 100, 10) {
		t.Fatal("short text below thresholds must not break early")
	}
	if !ShouldBreakEarly(strings.Repeat("x", 101), 100, 10) {
		t.Fatal("expected break on char threshold")
	}
	if !ShouldBreakEarly(strings.Repeat("line\n", 11), 1000, 10) {
		t.Fatal("expected break on line threshold")
	}
	if ShouldBreakEarly(strings.Repeat("x", 500), 0, 0) {
		t.Fatal("zero thresholds disable early breaking")
	}
}

func TestBreakpointAtEnd(t *testing.T) {
	cases := []struct {
		text string
		want Kind
	}{
		{"text\n✓ Read (2s)\n", BreakToolMarker},
		{"```go\ncode\n```\n", BreakFenceClose},
		{"para\n\n", BreakParagraph},
		{"line\n", BreakNewline},
		{"mid sentence", BreakNone},
		{"```go\nopen fence\n", BreakNone},
	}
	for _, c := range cases {
		if got := BreakpointAtEnd(c.text); got != c.want {
			t.Errorf("BreakpointAtEnd(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}
