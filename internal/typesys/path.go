package typesys

import "strings"

// SplitPath splits a dotted access path into segments. Dots nested inside
// <...>, (...) or [...] do not split, so "a.Get<X.Y>().b" yields
// ["a", "Get<X.Y>()", "b"]. A leading "this." or "base." is dropped and
// null-conditional "?." separators are treated as plain dots.
func SplitPath(text string) []string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "?.", ".")
	var (
		segs  []string
		depth int
		start int
	)
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '<', '(', '[':
			depth++
		case '>', ')', ']':
			if depth > 0 {
				depth--
			}
		case '.':
			if depth == 0 {
				segs = appendSegment(segs, text[start:i])
				start = i + 1
			}
		}
	}
	segs = appendSegment(segs, text[start:])
	if len(segs) > 1 && (segs[0] == "this" || segs[0] == "base") {
		segs = segs[1:]
	}
	return segs
}

func appendSegment(segs []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return segs
	}
	return append(segs, s)
}

// SegmentName strips call parentheses, indexers and generic arguments from
// one path segment: "Get<T>()" becomes "Get".
func SegmentName(seg string) string {
	if i := strings.IndexAny(seg, "<(["); i >= 0 {
		seg = seg[:i]
	}
	return strings.TrimSuffix(strings.TrimSpace(seg), "?")
}

// FirstGenericArgument returns the first top-level type argument of the
// first <...> group in text, with its own nesting preserved:
// "Get<Dictionary<A, B>, C>()" yields "Dictionary<A, B>".
func FirstGenericArgument(text string) (string, bool) {
	open := strings.IndexByte(text, '<')
	if open < 0 {
		return "", false
	}
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				return firstTopLevelArg(text[open+1 : i])
			}
		}
	}
	return "", false
}

func firstTopLevelArg(args string) (string, bool) {
	depth := 0
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case '<', '(', '[':
			depth++
		case '>', ')', ']':
			depth--
		case ',':
			if depth == 0 {
				return trimmedArg(args[:i])
			}
		}
	}
	return trimmedArg(args)
}

func trimmedArg(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}
