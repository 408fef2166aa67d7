package docx

import "strings"

// element is a located XML element inside a part, including its open and close
// tags. start/end are byte offsets into the part content.
type element struct {
	start int
	end   int
}

// findElement locates the nth (0-based) occurrence of a WordprocessingML
// element with the given local tag, starting at offset. It handles nested
// elements of the same tag by depth counting and treats self-closing tags as
// complete elements. Returns ok=false when no such element exists.
func findElement(content, tag string, offset int) (element, bool) {
	openPrefix := "<" + tag
	closeTag := "</" + tag + ">"

	start := findTag(content, openPrefix, offset)
	if start < 0 {
		return element{}, false
	}

	// Self-closing open tag has no body.
	gt := strings.Index(content[start:], ">")
	if gt < 0 {
		return element{}, false
	}
	if content[start+gt-1] == '/' {
		return element{start: start, end: start + gt + 1}, true
	}

	depth := 1
	pos := start + gt + 1
	for depth > 0 {
		nextOpen := findTag(content, openPrefix, pos)
		nextClose := strings.Index(content[pos:], closeTag)
		if nextClose < 0 {
			return element{}, false
		}
		nextClose += pos

		if nextOpen >= 0 && nextOpen < nextClose {
			gt := strings.Index(content[nextOpen:], ">")
			if gt < 0 {
				return element{}, false
			}
			if content[nextOpen+gt-1] != '/' {
				depth++
			}
			pos = nextOpen + gt + 1
			continue
		}

		depth--
		pos = nextClose + len(closeTag)
	}
	return element{start: start, end: pos}, true
}

// findTag finds the next occurrence of an open tag prefix that is an actual
// tag boundary: the prefix must be followed by '>', '/' or whitespace so that
// searching for "<w:tbl" never matches "<w:tblPr".
func findTag(content, openPrefix string, offset int) int {
	for {
		idx := strings.Index(content[offset:], openPrefix)
		if idx < 0 {
			return -1
		}
		idx += offset
		after := idx + len(openPrefix)
		if after >= len(content) {
			return -1
		}
		switch content[after] {
		case '>', '/', ' ', '\t', '\r', '\n':
			return idx
		}
		offset = after
	}
}
