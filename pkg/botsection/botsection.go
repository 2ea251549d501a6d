// Package botsection implements the bot-section sub-protocol: locating
// and replacing a delimited, machine-owned region inside an otherwise
// human-edited wiki page, while maintaining a monotonic update counter
// that defeats the wiki's revert-detection heuristic.
package botsection

import (
	"strconv"
	"strings"
)

// Flags control Replace's behavior.
type Flags uint8

const (
	// MustExist fails Replace if the page has no opening marker.
	MustExist Flags = 1 << iota
	// Compact suppresses the blank line normally inserted around the
	// body.
	Compact
	// UpdateCounter increments and stamps the "update #N" comment.
	UpdateCounter
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// maxCounter is 2^63, the exclusive upper bound from the spec's marker
// grammar; values outside [0, maxCounter) are treated as absent.
const maxCounter = 1 << 63

// ParseResult is the outcome of Parse.
type ParseResult struct {
	Prefix         string
	Body           string
	Suffix         string
	HasBeginMarker bool
	HasEndMarker   bool
	UpdateCounter  uint64

	// beginText/endText hold the verbatim marker comments when present,
	// so Replace can preserve whichever language variant the page
	// already used instead of forcing the English one.
	beginText string
	endText   string
}

var beginBodies = []string{"BEGIN BOT SECTION", "DÉBUT DE LA ZONE DE TRAVAIL DU BOT"}
var endBodies = []string{"END BOT SECTION", "FIN DE LA ZONE DE TRAVAIL DU BOT"}

// comment is a located <!-- ... --> span.
type comment struct {
	start, end int // end is exclusive, one past the closing "-->"
	body       string
}

// findComment returns the earliest comment starting at or after from
// whose trimmed, upper-cased body is in wantBodies. If multiple "<!--"
// precede a "-->", the opener closest to the "-->" is used, matching
// the original's tolerance for malformed/nested-looking input.
func findComment(code string, from int, wantBodies []string) (comment, bool) {
	search := code[from:]
	closeRel := strings.Index(search, "-->")
	for closeRel >= 0 {
		closeAbs := from + closeRel
		openAbs := strings.LastIndex(code[from:closeAbs], "<!--")
		if openAbs < 0 {
			// No opener before this closer in range; move past it.
			next := strings.Index(code[closeAbs+3:], "-->")
			if next < 0 {
				return comment{}, false
			}
			closeRel = closeAbs + 3 + next - from
			continue
		}
		openAbs += from
		body := strings.ToUpper(strings.TrimSpace(code[openAbs+4 : closeAbs]))
		for _, want := range wantBodies {
			if body == want {
				return comment{start: openAbs, end: closeAbs + 3, body: body}, true
			}
		}
		// Not a match: resume searching after this closer.
		next := strings.Index(code[closeAbs+3:], "-->")
		if next < 0 {
			return comment{}, false
		}
		closeRel = closeAbs + 3 + next - from
	}
	return comment{}, false
}

// parseUpdateCounter inspects the comment immediately following pos (at
// most separated by whitespace-free adjacency, matching the original's
// "directly following" rule) and returns the counter plus how far past
// it parsing should resume.
func parseUpdateCounter(code string, pos int) (counter uint64, next int) {
	if !strings.HasPrefix(code[pos:], "<!--") {
		return 0, pos
	}
	closeRel := strings.Index(code[pos:], "-->")
	if closeRel < 0 {
		return 0, pos
	}
	closeAbs := pos + closeRel
	body := strings.TrimSpace(code[pos+4 : closeAbs])
	upper := strings.ToUpper(body)
	if !strings.HasPrefix(upper, "UPDATE #") {
		return 0, pos
	}
	digits := strings.TrimSpace(upper[len("UPDATE #"):])
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil || n >= maxCounter {
		return 0, closeAbs + 3
	}
	return n, closeAbs + 3
}

// Parse locates the bot section within code.
func Parse(code string) ParseResult {
	begin, hasBegin := findComment(code, 0, beginBodies)
	if !hasBegin {
		return ParseResult{Prefix: code}
	}
	counter, afterCounter := parseUpdateCounter(code, begin.end)
	bodyStart := afterCounter
	beginText := code[begin.start:begin.end]

	end, hasEnd := findComment(code, bodyStart, endBodies)
	if !hasEnd {
		return ParseResult{
			Prefix:         code[:begin.start],
			Body:           code[bodyStart:],
			Suffix:         "",
			HasBeginMarker: true,
			HasEndMarker:   false,
			UpdateCounter:  counter,
			beginText:      beginText,
		}
	}
	return ParseResult{
		Prefix:         code[:begin.start],
		Body:           code[bodyStart:end.start],
		Suffix:         code[end.end:],
		HasBeginMarker: true,
		HasEndMarker:   true,
		UpdateCounter:  counter,
		beginText:      beginText,
		endText:        code[end.start:end.end],
	}
}

// stripBoilerplate removes the normalization Replace applies around the
// body so it can compare the stored body with newBody for a no-op
// write, exactly mirroring the padding Replace itself would add.
func stripBoilerplate(body, newBody string, flags Flags) string {
	if flags.has(Compact) {
		return body
	}
	s := body
	s = strings.TrimPrefix(s, "\n")
	if !strings.HasSuffix(newBody, "\n") {
		s = strings.TrimSuffix(s, "\n")
	}
	return s
}

// Replace rebuilds code with its bot section set to newBody, returning
// the new page text and whether MustExist failed.
func Replace(code, newBody string, flags Flags) (result string, ok bool) {
	parsed := Parse(code)
	if flags.has(MustExist) && !parsed.HasBeginMarker {
		return code, false
	}

	changed := stripBoilerplate(parsed.Body, newBody, flags) != newBody
	if !changed && flags.has(UpdateCounter) {
		return code, true
	}

	var b strings.Builder
	b.WriteString(parsed.Prefix)
	if !parsed.HasBeginMarker && parsed.Prefix != "" && !strings.HasSuffix(parsed.Prefix, "\n") {
		b.WriteString("\n")
	}
	if parsed.HasBeginMarker {
		b.WriteString(parsed.beginText)
	} else {
		b.WriteString("<!-- BEGIN BOT SECTION -->")
	}
	if flags.has(UpdateCounter) {
		next := parsed.UpdateCounter + 1
		if parsed.UpdateCounter >= maxCounter {
			next = 1
		}
		b.WriteString("<!-- update #")
		b.WriteString(strconv.FormatUint(next, 10))
		b.WriteString(" -->")
	}
	if !flags.has(Compact) {
		b.WriteString("\n")
	}
	b.WriteString(newBody)
	if !flags.has(Compact) && !strings.HasSuffix(newBody, "\n") {
		b.WriteString("\n")
	}
	if parsed.HasEndMarker {
		b.WriteString(parsed.endText)
	} else {
		b.WriteString("<!-- END BOT SECTION -->")
	}
	b.WriteString(parsed.Suffix)
	return b.String(), true
}
