package util

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reBoldDouble    = regexp.MustCompile(`\*\*\s*\[\[([^][]+)\]\]\s*\*\*`)
	reBoldSingle    = regexp.MustCompile(`\*\*\s*\[([^][]+)\]\s*\*\*`)
	reCitation      = regexp.MustCompile(`\[\[([^][]+)\]\]`)
	reCitationSep   = regexp.MustCompile(`\]\][\t ]+\[\[`)
	reCitationSpace = regexp.MustCompile(`[ \t]+([.,;:!?])`)
	reMultiSpace    = regexp.MustCompile(`[ \t]{2,}`)
)

// NormalizeCitations rewrites the citation markers models produce into the
// canonical [[id]] form: bold markers lose their asterisks, single brackets
// are upgraded (markdown links are left alone) and immediately repeated
// markers for the same id collapse into one.
func NormalizeCitations(s string) string {
	s = reBoldDouble.ReplaceAllString(s, "[[$1]]")
	s = reBoldSingle.ReplaceAllString(s, "[$1]")

	s = upgradeSingleBrackets(s)
	s = collapseRepeatedCitations(s)

	s = reCitationSep.ReplaceAllString(s, "]] [[")

	return s
}

// CitationIDs returns the ids cited in s in first-appearance order, without
// duplicates. Markers may carry several comma separated ids ([[S1, S2]]).
func CitationIDs(s string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, m := range reCitation.FindAllStringSubmatch(s, -1) {
		for part := range strings.SplitSeq(m[1], ",") {
			id := strings.TrimSpace(part)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// StripCitations removes every [[id]] marker and tidies the whitespace left
// behind.
func StripCitations(s string) string {
	s = reCitation.ReplaceAllString(s, "")
	s = reCitationSpace.ReplaceAllString(s, "$1")
	s = reMultiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func upgradeSingleBrackets(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '[' {
			b.WriteByte(s[i])
			i++
			continue
		}
		if i+1 < len(s) && s[i+1] == '[' {
			b.WriteString("[[")
			i += 2
			continue
		}
		j := i + 1
		nested := false
		for j < len(s) && s[j] != ']' {
			if s[j] == '[' {
				nested = true
			}
			j++
		}
		if j >= len(s) {
			b.WriteByte(s[i])
			i++
			continue
		}

		// markdown link: [text](url)
		if j+1 < len(s) && s[j+1] == '(' {
			b.WriteString(s[i : j+1])
			i = j + 1
			continue
		}
		if nested {
			b.WriteString(s[i : j+1])
			i = j + 1
			continue
		}
		b.WriteString("[[")
		b.WriteString(s[i+1 : j])
		b.WriteString("]]")
		i = j + 1
	}
	return b.String()
}

func collapseRepeatedCitations(s string) string {
	matches := reCitation.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	cursor := 0

	for mi := 0; mi < len(matches); mi++ {
		m := matches[mi]
		start, end := m[0], m[1]
		id := s[m[2]:m[3]]

		b.WriteString(s[cursor:start])

		runEnd := end
		next := mi + 1
		for next < len(matches) {
			sep := s[runEnd:matches[next][0]]
			if !onlySpaces(sep) {
				break
			}
			if s[matches[next][2]:matches[next][3]] != id {
				break
			}
			runEnd = matches[next][1]
			next++
		}

		b.WriteString(s[start:end])
		cursor = runEnd
		mi = next - 1
	}

	b.WriteString(s[cursor:])
	return b.String()
}

func onlySpaces(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) || r == '\n' || r == '\r' {
			return false
		}
	}
	return true
}
