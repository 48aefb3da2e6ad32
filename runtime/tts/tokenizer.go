package tts

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMinSentenceLen is the shortest piece of text synthesized on its own.
const DefaultMinSentenceLen = 2

// abbreviations never end a sentence.
var abbreviations = map[string]struct{}{
	"mr.": {}, "mrs.": {}, "ms.": {}, "dr.": {}, "st.": {}, "vs.": {}, "e.g.": {}, "i.e.": {},
}

// SentenceTokenizer splits text at sentence boundaries. Sentences shorter
// than MinSentenceLen characters are merged into the following one.
type SentenceTokenizer struct {
	MinSentenceLen int
}

// Split returns the trimmed sentences of text in order.
func (t SentenceTokenizer) Split(text string) []string {
	var raw []string
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i + utf8.RuneLen(r)
		if end < len(text) {
			next, _ := utf8.DecodeRuneInString(text[end:])
			if !unicode.IsSpace(next) {
				continue
			}
		}
		candidate := strings.TrimSpace(text[start:end])
		if r == '.' && isAbbreviation(candidate) {
			continue
		}
		if candidate != "" {
			raw = append(raw, candidate)
		}
		start = end
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		raw = append(raw, rest)
	}

	return t.merge(raw)
}

func (t SentenceTokenizer) merge(raw []string) []string {
	if t.MinSentenceLen <= 1 || len(raw) < 2 {
		return raw
	}

	out := make([]string, 0, len(raw))
	var pending string
	for _, s := range raw {
		if pending != "" {
			s = pending + " " + s
			pending = ""
		}
		if utf8.RuneCountInString(s) < t.MinSentenceLen {
			pending = s
			continue
		}
		out = append(out, s)
	}
	if pending != "" {
		if len(out) == 0 {
			return []string{pending}
		}
		out[len(out)-1] += " " + pending
	}
	return out
}

func isAbbreviation(sentence string) bool {
	idx := strings.LastIndexFunc(sentence, unicode.IsSpace)
	word := strings.ToLower(sentence[idx+1:])
	_, ok := abbreviations[word]
	return ok
}
