// Package segment splits free-form French event descriptions into
// sentence-aligned chunks of bounded length.
//
// Sentence detection is rule based: terminal punctuation followed by
// whitespace ends a sentence unless the token before it is a known
// abbreviation or a single-letter initial. Case is not consulted, so text
// typed entirely in lower case still splits. Line breaks always end a
// sentence. Lengths are counted in Unicode code points so accented text is
// measured the way a reader sees it.
package segment

import (
	"iter"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChars is the chunk bound used by the document builder.
const DefaultMaxChars = 500

// abbreviations holds lower-cased tokens that end with a period without
// ending the sentence.
var abbreviations = map[string]bool{
	"m": true, "mm": true, "mme": true, "mmes": true, "mlle": true, "mlles": true,
	"dr": true, "pr": true, "me": true, "mgr": true,
	"st": true, "ste": true, "av": true, "bd": true, "boul": true, "pl": true,
	"n°": true, "no": true, "env": true, "cf": true, "ex": true, "p": true,
	"pp": true, "hab": true, "min": true, "max": true, "tél": true, "tel": true,
	"etc": true, "vol": true, "éd": true, "ed": true, "coll": true, "dir": true,
	"fig": true, "chap": true, "art": true, "réf": true, "ref": true,
	"jan": true, "janv": true, "fév": true, "févr": true, "avr": true,
	"juil": true, "sept": true, "oct": true, "nov": true, "déc": true,
	"mr": true, "mrs": true, "ms": true, "vs": true, "approx": true,
}

// closers may trail terminal punctuation and still belong to the sentence.
const closers = "»”’\"')]"

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isLineBreak(r rune) bool {
	return r == '\n' || r == '\r' || r == '\u2028' || r == '\u2029'
}

// Sentences returns the trimmed, non-empty sentences of text in order.
func Sentences(text string) []string {
	runes := []rune(text)
	var out []string
	emit := func(from, to int) {
		s := strings.TrimSpace(string(runes[from:to]))
		if s != "" {
			out = append(out, s)
		}
	}

	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if isLineBreak(r) {
			emit(start, i)
			start = i + 1
			continue
		}
		if !isTerminal(r) {
			continue
		}

		end := i
		for end < len(runes) && isTerminal(runes[end]) {
			end++
		}
		// "« Quoi ? »" keeps the closing guillemet with its sentence.
		peek := end
		for peek < len(runes) && (runes[peek] == ' ' || runes[peek] == '\u00a0') {
			peek++
		}
		if peek < len(runes) && strings.ContainsRune(closers, runes[peek]) {
			after := peek
			for after < len(runes) && strings.ContainsRune(closers, runes[after]) {
				after++
			}
			if after == len(runes) || unicode.IsSpace(runes[after]) {
				end = after
			}
		}

		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			i = end - 1
			continue
		}
		if end-i == 1 && runes[i] == '.' && isAbbreviation(runes[start:i]) {
			i = end - 1
			continue
		}
		emit(start, end)
		start = end
		i = end - 1
	}
	emit(start, len(runes))
	return out
}

// isAbbreviation reports whether the word closing prefix is an abbreviation
// or an initial such as the "J" of "J. Dupont".
func isAbbreviation(prefix []rune) bool {
	j := len(prefix)
	for j > 0 && (unicode.IsLetter(prefix[j-1]) || prefix[j-1] == '°') {
		j--
	}
	word := prefix[j:]
	if len(word) == 0 {
		return false
	}
	if len(word) == 1 && unicode.IsUpper(word[0]) {
		return true
	}
	return abbreviations[strings.ToLower(string(word))]
}

// Chunks greedily packs the sentences of text into chunks of at most
// maxChars code points. A sentence is appended to the current chunk when
// the chunk length plus one separating space plus the sentence still fits;
// otherwise the chunk is yielded and a new one starts with that sentence.
// A single sentence longer than maxChars becomes its own chunk. A
// non-positive maxChars disables the bound.
func Chunks(text string, maxChars int) iter.Seq[string] {
	sentences := Sentences(text)
	return func(yield func(string) bool) {
		var buf strings.Builder
		n := 0
		for _, s := range sentences {
			l := utf8.RuneCountInString(s)
			switch {
			case n == 0:
				buf.WriteString(s)
				n = l
			case maxChars <= 0 || n+1+l <= maxChars:
				buf.WriteByte(' ')
				buf.WriteString(s)
				n += 1 + l
			default:
				if !yield(buf.String()) {
					return
				}
				buf.Reset()
				buf.WriteString(s)
				n = l
			}
		}
		if n > 0 {
			yield(buf.String())
		}
	}
}

// Segment collects [Chunks] into a slice.
func Segment(text string, maxChars int) []string {
	return slices.Collect(Chunks(text, maxChars))
}
