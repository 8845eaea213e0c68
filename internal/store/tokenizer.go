package store

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenizeCode is the analyzer shared by both keyword backends, the static
// embedder and snippet highlighting. Words are runs of letters, digits and
// underscores; identifiers are split on underscores and case changes; every
// token is lowercased. Single ASCII runes are dropped, single letters of
// other scripts such as CJK are kept.
func TokenizeCode(text string) []string {
	var tokens []string
	for _, word := range strings.FieldsFunc(text, isWordBreak) {
		for _, part := range SplitCodeToken(word) {
			if t := strings.ToLower(part); keepToken(t) {
				tokens = append(tokens, t)
			}
		}
	}
	return tokens
}

func isWordBreak(r rune) bool {
	return r != '_' && !unicode.IsLetter(r) && !unicode.IsNumber(r)
}

func keepToken(t string) bool {
	r, size := utf8.DecodeRuneInString(t)
	return size < len(t) || (r > unicode.MaxASCII && unicode.IsLetter(r))
}

// SplitCodeToken splits a snake_case or camelCase identifier into words.
func SplitCodeToken(token string) []string {
	var words []string
	for _, part := range strings.FieldsFunc(token, func(r rune) bool { return r == '_' }) {
		words = append(words, SplitCamelCase(part)...)
	}
	return words
}

// SplitCamelCase cuts before an upper-case rune that follows a lower-case
// one or starts a lower-case run, so "parseHTTPRequest" yields
// "parse", "HTTP", "Request".
func SplitCamelCase(s string) []string {
	runes := []rune(s)
	words := []string{}
	start := 0
	for i := 1; i < len(runes); i++ {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		if unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1])) {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	if start < len(runes) {
		words = append(words, string(runes[start:]))
	}
	return words
}

// FilterStopWords returns tokens without the members of stopWords, compared
// case-insensitively. tokens is not modified.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	return slices.DeleteFunc(slices.Clone(tokens), func(t string) bool {
		_, stop := stopWords[strings.ToLower(t)]
		return stop
	})
}

// BuildStopWordMap lowercases words into a lookup set.
func BuildStopWordMap(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

// analyze is TokenizeCode followed by FilterStopWords.
func analyze(text string, stopWords map[string]struct{}) []string {
	return FilterStopWords(TokenizeCode(text), stopWords)
}
