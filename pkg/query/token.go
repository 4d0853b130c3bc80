package query

import "strings"

// tokenKind distinguishes plain words from key:value openers.
type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenKey
)

// token is a single whitespace-delimited chunk of the raw query. A key
// token is any chunk whose first colon is preceded by at least one
// character; key holds the part before the colon, rest the part after.
type token struct {
	kind tokenKind
	text string
	key  string
	rest string
}

// lex splits the raw query into tokens. It never fails; every chunk is
// either a word or a key opener.
func lex(raw string) []token {
	fields := strings.Fields(raw)
	tokens := make([]token, 0, len(fields))
	for _, f := range fields {
		idx := strings.Index(f, ":")
		if idx > 0 {
			tokens = append(tokens, token{
				kind: tokenKey,
				text: f,
				key:  f[:idx],
				rest: f[idx+1:],
			})
			continue
		}
		tokens = append(tokens, token{kind: tokenWord, text: f})
	}
	return tokens
}
