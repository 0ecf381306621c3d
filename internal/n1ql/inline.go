package n1ql

import (
	"strings"

	"github.com/roach88/n1qlorm/internal/dberr"
)

// TokenKind classifies a run of statement text.
type TokenKind int

const (
	TokenRaw        TokenKind = iota // unquoted text; "?" is a placeholder here
	TokenIdentifier                  // `...`
	TokenSingle                      // '...'
	TokenDouble                      // "..."
)

// Token is a run of statement text of one kind.
type Token struct {
	Kind TokenKind
	Text string
}

// Tokenize splits statement text into raw runs and quoted runs. Quoted runs
// keep their delimiters. A doubled delimiter inside a quoted run is an
// escape; inside string literals a backslash escapes the next byte. An
// unterminated quoted run extends to the end of the text.
func Tokenize(text string) []Token {
	var (
		tokens []Token
		start  int
	)
	emit := func(kind TokenKind, end int) {
		if end > start {
			tokens = append(tokens, Token{Kind: kind, Text: text[start:end]})
		}
		start = end
	}

	for i := 0; i < len(text); {
		var kind TokenKind
		switch text[i] {
		case '`':
			kind = TokenIdentifier
		case '\'':
			kind = TokenSingle
		case '"':
			kind = TokenDouble
		default:
			i++
			continue
		}
		emit(TokenRaw, i)
		i = scanQuoted(text, i, kind != TokenIdentifier)
		emit(kind, i)
	}
	emit(TokenRaw, len(text))
	return tokens
}

// scanQuoted returns the index just past the quoted run opening at open.
func scanQuoted(text string, open int, backslash bool) int {
	delim := text[open]
	for i := open + 1; i < len(text); i++ {
		switch {
		case backslash && text[i] == '\\':
			i++
		case text[i] == delim:
			if i+1 < len(text) && text[i+1] == delim {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(text)
}

// ApplyBindings substitutes each "?" in raw text with the literal form of
// the next binding, left to right. Placeholders inside identifiers and
// string literals are left alone. The number of placeholders must equal the
// number of bindings.
func ApplyBindings(text string, bindings []any) (string, error) {
	var (
		b    strings.Builder
		next int
	)
	for _, tok := range Tokenize(text) {
		if tok.Kind != TokenRaw {
			b.WriteString(tok.Text)
			continue
		}
		for _, part := range strings.SplitAfter(tok.Text, "?") {
			if !strings.HasSuffix(part, "?") {
				b.WriteString(part)
				continue
			}
			if next >= len(bindings) {
				return "", dberr.New(dberr.CodeMisuse, "statement has more placeholders than %d bindings", len(bindings))
			}
			lit, err := QuoteValue(bindings[next])
			if err != nil {
				return "", err
			}
			b.WriteString(strings.TrimSuffix(part, "?"))
			b.WriteString(lit)
			next++
		}
	}
	if next != len(bindings) {
		return "", dberr.New(dberr.CodeMisuse, "statement has %d placeholders for %d bindings", next, len(bindings))
	}
	return b.String(), nil
}

// Inline returns stmt with its bindings substituted into the text.
func Inline(stmt Statement) (Statement, error) {
	text, err := ApplyBindings(stmt.Text, stmt.Bindings)
	if err != nil {
		return Statement{}, err
	}
	return Statement{Text: text, Key: stmt.Key}, nil
}
