package n1ql

import (
	"regexp"
	"strings"

	"github.com/roach88/n1qlorm/internal/value"
)

const quoteChar = "`"

var bareIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Quoter escapes identifiers for N1QL text.
//
// The zero value quotes every segment. With Minimal set, segments that are
// plain identifiers and not reserved words are left bare.
type Quoter struct {
	Minimal bool
}

// QuoteIdentifier quotes name with the default Quoter.
func QuoteIdentifier(name string) string {
	return Quoter{}.Identifier(name)
}

// Identifier quotes a column, bucket or dotted path.
//
// Rules, in order:
//  1. "*" is returned unchanged
//  2. a name already wrapped in backticks with balanced escapes is returned
//     unchanged
//  3. otherwise the name is wrapped, doubling internal backticks
//  4. dotted paths are handled segment by segment
//  5. reserved words are always wrapped
//
// Aliases are not recognized here; see Projection.
func (q Quoter) Identifier(name string) string {
	if name == "*" || isWrapped(name) {
		return name
	}
	segs := splitPath(name)
	for i, seg := range segs {
		segs[i] = q.segment(seg)
	}
	return strings.Join(segs, ".")
}

// Projection quotes a selected or returned column. "expr as alias" quotes
// both sides.
func (q Quoter) Projection(name string) string {
	if expr, alias, ok := splitAlias(name); ok {
		return q.Identifier(expr) + " as " + q.segment(alias)
	}
	return q.Identifier(name)
}

func (q Quoter) segment(seg string) string {
	if seg == "*" || isWrapped(seg) {
		return seg
	}
	if q.Minimal && bareIdentifier.MatchString(seg) && !IsReserved(seg) {
		return seg
	}
	return quoteChar + strings.ReplaceAll(seg, quoteChar, quoteChar+quoteChar) + quoteChar
}

// isWrapped reports whether s starts and ends with a backtick and every
// backtick in between is doubled.
func isWrapped(s string) bool {
	if len(s) < 2 || !strings.HasPrefix(s, quoteChar) || !strings.HasSuffix(s, quoteChar) {
		return false
	}
	inner := s[1 : len(s)-1]
	return !strings.Contains(strings.ReplaceAll(inner, quoteChar+quoteChar, ""), quoteChar)
}

// splitPath splits on dots that are outside backtick-quoted runs.
func splitPath(name string) []string {
	var (
		segs    []string
		start   int
		inQuote bool
	)
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '`':
			inQuote = !inQuote
		case '.':
			if !inQuote {
				segs = append(segs, name[start:i])
				start = i + 1
			}
		}
	}
	return append(segs, name[start:])
}

// splitAlias splits "expr as alias" on the last unquoted " as ".
func splitAlias(name string) (expr, alias string, ok bool) {
	lower := strings.ToLower(name)
	idx := strings.LastIndex(lower, " as ")
	if idx <= 0 {
		return "", "", false
	}
	if strings.Count(name[:idx], quoteChar)%2 != 0 {
		return "", "", false
	}
	expr = strings.TrimSpace(name[:idx])
	alias = strings.TrimSpace(name[idx+len(" as "):])
	if expr == "" || alias == "" {
		return "", "", false
	}
	return expr, alias, true
}

// QuoteValue renders v as a N1QL literal using the JSON wire encoding.
// Missing values are stripped first; cycles and unsupported types fail with
// a serialization error.
func QuoteValue(v any) (string, error) {
	data, err := value.Encode(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
