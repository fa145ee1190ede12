package keyset

import "strings"

type scanState int

const (
	stateNormal scanState = iota
	stateLineComment
	stateBlockComment
	stateQuoted // '...', "...", `...` or [...]
)

// word is a keyword or identifier found at nesting depth 0.
type word struct {
	upper string
	start int
	end   int
}

// scanResult is the outcome of one pass over a query.
type scanResult struct {
	words []word

	// openLineComment is true when the query ends inside a -- comment.
	openLineComment bool

	// unterminated describes an unclosed quote or block comment.
	unterminated string
}

// scanTopLevel walks query once and collects the words outside
// parentheses, quoted spans and comments. A word directly after '.' is a
// qualified name part and is skipped.
func scanTopLevel(query string) scanResult {
	var (
		res    scanResult
		state  = stateNormal
		closer byte
		depth  int
	)
	n := len(query)
	for i := 0; i < n; i++ {
		c := query[i]
		switch state {
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
			}
			continue
		case stateBlockComment:
			if c == '*' && i+1 < n && query[i+1] == '/' {
				state = stateNormal
				i++
			}
			continue
		case stateQuoted:
			if c == closer {
				// A doubled quote is an escaped quote; brackets do not escape.
				if closer != ']' && i+1 < n && query[i+1] == closer {
					i++
					continue
				}
				state = stateNormal
			}
			continue
		}

		switch {
		case c == '-' && i+1 < n && query[i+1] == '-':
			state = stateLineComment
			i++
		case c == '/' && i+1 < n && query[i+1] == '*':
			state = stateBlockComment
			i++
		case c == '\'' || c == '"' || c == '`':
			state, closer = stateQuoted, c
		case c == '[':
			state, closer = stateQuoted, ']'
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case isWordStart(c):
			start := i
			for i+1 < n && isWordPart(query[i+1]) {
				i++
			}
			if depth == 0 && !precededByDot(query, start) {
				res.words = append(res.words, word{
					upper: strings.ToUpper(query[start : i+1]),
					start: start,
					end:   i + 1,
				})
			}
		case '0' <= c && c <= '9':
			// Numeric literals such as 1e5 must not yield a word "e5".
			for i+1 < n && isWordPart(query[i+1]) {
				i++
			}
		}
	}

	switch state {
	case stateLineComment:
		res.openLineComment = true
	case stateBlockComment:
		res.unterminated = "unterminated block comment"
	case stateQuoted:
		res.unterminated = "unterminated quoted span"
	}
	return res
}

func isWordStart(c byte) bool {
	return c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func isWordPart(c byte) bool {
	return isWordStart(c) || '0' <= c && c <= '9' || c == '$'
}

func precededByDot(query string, i int) bool {
	for i > 0 {
		i--
		switch query[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case '.':
			return true
		default:
			return false
		}
	}
	return false
}

// find returns the index of the first word equal to kw at or after from,
// or -1.
func (r scanResult) find(kw string, from int) int {
	for i := from; i < len(r.words); i++ {
		if r.words[i].upper == kw {
			return i
		}
	}
	return -1
}

// findOrderBy returns the index of an ORDER word followed by BY, or -1.
func (r scanResult) findOrderBy() int {
	for i := 0; i+1 < len(r.words); i++ {
		if r.words[i].upper == "ORDER" && r.words[i+1].upper == "BY" {
			return i
		}
	}
	return -1
}

// ValidateBaseQuery rejects a base query with a top-level ORDER BY or
// LIMIT, or with an unterminated quote or block comment.
func ValidateBaseQuery(query string) error {
	res := scanTopLevel(query)
	if res.unterminated != "" {
		return &MalformedQueryError{Reason: res.unterminated}
	}
	if res.findOrderBy() >= 0 {
		return &DisallowedClauseError{Clause: "ORDER BY"}
	}
	if res.find("LIMIT", 0) >= 0 {
		return &DisallowedClauseError{Clause: "LIMIT"}
	}
	return nil
}

// HasTopLevelWhere reports whether query has a WHERE outside subqueries,
// quotes and comments.
func HasTopLevelWhere(query string) bool {
	return scanTopLevel(query).find("WHERE", 0) >= 0
}

// compoundOperators end one SELECT of a compound query.
var compoundOperators = map[string]bool{"UNION": true, "INTERSECT": true, "EXCEPT": true}

// trailingClauses follow WHERE in a simple SELECT.
var trailingClauses = map[string]bool{"GROUP": true, "HAVING": true, "WINDOW": true}
