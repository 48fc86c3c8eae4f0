package formula

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp // operators and punctuation: + - * / % ^ == != < <= > >= && || ! ( ) ,
)

type token struct {
	kind tokenKind
	text string
	num  float64 // set for tokNumber
	pos  int     // byte offset of the first character
}

// lex tokenizes a formula. Tokens outside the grammar (assignment, member
// access, indexing, statement separators) are rejected here so a hostile
// formula fails before any parsing happens.
func lex(src string) ([]token, *Error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c >= '0' && c <= '9':
			start := i
			for i < len(src) && (src[i] >= '0' && src[i] <= '9') {
				i++
			}
			if i < len(src) && src[i] == '.' {
				i++
				for i < len(src) && (src[i] >= '0' && src[i] <= '9') {
					i++
				}
			}
			text := src[start:i]
			n, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, errf(KindSyntax, start, "invalid number literal %q", text)
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: n, pos: start})

		case c == '"' || c == '\'':
			quote := c
			start := i
			i++
			var sb strings.Builder
			closed := false
			for i < len(src) {
				if src[i] == '\\' && i+1 < len(src) {
					switch src[i+1] {
					case 'n':
						sb.WriteByte('\n')
					case 't':
						sb.WriteByte('\t')
					default:
						sb.WriteByte(src[i+1])
					}
					i += 2
					continue
				}
				if src[i] == quote {
					closed = true
					i++
					break
				}
				sb.WriteByte(src[i])
				i++
			}
			if !closed {
				return nil, errf(KindSyntax, start, "unterminated string literal")
			}
			toks = append(toks, token{kind: tokString, text: sb.String(), pos: start})

		case isIdentStart(rune(c)):
			start := i
			for i < len(src) {
				r, size := utf8.DecodeRuneInString(src[i:])
				if !isIdentPart(r) {
					break
				}
				i += size
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})

		default:
			start := i
			two := ""
			if i+1 < len(src) {
				two = src[i : i+2]
			}
			switch two {
			case "==", "!=", "<=", ">=", "&&", "||":
				toks = append(toks, token{kind: tokOp, text: two, pos: start})
				i += 2
				continue
			}
			switch c {
			case '+', '-', '*', '/', '%', '^', '(', ')', ',', '<', '>', '!':
				toks = append(toks, token{kind: tokOp, text: string(c), pos: start})
				i++
			case '=':
				return nil, errf(KindDisallowedToken, start, "assignment is not allowed in formulas")
			case '.':
				return nil, errf(KindDisallowedToken, start, "member access is not allowed in formulas")
			case '[', ']':
				return nil, errf(KindDisallowedToken, start, "indexing is not allowed in formulas")
			case '{', '}', ';', ':', '?', '@', '#', '$', '`', '\\':
				return nil, errf(KindDisallowedToken, start, "token %q is not allowed in formulas", string(c))
			case '&', '|':
				return nil, errf(KindSyntax, start, "unexpected %q (did you mean %q?)", string(c), strings.Repeat(string(c), 2))
			default:
				return nil, errf(KindSyntax, start, "unexpected character %q", string(c))
			}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
