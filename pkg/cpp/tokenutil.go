// tokenutil.go implements token-sequence utilities shared by the macro
// expander and directive processor: copying, EOF sentinels, line slicing,
// string quoting/synthesis, joining, stringification and pasting.
package cpp

import (
	"fmt"
	"strings"
)

// newEOFToken returns a zero-length EOF token inheriting tmpl's provenance.
func newEOFToken(tmpl Token) Token {
	return Token{Type: PP_EOF, Loc: tmpl.Loc, File: tmpl.File, Origin: tmpl.Origin}
}

// ensureEOF returns tokens with exactly one trailing EOF token, appending
// one derived from the last token's provenance if none is present.
func ensureEOF(tokens []Token) []Token {
	if len(tokens) > 0 && tokens[len(tokens)-1].Type == PP_EOF {
		return tokens
	}
	var tmpl Token
	if len(tokens) > 0 {
		tmpl = tokens[len(tokens)-1]
	}
	return append(tokens, newEOFToken(tmpl))
}

// appendTokens concatenates two EOF-terminated sequences, dropping a's EOF.
func appendTokens(a, b []Token) []Token {
	if len(a) > 0 && a[len(a)-1].Type == PP_EOF {
		a = a[:len(a)-1]
	}
	out := make([]Token, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return ensureEOF(out)
}

// copyLine splits tokens at the first token with AtBOL set after position 0
// (i.e. the start of the next logical line), returning the copied,
// EOF-terminated line and the remainder (the rest of the stream, including
// that next line's first token).
func copyLine(tokens []Token) (line []Token, rest []Token) {
	i := 0
	for i < len(tokens) {
		if i > 0 && (tokens[i].AtBOL || tokens[i].Type == PP_EOF) {
			break
		}
		if tokens[i].Type == PP_EOF {
			break
		}
		i++
	}
	line = ensureEOF(append([]Token{}, tokens[:i]...))
	rest = tokens[i:]
	return line, rest
}

// skipLine advances past tokens up to (not including) the next AtBOL token
// or EOF, returning the remainder. skippedAny reports whether any non-EOF
// tokens were skipped, so callers can warn about trailing garbage.
func skipLine(tokens []Token) (rest []Token, skippedAny bool) {
	i := 0
	for i < len(tokens) {
		if tokens[i].Type == PP_EOF {
			break
		}
		if i > 0 && tokens[i].AtBOL {
			break
		}
		i++
	}
	return tokens[i:], i > 0
}

// quoteString produces a C string literal with backslash and double-quote
// escaped, per spec.md §4.2.
func quoteString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
	return sb.String()
}

// newStrToken builds a synthesized string literal from s (quoted with
// quoteString), producing a single token carrying tmpl's provenance.
func newStrToken(s string, tmpl Token) Token {
	tok := Token{Type: PP_STRING, Text: quoteString(s), Loc: tmpl.Loc, File: tmpl.File}
	return tok
}

// newNumToken builds a synthesized decimal number token, carrying tmpl's
// provenance.
func newNumToken(n int, tmpl Token) Token {
	return Token{Type: PP_NUMBER, Text: fmt.Sprintf("%d", n), Loc: tmpl.Loc, File: tmpl.File}
}

// joinTokens concatenates lexemes, inserting a single space between tokens
// whose HasSpace is set (never before the first token).
func joinTokens(tokens []Token) string {
	var sb strings.Builder
	for i, tok := range tokens {
		if tok.Type == PP_EOF {
			break
		}
		if i > 0 && tok.HasSpace {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok.Text)
	}
	return sb.String()
}

// stringizeArg implements the # operator: joinTokens(argTokens) wrapped as a
// string literal, escaping embedded quotes/backslashes inside nested string
// and char-constant tokens per the C standard.
func stringizeArg(hashTok Token, argTokens []Token) Token {
	var sb strings.Builder
	for i, tok := range argTokens {
		if tok.Type == PP_EOF {
			break
		}
		if i > 0 && tok.HasSpace {
			sb.WriteByte(' ')
		}
		if tok.Type == PP_STRING || tok.Type == PP_CHAR_CONST {
			for _, r := range tok.Text {
				if r == '"' || r == '\\' {
					sb.WriteByte('\\')
				}
				sb.WriteRune(r)
			}
		} else {
			sb.WriteString(tok.Text)
		}
	}
	out := newStrToken("", hashTok)
	out.Text = `"` + sb.String() + `"`
	out.AtBOL = hashTok.AtBOL
	out.HasSpace = hashTok.HasSpace
	return out
}

// pasteTokens concatenates two lexemes and re-lexes the result. Fails if
// the result does not form exactly one token.
func pasteTokens(l, r Token) (Token, error) {
	text := l.Text + r.Text
	lex := NewLexer(text, l.Loc.File)
	first := lex.NextToken()
	second := lex.NextToken()
	if second.Type != PP_EOF {
		return Token{}, fmt.Errorf("%s:%d: invalid token paste: '%s' ## '%s'", l.Loc.File, l.Loc.Line, l.Text, r.Text)
	}
	first.Loc = l.Loc
	first.File = l.File
	first.AtBOL = l.AtBOL
	first.HasSpace = l.HasSpace
	first.Hideset = hidesetIntersection(l.Hideset, r.Hideset)
	return first, nil
}

// copyToken returns a shallow copy of t.
func copyToken(t Token) Token {
	return t
}

// stripEOF returns tokens with any trailing EOF token(s) removed.
func stripEOF(tokens []Token) []Token {
	end := len(tokens)
	for end > 0 && tokens[end-1].Type == PP_EOF {
		end--
	}
	return tokens[:end]
}
