// strconcat.go implements the adjacent string-literal concatenation
// post-pass of spec.md §4.11, grounded on
// original_source/preprocess.c's join_adjacent_string_literals: a widening
// pass followed by a concatenation pass, run once over the fully
// macro-expanded token stream.
package cpp

import (
	"strings"
)

// stringPrefixes lists recognized string-literal encoding prefixes, in the
// order original_source/preprocess.c checks them (longest match first so
// "u8" is tried before "u").
var stringPrefixes = []string{"u8", "u", "U", "L"}

// splitStringPrefix separates a string-literal token's text into its
// encoding prefix ("" for narrow) and the quoted body.
func splitStringPrefix(s string) (prefix, body string) {
	for _, p := range stringPrefixes {
		if strings.HasPrefix(s, p+`"`) {
			return p, s[len(p):]
		}
	}
	return "", s
}

// stringBodyInner strips the surrounding quotes from a quoted body.
func stringBodyInner(body string) string {
	if len(body) >= 2 && body[0] == '"' && body[len(body)-1] == '"' {
		return body[1 : len(body)-1]
	}
	return body
}

// concatenateAdjacentStrings implements spec.md §4.11 over the fully
// expanded token stream: it widens narrow literals within a run that
// contains a wide/encoded literal, then merges each run into one token.
func concatenateAdjacentStrings(tokens []Token) ([]Token, error) {
	var out []Token
	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		if tok.Type != PP_STRING {
			out = append(out, tok)
			i++
			continue
		}

		j := i
		for j < len(tokens) && tokens[j].Type == PP_STRING {
			j++
		}
		run := tokens[i:j]

		merged, err := mergeStringRun(run)
		if err != nil {
			return nil, err
		}
		out = append(out, merged)
		i = j
	}
	return out, nil
}

func mergeStringRun(run []Token) (Token, error) {
	if len(run) == 1 {
		return run[0], nil
	}

	dominant := ""
	for _, tok := range run {
		prefix, _ := splitStringPrefix(tok.Text)
		if prefix == "" {
			continue
		}
		if dominant == "" {
			dominant = prefix
			continue
		}
		if dominant != prefix {
			return Token{}, tokenError(tok, "cannot concatenate string literals with different encoding prefixes %q and %q", dominant, prefix)
		}
	}

	var sb strings.Builder
	for _, tok := range run {
		_, body := splitStringPrefix(tok.Text)
		sb.WriteString(stringBodyInner(body))
	}

	out := run[0]
	out.Text = dominant + `"` + sb.String() + `"`
	return out, nil
}
