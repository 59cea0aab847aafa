// expand.go implements macro substitution (spec.md §4.5) and the rescanning
// expansion driver (spec.md §4.6). The retrieved teacher package carried an
// Expander built on a single shared map[string]bool "visited" flag per
// instance, which spec.md §9 calls out as unsound for nested/re-entrant
// expansion; this file replaces it with the per-token Hideset of hideset.go.
package cpp

import "fmt"

// expandSequence fully macro-expands an EOF-terminated token sequence,
// rescanning spliced replacements together with the remainder of the
// stream, per spec.md §4.6 step 5.
func expandSequence(tokens []Token, mt *MacroTable) ([]Token, error) {
	rest := tokens
	var result []Token
	for len(rest) > 0 {
		tok := rest[0]
		if tok.Type == PP_EOF {
			result = append(result, tok)
			break
		}
		newHead, consumed, did, err := tryExpandOne(rest, mt)
		if err != nil {
			return nil, err
		}
		if !did {
			result = append(result, tok)
			rest = rest[1:]
			continue
		}
		spliced := make([]Token, 0, len(newHead)+len(rest)-consumed)
		spliced = append(spliced, stripEOF(newHead)...)
		spliced = append(spliced, rest[consumed:]...)
		rest = spliced
	}
	return ensureEOF(result), nil
}

// tryExpandOne attempts to expand the macro invocation starting at rest[0].
// On success it returns the EOF-terminated replacement sequence and how
// many leading tokens of rest it replaces. did is false when rest[0] is not
// an expandable macro invocation (not an identifier, not a defined macro,
// blocked by its own hideset, or a function-like name not followed by '(').
func tryExpandOne(rest []Token, mt *MacroTable) (replacement []Token, consumed int, did bool, err error) {
	tok := rest[0]
	if tok.Type != PP_IDENTIFIER {
		return nil, 0, false, nil
	}
	if hidesetContains(tok.Hideset, tok.Text) {
		return nil, 0, false, nil
	}
	macro := mt.Lookup(tok.Text)
	if macro == nil {
		return nil, 0, false, nil
	}

	switch macro.Kind {
	case MacroBuiltin:
		produced, err := macro.Handler(tok, mt)
		if err != nil {
			return nil, 0, false, err
		}
		produced.AtBOL = tok.AtBOL
		produced.HasSpace = tok.HasSpace
		produced.Hideset = hidesetUnion(tok.Hideset, newHideset(tok.Text))
		orig := tok
		produced.Origin = &orig
		return ensureEOF([]Token{produced}), 1, true, nil

	case MacroObject:
		H := hidesetUnion(tok.Hideset, newHideset(tok.Text))
		body := addHideset(append([]Token{}, stripEOF(macro.Body)...), H)
		orig := tok
		for i := range body {
			body[i].Origin = &orig
		}
		if len(body) > 0 {
			body[0].AtBOL = tok.AtBOL
			body[0].HasSpace = tok.HasSpace
		}
		return ensureEOF(body), 1, true, nil

	case MacroFunction:
		if len(rest) < 2 || rest[1].Type != PP_PUNCTUATOR || rest[1].Text != "(" {
			return nil, 0, false, nil
		}
		args, rparen, nextIdx, err := readMacroArgs(rest, 1, macro)
		if err != nil {
			return nil, 0, false, err
		}
		H := hidesetUnion(hidesetIntersection(tok.Hideset, rparen.Hideset), newHideset(tok.Text))
		substituted, err := subst(macro.Body, args, mt)
		if err != nil {
			return nil, 0, false, err
		}
		body := addHideset(append([]Token{}, stripEOF(substituted)...), H)
		orig := tok
		for i := range body {
			body[i].Origin = &orig
		}
		if len(body) > 0 {
			body[0].AtBOL = tok.AtBOL
			body[0].HasSpace = tok.HasSpace
		}
		return ensureEOF(body), nextIdx, true, nil
	}
	return nil, 0, false, nil
}

// findArg returns the argument bound to name, if any.
func findArg(args []MacroArg, name string) (*MacroArg, bool) {
	for i := range args {
		if args[i].Name == name {
			return &args[i], true
		}
	}
	return nil, false
}

func isArgEmpty(arg *MacroArg) bool {
	return len(stripEOF(arg.Tokens)) == 0
}

// vaArgsAllEmpty reports whether the invocation's variadic argument (if
// any) is empty; used by __VA_OPT__ (spec.md §4.5 rule 5).
func vaArgsAllEmpty(args []MacroArg) bool {
	for i := range args {
		if args[i].IsVaArg {
			return isArgEmpty(&args[i])
		}
	}
	return true
}

// collectParenthesized gathers the tokens inside a (possibly nested)
// parenthesized group. body[openIdx] must be the '(' token. Returns the
// interior tokens (not including the parens) and the index just past the
// matching ')'.
func collectParenthesized(body []Token, openIdx int) ([]Token, int, error) {
	depth := 1
	i := openIdx + 1
	var inner []Token
	for i < len(body) {
		tok := body[i]
		if tok.Type == PP_EOF {
			return nil, 0, fmt.Errorf("unterminated parenthesized group in macro body")
		}
		if tok.Type == PP_PUNCTUATOR {
			switch tok.Text {
			case "(":
				depth++
			case ")":
				depth--
				if depth == 0 {
					return inner, i + 1, nil
				}
			}
		}
		inner = append(inner, tok)
		i++
	}
	return nil, 0, fmt.Errorf("unterminated parenthesized group in macro body")
}

// subst implements spec.md §4.5 rules 1-7 over a macro body given its bound
// arguments, producing the (not yet hideset-tagged, not yet rescanned)
// replacement sequence for a function-like macro invocation.
func subst(body []Token, args []MacroArg, mt *MacroTable) ([]Token, error) {
	var result []Token
	n := len(body)
	i := 0

	for i < n {
		tok := body[i]
		if tok.Type == PP_EOF {
			break
		}

		// Rule 1: stringification, # followed by a parameter name.
		if (tok.Type == PP_PUNCTUATOR || tok.Type == PP_HASH) && tok.Text == "#" {
			if i+1 >= n || body[i+1].Type == PP_EOF {
				return nil, fmt.Errorf("'#' is not followed by a macro parameter")
			}
			nameTok := body[i+1]
			if nameTok.Type != PP_IDENTIFIER {
				return nil, fmt.Errorf("'#' is not followed by a macro parameter")
			}
			arg, ok := findArg(args, nameTok.Text)
			if !ok {
				return nil, fmt.Errorf("'#' is not followed by a macro parameter")
			}
			strTok := stringizeArg(tok, stripEOF(arg.Tokens))
			result = append(result, strTok)
			i += 2
			continue
		}

		// Rule 2: GNU ",##__VA_ARGS__" comma elision extension.
		if tok.Type == PP_PUNCTUATOR && tok.Text == "," && i+2 < n &&
			body[i+1].Type == PP_HASHHASH && body[i+2].Type == PP_IDENTIFIER {
			if arg, ok := findArg(args, body[i+2].Text); ok && arg.IsVaArg {
				if isArgEmpty(arg) {
					i += 3
					continue
				}
				result = append(result, tok)
				expanded, err := expandSequence(ensureEOF(stripEOF(arg.Tokens)), mt)
				if err != nil {
					return nil, err
				}
				expanded = stripEOF(expanded)
				if len(expanded) > 0 {
					expanded[0].AtBOL = body[i+2].AtBOL
					expanded[0].HasSpace = body[i+2].HasSpace
				}
				result = append(result, expanded...)
				i += 3
				continue
			}
		}

		// Rule 5: __VA_OPT__( ... )
		if tok.Type == PP_IDENTIFIER && tok.Text == "__VA_OPT__" {
			if i+1 >= n || body[i+1].Type != PP_PUNCTUATOR || body[i+1].Text != "(" {
				return nil, fmt.Errorf("__VA_OPT__ must be followed by '('")
			}
			inner, next, err := collectParenthesized(body, i+1)
			if err != nil {
				return nil, err
			}
			if !vaArgsAllEmpty(args) {
				substInner, err := subst(ensureEOF(inner), args, mt)
				if err != nil {
					return nil, err
				}
				substInner = stripEOF(substInner)
				if len(substInner) > 0 {
					substInner[0].AtBOL = tok.AtBOL
					substInner[0].HasSpace = tok.HasSpace
				}
				result = append(result, substInner...)
			}
			i = next
			continue
		}

		// Rules 4 & 6: a parameter reference.
		if tok.Type == PP_IDENTIFIER {
			if arg, ok := findArg(args, tok.Text); ok {
				if i+1 < n && body[i+1].Type == PP_HASHHASH {
					// Rule 4: left-paste placeholder, splice verbatim and let
					// the following iteration's rule 3 handle the paste.
					verbatim := append([]Token{}, stripEOF(arg.Tokens)...)
					if len(verbatim) > 0 {
						verbatim[0].AtBOL = tok.AtBOL
						verbatim[0].HasSpace = tok.HasSpace
					}
					result = append(result, verbatim...)
					i++
					continue
				}
				// Rule 6: ordinary parameter use, fully pre-expanded.
				expanded, err := expandSequence(ensureEOF(stripEOF(arg.Tokens)), mt)
				if err != nil {
					return nil, err
				}
				expanded = stripEOF(expanded)
				if len(expanded) > 0 {
					expanded[0].AtBOL = tok.AtBOL
					expanded[0].HasSpace = tok.HasSpace
				}
				result = append(result, expanded...)
				i++
				continue
			}
		}

		// Rule 3: token pasting with ## on the right, generic case.
		if tok.Type == PP_HASHHASH {
			if len(result) == 0 {
				return nil, fmt.Errorf("'##' cannot appear at the start of a macro expansion")
			}
			if i+1 >= n || body[i+1].Type == PP_EOF {
				return nil, fmt.Errorf("'##' cannot appear at the end of a macro expansion")
			}
			rightTok := body[i+1]
			left := result[len(result)-1]
			if rightTok.Type == PP_IDENTIFIER {
				if arg, ok := findArg(args, rightTok.Text); ok {
					raw := stripEOF(arg.Tokens)
					if len(raw) == 0 {
						i += 2
						continue
					}
					pasted, err := pasteTokens(left, raw[0])
					if err != nil {
						return nil, err
					}
					result[len(result)-1] = pasted
					result = append(result, raw[1:]...)
					i += 2
					continue
				}
			}
			pasted, err := pasteTokens(left, rightTok)
			if err != nil {
				return nil, err
			}
			result[len(result)-1] = pasted
			i += 2
			continue
		}

		// Rule 7: copy as-is.
		result = append(result, tok)
		i++
	}

	return ensureEOF(result), nil
}

// ExpandString fully macro-expands a standalone snippet of source text
// against mt, returning the resulting text joined per spec.md §4.2's
// joinTokens spacing rule. Used by tests exercising end-to-end expansion
// scenarios; the conditional-expression evaluator calls expandSequence.
func ExpandString(src string, mt *MacroTable) (string, error) {
	toks := Tokenize(src, "<string>")
	expanded, err := expandSequence(toks, mt)
	if err != nil {
		return "", err
	}
	return joinTokens(stripEOF(expanded)), nil
}
