// macro.go implements the macro table, macro definitions, built-in dynamic
// macros, and function-like macro argument collection. This file did not
// exist in the retrieved teacher package (MacroTable/Macro were referenced
// from expand.go/preprocess.go but never defined); it is written fresh
// against original_source/preprocess.c's Macro/MacroParam/MacroArg model.
package cpp

import (
	"fmt"
	"os"
	"time"
)

// MacroKind distinguishes the three macro flavors of spec.md §3.
type MacroKind int

const (
	MacroObject MacroKind = iota
	MacroFunction
	MacroBuiltin
)

// Macro is a single macro-table entry.
type Macro struct {
	Name       string
	Kind       MacroKind
	Params     []string // fixed parameter names, function-like only
	IsVariadic bool
	VaArgsName string // "__VA_ARGS__" or a user-named variadic parameter
	Body       []Token // EOF-terminated, object/function-like only

	// Handler produces the single-token replacement for a built-in
	// dynamic macro, given the invocation token.
	Handler func(invocation Token, mt *MacroTable) (Token, error)
}

// MacroArg is one collected argument of a function-like macro invocation.
type MacroArg struct {
	Name    string
	Tokens  []Token // EOF-terminated
	IsVaArg bool
}

// MacroTable maps macro names to definitions and holds the run-scoped
// state built-in dynamic macros close over (__COUNTER__, __BASE_FILE__,
// the preprocessor start time for __DATE__/__TIME__).
type MacroTable struct {
	macros    map[string]*Macro
	counter   int
	baseFile  string
	startTime time.Time
}

// NewMacroTable creates a macro table seeded with the built-in dynamic
// macros and the small set of fixed predefined macros described in
// SPEC_FULL.md §11 / DESIGN.md Open Question 1.
func NewMacroTable(baseFile string) *MacroTable {
	mt := &MacroTable{
		macros:    make(map[string]*Macro),
		baseFile:  baseFile,
		startTime: time.Now(),
	}
	mt.seedBuiltins()
	mt.seedPredefined()
	return mt
}

func (mt *MacroTable) seedBuiltins() {
	builtin := func(name string, h func(Token, *MacroTable) (Token, error)) {
		mt.macros[name] = &Macro{Name: name, Kind: MacroBuiltin, Handler: h}
	}

	builtin("__FILE__", func(tok Token, mt *MacroTable) (Token, error) {
		outer := tok.outermostOrigin()
		return newStrToken(outer.DisplayFile(), tok), nil
	})
	builtin("__LINE__", func(tok Token, mt *MacroTable) (Token, error) {
		outer := tok.outermostOrigin()
		return newNumToken(outer.Line(), tok), nil
	})
	builtin("__COUNTER__", func(tok Token, mt *MacroTable) (Token, error) {
		n := mt.counter
		mt.counter++
		return newNumToken(n, tok), nil
	})
	builtin("__BASE_FILE__", func(tok Token, mt *MacroTable) (Token, error) {
		return newStrToken(mt.baseFile, tok), nil
	})
	builtin("__TIMESTAMP__", func(tok Token, mt *MacroTable) (Token, error) {
		path := tok.outermostOrigin().DisplayFile()
		info, err := os.Stat(path)
		if err != nil {
			return newStrToken("??? ??? ?? ??:??:?? ????", tok), nil
		}
		// ctime 24-char form, e.g. "Mon Jan  2 15:04:05 2006"
		return newStrToken(info.ModTime().Format("Mon Jan _2 15:04:05 2006"), tok), nil
	})
	builtin("__DATE__", func(tok Token, mt *MacroTable) (Token, error) {
		return newStrToken(mt.startTime.Format("Jan _2 2006"), tok), nil
	})
	builtin("__TIME__", func(tok Token, mt *MacroTable) (Token, error) {
		return newStrToken(mt.startTime.Format("15:04:05"), tok), nil
	})
}

// seedPredefined seeds the small set of host-portable fixed macros; see
// DESIGN.md Open Question 1 for why no target-architecture macros appear.
func (mt *MacroTable) seedPredefined() {
	defs := map[string]string{
		"__STDC__":         "1",
		"__STDC_HOSTED__":  "1",
		"__STDC_VERSION__": "201112L",
	}
	for name, value := range defs {
		mt.macros[name] = &Macro{
			Name: name,
			Kind: MacroObject,
			Body: ensureEOF(Tokenize(value, "<builtin>")),
		}
	}
}

// SetBaseFile sets the path __BASE_FILE__ reports, for callers that don't
// know the top-level input file at NewMacroTable time.
func (mt *MacroTable) SetBaseFile(path string) {
	if mt.baseFile == "" {
		mt.baseFile = path
	}
}

// Lookup returns the macro named name, or nil if undefined.
func (mt *MacroTable) Lookup(name string) *Macro {
	return mt.macros[name]
}

// IsDefined reports whether name is currently defined.
func (mt *MacroTable) IsDefined(name string) bool {
	return mt.macros[name] != nil
}

// Define installs m, overwriting any prior definition of the same name.
func (mt *MacroTable) Define(m *Macro) {
	mt.macros[m.Name] = m
}

// Undefine removes name from the table; it is not an error for name to be
// undefined already.
func (mt *MacroTable) Undefine(name string) {
	delete(mt.macros, name)
}

// DefineFromDirective installs the macro described by a parsed #define
// directive (spec.md §4.3).
func (mt *MacroTable) DefineFromDirective(dir *Directive) error {
	if dir.Type != DIR_DEFINE {
		return fmt.Errorf("not a #define directive")
	}
	m := &Macro{
		Name:       dir.MacroName,
		Params:     dir.MacroParams,
		IsVariadic: dir.IsVariadic,
		Body:       ensureEOF(dir.MacroBody),
	}
	if dir.IsFunctionLike {
		m.Kind = MacroFunction
		if dir.IsVariadic {
			if dir.VaArgsName != "" {
				m.VaArgsName = dir.VaArgsName
			} else {
				m.VaArgsName = "__VA_ARGS__"
			}
		}
	} else {
		m.Kind = MacroObject
	}
	mt.Define(m)
	return nil
}

// ApplyCmdlineDefines applies -D/-U style command-line macro definitions,
// in the order -D then -U as the teacher's pkg/preproc already assumes.
func (mt *MacroTable) ApplyCmdlineDefines(defines []string, undefines []string) error {
	for _, d := range defines {
		name, value := splitDefine(d)
		body := ensureEOF(Tokenize(value, "<command-line>"))
		mt.Define(&Macro{Name: name, Kind: MacroObject, Body: body})
	}
	for _, name := range undefines {
		mt.Undefine(name)
	}
	return nil
}

func splitDefine(d string) (name, value string) {
	for i := 0; i < len(d); i++ {
		if d[i] == '=' {
			return d[:i], d[i+1:]
		}
	}
	return d, "1"
}

// readMacroArgs collects the arguments of a function-like macro invocation.
// tokens[openParenIdx] must be the '(' token. Returns the collected
// arguments (named positionally, with the variadic tail as the last entry
// when macro.IsVariadic), the ')' token itself (its hideset feeds the
// invocation's hideset per spec.md §4.6), and the index just past it.
func readMacroArgs(tokens []Token, openParenIdx int, macro *Macro) (args []MacroArg, rparen Token, nextIdx int, err error) {
	i := openParenIdx + 1
	depth := 1
	var cur []Token

	flush := func() {
		args = append(args, MacroArg{Tokens: ensureEOF(cur)})
		cur = nil
	}

	for i < len(tokens) {
		tok := tokens[i]
		if tok.Type == PP_EOF {
			return nil, Token{}, 0, fmt.Errorf("%s:%d: unterminated argument list invoking macro %q", tok.Loc.File, tok.Loc.Line, macro.Name)
		}
		if tok.Type == PP_PUNCTUATOR {
			switch tok.Text {
			case "(":
				depth++
			case ")":
				depth--
				if depth == 0 {
					flush()
					rparenTok := tok
					i++
					bound, err := bindMacroArgs(macro, args)
					if err != nil {
						return nil, Token{}, 0, err
					}
					return bound, rparenTok, i, nil
				}
			case ",":
				if depth == 1 && !(macro.IsVariadic && len(args) >= len(macro.Params)) {
					flush()
					i++
					continue
				}
			}
		}
		cur = append(cur, tok)
		i++
	}
	return nil, Token{}, 0, fmt.Errorf("unterminated argument list invoking macro %q", macro.Name)
}

// bindMacroArgs names the collected positional arguments after the fact
// (readMacroArgs doesn't know param names while scanning because the
// variadic tail must absorb commas) and validates arity.
func bindMacroArgs(macro *Macro, args []MacroArg) ([]MacroArg, error) {
	nFixed := len(macro.Params)

	if !macro.IsVariadic {
		if nFixed == 0 && len(args) == 1 && len(args[0].Tokens) <= 1 {
			// f() invocation with zero params: single empty EOF-only arg is fine.
			return args, nil
		}
		if len(args) != nFixed {
			return nil, fmt.Errorf("macro %q requires %d arguments, got %d", macro.Name, nFixed, len(args))
		}
		for i := range args {
			args[i].Name = macro.Params[i]
		}
		return args, nil
	}

	if len(args) < nFixed {
		return nil, fmt.Errorf("macro %q requires at least %d arguments, got %d", macro.Name, nFixed, len(args))
	}
	for i := 0; i < nFixed; i++ {
		args[i].Name = macro.Params[i]
	}
	// Merge everything from nFixed onward into a single variadic argument,
	// preserving the commas between them, per spec.md §4.4.
	var va []Token
	for i := nFixed; i < len(args); i++ {
		if i > nFixed {
			va = append(va, Token{Type: PP_PUNCTUATOR, Text: ","})
		}
		body := args[i].Tokens
		if len(body) > 0 && body[len(body)-1].Type == PP_EOF {
			body = body[:len(body)-1]
		}
		va = append(va, body...)
	}
	vaArg := MacroArg{Name: macro.VaArgsName, Tokens: ensureEOF(va), IsVaArg: true}
	return append(args[:nFixed], vaArg), nil
}
