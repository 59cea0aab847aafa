// preprocess.go implements the main preprocessor driver: directive
// dispatch, conditional-inclusion gating, file inclusion, include-guard
// detection, and the final string-concatenation/rendering pass.
package cpp

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Preprocessor is the main driver for C preprocessing.
type Preprocessor struct {
	macros        *MacroTable
	conditional   *ConditionalProcessor
	resolver      *IncludeResolver
	opts          PreprocessorOptions
	includeGuards map[string]string // resolved path -> guard macro name
	includeHits   map[string]int    // resolved path -> search-path index it was found at
	errOut        io.Writer
}

// PreprocessorOptions configures the preprocessor.
type PreprocessorOptions struct {
	Defines      []string  // -D definitions, "NAME" or "NAME=VALUE"
	Undefines    []string  // -U undefinitions
	IncludePaths []string  // -I directories
	SystemPaths  []string  // -isystem directories
	BaseFile     string    // value reported by __BASE_FILE__; defaults to the first input
	LineMarkers  bool      // emit GNU-style "# N \"file\"" line markers
	ErrOut       io.Writer // where #warning text goes; defaults to os.Stderr
}

// NewPreprocessor creates a new preprocessor instance.
func NewPreprocessor(opts PreprocessorOptions) *Preprocessor {
	macros := NewMacroTable(opts.BaseFile)
	macros.ApplyCmdlineDefines(opts.Defines, opts.Undefines)

	resolver := NewIncludeResolver()
	for _, p := range opts.IncludePaths {
		resolver.AddUserPath(p)
	}
	for _, p := range opts.SystemPaths {
		resolver.AddSystemPath(p)
	}

	errOut := opts.ErrOut
	if errOut == nil {
		errOut = os.Stderr
	}

	return &Preprocessor{
		macros:        macros,
		conditional:   NewConditionalProcessor(macros),
		resolver:      resolver,
		opts:          opts,
		includeGuards: make(map[string]string),
		includeHits:   make(map[string]int),
		errOut:        errOut,
	}
}

// PreprocessFile preprocesses a file and returns the result.
func (p *Preprocessor) PreprocessFile(filename string) (string, error) {
	absPath, err := filepath.Abs(filename)
	if err != nil {
		absPath = filename
	}
	p.macros.SetBaseFile(absPath)

	content, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", filename, err)
	}

	p.resolver.SetCurrentFile(absPath)
	if err := p.resolver.PushFile(absPath); err != nil {
		return "", err
	}
	defer p.resolver.PopFile()

	return p.preprocessTopLevel(string(content), absPath)
}

// PreprocessString preprocesses a string with a given filename for error
// messages.
func (p *Preprocessor) PreprocessString(source, filename string) (string, error) {
	p.macros.SetBaseFile(filename)
	p.resolver.SetCurrentFile(filename)
	return p.preprocessTopLevel(source, filename)
}

func (p *Preprocessor) preprocessTopLevel(source, filename string) (string, error) {
	var sb strings.Builder
	if p.opts.LineMarkers {
		fmt.Fprintf(&sb, "# 1 %s\n", quoteString(filename))
	}

	out, err := p.preprocessContent(source, filename)
	if err != nil {
		return "", err
	}
	sb.WriteString(out)

	if err := p.conditional.CheckBalanced(); err != nil {
		return "", fmt.Errorf("%s: %w", filename, err)
	}

	return sb.String(), nil
}

// preprocessContent is the per-file driver: tokenize once, then walk
// logical lines using AtBOL boundaries instead of explicit newline tokens.
func (p *Preprocessor) preprocessContent(source, filename string) (string, error) {
	sf := &SourceFile{Name: filename, DisplayName: filename}
	tokens := TokenizeFile(source, sf)

	var out strings.Builder
	rest := tokens
	for len(rest) > 0 {
		if rest[0].Type == PP_EOF {
			break
		}
		var line []Token
		line, rest = copyLine(rest)
		result, err := p.processLine(line, filename)
		if err != nil {
			return "", err
		}
		out.WriteString(result)
	}

	return out.String(), nil
}

// processLine processes a single logical line of tokens, EOF-terminated.
func (p *Preprocessor) processLine(tokens []Token, filename string) (string, error) {
	body := stripEOF(tokens)
	if len(body) == 0 {
		return "\n", nil
	}

	if (body[0].Type == PP_HASH || body[0].Type == PP_PUNCTUATOR) && body[0].Text == "#" && body[0].AtBOL {
		return p.processDirective(body, filename)
	}

	if !p.conditional.IsActive() {
		return "", nil
	}

	expanded, err := expandSequence(ensureEOF(body), p.macros)
	if err != nil {
		return "", err
	}
	final, err := concatenateAdjacentStrings(stripEOF(expanded))
	if err != nil {
		return "", err
	}
	return joinTokens(final) + "\n", nil
}

// processDirective handles a preprocessing directive. body[0] is the '#'.
func (p *Preprocessor) processDirective(body []Token, filename string) (string, error) {
	loc := body[0].Loc
	dir, err := ParseDirectiveFromTokens(ensureEOF(body[1:]), loc)
	if err != nil {
		if !p.conditional.IsActive() {
			return "", nil
		}
		return "", err
	}

	switch dir.Type {
	case DIR_IF:
		return "", p.conditional.ProcessIf(dir.Expression)
	case DIR_IFDEF:
		return "", p.conditional.ProcessIfdef(dir.Identifier)
	case DIR_IFNDEF:
		return "", p.conditional.ProcessIfndef(dir.Identifier)
	case DIR_ELIF:
		return "", p.conditional.ProcessElif(dir.Expression)
	case DIR_ELSE:
		return "", p.conditional.ProcessElse()
	case DIR_ENDIF:
		return "", p.conditional.ProcessEndif()
	}

	if !p.conditional.IsActive() {
		return "", nil
	}

	switch dir.Type {
	case DIR_INCLUDE, DIR_INCLUDE_NEXT:
		return p.processInclude(dir, filename)
	case DIR_DEFINE:
		return "", p.macros.DefineFromDirective(dir)
	case DIR_UNDEF:
		p.macros.Undefine(dir.Identifier)
		return "", nil
	case DIR_LINE:
		return p.processLineDirective(dir, filename)
	case DIR_ERROR:
		return "", fmt.Errorf("%s:%d: #error %s", loc.File, loc.Line, dir.Message)
	case DIR_WARNING:
		tokenWarning(p.errOut, body[0], "%s", dir.Message)
		return "", nil
	case DIR_PRAGMA:
		return p.processPragma(dir, filename)
	case DIR_EMPTY:
		return "", nil
	default:
		return "", fmt.Errorf("%s:%d: unhandled directive #%s", loc.File, loc.Line, dir.Type)
	}
}

// processLineDirective implements spec.md §4.9's #line handling: after
// expanding the argument tokens, it sets the active SourceFile's LineDelta
// (and DisplayName, when a filename is given) so that the following lines
// report the new position, and with line markers on it also emits a marker
// for the new file/line state. With line markers off it emits nothing.
func (p *Preprocessor) processLineDirective(dir *Directive, filename string) (string, error) {
	expanded, err := expandSequence(ensureEOF(dir.Expression), p.macros)
	if err != nil {
		return "", err
	}
	body := stripEOF(expanded)
	if len(body) == 0 || body[0].Type != PP_NUMBER {
		return "", fmt.Errorf("%s: #line expects a line number", filename)
	}
	lineNum := parseIntNumber(body[0].Text)
	name := ""
	if len(body) > 1 && body[1].Type == PP_STRING {
		name = unquoteString(body[1].Text)
	}

	if raw := stripEOF(dir.Expression); len(raw) > 0 && raw[0].File != nil {
		sf := raw[0].File
		sf.LineDelta = lineNum - (raw[len(raw)-1].Loc.Line + 1)
		if name != "" {
			sf.DisplayName = name
		}
	}

	if !p.opts.LineMarkers {
		return "", nil
	}
	if name != "" {
		return fmt.Sprintf("# %d %s\n", lineNum, quoteString(name)), nil
	}
	return fmt.Sprintf("# %d\n", lineNum), nil
}

// processInclude handles #include and #include_next directives.
func (p *Preprocessor) processInclude(dir *Directive, currentFile string) (string, error) {
	fileName, kind, err := p.resolveHeaderName(dir)
	if err != nil {
		return "", err
	}

	p.resolver.SetCurrentFile(currentFile)

	var includePath string
	var hitIdx int
	if dir.Type == DIR_INCLUDE_NEXT {
		afterIdx, ok := p.includeHits[currentFile]
		if !ok {
			afterIdx = -1
		}
		includePath, hitIdx, err = p.resolver.ResolveNext(fileName, kind, afterIdx)
	} else {
		includePath, hitIdx, err = p.resolver.Resolve(fileName, kind)
	}
	if err != nil {
		return "", fmt.Errorf("%s:%d: #include %s: %w", dir.Loc.File, dir.Loc.Line, dir.HeaderName, err)
	}

	if p.resolver.IsAlreadyIncluded(includePath) {
		return "", nil
	}
	if guardMacro, ok := p.includeGuards[includePath]; ok && p.macros.IsDefined(guardMacro) {
		return "", nil
	}
	if p.resolver.IncludeDepth() >= MaxIncludeDepth {
		return "", fmt.Errorf("%s:%d: #include nested too deeply", dir.Loc.File, dir.Loc.Line)
	}

	if err := p.resolver.PushFile(includePath); err != nil {
		return "", err
	}
	defer p.resolver.PopFile()

	content, err := os.ReadFile(includePath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", includePath, err)
	}

	if guardMacro := p.detectIncludeGuard(string(content), includePath); guardMacro != "" {
		p.includeGuards[includePath] = guardMacro
	}
	p.includeHits[includePath] = hitIdx

	var sb strings.Builder
	if p.opts.LineMarkers {
		fmt.Fprintf(&sb, "# 1 %s 1\n", quoteString(includePath))
	}

	oldDir := p.resolver.CurrentDir
	p.resolver.SetCurrentFile(includePath)
	result, err := p.preprocessContent(string(content), includePath)
	p.resolver.CurrentDir = oldDir
	if err != nil {
		return "", fmt.Errorf("in %s: %w", includePath, err)
	}
	sb.WriteString(result)

	if p.opts.LineMarkers {
		fmt.Fprintf(&sb, "# %d %s 2\n", dir.Loc.Line+1, quoteString(currentFile))
	}

	return sb.String(), nil
}

// resolveHeaderName implements spec.md §4.8's three include-header forms.
func (p *Preprocessor) resolveHeaderName(dir *Directive) (string, IncludeKind, error) {
	if dir.HeaderName != "" {
		return dir.HeaderName, includeKindOf(dir.IsSystemIncl), nil
	}
	if len(dir.Expression) == 0 {
		return "", IncludeQuoted, fmt.Errorf("%s:%d: empty #include file name", dir.Loc.File, dir.Loc.Line)
	}

	expanded, err := expandSequence(ensureEOF(dir.Expression), p.macros)
	if err != nil {
		return "", IncludeQuoted, fmt.Errorf("expanding #include: %w", err)
	}
	body := stripEOF(expanded)
	if len(body) == 0 {
		return "", IncludeQuoted, fmt.Errorf("%s:%d: #include expands to nothing", dir.Loc.File, dir.Loc.Line)
	}

	if body[0].Type == PP_STRING {
		return unquoteString(body[0].Text), IncludeQuoted, nil
	}
	if body[0].Type == PP_PUNCTUATOR && body[0].Text == "<" {
		var sb strings.Builder
		for _, t := range body[1:] {
			if t.Type == PP_PUNCTUATOR && t.Text == ">" {
				return sb.String(), IncludeAngled, nil
			}
			if sb.Len() > 0 && t.HasSpace {
				sb.WriteByte(' ')
			}
			sb.WriteString(t.Text)
		}
	}
	return "", IncludeQuoted, fmt.Errorf("%s:%d: #include expects \"FILENAME\" or <FILENAME>", dir.Loc.File, dir.Loc.Line)
}

func includeKindOf(isSystem bool) IncludeKind {
	if isSystem {
		return IncludeAngled
	}
	return IncludeQuoted
}

// detectIncludeGuard implements spec.md §4.8's include-guard optimization:
// the exact pattern "#ifndef X / #define X / ... / #endif" where the
// #endif is immediately followed by EOF.
func (p *Preprocessor) detectIncludeGuard(content, filename string) string {
	sf := &SourceFile{Name: filename, DisplayName: filename}
	tokens := stripEOF(TokenizeFile(content, sf))
	if len(tokens) < 6 {
		return ""
	}

	isHash := func(t Token) bool {
		return (t.Type == PP_HASH || t.Type == PP_PUNCTUATOR) && t.Text == "#" && t.AtBOL
	}
	isDirective := func(t Token, name string) bool { return t.Type == PP_IDENTIFIER && t.Text == name }

	if !isHash(tokens[0]) || !isDirective(tokens[1], "ifndef") || tokens[2].Type != PP_IDENTIFIER {
		return ""
	}
	guard := tokens[2].Text
	if !isHash(tokens[3]) || !isDirective(tokens[4], "define") || tokens[5].Type != PP_IDENTIFIER || tokens[5].Text != guard {
		return ""
	}

	n := len(tokens)
	if n < 2 || !isHash(tokens[n-2]) || !isDirective(tokens[n-1], "endif") {
		return ""
	}

	depth := 0
	for i := 0; i < n; i++ {
		if isHash(tokens[i]) && i+1 < n && tokens[i+1].Type == PP_IDENTIFIER {
			switch tokens[i+1].Text {
			case "if", "ifdef", "ifndef":
				depth++
			case "endif":
				depth--
				if depth == 0 && i != n-2 {
					return ""
				}
			}
		}
	}

	return guard
}

// processPragma handles #pragma directives.
func (p *Preprocessor) processPragma(dir *Directive, filename string) (string, error) {
	if len(dir.PragmaTokens) == 0 {
		return "", nil
	}
	body := stripEOF(dir.PragmaTokens)
	if len(body) == 0 {
		return "", nil
	}

	if body[0].Type == PP_IDENTIFIER && body[0].Text == "once" {
		p.resolver.MarkPragmaOnce(filename)
		return "", nil
	}

	return "#pragma " + joinTokens(body) + "\n", nil
}

// GetMacros returns the macro table for inspection.
func (p *Preprocessor) GetMacros() *MacroTable {
	return p.macros
}

// SetLineMarkers enables or disables line marker output.
func (p *Preprocessor) SetLineMarkers(enabled bool) {
	p.opts.LineMarkers = enabled
}
