package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"cpre/pkg/preproc"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// Preprocessor options, bound as package-level pflag variables the way the
// teacher's cmd/ralph-cc binds its debug and preprocessor flags.
var (
	includePaths    []string
	systemPaths     []string
	defineFlags     []string
	undefineFlags   []string
	useExternalPP   bool
	noLineMarkers   bool
	outputPath      string
	baseFileFlag    string
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cpre [file]",
		Short: "cpre is a standalone C preprocessor",
		Long: `cpre expands #include, #define, and conditional-compilation
directives in C source, following the translation phases a C preprocessor
is responsible for (spec.md phase 4 macro expansion through phase 6
string-literal concatenation), without parsing or compiling the result.`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return doPreprocess(args[0], out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().StringArrayVarP(&includePaths, "include-path", "I", nil, "add directory to include search path")
	rootCmd.Flags().StringArrayVar(&systemPaths, "isystem", nil, "add directory to system include search path")
	rootCmd.Flags().StringArrayVarP(&defineFlags, "define", "D", nil, "define macro (NAME or NAME=VALUE)")
	rootCmd.Flags().StringArrayVarP(&undefineFlags, "undefine", "U", nil, "undefine macro")
	rootCmd.Flags().BoolP("preprocess", "E", true, "preprocess only (always on; no other stage exists)")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write output to file instead of stdout")
	rootCmd.Flags().BoolVar(&useExternalPP, "external-cpp", false, "use the system C preprocessor (cc -E) instead of the internal one")
	rootCmd.Flags().BoolVarP(&noLineMarkers, "no-line-markers", "P", false, "suppress \"# N \\\"file\\\"\" line markers in the output")
	rootCmd.Flags().StringVar(&baseFileFlag, "base-file", "", "override the value __BASE_FILE__ reports")

	return rootCmd
}

// buildPreprocessorOptions converts the bound CLI flags into preproc.Options.
func buildPreprocessorOptions(filename string) *preproc.Options {
	opts := &preproc.Options{
		IncludePaths: includePaths,
		SystemPaths:  systemPaths,
		Defines:      make(map[string]string),
		Undefines:    undefineFlags,
		UseExternal:  useExternalPP,
		LineMarkers:  !noLineMarkers,
		BaseFile:     baseFileFlag,
	}
	if opts.BaseFile == "" {
		opts.BaseFile = filename
	}

	for _, d := range defineFlags {
		name, value := splitDefineFlag(d)
		opts.Defines[name] = value
	}

	return opts
}

func splitDefineFlag(d string) (name, value string) {
	if idx := strings.Index(d, "="); idx >= 0 {
		return d[:idx], d[idx+1:]
	}
	return d, ""
}

func doPreprocess(filename string, out, errOut io.Writer) error {
	opts := buildPreprocessorOptions(filename)

	content, err := preproc.Preprocess(filename, opts)
	if err != nil {
		fmt.Fprintf(errOut, "cpre: %v\n", err)
		return err
	}

	if outputPath != "" && outputPath != "-" {
		if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
			fmt.Fprintf(errOut, "cpre: error writing %s: %v\n", outputPath, err)
			return err
		}
		return nil
	}

	fmt.Fprint(out, content)
	return nil
}
