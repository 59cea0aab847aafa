// errors.go implements the diagnostic helpers used throughout this package,
// mirroring chibicc's errorTok/warnTok naming from original_source/preprocess.c.
package cpp

import (
	"fmt"
	"io"
)

// tokenError formats a fatal error positioned at tok.
func tokenError(tok Token, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s:%d: %s", tok.DisplayFile(), tok.Line(), msg)
}

// tokenWarning writes a non-fatal warning positioned at tok to w.
func tokenWarning(w io.Writer, tok Token, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(w, "%s:%d: warning: %s\n", tok.DisplayFile(), tok.Line(), msg)
}
