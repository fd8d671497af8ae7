package loader

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
)

// Error codes reported by the loader.
const (
	ErrCodeParse       = "E001" // File could not be decoded
	ErrCodeScan        = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No basket files found
	ErrCodeUnsupported = "E004" // Unknown file format
	ErrCodeNotFound    = "E005" // Path not found or unreadable
	ErrCodeBuild       = "E006" // CUE evaluation failed
	ErrCodeShape       = "E007" // Decoded document has the wrong structure
)

// LoadError is a failure to turn a file into documents.
type LoadError struct {
	Code    string
	Source  string
	Message string
	Pos     token.Pos // CUE position if available
	Err     error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	switch {
	case e.Pos.IsValid():
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, msg)
	case e.Source != "":
		return fmt.Sprintf("%s: %s: %s", e.Source, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// CodeOf returns the loader error code of err, or "" when err is not a
// LoadError.
func CodeOf(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}
