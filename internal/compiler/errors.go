package compiler

import "errors"

// Stage identifies which step of a compile failed.
type Stage string

const (
	// StageParse covers text -> binary conversion.
	StageParse Stage = "parse"
	// StageValidate covers binary validation and compilation.
	StageValidate Stage = "validate"
	// StageInstantiate covers instantiation against the import table.
	StageInstantiate Stage = "instantiate"
)

// CompileError is a failed compile.
//
// Error returns Message exactly as the engine reported it; the stage is
// kept separately so callers can inspect it without it leaking into the
// user-visible log line.
type CompileError struct {
	Stage   Stage
	Message string
}

func (e *CompileError) Error() string {
	return e.Message
}

// StageOf returns the stage of a compile failure, or "" if err is not a
// *CompileError.
func StageOf(err error) Stage {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Stage
	}
	return ""
}

func newCompileError(stage Stage, err error) *CompileError {
	return &CompileError{Stage: stage, Message: err.Error()}
}
