package mongora

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying the broad category of a translation failure.
// Use errors.Is against these to branch on error class; use errors.As
// against the concrete *Error types below to recover stage index /
// operator name for diagnostics.
var (
	// ErrInput is returned when the top-level JSON value is not a pipeline
	// (an array of single-key stage documents).
	ErrInput = errors.New("mongora: malformed input")

	// ErrPipeline is returned for well-formed JSON with a semantically
	// invalid stage: unknown stage name, missing/contradictory payload.
	ErrPipeline = errors.New("mongora: invalid pipeline")

	// ErrExpression is returned for an invalid expression: unknown
	// operator, wrong arity, or a type mismatch the compiler can detect
	// statically.
	ErrExpression = errors.New("mongora: invalid expression")

	// ErrUnsupported is returned (strict mode) for an operator that is
	// recognized but has no full Oracle SQL equivalent.
	ErrUnsupported = errors.New("mongora: unsupported operator")
)

// InputError reports a malformed top-level pipeline value.
type InputError struct {
	Detail string
}

func (e *InputError) Error() string { return fmt.Sprintf("mongora: malformed pipeline: %s", e.Detail) }
func (e *InputError) Unwrap() error { return ErrInput }

// PipelineError reports a bad stage: unknown name or invalid payload shape.
// StageIndex is the zero-based position of the offending stage in the
// pipeline, or -1 if not applicable.
type PipelineError struct {
	StageIndex int
	Stage      string
	Detail     string
}

func (e *PipelineError) Error() string {
	if e.StageIndex >= 0 {
		return fmt.Sprintf("mongora: stage %d (%s): %s", e.StageIndex, e.Stage, e.Detail)
	}
	return fmt.Sprintf("mongora: stage %s: %s", e.Stage, e.Detail)
}
func (e *PipelineError) Unwrap() error { return ErrPipeline }

// ExpressionError reports an unknown operator, arity mismatch, or type
// mismatch encountered while parsing or compiling an expression.
type ExpressionError struct {
	StageIndex int
	Operator   string
	Detail     string
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("mongora: stage %d: operator %s: %s", e.StageIndex, e.Operator, e.Detail)
}
func (e *ExpressionError) Unwrap() error { return ErrExpression }

// UnsupportedError reports a recognized operator with no full SQL
// equivalent (e.g. $reduce, $concatArrays, $slice). $redact's $$DESCEND
// does not produce it; it is handled like $$KEEP at document level. In
// Settings.UnsupportedMode == Strict this aborts
// translation; in Lenient mode the caller receives SQL containing a
// "/* <op> not fully supported */" comment instead and this error is
// never constructed.
type UnsupportedError struct {
	StageIndex int
	Operator   string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("mongora: stage %d: operator %s is recognized but not fully expressible in Oracle SQL", e.StageIndex, e.Operator)
}
func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

// UnknownStage reports an unrecognized stage name.
func UnknownStage(stageIndex int, name string) error {
	return &PipelineError{StageIndex: stageIndex, Stage: name, Detail: "unknown stage"}
}

// UnknownOperator reports an unrecognized expression/predicate operator.
func UnknownOperator(stageIndex int, name string) error {
	return &ExpressionError{StageIndex: stageIndex, Operator: name, Detail: "unknown operator"}
}

// OperatorArityError reports an operator invoked with the wrong number of
// arguments.
func OperatorArityError(stageIndex int, name string, got, expected int) error {
	return &ExpressionError{
		StageIndex: stageIndex,
		Operator:   name,
		Detail:     fmt.Sprintf("wrong arity: got %d args, expected %d", got, expected),
	}
}

// StageArgError reports a malformed stage payload (e.g. $group missing
// _id, $bucket boundaries not ascending).
func StageArgError(stageIndex int, stage, detail string) error {
	return &PipelineError{StageIndex: stageIndex, Stage: stage, Detail: detail}
}
