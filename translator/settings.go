package translator

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/squall-chua/mongora"
)

// BindMode selects how operator-argument literals are rendered: inlined
// as SQL literals, or replaced with sequential bind placeholders.
type BindMode int

const (
	// BindInline renders literals directly in the SQL text.
	BindInline BindMode = iota
	// BindPlaceholders replaces literals with :1, :2, … in left-to-right
	// evaluation order.
	BindPlaceholders
)

// UnsupportedMode controls what happens when the compiler reaches an
// operator with no full Oracle SQL equivalent: $reduce, $concatArrays,
// $slice. $redact's $$DESCEND is not routed through this mode: it is
// handled like $$KEEP at document level.
type UnsupportedMode int

const (
	// UnsupportedStrict aborts translation with an *mongora.UnsupportedError.
	UnsupportedStrict UnsupportedMode = iota
	// UnsupportedLenient emits a "/* <op> not fully supported */" comment
	// and a NULL column in place of the affected projection.
	UnsupportedLenient
)

// Settings is the translator's immutable configuration object, built via
// the functional-options pattern: each Option mutates one field of a
// Settings value constructed by NewSettings.
type Settings struct {
	BindMode        BindMode
	UnsupportedMode UnsupportedMode
	Logger          logrus.FieldLogger
	Schema          mongora.Schema
}

// Option configures a Settings value.
type Option func(*Settings)

// WithBindMode sets how literals are rendered.
func WithBindMode(m BindMode) Option {
	return func(s *Settings) { s.BindMode = m }
}

// WithUnsupportedMode sets strict vs. lenient handling of operators with
// no full SQL equivalent.
func WithUnsupportedMode(m UnsupportedMode) Option {
	return func(s *Settings) { s.UnsupportedMode = m }
}

// WithLogger overrides the default silent logger. Grounded in
// dolthub-go-mysql-server's use of sirupsen/logrus for engine-level
// diagnostics; a debug-level entry is emitted at each fusion ($match
// folding, $sort consumed into KEEP, $lookup+$unwind join), warn for
// each lenient-mode sentinel substitution.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Settings) { s.Logger = l }
}

// WithSchema supplies field-kind hints consulted by the expression
// compiler when choosing JSON_VALUE's RETURNING clause (see
// mongora.Schema / mongora.FieldFromStruct).
func WithSchema(schema mongora.Schema) Option {
	return func(s *Settings) { s.Schema = schema }
}

// NewSettings builds a Settings value with defaults (inline literals,
// strict unsupported-operator handling, a discarding logger, no schema
// hints) and applies opts in order.
func NewSettings(opts ...Option) *Settings {
	s := &Settings{
		BindMode:        BindInline,
		UnsupportedMode: UnsupportedStrict,
		Logger:          newSilentLogger(),
		Schema:          nil,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newSilentLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
