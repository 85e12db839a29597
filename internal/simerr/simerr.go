// Package simerr defines the small set of typed fatal errors spec.md §7
// requires the session driver to branch on: configuration errors and
// protocol violations. Every other error path in this module uses plain
// wrapped errors (fmt.Errorf with %w), matching the teacher's own style;
// this type exists only for the two categories spec.md explicitly names
// as abort-the-session conditions.
package simerr

import "fmt"

// Kind distinguishes the two fatal categories named in spec.md §7.
type Kind int8

const (
	// Configuration covers unknown stepmode/timemode, a non-callable
	// offset function, a time outside all schedule zones, or k<4 for
	// PRDE.
	Configuration Kind = iota
	// Protocol covers a trader quoting outside its assignment limit,
	// negative profit in a non-inventory strategy, or a malformed
	// order side.
	Protocol
)

func (k Kind) String() string {
	if k == Configuration {
		return "configuration"
	}
	return "protocol"
}

// FatalError is a session-aborting error carrying its category and the
// operation that raised it.
type FatalError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s error in %s: %v", e.Kind, e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Configf builds a Configuration FatalError.
func Configf(op, format string, args ...any) error {
	return &FatalError{Kind: Configuration, Op: op, Err: fmt.Errorf(format, args...)}
}

// Protocolf builds a Protocol FatalError.
func Protocolf(op, format string, args ...any) error {
	return &FatalError{Kind: Protocol, Op: op, Err: fmt.Errorf(format, args...)}
}

// IsFatal reports whether err is a FatalError of either kind.
func IsFatal(err error) bool {
	_, ok := err.(*FatalError)
	return ok
}
