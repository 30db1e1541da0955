// Package ddcerr defines the error taxonomy shared by every component of the
// bus/connector core: a stable, comparable Code plus an optional wrapper that
// keeps the bus number, the failing operation and the underlying cause.
package ddcerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is a stable, comparable error identifier. It implements error so a
// bare Code can be returned (and compared with ==) when no extra context is
// warranted.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes, one per error kind the bus/connector core distinguishes.
const (
	InvalidOperation Code = "invalid-operation"
	InvalidArgument  Code = "invalid-argument"
	NotFound         Code = "not-found"
	IO               Code = "io"
	Locked           Code = "locked"
	Flocked          Code = "flocked"
	DDCData          Code = "ddc-data"
	EDIDChecksum     Code = "edid-checksum"
	Disconnected     Code = "disconnected"
	DPMSAsleep       Code = "dpms-asleep"
)

// E wraps a Code with the operation and bus number that produced it plus an
// optional cause, preserving Unwrap() so errors.Is/As still reach a wrapped
// syscall.Errno.
type E struct {
	C     Code
	Op    string
	Busno int
	Err   error
}

func (e *E) Error() string {
	if e.Err != nil {
		if e.Busno >= 0 {
			return fmt.Sprintf("%s: bus %d: %s: %v", e.Op, e.Busno, e.C, e.Err)
		}
		return fmt.Sprintf("%s: %s: %v", e.Op, e.C, e.Err)
	}
	if e.Busno >= 0 {
		return fmt.Sprintf("%s: bus %d: %s", e.Op, e.Busno, e.C)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.C)
}

func (e *E) Unwrap() error { return e.Err }

// Code reports the canonical Code of e, satisfying the coder interface used
// by Of.
func (e *E) Code() Code { return e.C }

// New builds an *E with no bus number (busno -1) and no cause.
func New(op string, c Code) *E {
	return &E{C: c, Op: op, Busno: -1}
}

// Wrap builds an *E around a busno and a lower-level cause, the way
// component B (Bus Device Gateway) wraps every kernel error. cause is kept
// reachable through Unwrap, and is annotated with errors.Wrapf so a
// stack-carrying error survives alongside the structured fields.
func Wrap(op string, busno int, c Code, cause error) *E {
	return &E{
		C:     c,
		Op:    op,
		Busno: busno,
		Err:   errors.Wrapf(cause, "%s: bus %d", op, busno),
	}
}

type coder interface{ Code() Code }

// Of extracts the canonical Code from err, defaulting to IO when err is
// non-nil but carries no Code.
func Of(err error) (Code, bool) {
	if err == nil {
		return "", false
	}
	if c, ok := err.(Code); ok {
		return c, true
	}
	if x, ok := err.(coder); ok {
		return x.Code(), true
	}
	return IO, false
}

// Is reports whether err carries the given Code, looking through *E and a
// bare Code.
func Is(err error, c Code) bool {
	got, ok := Of(err)
	return ok && got == c
}
