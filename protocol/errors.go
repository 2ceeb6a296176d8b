package protocol

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind enumerates the flat error taxonomy of the engine.
type Kind int32

const (
	InvalidDimension Kind = iota + 1
	MatrixError
	TopologyError
	CoordinateError
	SerializationError
	AllocationError
	InvalidInput
	NumericalError
	LayerIntegrationError
)

var kindNames = map[Kind]string{
	InvalidDimension:      "InvalidDimension",
	MatrixError:           "MatrixError",
	TopologyError:         "TopologyError",
	CoordinateError:       "CoordinateError",
	SerializationError:    "SerializationError",
	AllocationError:       "AllocationError",
	InvalidInput:          "InvalidInput",
	NumericalError:        "NumericalError",
	LayerIntegrationError: "LayerIntegrationError",
}

// String returns the name of the Kind.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int32(k))
}

// Code returns the negative integer code of the Kind, used when reporting
// errors across process or language boundaries. Codes run -1 through -9.
func (k Kind) Code() int32 { return -int32(k) }

// Validate returns an error if the Kind is not a known value.
func (k Kind) Validate() error {
	if _, ok := kindNames[k]; !ok {
		return NewError(InvalidInput, "invalid Kind (%d)", int32(k))
	}
	return nil
}

// Validator is a type able to validate itself. Validate inspects the type for
// syntactic or semantic issues, and returns a descriptive error if any
// violations are encountered. Validate should return instances of *Error,
// which enables tracking nested contexts.
type Validator interface {
	Validate() error
}

// Error is an error of a specific Kind, which captures its validation context.
type Error struct {
	Kind    Kind
	Context []string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) != 0 {
		return e.Kind.String() + ": " + strings.Join(e.Context, ".") + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause of the Error.
func (e *Error) Unwrap() error { return e.Err }

// Code returns the Kind code of the Error.
func (e *Error) Code() int32 { return e.Kind.Code() }

// NewError parallels fmt.Errorf to return a new *Error of the Kind.
func NewError(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WrapError returns a new *Error of the Kind, which wraps |err| with |msg|.
// If |err| is nil, WrapError returns nil.
func WrapError(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: errors.WithMessage(err, msg)}
}

// ExtendContext type-checks |err| to an *Error, and if matched extends
// it with |context|. In all cases the value of |err| is returned.
func ExtendContext(err error, format string, args ...interface{}) error {
	if e, ok := err.(*Error); ok {
		e.Context = append([]string{fmt.Sprintf(format, args...)}, e.Context...)
	}
	return err
}

// KindOf returns the Kind of the first *Error in the chain of |err|,
// or zero if |err| is nil or carries no *Error.
func KindOf(err error) Kind {
	var e *Error
	if err != nil && errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind returns whether |err| carries an *Error of the Kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

// CodeOf returns the Kind code of |err|, zero if |err| is nil, and the
// LayerIntegrationError code if |err| carries no *Error.
func CodeOf(err error) int32 {
	if err == nil {
		return 0
	} else if k := KindOf(err); k != 0 {
		return k.Code()
	}
	return LayerIntegrationError.Code()
}
