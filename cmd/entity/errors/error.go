package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openbraininstitute/entitykit/pkg/forge"
)

type Verbose interface {
	Verbose() string
}

// CUIError is an error to be shown to users of the command line.
type CUIError interface {
	error
	Verbose
}

type cuierror struct {
	summary     string
	verbose     string
	printDetail func(summary string) (string, error)
	base        error
}

func (ce *cuierror) Unwrap() error {
	return ce.base
}

func (ce *cuierror) Error() string {
	if ce.printDetail == nil {
		return ce.summary
	}
	message, err := ce.printDetail(ce.summary)
	if err != nil {
		message = fmt.Sprintf(
			"%s\n(building detailed message causes error: %s)",
			ce.summary, err.Error(),
		)
	}
	return message
}

func (ce *cuierror) Verbose() string {
	message := []string{ce.Error()}
	if ce.verbose != "" {
		message = append(message, " ("+ce.verbose+") ")
	}

	switch base := ce.base.(type) {
	case nil:
	case Verbose:
		message = append(message, "caused by: ", base.Verbose())
	default:
		message = append(message, "caused by: ", base.Error())
	}
	return strings.Join(message, "\n")
}

type CuiErrorOption func(cerr *cuierror) *cuierror

func NewCuiError(
	summary string,
	options ...CuiErrorOption,
) CUIError {
	err := &cuierror{summary: summary}
	for _, o := range options {
		err = o(err)
	}
	return err
}

func WithVerbose(verbose string) CuiErrorOption {
	return func(cerr *cuierror) *cuierror {
		cerr.verbose = verbose
		return cerr
	}
}

func WithDetail(printer func(summary string) (string, error)) CuiErrorOption {
	return func(cerr *cuierror) *cuierror {
		cerr.printDetail = printer
		return cerr
	}
}

func WithCause(err error) CuiErrorOption {
	return func(cerr *cuierror) *cuierror {
		cerr.base = err
		return cerr
	}
}

var hints = []struct {
	kind error
	hint string
}{
	{forge.ErrValidation, "the definition has a value which does not fit its field"},
	{forge.ErrUnknownType, "the type of the definition is not supported"},
	{forge.ErrMissingField, "the definition lacks a required field"},
	{forge.ErrRegistration, "the store rejected the resource"},
	{forge.ErrGraphClone, "the dataset cannot be cloned"},
	{forge.ErrMaterialization, "the dataset cannot be materialized"},
	{forge.ErrNotFound, "the resource is not found"},
}

// FromError wraps an error from the domain into CUIError.
//
// Errors caused by user input are summarized with a hint of what to fix.
// Other errors (transport, I/O) are summarized as they are.
// CUIErrors are returned as they are.
func FromError(err error) CUIError {
	if err == nil {
		return nil
	}
	var ce CUIError
	if errors.As(err, &ce) {
		return ce
	}
	for _, h := range hints {
		if errors.Is(err, h.kind) {
			return NewCuiError(
				err.Error(),
				WithVerbose(h.hint),
				WithCause(err),
			)
		}
	}
	return NewCuiError(err.Error(), WithVerbose("it may be a temporary failure; retry later"), WithCause(err))
}
