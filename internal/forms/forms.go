// Package forms holds the per-submission field validators used by the
// account and post services. Every failing field yields a FieldError;
// errors for one submission are collected with go-multierror.
package forms

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
)

const (
	MsgRequired = "This field is required"
	msgTooLong  = "Ensure this value has at most %d characters (it has %d)."
)

type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Required fails when value is empty after trimming whitespace.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &FieldError{Field: field, Message: MsgRequired}
	}
	return nil
}

// MaxLength fails when value has more than max characters.
func MaxLength(field, value string, max int) error {
	if n := utf8.RuneCountInString(value); n > max {
		return &FieldError{Field: field, Message: fmt.Sprintf(msgTooLong, max, n)}
	}
	return nil
}

// Collect merges the non-nil check results into a single error, or nil.
func Collect(checks ...error) error {
	var result *multierror.Error
	for _, err := range checks {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Fields returns field -> message for every FieldError inside err.
// The first error reported for a field wins.
func Fields(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}
	var errs []error
	var merr *multierror.Error
	if errors.As(err, &merr) {
		errs = merr.Errors
	} else {
		errs = []error{err}
	}
	for _, e := range errs {
		var fe *FieldError
		if errors.As(e, &fe) {
			if _, seen := out[fe.Field]; !seen {
				out[fe.Field] = fe.Message
			}
		}
	}
	return out
}

// IsValidation reports whether err carries at least one FieldError.
func IsValidation(err error) bool {
	return len(Fields(err)) > 0
}
