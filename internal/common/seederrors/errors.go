// Package seederrors contains generic errors shared by the generation and load stages.
//
// If multiple errors occur in some function (e.g., if several generation tasks fail), that
// function should return an error of type multierror.Error from package
// github.com/hashicorp/go-multierror that encapsulates those individual errors.
package seederrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrAlreadyExists is a generic error to be returned whenever some resource already exists.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrAlreadyExists struct {
	Type    string // Resource type, e.g., "manifest" or "table"
	Value   string // Resource name, e.g., "temp/manifest.txt"
	Message string // An optional message to include in the error message
}

func (err *ErrAlreadyExists) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q already exists", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q already exists", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	} else {
		return s
	}
}

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
//
// See ErrAlreadyExists for more info.
type ErrNotFound struct {
	Type    string
	Value   string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	} else {
		return s
	}
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "total"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message, e.g., explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for field %q", err.Value, err.Name)
	} else {
		return fmt.Sprintf("value %v is invalid for field %q; %s", err.Value, err.Name, err.Message)
	}
}

// ErrPermanent marks a failure that will not go away by trying again, e.g. a malformed artifact.
// Retry loops should give up on it immediately.
type ErrPermanent struct {
	Err error
}

func (err *ErrPermanent) Error() string {
	return fmt.Sprintf("permanent failure: %s", err.Err)
}

func (err *ErrPermanent) Unwrap() error {
	return err.Err
}

// Permanent wraps err in an ErrPermanent. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &ErrPermanent{Err: err}
}

// IsPermanent returns true if any error in the chain is an ErrPermanent.
func IsPermanent(err error) bool {
	var e *ErrPermanent
	return errors.As(err, &e)
}

// IsNotFound returns true if any error in the chain is an ErrNotFound.
func IsNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}

// IsAlreadyExists returns true if any error in the chain is an ErrAlreadyExists.
func IsAlreadyExists(err error) bool {
	var e *ErrAlreadyExists
	return errors.As(err, &e)
}
