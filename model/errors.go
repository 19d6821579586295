package model

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidParameter is returned (wrapped) when a ParameterSet field is
// outside its valid domain.
var ErrInvalidParameter = errors.New("invalid parameter")

// ParameterError names the offending field of a rejected ParameterSet.
type ParameterError struct {
	Field  string
	Value  float64
	Reason string
}

func newParameterError(field string, value float64, reason string) *ParameterError {
	return &ParameterError{Field: field, Value: value, Reason: reason}
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s: %s %s (got %s)", ErrInvalidParameter, e.Field, e.Reason, strconv.FormatFloat(e.Value, 'g', -1, 64))
}

func (e *ParameterError) Unwrap() error { return ErrInvalidParameter }
