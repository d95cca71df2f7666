// Package apperr defines the error kinds shared across the catalog.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
	ErrUnsupportedConversion = errors.New("unsupported conversion")
	ErrParse                 = errors.New("parse failure")
	ErrArchive               = errors.New("archive warning")
)

// UnsupportedConversionError names the extension pair that has no conversion.
type UnsupportedConversionError struct {
	From string
	To   string
}

func (e *UnsupportedConversionError) Error() string {
	return fmt.Sprintf("unsupported conversion: %s to %s", e.From, e.To)
}

// Is reports whether target is ErrUnsupportedConversion.
func (e *UnsupportedConversionError) Is(target error) bool {
	return target == ErrUnsupportedConversion
}
