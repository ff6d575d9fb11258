package service

import (
	"errors"

	"github.com/librarycatalog/library-server/internal/validation"
)

// validationDetails returns the failing fields of a store validation error as
// error details. It returns an untyped nil when err carries none.
func validationDetails(err error) any {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return nil
}
